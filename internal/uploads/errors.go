package uploads

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a referenced object does not exist.
var ErrNotFound = errors.New("uploads: object not found")

// InvalidUploadError reports why a file was rejected. Nothing is stored when it is returned.
type InvalidUploadError struct {
	Reason string
}

func (e *InvalidUploadError) Error() string {
	return fmt.Sprintf("uploads: invalid upload: %s", e.Reason)
}

func invalid(format string, args ...any) error {
	return &InvalidUploadError{Reason: fmt.Sprintf(format, args...)}
}

// IsInvalid reports whether err is an upload rejection and returns its reason.
func IsInvalid(err error) (string, bool) {
	var ie *InvalidUploadError
	if errors.As(err, &ie) {
		return ie.Reason, true
	}
	return "", false
}
