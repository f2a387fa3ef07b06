package chatflow

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionBusy is returned when an input arrives while the previous one
	// is still being handled. The input is dropped.
	ErrSessionBusy = errors.New("chatflow: session is busy")

	// ErrUpstream marks a failed or timed-out collaborator call.
	ErrUpstream = errors.New("chatflow: collaborator call failed")

	// errReprompt asks the dispatcher to repeat the stage hint.
	errReprompt = errors.New("chatflow: reprompt")
)

// validationError is recovered by telling the user what to fix; the stage does not change.
type validationError struct {
	reason string
	msg    string
}

func (e *validationError) Error() string {
	return "chatflow: invalid input: " + e.msg
}

func invalidInput(reason, format string, args ...any) error {
	return &validationError{reason: reason, msg: fmt.Sprintf(format, args...)}
}

// upstreamError carries the collaborator name so the apology can be specific.
type upstreamError struct {
	collaborator string
	timedOut     bool
	err          error
}

func (e *upstreamError) Error() string {
	return fmt.Sprintf("chatflow: %s: %v", e.collaborator, e.err)
}

func (e *upstreamError) Unwrap() []error {
	return []error{ErrUpstream, e.err}
}
