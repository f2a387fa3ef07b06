package appointments

import "errors"

var (
	// ErrConflict is returned when the (day, time slot) pair is already booked.
	ErrConflict = errors.New("appointments: time slot already booked")

	// ErrIncompleteDraft is returned when required draft fields are missing or malformed.
	ErrIncompleteDraft = errors.New("appointments: draft is incomplete")

	// ErrInvalidDay is returned for booking days that are not ISO dates.
	ErrInvalidDay = errors.New("appointments: booking day must be YYYY-MM-DD")

	// ErrInvalidSlot is returned for time slots that are not clock times like "9:00 AM".
	ErrInvalidSlot = errors.New("appointments: time slot must look like 9:00 AM")
)
