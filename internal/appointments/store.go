package appointments

import "context"

// Store persists appointments. Create must reject a second booking of the same
// (day, time slot) atomically with ErrConflict.
type Store interface {
	Create(ctx context.Context, draft Draft) (*Appointment, error)
	ListByDate(ctx context.Context, day string) ([]string, error)
	ListAll(ctx context.Context) ([]Appointment, error)
}
