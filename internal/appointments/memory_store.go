package appointments

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps appointments in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	bySlot map[string]Appointment
	now    func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bySlot: make(map[string]Appointment),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create books the slot, failing with ErrConflict when it is taken.
func (s *MemoryStore) Create(ctx context.Context, draft Draft) (*Appointment, error) {
	draft, err := draft.Normalize()
	if err != nil {
		return nil, err
	}
	key := slotKey(draft.BookingDay, draft.TimeSlot)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.bySlot[key]; taken {
		return nil, ErrConflict
	}
	appt := newAppointment(uuid.NewString(), draft, s.now())
	s.bySlot[key] = appt
	return &appt, nil
}

// ListByDate returns the booked slots of day in clock order.
func (s *MemoryStore) ListByDate(ctx context.Context, day string) ([]string, error) {
	day, err := CanonicalDay(day)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	slots := []string{}
	for _, appt := range s.bySlot {
		if appt.BookingDay == day {
			slots = append(slots, appt.TimeSlot)
		}
	}
	SortSlots(slots)
	return slots, nil
}

// ListAll returns every appointment ordered by day and time.
func (s *MemoryStore) ListAll(ctx context.Context) ([]Appointment, error) {
	s.mu.RLock()
	out := make([]Appointment, 0, len(s.bySlot))
	for _, appt := range s.bySlot {
		out = append(out, appt)
	}
	s.mu.RUnlock()

	SortAppointments(out)
	return out, nil
}
