package appointments

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DayLayout is the ISO date layout used for booking days.
const DayLayout = "2006-01-02"

// SlotLayout is the clock layout of time slots ("10:00 AM").
const SlotLayout = "3:04 PM"

// ReasonCategory classifies the visit.
type ReasonCategory string

const (
	ReasonUrgent  ReasonCategory = "Urgent"
	ReasonGeneral ReasonCategory = "General"
)

// ParseReasonCategory matches "urgent"/"general" regardless of case.
func ParseReasonCategory(raw string) (ReasonCategory, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "urgent":
		return ReasonUrgent, true
	case "general":
		return ReasonGeneral, true
	default:
		return "", false
	}
}

// Draft is an appointment being filled in field by field.
// HasInsurance is nil until the patient answers.
type Draft struct {
	FullName          string         `json:"fullName"`
	Email             string         `json:"email"`
	BookingDay        string         `json:"bookingDay"`
	TimeSlot          string         `json:"timeSlot"`
	ReasonCategory    ReasonCategory `json:"reasonCategory"`
	Reason            string         `json:"reason"`
	HasInsurance      *bool          `json:"hasInsurance"`
	InsuranceProvider string         `json:"insuranceProvider,omitempty"`
	MemberID          string         `json:"memberId,omitempty"`
	Notes             string         `json:"notes,omitempty"`
}

// Insured reports a known "yes" answer.
func (d Draft) Insured() bool {
	return d.HasInsurance != nil && *d.HasInsurance
}

// Validate returns ErrIncompleteDraft naming every missing field.
func (d Draft) Validate() error {
	var missing []string
	if strings.TrimSpace(d.FullName) == "" {
		missing = append(missing, "fullName")
	}
	if strings.TrimSpace(d.Email) == "" {
		missing = append(missing, "email")
	}
	if _, err := ParseDay(d.BookingDay); err != nil {
		missing = append(missing, "bookingDay")
	}
	if _, err := CanonicalSlot(d.TimeSlot); err != nil {
		missing = append(missing, "timeSlot")
	}
	if d.ReasonCategory != ReasonUrgent && d.ReasonCategory != ReasonGeneral {
		missing = append(missing, "reasonCategory")
	}
	if strings.TrimSpace(d.Reason) == "" {
		missing = append(missing, "reason")
	}
	if d.HasInsurance == nil {
		missing = append(missing, "hasInsurance")
	} else if *d.HasInsurance && strings.TrimSpace(d.InsuranceProvider) == "" {
		missing = append(missing, "insuranceProvider")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrIncompleteDraft, strings.Join(missing, ", "))
	}
	return nil
}

// Normalize validates the draft and rewrites its day and slot in canonical
// spelling, so "09:00 AM" and "9:00 AM" name the same slot.
func (d Draft) Normalize() (Draft, error) {
	if err := d.Validate(); err != nil {
		return d, err
	}
	d.BookingDay, _ = CanonicalDay(d.BookingDay)
	d.TimeSlot, _ = CanonicalSlot(d.TimeSlot)
	return d, nil
}

// Appointment is a submitted booking. It is never modified after creation.
type Appointment struct {
	ID                string         `json:"id"`
	FullName          string         `json:"fullName"`
	Email             string         `json:"email"`
	BookingDay        string         `json:"bookingDay"`
	TimeSlot          string         `json:"timeSlot"`
	ReasonCategory    ReasonCategory `json:"reasonCategory"`
	Reason            string         `json:"reason"`
	HasInsurance      bool           `json:"hasInsurance"`
	InsuranceProvider string         `json:"insuranceProvider,omitempty"`
	MemberID          string         `json:"memberId,omitempty"`
	Notes             string         `json:"notes,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
}

// newAppointment expects a draft that went through Normalize.
func newAppointment(id string, d Draft, createdAt time.Time) Appointment {
	return Appointment{
		ID:                id,
		FullName:          strings.TrimSpace(d.FullName),
		Email:             strings.TrimSpace(d.Email),
		BookingDay:        d.BookingDay,
		TimeSlot:          d.TimeSlot,
		ReasonCategory:    d.ReasonCategory,
		Reason:            strings.TrimSpace(d.Reason),
		HasInsurance:      d.Insured(),
		InsuranceProvider: insuredOnly(d, d.InsuranceProvider),
		MemberID:          insuredOnly(d, d.MemberID),
		Notes:             strings.TrimSpace(d.Notes),
		CreatedAt:         createdAt,
	}
}

func insuredOnly(d Draft, v string) string {
	if !d.Insured() {
		return ""
	}
	return strings.TrimSpace(v)
}

// ParseDay validates an ISO booking day.
func ParseDay(day string) (time.Time, error) {
	t, err := time.Parse(DayLayout, strings.TrimSpace(day))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDay, day)
	}
	return t, nil
}

// CanonicalDay validates day and formats it with DayLayout.
func CanonicalDay(day string) (string, error) {
	t, err := ParseDay(day)
	if err != nil {
		return "", err
	}
	return t.Format(DayLayout), nil
}

// CanonicalSlot validates a clock time and formats it with SlotLayout.
func CanonicalSlot(slot string) (string, error) {
	t, err := time.Parse(SlotLayout, strings.TrimSpace(slot))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidSlot, slot)
	}
	return t.Format(SlotLayout), nil
}

// slotKey identifies a (day, time slot) pair.
func slotKey(day, slot string) string {
	return day + "#" + slot
}

// SlotMinutes converts "10:00 AM" into minutes after midnight, or -1.
func SlotMinutes(slot string) int {
	t, err := time.Parse(SlotLayout, strings.TrimSpace(slot))
	if err != nil {
		return -1
	}
	return t.Hour()*60 + t.Minute()
}

// SortSlots orders time slots by clock time.
func SortSlots(slots []string) {
	sort.SliceStable(slots, func(i, j int) bool {
		return SlotMinutes(slots[i]) < SlotMinutes(slots[j])
	})
}

// SortAppointments orders appointments by day, then clock time.
func SortAppointments(list []Appointment) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].BookingDay != list[j].BookingDay {
			return list[i].BookingDay < list[j].BookingDay
		}
		return SlotMinutes(list[i].TimeSlot) < SlotMinutes(list[j].TimeSlot)
	})
}
