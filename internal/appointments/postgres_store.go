package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore persists appointments in the appointments table. The
// UNIQUE (booking_day, time_slot) index makes Create atomic per slot.
type PostgresStore struct {
	db pgQuerier
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &PostgresStore{db: pool}
}

func newPostgresStoreWithQuerier(db pgQuerier) *PostgresStore {
	if db == nil {
		panic("appointments: querier required")
	}
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, draft Draft) (*Appointment, error) {
	draft, err := draft.Normalize()
	if err != nil {
		return nil, err
	}
	appt := newAppointment(uuid.NewString(), draft, time.Time{})

	query := `
		INSERT INTO appointments (
			id, full_name, email, booking_day, time_slot, reason_category,
			reason, has_insurance, insurance_provider, member_id, notes
		)
		VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (booking_day, time_slot) DO NOTHING
		RETURNING created_at
	`
	err = s.db.QueryRow(ctx, query,
		appt.ID, appt.FullName, appt.Email, appt.BookingDay, appt.TimeSlot, string(appt.ReasonCategory),
		appt.Reason, appt.HasInsurance, appt.InsuranceProvider, appt.MemberID, appt.Notes,
	).Scan(&appt.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("appointments: insert: %w", err)
	}
	appt.CreatedAt = appt.CreatedAt.UTC()
	return &appt, nil
}

func (s *PostgresStore) ListByDate(ctx context.Context, day string) ([]string, error) {
	day, err := CanonicalDay(day)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, `SELECT time_slot FROM appointments WHERE booking_day = $1::date`, day)
	if err != nil {
		return nil, fmt.Errorf("appointments: list slots: %w", err)
	}
	defer rows.Close()

	slots := []string{}
	for rows.Next() {
		var slot string
		if err := rows.Scan(&slot); err != nil {
			return nil, fmt.Errorf("appointments: scan slot: %w", err)
		}
		slots = append(slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: list slots: %w", err)
	}
	SortSlots(slots)
	return slots, nil
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]Appointment, error) {
	query := `
		SELECT id, full_name, email, to_char(booking_day, 'YYYY-MM-DD'), time_slot, reason_category,
		       reason, has_insurance, insurance_provider, member_id, notes, created_at
		FROM appointments
		ORDER BY booking_day
	`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("appointments: list: %w", err)
	}
	defer rows.Close()

	out := []Appointment{}
	for rows.Next() {
		var (
			appt     Appointment
			category string
		)
		if err := rows.Scan(
			&appt.ID, &appt.FullName, &appt.Email, &appt.BookingDay, &appt.TimeSlot, &category,
			&appt.Reason, &appt.HasInsurance, &appt.InsuranceProvider, &appt.MemberID, &appt.Notes, &appt.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("appointments: scan: %w", err)
		}
		appt.ReasonCategory = ReasonCategory(category)
		appt.CreatedAt = appt.CreatedAt.UTC()
		out = append(out, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: list: %w", err)
	}
	// time slots are stored as display text, so clock order is applied here.
	SortAppointments(out)
	return out, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
