package appointments

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AyushPatel04/dental-chatbot/pkg/logging"
)

// Service fronts a Store with validation, tracing and logging.
type Service struct {
	store  Store
	tracer trace.Tracer
	logger *logging.Logger
}

var _ Store = (*Service)(nil)

func NewService(store Store, logger *logging.Logger) *Service {
	if store == nil {
		panic("appointments: store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		store:  store,
		tracer: otel.Tracer("dental.internal.appointments"),
		logger: logger,
	}
}

func (s *Service) Create(ctx context.Context, draft Draft) (*Appointment, error) {
	draft, err := draft.Normalize()
	if err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "appointments.create", trace.WithAttributes(
		attribute.String("booking_day", draft.BookingDay),
		attribute.String("time_slot", draft.TimeSlot),
	))
	defer span.End()

	appt, err := s.store.Create(ctx, draft)
	switch {
	case errors.Is(err, ErrConflict):
		s.logger.Info("appointment slot already taken", "booking_day", draft.BookingDay, "time_slot", draft.TimeSlot)
		return nil, err
	case err != nil:
		span.RecordError(err)
		s.logger.Error("failed to create appointment", "error", err, "booking_day", draft.BookingDay)
		return nil, err
	}
	s.logger.Info("appointment booked", "appointment_id", appt.ID, "booking_day", appt.BookingDay, "time_slot", appt.TimeSlot)
	return appt, nil
}

func (s *Service) ListByDate(ctx context.Context, day string) ([]string, error) {
	day, err := CanonicalDay(day)
	if err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "appointments.list_by_date", trace.WithAttributes(attribute.String("booking_day", day)))
	defer span.End()

	slots, err := s.store.ListByDate(ctx, day)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return slots, nil
}

func (s *Service) ListAll(ctx context.Context) ([]Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "appointments.list_all")
	defer span.End()

	list, err := s.store.ListAll(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return list, nil
}
