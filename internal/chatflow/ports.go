package chatflow

import (
	"context"
	"time"

	"github.com/AyushPatel04/dental-chatbot/internal/appointments"
	"github.com/AyushPatel04/dental-chatbot/internal/observability/metrics"
	"github.com/AyushPatel04/dental-chatbot/internal/pricing"
	"github.com/AyushPatel04/dental-chatbot/internal/uploads"
	"github.com/AyushPatel04/dental-chatbot/pkg/logging"
)

// ReplyService answers free-form questions. image is nil for text-only input.
type ReplyService interface {
	GenerateReply(ctx context.Context, text string, image *uploads.Reference) (string, error)
}

// CardInfo is a best-effort reading of an insurance card.
type CardInfo struct {
	Provider   string `json:"provider"`
	MemberID   string `json:"member_id"`
	MemberName string `json:"member_name"`
}

// CardExtractor reads insurance details from a stored card photo.
type CardExtractor interface {
	ExtractCardInfo(ctx context.Context, ref uploads.Reference) (CardInfo, error)
}

// Uploader validates and stores user files.
type Uploader interface {
	Store(ctx context.Context, filename string, data []byte) (uploads.Reference, error)
}

// AppointmentStore books and lists appointments.
type AppointmentStore interface {
	Create(ctx context.Context, draft appointments.Draft) (*appointments.Appointment, error)
	ListByDate(ctx context.Context, day string) ([]string, error)
}

// Exchange is one handled input: the user's message and the bot messages it produced.
type Exchange struct {
	SessionID string    `json:"session_id"`
	Stage     string    `json:"stage"`
	User      Message   `json:"user"`
	Replies   []Message `json:"replies"`
	At        time.Time `json:"at"`
}

// ConversationLogger records exchanges. Log must not block the conversation.
type ConversationLogger interface {
	Log(ctx context.Context, exchange Exchange)
}

// BookingNotifier is told about every successful booking.
type BookingNotifier interface {
	BookingConfirmed(ctx context.Context, appt appointments.Appointment)
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads the wall clock.
var SystemClock Clock = systemClock{}

const defaultCollaboratorTimeout = 20 * time.Second

// DefaultTimeSlots are offered when no slot list is configured.
var DefaultTimeSlots = []string{
	"9:00 AM", "10:00 AM", "11:00 AM", "12:00 PM", "1:00 PM", "2:00 PM", "3:00 PM", "4:00 PM",
}

// Dependencies are the collaborators and settings shared by every session.
type Dependencies struct {
	Replies      ReplyService
	Extractor    CardExtractor
	Uploads      Uploader
	Appointments AppointmentStore
	Transcripts  ConversationLogger
	Notifier     BookingNotifier
	Clock        Clock
	Engine       *pricing.Engine

	// Providers is the insurance dropdown; defaults to the cost table plans plus Other.
	Providers []string
	TimeSlots []string

	ClinicName          string
	PreregistrationURL  string
	OnlineBookingURL    string
	CollaboratorTimeout time.Duration

	Metrics *metrics.ChatMetrics
	Logger  *logging.Logger
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Engine == nil {
		d.Engine = pricing.NewEngine(nil)
	}
	if len(d.Providers) == 0 {
		d.Providers = append(d.Engine.Table().Plans(), pricing.PlanOther)
	}
	if len(d.TimeSlots) == 0 {
		d.TimeSlots = DefaultTimeSlots
	}
	if d.Clock == nil {
		d.Clock = SystemClock
	}
	if d.CollaboratorTimeout <= 0 {
		d.CollaboratorTimeout = defaultCollaboratorTimeout
	}
	if d.ClinicName == "" {
		d.ClinicName = "our dental office"
	}
	if d.Logger == nil {
		d.Logger = logging.Default()
	}
	return d
}
