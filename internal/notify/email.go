package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/AyushPatel04/dental-chatbot/pkg/logging"
)

const defaultFromName = "Dental Office"

var (
	ErrNoRecipient = errors.New("notify: email has no recipient")
	ErrSendFailed  = errors.New("notify: email send failed")
)

// EmailSender delivers patient emails.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is one outgoing email. HTML and Category are optional; Category
// tags the message with the provider for reporting.
type EmailMessage struct {
	To       string
	ToName   string
	Subject  string
	Body     string
	HTML     string
	Category string
}

func (m EmailMessage) validate() error {
	if strings.TrimSpace(m.To) == "" {
		return ErrNoRecipient
	}
	return nil
}

// fromAddress is the clinic identity shared by the senders.
type fromAddress struct {
	email string
	name  string
}

func newFromAddress(email, name string) fromAddress {
	if strings.TrimSpace(name) == "" {
		name = defaultFromName
	}
	return fromAddress{email: email, name: name}
}

func (f fromAddress) String() string {
	return fmt.Sprintf("%s <%s>", f.name, f.email)
}

type sendgridAPI interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

type SendGridSender struct {
	client sendgridAPI
	from   fromAddress
	logger *logging.Logger
}

type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

var _ EmailSender = (*SendGridSender)(nil)

// NewSendGridSender returns nil when no API key is configured.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	return newSendGridSender(sendgrid.NewSendClient(cfg.APIKey), cfg, logger)
}

func newSendGridSender(client sendgridAPI, cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &SendGridSender{
		client: client,
		from:   newFromAddress(cfg.FromEmail, cfg.FromName),
		logger: logger,
	}
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s.client == nil {
		return fmt.Errorf("%w: sendgrid client not configured", ErrSendFailed)
	}
	if err := msg.validate(); err != nil {
		return err
	}

	htmlBody := msg.HTML
	if htmlBody == "" {
		htmlBody = msg.Body
	}
	message := mail.NewSingleEmail(
		mail.NewEmail(s.from.name, s.from.email),
		msg.Subject,
		mail.NewEmail(msg.ToName, msg.To),
		msg.Body,
		htmlBody,
	)
	if msg.Category != "" {
		message.AddCategories(msg.Category)
	}

	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("%w: sendgrid: %w", ErrSendFailed, err)
	}
	if resp.StatusCode >= 400 {
		s.logger.Error("sendgrid rejected email", "status", resp.StatusCode, "body", resp.Body, "category", msg.Category)
		return fmt.Errorf("%w: sendgrid status %d", ErrSendFailed, resp.StatusCode)
	}

	s.logger.Info("email sent", "provider", "sendgrid", "category", msg.Category, "status", resp.StatusCode)
	return nil
}

// StubEmailSender only logs. It is used when no provider is configured.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	if err := msg.validate(); err != nil {
		return err
	}
	s.logger.Info("email not sent, no provider configured", "subject", msg.Subject, "category", msg.Category)
	return nil
}
