package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"github.com/AyushPatel04/dental-chatbot/internal/appointments"
	"github.com/AyushPatel04/dental-chatbot/internal/chatflow"
	"github.com/AyushPatel04/dental-chatbot/pkg/logging"
)

const (
	defaultSendTimeout   = 15 * time.Second
	confirmationCategory = "booking_confirmation"
)

// BookingConfirmations emails the patient after a booking. Sending happens in
// the background so the chat reply is never delayed.
type BookingConfirmations struct {
	sender  EmailSender
	clinic  string
	timeout time.Duration
	logger  *logging.Logger
	wg      sync.WaitGroup
}

var _ chatflow.BookingNotifier = (*BookingConfirmations)(nil)

func NewBookingConfirmations(sender EmailSender, clinic string, logger *logging.Logger) *BookingConfirmations {
	if sender == nil {
		panic("notify: email sender cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(clinic) == "" {
		clinic = defaultFromName
	}
	return &BookingConfirmations{
		sender:  sender,
		clinic:  clinic,
		timeout: defaultSendTimeout,
		logger:  logger,
	}
}

// BookingConfirmed queues the confirmation email for appt.
func (b *BookingConfirmations) BookingConfirmed(ctx context.Context, appt appointments.Appointment) {
	if strings.TrimSpace(appt.Email) == "" {
		return
	}
	msg := b.render(appt)
	ctx = context.WithoutCancel(ctx)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		sendCtx, cancel := context.WithTimeout(ctx, b.timeout)
		defer cancel()
		if err := b.sender.Send(sendCtx, msg); err != nil {
			b.logger.Error("booking confirmation email failed",
				"appointment_id", appt.ID,
				"error", err,
			)
		}
	}()
}

// Wait blocks until queued emails finish or ctx ends.
func (b *BookingConfirmations) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *BookingConfirmations) render(appt appointments.Appointment) EmailMessage {
	when := appt.BookingDay
	if day, err := appointments.ParseDay(appt.BookingDay); err == nil {
		when = day.Format("Monday, January 2, 2006")
	}
	insurance := "None"
	if appt.HasInsurance {
		insurance = appt.InsuranceProvider
		if appt.MemberID != "" {
			insurance += " (member ID " + appt.MemberID + ")"
		}
	}

	rows := [][2]string{
		{"Date", when},
		{"Time", appt.TimeSlot},
		{"Visit type", string(appt.ReasonCategory)},
		{"Reason", appt.Reason},
		{"Insurance", insurance},
	}
	if appt.Notes != "" {
		rows = append(rows, [2]string{"Notes", appt.Notes})
	}

	var text, htmlBody strings.Builder
	fmt.Fprintf(&text, "Hi %s,\n\nYour appointment at %s is confirmed.\n\n", appt.FullName, b.clinic)
	fmt.Fprintf(&htmlBody, "<p>Hi %s,</p><p>Your appointment at %s is confirmed.</p><table>",
		html.EscapeString(appt.FullName), html.EscapeString(b.clinic))
	for _, row := range rows {
		fmt.Fprintf(&text, "%s: %s\n", row[0], row[1])
		fmt.Fprintf(&htmlBody, "<tr><td><strong>%s</strong></td><td>%s</td></tr>", row[0], html.EscapeString(row[1]))
	}
	text.WriteString("\nIf you need to reschedule, just reply to this email or give us a call.\n")
	htmlBody.WriteString("</table><p>If you need to reschedule, just reply to this email or give us a call.</p>")

	return EmailMessage{
		To:       appt.Email,
		ToName:   appt.FullName,
		Subject:  fmt.Sprintf("Your appointment on %s at %s", when, appt.TimeSlot),
		Body:     text.String(),
		HTML:     htmlBody.String(),
		Category: confirmationCategory,
	}
}
