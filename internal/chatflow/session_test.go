package chatflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AyushPatel04/dental-chatbot/internal/appointments"
	"github.com/AyushPatel04/dental-chatbot/internal/uploads"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fakeReplies struct {
	reply string
	err   error
	block chan struct{}
	calls chan string
	image *uploads.Reference
}

func (f *fakeReplies) GenerateReply(ctx context.Context, text string, image *uploads.Reference) (string, error) {
	f.image = image
	if f.calls != nil {
		f.calls <- text
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type fakeExtractor struct {
	info CardInfo
	err  error
}

func (f *fakeExtractor) ExtractCardInfo(_ context.Context, _ uploads.Reference) (CardInfo, error) {
	return f.info, f.err
}

type fakeUploader struct {
	err    error
	stored []string
}

func (f *fakeUploader) Store(_ context.Context, filename string, _ []byte) (uploads.Reference, error) {
	if f.err != nil {
		return uploads.Reference{}, f.err
	}
	f.stored = append(f.stored, filename)
	return uploads.Reference{
		Key:      "uploads/abc.jpg",
		URL:      "/uploads/abc.jpg",
		MIMEType: "image/jpeg",
		Kind:     uploads.KindImage,
		Size:     3,
		Name:     filename,
	}, nil
}

type recordingLogger struct {
	mu        sync.Mutex
	exchanges []Exchange
}

func (r *recordingLogger) Log(_ context.Context, ex Exchange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exchanges = append(r.exchanges, ex)
}

type recordingNotifier struct {
	booked []appointments.Appointment
}

func (r *recordingNotifier) BookingConfirmed(_ context.Context, appt appointments.Appointment) {
	r.booked = append(r.booked, appt)
}

type harness struct {
	session   *Session
	store     *appointments.MemoryStore
	replies   *fakeReplies
	extractor *fakeExtractor
	uploader  *fakeUploader
	logger    *recordingLogger
	notifier  *recordingNotifier
}

func newHarness(t *testing.T, opts ...func(*Dependencies)) *harness {
	t.Helper()
	h := &harness{
		store:     appointments.NewMemoryStore(),
		replies:   &fakeReplies{reply: "Brush twice a day."},
		extractor: &fakeExtractor{},
		uploader:  &fakeUploader{},
		logger:    &recordingLogger{},
		notifier:  &recordingNotifier{},
	}
	deps := Dependencies{
		Replies:      h.replies,
		Extractor:    h.extractor,
		Uploads:      h.uploader,
		Appointments: h.store,
		Transcripts:  h.logger,
		Notifier:     h.notifier,
		Clock:        fixedClock{now: time.Date(2025, time.March, 5, 15, 0, 0, 0, time.UTC)},
		ClinicName:   "Bright Smiles Dental",
	}
	for _, opt := range opts {
		opt(&deps)
	}
	h.session = NewSession("sess-1", deps)
	return h
}

func (h *harness) send(t *testing.T, in Input) View {
	t.Helper()
	view, err := h.session.Handle(context.Background(), in)
	require.NoError(t, err)
	require.NotEmpty(t, view.Messages)
	return view
}

func lastBot(view View) Message {
	return view.Messages[len(view.Messages)-1]
}

func (h *harness) bookUntilConfirm(t *testing.T, day, slot string) View {
	t.Helper()
	h.send(t, ActionInput(ActionBook))
	h.send(t, TextInput("yes"))
	h.send(t, TextInput("Jane Doe"))
	h.send(t, TextInput("jane@example.com"))
	h.send(t, SelectInput(InputDate, day))
	h.send(t, SelectInput(InputTimeSlot, slot))
	h.send(t, ActionInput(ActionGeneral))
	h.send(t, TextInput("Checkup"))
	h.send(t, TextInput("no"))
	view := h.send(t, ActionInput(ActionSkip))
	require.Equal(t, BookingConfirm, view.Stage)
	return view
}

func TestNewSessionGreets(t *testing.T) {
	h := newHarness(t)

	snap := h.session.Snapshot()
	assert.Equal(t, Start, snap.Stage)
	require.Len(t, snap.Messages, 1)
	greeting := snap.Messages[0]
	assert.Equal(t, SenderBot, greeting.Sender)
	assert.Contains(t, greeting.Content, "Bright Smiles Dental")
	require.NotNil(t, greeting.Component)
	assert.Equal(t, ComponentButtons, greeting.Component.Kind)
	assert.Equal(t, RenderComponent, greeting.Render)
}

func TestBookingHappyPath(t *testing.T) {
	h := newHarness(t)

	view := h.send(t, ActionInput(ActionBook))
	assert.Equal(t, AwaitingReturningPatientStatus, view.Stage)
	assert.Equal(t, SenderUser, view.Messages[0].Sender)

	view = h.send(t, TextInput("yes"))
	assert.Equal(t, BookingStart, view.Stage)

	view = h.send(t, TextInput("  Jane   Doe "))
	assert.Equal(t, BookingAskEmail, view.Stage)
	assert.Contains(t, lastBot(view).Content, "Jane")
	assert.Equal(t, "Jane Doe", view.Draft.FullName)

	view = h.send(t, TextInput("jane@example.com"))
	assert.Equal(t, BookingAskDay, view.Stage)
	require.NotNil(t, lastBot(view).Component)
	assert.Equal(t, "2025-03-05", lastBot(view).Component.Min)

	view = h.send(t, SelectInput(InputDate, "2025-03-10"))
	assert.Equal(t, BookingAskTime, view.Stage)
	slots := lastBot(view).Component
	require.NotNil(t, slots)
	assert.Equal(t, ComponentTimeSlots, slots.Kind)
	assert.Len(t, slots.Options, len(DefaultTimeSlots))

	view = h.send(t, SelectInput(InputTimeSlot, "10:00 AM"))
	assert.Equal(t, BookingAskReasonCategory, view.Stage)

	view = h.send(t, ActionInput(ActionGeneral))
	assert.Equal(t, BookingAskReason, view.Stage)

	view = h.send(t, TextInput("Checkup"))
	assert.Equal(t, BookingAskHasInsurance, view.Stage)

	view = h.send(t, TextInput("no"))
	assert.Equal(t, BookingAskNotes, view.Stage)

	view = h.send(t, ActionInput(ActionSkip))
	assert.Equal(t, BookingConfirm, view.Stage)
	summary := lastBot(view).Content
	for _, want := range []string{"Jane Doe", "jane@example.com", "Monday, March 10, 2025", "10:00 AM", "General", "Checkup", "Insurance: None"} {
		assert.Contains(t, summary, want)
	}

	view = h.send(t, TextInput("yes"))
	assert.Equal(t, Start, view.Stage)
	assert.Contains(t, view.Messages[1].Content, "You're all set, Jane Doe")
	assert.Empty(t, view.Draft.FullName)

	booked, err := h.store.ListByDate(context.Background(), "2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, []string{"10:00 AM"}, booked)

	require.Len(t, h.notifier.booked, 1)
	assert.Equal(t, "jane@example.com", h.notifier.booked[0].Email)
	assert.False(t, h.notifier.booked[0].HasInsurance)
}

func TestBookingTypedConversation(t *testing.T) {
	h := newHarness(t)
	no := false
	_, err := h.store.Create(context.Background(), appointments.Draft{
		FullName: "John Roe", Email: "john@example.com", BookingDay: "2025-03-10", TimeSlot: "9:00 AM",
		ReasonCategory: appointments.ReasonGeneral, Reason: "Cleaning", HasInsurance: &no,
	})
	require.NoError(t, err)

	steps := []struct {
		in    Input
		stage Stage
		reply string
	}{
		{TextInput("book"), AwaitingReturningPatientStatus, ""},
		{TextInput("no"), AwaitingPreregDecision, ""},
		{TextInput("no"), AwaitingBookingMethod, ""},
		{TextInput("assist me"), BookingStart, ""},
		{TextInput("Jane Doe"), BookingAskEmail, "Jane"},
		{TextInput("not-an-email"), BookingAskEmail, "valid email"},
		{TextInput("jane@example.com"), BookingAskDay, ""},
		{SelectInput(InputDate, "2025-03-10"), BookingAskTime, ""},
		{SelectInput(InputTimeSlot, "10:00 AM"), BookingAskReasonCategory, ""},
		{TextInput("General"), BookingAskReason, ""},
		{TextInput("cleaning"), BookingAskHasInsurance, ""},
		{TextInput("no"), BookingAskNotes, ""},
		{TextInput("skip"), BookingConfirm, "Jane Doe"},
		{TextInput("yes"), Start, "You're all set"},
	}
	for i, step := range steps {
		view := h.send(t, step.in)
		require.Equal(t, step.stage, view.Stage, "step %d (%s %q)", i, step.in.Kind, step.in.Text+step.in.Value)

		switch step.stage {
		case BookingAskTime:
			slots := lastBot(view).Component
			require.NotNil(t, slots)
			for _, opt := range slots.Options {
				assert.Equal(t, opt.Value == "9:00 AM", opt.Disabled, opt.Value)
			}
		case BookingConfirm:
			summary := lastBot(view).Content
			for _, want := range []string{"Jane Doe", "jane@example.com", "Monday, March 10, 2025", "10:00 AM", "General", "cleaning", "Insurance: None"} {
				assert.Contains(t, summary, want)
			}
		}
		if step.reply != "" {
			found := false
			for _, msg := range view.Messages {
				if msg.Sender == SenderBot && strings.Contains(msg.Content, step.reply) {
					found = true
				}
			}
			assert.True(t, found, "step %d: no bot message containing %q", i, step.reply)
		}
	}

	booked, err := h.store.ListByDate(context.Background(), "2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, []string{"9:00 AM", "10:00 AM"}, booked)
	require.Len(t, h.notifier.booked, 1)
}

func TestBookingWithInsuranceKeepsProviderAndMemberID(t *testing.T) {
	h := newHarness(t)
	h.send(t, ActionInput(ActionBook))
	h.send(t, TextInput("yes"))
	h.send(t, TextInput("Jane Doe"))
	h.send(t, TextInput("jane@example.com"))
	h.send(t, SelectInput(InputDate, "2025-03-10"))
	h.send(t, SelectInput(InputTimeSlot, "2:00 PM"))
	h.send(t, TextInput("urgent"))
	h.send(t, TextInput("Toothache"))

	view := h.send(t, ActionInput(ActionYes))
	assert.Equal(t, BookingAskInsuranceProvider, view.Stage)

	view = h.send(t, TextInput("delta dental ppo"))
	assert.Equal(t, BookingAskMemberID, view.Stage)
	assert.Equal(t, "Delta Dental", view.Draft.InsuranceProvider)

	view = h.send(t, TextInput("DD-42"))
	assert.Equal(t, BookingAskNotes, view.Stage)

	view = h.send(t, TextInput("Sensitive to cold"))
	assert.Equal(t, BookingConfirm, view.Stage)
	assert.Contains(t, lastBot(view).Content, "Member ID: DD-42")

	view = h.send(t, ActionInput(ActionConfirm))
	assert.Equal(t, Start, view.Stage)
	require.Len(t, h.notifier.booked, 1)
	appt := h.notifier.booked[0]
	assert.Equal(t, appointments.ReasonUrgent, appt.ReasonCategory)
	assert.Equal(t, "Delta Dental", appt.InsuranceProvider)
	assert.Equal(t, "DD-42", appt.MemberID)
	assert.Equal(t, "Sensitive to cold", appt.Notes)
}

func TestBookingConflictReturnsToTimeSelection(t *testing.T) {
	h := newHarness(t)
	h.bookUntilConfirm(t, "2025-03-10", "10:00 AM")

	no := false
	_, err := h.store.Create(context.Background(), appointments.Draft{
		FullName: "John Roe", Email: "john@example.com", BookingDay: "2025-03-10", TimeSlot: "10:00 AM",
		ReasonCategory: appointments.ReasonGeneral, Reason: "Cleaning", HasInsurance: &no,
	})
	require.NoError(t, err)

	view := h.send(t, TextInput("yes"))
	assert.Equal(t, BookingAskTime, view.Stage)
	assert.Contains(t, view.Messages[1].Content, "just booked")
	assert.Empty(t, view.Draft.TimeSlot)
	assert.Equal(t, "Jane Doe", view.Draft.FullName)

	slots := lastBot(view).Component
	require.NotNil(t, slots)
	for _, opt := range slots.Options {
		assert.Equal(t, opt.Value == "10:00 AM", opt.Disabled, opt.Value)
	}
	assert.Empty(t, h.notifier.booked)

	view = h.send(t, SelectInput(InputTimeSlot, "10:00 AM"))
	assert.Equal(t, BookingAskTime, view.Stage)
	assert.Contains(t, lastBot(view).Content, "already booked")
}

func TestBookingCancelStartsOver(t *testing.T) {
	h := newHarness(t)
	h.bookUntilConfirm(t, "2025-03-10", "9:00 AM")

	view := h.send(t, ActionInput(ActionCancel))
	assert.Equal(t, BookingStart, view.Stage)
	assert.Empty(t, view.Draft.Email)
	assert.Empty(t, h.notifier.booked)
}

func TestBookingDayValidation(t *testing.T) {
	h := newHarness(t)
	h.send(t, ActionInput(ActionBook))
	h.send(t, TextInput("yes"))
	h.send(t, TextInput("Jane Doe"))

	view := h.send(t, TextInput("not-an-email"))
	assert.Equal(t, BookingAskEmail, view.Stage)
	assert.Contains(t, lastBot(view).Content, "valid email")

	h.send(t, TextInput("jane@example.com"))

	view = h.send(t, TextInput("tomorrow please"))
	assert.Equal(t, BookingAskDay, view.Stage)
	assert.Equal(t, "Please pick a date from the calendar.", lastBot(view).Content)

	view = h.send(t, SelectInput(InputDate, "2025-03-01"))
	assert.Equal(t, BookingAskDay, view.Stage)
	assert.Contains(t, lastBot(view).Content, "already passed")

	view = h.send(t, SelectInput(InputDate, "03/10/2025"))
	assert.Equal(t, BookingAskDay, view.Stage)

	view = h.send(t, SelectInput(InputDate, "2025-03-05"))
	assert.Equal(t, BookingAskTime, view.Stage)

	view = h.send(t, SelectInput(InputTimeSlot, "6:30 PM"))
	assert.Equal(t, BookingAskTime, view.Stage)
	assert.Contains(t, lastBot(view).Content, "listed times")

	view = h.send(t, ActionInput(ActionChangeDay))
	assert.Equal(t, BookingAskDay, view.Stage)
	assert.Empty(t, view.Draft.BookingDay)
}

func TestNameLengthIsBounded(t *testing.T) {
	h := newHarness(t)
	h.send(t, ActionInput(ActionBook))
	h.send(t, TextInput("yes"))

	long := make([]byte, maxNameRunes+1)
	for i := range long {
		long[i] = 'a'
	}
	view := h.send(t, TextInput(string(long)))
	assert.Equal(t, BookingStart, view.Stage)
	assert.Contains(t, lastBot(view).Content, "too long")
}

func TestNewPatientGetsPreregistrationAndOnlineLinks(t *testing.T) {
	h := newHarness(t, func(d *Dependencies) {
		d.PreregistrationURL = "https://example.com/prereg"
		d.OnlineBookingURL = "https://example.com/book"
	})
	h.send(t, ActionInput(ActionBook))

	view := h.send(t, TextInput("no"))
	assert.Equal(t, AwaitingPreregDecision, view.Stage)

	view = h.send(t, TextInput("yes"))
	assert.Equal(t, AwaitingBookingMethod, view.Stage)
	assert.Equal(t, RenderHTML, view.Messages[1].Render)
	assert.Contains(t, view.Messages[1].Content, "https://example.com/prereg")

	view = h.send(t, TextInput("I'll do it online"))
	assert.Equal(t, Start, view.Stage)
	assert.Contains(t, view.Messages[1].Content, "https://example.com/book")
}

func TestYesNoStagesRepromptOnLooseAnswers(t *testing.T) {
	h := newHarness(t)
	h.send(t, ActionInput(ActionBook))

	view := h.send(t, TextInput("yes please"))
	assert.Equal(t, AwaitingReturningPatientStatus, view.Stage)
	assert.Equal(t, stageTable[AwaitingReturningPatientStatus].hint, lastBot(view).Content)
}

func TestInsuranceEstimateWithGovernmentPlan(t *testing.T) {
	h := newHarness(t)

	view := h.send(t, ActionInput(ActionEstimate))
	assert.Equal(t, AwaitingMedicareDecision, view.Stage)

	view = h.send(t, TextInput("yes"))
	assert.Equal(t, ChooseInsurancePath, view.Stage)

	view = h.send(t, ActionInput(ActionFull))
	assert.Equal(t, AwaitingUploadOrManual, view.Stage)

	view = h.send(t, ActionInput(ActionManual))
	assert.Equal(t, AwaitingProviderSelection, view.Stage)
	plans := lastBot(view).Component
	require.NotNil(t, plans)
	var values []string
	for _, opt := range plans.Options {
		values = append(values, opt.Value)
	}
	assert.ElementsMatch(t, []string{"Medicare", "Medicaid"}, values)

	view = h.send(t, SelectInput(InputPlan, "Aetna"))
	assert.Equal(t, AwaitingProviderSelection, view.Stage)
	assert.Contains(t, lastBot(view).Content, "Medicare or Medicaid")

	view = h.send(t, SelectInput(InputPlan, "Medicare"))
	assert.Equal(t, AwaitingMemberID, view.Stage)

	view = h.send(t, TextInput("skip"))
	assert.Equal(t, SelectingMultipleProcedures, view.Stage)
	assert.Empty(t, view.Insurance.MemberID)

	view = h.send(t, ActionInput(ActionCalculate))
	assert.Equal(t, SelectingMultipleProcedures, view.Stage)
	assert.Contains(t, lastBot(view).Content, "at least one procedure")

	view = h.send(t, SelectInput(InputToggleProcedure, "Routine Cleaning"))
	assert.Equal(t, []string{"Routine Cleaning"}, view.SelectedProcedures)
	assert.Equal(t, "Toggled Routine Cleaning", view.Messages[0].Content)

	view = h.send(t, ActionInput(ActionCalculate))
	assert.Equal(t, Start, view.Stage)
	result := view.Messages[1].Content
	assert.Contains(t, result, "$85.00")
	assert.NotContains(t, result, "upfront")
	assert.NotContains(t, result, "reimburse")
	assert.Empty(t, view.SelectedProcedures)
}

func TestInsuranceEstimateOtherProvider(t *testing.T) {
	h := newHarness(t)
	h.send(t, ActionInput(ActionEstimate))
	h.send(t, TextInput("no"))
	h.send(t, ActionInput(ActionFull))
	h.send(t, ActionInput(ActionManual))

	view := h.send(t, SelectInput(InputPlan, "Other"))
	assert.Equal(t, AwaitingOtherProviderName, view.Stage)

	view = h.send(t, TextInput("Acme Dental Trust"))
	assert.Equal(t, AwaitingMemberID, view.Stage)
	assert.True(t, view.Insurance.IsOtherProvider)

	h.send(t, TextInput("A-1"))
	h.send(t, SelectInput(InputToggleProcedure, "Filling"))
	view = h.send(t, ActionInput(ActionCalculate))
	assert.Equal(t, Start, view.Stage)
	assert.Contains(t, view.Messages[1].Content, "$200.00")
	assert.Contains(t, view.Messages[1].Content, "Acme Dental Trust")
}

func TestToggleTwiceDeselects(t *testing.T) {
	h := newHarness(t)
	h.send(t, ActionInput(ActionEstimate))
	h.send(t, TextInput("no"))
	h.send(t, ActionInput(ActionFull))
	h.send(t, ActionInput(ActionManual))
	view := h.send(t, SelectInput(InputPlan, "No Insurance"))
	require.Equal(t, SelectingMultipleProcedures, view.Stage)

	h.send(t, SelectInput(InputToggleProcedure, "Crown"))
	view = h.send(t, SelectInput(InputToggleProcedure, "crown"))
	assert.Empty(t, view.SelectedProcedures)

	view = h.send(t, SelectInput(InputToggleProcedure, "Teeth Whitening Deluxe"))
	assert.Contains(t, lastBot(view).Content, "don't have a price")
}

func TestQuickEstimateRequiresBothSelections(t *testing.T) {
	h := newHarness(t)
	h.send(t, ActionInput(ActionEstimate))
	h.send(t, TextInput("no"))

	view := h.send(t, TextInput("just a quick estimate"))
	assert.Equal(t, EstimateOnly, view.Stage)
	require.Len(t, view.Messages, 3)

	view = h.send(t, ActionInput(ActionCalculate))
	assert.Equal(t, EstimateOnly, view.Stage)
	assert.Contains(t, lastBot(view).Content, "procedure and a plan")

	h.send(t, SelectInput(InputProcedure, "Routine Cleaning"))
	view = h.send(t, ActionInput(ActionCalculate))
	assert.Contains(t, lastBot(view).Content, "choose a plan")

	view = h.send(t, SelectInput(InputPlan, "delta dental"))
	assert.Equal(t, "Delta Dental", view.QuickPlan)

	view = h.send(t, ActionInput(ActionCalculate))
	assert.Equal(t, Start, view.Stage)
	result := view.Messages[1].Content
	assert.Contains(t, result, "$120.00")
	assert.Contains(t, result, "$60.00")
	assert.Empty(t, view.QuickProcedure)
}

func TestGovernmentQuickEstimateRejectsPrivatePlans(t *testing.T) {
	h := newHarness(t)
	h.send(t, ActionInput(ActionEstimate))
	h.send(t, TextInput("yes"))

	view := h.send(t, ActionInput(ActionQuick))
	assert.Equal(t, MedicaidQuickEstimate, view.Stage)
	require.NotNil(t, lastBot(view).Component)
	assert.Equal(t, ComponentGovernmentPlanToggle, lastBot(view).Component.Kind)

	view = h.send(t, SelectInput(InputPlan, "Aetna"))
	assert.Equal(t, MedicaidQuickEstimate, view.Stage)
	assert.Empty(t, view.QuickPlan)

	h.send(t, SelectInput(InputPlan, "Medicaid"))
	h.send(t, SelectInput(InputProcedure, "X-Rays"))
	view = h.send(t, ActionInput(ActionCalculate))
	assert.Equal(t, Start, view.Stage)
	assert.Contains(t, view.Messages[1].Content, "$35.00")
}

func TestCardUploadFlow(t *testing.T) {
	h := newHarness(t)
	h.extractor.info = CardInfo{Provider: "DELTA DENTAL PPO", MemberID: " XY-991 ", MemberName: "Jane Doe"}
	h.send(t, ActionInput(ActionEstimate))
	h.send(t, TextInput("no"))
	h.send(t, ActionInput(ActionFull))

	view := h.send(t, Input{Kind: InputUpload, File: &FileInput{Name: "card.jpg", Data: []byte{0xff, 0xd8, 0xff}}})
	assert.Equal(t, ConfirmingPhotoDetails, view.Stage)
	assert.Equal(t, []string{"card.jpg"}, h.uploader.stored)

	user := view.Messages[0]
	require.NotNil(t, user.Attachment)
	assert.Equal(t, ContentImage, user.ContentKind)
	assert.Equal(t, "Delta Dental", view.Insurance.Provider)
	assert.Equal(t, "XY-991", view.Insurance.MemberID)
	assert.Contains(t, lastBot(view).Content, "XY-991")

	view = h.send(t, TextInput("yes"))
	assert.Equal(t, SelectingMultipleProcedures, view.Stage)
	assert.Equal(t, "Delta Dental", view.Insurance.Provider)
}

func TestCardDetailsRejectedFallsBackToManual(t *testing.T) {
	h := newHarness(t)
	h.extractor.info = CardInfo{Provider: "Cigna"}
	h.send(t, ActionInput(ActionEstimate))
	h.send(t, TextInput("no"))
	h.send(t, ActionInput(ActionFull))
	h.send(t, Input{Kind: InputUpload, File: &FileInput{Name: "card.png", Data: []byte("png")}})

	view := h.send(t, TextInput("no"))
	assert.Equal(t, AwaitingProviderSelection, view.Stage)
	assert.Empty(t, view.Insurance.Provider)
}

func TestCardExtractionFailureStaysInStage(t *testing.T) {
	h := newHarness(t)
	h.extractor.err = errors.New("model unavailable")
	h.send(t, ActionInput(ActionEstimate))
	h.send(t, TextInput("no"))
	h.send(t, ActionInput(ActionFull))

	view := h.send(t, Input{Kind: InputUpload, File: &FileInput{Name: "card.jpg", Data: []byte("jpg")}})
	assert.Equal(t, AwaitingUploadOrManual, view.Stage)
	assert.Contains(t, lastBot(view).Content, "couldn't read")
}

func TestInvalidUploadIsExplained(t *testing.T) {
	h := newHarness(t)
	h.uploader.err = &uploads.InvalidUploadError{Reason: "files must be under 5 MB"}
	h.send(t, ActionInput(ActionEstimate))
	h.send(t, TextInput("no"))
	h.send(t, ActionInput(ActionFull))

	view := h.send(t, Input{Kind: InputUpload, File: &FileInput{Name: "huge.jpg", Data: []byte("jpg")}})
	assert.Equal(t, AwaitingUploadOrManual, view.Stage)
	assert.Equal(t, "Sorry, I can't use that file: files must be under 5 MB", lastBot(view).Content)
	assert.Nil(t, view.Messages[0].Attachment)
}

func TestFreeTextGoesToReplyService(t *testing.T) {
	h := newHarness(t)

	view := h.send(t, TextInput("How often should I brush?"))
	assert.Equal(t, Start, view.Stage)
	require.Len(t, view.Messages, 2)
	assert.Equal(t, "How often should I brush?", view.Messages[0].Content)
	assert.Equal(t, "Brush twice a day.", view.Messages[1].Content)
	assert.Nil(t, h.replies.image)

	view = h.send(t, Input{Kind: InputText, Text: "What is this spot?", File: &FileInput{Name: "tooth.jpg", Data: []byte("jpg")}})
	require.NotNil(t, h.replies.image)
	assert.Equal(t, "uploads/abc.jpg", h.replies.image.Key)
	assert.NotNil(t, view.Messages[0].Attachment)
}

func TestStartTextRoutesBookingAndEstimates(t *testing.T) {
	h := newHarness(t)
	view := h.send(t, TextInput("I'd like to book an appointment"))
	assert.Equal(t, AwaitingReturningPatientStatus, view.Stage)

	h.send(t, TextInput("restart"))
	view = h.send(t, TextInput("how much does a crown cost?"))
	assert.Equal(t, AwaitingMedicareDecision, view.Stage)
}

func TestReplyFailureApologizesAndStays(t *testing.T) {
	h := newHarness(t)
	h.replies.err = errors.New("provider down")

	view := h.send(t, TextInput("Do you take walk-ins?"))
	assert.Equal(t, Start, view.Stage)
	assert.Contains(t, lastBot(view).Content, "couldn't get an answer")
}

func TestReplyTimeoutApologizes(t *testing.T) {
	h := newHarness(t, func(d *Dependencies) { d.CollaboratorTimeout = 20 * time.Millisecond })
	h.replies.block = make(chan struct{})

	view := h.send(t, TextInput("Do you take walk-ins?"))
	assert.Equal(t, Start, view.Stage)
	assert.Contains(t, lastBot(view).Content, "took longer")
	close(h.replies.block)
}

// slowCommitStore writes through to the memory store but holds the response
// of the first Create until release is closed.
type slowCommitStore struct {
	*appointments.MemoryStore
	release chan struct{}
	calls   atomic.Int32
}

func (s *slowCommitStore) Create(ctx context.Context, draft appointments.Draft) (*appointments.Appointment, error) {
	appt, err := s.MemoryStore.Create(ctx, draft)
	if s.calls.Add(1) == 1 {
		<-s.release
	}
	return appt, err
}

func TestBookingTimeoutThenRetryKeepsLateBooking(t *testing.T) {
	store := &slowCommitStore{MemoryStore: appointments.NewMemoryStore(), release: make(chan struct{})}
	h := newHarness(t, func(d *Dependencies) {
		d.Appointments = store
		d.CollaboratorTimeout = 50 * time.Millisecond
	})
	h.bookUntilConfirm(t, "2025-03-10", "10:00 AM")

	view := h.send(t, TextInput("yes"))
	assert.Equal(t, BookingConfirm, view.Stage)
	assert.Contains(t, lastBot(view).Content, "took longer")
	assert.Empty(t, h.notifier.booked)

	close(store.release)
	view = h.send(t, TextInput("yes"))
	assert.Equal(t, Start, view.Stage)
	assert.Contains(t, view.Messages[1].Content, "You're all set, Jane Doe")
	assert.NotContains(t, view.Messages[1].Content, "just booked")
	require.Len(t, h.notifier.booked, 1)

	all, err := store.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, all[0].ID, h.notifier.booked[0].ID)
}

func TestBusySessionRejectsConcurrentInput(t *testing.T) {
	h := newHarness(t)
	h.replies.block = make(chan struct{})
	h.replies.calls = make(chan string, 1)

	done := make(chan error, 1)
	go func() {
		_, err := h.session.Handle(context.Background(), TextInput("first question"))
		done <- err
	}()
	<-h.replies.calls

	_, err := h.session.Handle(context.Background(), TextInput("second question"))
	assert.ErrorIs(t, err, ErrSessionBusy)

	close(h.replies.block)
	require.NoError(t, <-done)

	for _, msg := range h.session.Transcript() {
		assert.NotEqual(t, "second question", msg.Content)
	}
}

func TestRestartClearsProgress(t *testing.T) {
	h := newHarness(t)
	h.send(t, ActionInput(ActionBook))
	h.send(t, TextInput("yes"))
	h.send(t, TextInput("Jane Doe"))

	view := h.send(t, TextInput("start over"))
	assert.Equal(t, Start, view.Stage)
	assert.Empty(t, view.Draft.FullName)
	assert.Contains(t, lastBot(view).Content, "anything else")

	view = h.send(t, ActionInput(ActionRestart))
	assert.Equal(t, Start, view.Stage)
}

func TestUnsupportedInputKindRepeatsHint(t *testing.T) {
	h := newHarness(t)

	view := h.send(t, SelectInput(InputTimeSlot, "10:00 AM"))
	assert.Equal(t, Start, view.Stage)
	assert.Equal(t, stageTable[Start].hint, lastBot(view).Content)

	view = h.send(t, ActionInput(ActionCalculate))
	assert.Equal(t, Start, view.Stage)
}

func TestExchangesAreLogged(t *testing.T) {
	h := newHarness(t)
	h.send(t, ActionInput(ActionBook))
	h.send(t, TextInput("yes"))

	require.Len(t, h.logger.exchanges, 2)
	ex := h.logger.exchanges[1]
	assert.Equal(t, "sess-1", ex.SessionID)
	assert.Equal(t, "BookingStart", ex.Stage)
	assert.Equal(t, "yes", ex.User.Content)
	require.NotEmpty(t, ex.Replies)
	assert.Equal(t, SenderBot, ex.Replies[0].Sender)
}

func TestContractFor(t *testing.T) {
	c := ContractFor(BookingAskTime)
	assert.ElementsMatch(t, []InputKind{InputTimeSlot, InputAction}, c.Accepts)
	assert.Equal(t, []string{ActionChangeDay, ActionRestart}, c.Actions)
	assert.False(t, c.TextEscapeHatch)

	c = ContractFor(BookingAskInsuranceProvider)
	assert.Contains(t, c.Accepts, InputPlan)
	assert.Contains(t, c.Accepts, InputText)
	assert.True(t, c.TextEscapeHatch)

	c = ContractFor(BookingStart)
	assert.Equal(t, []InputKind{InputText, InputAction}, c.Accepts)
	assert.Equal(t, []string{ActionRestart}, c.Actions)

	for stage := Start; stage <= MedicaidQuickEstimate; stage++ {
		def, ok := stageTable[stage]
		require.True(t, ok, stage.String())
		assert.NotNil(t, def.enter, stage.String())
		assert.NotEmpty(t, def.hint, stage.String())
	}
}
