package chatflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/AyushPatel04/dental-chatbot/internal/appointments"
	"github.com/AyushPatel04/dental-chatbot/internal/uploads"
)

// View is what a client renders after an input: the stage, its input contract,
// the messages appended by the input and the selections made so far.
type View struct {
	SessionID          string             `json:"sessionId"`
	Stage              Stage              `json:"stage"`
	Contract           UIContract         `json:"contract"`
	Messages           []Message          `json:"messages"`
	SelectedProcedures []string           `json:"selectedProcedures"`
	QuickProcedure     string             `json:"quickProcedure,omitempty"`
	QuickPlan          string             `json:"quickPlan,omitempty"`
	Insurance          InsuranceSelection `json:"insurance"`
	Draft              appointments.Draft `json:"draft"`
}

// Session is one conversation. Inputs are handled one at a time; an input that
// arrives while another is in flight is rejected with ErrSessionBusy.
type Session struct {
	id         string
	deps       Dependencies
	transcript *Transcript

	busy sync.Mutex

	// Conversation state, only touched while busy is held.
	stage          Stage
	greeted        bool
	draft          appointments.Draft
	bookedSlots    []string
	government     bool
	insurance      InsuranceSelection
	procedures     ProcedureSet
	quickProcedure string
	quickPlan      string
	pendingUser    *Message
	lateBooking    *pendingBooking

	viewMu     sync.RWMutex
	view       View
	lastActive time.Time
}

// NewSession starts a conversation at Start and appends the greeting.
func NewSession(id string, deps Dependencies) *Session {
	if deps.Appointments == nil {
		panic("chatflow: appointment store is required")
	}
	if deps.Replies == nil {
		panic("chatflow: reply service is required")
	}
	s := &Session{
		id:         id,
		deps:       deps.withDefaults(),
		transcript: NewTranscript(),
		stage:      Start,
		procedures: ProcedureSet{},
	}
	s.busy.Lock()
	defer s.busy.Unlock()
	stageTable[Start].enter(s)
	s.publish()
	return s
}

func (s *Session) ID() string { return s.id }

// Transcript returns every message of the conversation.
func (s *Session) Transcript() []Message { return s.transcript.All() }

// Snapshot returns the latest view with the full transcript.
func (s *Session) Snapshot() View {
	v := s.currentView()
	v.Messages = s.transcript.All()
	return v
}

func (s *Session) currentView() View {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.view
}

// LastActive is the time the last input finished.
func (s *Session) LastActive() time.Time {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.lastActive
}

// Handle applies one input and returns the messages it produced. Recoverable
// failures become bot messages; the error is only set for ErrSessionBusy.
func (s *Session) Handle(ctx context.Context, in Input) (View, error) {
	if !s.busy.TryLock() {
		s.deps.Metrics.ObserveRejection(s.currentView().Stage.String(), "busy")
		return View{}, ErrSessionBusy
	}
	defer s.busy.Unlock()

	mark := s.transcript.Len()
	from := s.stage
	s.pendingUser = userMessage(in)

	s.dispatch(ctx, in)

	s.flushUser()
	produced := s.transcript.Since(mark)
	s.publish()

	if s.deps.Transcripts != nil {
		s.deps.Transcripts.Log(context.WithoutCancel(ctx), Exchange{
			SessionID: s.id,
			Stage:     s.stage.String(),
			User:      produced[0],
			Replies:   produced[1:],
			At:        s.deps.Clock.Now().UTC(),
		})
	}
	s.deps.Logger.Debug("chat input handled",
		"session_id", s.id,
		"kind", string(in.Kind),
		"from", from.String(),
		"to", s.stage.String(),
	)
	view := s.currentView()
	view.Messages = produced
	return view, nil
}

func (s *Session) dispatch(ctx context.Context, in Input) {
	if isRestart(in) {
		s.reset()
		s.moveTo(Start, true)
		return
	}

	def := stageTable[s.stage]
	h, ok := def.handlerFor(in)
	if !ok {
		s.deps.Metrics.ObserveRejection(s.stage.String(), "unsupported_input")
		s.say(def.hint)
		return
	}

	next, err := h(ctx, s, in)
	if err != nil {
		s.recoverFrom(err)
		return
	}
	s.moveTo(next, false)
}

func isRestart(in Input) bool {
	switch in.Kind {
	case InputAction:
		return in.Value == ActionRestart
	case InputText:
		return in.File == nil && ClassifyAmong(in.Text, IntentRestart) == IntentRestart
	}
	return false
}

// moveTo switches stage and runs the entry prompt of the new stage.
func (s *Session) moveTo(next Stage, force bool) {
	if next == s.stage && !force {
		return
	}
	s.deps.Metrics.ObserveTransition(s.stage.String(), next.String())
	s.stage = next
	if enter := stageTable[next].enter; enter != nil {
		enter(s)
	}
}

func (s *Session) recoverFrom(err error) {
	var (
		ve *validationError
		ue *upstreamError
	)
	switch {
	case errors.Is(err, errReprompt):
		s.deps.Metrics.ObserveRejection(s.stage.String(), "unrecognized")
		s.say(stageTable[s.stage].hint)
	case errors.As(err, &ve):
		s.deps.Metrics.ObserveRejection(s.stage.String(), ve.reason)
		s.say(ve.msg)
	case errors.As(err, &ue):
		s.deps.Logger.Warn("collaborator call failed",
			"session_id", s.id,
			"stage", s.stage.String(),
			"collaborator", ue.collaborator,
			"timed_out", ue.timedOut,
			"error", ue.err,
		)
		s.say(apologyFor(ue))
	default:
		if reason, ok := uploads.IsInvalid(err); ok {
			s.deps.Metrics.ObserveRejection(s.stage.String(), "invalid_upload")
			s.say("Sorry, I can't use that file: " + reason)
			return
		}
		s.deps.Logger.Error("chat input failed", "session_id", s.id, "stage", s.stage.String(), "error", err)
		s.say("Sorry, something went wrong on our side. Please try that again.")
	}
}

func apologyFor(err *upstreamError) string {
	if err.timedOut {
		return "Sorry, that took longer than expected. Please try again."
	}
	switch err.collaborator {
	case collabReply:
		return "Sorry, I couldn't get an answer right now. Please try sending your message again."
	case collabExtraction:
		return "Sorry, I couldn't read the details on that card. Try a clearer photo, or choose to enter your details manually."
	case collabUpload:
		return "Sorry, I couldn't save your file. Please try uploading it again."
	case collabAppointments:
		return "Sorry, I couldn't reach our scheduling system. Please try again in a moment."
	default:
		return "Sorry, something went wrong on our side. Please try that again."
	}
}

const (
	collabReply        = "reply"
	collabExtraction   = "extraction"
	collabUpload       = "upload"
	collabAppointments = "appointments"
)

type callResult[T any] struct {
	value T
	err   error
}

// callCollaborator runs fn under the collaborator timeout. fn keeps running
// after the timeout and its late result is discarded here; callers that must
// not lose it record it from inside fn. Domain rejections pass through unchanged; other failures are
// wrapped as upstream errors.
func callCollaborator[T any](ctx context.Context, s *Session, name string, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, s.deps.CollaboratorTimeout)
	defer cancel()

	started := time.Now()
	done := make(chan callResult[T], 1)
	go func() {
		v, err := fn(ctx)
		done <- callResult[T]{value: v, err: err}
	}()

	var res callResult[T]
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
	}

	outcome := "ok"
	switch {
	case res.err == nil:
	case isDomainRejection(res.err):
		outcome = "rejected"
	case errors.Is(res.err, context.DeadlineExceeded):
		outcome = "timeout"
		res.err = &upstreamError{collaborator: name, timedOut: true, err: res.err}
	default:
		outcome = "error"
		res.err = &upstreamError{collaborator: name, err: res.err}
	}
	s.deps.Metrics.ObserveCollaborator(name, outcome, time.Since(started))

	if res.err != nil {
		var zero T
		return zero, res.err
	}
	return res.value, nil
}

func isDomainRejection(err error) bool {
	if _, ok := uploads.IsInvalid(err); ok {
		return true
	}
	return errors.Is(err, appointments.ErrConflict) ||
		errors.Is(err, appointments.ErrIncompleteDraft) ||
		errors.Is(err, appointments.ErrInvalidDay)
}

func userMessage(in Input) *Message {
	msg := &Message{Sender: SenderUser, ContentKind: ContentText, Render: RenderPlain}
	switch in.Kind {
	case InputText:
		msg.Content = strings.TrimSpace(in.Text)
	case InputUpload:
		msg.Content = "Uploaded a file"
	case InputToggleProcedure:
		msg.Content = "Toggled " + in.Value
	default:
		msg.Content = in.Value
	}
	if in.File != nil && in.File.Name != "" && msg.Content == "" {
		msg.Content = in.File.Name
	}
	return msg
}

// attach records a stored upload on the pending user message.
func (s *Session) attach(ref uploads.Reference) {
	if s.pendingUser == nil {
		return
	}
	s.pendingUser.Attachment = &ref
	if ref.IsImage() {
		s.pendingUser.ContentKind = ContentImage
	}
}

func (s *Session) flushUser() {
	if s.pendingUser == nil {
		return
	}
	s.transcript.Append(*s.pendingUser)
	s.pendingUser = nil
}

func (s *Session) emit(msg Message) {
	s.flushUser()
	msg.Sender = SenderBot
	s.transcript.Append(msg)
}

func (s *Session) say(text string) {
	s.emit(Message{Content: text})
}

func (s *Session) sayf(format string, args ...any) {
	s.say(fmt.Sprintf(format, args...))
}

func (s *Session) sayHTML(html string) {
	s.emit(Message{Content: html, Render: RenderHTML})
}

func (s *Session) ask(text string, c *Component) {
	s.emit(Message{Content: text, Component: c})
}

func (s *Session) reset() {
	s.draft = appointments.Draft{}
	s.bookedSlots = nil
	s.lateBooking = nil
	s.resetEstimate()
}

func (s *Session) resetEstimate() {
	s.government = false
	s.insurance = InsuranceSelection{}
	s.procedures.Clear()
	s.quickProcedure = ""
	s.quickPlan = ""
}

func (s *Session) publish() {
	v := View{
		SessionID:          s.id,
		Stage:              s.stage,
		Contract:           ContractFor(s.stage),
		SelectedProcedures: s.procedures.Sorted(),
		QuickProcedure:     s.quickProcedure,
		QuickPlan:          s.quickPlan,
		Insurance:          s.insurance,
		Draft:              s.draft,
	}
	s.viewMu.Lock()
	s.view = v
	s.lastActive = s.deps.Clock.Now()
	s.viewMu.Unlock()
}
