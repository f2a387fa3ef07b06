package chatflow

import (
	"context"
	"errors"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/AyushPatel04/dental-chatbot/internal/appointments"
	"github.com/AyushPatel04/dental-chatbot/internal/pricing"
	"github.com/AyushPatel04/dental-chatbot/internal/uploads"
)

const (
	maxNameRunes   = 120
	maxReasonRunes = 1000
)

// stageTable is the whole dialogue: for every stage, the inputs it accepts,
// the handler each input kind runs, and the prompt shown on entry.
var stageTable map[Stage]stageDef

func init() {
	yesNoActions := []string{ActionYes, ActionNo}
	stageTable = map[Stage]stageDef{
		Start: {
			accepts: map[InputKind]handler{InputText: handleStartText, InputAction: handleStartAction},
			actions: []string{ActionBook, ActionEstimate},
			enter:   enterStart,
			hint:    "You can book an appointment, get a cost estimate, or ask me a question.",
		},
		AwaitingReturningPatientStatus: {
			accepts: yesNo(answerReturningPatient),
			actions: yesNoActions,
			enter:   promptYesNo("Are you a returning patient?"),
			hint:    "Please answer yes or no: are you a returning patient?",
		},
		AwaitingPreregDecision: {
			accepts: yesNo(answerPrereg),
			actions: yesNoActions,
			enter:   promptYesNo("Would you like to pre-register as a new patient? It saves time at your first visit."),
			hint:    "Please answer yes or no: would you like to pre-register?",
		},
		AwaitingBookingMethod: {
			accepts: map[InputKind]handler{InputText: handleBookingMethod, InputAction: handleBookingMethod},
			actions: []string{ActionAssist, ActionOnline},
			enter:   enterBookingMethod,
			hint:    "Would you like me to book for you here, or would you rather book online?",
		},
		BookingStart: {
			accepts: map[InputKind]handler{InputText: handleFullName},
			enter:   prompt("Let's get you booked. What is your full name?"),
			hint:    "Please type your full name.",
		},
		BookingAskEmail: {
			accepts: map[InputKind]handler{InputText: handleEmail},
			enter:   enterAskEmail,
			hint:    "Please type your email address.",
		},
		BookingAskDay: {
			accepts: map[InputKind]handler{InputDate: handleBookingDay},
			enter:   enterAskDay,
			hint:    "Please pick a date from the calendar.",
		},
		BookingAskTime: {
			accepts: map[InputKind]handler{InputTimeSlot: handleTimeSlot, InputAction: handleChangeDay},
			actions: []string{ActionChangeDay},
			enter:   enterAskTime,
			hint:    "Please pick one of the available time slots, or choose a different day.",
		},
		BookingAskReasonCategory: {
			accepts: map[InputKind]handler{InputText: handleReasonCategory, InputAction: handleReasonCategory},
			actions: []string{ActionUrgent, ActionGeneral},
			enter:   enterReasonCategory,
			hint:    "Please choose Urgent or General.",
		},
		BookingAskReason: {
			accepts: map[InputKind]handler{InputText: handleReason},
			enter:   prompt("Briefly, what is the reason for your visit?"),
			hint:    "Please describe the reason for your visit.",
		},
		BookingAskHasInsurance: {
			accepts: yesNo(answerHasInsurance),
			actions: yesNoActions,
			enter:   promptYesNo("Do you have dental insurance?"),
			hint:    "Please answer yes or no: do you have dental insurance?",
		},
		BookingAskInsuranceProvider: {
			accepts: map[InputKind]handler{InputPlan: handleBookingProvider, InputText: handleBookingProvider},
			enter:   enterBookingProvider,
			hint:    "Please choose your insurance provider from the list or type its name.",
		},
		BookingAskMemberID: {
			accepts: map[InputKind]handler{InputText: handleBookingMemberID},
			enter:   prompt("What is your member ID? Type skip if you don't have it handy."),
			hint:    "Please type your member ID, or skip.",
		},
		BookingAskNotes: {
			accepts: map[InputKind]handler{InputText: handleNotes, InputAction: handleNotes},
			actions: []string{ActionSkip},
			enter:   enterNotes,
			hint:    "Type any notes for the dental team, or skip.",
		},
		BookingConfirm: {
			accepts: map[InputKind]handler{InputText: handleConfirm, InputAction: handleConfirm},
			actions: []string{ActionConfirm, ActionCancel},
			enter:   enterConfirm,
			hint:    "Please reply yes to confirm this appointment, or no to start over.",
		},
		AwaitingMedicareDecision: {
			accepts: yesNo(answerGovernmentPlan),
			actions: yesNoActions,
			enter:   promptYesNo("Are you covered by Medicare or Medicaid?"),
			hint:    "Please answer yes or no: are you covered by Medicare or Medicaid?",
		},
		ChooseInsurancePath: {
			accepts: map[InputKind]handler{InputText: handleEstimatePath, InputAction: handleEstimatePath},
			actions: []string{ActionQuick, ActionFull},
			enter:   enterEstimatePath,
			hint:    "Would you like a quick estimate or a full estimate using your insurance details?",
		},
		AwaitingUploadOrManual: {
			accepts: map[InputKind]handler{InputUpload: handleCardUpload, InputText: handleManualChoice, InputAction: handleManualChoice},
			actions: []string{ActionManual},
			enter:   enterUploadOrManual,
			hint:    "Please upload a photo of your insurance card, or choose to enter your details manually.",
		},
		ConfirmingPhotoDetails: {
			accepts: yesNo(answerPhotoDetails),
			actions: yesNoActions,
			enter:   enterPhotoDetails,
			hint:    "Please answer yes or no: are these card details correct?",
		},
		AwaitingProviderSelection: {
			accepts: map[InputKind]handler{InputPlan: handleProviderSelection, InputText: handleProviderSelection},
			enter:   enterProviderSelection,
			hint:    "Please choose your insurance provider.",
		},
		AwaitingOtherProviderName: {
			accepts: map[InputKind]handler{InputText: handleOtherProviderName},
			enter:   prompt("What is the name of your insurance provider?"),
			hint:    "Please type the name of your insurance provider.",
		},
		AwaitingMemberID: {
			accepts: map[InputKind]handler{InputText: handleEstimateMemberID},
			enter:   prompt("What is your member ID? Type skip to leave it blank."),
			hint:    "Please type your member ID, or skip.",
		},
		SelectingMultipleProcedures: {
			accepts: map[InputKind]handler{InputToggleProcedure: handleToggleProcedure, InputAction: handleCalculateMultiple},
			actions: []string{ActionCalculate},
			enter:   enterProcedureSelection,
			hint:    "Tap the procedures you want priced, then tap Calculate.",
		},
		EstimateOnly: {
			accepts: map[InputKind]handler{InputProcedure: handleQuickProcedure, InputPlan: handleQuickPlan, InputAction: handleQuickCalculate},
			actions: []string{ActionCalculate},
			enter:   enterQuickEstimate,
			hint:    "Choose a procedure and a plan from the lists, then tap Calculate.",
		},
		MedicaidQuickEstimate: {
			accepts: map[InputKind]handler{InputProcedure: handleQuickProcedure, InputPlan: handleQuickPlan, InputAction: handleQuickCalculate},
			actions: []string{ActionCalculate},
			enter:   enterGovernmentQuickEstimate,
			hint:    "Choose a procedure and Medicare or Medicaid, then tap Calculate.",
		},
	}
}

// Prompts.

func prompt(text string) func(*Session) {
	return func(s *Session) { s.say(text) }
}

func promptYesNo(text string) func(*Session) {
	return func(s *Session) { s.ask(text, buttons(yesNoButtons...)) }
}

func enterStart(s *Session) {
	text := "Is there anything else I can help you with?"
	if !s.greeted {
		s.greeted = true
		text = "Hi! Welcome to " + s.deps.ClinicName + ". I can help you book an appointment, estimate the cost of a procedure, or answer questions about dental care."
	}
	s.ask(text, buttons(option(ActionBook, "Book an appointment"), option(ActionEstimate, "Get a cost estimate")))
}

func enterBookingMethod(s *Session) {
	s.ask("Would you like me to book your appointment here in the chat, or would you rather book online yourself?",
		buttons(option(ActionAssist, "Book with the assistant"), option(ActionOnline, "Book online myself")))
}

func enterAskEmail(s *Session) {
	first := strings.Fields(s.draft.FullName)
	name := "there"
	if len(first) > 0 {
		name = first[0]
	}
	s.sayf("Thanks, %s! What email address should we send your confirmation to?", name)
}

func enterAskDay(s *Session) {
	s.ask("Which day would you like to come in?", &Component{
		Kind: ComponentDatePicker,
		Min:  s.today(),
	})
}

func enterAskTime(s *Session) {
	opts := make([]Option, 0, len(s.deps.TimeSlots))
	free := 0
	for _, slot := range s.deps.TimeSlots {
		taken := s.slotBooked(slot)
		if !taken {
			free++
		}
		opts = append(opts, Option{Value: slot, Label: slot, Disabled: taken})
	}
	text := "Here are the available times on " + displayDay(s.draft.BookingDay) + ":"
	if free == 0 {
		text = "Every time on " + displayDay(s.draft.BookingDay) + " is booked. Please choose a different day."
	}
	s.ask(text, &Component{
		Kind:    ComponentTimeSlots,
		Options: opts,
		Actions: []Option{option(ActionChangeDay, "Choose a different day")},
	})
}

func enterReasonCategory(s *Session) {
	s.ask("Is this an urgent visit or a general visit?",
		buttons(option(ActionUrgent, "Urgent"), option(ActionGeneral, "General")))
}

func enterBookingProvider(s *Session) {
	s.ask("Who is your insurance provider?", &Component{Kind: ComponentPlanSelect, Options: s.providerOptions(false)})
}

func enterNotes(s *Session) {
	s.ask("Is there anything else you'd like the dental team to know? Type your notes, or skip.",
		buttons(option(ActionSkip, "Skip")))
}

func enterConfirm(s *Session) {
	d := s.draft
	var b strings.Builder
	b.WriteString("Please confirm your appointment details:\n")
	b.WriteString("Name: " + d.FullName + "\n")
	b.WriteString("Email: " + d.Email + "\n")
	b.WriteString("Date: " + displayDay(d.BookingDay) + "\n")
	b.WriteString("Time: " + d.TimeSlot + "\n")
	b.WriteString("Visit type: " + string(d.ReasonCategory) + "\n")
	b.WriteString("Reason: " + d.Reason + "\n")
	switch {
	case d.Insured():
		b.WriteString("Insurance: " + d.InsuranceProvider + "\n")
		b.WriteString("Member ID: " + valueOr(d.MemberID, "Not provided") + "\n")
	default:
		b.WriteString("Insurance: None\n")
	}
	b.WriteString("Notes: " + valueOr(d.Notes, "None") + "\n")
	b.WriteString("Is everything correct?")
	s.ask(b.String(), buttons(option(ActionConfirm, "Confirm"), option(ActionCancel, "Start over")))
}

func enterEstimatePath(s *Session) {
	s.ask("Would you like a quick estimate for a single procedure, or a full estimate using your insurance details?",
		buttons(option(ActionQuick, "Quick estimate"), option(ActionFull, "Full estimate")))
}

func enterUploadOrManual(s *Session) {
	s.ask("You can upload a photo of your insurance card and I'll read the details, or enter them manually.", &Component{
		Kind:    ComponentUpload,
		Actions: []Option{option(ActionManual, "Enter manually")},
	})
}

func enterPhotoDetails(s *Session) {
	ins := s.insurance
	var b strings.Builder
	b.WriteString("Here's what I found on your card:\n")
	b.WriteString("Provider: " + valueOr(ins.Provider, "Not found") + "\n")
	b.WriteString("Member name: " + valueOr(ins.MemberName, "Not found") + "\n")
	b.WriteString("Member ID: " + valueOr(ins.MemberID, "Not found") + "\n")
	b.WriteString("Is this correct?")
	s.ask(b.String(), buttons(yesNoButtons...))
}

func enterProviderSelection(s *Session) {
	text := "Please select your insurance provider."
	if s.government {
		text = "Please select your plan: Medicare or Medicaid."
	}
	s.ask(text, &Component{Kind: ComponentPlanSelect, Options: s.providerOptions(s.government)})
}

func enterProcedureSelection(s *Session) {
	procs := s.deps.Engine.Table().Procedures()
	opts := make([]Option, 0, len(procs))
	for _, p := range procs {
		opts = append(opts, Option{Value: p, Label: p, Selected: s.procedures.Contains(p)})
	}
	s.ask("Select the procedures you'd like an estimate for, then tap Calculate.", &Component{
		Kind:    ComponentProcedureMultiSelect,
		Options: opts,
		Actions: []Option{option(ActionCalculate, "Calculate")},
	})
}

func enterQuickEstimate(s *Session) {
	s.ask("Choose a procedure:", &Component{Kind: ComponentProcedureSelect, Options: s.procedureOptions()})
	s.ask("Choose your insurance plan, then tap Calculate:", &Component{
		Kind:    ComponentPlanSelect,
		Options: s.providerOptions(false),
		Actions: []Option{option(ActionCalculate, "Calculate")},
	})
}

func enterGovernmentQuickEstimate(s *Session) {
	s.ask("Choose a procedure:", &Component{Kind: ComponentProcedureSelect, Options: s.procedureOptions()})
	s.ask("Choose Medicare or Medicaid, then tap Calculate:", &Component{
		Kind:    ComponentGovernmentPlanToggle,
		Options: []Option{option(pricing.PlanMedicare, pricing.PlanMedicare), option(pricing.PlanMedicaid, pricing.PlanMedicaid)},
		Actions: []Option{option(ActionCalculate, "Calculate")},
	})
}

// Handlers.

// yesNo accepts yes/no buttons and typed answers. Anything else re-prompts.
func yesNo(answer func(ctx context.Context, s *Session, yes bool) (Stage, error)) map[InputKind]handler {
	h := func(ctx context.Context, s *Session, in Input) (Stage, error) {
		if in.Kind == InputAction {
			return answer(ctx, s, in.Value == ActionYes)
		}
		switch ClassifyAmong(in.Text, IntentAffirm, IntentDeny) {
		case IntentAffirm:
			return answer(ctx, s, true)
		case IntentDeny:
			return answer(ctx, s, false)
		}
		return s.stage, errReprompt
	}
	return map[InputKind]handler{InputText: h, InputAction: h}
}

func handleStartAction(ctx context.Context, s *Session, in Input) (Stage, error) {
	if in.Value == ActionBook {
		return AwaitingReturningPatientStatus, nil
	}
	return AwaitingMedicareDecision, nil
}

// handleStartText routes booking and estimate requests and forwards any other
// text, with an optional attached image, to the reply service.
func handleStartText(ctx context.Context, s *Session, in Input) (Stage, error) {
	if in.File == nil {
		switch ClassifyAmong(in.Text, IntentBook, IntentEstimate) {
		case IntentBook:
			return AwaitingReturningPatientStatus, nil
		case IntentEstimate:
			return AwaitingMedicareDecision, nil
		}
	}

	var image *uploads.Reference
	if in.File != nil {
		ref, err := s.storeUpload(ctx, in.File)
		if err != nil {
			return Start, err
		}
		image = &ref
	}
	text := strings.TrimSpace(in.Text)
	if text == "" && image == nil {
		return Start, errReprompt
	}

	reply, err := callCollaborator(ctx, s, collabReply, func(ctx context.Context) (string, error) {
		return s.deps.Replies.GenerateReply(ctx, text, image)
	})
	if err != nil {
		return Start, err
	}
	s.say(reply)
	return Start, nil
}

func answerReturningPatient(_ context.Context, _ *Session, yes bool) (Stage, error) {
	if yes {
		return BookingStart, nil
	}
	return AwaitingPreregDecision, nil
}

func answerPrereg(_ context.Context, s *Session, yes bool) (Stage, error) {
	if yes {
		if url := s.deps.PreregistrationURL; url != "" {
			s.sayHTML("You can pre-register here: " + link(url, "new patient form"))
		} else {
			s.say("Our front desk will send you the pre-registration form before your visit.")
		}
	}
	return AwaitingBookingMethod, nil
}

func handleBookingMethod(_ context.Context, s *Session, in Input) (Stage, error) {
	choice := in.Value
	if in.Kind == InputText {
		switch ClassifyAmong(in.Text, IntentSelfServe, IntentAssist, IntentBook) {
		case IntentSelfServe:
			choice = ActionOnline
		case IntentAssist, IntentBook:
			choice = ActionAssist
		default:
			return s.stage, errReprompt
		}
	}
	if choice == ActionAssist {
		return BookingStart, nil
	}
	if url := s.deps.OnlineBookingURL; url != "" {
		s.sayHTML("You can book online here: " + link(url, "online booking"))
	} else {
		s.say("You can book online from our website at any time.")
	}
	return Start, nil
}

func handleFullName(_ context.Context, s *Session, in Input) (Stage, error) {
	name := strings.Join(strings.Fields(in.Text), " ")
	if name == "" {
		return s.stage, errReprompt
	}
	if utf8.RuneCountInString(name) > maxNameRunes {
		return s.stage, invalidInput("name_too_long", "That name is too long. Please use at most %d characters.", maxNameRunes)
	}
	s.draft.FullName = name
	return BookingAskEmail, nil
}

func handleEmail(_ context.Context, s *Session, in Input) (Stage, error) {
	email := strings.TrimSpace(in.Text)
	if !ValidEmail(email) {
		return s.stage, invalidInput("invalid_email", "That doesn't look like a valid email address. Please enter one like name@example.com.")
	}
	s.draft.Email = email
	return BookingAskDay, nil
}

func handleBookingDay(ctx context.Context, s *Session, in Input) (Stage, error) {
	day := strings.TrimSpace(in.Value)
	if _, err := appointments.ParseDay(day); err != nil {
		return s.stage, invalidInput("invalid_date", "Please pick a valid date from the calendar.")
	}
	if day < s.today() {
		return s.stage, invalidInput("past_date", "That date has already passed. Please choose today or a later date.")
	}

	booked, err := callCollaborator(ctx, s, collabAppointments, func(ctx context.Context) ([]string, error) {
		return s.deps.Appointments.ListByDate(ctx, day)
	})
	if err != nil {
		return s.stage, err
	}
	s.draft.BookingDay = day
	s.draft.TimeSlot = ""
	s.bookedSlots = booked
	return BookingAskTime, nil
}

func handleTimeSlot(_ context.Context, s *Session, in Input) (Stage, error) {
	slot, ok := s.configuredSlot(in.Value)
	if !ok {
		return s.stage, invalidInput("unknown_slot", "Please pick one of the listed times.")
	}
	if s.slotBooked(slot) {
		return s.stage, invalidInput("slot_taken", "%s is already booked on %s. Please pick another time.", slot, displayDay(s.draft.BookingDay))
	}
	s.draft.TimeSlot = slot
	return BookingAskReasonCategory, nil
}

func handleChangeDay(_ context.Context, s *Session, _ Input) (Stage, error) {
	s.draft.BookingDay = ""
	s.draft.TimeSlot = ""
	s.bookedSlots = nil
	return BookingAskDay, nil
}

func handleReasonCategory(_ context.Context, s *Session, in Input) (Stage, error) {
	raw := in.Value
	if in.Kind == InputText {
		raw = in.Text
	}
	category, ok := appointments.ParseReasonCategory(raw)
	if !ok {
		return s.stage, errReprompt
	}
	s.draft.ReasonCategory = category
	return BookingAskReason, nil
}

func handleReason(_ context.Context, s *Session, in Input) (Stage, error) {
	reason := strings.TrimSpace(in.Text)
	if reason == "" {
		return s.stage, errReprompt
	}
	if utf8.RuneCountInString(reason) > maxReasonRunes {
		return s.stage, invalidInput("reason_too_long", "Please keep the reason under %d characters.", maxReasonRunes)
	}
	s.draft.Reason = reason
	return BookingAskHasInsurance, nil
}

func answerHasInsurance(_ context.Context, s *Session, yes bool) (Stage, error) {
	s.draft.HasInsurance = &yes
	if yes {
		return BookingAskInsuranceProvider, nil
	}
	s.draft.InsuranceProvider = ""
	s.draft.MemberID = ""
	return BookingAskNotes, nil
}

func handleBookingProvider(_ context.Context, s *Session, in Input) (Stage, error) {
	raw := strings.TrimSpace(in.Value)
	if in.Kind == InputText {
		raw = strings.TrimSpace(in.Text)
	}
	switch {
	case raw == "":
		return s.stage, errReprompt
	case strings.EqualFold(raw, pricing.NoInsurance):
		no := false
		s.draft.HasInsurance = &no
		s.draft.InsuranceProvider = ""
		return BookingAskNotes, nil
	case strings.EqualFold(raw, pricing.PlanOther):
		return s.stage, invalidInput("other_provider", "Please type the name of your insurance provider.")
	}
	sel := NormalizeSelection(InsuranceSelection{Provider: raw}, s.deps.Providers)
	s.draft.InsuranceProvider = sel.Provider
	return BookingAskMemberID, nil
}

func handleBookingMemberID(_ context.Context, s *Session, in Input) (Stage, error) {
	id := strings.TrimSpace(in.Text)
	if id == "" {
		return s.stage, errReprompt
	}
	if ClassifyAmong(id, IntentSkip, IntentDeny) != IntentNone {
		id = ""
	}
	s.draft.MemberID = id
	return BookingAskNotes, nil
}

func handleNotes(_ context.Context, s *Session, in Input) (Stage, error) {
	notes := ""
	if in.Kind == InputText {
		notes = strings.TrimSpace(in.Text)
		if ClassifyAmong(notes, IntentSkip, IntentDeny) != IntentNone {
			notes = ""
		}
	}
	s.draft.Notes = notes
	return BookingConfirm, nil
}

func handleConfirm(ctx context.Context, s *Session, in Input) (Stage, error) {
	confirmed := in.Value == ActionConfirm
	if in.Kind == InputText {
		switch ClassifyAmong(in.Text, IntentAffirm, IntentDeny) {
		case IntentAffirm:
			confirmed = true
		case IntentDeny:
			confirmed = false
		default:
			return s.stage, errReprompt
		}
	}
	if !confirmed {
		s.draft = appointments.Draft{}
		s.bookedSlots = nil
		s.say("No problem, let's start your booking again.")
		return BookingStart, nil
	}
	return s.submitBooking(ctx)
}

// pendingBooking is a Create that failed or timed out from the session's point
// of view. The store may still have written it, so its real outcome is kept
// for the next confirmation of the same slot.
type pendingBooking struct {
	draft  appointments.Draft
	result chan callResult[*appointments.Appointment]
}

func (s *Session) submitBooking(ctx context.Context) (Stage, error) {
	if appt, ok := s.settleLateBooking(false); ok {
		return s.bookingConfirmed(ctx, appt), nil
	}

	draft := s.draft
	attempt := &pendingBooking{draft: draft, result: make(chan callResult[*appointments.Appointment], 1)}
	appt, err := callCollaborator(ctx, s, collabAppointments, func(ctx context.Context) (*appointments.Appointment, error) {
		appt, err := s.deps.Appointments.Create(ctx, draft)
		attempt.result <- callResult[*appointments.Appointment]{value: appt, err: err}
		return appt, err
	})
	var ue *upstreamError
	switch {
	case errors.Is(err, appointments.ErrConflict):
		// The slot may have been taken by our own earlier attempt.
		if late, ok := s.settleLateBooking(true); ok {
			return s.bookingConfirmed(ctx, late), nil
		}
		s.deps.Metrics.ObserveBooking("conflict")
		s.refreshBookedSlots(ctx, draft)
		s.draft.TimeSlot = ""
		s.sayf("Sorry, %s on %s was just booked by someone else. Please pick a different time.", draft.TimeSlot, displayDay(draft.BookingDay))
		return BookingAskTime, nil
	case errors.Is(err, appointments.ErrIncompleteDraft):
		s.deps.Metrics.ObserveBooking("incomplete")
		s.draft = appointments.Draft{}
		s.say("Some of your booking details were missing, so let's go through them again.")
		return BookingStart, nil
	case errors.As(err, &ue):
		s.deps.Metrics.ObserveBooking("error")
		s.lateBooking = attempt
		return s.stage, err
	case err != nil:
		s.deps.Metrics.ObserveBooking("error")
		return s.stage, err
	}
	return s.bookingConfirmed(ctx, appt), nil
}

// settleLateBooking returns the appointment written by an earlier attempt for
// the current draft's slot. With wait set it gives the store up to the
// collaborator timeout to answer.
func (s *Session) settleLateBooking(wait bool) (*appointments.Appointment, bool) {
	p := s.lateBooking
	if p == nil {
		return nil, false
	}
	if p.draft.BookingDay != s.draft.BookingDay || p.draft.TimeSlot != s.draft.TimeSlot || p.draft.Email != s.draft.Email {
		s.lateBooking = nil
		return nil, false
	}

	var res callResult[*appointments.Appointment]
	if wait {
		timer := time.NewTimer(s.deps.CollaboratorTimeout)
		defer timer.Stop()
		select {
		case res = <-p.result:
		case <-timer.C:
			return nil, false
		}
	} else {
		select {
		case res = <-p.result:
		default:
			return nil, false
		}
	}
	s.lateBooking = nil
	if res.err != nil || res.value == nil {
		return nil, false
	}
	s.deps.Logger.Info("late booking completed", "session_id", s.id, "appointment_id", res.value.ID)
	return res.value, true
}

func (s *Session) bookingConfirmed(ctx context.Context, appt *appointments.Appointment) Stage {
	s.deps.Metrics.ObserveBooking("created")
	if s.deps.Notifier != nil {
		s.deps.Notifier.BookingConfirmed(context.WithoutCancel(ctx), *appt)
	}
	s.sayf("You're all set, %s! Your appointment is booked for %s at %s. We look forward to seeing you.",
		appt.FullName, displayDay(appt.BookingDay), appt.TimeSlot)
	s.reset()
	return Start
}

// refreshBookedSlots reloads the day after a conflict. The conflicting slot is
// marked booked even when the reload fails.
func (s *Session) refreshBookedSlots(ctx context.Context, draft appointments.Draft) {
	booked, err := callCollaborator(ctx, s, collabAppointments, func(ctx context.Context) ([]string, error) {
		return s.deps.Appointments.ListByDate(ctx, draft.BookingDay)
	})
	if err == nil {
		s.bookedSlots = booked
	}
	if !s.slotBooked(draft.TimeSlot) {
		s.bookedSlots = append(s.bookedSlots, draft.TimeSlot)
	}
}

func answerGovernmentPlan(_ context.Context, s *Session, yes bool) (Stage, error) {
	s.resetEstimate()
	s.government = yes
	return ChooseInsurancePath, nil
}

func handleEstimatePath(_ context.Context, s *Session, in Input) (Stage, error) {
	choice := in.Value
	if in.Kind == InputText {
		switch ClassifyAmong(in.Text, IntentFull, IntentQuick) {
		case IntentFull:
			choice = ActionFull
		case IntentQuick:
			choice = ActionQuick
		default:
			return s.stage, errReprompt
		}
	}
	switch {
	case choice == ActionFull:
		return AwaitingUploadOrManual, nil
	case s.government:
		return MedicaidQuickEstimate, nil
	default:
		return EstimateOnly, nil
	}
}

func handleManualChoice(_ context.Context, s *Session, in Input) (Stage, error) {
	if in.Kind == InputText && ClassifyAmong(in.Text, IntentManual) == IntentNone {
		return s.stage, errReprompt
	}
	s.insurance = InsuranceSelection{}
	return AwaitingProviderSelection, nil
}

// handleCardUpload stores the card photo, asks the extractor to read it and
// normalizes the provider guess against the known providers.
func handleCardUpload(ctx context.Context, s *Session, in Input) (Stage, error) {
	if in.File == nil || len(in.File.Data) == 0 {
		return s.stage, invalidInput("missing_file", "Please attach a photo of your insurance card.")
	}
	if s.deps.Extractor == nil {
		return s.stage, invalidInput("extraction_disabled", "Card photos can't be read right now. Please choose to enter your details manually.")
	}
	ref, err := s.storeUpload(ctx, in.File)
	if err != nil {
		return s.stage, err
	}
	info, err := callCollaborator(ctx, s, collabExtraction, func(ctx context.Context) (CardInfo, error) {
		return s.deps.Extractor.ExtractCardInfo(ctx, ref)
	})
	if err != nil {
		return s.stage, err
	}
	s.insurance = NormalizeSelection(InsuranceSelection{
		Provider:   info.Provider,
		MemberID:   strings.TrimSpace(info.MemberID),
		MemberName: strings.TrimSpace(info.MemberName),
	}, s.deps.Providers)
	return ConfirmingPhotoDetails, nil
}

func answerPhotoDetails(_ context.Context, s *Session, yes bool) (Stage, error) {
	if yes {
		return SelectingMultipleProcedures, nil
	}
	s.insurance = InsuranceSelection{}
	s.say("No problem, let's enter your details manually.")
	return AwaitingProviderSelection, nil
}

func handleProviderSelection(_ context.Context, s *Session, in Input) (Stage, error) {
	raw := strings.TrimSpace(in.Value)
	if in.Kind == InputText {
		raw = strings.TrimSpace(in.Text)
	}
	if raw == "" {
		return s.stage, errReprompt
	}

	if s.government {
		plan, ok := MatchProvider(raw, []string{pricing.PlanMedicare, pricing.PlanMedicaid})
		if !ok {
			return s.stage, invalidInput("non_government_plan", "Please choose Medicare or Medicaid.")
		}
		s.insurance = InsuranceSelection{Provider: plan}
		return AwaitingMemberID, nil
	}

	switch {
	case strings.EqualFold(raw, pricing.PlanOther):
		s.insurance = InsuranceSelection{IsOtherProvider: true}
		return AwaitingOtherProviderName, nil
	case strings.EqualFold(raw, pricing.NoInsurance):
		s.insurance = InsuranceSelection{}
		return SelectingMultipleProcedures, nil
	}
	if name, ok := MatchProvider(raw, s.deps.Providers); ok {
		s.insurance = InsuranceSelection{Provider: name}
		return AwaitingMemberID, nil
	}
	if in.Kind == InputPlan {
		return s.stage, invalidInput("unknown_plan", "Please choose a provider from the list.")
	}
	s.insurance = InsuranceSelection{Provider: raw, IsOtherProvider: true}
	return AwaitingMemberID, nil
}

func handleOtherProviderName(_ context.Context, s *Session, in Input) (Stage, error) {
	name := strings.Join(strings.Fields(in.Text), " ")
	if name == "" {
		return s.stage, errReprompt
	}
	s.insurance = NormalizeSelection(InsuranceSelection{Provider: name}, s.deps.Providers)
	return AwaitingMemberID, nil
}

func handleEstimateMemberID(_ context.Context, s *Session, in Input) (Stage, error) {
	id := strings.TrimSpace(in.Text)
	if id == "" {
		return s.stage, errReprompt
	}
	if ClassifyAmong(id, IntentSkip, IntentDeny) != IntentNone {
		id = ""
	}
	s.insurance.MemberID = id
	return SelectingMultipleProcedures, nil
}

func handleToggleProcedure(_ context.Context, s *Session, in Input) (Stage, error) {
	name, ok := s.deps.Engine.Table().LookupProcedure(in.Value)
	if !ok {
		return s.stage, invalidInput("unknown_procedure", "I don't have a price for %q. Please choose from the list.", in.Value)
	}
	s.procedures.Toggle(name)
	return s.stage, nil
}

func handleCalculateMultiple(_ context.Context, s *Session, _ Input) (Stage, error) {
	est, err := s.deps.Engine.EstimateMultiple(s.procedures.Sorted(), s.insurance.Plan())
	if errors.Is(err, pricing.ErrMissingSelection) {
		return s.stage, invalidInput("missing_selection", "Please select at least one procedure before calculating.")
	}
	if err != nil {
		return s.stage, err
	}
	s.say(est.Summary())
	s.resetEstimate()
	return Start, nil
}

func handleQuickProcedure(_ context.Context, s *Session, in Input) (Stage, error) {
	name, ok := s.deps.Engine.Table().LookupProcedure(in.Value)
	if !ok {
		return s.stage, invalidInput("unknown_procedure", "I don't have a price for %q. Please choose from the list.", in.Value)
	}
	s.quickProcedure = name
	return s.stage, nil
}

func handleQuickPlan(_ context.Context, s *Session, in Input) (Stage, error) {
	raw := strings.TrimSpace(in.Value)
	if s.stage == MedicaidQuickEstimate {
		if !pricing.IsGovernmentPlan(raw) {
			return s.stage, invalidInput("non_government_plan", "Please choose Medicare or Medicaid.")
		}
		plan, _ := s.deps.Engine.CanonicalPlan(raw)
		s.quickPlan = plan
		return s.stage, nil
	}
	if strings.EqualFold(raw, pricing.PlanOther) {
		s.quickPlan = pricing.PlanOther
		return s.stage, nil
	}
	plan, ok := s.deps.Engine.CanonicalPlan(raw)
	if !ok {
		return s.stage, invalidInput("unknown_plan", "Please choose a plan from the list.")
	}
	s.quickPlan = plan
	return s.stage, nil
}

func handleQuickCalculate(_ context.Context, s *Session, _ Input) (Stage, error) {
	switch {
	case s.quickProcedure == "" && s.quickPlan == "":
		return s.stage, invalidInput("missing_selection", "Please choose a procedure and a plan before calculating.")
	case s.quickProcedure == "":
		return s.stage, invalidInput("missing_procedure", "Please choose a procedure before calculating.")
	case s.quickPlan == "":
		return s.stage, invalidInput("missing_plan", "Please choose a plan before calculating.")
	}
	est, err := s.deps.Engine.EstimateSingle(s.quickProcedure, s.quickPlan)
	if err != nil {
		return s.stage, err
	}
	s.say(est.Summary())
	s.resetEstimate()
	return Start, nil
}

// Helpers.

func (s *Session) storeUpload(ctx context.Context, file *FileInput) (uploads.Reference, error) {
	if s.deps.Uploads == nil {
		return uploads.Reference{}, invalidInput("uploads_disabled", "File uploads aren't available right now.")
	}
	ref, err := callCollaborator(ctx, s, collabUpload, func(ctx context.Context) (uploads.Reference, error) {
		return s.deps.Uploads.Store(ctx, file.Name, file.Data)
	})
	if err != nil {
		return uploads.Reference{}, err
	}
	s.attach(ref)
	return ref, nil
}

func (s *Session) today() string {
	return s.deps.Clock.Now().Format(appointments.DayLayout)
}

func (s *Session) configuredSlot(raw string) (string, bool) {
	minutes := appointments.SlotMinutes(raw)
	for _, slot := range s.deps.TimeSlots {
		if slot == strings.TrimSpace(raw) || (minutes >= 0 && appointments.SlotMinutes(slot) == minutes) {
			return slot, true
		}
	}
	return "", false
}

func (s *Session) slotBooked(slot string) bool {
	minutes := appointments.SlotMinutes(slot)
	for _, b := range s.bookedSlots {
		if b == slot || (minutes >= 0 && appointments.SlotMinutes(b) == minutes) {
			return true
		}
	}
	return false
}

func (s *Session) providerOptions(governmentOnly bool) []Option {
	var opts []Option
	for _, p := range s.deps.Providers {
		if governmentOnly && !pricing.IsGovernmentPlan(p) {
			continue
		}
		opts = append(opts, option(p, p))
	}
	return opts
}

func (s *Session) procedureOptions() []Option {
	procs := s.deps.Engine.Table().Procedures()
	opts := make([]Option, 0, len(procs))
	for _, p := range procs {
		opts = append(opts, option(p, p))
	}
	return opts
}

func displayDay(day string) string {
	t, err := time.Parse(appointments.DayLayout, day)
	if err != nil {
		return day
	}
	return t.Format("Monday, January 2, 2006")
}

func link(url, label string) string {
	return `<a href="` + html.EscapeString(url) + `" target="_blank" rel="noopener noreferrer">` + html.EscapeString(label) + `</a>`
}

func valueOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
