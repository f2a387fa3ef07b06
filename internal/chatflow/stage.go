package chatflow

import "fmt"

// Stage names the current point of a conversation.
type Stage int

const (
	Start Stage = iota
	AwaitingReturningPatientStatus
	AwaitingPreregDecision
	AwaitingBookingMethod
	BookingStart
	BookingAskEmail
	BookingAskDay
	BookingAskTime
	BookingAskReasonCategory
	BookingAskReason
	BookingAskHasInsurance
	BookingAskInsuranceProvider
	BookingAskMemberID
	BookingAskNotes
	BookingConfirm
	AwaitingMedicareDecision
	ChooseInsurancePath
	AwaitingUploadOrManual
	ConfirmingPhotoDetails
	AwaitingProviderSelection
	AwaitingOtherProviderName
	AwaitingMemberID
	SelectingMultipleProcedures
	EstimateOnly
	MedicaidQuickEstimate
)

var stageNames = [...]string{
	Start:                          "Start",
	AwaitingReturningPatientStatus: "AwaitingReturningPatientStatus",
	AwaitingPreregDecision:         "AwaitingPreregDecision",
	AwaitingBookingMethod:          "AwaitingBookingMethod",
	BookingStart:                   "BookingStart",
	BookingAskEmail:                "BookingAskEmail",
	BookingAskDay:                  "BookingAskDay",
	BookingAskTime:                 "BookingAskTime",
	BookingAskReasonCategory:       "BookingAskReasonCategory",
	BookingAskReason:               "BookingAskReason",
	BookingAskHasInsurance:         "BookingAskHasInsurance",
	BookingAskInsuranceProvider:    "BookingAskInsuranceProvider",
	BookingAskMemberID:             "BookingAskMemberID",
	BookingAskNotes:                "BookingAskNotes",
	BookingConfirm:                 "BookingConfirm",
	AwaitingMedicareDecision:       "AwaitingMedicareDecision",
	ChooseInsurancePath:            "ChooseInsurancePath",
	AwaitingUploadOrManual:         "AwaitingUploadOrManual",
	ConfirmingPhotoDetails:         "ConfirmingPhotoDetails",
	AwaitingProviderSelection:      "AwaitingProviderSelection",
	AwaitingOtherProviderName:      "AwaitingOtherProviderName",
	AwaitingMemberID:               "AwaitingMemberID",
	SelectingMultipleProcedures:    "SelectingMultipleProcedures",
	EstimateOnly:                   "EstimateOnly",
	MedicaidQuickEstimate:          "MedicaidQuickEstimate",
}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// MarshalText renders the stage name in JSON payloads.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Stage) UnmarshalText(b []byte) error {
	for i, name := range stageNames {
		if name == string(b) {
			*s = Stage(i)
			return nil
		}
	}
	return fmt.Errorf("chatflow: unknown stage %q", b)
}

// InputKind is the form of a user input.
type InputKind string

const (
	InputText            InputKind = "text"
	InputAction          InputKind = "action"
	InputDate            InputKind = "date"
	InputTimeSlot        InputKind = "time_slot"
	InputProcedure       InputKind = "procedure"
	InputPlan            InputKind = "plan"
	InputToggleProcedure InputKind = "toggle_procedure"
	InputUpload          InputKind = "upload"
)

// FileInput carries uploaded bytes with the client supplied name.
type FileInput struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

// Input is one user action. Text holds typed text, Value holds the selected
// action or selector value.
type Input struct {
	Kind  InputKind  `json:"kind"`
	Text  string     `json:"text,omitempty"`
	Value string     `json:"value,omitempty"`
	File  *FileInput `json:"file,omitempty"`
}

// TextInput builds a typed-text input.
func TextInput(text string) Input { return Input{Kind: InputText, Text: text} }

// ActionInput builds a button press.
func ActionInput(action string) Input { return Input{Kind: InputAction, Value: action} }

// SelectInput builds a structured selector input.
func SelectInput(kind InputKind, value string) Input { return Input{Kind: kind, Value: value} }
