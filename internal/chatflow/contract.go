package chatflow

import (
	"context"
	"slices"
)

// Button and selector action values.
const (
	ActionBook      = "book"
	ActionEstimate  = "estimate"
	ActionYes       = "yes"
	ActionNo        = "no"
	ActionAssist    = "assist"
	ActionOnline    = "online"
	ActionChangeDay = "change_day"
	ActionUrgent    = "Urgent"
	ActionGeneral   = "General"
	ActionSkip      = "skip"
	ActionConfirm   = "confirm"
	ActionCancel    = "cancel"
	ActionQuick     = "quick"
	ActionFull      = "full"
	ActionManual    = "manual"
	ActionCalculate = "calculate"
	ActionRestart   = "restart"
)

type handler func(ctx context.Context, s *Session, in Input) (Stage, error)

// stageDef declares what a stage accepts and how it prompts.
type stageDef struct {
	accepts map[InputKind]handler
	actions []string
	enter   func(s *Session)
	hint    string
}

func (d stageDef) handlerFor(in Input) (handler, bool) {
	h, ok := d.accepts[in.Kind]
	if !ok {
		return nil, false
	}
	if in.Kind == InputAction && !slices.Contains(d.actions, in.Value) {
		return nil, false
	}
	return h, true
}

// UIContract tells a client which inputs the current stage takes.
// TextEscapeHatch is set when a structured stage also takes typed text.
type UIContract struct {
	Stage           Stage       `json:"stage"`
	Accepts         []InputKind `json:"accepts"`
	Actions         []string    `json:"actions"`
	TextEscapeHatch bool        `json:"textEscapeHatch"`
}

var inputKindOrder = []InputKind{
	InputText, InputAction, InputDate, InputTimeSlot, InputProcedure, InputPlan, InputToggleProcedure, InputUpload,
}

// ContractFor describes the inputs accepted at stage. Restart is always available.
func ContractFor(stage Stage) UIContract {
	def := stageTable[stage]
	c := UIContract{Stage: stage, Actions: append(slices.Clone(def.actions), ActionRestart)}
	structured := false
	for _, kind := range inputKindOrder {
		if _, ok := def.accepts[kind]; !ok {
			continue
		}
		c.Accepts = append(c.Accepts, kind)
		if kind != InputText && kind != InputAction {
			structured = true
		}
	}
	if !slices.Contains(c.Accepts, InputAction) {
		c.Accepts = append(c.Accepts, InputAction)
	}
	_, text := def.accepts[InputText]
	c.TextEscapeHatch = text && structured
	return c
}
