package chatflow

import (
	"time"

	"github.com/AyushPatel04/dental-chatbot/internal/uploads"
)

type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

type ContentKind string

const (
	ContentText  ContentKind = "text"
	ContentImage ContentKind = "image"
)

// Render tells the client how to draw a message.
type Render string

const (
	RenderPlain     Render = "plain"
	RenderHTML      Render = "html"
	RenderComponent Render = "component"
)

// ComponentKind names a structured widget attached to a bot message.
type ComponentKind string

const (
	ComponentButtons              ComponentKind = "buttons"
	ComponentDatePicker           ComponentKind = "date_picker"
	ComponentTimeSlots            ComponentKind = "time_slots"
	ComponentProcedureMultiSelect ComponentKind = "procedure_multi_select"
	ComponentProcedureSelect      ComponentKind = "procedure_select"
	ComponentPlanSelect           ComponentKind = "plan_select"
	ComponentGovernmentPlanToggle ComponentKind = "government_plan_toggle"
	ComponentUpload               ComponentKind = "upload"
)

type Option struct {
	Value    string `json:"value"`
	Label    string `json:"label"`
	Disabled bool   `json:"disabled,omitempty"`
	Selected bool   `json:"selected,omitempty"`
}

// Component is a widget. Actions are buttons drawn under the widget.
type Component struct {
	Kind    ComponentKind `json:"kind"`
	Options []Option      `json:"options,omitempty"`
	Actions []Option      `json:"actions,omitempty"`
	Min     string        `json:"min,omitempty"`
}

// Message is one transcript entry. It is never modified after it is appended.
type Message struct {
	ID          string             `json:"id"`
	Sender      Sender             `json:"sender"`
	Content     string             `json:"content"`
	ContentKind ContentKind        `json:"contentKind"`
	Render      Render             `json:"render"`
	Component   *Component         `json:"component,omitempty"`
	Attachment  *uploads.Reference `json:"attachment,omitempty"`
	Timestamp   time.Time          `json:"timestamp"`
}

func option(value, label string) Option {
	return Option{Value: value, Label: label}
}

func buttons(opts ...Option) *Component {
	return &Component{Kind: ComponentButtons, Options: opts}
}

var yesNoButtons = []Option{option(ActionYes, "Yes"), option(ActionNo, "No")}
