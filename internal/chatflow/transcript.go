package chatflow

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Transcript is the ordered, append-only message log of a session.
type Transcript struct {
	mu       sync.RWMutex
	messages []Message
	now      func() time.Time
}

func NewTranscript() *Transcript {
	return &Transcript{now: func() time.Time { return time.Now().UTC() }}
}

// Append stamps msg with an id and timestamp when missing and stores it.
func (t *Transcript) Append(msg Message) Message {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.ContentKind == "" {
		msg.ContentKind = ContentText
	}
	if msg.Render == "" {
		msg.Render = RenderPlain
		if msg.Component != nil {
			msg.Render = RenderComponent
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = t.now()
	}
	t.messages = append(t.messages, msg)
	return msg
}

// All returns a copy of every message.
func (t *Transcript) All() []Message {
	return t.Since(0)
}

// Since returns a copy of messages from index n on.
func (t *Transcript) Since(n int) []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if n < 0 {
		n = 0
	}
	if n >= len(t.messages) {
		return []Message{}
	}
	out := make([]Message, len(t.messages)-n)
	copy(out, t.messages[n:])
	return out
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}
