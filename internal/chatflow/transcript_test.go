package chatflow

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscriptAppendDefaults(t *testing.T) {
	tr := NewTranscript()
	msg := tr.Append(Message{Sender: SenderBot, Content: "hi"})
	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.Timestamp.IsZero())
	assert.Equal(t, RenderPlain, msg.Render)
	assert.Equal(t, ContentText, msg.ContentKind)

	withWidget := tr.Append(Message{Sender: SenderBot, Content: "pick", Component: buttons(yesNoButtons...)})
	assert.Equal(t, RenderComponent, withWidget.Render)
}

func TestTranscriptSinceReturnsCopies(t *testing.T) {
	tr := NewTranscript()
	tr.Append(Message{Sender: SenderUser, Content: "one"})
	tr.Append(Message{Sender: SenderBot, Content: "two"})

	tail := tr.Since(1)
	require.Len(t, tail, 1)
	assert.Equal(t, "two", tail[0].Content)

	tail[0].Content = "changed"
	assert.Equal(t, "two", tr.All()[1].Content)
	assert.Empty(t, tr.Since(5))
}

func TestTranscriptConcurrentAppendKeepsEveryMessage(t *testing.T) {
	tr := NewTranscript()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Append(Message{Sender: SenderUser, Content: "x"})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, tr.Len())
}
