package animation

import (
	"strings"

	"github.com/PabloGalante/symposium/internal/domain"
)

// Cursor trails the visible text of a message that is still streaming.
const Cursor = "▋"

// Frame is one visible change of a message.
type Frame struct {
	SessionID domain.SessionID
	MessageID domain.MessageID
	Sender    domain.Sender
	Text      string
	// Final is set on the single frame emitted when the message is finalized.
	Final bool
}

// Streaming reports whether the frame still carries the cursor marker.
func (f Frame) Streaming() bool { return strings.HasSuffix(f.Text, Cursor) }

// FrameSink receives every visible change.
type FrameSink interface {
	Publish(Frame)
}

// Finalizer receives each message exactly once, with the text revealed by
// the time it was finalized.
type Finalizer interface {
	Finalize(msg *domain.Message, interrupted bool)
}

// StripCursor removes any cursor markers from text.
func StripCursor(text string) string {
	return strings.ReplaceAll(text, Cursor, "")
}

type nopSink struct{}

func (nopSink) Publish(Frame) {}

type nopFinalizer struct{}

func (nopFinalizer) Finalize(*domain.Message, bool) {}
