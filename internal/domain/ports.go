package domain

import (
	"context"
	"iter"
)

// Fragments is the lazy, finite, non-restartable sequence of text fragments
// produced by the text model. A non-nil error ends the sequence.
type Fragments = iter.Seq2[string, error]

// GenerationRequest is what the core hands to the text model for one speaker.
type GenerationRequest struct {
	PersonaID         PersonaID
	SystemInstruction string
	// History is sent as prior conversation turns; it is empty for debate
	// and regenerate prompts, which carry their context inside UserText.
	History  []*Message
	UserText string
	Settings Settings
}

// LLMClient streams a reply for a single speaker.
type LLMClient interface {
	StreamReply(ctx context.Context, req GenerationRequest) (Fragments, error)
}

// ContextSummarizer builds the on-demand conversation summary.
type ContextSummarizer interface {
	Summarize(ctx context.Context, history []*Message, personas []*Persona) (ChatContext, error)
}

// TitleInferrer proposes a short session title, or "" when it has none.
type TitleInferrer interface {
	InferTitle(ctx context.Context, history []*Message) (string, error)
}

// PersonaSuggester invents a user persona for role-play.
type PersonaSuggester interface {
	SuggestUserPersona(ctx context.Context) (UserPersona, error)
}

// PersonaDirectory is the read-only persona catalog, in display order.
type PersonaDirectory interface {
	List() []*Persona
	Get(id PersonaID) (*Persona, bool)
}

// SessionStore defines session persistence.
type SessionStore interface {
	CreateSession(ctx context.Context, session *Session) error
	UpdateSession(ctx context.Context, id SessionID, update SessionUpdate) error
	GetSession(ctx context.Context, id SessionID) (*Session, error)
	ListSessionsByUser(ctx context.Context, userID UserID, limit int) ([]*Session, error)
	DeleteSession(ctx context.Context, id SessionID) error
}

// MessageStore defines message persistence. UpsertMessage inserts a new
// message at the end of its session or overwrites an existing one in place.
type MessageStore interface {
	UpsertMessage(ctx context.Context, msg *Message) error
	GetMessagesBySession(ctx context.Context, sessionID SessionID, limit int) ([]*Message, error)
	DeleteMessagesBySession(ctx context.Context, sessionID SessionID) error
}
