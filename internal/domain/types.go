package domain

import "time"

type SessionID string
type UserID string
type MessageID string
type PersonaID string

// Sender is either SenderUser or the id of the persona that wrote the message.
type Sender string

const SenderUser Sender = "user"

func (s Sender) IsUser() bool { return s == SenderUser }

// PersonaSender returns the sender value used for messages written by a persona.
func PersonaSender(id PersonaID) Sender { return Sender(id) }

// Content types carried by Message.ContentType.
const (
	ContentTypeText  = "text"
	ContentTypeError = "error"
)

type TargetKind string

const (
	TargetPersona TargetKind = "persona" // one-on-one conversation
	TargetGroup   TargetKind = "group"   // debate between several personas
)

type RegenerateMode string

const (
	RegenerateShorten  RegenerateMode = "shorten"
	RegenerateLengthen RegenerateMode = "lengthen"
)

type Timestamp = time.Time
