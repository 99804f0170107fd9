package domain

// Message represents any message in a session timeline (user or persona).
type Message struct {
	ID        MessageID
	SessionID SessionID
	Sender    Sender
	Text      string
	CreatedAt Timestamp

	// ContentType is ContentTypeText for regular messages and
	// ContentTypeError for synthetic failure notices.
	ContentType string
	// ReplyTo points at the message a regenerated reply was derived from.
	ReplyTo *MessageID
}

// Clone returns a copy that shares no pointers with m.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := *m
	if m.ReplyTo != nil {
		id := *m.ReplyTo
		out.ReplyTo = &id
	}
	return &out
}

// ChatTarget is who the user is talking to: one persona or a group of them.
type ChatTarget struct {
	Kind    TargetKind
	ID      string
	Name    string
	Members []PersonaID
}

// Session is one conversation with a chat target.
type Session struct {
	ID        SessionID
	UserID    UserID
	CreatedAt Timestamp
	UpdatedAt Timestamp

	Target ChatTarget
	Title  string
	// TitleExplicit is set once the user named the session.
	TitleExplicit bool
	// TitleInferred is set once title inference produced a title.
	TitleInferred bool

	// Context is the last summary produced on request, if any.
	Context *ChatContext
}

// Clone returns a deep copy of s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Target.Members = append([]PersonaID(nil), s.Target.Members...)
	if s.Context != nil {
		c := s.Context.Clone()
		out.Context = &c
	}
	return &out
}

// SessionUpdate carries a partial set of session fields. Nil fields are left
// untouched by SessionStore.UpdateSession.
type SessionUpdate struct {
	Title         *string
	TitleExplicit *bool
	TitleInferred *bool
	Context       *ChatContext
	UpdatedAt     *Timestamp
}

// Apply merges the non-nil fields of u into s.
func (u SessionUpdate) Apply(s *Session) {
	if u.Title != nil {
		s.Title = *u.Title
	}
	if u.TitleExplicit != nil {
		s.TitleExplicit = *u.TitleExplicit
	}
	if u.TitleInferred != nil {
		s.TitleInferred = *u.TitleInferred
	}
	if u.Context != nil {
		c := u.Context.Clone()
		s.Context = &c
	}
	if u.UpdatedAt != nil {
		s.UpdatedAt = *u.UpdatedAt
	}
}
