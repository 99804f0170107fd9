package domain

// Persona is a simulated speaker backed by the text model.
type Persona struct {
	ID                PersonaID
	DisplayName       string
	SystemInstruction string

	// Display metadata, opaque to the core.
	Bio        string
	MajorWorks []string
	Color      string
}

// UserPersona is the character the user plays while talking to personas.
type UserPersona struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
	Backstory    string `json:"backstory"`
}

func (p UserPersona) IsZero() bool {
	return p.Name == "" && p.Relationship == "" && p.Backstory == ""
}

type KeyConcept struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
}

// ChatContext is the on-demand summary of a conversation.
type ChatContext struct {
	Summary     []string     `json:"summary"`
	KeyConcepts []KeyConcept `json:"keyConcepts"`
}

func (c ChatContext) Clone() ChatContext {
	return ChatContext{
		Summary:     append([]string(nil), c.Summary...),
		KeyConcepts: append([]KeyConcept(nil), c.KeyConcepts...),
	}
}
