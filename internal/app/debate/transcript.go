package debate

import (
	"fmt"
	"strings"

	"github.com/PabloGalante/symposium/internal/domain"
)

// Transcript is the debate context of one turn. It only grows: every
// finished speaker is appended so later speakers see what was said.
type Transcript struct {
	sb strings.Builder
}

// NewTranscript opens the transcript with the user persona, the question and
// the prior conversation.
func NewTranscript(userText string, user domain.UserPersona, history []*domain.Message, names func(domain.Sender) string) *Transcript {
	t := &Transcript{}
	if !user.IsZero() {
		fmt.Fprintf(&t.sb,
			"The user is playing a character with this persona: Name/Role: \"%s\", Relationship to the speakers: \"%s\", Backstory: \"%s\". The speakers should address the user according to this persona. ",
			user.Name, user.Relationship, user.Backstory)
	}
	fmt.Fprintf(&t.sb, "The user has asked: \"%s\". Previous messages in this conversation are:\n", userText)
	for i, m := range history {
		if i > 0 {
			t.sb.WriteByte('\n')
		}
		fmt.Fprintf(&t.sb, "%s: %s", names(m.Sender), m.Text)
	}
	t.sb.WriteString("\n\nA debate will now commence.")
	return t
}

// Append records a finished speaker.
func (t *Transcript) Append(name, text string) {
	fmt.Fprintf(&t.sb, "\n\n%s responded: \"%s\"", name, text)
}

func (t *Transcript) String() string { return t.sb.String() }

// PromptFor builds the request text for the persona whose turn it is.
func (t *Transcript) PromptFor(p *domain.Persona) string {
	return t.String() + "\n\nYou are " + p.DisplayName + ". It is your turn to respond. " +
		"Provide your perspective based on your views. Keep your response focused and relevant to the ongoing debate. " +
		"Do not greet the user or repeat the question. State your argument directly."
}
