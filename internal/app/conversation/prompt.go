package conversation

import (
	"fmt"

	"github.com/PabloGalante/symposium/internal/domain"
)

// withUserPersona prefixes a one-on-one message with an out-of-character
// note describing the user's persona.
func withUserPersona(text string, p domain.UserPersona) string {
	if p.IsZero() {
		return text
	}
	return fmt.Sprintf(
		"(OOC: I am speaking to you as a character. My persona is: Name/Role: \"%s\", my relationship to you is: \"%s\", and my backstory is: \"%s\". Please address me in character based on this information.)\n\nMy message is: %s",
		p.Name, p.Relationship, p.Backstory, text)
}

func regeneratePrompt(original string, mode domain.RegenerateMode) string {
	adj := "more concise"
	if mode == domain.RegenerateLengthen {
		adj = "more detailed"
	}
	return fmt.Sprintf(
		"Your previous response was: \"%s\". Please provide a %s version of that same response. Do not add any conversational filler, just provide the modified response.",
		original, adj)
}
