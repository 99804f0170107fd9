package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/PabloGalante/symposium/internal/domain"
)

const cursorMarker = "▋"

// BuildContents turns prior history plus the new user text into model
// contents. User messages take the user role, everything else the model role.
func BuildContents(req domain.GenerationRequest) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, m := range req.History {
		var role genai.Role = genai.RoleModel
		if m.Sender.IsUser() {
			role = genai.RoleUser
		}
		contents = append(contents, genai.NewContentFromText(m.Text, role))
	}
	return append(contents, genai.NewContentFromText(req.UserText, genai.RoleUser))
}

// BuildConfig maps user settings onto the generation config. A length cap
// also sets the thinking budget to half of it.
func BuildConfig(systemInstruction string, s domain.Settings) *genai.GenerateContentConfig {
	temp := s.Temperature
	cfg := &genai.GenerateContentConfig{
		Temperature: &temp,
	}
	if systemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemInstruction, genai.RoleUser)
	}
	if s.MaxOutputLength > 0 {
		budget := s.MaxOutputLength / 2
		cfg.MaxOutputTokens = s.MaxOutputLength
		cfg.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: &budget}
	}
	return cfg
}

func transcript(history []*domain.Message, personas []*domain.Persona) string {
	names := make(map[domain.Sender]string, len(personas))
	for _, p := range personas {
		names[domain.PersonaSender(p.ID)] = p.DisplayName
	}
	lines := make([]string, 0, len(history))
	for _, m := range history {
		name := "User"
		if !m.Sender.IsUser() {
			name = names[m.Sender]
			if name == "" {
				name = "Philosopher"
			}
		}
		lines = append(lines, name+": "+strings.ReplaceAll(m.Text, cursorMarker, ""))
	}
	return strings.Join(lines, "\n")
}

func summaryPrompt(history []*domain.Message, personas []*domain.Persona) string {
	return `Analyze the following conversation with philosophers and provide a concise summary and a list of key philosophical concepts discussed. If the conversation is too short or lacks substance, return empty arrays.

Conversation:
---
` + transcript(history, personas) + `
---

Your response must be in JSON format. Provide the summary as an array of strings (each string is a bullet point). Provide the key concepts as an array of objects, each with a 'term' and a 'definition'.`
}

func titlePrompt(history []*domain.Message) string {
	return `Propose a short title (at most six words) for the following conversation. Do not use quotes. Return an empty title if the conversation has no clear topic.

Conversation:
---
` + transcript(history, nil) + `
---`
}

const personaPrompt = "Generate a brief, interesting user persona for a debate with famous philosophers. The persona should be creative and provide a unique angle for conversation. Provide a name/role, a relationship to the philosophers, and a short backstory. Respond in JSON format."

var contextSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"summary": {
			Type:        genai.TypeArray,
			Items:       &genai.Schema{Type: genai.TypeString},
			Description: "A list of bullet points summarizing the conversation. Should be empty if no summary can be made.",
		},
		"keyConcepts": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"term":       {Type: genai.TypeString, Description: "The philosophical term."},
					"definition": {Type: genai.TypeString, Description: "A brief definition of the term."},
				},
				Required: []string{"term", "definition"},
			},
			Description: "A list of key philosophical concepts and their definitions. Should be empty if no concepts are identified.",
		},
	},
	Required: []string{"summary", "keyConcepts"},
}

var titleSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"title": {Type: genai.TypeString, Description: "The conversation title, or empty."},
	},
	Required: []string{"title"},
}

var personaSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"name":         {Type: genai.TypeString, Description: "The user's name or role (e.g., 'A time traveler', 'The last human')."},
		"relationship": {Type: genai.TypeString, Description: "The user's relationship to the philosophers (e.g., 'A student from the future', 'A skeptic of all philosophy')."},
		"backstory":    {Type: genai.TypeString, Description: "A brief backstory for the user's character."},
	},
	Required: []string{"name", "relationship", "backstory"},
}

// ParseContext decodes a structured summary.
func ParseContext(text string) (domain.ChatContext, error) {
	var raw struct {
		Summary     *[]string            `json:"summary"`
		KeyConcepts *[]domain.KeyConcept `json:"keyConcepts"`
	}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return domain.ChatContext{}, fmt.Errorf("%w: context: %v", domain.ErrMalformedResponse, err)
	}
	if raw.Summary == nil || raw.KeyConcepts == nil {
		return domain.ChatContext{}, fmt.Errorf("%w: context: missing summary or keyConcepts", domain.ErrMalformedResponse)
	}
	out := domain.ChatContext{Summary: *raw.Summary, KeyConcepts: *raw.KeyConcepts}
	for _, kc := range out.KeyConcepts {
		if kc.Term == "" {
			return domain.ChatContext{}, fmt.Errorf("%w: context: key concept without term", domain.ErrMalformedResponse)
		}
	}
	return out, nil
}

// ParseUserPersona decodes a structured persona suggestion. Missing fields
// are left empty; a suggestion with no field at all is malformed.
func ParseUserPersona(text string) (domain.UserPersona, error) {
	var p domain.UserPersona
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return domain.UserPersona{}, fmt.Errorf("%w: persona: %v", domain.ErrMalformedResponse, err)
	}
	if p.IsZero() {
		return domain.UserPersona{}, fmt.Errorf("%w: persona: empty", domain.ErrMalformedResponse)
	}
	return p, nil
}

func ParseTitle(text string) (string, error) {
	var raw struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return "", fmt.Errorf("%w: title: %v", domain.ErrMalformedResponse, err)
	}
	return strings.Trim(strings.TrimSpace(raw.Title), `"`), nil
}
