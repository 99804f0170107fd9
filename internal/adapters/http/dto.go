package httpadapter

import (
	"github.com/PabloGalante/symposium/internal/animation"
	"github.com/PabloGalante/symposium/internal/app/conversation"
	"github.com/PabloGalante/symposium/internal/domain"
)

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type createSessionRequest struct {
	UserID string `json:"user_id"`
	Title  string `json:"title,omitempty"`

	// Exactly one of these selects the chat target.
	PersonaID string   `json:"persona_id,omitempty"`
	GroupID   string   `json:"group_id,omitempty"`
	Members   []string `json:"members,omitempty"`
}

type renameSessionRequest struct {
	Title string `json:"title"`
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

type regenerateRequest struct {
	Mode string `json:"mode"`
}

type targetResponse struct {
	Kind    string   `json:"kind"`
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

type sessionResponse struct {
	ID            string              `json:"id"`
	UserID        string              `json:"user_id"`
	Title         string              `json:"title"`
	TitleExplicit bool                `json:"title_explicit"`
	Target        targetResponse      `json:"target"`
	Context       *domain.ChatContext `json:"context,omitempty"`
	CreatedAt     int64               `json:"created_at"`
	UpdatedAt     int64               `json:"updated_at"`
}

type messageResponse struct {
	ID          string  `json:"id"`
	SessionID   string  `json:"session_id"`
	Sender      string  `json:"sender"`
	Text        string  `json:"text"`
	ContentType string  `json:"content_type"`
	ReplyTo     *string `json:"reply_to,omitempty"`
	Timestamp   int64   `json:"timestamp"`
}

type getSessionResponse struct {
	Session  sessionResponse   `json:"session"`
	Messages []messageResponse `json:"messages"`
	TurnID   string            `json:"active_turn_id,omitempty"`
}

type turnResponse struct {
	ID          string            `json:"id"`
	SessionID   string            `json:"session_id"`
	State       string            `json:"state"`
	UserMessage *messageResponse  `json:"user_message,omitempty"`
	Messages    []messageResponse `json:"messages,omitempty"`
	Error       string            `json:"error,omitempty"`
}

type personaResponse struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Bio        string   `json:"bio,omitempty"`
	MajorWorks []string `json:"major_works,omitempty"`
	Color      string   `json:"color,omitempty"`
}

type personasResponse struct {
	Personas []personaResponse `json:"personas"`
	Groups   []targetResponse  `json:"groups"`
}

type settingsDTO struct {
	Temperature       float32 `json:"temperature"`
	MaxOutputLength   int32   `json:"max_output_length"`
	AllowInterruption bool    `json:"allow_interruption"`
}

type frameResponse struct {
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Streaming bool   `json:"streaming"`
	Final     bool   `json:"final"`
}

// ─────────────────────────────────────────────
// Conversion helpers
// ─────────────────────────────────────────────

func toTargetResponse(t domain.ChatTarget) targetResponse {
	members := make([]string, 0, len(t.Members))
	for _, m := range t.Members {
		members = append(members, string(m))
	}
	return targetResponse{
		Kind:    string(t.Kind),
		ID:      t.ID,
		Name:    t.Name,
		Members: members,
	}
}

func toSessionResponse(s *domain.Session) sessionResponse {
	return sessionResponse{
		ID:            string(s.ID),
		UserID:        string(s.UserID),
		Title:         s.Title,
		TitleExplicit: s.TitleExplicit,
		Target:        toTargetResponse(s.Target),
		Context:       s.Context,
		CreatedAt:     s.CreatedAt.UnixMilli(),
		UpdatedAt:     s.UpdatedAt.UnixMilli(),
	}
}

func toMessageResponse(m *domain.Message) messageResponse {
	resp := messageResponse{
		ID:          string(m.ID),
		SessionID:   string(m.SessionID),
		Sender:      string(m.Sender),
		Text:        m.Text,
		ContentType: m.ContentType,
		Timestamp:   m.CreatedAt.UnixMilli(),
	}
	if m.ReplyTo != nil {
		id := string(*m.ReplyTo)
		resp.ReplyTo = &id
	}
	return resp
}

func toMessagesResponse(msgs []*domain.Message) []messageResponse {
	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageResponse(m))
	}
	return out
}

func toTurnResponse(t *conversation.Turn, res conversation.TurnResult) turnResponse {
	resp := turnResponse{
		ID:        t.ID,
		SessionID: string(t.SessionID),
		State:     string(res.State),
	}
	if t.UserMessage != nil {
		m := toMessageResponse(t.UserMessage)
		resp.UserMessage = &m
	}
	if len(res.Messages) > 0 {
		resp.Messages = toMessagesResponse(res.Messages)
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	return resp
}

func toPersonaResponse(p *domain.Persona) personaResponse {
	return personaResponse{
		ID:         string(p.ID),
		Name:       p.DisplayName,
		Bio:        p.Bio,
		MajorWorks: p.MajorWorks,
		Color:      p.Color,
	}
}

func toSettingsDTO(s domain.Settings) settingsDTO {
	return settingsDTO{
		Temperature:       s.Temperature,
		MaxOutputLength:   s.MaxOutputLength,
		AllowInterruption: s.AllowInterruption,
	}
}

func (d settingsDTO) toDomain() domain.Settings {
	return domain.Settings{
		Temperature:       d.Temperature,
		MaxOutputLength:   d.MaxOutputLength,
		AllowInterruption: d.AllowInterruption,
	}
}

func toFrameResponse(f animation.Frame) frameResponse {
	return frameResponse{
		SessionID: string(f.SessionID),
		MessageID: string(f.MessageID),
		Sender:    string(f.Sender),
		Text:      f.Text,
		Streaming: f.Streaming(),
		Final:     f.Final,
	}
}
