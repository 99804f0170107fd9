package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/PabloGalante/symposium/internal/app/conversation"
	"github.com/PabloGalante/symposium/internal/catalog"
	"github.com/PabloGalante/symposium/internal/domain"
	"github.com/PabloGalante/symposium/internal/observability"
)

// waitTimeout bounds POST /sessions/{id}/messages?wait=true.
const waitTimeout = 2 * time.Minute

type Server struct {
	svc      *conversation.Service
	catalog  *catalog.Catalog
	upgrader websocket.Upgrader
	now      func() time.Time
}

func NewServer(svc *conversation.Service, cat *catalog.Catalog) http.Handler {
	s := &Server{
		svc:     svc,
		catalog: cat,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		now: time.Now,
	}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)

	mux.HandleFunc("GET /personas", s.handleListPersonas)
	mux.HandleFunc("POST /personas/suggest", s.handleSuggestPersona)

	mux.HandleFunc("GET /settings", s.handleGetSettings)
	mux.HandleFunc("PUT /settings", s.handlePutSettings)
	mux.HandleFunc("GET /user-persona", s.handleGetUserPersona)
	mux.HandleFunc("PUT /user-persona", s.handlePutUserPersona)

	mux.HandleFunc("POST /sessions", s.handleCreateSession)
	mux.HandleFunc("GET /sessions", s.handleListSessions)
	mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	mux.HandleFunc("PATCH /sessions/{id}", s.handleRenameSession)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /sessions/{id}/load", s.handleLoadSession)
	mux.HandleFunc("POST /sessions/{id}/messages", s.handleSendMessage)
	mux.HandleFunc("POST /sessions/{id}/stop", s.handleStop)
	mux.HandleFunc("POST /sessions/{id}/messages/{mid}/regenerate", s.handleRegenerate)
	mux.HandleFunc("POST /sessions/{id}/context", s.handleRefreshContext)
	mux.HandleFunc("GET /sessions/{id}/stream", s.handleStream)

	return chainMiddlewares(mux, withLogging, withRequestID, withCORS)
}

func sessionID(r *http.Request) domain.SessionID {
	return domain.SessionID(r.PathValue("id"))
}

// ─────────────────────────────────────────────
// Catalog and preferences
// ─────────────────────────────────────────────

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListPersonas(w http.ResponseWriter, _ *http.Request) {
	resp := personasResponse{
		Personas: make([]personaResponse, 0),
		Groups:   make([]targetResponse, 0),
	}
	for _, p := range s.catalog.List() {
		resp.Personas = append(resp.Personas, toPersonaResponse(p))
	}
	for _, g := range s.catalog.Groups() {
		resp.Groups = append(resp.Groups, toTargetResponse(g))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSuggestPersona(w http.ResponseWriter, r *http.Request) {
	p, ok := s.svc.SuggestUserPersona(r.Context())
	if !ok {
		writeError(w, http.StatusBadGateway, "no persona suggestion available")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toSettingsDTO(s.svc.Settings()))
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsDTO
	if !decode(w, r, &req) {
		return
	}
	if err := s.svc.UpdateSettings(req.toDomain()); err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsDTO(s.svc.Settings()))
}

func (s *Server) handleGetUserPersona(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.UserPersona())
}

func (s *Server) handlePutUserPersona(w http.ResponseWriter, r *http.Request) {
	var req domain.UserPersona
	if !decode(w, r, &req) {
		return
	}
	s.svc.SetUserPersona(req)
	writeJSON(w, http.StatusOK, s.svc.UserPersona())
}

// ─────────────────────────────────────────────
// Sessions
// ─────────────────────────────────────────────

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decode(w, r, &req) {
		return
	}

	if req.UserID == "" {
		badRequest(w, "user_id is required")
		return
	}

	target, err := s.resolveTarget(req)
	if err != nil {
		if errors.Is(err, domain.ErrPersonaNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		badRequest(w, err.Error())
		return
	}

	out, err := s.svc.StartSession(
		r.Context(),
		conversation.StartSessionInput{
			UserID: domain.UserID(req.UserID),
			Target: target,
			Title:  req.Title,
		},
	)
	if err != nil {
		serviceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toSessionResponse(out.Session))
}

func (s *Server) resolveTarget(req createSessionRequest) (domain.ChatTarget, error) {
	set := 0
	for _, ok := range []bool{req.PersonaID != "", req.GroupID != "", len(req.Members) > 0} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return domain.ChatTarget{}, errors.New("exactly one of persona_id, group_id or members is required")
	}

	switch {
	case req.PersonaID != "":
		return s.catalog.PersonaTarget(domain.PersonaID(req.PersonaID))
	case req.GroupID != "":
		return s.catalog.GroupTarget(req.GroupID)
	default:
		members := make([]domain.PersonaID, 0, len(req.Members))
		for _, m := range req.Members {
			members = append(members, domain.PersonaID(m))
		}
		return s.catalog.CustomTarget(members, s.now())
	}
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		badRequest(w, "user_id is required")
		return
	}
	limit, ok := intQuery(w, r, "limit")
	if !ok {
		return
	}

	sessions, err := s.svc.ListSessions(r.Context(), domain.UserID(userID), limit)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	out := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, toSessionResponse(sess))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	limit, ok := intQuery(w, r, "limit")
	if !ok {
		return
	}
	session, msgs, err := s.svc.GetSessionTimeline(r.Context(), sessionID(r), limit)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	s.writeTimeline(w, session, msgs)
}

func (s *Server) handleLoadSession(w http.ResponseWriter, r *http.Request) {
	session, msgs, err := s.svc.LoadSession(r.Context(), sessionID(r))
	if err != nil {
		serviceError(w, r, err)
		return
	}
	s.writeTimeline(w, session, msgs)
}

func (s *Server) writeTimeline(w http.ResponseWriter, session *domain.Session, msgs []*domain.Message) {
	resp := getSessionResponse{
		Session:  toSessionResponse(session),
		Messages: toMessagesResponse(msgs),
	}
	if t, ok := s.svc.ActiveTurn(session.ID); ok {
		resp.TurnID = t.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRenameSession(w http.ResponseWriter, r *http.Request) {
	var req renameSessionRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.svc.RenameSession(r.Context(), sessionID(r), req.Title); err != nil {
		serviceError(w, r, err)
		return
	}
	session, _, err := s.svc.GetSessionTimeline(r.Context(), sessionID(r), 1)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteSession(r.Context(), sessionID(r)); err != nil {
		serviceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─────────────────────────────────────────────
// Turns
// ─────────────────────────────────────────────

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		badRequest(w, "text is required")
		return
	}

	turn, err := s.svc.SendMessage(
		r.Context(),
		conversation.SendMessageInput{
			SessionID: sessionID(r),
			Text:      req.Text,
		},
	)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	s.writeTurn(w, r, turn)
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	var req regenerateRequest
	if !decode(w, r, &req) {
		return
	}
	mode := domain.RegenerateMode(strings.ToLower(strings.TrimSpace(req.Mode)))
	if mode != domain.RegenerateShorten && mode != domain.RegenerateLengthen {
		badRequest(w, "mode must be shorten or lengthen")
		return
	}

	turn, err := s.svc.Regenerate(r.Context(), sessionID(r), domain.MessageID(r.PathValue("mid")), mode)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	s.writeTurn(w, r, turn)
}

// writeTurn answers 202 with the running turn, or 200 with its outcome when
// the caller asked to wait.
func (s *Server) writeTurn(w http.ResponseWriter, r *http.Request, turn *conversation.Turn) {
	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if !wait {
		writeJSON(w, http.StatusAccepted, toTurnResponse(turn, turn.Result()))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), waitTimeout)
	defer cancel()
	res, err := turn.Wait(ctx)
	if err != nil {
		writeJSON(w, http.StatusAccepted, toTurnResponse(turn, turn.Result()))
		return
	}
	writeJSON(w, http.StatusOK, toTurnResponse(turn, res))
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Stop(r.Context(), sessionID(r)); err != nil {
		serviceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRefreshContext(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.RefreshContext(r.Context(), sessionID(r))
	if err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "invalid JSON body")
		return false
	}
	return true
}

func intQuery(w http.ResponseWriter, r *http.Request, key string) (int, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		badRequest(w, key+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{
		"error": msg,
	})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, msg)
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrMessageNotFound),
		errors.Is(err, domain.ErrPersonaNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrTurnInProgress),
		errors.Is(err, domain.ErrSessionExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrEmptyMessage),
		errors.Is(err, domain.ErrEmptyTitle),
		errors.Is(err, domain.ErrInvalidSettings):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrConfiguration),
		errors.Is(err, conversation.ErrServiceClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrMalformedResponse),
		domain.IsTransport(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func serviceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		observability.LoggerFromContext(r.Context()).Error("request failed", "error", err)
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}
