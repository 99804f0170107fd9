package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PabloGalante/symposium/internal/animation"
	"github.com/PabloGalante/symposium/internal/app/debate"
	"github.com/PabloGalante/symposium/internal/domain"
	"github.com/PabloGalante/symposium/internal/observability"
	"github.com/PabloGalante/symposium/internal/stream"
)

// DefaultCommitDelay separates committing the user message from the start of
// generation.
const DefaultCommitDelay = 50 * time.Millisecond

const errorNotice = "An error occurred. Please try again."

var ErrServiceClosed = errors.New("conversation service closed")

// Dependencies are the ports the service drives.
type Dependencies struct {
	LLM        domain.LLMClient
	Summarizer domain.ContextSummarizer
	Titles     domain.TitleInferrer
	Suggester  domain.PersonaSuggester
	Personas   domain.PersonaDirectory
	Sessions   domain.SessionStore
	Messages   domain.MessageStore
}

type Options struct {
	FrameInterval time.Duration
	CommitDelay   time.Duration
	FailurePolicy debate.FailurePolicy
	// HistoryLimit caps the prior messages sent with a request; 0 sends all.
	HistoryLimit int
	Settings     domain.Settings
	Now          func() time.Time
}

func DefaultOptions() Options {
	return Options{
		FrameInterval: animation.DefaultInterval,
		CommitDelay:   DefaultCommitDelay,
		FailurePolicy: debate.FailAbort,
		Settings:      domain.DefaultSettings(),
	}
}

type Service struct {
	deps       Dependencies
	opts       Options
	now        func() time.Time
	seq        *debate.Sequencer
	reconciler *Reconciler
	hub        *Hub

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	runtimes map[domain.SessionID]*runtime
	closed   bool
	wg       sync.WaitGroup

	prefMu      sync.RWMutex
	settings    domain.Settings
	userPersona domain.UserPersona
}

func NewService(deps Dependencies, opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		deps:       deps,
		opts:       opts,
		now:        now,
		seq:        debate.NewSequencer(deps.LLM, opts.FailurePolicy),
		reconciler: NewReconciler(deps.Sessions, deps.Messages, deps.Titles, now),
		hub:        NewHub(),
		ctx:        ctx,
		cancel:     cancel,
		runtimes:   make(map[domain.SessionID]*runtime),
		settings:   opts.Settings,
	}
}

type StartSessionInput struct {
	UserID domain.UserID
	Target domain.ChatTarget
	// Title is optional; an explicit title is never replaced by inference.
	Title string
}

type StartSessionOutput struct {
	Session *domain.Session
}

func (s *Service) StartSession(ctx context.Context, in StartSessionInput) (*StartSessionOutput, error) {
	log := observability.LoggerFromContext(ctx).With(
		"user_id", in.UserID,
		"target", in.Target.ID,
	)
	log.Info("starting new session")

	target := in.Target
	if target.Kind == domain.TargetPersona && len(target.Members) == 0 {
		target.Members = []domain.PersonaID{domain.PersonaID(target.ID)}
	}
	if _, err := s.speakers(target); err != nil {
		log.Error("invalid chat target", "error", err)
		return nil, err
	}

	now := s.now()
	session := &domain.Session{
		ID:        domain.SessionID(uuid.NewString()),
		UserID:    in.UserID,
		CreatedAt: now,
		UpdatedAt: now,
		Target:    target,
		Title:     strings.TrimSpace(in.Title),
	}
	if session.Title != "" {
		session.TitleExplicit = true
	} else {
		session.Title = "New Chat with " + target.Name
	}

	if err := s.deps.Sessions.CreateSession(ctx, session); err != nil {
		log.Error("failed to create session", "error", err)
		return nil, err
	}

	log.Info("session started", "session_id", session.ID)
	return &StartSessionOutput{Session: session}, nil
}

func (s *Service) GetSessionTimeline(
	ctx context.Context,
	sessionID domain.SessionID,
	limit int,
) (*domain.Session, []*domain.Message, error) {
	log := observability.LoggerFromContext(ctx).With(
		"session_id", sessionID,
		"limit", limit,
	)

	session, err := s.deps.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		log.Error("failed to get session", "error", err)
		return nil, nil, err
	}

	msgs, err := s.deps.Messages.GetMessagesBySession(ctx, sessionID, limit)
	if err != nil {
		log.Error("failed to get messages", "error", err)
		return nil, nil, err
	}

	log.Info("fetched session timeline", "message_count", len(msgs))
	return session, msgs, nil
}

func (s *Service) ListSessions(ctx context.Context, userID domain.UserID, limit int) ([]*domain.Session, error) {
	return s.deps.Sessions.ListSessionsByUser(ctx, userID, limit)
}

// LoadSession switches to a stored session. Any turn still animating in it
// is interrupted, its partial replies are finalized and the animation
// registry is cleared before the timeline is read.
func (s *Service) LoadSession(ctx context.Context, sessionID domain.SessionID) (*domain.Session, []*domain.Message, error) {
	log := observability.LoggerFromContext(ctx).With("session_id", sessionID)

	if _, err := s.deps.Sessions.GetSession(ctx, sessionID); err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	rt := s.runtimes[sessionID]
	var turn *Turn
	if rt != nil {
		turn = rt.turn
	}
	s.mu.Unlock()

	if rt != nil {
		if err := rt.reset(ctx, turn); err != nil && !errors.Is(err, animation.ErrStopped) {
			log.Error("failed to reset session runtime", "error", err)
			return nil, nil, err
		}
	}

	log.Info("session loaded")
	return s.GetSessionTimeline(ctx, sessionID, 0)
}

func (s *Service) RenameSession(ctx context.Context, sessionID domain.SessionID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.ErrEmptyTitle
	}
	explicit := true
	now := s.now()
	if err := s.deps.Sessions.UpdateSession(ctx, sessionID, domain.SessionUpdate{
		Title:         &title,
		TitleExplicit: &explicit,
		UpdatedAt:     &now,
	}); err != nil {
		return err
	}
	observability.LoggerFromContext(ctx).Info("session renamed", "session_id", sessionID)
	return nil
}

func (s *Service) DeleteSession(ctx context.Context, sessionID domain.SessionID) error {
	if _, err := s.deps.Sessions.GetSession(ctx, sessionID); err != nil {
		return err
	}
	if err := s.CloseSession(ctx, sessionID); err != nil {
		return err
	}

	if err := s.deps.Messages.DeleteMessagesBySession(ctx, sessionID); err != nil {
		return err
	}
	if err := s.deps.Sessions.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	observability.LoggerFromContext(ctx).Info("session deleted", "session_id", sessionID)
	return nil
}

// CloseSession interrupts the session's turn and releases its runner.
// Subscriptions to the session are closed.
func (s *Service) CloseSession(ctx context.Context, sessionID domain.SessionID) error {
	s.mu.Lock()
	rt := s.runtimes[sessionID]
	delete(s.runtimes, sessionID)
	var turn *Turn
	if rt != nil {
		turn = rt.turn
	}
	s.mu.Unlock()

	defer s.hub.closeSession(sessionID)
	defer s.reconciler.Forget(sessionID)
	if rt == nil {
		return nil
	}
	return s.shutdown(ctx, rt, turn)
}

// Close stops every session and waits for background work to return.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	rts := make([]*runtime, 0, len(s.runtimes))
	turns := make([]*Turn, 0, len(s.runtimes))
	for id, rt := range s.runtimes {
		rts = append(rts, rt)
		turns = append(turns, rt.turn)
		delete(s.runtimes, id)
	}
	s.mu.Unlock()

	var errs []error
	for i, rt := range rts {
		if err := s.shutdown(ctx, rt, turns[i]); err != nil {
			errs = append(errs, err)
		}
	}
	s.cancel()
	s.reconciler.Wait()
	s.wg.Wait()
	s.hub.closeAll()
	return errors.Join(errs...)
}

func (s *Service) shutdown(ctx context.Context, rt *runtime, turn *Turn) error {
	err := rt.reset(ctx, turn)
	if errors.Is(err, animation.ErrStopped) {
		err = nil
	}
	rt.turnWG.Wait()
	rt.cancel()
	<-rt.runner.Stopped()
	return err
}

type SendMessageInput struct {
	SessionID domain.SessionID
	Text      string
}

// SendMessage commits the user's message and starts answering it. The
// returned Turn completes once every reply has finished animating.
func (s *Service) SendMessage(ctx context.Context, in SendMessageInput) (*Turn, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, domain.ErrEmptyMessage
	}

	session, err := s.deps.Sessions.GetSession(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	speakers, err := s.speakers(session.Target)
	if err != nil {
		return nil, err
	}

	log := observability.LoggerFromContext(ctx).With(
		"session_id", session.ID,
		"user_id", session.UserID,
		"target", session.Target.ID,
	)

	settings := s.Settings()
	userPersona := s.UserPersona()
	group := session.Target.Kind == domain.TargetGroup

	rt, turn, err := s.admit(ctx, session, group && settings.AllowInterruption)
	if err != nil {
		log.Warn("message rejected", "error", err)
		return nil, err
	}
	log = log.With("turn_id", turn.ID)
	log.Info("sending message", "text", text)

	// Read after admission so replies cut short by an interruption are part
	// of the history.
	history, err := s.history(ctx, session.ID)
	if err != nil {
		log.Error("failed to load history", "error", err)
		turn.finish(nil, err)
		return nil, err
	}

	userMsg := &domain.Message{
		ID:          domain.MessageID(uuid.NewString()),
		SessionID:   session.ID,
		Sender:      domain.SenderUser,
		Text:        text,
		CreatedAt:   s.now(),
		ContentType: domain.ContentTypeText,
	}
	if err := s.reconciler.Commit(ctx, userMsg); err != nil {
		log.Error("failed to append user message", "error", err)
		turn.finish(nil, err)
		return nil, err
	}
	turn.UserMessage = userMsg
	s.publishFinal(userMsg)

	s.launch(rt, turn, session, log, func(ctx context.Context, sink debate.Sink) (debate.Result, error) {
		if !s.commitDelay(turn.tok) {
			return debate.Result{Interrupted: true}, nil
		}
		if group {
			return s.seq.RunDebate(ctx, turn.tok, debate.Input{
				Personas:    speakers,
				History:     history,
				UserText:    text,
				UserPersona: userPersona,
				Settings:    settings,
			}, sink)
		}
		p := speakers[0]
		return s.seq.RunSingle(ctx, turn.tok, p, domain.GenerationRequest{
			PersonaID:         p.ID,
			SystemInstruction: p.SystemInstruction,
			History:           history,
			UserText:          withUserPersona(text, userPersona),
			Settings:          settings,
		}, sink)
	}, nil)

	return turn, nil
}

// Regenerate asks the author of messageID for a shorter or longer version
// of it. The result is a new message; the original is left untouched.
func (s *Service) Regenerate(ctx context.Context, sessionID domain.SessionID, messageID domain.MessageID, mode domain.RegenerateMode) (*Turn, error) {
	if mode != domain.RegenerateShorten && mode != domain.RegenerateLengthen {
		return nil, fmt.Errorf("unknown regenerate mode %q", mode)
	}
	session, err := s.deps.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.deps.Messages.GetMessagesBySession(ctx, sessionID, 0)
	if err != nil {
		return nil, err
	}
	var source *domain.Message
	for _, m := range msgs {
		if m.ID == messageID {
			source = m
			break
		}
	}
	if source == nil || source.Sender.IsUser() || source.ContentType == domain.ContentTypeError {
		return nil, fmt.Errorf("%w: %s", domain.ErrMessageNotFound, messageID)
	}
	persona, ok := s.deps.Personas.Get(domain.PersonaID(source.Sender))
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrPersonaNotFound, source.Sender)
	}

	rt, turn, err := s.admit(ctx, session, false)
	if err != nil {
		return nil, err
	}
	log := observability.LoggerFromContext(ctx).With(
		"session_id", sessionID,
		"turn_id", turn.ID,
		"message_id", messageID,
	)
	log.Info("regenerating message", "mode", mode)

	settings := s.Settings()
	settings.MaxOutputLength = 0
	text := animation.StripCursor(source.Text)
	replyTo := source.ID

	s.launch(rt, turn, session, log, func(ctx context.Context, sink debate.Sink) (debate.Result, error) {
		return s.seq.RunSingle(ctx, turn.tok, persona, domain.GenerationRequest{
			PersonaID:         persona.ID,
			SystemInstruction: persona.SystemInstruction,
			UserText:          regeneratePrompt(text, mode),
			Settings:          settings,
		}, sink)
	}, &replyTo)

	return turn, nil
}

// Stop interrupts the session's active turn. It is a no-op when nothing is
// running.
func (s *Service) Stop(ctx context.Context, sessionID domain.SessionID) error {
	s.mu.Lock()
	rt := s.runtimes[sessionID]
	var turn *Turn
	if rt != nil {
		turn = rt.turn
	}
	s.mu.Unlock()

	if turn == nil || !turn.running() {
		return nil
	}
	observability.LoggerFromContext(ctx).Info("stopping turn", "session_id", sessionID, "turn_id", turn.ID)
	turn.tok.Cancel()
	return rt.runner.Do(ctx, func(sc *animation.Scheduler) { sc.Stop() })
}

// ActiveTurn returns the session's running turn, if any.
func (s *Service) ActiveTurn(sessionID domain.SessionID) (*Turn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt := s.runtimes[sessionID]
	if rt == nil || rt.turn == nil || !rt.turn.running() {
		return nil, false
	}
	return rt.turn, true
}

// RefreshContext summarizes the conversation so far and stores the result
// on the session. On failure the previous context is returned with the
// error and nothing is written.
func (s *Service) RefreshContext(ctx context.Context, sessionID domain.SessionID) (domain.ChatContext, error) {
	log := observability.LoggerFromContext(ctx).With("session_id", sessionID)

	session, err := s.deps.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		return domain.ChatContext{}, err
	}
	var prior domain.ChatContext
	if session.Context != nil {
		prior = session.Context.Clone()
	}
	if s.deps.Summarizer == nil {
		return prior, domain.ErrConfiguration
	}

	history, err := s.history(ctx, sessionID)
	if err != nil {
		return prior, err
	}
	if len(history) == 0 {
		return prior, nil
	}
	speakers, err := s.speakers(session.Target)
	if err != nil {
		return prior, err
	}

	next, err := s.deps.Summarizer.Summarize(ctx, history, speakers)
	if err != nil {
		log.Warn("context refresh failed, keeping previous context", "error", err)
		return prior, err
	}
	if err := s.deps.Sessions.UpdateSession(ctx, sessionID, domain.SessionUpdate{Context: &next}); err != nil {
		log.Error("failed to store context", "error", err)
		return prior, err
	}

	log.Info("context refreshed", "summary_points", len(next.Summary), "key_concepts", len(next.KeyConcepts))
	return next, nil
}

// SuggestUserPersona asks the model for a role-play persona. ok is false
// when no usable suggestion came back.
func (s *Service) SuggestUserPersona(ctx context.Context) (domain.UserPersona, bool) {
	if s.deps.Suggester == nil {
		return domain.UserPersona{}, false
	}
	p, err := s.deps.Suggester.SuggestUserPersona(ctx)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("user persona suggestion failed", "error", err)
		return domain.UserPersona{}, false
	}
	return p, true
}

func (s *Service) Settings() domain.Settings {
	s.prefMu.RLock()
	defer s.prefMu.RUnlock()
	return s.settings
}

func (s *Service) UpdateSettings(settings domain.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	s.prefMu.Lock()
	defer s.prefMu.Unlock()
	s.settings = settings
	return nil
}

func (s *Service) UserPersona() domain.UserPersona {
	s.prefMu.RLock()
	defer s.prefMu.RUnlock()
	return s.userPersona
}

func (s *Service) SetUserPersona(p domain.UserPersona) {
	p.Name = strings.TrimSpace(p.Name)
	p.Relationship = strings.TrimSpace(p.Relationship)
	p.Backstory = strings.TrimSpace(p.Backstory)
	s.prefMu.Lock()
	defer s.prefMu.Unlock()
	s.userPersona = p
}

// Subscribe streams animation frames of a session until the returned cancel
// function is called or the session is closed.
func (s *Service) Subscribe(sessionID domain.SessionID) (<-chan animation.Frame, func()) {
	return s.hub.Subscribe(sessionID)
}

// admit creates the next turn of a session. A running turn is interrupted
// when interrupt is set; otherwise the request is rejected.
func (s *Service) admit(ctx context.Context, session *domain.Session, interrupt bool) (*runtime, *Turn, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, nil, ErrServiceClosed
	}
	rt := s.runtimeLocked(session.ID)
	prev := rt.turn
	if prev != nil && prev.running() && !interrupt {
		s.mu.Unlock()
		return nil, nil, domain.ErrTurnInProgress
	}
	tok := stream.NewToken(s.ctx)
	turn := newTurn(uuid.NewString(), session.ID, tok, session.Target.Kind == domain.TargetGroup)
	rt.turn = turn
	s.mu.Unlock()

	interrupting := prev != nil && prev.running()
	if interrupting {
		observability.LoggerFromContext(ctx).Info("interrupting turn",
			"session_id", session.ID, "turn_id", prev.ID)
		prev.tok.Cancel()
	}
	err := rt.runner.Do(ctx, func(sc *animation.Scheduler) {
		if interrupting {
			sc.Stop()
		}
		sc.Begin(tok)
	})
	if err != nil {
		turn.finish(nil, err)
		return nil, nil, err
	}
	return rt, turn, nil
}

func (s *Service) runtimeLocked(id domain.SessionID) *runtime {
	if rt, ok := s.runtimes[id]; ok {
		return rt
	}
	rt := &runtime{
		sessionID: id,
		owners:    make(map[domain.MessageID]*Turn),
	}
	sched := animation.NewScheduler(s.hub, &finalizer{svc: s, rt: rt})
	rt.runner = animation.NewRunner(sched, s.opts.FrameInterval)

	ctx, cancel := context.WithCancel(s.ctx)
	rt.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		rt.runner.Run(ctx)
	}()
	s.runtimes[id] = rt
	return rt
}

type runFunc func(ctx context.Context, sink debate.Sink) (debate.Result, error)

// launch runs generation for turn in its own goroutine. A failure that is not
// an interruption leaves an error notice from the chat target in the log.
func (s *Service) launch(rt *runtime, turn *Turn, session *domain.Session, log *slog.Logger, run runFunc, replyTo *domain.MessageID) {
	sink := &turnSink{svc: s, rt: rt, turn: turn, replyTo: replyTo}
	rt.turnWG.Add(1)
	go func() {
		defer rt.turnWG.Done()

		start := time.Now()
		res, err := run(s.ctx, sink)

		var errMsg *domain.Message
		if err != nil && !turn.tok.Cancelled() {
			log.Error("turn failed", "error", err)
			errMsg = &domain.Message{
				ID:          domain.MessageID(uuid.NewString()),
				SessionID:   turn.SessionID,
				Sender:      domain.Sender(session.Target.ID),
				Text:        errorNotice,
				CreatedAt:   s.now(),
				ContentType: domain.ContentTypeError,
			}
			if cerr := s.reconciler.Commit(s.ctx, errMsg); cerr != nil {
				log.Error("failed to append error message", "error", cerr)
			}
			s.publishFinal(errMsg)
		} else if turn.tok.Cancelled() {
			err = nil
		}

		log.Info("generation finished",
			"speakers", len(res.Speakers),
			"interrupted", res.Interrupted || turn.tok.Cancelled(),
			"elapsed_ms", time.Since(start).Milliseconds())
		turn.finish(errMsg, err)
	}()
}

func (s *Service) commitDelay(tok *stream.Token) bool {
	if s.opts.CommitDelay <= 0 {
		return !tok.Cancelled()
	}
	t := time.NewTimer(s.opts.CommitDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return !tok.Cancelled()
	case <-tok.Context().Done():
		return false
	}
}

// speakers resolves the personas of a chat target in speaking order.
func (s *Service) speakers(target domain.ChatTarget) ([]*domain.Persona, error) {
	if len(target.Members) == 0 {
		return nil, fmt.Errorf("%w: chat target %q has no members", domain.ErrPersonaNotFound, target.ID)
	}
	out := make([]*domain.Persona, 0, len(target.Members))
	for _, id := range target.Members {
		p, ok := s.deps.Personas.Get(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrPersonaNotFound, id)
		}
		out = append(out, p)
	}
	return out, nil
}

// history returns the prior conversation as sent to the model. Error
// notices and empty replies are left out.
func (s *Service) history(ctx context.Context, sessionID domain.SessionID) ([]*domain.Message, error) {
	msgs, err := s.deps.Messages.GetMessagesBySession(ctx, sessionID, s.opts.HistoryLimit)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.ContentType == domain.ContentTypeError || strings.TrimSpace(m.Text) == "" {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Service) publishFinal(msg *domain.Message) {
	s.hub.Publish(animation.Frame{
		SessionID: msg.SessionID,
		MessageID: msg.ID,
		Sender:    msg.Sender,
		Text:      msg.Text,
		Final:     true,
	})
}
