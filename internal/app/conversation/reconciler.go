package conversation

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/PabloGalante/symposium/internal/domain"
	"github.com/PabloGalante/symposium/internal/observability"
)

const defaultTitleTimeout = 30 * time.Second

// Reconciler writes animated messages into the session log. Every message is
// stored under its own id, so a placeholder inserted at registration keeps
// its position when the final text lands.
type Reconciler struct {
	sessions domain.SessionStore
	messages domain.MessageStore
	titles   domain.TitleInferrer
	now      func() time.Time

	titleTimeout time.Duration

	mu     sync.Mutex
	titled map[domain.SessionID]struct{}
	wg     sync.WaitGroup
}

func NewReconciler(sessions domain.SessionStore, messages domain.MessageStore, titles domain.TitleInferrer, now func() time.Time) *Reconciler {
	if now == nil {
		now = time.Now
	}
	return &Reconciler{
		sessions:     sessions,
		messages:     messages,
		titles:       titles,
		now:          now,
		titleTimeout: defaultTitleTimeout,
		titled:       make(map[domain.SessionID]struct{}),
	}
}

// Placeholder stores msg with empty text while it streams.
func (r *Reconciler) Placeholder(ctx context.Context, msg *domain.Message) error {
	p := msg.Clone()
	p.Text = ""
	return r.messages.UpsertMessage(ctx, p)
}

// Commit stores a message that needs no animation, such as the user's own
// message or an error notice.
func (r *Reconciler) Commit(ctx context.Context, msg *domain.Message) error {
	if err := r.messages.UpsertMessage(ctx, msg.Clone()); err != nil {
		return err
	}
	return r.touch(ctx, msg.SessionID)
}

// Finalize writes the final text of msg. The scheduler finalizes each id
// once. Only a reply that ran to completion can trigger title inference.
func (r *Reconciler) Finalize(ctx context.Context, msg *domain.Message, interrupted bool) error {
	if err := r.messages.UpsertMessage(ctx, msg.Clone()); err != nil {
		return err
	}
	if err := r.touch(ctx, msg.SessionID); err != nil {
		return err
	}

	if !interrupted && !msg.Sender.IsUser() && msg.ContentType == domain.ContentTypeText && strings.TrimSpace(msg.Text) != "" {
		r.maybeInferTitle(ctx, msg.SessionID)
	}
	return nil
}

// Forget drops the title guard kept for a session. The persisted
// TitleInferred flag still prevents a second inference after a reload.
func (r *Reconciler) Forget(sessionID domain.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.titled, sessionID)
}

// Wait blocks until background title requests have returned.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}

func (r *Reconciler) touch(ctx context.Context, id domain.SessionID) error {
	now := r.now()
	return r.sessions.UpdateSession(ctx, id, domain.SessionUpdate{UpdatedAt: &now})
}

func (r *Reconciler) maybeInferTitle(ctx context.Context, sessionID domain.SessionID) {
	if r.titles == nil {
		return
	}

	r.mu.Lock()
	if _, seen := r.titled[sessionID]; seen {
		r.mu.Unlock()
		return
	}
	r.titled[sessionID] = struct{}{}
	r.mu.Unlock()

	session, err := r.sessions.GetSession(ctx, sessionID)
	if err != nil || session.TitleExplicit || session.TitleInferred {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.titleTimeout)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		r.inferTitle(ctx, sessionID)
	}()
}

func (r *Reconciler) inferTitle(ctx context.Context, sessionID domain.SessionID) {
	log := observability.LoggerFromContext(ctx).With("session_id", sessionID)

	history, err := r.messages.GetMessagesBySession(ctx, sessionID, 0)
	if err != nil {
		log.Warn("title inference: load history", "error", err)
		return
	}
	title, err := r.titles.InferTitle(ctx, history)
	if err != nil {
		log.Warn("title inference failed", "error", err)
		return
	}
	title = strings.TrimSpace(title)
	if title == "" {
		log.Info("title inference returned nothing")
		return
	}

	// The user may have renamed the session while the request was out.
	session, err := r.sessions.GetSession(ctx, sessionID)
	if err != nil || session.TitleExplicit {
		return
	}
	inferred := true
	if err := r.sessions.UpdateSession(ctx, sessionID, domain.SessionUpdate{
		Title:         &title,
		TitleInferred: &inferred,
	}); err != nil {
		log.Warn("title inference: update session", "error", err)
		return
	}
	log.Info("session title inferred", "title", title)
}
