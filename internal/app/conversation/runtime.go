package conversation

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/PabloGalante/symposium/internal/animation"
	"github.com/PabloGalante/symposium/internal/domain"
	"github.com/PabloGalante/symposium/internal/observability"
)

// runtime is the in-flight state of one session: the runner that owns its
// scheduler and the turn currently being answered.
type runtime struct {
	sessionID domain.SessionID
	runner    *animation.Runner
	cancel    context.CancelFunc

	// owners maps registered message ids to their turn. Only the runner
	// goroutine touches it.
	owners map[domain.MessageID]*Turn

	// turn is guarded by Service.mu.
	turn   *Turn
	turnWG sync.WaitGroup
}

// reset interrupts the active turn, finalizes whatever it revealed and
// clears the registry.
func (rt *runtime) reset(ctx context.Context, turn *Turn) error {
	if turn != nil {
		turn.tok.Cancel()
	}
	err := rt.runner.Do(ctx, func(sc *animation.Scheduler) {
		sc.Stop()
		sc.Tick()
		sc.Reset()
		clear(rt.owners)
	})
	if err != nil {
		return err
	}
	if turn != nil {
		if _, err := turn.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

type finalizer struct {
	svc *Service
	rt  *runtime
}

func (f *finalizer) Finalize(msg *domain.Message, interrupted bool) {
	turn := f.rt.owners[msg.ID]
	delete(f.rt.owners, msg.ID)

	if err := f.svc.reconciler.Finalize(f.svc.ctx, msg, interrupted); err != nil {
		observability.WithFields("session_id", msg.SessionID, "message_id", msg.ID).
			Error("failed to store finalized message", "error", err)
	}
	if interrupted {
		observability.WithFields("session_id", msg.SessionID, "message_id", msg.ID).
			Info("message interrupted", "chars", len([]rune(msg.Text)))
	}
	if turn != nil {
		turn.markFinalized(msg)
	}
}

// turnSink routes sequencer output into the session's scheduler.
type turnSink struct {
	svc     *Service
	rt      *runtime
	turn    *Turn
	replyTo *domain.MessageID
}

func (k *turnSink) Start(ctx context.Context, p *domain.Persona) (domain.MessageID, bool, error) {
	id := domain.MessageID(uuid.NewString())
	if k.turn.group {
		id = domain.MessageID(fmt.Sprintf("group-%s-%s", p.ID, uuid.NewString()))
	}
	msg := &domain.Message{
		ID:          id,
		SessionID:   k.turn.SessionID,
		Sender:      domain.PersonaSender(p.ID),
		CreatedAt:   k.svc.now(),
		ContentType: domain.ContentTypeText,
		ReplyTo:     k.replyTo,
	}

	var ok bool
	err := k.rt.runner.Do(ctx, func(sc *animation.Scheduler) {
		if k.turn.tok.Cancelled() || !sc.Register(msg) {
			return
		}
		ok = true
		k.rt.owners[msg.ID] = k.turn
		k.turn.addPending(msg.ID)
		if err := k.svc.reconciler.Placeholder(ctx, msg); err != nil {
			observability.LoggerFromContext(ctx).Error("failed to store placeholder",
				"session_id", msg.SessionID, "message_id", msg.ID, "error", err)
		}
	})
	if err != nil {
		return "", false, err
	}
	return id, ok, nil
}

func (k *turnSink) Append(ctx context.Context, id domain.MessageID, fragment string) error {
	return k.rt.runner.Do(ctx, func(sc *animation.Scheduler) {
		if !k.turn.tok.Cancelled() {
			sc.Append(id, fragment)
		}
	})
}

func (k *turnSink) Finish(ctx context.Context, id domain.MessageID) error {
	return k.rt.runner.Do(ctx, func(sc *animation.Scheduler) {
		sc.MarkSourceFinished(id)
	})
}
