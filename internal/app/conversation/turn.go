package conversation

import (
	"context"
	"sync"

	"github.com/PabloGalante/symposium/internal/domain"
	"github.com/PabloGalante/symposium/internal/stream"
)

type TurnState string

const (
	TurnRunning     TurnState = "running"
	TurnCompleted   TurnState = "completed"
	TurnInterrupted TurnState = "interrupted"
	TurnFailed      TurnState = "failed"
)

// TurnResult is the outcome of a finished turn. Messages holds the replies
// in the order they were started, followed by the error notice if any.
type TurnResult struct {
	State    TurnState
	Messages []*domain.Message
	Err      error
}

// Turn is one user submission and everything generated in answer to it. It
// is done once generation returned and every reply it started has been
// finalized.
type Turn struct {
	ID        string
	SessionID domain.SessionID
	// UserMessage is nil for regenerate turns.
	UserMessage *domain.Message

	tok   *stream.Token
	group bool

	mu        sync.Mutex
	order     []domain.MessageID
	pending   map[domain.MessageID]struct{}
	final     map[domain.MessageID]*domain.Message
	errMsg    *domain.Message
	seqDone   bool
	err       error
	result    TurnResult
	done      chan struct{}
}

func newTurn(id string, sessionID domain.SessionID, tok *stream.Token, group bool) *Turn {
	return &Turn{
		ID:        id,
		SessionID: sessionID,
		tok:       tok,
		group:     group,
		pending:   make(map[domain.MessageID]struct{}),
		final:     make(map[domain.MessageID]*domain.Message),
		done:      make(chan struct{}),
		result:    TurnResult{State: TurnRunning},
	}
}

// Done is closed when the turn reached a terminal state.
func (t *Turn) Done() <-chan struct{} { return t.done }

// Wait blocks until the turn is done or ctx ends.
func (t *Turn) Wait(ctx context.Context) (TurnResult, error) {
	select {
	case <-t.done:
		return t.Result(), nil
	case <-ctx.Done():
		return TurnResult{}, ctx.Err()
	}
}

// Result returns the current result; State is TurnRunning until Done.
func (t *Turn) Result() TurnResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	res := t.result
	res.Messages = append([]*domain.Message(nil), res.Messages...)
	return res
}

func (t *Turn) running() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

func (t *Turn) addPending(id domain.MessageID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pending[id]; ok {
		return
	}
	t.pending[id] = struct{}{}
	t.order = append(t.order, id)
}

func (t *Turn) markFinalized(msg *domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pending[msg.ID]; !ok {
		return
	}
	delete(t.pending, msg.ID)
	t.final[msg.ID] = msg.Clone()
	t.maybeCompleteLocked()
}

// finish records the end of generation.
func (t *Turn) finish(errMsg *domain.Message, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seqDone = true
	t.errMsg = errMsg
	t.err = err
	t.maybeCompleteLocked()
}

func (t *Turn) maybeCompleteLocked() {
	if !t.seqDone || len(t.pending) > 0 || !t.running() {
		return
	}

	res := TurnResult{Err: t.err}
	for _, id := range t.order {
		if m, ok := t.final[id]; ok {
			res.Messages = append(res.Messages, m)
		}
	}
	if t.errMsg != nil {
		res.Messages = append(res.Messages, t.errMsg.Clone())
	}
	switch {
	case t.tok.Cancelled():
		res.State = TurnInterrupted
	case t.err != nil:
		res.State = TurnFailed
	default:
		res.State = TurnCompleted
	}
	t.result = res
	t.tok.Release()
	close(t.done)
}
