package stream

import (
	"context"
	"sync/atomic"
)

// Token is the cancellation signal of one turn. Every component that makes
// forward progress on behalf of the turn checks Cancelled before acting.
type Token struct {
	cancelled atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewToken returns a token whose context is derived from parent. Cancelling
// the token also cancels the context so a blocked transport can unwind.
func NewToken(parent context.Context) *Token {
	ctx, cancel := context.WithCancel(parent)
	return &Token{ctx: ctx, cancel: cancel}
}

// Cancel is idempotent.
func (t *Token) Cancel() {
	if t == nil {
		return
	}
	t.cancelled.Store(true)
	t.cancel()
}

func (t *Token) Cancelled() bool {
	return t != nil && t.cancelled.Load()
}

func (t *Token) Context() context.Context {
	return t.ctx
}

// Release frees the token's context without marking it cancelled. Call it
// once the turn reached a terminal state.
func (t *Token) Release() {
	t.cancel()
}
