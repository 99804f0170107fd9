package animation

import (
	"context"
	"errors"
	"time"
)

// DefaultInterval is roughly one display frame.
const DefaultInterval = 16 * time.Millisecond

var ErrStopped = errors.New("animation runner stopped")

type command struct {
	fn   func(*Scheduler)
	done chan struct{}
}

// Runner confines a Scheduler to one goroutine. Callers reach the scheduler
// only through Do; a ticker drives Tick while work remains and is disarmed
// when the scheduler goes idle.
type Runner struct {
	sched    *Scheduler
	interval time.Duration
	cmds     chan command
	stopped  chan struct{}
}

func NewRunner(sched *Scheduler, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Runner{
		sched:    sched,
		interval: interval,
		cmds:     make(chan command),
		stopped:  make(chan struct{}),
	}
}

// Run owns the scheduler until ctx is done. It must be called exactly once.
func (r *Runner) Run(ctx context.Context) {
	defer close(r.stopped)

	var (
		ticker *time.Ticker
		tick   <-chan time.Time
	)
	arm := func(active bool) {
		switch {
		case active && ticker == nil:
			ticker = time.NewTicker(r.interval)
			tick = ticker.C
		case !active && ticker != nil:
			ticker.Stop()
			ticker, tick = nil, nil
		}
	}
	defer func() { arm(false) }()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-r.cmds:
			cmd.fn(r.sched)
			close(cmd.done)
			arm(r.sched.Active())
		case <-tick:
			arm(r.sched.Tick())
		}
	}
}

// Do runs fn on the scheduler goroutine and waits for it to return.
func (r *Runner) Do(ctx context.Context, fn func(*Scheduler)) error {
	cmd := command{fn: fn, done: make(chan struct{})}
	select {
	case r.cmds <- cmd:
	case <-r.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-cmd.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stopped is closed once Run returned.
func (r *Runner) Stopped() <-chan struct{} { return r.stopped }
