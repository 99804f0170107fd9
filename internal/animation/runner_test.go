package animation_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/PabloGalante/symposium/internal/animation"
	"github.com/PabloGalante/symposium/internal/domain"
	"github.com/PabloGalante/symposium/internal/stream"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type syncRecorder struct {
	mu     sync.Mutex
	finals []*domain.Message
	frames int
}

func (r *syncRecorder) Publish(animation.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames++
}

func (r *syncRecorder) Finalize(m *domain.Message, _ bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finals = append(r.finals, m)
}

func (r *syncRecorder) finalTexts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.finals {
		out = append(out, m.Text)
	}
	return out
}

func startRunner(t *testing.T, rec *syncRecorder) *animation.Runner {
	t.Helper()
	r := animation.NewRunner(animation.NewScheduler(rec, rec), time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-r.Stopped()
	})
	return r
}

func TestRunnerAnimatesToCompletion(t *testing.T) {
	rec := &syncRecorder{}
	r := startRunner(t, rec)
	ctx := context.Background()

	tok := stream.NewToken(ctx)
	defer tok.Release()

	require.NoError(t, r.Do(ctx, func(s *animation.Scheduler) {
		s.Begin(tok)
		s.Register(&domain.Message{ID: "m1", Sender: "socrates"})
	}))
	for _, f := range []string{"Virtue ", "is ", "excellence."} {
		require.NoError(t, r.Do(ctx, func(s *animation.Scheduler) { s.Append("m1", f) }))
	}
	require.NoError(t, r.Do(ctx, func(s *animation.Scheduler) { s.MarkSourceFinished("m1") }))

	require.Eventually(t, func() bool { return len(rec.finalTexts()) == 1 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, []string{"Virtue is excellence."}, rec.finalTexts())
}

func TestRunnerStopFinalizesOnNextTick(t *testing.T) {
	rec := &syncRecorder{}
	r := startRunner(t, rec)
	ctx := context.Background()

	tok := stream.NewToken(ctx)
	require.NoError(t, r.Do(ctx, func(s *animation.Scheduler) {
		s.Begin(tok)
		s.Register(&domain.Message{ID: "m1"})
		s.Append("m1", "a very long reply that will not finish animating")
	}))
	require.NoError(t, r.Do(ctx, func(s *animation.Scheduler) { s.Stop() }))

	require.Eventually(t, func() bool { return len(rec.finalTexts()) == 1 }, 2*time.Second, time.Millisecond)
	var remaining int
	require.NoError(t, r.Do(ctx, func(s *animation.Scheduler) { remaining = s.Len() }))
	assert.Equal(t, 0, remaining)
}

func TestRunnerDoAfterStop(t *testing.T) {
	r := animation.NewRunner(animation.NewScheduler(nil, nil), 0)
	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)
	cancel()
	<-r.Stopped()

	err := r.Do(context.Background(), func(*animation.Scheduler) {})
	assert.ErrorIs(t, err, animation.ErrStopped)
}

func TestRunnerDoHonoursContext(t *testing.T) {
	r := animation.NewRunner(animation.NewScheduler(nil, nil), 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Do(ctx, func(*animation.Scheduler) {})
	assert.ErrorIs(t, err, context.Canceled)
}
