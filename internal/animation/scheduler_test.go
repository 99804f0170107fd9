package animation_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/symposium/internal/animation"
	"github.com/PabloGalante/symposium/internal/domain"
	"github.com/PabloGalante/symposium/internal/stream"
)

type recorder struct {
	frames      []animation.Frame
	finals      []*domain.Message
	interrupted []bool
}

func (r *recorder) Publish(f animation.Frame) { r.frames = append(r.frames, f) }

func (r *recorder) Finalize(m *domain.Message, interrupted bool) {
	r.finals = append(r.finals, m)
	r.interrupted = append(r.interrupted, interrupted)
}

func (r *recorder) framesFor(id domain.MessageID) []animation.Frame {
	var out []animation.Frame
	for _, f := range r.frames {
		if f.MessageID == id {
			out = append(out, f)
		}
	}
	return out
}

func newScheduler(t *testing.T) (*animation.Scheduler, *recorder, *stream.Token) {
	t.Helper()
	rec := &recorder{}
	s := animation.NewScheduler(rec, rec)
	tok := stream.NewToken(context.Background())
	t.Cleanup(tok.Release)
	s.Begin(tok)
	return s, rec, tok
}

func register(t *testing.T, s *animation.Scheduler, id domain.MessageID) {
	t.Helper()
	require.True(t, s.Register(&domain.Message{ID: id, SessionID: "s1", Sender: "socrates"}))
}

func runUntilIdle(t *testing.T, s *animation.Scheduler) int {
	t.Helper()
	for i := 1; i < 10_000; i++ {
		if !s.Tick() {
			return i
		}
	}
	t.Fatal("scheduler never went idle")
	return 0
}

func TestSingleMessageRevealsOneCharacterPerTick(t *testing.T) {
	s, rec, _ := newScheduler(t)
	register(t, s, "m1")

	appends := 0
	for _, f := range []string{"Virtue ", "is ", "excellence."} {
		if s.Append("m1", f) {
			appends++
		}
	}
	s.MarkSourceFinished("m1")
	runUntilIdle(t, s)

	assert.Equal(t, 3, appends)
	require.Len(t, rec.finals, 1)
	assert.Equal(t, "Virtue is excellence.", rec.finals[0].Text)
	assert.False(t, rec.interrupted[0])

	frames := rec.framesFor("m1")
	require.NotEmpty(t, frames)
	// registration frame, one frame per character, final frame
	require.Len(t, frames, 1+21+1)

	prev := ""
	for _, f := range frames[:len(frames)-1] {
		visible := strings.TrimSuffix(f.Text, animation.Cursor)
		assert.True(t, strings.HasPrefix(visible, prev), "visible text must only grow")
		prev = visible
	}
	assert.Equal(t, "V"+animation.Cursor, frames[1].Text)
	assert.Equal(t, "Vi"+animation.Cursor, frames[2].Text)

	last := frames[len(frames)-1]
	assert.True(t, last.Final)
	assert.Equal(t, "Virtue is excellence.", last.Text)
	assert.Equal(t, 0, s.Len())
}

func TestEveryStreamingFrameEndsWithOneCursor(t *testing.T) {
	s, rec, _ := newScheduler(t)
	register(t, s, "a")
	register(t, s, "b")
	s.Append("a", "first speaker")
	s.Append("b", "second")
	s.MarkSourceFinished("a")
	s.MarkSourceFinished("b")
	runUntilIdle(t, s)

	for _, f := range rec.frames {
		if f.Final {
			assert.False(t, f.Streaming(), f.Text)
			assert.NotContains(t, f.Text, animation.Cursor)
			continue
		}
		assert.True(t, f.Streaming(), f.Text)
		assert.Equal(t, 1, strings.Count(f.Text, animation.Cursor), f.Text)
	}
	for _, m := range rec.finals {
		assert.NotContains(t, m.Text, animation.Cursor)
	}
}

func TestFairInterleaving(t *testing.T) {
	s, _, _ := newScheduler(t)
	register(t, s, "a")
	register(t, s, "b")
	s.Append("a", "xyz")
	s.Append("b", "uvw")

	s.Tick()
	s.Tick()

	a, _ := s.Visible("a")
	b, _ := s.Visible("b")
	assert.Equal(t, "x"+animation.Cursor, a)
	assert.Equal(t, "u"+animation.Cursor, b)

	s.Tick()
	s.Tick()
	a, _ = s.Visible("a")
	b, _ = s.Visible("b")
	assert.Equal(t, "xy"+animation.Cursor, a)
	assert.Equal(t, "uv"+animation.Cursor, b)
}

func TestRoundRobinSkipsIdleQueues(t *testing.T) {
	s, _, _ := newScheduler(t)
	register(t, s, "a")
	register(t, s, "b")
	register(t, s, "c")
	s.Append("a", "aa")
	s.Append("c", "cc")

	for range 4 {
		s.Tick()
	}
	a, _ := s.Visible("a")
	b, _ := s.Visible("b")
	c, _ := s.Visible("c")
	assert.Equal(t, "aa"+animation.Cursor, a)
	assert.Equal(t, animation.Cursor, b)
	assert.Equal(t, "cc"+animation.Cursor, c)
}

func TestFinalizeHappensOnceAndIsIdempotent(t *testing.T) {
	s, rec, _ := newScheduler(t)
	register(t, s, "m1")
	s.Append("m1", "done")
	s.MarkSourceFinished("m1")
	runUntilIdle(t, s)
	require.Len(t, rec.finals, 1)
	frames := len(rec.frames)

	s.MarkSourceFinished("m1")
	assert.False(t, s.Append("m1", "more"))
	assert.False(t, s.Tick())
	s.Stop()
	s.Tick()

	assert.Len(t, rec.finals, 1)
	assert.Equal(t, "done", rec.finals[0].Text)
	assert.Len(t, rec.frames, frames)
}

func TestFinishedQueueWaitsForOthersToDrain(t *testing.T) {
	s, rec, _ := newScheduler(t)
	register(t, s, "a")
	register(t, s, "b")
	s.Append("a", "a")
	s.Append("b", "bbbb")
	s.MarkSourceFinished("a")

	for range 3 {
		s.Tick()
	}
	assert.Empty(t, rec.finals, "finalization only runs once no queue has pending work")

	s.MarkSourceFinished("b")
	runUntilIdle(t, s)
	require.Len(t, rec.finals, 2)
	assert.Equal(t, domain.MessageID("a"), rec.finals[0].ID)
	assert.Equal(t, "bbbb", rec.finals[1].Text)
}

func TestZeroFragmentMessageStillFinalizes(t *testing.T) {
	s, rec, _ := newScheduler(t)
	register(t, s, "empty")
	s.MarkSourceFinished("empty")

	assert.False(t, s.Tick())
	require.Len(t, rec.finals, 1)
	assert.Equal(t, "", rec.finals[0].Text)
}

func TestIdleWhileWaitingForFragments(t *testing.T) {
	s, _, _ := newScheduler(t)
	register(t, s, "m1")
	assert.False(t, s.Active())

	s.Append("m1", "x")
	assert.True(t, s.Active())
	assert.False(t, s.Tick(), "drained but unfinished queue does not keep the loop armed")
	assert.Equal(t, 1, s.Len())
}

func TestStopCompletesWithinOneTick(t *testing.T) {
	s, rec, tok := newScheduler(t)
	register(t, s, "a")
	register(t, s, "b")
	s.Append("a", "alpha beta")
	s.Append("b", "gamma")
	for range 4 {
		s.Tick()
	}

	s.Stop()
	assert.True(t, tok.Cancelled())
	for _, id := range []domain.MessageID{"a", "b"} {
		frames := rec.framesFor(id)
		assert.NotContains(t, frames[len(frames)-1].Text, animation.Cursor, "cursor stripped immediately")
		v, ok := s.Visible(id)
		require.True(t, ok)
		assert.NotContains(t, v, animation.Cursor)
	}

	assert.False(t, s.Tick())
	assert.Equal(t, 0, s.Len())
	require.Len(t, rec.finals, 2)
	assert.Equal(t, "al", rec.finals[0].Text)
	assert.Equal(t, "ga", rec.finals[1].Text)
	assert.Equal(t, []bool{true, true}, rec.interrupted)
	for _, id := range []domain.MessageID{"a", "b"} {
		frames := rec.framesFor(id)
		assert.True(t, frames[len(frames)-1].Final)
		assert.NotContains(t, frames[len(frames)-1].Text, animation.Cursor)
	}
}

func TestCancelledTurnRejectsNewWork(t *testing.T) {
	s, _, tok := newScheduler(t)
	register(t, s, "a")
	tok.Cancel()

	assert.False(t, s.Register(&domain.Message{ID: "b"}))
	assert.False(t, s.Append("a", "late"))
}

func TestBeginCleansUpCancelledTurn(t *testing.T) {
	s, rec, _ := newScheduler(t)
	register(t, s, "old")
	s.Append("old", "abc")
	s.Tick()
	s.Stop()

	next := stream.NewToken(context.Background())
	defer next.Release()
	s.Begin(next)

	require.Len(t, rec.finals, 1)
	assert.Equal(t, "a", rec.finals[0].Text)
	assert.True(t, s.Register(&domain.Message{ID: "new"}))
}

func TestResetDropsRegistry(t *testing.T) {
	s, rec, _ := newScheduler(t)
	register(t, s, "a")
	s.Append("a", "abc")
	s.Reset()

	assert.Equal(t, 0, s.Len())
	assert.False(t, s.Active())
	assert.False(t, s.Tick())
	assert.Empty(t, rec.finals)
	_, ok := s.Visible("a")
	assert.False(t, ok)
}
