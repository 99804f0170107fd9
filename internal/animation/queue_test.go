package animation_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/PabloGalante/symposium/internal/animation"
)

func drain(q *animation.Queue) string {
	var sb strings.Builder
	for {
		r, ok := q.Pop()
		if !ok {
			return sb.String()
		}
		sb.WriteRune(r)
	}
}

func TestQueuePreservesOrderAcrossFragments(t *testing.T) {
	var q animation.Queue
	q.Append("Virtue ")
	q.Append("is ")
	q.Append("excellence.")

	assert.Equal(t, 21, q.Len())
	assert.Equal(t, "Virtue is excellence.", drain(&q))
	assert.True(t, q.Drained())
}

func TestQueueSplitsByCodePoint(t *testing.T) {
	var q animation.Queue
	q.Append("εὐδαιμονία")

	r, ok := q.Pop()
	assert.True(t, ok)
	assert.Equal(t, 'ε', r)
	assert.Equal(t, "ὐδαιμονία", drain(&q))
}

func TestQueuePopOnEmpty(t *testing.T) {
	var q animation.Queue
	_, ok := q.Pop()
	assert.False(t, ok)
	assert.True(t, q.Drained())
}

func TestQueueInterleavedAppendAndPop(t *testing.T) {
	var q animation.Queue
	var sb strings.Builder
	long := strings.Repeat("abcdefghij", 30)
	for i := 0; i < len(long); i += 10 {
		q.Append(long[i : i+10])
		for j := 0; j < 7; j++ {
			r, ok := q.Pop()
			if ok {
				sb.WriteRune(r)
			}
		}
	}
	sb.WriteString(drain(&q))
	assert.Equal(t, long, sb.String())
}

func TestQueueMarkSourceFinishedIsIdempotent(t *testing.T) {
	var q animation.Queue
	assert.False(t, q.Finished())
	q.MarkSourceFinished()
	q.MarkSourceFinished()
	assert.True(t, q.Finished())
}
