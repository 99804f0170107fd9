package animation

// Queue holds the characters of one message that arrived but are not yet
// revealed. Only the scheduler pops; producers append and mark the source
// finished.
type Queue struct {
	pending  []rune
	head     int
	finished bool
}

// Append splits fragment into characters and queues them in order.
func (q *Queue) Append(fragment string) {
	for _, r := range fragment {
		q.pending = append(q.pending, r)
	}
}

// MarkSourceFinished records that no further Append calls will happen.
func (q *Queue) MarkSourceFinished() {
	q.finished = true
}

// Pop removes and returns the oldest pending character.
func (q *Queue) Pop() (rune, bool) {
	if q.head >= len(q.pending) {
		return 0, false
	}
	r := q.pending[q.head]
	q.head++
	if q.head == len(q.pending) {
		q.pending = q.pending[:0]
		q.head = 0
	} else if q.head > 64 && q.head*2 > len(q.pending) {
		n := copy(q.pending, q.pending[q.head:])
		q.pending = q.pending[:n]
		q.head = 0
	}
	return r, true
}

// Len is the number of characters still waiting to be revealed.
func (q *Queue) Len() int { return len(q.pending) - q.head }

func (q *Queue) Drained() bool { return q.Len() == 0 }

func (q *Queue) Finished() bool { return q.finished }

// discard drops everything still pending.
func (q *Queue) discard() {
	q.pending = q.pending[:0]
	q.head = 0
}
