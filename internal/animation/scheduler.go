package animation

import (
	"context"
	"slices"
	"strings"

	"github.com/PabloGalante/symposium/internal/domain"
	"github.com/PabloGalante/symposium/internal/stream"
)

type entry struct {
	msg      domain.Message
	queue    Queue
	revealed strings.Builder
}

// Scheduler reveals queued characters one tick at a time. It owns the
// registry of in-flight messages and is not safe for concurrent use; Runner
// confines it to a single goroutine.
type Scheduler struct {
	entries map[domain.MessageID]*entry
	order   []domain.MessageID
	// next is the position in order where the round-robin search resumes.
	next int

	token     *stream.Token
	sink      FrameSink
	finalizer Finalizer
}

func NewScheduler(sink FrameSink, finalizer Finalizer) *Scheduler {
	if sink == nil {
		sink = nopSink{}
	}
	if finalizer == nil {
		finalizer = nopFinalizer{}
	}
	return &Scheduler{
		entries:   make(map[domain.MessageID]*entry),
		sink:      sink,
		finalizer: finalizer,
	}
}

// Begin scopes the scheduler to a new turn. Entries left over from a
// cancelled turn are cleaned up first.
func (s *Scheduler) Begin(tok *stream.Token) {
	if s.token.Cancelled() {
		s.cleanup()
	}
	s.token = tok
}

// Register adds a message to the registry and shows its cursor. It returns
// false once the current turn is cancelled.
func (s *Scheduler) Register(msg *domain.Message) bool {
	if s.token.Cancelled() {
		return false
	}
	if _, ok := s.entries[msg.ID]; ok {
		return true
	}
	e := &entry{msg: *msg.Clone()}
	e.msg.Text = ""
	s.entries[msg.ID] = e
	s.order = append(s.order, msg.ID)
	s.publish(e, false)
	return true
}

// Append queues a fragment for id. Fragments for unknown, finished or
// cancelled messages are dropped.
func (s *Scheduler) Append(id domain.MessageID, fragment string) bool {
	e, ok := s.entries[id]
	if !ok || e.queue.Finished() || s.token.Cancelled() {
		return false
	}
	e.queue.Append(fragment)
	return true
}

func (s *Scheduler) MarkSourceFinished(id domain.MessageID) {
	if e, ok := s.entries[id]; ok {
		e.queue.MarkSourceFinished()
	}
}

// Tick performs one animation step and reports whether more work remains.
func (s *Scheduler) Tick() bool {
	if s.token.Cancelled() {
		s.cleanup()
		return false
	}

	if e := s.nextReady(); e != nil {
		r, _ := e.queue.Pop()
		e.revealed.WriteRune(r)
		s.publish(e, false)
		return s.Active()
	}

	for _, id := range slices.Clone(s.order) {
		e := s.entries[id]
		if e.queue.Finished() && e.queue.Drained() {
			s.finalize(id, false)
		}
	}
	return s.Active()
}

// Stop interrupts the current turn: the token is cancelled, every visible
// cursor is stripped right away and every queue is marked finished so the
// next tick finalizes it.
func (s *Scheduler) Stop() {
	if s.token == nil {
		s.token = stream.NewToken(context.Background())
	}
	s.token.Cancel()
	for _, id := range s.order {
		e := s.entries[id]
		e.queue.MarkSourceFinished()
		s.sink.Publish(s.frame(e, false))
	}
}

// Reset drops the whole registry and forgets the current turn without
// finalizing anything.
func (s *Scheduler) Reset() {
	clear(s.entries)
	s.order = s.order[:0]
	s.next = 0
	s.token = nil
}

// Active reports whether any message has characters to reveal or is waiting
// to be finalized.
func (s *Scheduler) Active() bool {
	for _, e := range s.entries {
		if !e.queue.Drained() || e.queue.Finished() {
			return true
		}
	}
	return false
}

// Len is the number of registered messages.
func (s *Scheduler) Len() int { return len(s.entries) }

// Visible returns the text currently shown for id.
func (s *Scheduler) Visible(id domain.MessageID) (string, bool) {
	e, ok := s.entries[id]
	if !ok {
		return "", false
	}
	return s.frame(e, !s.token.Cancelled()).Text, true
}

func (s *Scheduler) nextReady() *entry {
	n := len(s.order)
	for i := 0; i < n; i++ {
		idx := (s.next + i) % n
		e := s.entries[s.order[idx]]
		if !e.queue.Drained() {
			s.next = idx + 1
			return e
		}
	}
	return nil
}

// cleanup finalizes every entry with whatever text was revealed.
func (s *Scheduler) cleanup() {
	for _, id := range slices.Clone(s.order) {
		s.entries[id].queue.discard()
		s.finalize(id, true)
	}
}

func (s *Scheduler) finalize(id domain.MessageID, interrupted bool) {
	e, ok := s.entries[id]
	if !ok {
		return
	}
	idx := slices.Index(s.order, id)
	s.order = slices.Delete(s.order, idx, idx+1)
	if idx < s.next {
		s.next--
	}
	delete(s.entries, id)

	s.publish(e, true)
	msg := e.msg
	msg.Text = e.revealed.String()
	s.finalizer.Finalize(&msg, interrupted)
}

func (s *Scheduler) publish(e *entry, final bool) {
	f := s.frame(e, !final)
	f.Final = final
	s.sink.Publish(f)
}

func (s *Scheduler) frame(e *entry, cursor bool) Frame {
	text := e.revealed.String()
	if cursor {
		text += Cursor
	}
	return Frame{
		SessionID: e.msg.SessionID,
		MessageID: e.msg.ID,
		Sender:    e.msg.Sender,
		Text:      text,
	}
}
