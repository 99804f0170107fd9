package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PabloGalante/symposium/internal/domain"
)

// Script is one scripted reply of the mock model.
type Script struct {
	Fragments []string
	// Err ends the stream after Fragments were yielded.
	Err error
	// StartErr fails the call before any stream is returned.
	StartErr error
	// Hang blocks after Fragments until the request context is done.
	Hang bool
	// Delay is slept before every fragment.
	Delay time.Duration
}

// MockLLM is an offline text model. Unscripted personas answer with a short
// canned reply split into words.
type MockLLM struct {
	mu       sync.Mutex
	scripts  map[domain.PersonaID][]Script
	requests []domain.GenerationRequest

	Summary      domain.ChatContext
	SummaryErr   error
	Title        string
	TitleErr     error
	Suggestion   domain.UserPersona
	SuggestErr   error
	titleCalls   int
	summaryCalls int
}

func NewMockLLM() *MockLLM {
	return &MockLLM{
		scripts: make(map[domain.PersonaID][]Script),
		Summary: domain.ChatContext{
			Summary: []string{"The conversation so far."},
		},
		Suggestion: domain.UserPersona{
			Name:         "A curious student",
			Relationship: "Pupil",
			Backstory:    "Arrived in Athens last spring.",
		},
	}
}

// Script queues replies for persona. Each call to StreamReply for that
// persona consumes one script.
func (m *MockLLM) Script(persona domain.PersonaID, scripts ...Script) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[persona] = append(m.scripts[persona], scripts...)
}

// Requests returns the requests seen so far, in call order.
func (m *MockLLM) Requests() []domain.GenerationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.GenerationRequest(nil), m.requests...)
}

func (m *MockLLM) TitleCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.titleCalls
}

func (m *MockLLM) SummaryCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.summaryCalls
}

func (m *MockLLM) next(req domain.GenerationRequest) Script {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if q := m.scripts[req.PersonaID]; len(q) > 0 {
		m.scripts[req.PersonaID] = q[1:]
		return q[0]
	}
	reply := fmt.Sprintf("%s considers %q.", req.PersonaID, firstLine(req.UserText))
	return Script{Fragments: splitWords(reply)}
}

func (m *MockLLM) StreamReply(ctx context.Context, req domain.GenerationRequest) (domain.Fragments, error) {
	s := m.next(req)
	if s.StartErr != nil {
		return nil, s.StartErr
	}
	return func(yield func(string, error) bool) {
		for _, f := range s.Fragments {
			if s.Delay > 0 {
				select {
				case <-ctx.Done():
					yield("", ctx.Err())
					return
				case <-time.After(s.Delay):
				}
			}
			if !yield(f, nil) {
				return
			}
		}
		if s.Hang {
			<-ctx.Done()
			yield("", ctx.Err())
			return
		}
		if s.Err != nil {
			yield("", s.Err)
		}
	}, nil
}

func (m *MockLLM) Summarize(_ context.Context, _ []*domain.Message, _ []*domain.Persona) (domain.ChatContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaryCalls++
	if m.SummaryErr != nil {
		return domain.ChatContext{}, m.SummaryErr
	}
	return m.Summary.Clone(), nil
}

func (m *MockLLM) InferTitle(_ context.Context, _ []*domain.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.titleCalls++
	return m.Title, m.TitleErr
}

func (m *MockLLM) SuggestUserPersona(context.Context) (domain.UserPersona, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Suggestion, m.SuggestErr
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if r := []rune(s); len(r) > 60 {
		s = string(r[:60])
	}
	return s
}

// splitWords cuts s into fragments that keep their trailing space.
func splitWords(s string) []string {
	words := strings.SplitAfter(s, " ")
	out := words[:0]
	for _, w := range words {
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}
