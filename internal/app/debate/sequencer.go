package debate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PabloGalante/symposium/internal/domain"
	"github.com/PabloGalante/symposium/internal/observability"
	"github.com/PabloGalante/symposium/internal/stream"
)

// FailurePolicy decides what happens to the remaining speakers of a debate
// when one speaker's stream fails.
type FailurePolicy string

const (
	// FailAbort skips every remaining speaker.
	FailAbort FailurePolicy = "abort"
	// FailContinue lets the remaining speakers take their turn.
	FailContinue FailurePolicy = "continue"
)

func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(s) {
	case "", FailAbort:
		return FailAbort, nil
	case FailContinue:
		return FailContinue, nil
	}
	return "", fmt.Errorf("unknown debate failure policy %q", s)
}

// Sink receives the output of each speaker. Start is called lazily on the
// first fragment (or once the stream ended empty) and returns ok=false when
// the turn no longer accepts new messages.
type Sink interface {
	Start(ctx context.Context, persona *domain.Persona) (id domain.MessageID, ok bool, err error)
	Append(ctx context.Context, id domain.MessageID, fragment string) error
	Finish(ctx context.Context, id domain.MessageID) error
}

// SpeakerResult is what one persona produced during a turn.
type SpeakerResult struct {
	PersonaID   domain.PersonaID
	MessageID   domain.MessageID
	Text        string
	Interrupted bool
	Err         error
}

// Result of a whole turn. Speakers lists only the personas that were
// attempted, in order.
type Result struct {
	Speakers    []SpeakerResult
	Interrupted bool
}

// Sequencer runs the speakers of a turn one after another.
type Sequencer struct {
	llm    domain.LLMClient
	policy FailurePolicy
}

func NewSequencer(llm domain.LLMClient, policy FailurePolicy) *Sequencer {
	if policy == "" {
		policy = FailAbort
	}
	return &Sequencer{llm: llm, policy: policy}
}

// Input of a debate turn.
type Input struct {
	Personas    []*domain.Persona
	History     []*domain.Message
	UserText    string
	UserPersona domain.UserPersona
	Settings    domain.Settings
}

// RunSingle streams one reply for req. It is the degenerate one-speaker turn.
func (s *Sequencer) RunSingle(ctx context.Context, tok *stream.Token, persona *domain.Persona, req domain.GenerationRequest, sink Sink) (Result, error) {
	r := s.speak(ctx, tok, persona, req, sink)
	res := Result{Speakers: []SpeakerResult{r}, Interrupted: r.Interrupted}
	return res, r.Err
}

// RunDebate visits the personas in order. Each speaker sees the transcript
// of everyone who spoke before it in this turn.
func (s *Sequencer) RunDebate(ctx context.Context, tok *stream.Token, in Input, sink Sink) (Result, error) {
	if len(in.Personas) == 0 {
		return Result{}, errors.New("debate needs at least one persona")
	}

	log := observability.LoggerFromContext(ctx)
	log.Info("debate started", "speakers", len(in.Personas), "policy", s.policy)

	names := nameLookup(in.Personas)
	transcript := NewTranscript(in.UserText, in.UserPersona, in.History, names)

	var (
		res  Result
		errs []error
	)
	for _, p := range in.Personas {
		if tok.Cancelled() {
			res.Interrupted = true
			break
		}

		start := time.Now()
		log.Info("speaker start", "persona", p.ID)

		r := s.speak(ctx, tok, p, domain.GenerationRequest{
			PersonaID:         p.ID,
			SystemInstruction: p.SystemInstruction,
			UserText:          transcript.PromptFor(p),
			Settings:          in.Settings,
		}, sink)
		res.Speakers = append(res.Speakers, r)

		if r.Interrupted {
			res.Interrupted = true
			break
		}
		if r.Err != nil {
			log.Error("speaker failed", "persona", p.ID, "error", r.Err)
			errs = append(errs, r.Err)
			if s.policy == FailAbort || !domain.IsTransport(r.Err) {
				break
			}
			continue
		}

		log.Info("speaker end", "persona", p.ID, "elapsed_ms", time.Since(start).Milliseconds())
		transcript.Append(p.DisplayName, r.Text)
	}

	log.Info("debate end", "attempted", len(res.Speakers), "interrupted", res.Interrupted)
	return res, errors.Join(errs...)
}

func (s *Sequencer) speak(ctx context.Context, tok *stream.Token, p *domain.Persona, req domain.GenerationRequest, sink Sink) SpeakerResult {
	r := SpeakerResult{PersonaID: p.ID}

	fragments, err := s.llm.StreamReply(tok.Context(), req)
	if err != nil {
		if tok.Cancelled() {
			r.Interrupted = true
			return r
		}
		r.Err = err
		return r
	}

	started := false
	start := func() error {
		id, ok, err := sink.Start(ctx, p)
		if err != nil {
			return err
		}
		if !ok {
			tok.Cancel()
			return nil
		}
		r.MessageID = id
		started = true
		return nil
	}

	out, err := stream.Consume(tok, fragments, func(frag string) error {
		if !started {
			if err := start(); err != nil {
				return err
			}
			if !started {
				return nil
			}
		}
		return sink.Append(ctx, r.MessageID, frag)
	})
	r.Text = out.Text
	r.Interrupted = out.Interrupted || tok.Cancelled()
	var te *domain.TransportError
	if errors.As(err, &te) {
		te.PersonaID = p.ID
	}
	r.Err = err

	if !started && err == nil && !r.Interrupted {
		if err := start(); err != nil {
			r.Err = err
		}
	}
	if started {
		if err := sink.Finish(ctx, r.MessageID); err != nil && r.Err == nil {
			r.Err = err
		}
	}
	return r
}

func nameLookup(personas []*domain.Persona) func(domain.Sender) string {
	byID := make(map[domain.PersonaID]string, len(personas))
	for _, p := range personas {
		byID[p.ID] = p.DisplayName
	}
	return func(s domain.Sender) string {
		if s.IsUser() {
			return "User"
		}
		if name, ok := byID[domain.PersonaID(s)]; ok {
			return name
		}
		return "Speaker"
	}
}
