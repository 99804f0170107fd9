package stream

import (
	"strings"

	"github.com/PabloGalante/symposium/internal/domain"
)

// Outcome describes how a fragment sequence was consumed.
type Outcome struct {
	Fragments   int
	Text        string
	Interrupted bool
}

// Consume pulls fragments in order and hands each non-empty one to deliver.
// The token is consulted at every yield point; once it is set the rest of the
// sequence is discarded and the outcome is marked Interrupted. A transport
// failure ends the sequence with a *domain.TransportError. An error returned
// by deliver is passed through unchanged.
func Consume(tok *Token, fragments domain.Fragments, deliver func(string) error) (Outcome, error) {
	var (
		out Outcome
		sb  strings.Builder
	)
	for frag, err := range fragments {
		if tok.Cancelled() {
			out.Interrupted = true
			break
		}
		if err != nil {
			out.Text = sb.String()
			return out, &domain.TransportError{Err: err}
		}
		if frag == "" {
			continue
		}
		if err := deliver(frag); err != nil {
			out.Text = sb.String()
			return out, err
		}
		out.Fragments++
		sb.WriteString(frag)
	}
	if !out.Interrupted && tok.Cancelled() {
		out.Interrupted = true
	}
	out.Text = sb.String()
	return out, nil
}

// FromSlice returns a sequence yielding the given fragments.
func FromSlice(fragments ...string) domain.Fragments {
	return FromSliceThenError(nil, fragments...)
}

// FromSliceThenError yields fragments and then fails with err, if non-nil.
func FromSliceThenError(err error, fragments ...string) domain.Fragments {
	return func(yield func(string, error) bool) {
		for _, f := range fragments {
			if !yield(f, nil) {
				return
			}
		}
		if err != nil {
			yield("", err)
		}
	}
}
