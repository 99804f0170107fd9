package stream_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/symposium/internal/domain"
	"github.com/PabloGalante/symposium/internal/stream"
)

func collect(t *testing.T) (*[]string, func(string) error) {
	t.Helper()
	var got []string
	return &got, func(f string) error {
		got = append(got, f)
		return nil
	}
}

func TestConsumeDeliversInOrder(t *testing.T) {
	tok := stream.NewToken(context.Background())
	got, deliver := collect(t)

	out, err := stream.Consume(tok, stream.FromSlice("Virtue ", "is ", "excellence."), deliver)
	require.NoError(t, err)

	assert.Equal(t, []string{"Virtue ", "is ", "excellence."}, *got)
	assert.Equal(t, 3, out.Fragments)
	assert.Equal(t, "Virtue is excellence.", out.Text)
	assert.False(t, out.Interrupted)
}

func TestConsumeSkipsEmptyFragments(t *testing.T) {
	tok := stream.NewToken(context.Background())
	got, deliver := collect(t)

	out, err := stream.Consume(tok, stream.FromSlice("", "a", "", "b"), deliver)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, *got)
	assert.Equal(t, 2, out.Fragments)
}

func TestConsumeZeroFragmentsIsSuccess(t *testing.T) {
	tok := stream.NewToken(context.Background())
	out, err := stream.Consume(tok, stream.FromSlice(), func(string) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 0, out.Fragments)
	assert.Equal(t, "", out.Text)
}

func TestConsumeStopsWhenCancelled(t *testing.T) {
	tok := stream.NewToken(context.Background())
	pulled := 0
	fragments := func(yield func(string, error) bool) {
		for _, f := range []string{"one", "two", "three", "four"} {
			pulled++
			if !yield(f, nil) {
				return
			}
		}
	}

	var got []string
	out, err := stream.Consume(tok, fragments, func(f string) error {
		got = append(got, f)
		if f == "two" {
			tok.Cancel()
		}
		return nil
	})
	require.NoError(t, err)

	assert.True(t, out.Interrupted)
	assert.Equal(t, []string{"one", "two"}, got)
	assert.Equal(t, 3, pulled, "producer must stop at the next yield point")
}

func TestConsumeWrapsTransportError(t *testing.T) {
	tok := stream.NewToken(context.Background())
	boom := errors.New("connection reset")
	got, deliver := collect(t)

	out, err := stream.Consume(tok, stream.FromSliceThenError(boom, "partial "), deliver)
	require.Error(t, err)

	var te *domain.TransportError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"partial "}, *got)
	assert.Equal(t, "partial ", out.Text)
}

func TestConsumeErrorAfterCancelIsInterruption(t *testing.T) {
	tok := stream.NewToken(context.Background())
	tok.Cancel()

	out, err := stream.Consume(tok, stream.FromSliceThenError(context.Canceled), func(string) error { return nil })
	require.NoError(t, err)
	assert.True(t, out.Interrupted)
}

func TestConsumePassesDeliverError(t *testing.T) {
	tok := stream.NewToken(context.Background())
	stop := errors.New("sink closed")

	_, err := stream.Consume(tok, stream.FromSlice("a", "b"), func(string) error { return stop })
	assert.ErrorIs(t, err, stop)
	assert.False(t, domain.IsTransport(err))
}

func TestTokenCancelCancelsContext(t *testing.T) {
	tok := stream.NewToken(context.Background())
	assert.False(t, tok.Cancelled())
	assert.NoError(t, tok.Context().Err())

	tok.Cancel()
	tok.Cancel()

	assert.True(t, tok.Cancelled())
	assert.ErrorIs(t, tok.Context().Err(), context.Canceled)
}

func TestTokenReleaseIsNotCancellation(t *testing.T) {
	tok := stream.NewToken(context.Background())
	tok.Release()
	assert.False(t, tok.Cancelled())
	assert.Error(t, tok.Context().Err())
}

func TestNilTokenIsNeverCancelled(t *testing.T) {
	var tok *stream.Token
	assert.False(t, tok.Cancelled())
	tok.Cancel()
}
