package conversation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/symposium/internal/adapters/llm"
	"github.com/PabloGalante/symposium/internal/adapters/storage/memory"
	"github.com/PabloGalante/symposium/internal/app/conversation"
	"github.com/PabloGalante/symposium/internal/domain"
)

func TestReconcilerFinalizeKeepsPlaceholderOrder(t *testing.T) {
	ctx := context.Background()
	sessions := memory.NewSessionStore()
	messages := memory.NewMessageStore()
	model := llm.NewMockLLM()
	model.Title = "Virtue"

	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := conversation.NewReconciler(sessions, messages, model, func() time.Time { return clock })
	require.NoError(t, sessions.CreateSession(ctx, &domain.Session{ID: "s1", UserID: "u"}))

	user := &domain.Message{ID: "u1", SessionID: "s1", Sender: domain.SenderUser, Text: "What is virtue?"}
	require.NoError(t, r.Commit(ctx, user))

	reply := &domain.Message{ID: "a1", SessionID: "s1", Sender: "socrates", ContentType: domain.ContentTypeText}
	require.NoError(t, r.Placeholder(ctx, reply))

	late := &domain.Message{ID: "b1", SessionID: "s1", Sender: "plato", ContentType: domain.ContentTypeText}
	require.NoError(t, r.Placeholder(ctx, late))

	reply.Text = "Virtue is excellence."
	require.NoError(t, r.Finalize(ctx, reply, false))
	r.Wait()

	msgs, err := messages.GetMessagesBySession(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "Virtue is excellence.", msgs[1].Text)
	assert.Equal(t, domain.MessageID("b1"), msgs[2].ID)

	session, err := sessions.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, clock, session.UpdatedAt)
	assert.Equal(t, "Virtue", session.Title)
	assert.True(t, session.TitleInferred)
	assert.Equal(t, 1, model.TitleCalls())
}

func TestReconcilerSkipsTitleForErrorNotices(t *testing.T) {
	ctx := context.Background()
	sessions := memory.NewSessionStore()
	messages := memory.NewMessageStore()
	model := llm.NewMockLLM()

	r := conversation.NewReconciler(sessions, messages, model, nil)
	require.NoError(t, sessions.CreateSession(ctx, &domain.Session{ID: "s1"}))

	err := r.Finalize(ctx, &domain.Message{
		ID: "e1", SessionID: "s1", Sender: "socrates",
		Text: "An error occurred. Please try again.", ContentType: domain.ContentTypeError,
	}, false)
	require.NoError(t, err)
	r.Wait()
	assert.Zero(t, model.TitleCalls())
}

func TestReconcilerSkipsTitleForInterruptedReply(t *testing.T) {
	ctx := context.Background()
	sessions := memory.NewSessionStore()
	messages := memory.NewMessageStore()
	model := llm.NewMockLLM()
	model.Title = "Partial"

	r := conversation.NewReconciler(sessions, messages, model, nil)
	require.NoError(t, sessions.CreateSession(ctx, &domain.Session{ID: "s1", Title: "New Chat"}))

	cut := &domain.Message{ID: "a1", SessionID: "s1", Sender: "socrates", Text: "Hmm, let us", ContentType: domain.ContentTypeText}
	require.NoError(t, r.Finalize(ctx, cut, true))
	r.Wait()
	assert.Zero(t, model.TitleCalls())

	// The guard was not consumed; the next complete reply still names the session.
	done := &domain.Message{ID: "a2", SessionID: "s1", Sender: "socrates", Text: "Let us begin.", ContentType: domain.ContentTypeText}
	require.NoError(t, r.Finalize(ctx, done, false))
	r.Wait()
	assert.Equal(t, 1, model.TitleCalls())

	session, err := sessions.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Partial", session.Title)
}
