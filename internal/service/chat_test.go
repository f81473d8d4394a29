package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/raphaelgruber/csbot-go/internal/escalation"
	"github.com/raphaelgruber/csbot-go/internal/metrics"
	"github.com/raphaelgruber/csbot-go/internal/models"
	"github.com/raphaelgruber/csbot-go/internal/retrieval"
	"github.com/raphaelgruber/csbot-go/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatFixture struct {
	store      *store.Memory
	embedder   *keywordEmbedder
	chat       *fakeChat
	summarizer *fakeSummarizer
	collector  *metrics.Collector
	svc        *ChatService
	sessionID  string
}

func newChatFixture(t *testing.T, cfg ChatConfig) *chatFixture {
	t.Helper()
	ctx := context.Background()

	f := &chatFixture{
		store:      store.NewMemory(),
		embedder:   &keywordEmbedder{},
		chat:       &fakeChat{reply: "  Go to Settings > Account > Reset Password.  "},
		summarizer: &fakeSummarizer{summary: &models.Summary{Summary: "User asked how to reset a password."}},
		collector:  metrics.NewCollector(),
	}

	_, err := NewFAQService(f.store, f.embedder, 0, nil).Ingest(ctx, SampleFAQs, nil)
	require.NoError(t, err)
	f.embedder.calls = 0

	engine := retrieval.NewEngine(f.store, f.embedder, f.collector, nil)
	f.svc = NewChatService(f.store, f.store, engine, f.chat, f.summarizer, cfg, f.collector, nil)

	sess, err := f.svc.CreateSession(ctx, nil, nil)
	require.NoError(t, err)
	f.sessionID = sess.ID
	return f
}

func defaultChatConfig() ChatConfig {
	return ChatConfig{ContextWindow: 8, TopK: 3, Threshold: 0.7}
}

func (f *chatFixture) history(t *testing.T) []models.Message {
	t.Helper()
	msgs, err := f.store.RecentMessages(context.Background(), f.sessionID, 1000)
	require.NoError(t, err)
	return msgs
}

func TestHandleAnswersWithFAQContext(t *testing.T) {
	f := newChatFixture(t, defaultChatConfig())

	got, err := f.svc.Handle(context.Background(), f.sessionID, "  How do I reset my password?  ")
	require.NoError(t, err)

	assert.Equal(t, "Go to Settings > Account > Reset Password.", got.Reply)
	assert.False(t, got.Escalated)
	require.Len(t, got.FAQs, 1)
	assert.Equal(t, "How do I reset my password?", got.FAQs[0].Entry.Question)
	assert.InDelta(t, 1.0, got.FAQs[0].Score, 1e-9)
	require.NotNil(t, got.Summary)
	assert.Equal(t, "User asked how to reset a password.", *got.Summary)

	require.Len(t, f.chat.prompt, 4)
	assert.Equal(t, models.RoleSystem, f.chat.prompt[0].Role)
	assert.Equal(t, systemInstruction, f.chat.prompt[0].Content)
	assert.Equal(t, "Conversation so far:\nUSER: How do I reset my password?", f.chat.prompt[1].Content)
	assert.True(t, strings.HasPrefix(f.chat.prompt[2].Content, "Relevant FAQs:\nQ: How do I reset my password?\nA: Go to Settings"))
	assert.Equal(t, models.RoleUser, f.chat.prompt[3].Role)
	assert.Equal(t, "How do I reset my password?", f.chat.prompt[3].Content)
	assert.Equal(t, chatMaxTokens, f.chat.opts.MaxTokens)
	assert.Equal(t, 1, f.embedder.calls, "query embedded once")

	assert.Equal(t,
		"USER: How do I reset my password?\nASSISTANT: Go to Settings > Account > Reset Password.",
		f.summarizer.transcript)

	msgs := f.history(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Equal(t, "How do I reset my password?", msgs[0].Content, "user message is stored trimmed")
	assert.Equal(t, models.RoleAssistant, msgs[1].Role)
	assert.Equal(t, got.Reply, msgs[1].Content)
	assert.False(t, msgs[1].Escalated)
}

func TestHandleWithoutMatchingFAQs(t *testing.T) {
	f := newChatFixture(t, defaultChatConfig())
	f.chat.reply = "Hi! How can I help?"

	got, err := f.svc.Handle(context.Background(), f.sessionID, "hello there")
	require.NoError(t, err)

	assert.Empty(t, got.FAQs)
	assert.NotNil(t, got.FAQs)
	require.Len(t, f.chat.prompt, 3, "no FAQ block when nothing matches")
	for _, m := range f.chat.prompt {
		assert.NotContains(t, m.Content, "Relevant FAQs")
	}
}

func TestHandleEscalation(t *testing.T) {
	f := newChatFixture(t, defaultChatConfig())
	msg := "I was double charged, I want a refund"

	got, err := f.svc.Handle(context.Background(), f.sessionID, msg)
	require.NoError(t, err)

	assert.True(t, got.Escalated)
	assert.Equal(t, escalation.Reply, got.Reply)
	assert.Empty(t, got.FAQs)
	assert.NotNil(t, got.FAQs)
	require.NotNil(t, got.Summary)
	assert.Equal(t, "Escalated issue detected in user message: '"+msg+"'", *got.Summary)

	assert.Zero(t, f.chat.calls, "no model call on escalation")
	assert.Zero(t, f.embedder.calls, "no retrieval on escalation")
	assert.Zero(t, f.summarizer.calls)

	msgs := f.history(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, msg, msgs[0].Content)
	assert.False(t, msgs[0].Escalated)
	assert.Equal(t, escalation.Reply, msgs[1].Content)
	assert.True(t, msgs[1].Escalated)
	assert.Equal(t, int64(1), f.collector.Snapshot().Escalations)
}

func TestHandleEscalationIsCaseInsensitive(t *testing.T) {
	f := newChatFixture(t, defaultChatConfig())

	got, err := f.svc.Handle(context.Background(), f.sessionID, "MY ACCOUNT WAS HACKED")
	require.NoError(t, err)
	assert.True(t, got.Escalated)
	assert.Zero(t, f.chat.calls)
}

func TestHandleModelFailureDegrades(t *testing.T) {
	f := newChatFixture(t, defaultChatConfig())
	f.chat.err = errors.New("upstream timeout")

	got, err := f.svc.Handle(context.Background(), f.sessionID, "How do I reset my password?")
	require.NoError(t, err, "model failures never surface as errors")

	assert.Equal(t, "⚠️ I’m sorry — something went wrong while generating a response. (upstream timeout)", got.Reply)
	assert.False(t, got.Escalated)
	assert.Nil(t, got.Summary)
	assert.Len(t, got.FAQs, 1, "retrieved FAQs are still returned")
	assert.Zero(t, f.summarizer.calls)

	msgs := f.history(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, got.Reply, msgs[1].Content)
	assert.False(t, msgs[1].Escalated)
	assert.Equal(t, int64(1), f.collector.Snapshot().Degraded)
}

func TestHandleEmptyCompletionDegrades(t *testing.T) {
	f := newChatFixture(t, defaultChatConfig())
	f.chat.reply = "   "

	got, err := f.svc.Handle(context.Background(), f.sessionID, "hello")
	require.NoError(t, err)
	assert.Contains(t, got.Reply, "something went wrong")
	assert.Contains(t, got.Reply, "empty completion")
}

func TestHandleSummaryFailureIsSwallowed(t *testing.T) {
	f := newChatFixture(t, defaultChatConfig())
	f.summarizer.summary = nil
	f.summarizer.err = errors.New("summarizer exhausted retries")

	got, err := f.svc.Handle(context.Background(), f.sessionID, "How do I reset my password?")
	require.NoError(t, err)
	assert.Nil(t, got.Summary)
	assert.Equal(t, "Go to Settings > Account > Reset Password.", got.Reply)
	assert.Len(t, f.history(t), 2)
}

func TestHandleRetrievalFailureContinues(t *testing.T) {
	f := newChatFixture(t, defaultChatConfig())
	retriever := &failingRetriever{}
	f.svc.retriever = retriever

	got, err := f.svc.Handle(context.Background(), f.sessionID, "How do I reset my password?")
	require.NoError(t, err)
	assert.Equal(t, 1, retriever.calls)
	assert.Empty(t, got.FAQs)
	assert.Equal(t, 1, f.chat.calls)
	require.Len(t, f.chat.prompt, 3)
}

func TestHandleValidation(t *testing.T) {
	f := newChatFixture(t, defaultChatConfig())

	tests := []struct {
		name      string
		sessionID string
		message   string
		want      error
	}{
		{"empty message", f.sessionID, "", ErrEmptyMessage},
		{"whitespace message", f.sessionID, " \n\t ", ErrEmptyMessage},
		{"empty session", "", "hello", ErrInvalidSession},
		{"session with space", "abc def", "hello", ErrInvalidSession},
		{"session with newline", "abc\n", "hello", ErrInvalidSession},
		{"oversized session", strings.Repeat("a", maxSessionIDLen+1), "hello", ErrInvalidSession},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Handle(context.Background(), tt.sessionID, tt.message)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	assert.Empty(t, f.history(t), "validation failures have no side effects")
	assert.Zero(t, f.chat.calls)
}

func TestHandleContextWindowBoundsHistory(t *testing.T) {
	f := newChatFixture(t, ChatConfig{ContextWindow: 1, TopK: 3, Threshold: 0.7})
	ctx := context.Background()

	for _, msg := range []string{"first question", "second question", "third question"} {
		_, err := f.svc.Handle(ctx, f.sessionID, msg)
		require.NoError(t, err)
	}

	assert.Equal(t,
		"Conversation so far:\nASSISTANT: Go to Settings > Account > Reset Password.\nUSER: third question",
		f.chat.prompt[1].Content)
	assert.Len(t, f.history(t), 6, "each exchange appends exactly two messages")
}

func TestSummarizeSession(t *testing.T) {
	f := newChatFixture(t, defaultChatConfig())
	ctx := context.Background()

	_, err := f.svc.SummarizeSession(ctx, f.sessionID)
	assert.ErrorIs(t, err, ErrNoMessages)

	_, err = f.svc.Handle(ctx, f.sessionID, "How do I reset my password?")
	require.NoError(t, err)

	next := "close ticket"
	f.summarizer.summary = &models.Summary{Summary: "Resolved.", NextAction: &next}
	got, err := f.svc.SummarizeSession(ctx, f.sessionID)
	require.NoError(t, err)
	assert.Equal(t, "Resolved.", got.Summary)
	require.NotNil(t, got.NextAction)
	assert.Equal(t, "close ticket", *got.NextAction)
	assert.Equal(t,
		"USER: How do I reset my password?\nASSISTANT: Go to Settings > Account > Reset Password.",
		f.summarizer.transcript)

	f.summarizer.err = errors.New("down")
	_, err = f.svc.SummarizeSession(ctx, f.sessionID)
	assert.ErrorIs(t, err, ErrSummaryFailed)

	_, err = f.svc.SummarizeSession(ctx, "bad id")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestMessagesPaging(t *testing.T) {
	f := newChatFixture(t, defaultChatConfig())
	ctx := context.Background()

	_, err := f.svc.Handle(ctx, f.sessionID, "hello")
	require.NoError(t, err)

	page, err := f.svc.Messages(ctx, f.sessionID, 0, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, models.RoleUser, page[0].Role)

	page, err = f.svc.Messages(ctx, f.sessionID, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, models.RoleAssistant, page[0].Role)
}

func TestCreateSessionBlankUserID(t *testing.T) {
	f := newChatFixture(t, defaultChatConfig())
	blank := "  "

	sess, err := f.svc.CreateSession(context.Background(), &blank, map[string]any{"channel": "web"})
	require.NoError(t, err)
	assert.Nil(t, sess.UserID)

	got, err := f.svc.Session(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "web", got.Metadata["channel"])
}

func TestValidateSessionID(t *testing.T) {
	assert.NoError(t, ValidateSessionID("3f6c1d9e-8a7b-4c2d-9e1f-0a1b2c3d4e5f"))
	assert.NoError(t, ValidateSessionID("legacy_session-42"))
	assert.ErrorIs(t, ValidateSessionID("tab\tinside"), ErrInvalidSession)
	assert.ErrorIs(t, ValidateSessionID("nul\x00"), ErrInvalidSession)
}
