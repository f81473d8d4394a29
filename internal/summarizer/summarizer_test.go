package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/raphaelgruber/csbot-go/internal/llm"
	"github.com/raphaelgruber/csbot-go/internal/metrics"
	"github.com/raphaelgruber/csbot-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// scriptedModel returns outputs and errors in order, one per call.
type scriptedModel struct {
	outputs []string
	errs    []error
	calls   int
	last    []llm.ChatMessage
	opts    llm.CompletionOptions
}

func (m *scriptedModel) Complete(_ context.Context, messages []llm.ChatMessage, opts llm.CompletionOptions) (string, error) {
	i := m.calls
	m.calls++
	m.last = messages
	m.opts = opts
	if i < len(m.errs) && m.errs[i] != nil {
		return "", m.errs[i]
	}
	if i < len(m.outputs) {
		return m.outputs[i], nil
	}
	return "", errors.New("script exhausted")
}

func (m *scriptedModel) Model() string { return "scripted" }

func fastBackOff() backoff.BackOff {
	return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, maxAttempts-1)
}

func newTestSummarizer(model llm.ChatModel) *Summarizer {
	return New(model, metrics.NewCollector(), WithBackOff(fastBackOff))
}

func TestSummarizePrompt(t *testing.T) {
	model := &scriptedModel{outputs: []string{`{"summary":"User asked about passwords.","next_action":"close ticket"}`}}
	s := newTestSummarizer(model)

	got, err := s.Summarize(context.Background(), "s1", "USER: reset?\nASSISTANT: use settings")
	require.NoError(t, err)

	assert.Equal(t, "User asked about passwords.", got.Summary)
	require.NotNil(t, got.NextAction)
	assert.Equal(t, "close ticket", *got.NextAction)

	require.Len(t, model.last, 2)
	assert.Equal(t, models.RoleSystem, model.last[0].Role)
	assert.Equal(t, systemPrompt, model.last[0].Content)
	assert.Contains(t, model.last[1].Content, "USER: reset?\nASSISTANT: use settings")
	assert.Contains(t, model.last[1].Content, `Return JSON: {"summary":"...","next_action":"..."}`)
	assert.Equal(t, maxTokens, model.opts.MaxTokens)
	require.NotNil(t, model.opts.Temperature)
	assert.Zero(t, *model.opts.Temperature)
}

func TestSummarizeRetriesTransientErrors(t *testing.T) {
	model := &scriptedModel{
		errs:    []error{errors.New("timeout"), errors.New("connection reset")},
		outputs: []string{"", "", `{"summary":"ok","next_action":"none"}`},
	}

	got, err := newTestSummarizer(model).Summarize(context.Background(), "s1", "USER: hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", got.Summary)
	assert.Equal(t, 3, model.calls)
}

func TestSummarizeGivesUpAfterThreeAttempts(t *testing.T) {
	transient := errors.New("service unavailable")
	model := &scriptedModel{errs: []error{transient, transient, transient, transient}}

	_, err := newTestSummarizer(model).Summarize(context.Background(), "s1", "USER: hi")
	assert.ErrorIs(t, err, transient)
	assert.Equal(t, 3, model.calls)
}

// failingLLM is a langchaingo model that always fails with err.
type failingLLM struct {
	err   error
	calls int
}

func (f *failingLLM) GenerateContent(context.Context, []llms.MessageContent, ...llms.CallOption) (*llms.ContentResponse, error) {
	f.calls++
	return nil, f.err
}

func (f *failingLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestSummarizeRetriesProviderErrors(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		calls int
	}{
		{"rate limited", errors.New("API returned unexpected status code: 429: Rate limit reached for gpt-4o-mini"), 3},
		{"network timeout", errors.New("dial tcp 10.0.4.401:443: i/o timeout"), 3},
		{"bad key", errors.New("API returned unexpected status code: 401: Incorrect API key provided"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &failingLLM{err: tt.err}
			model := llm.NewModelFrom(provider, "gpt-test", nil, nil)

			_, err := newTestSummarizer(model).Summarize(context.Background(), "s1", "USER: hi")
			require.Error(t, err)
			assert.Equal(t, tt.calls, provider.calls)
		})
	}
}

func TestSummarizeDoesNotRetryFatal(t *testing.T) {
	fatal := fmt.Errorf("%w: invalid api key", llm.ErrFatalAPI)
	model := &scriptedModel{errs: []error{fatal}}

	_, err := newTestSummarizer(model).Summarize(context.Background(), "s1", "USER: hi")
	assert.ErrorIs(t, err, llm.ErrFatalAPI)
	assert.Equal(t, 1, model.calls)
}

func TestSummarizeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	model := &scriptedModel{errs: []error{context.Canceled, context.Canceled, context.Canceled}}

	_, err := newTestSummarizer(model).Summarize(ctx, "s1", "USER: hi")
	require.Error(t, err)
	assert.LessOrEqual(t, model.calls, 1)
}

func TestSummarizeEmptyTranscript(t *testing.T) {
	model := &scriptedModel{}
	_, err := newTestSummarizer(model).Summarize(context.Background(), "s1", "  \n")
	assert.ErrorIs(t, err, ErrEmptyTranscript)
	assert.Zero(t, model.calls)
}

func TestDefaultBackOffSchedule(t *testing.T) {
	b := DefaultBackOff()
	b.Reset()

	assert.Equal(t, 1*time.Second, b.NextBackOff())
	assert.Equal(t, 2*time.Second, b.NextBackOff())
	assert.Equal(t, backoff.Stop, b.NextBackOff(), "three attempts means two waits")
}

func TestParse(t *testing.T) {
	str := func(s string) *string { return &s }

	tests := []struct {
		name       string
		in         string
		summary    string
		nextAction *string
	}{
		{
			name:       "plain json",
			in:         `{"summary":"Customer reset password.","next_action":"none"}`,
			summary:    "Customer reset password.",
			nextAction: str("none"),
		},
		{
			name:       "json wrapped in prose",
			in:         "Here you go:\n```json\n{\"summary\":\"Billing question.\",\"next_action\":\"follow up\"}\n```",
			summary:    "Billing question.",
			nextAction: str("follow up"),
		},
		{
			name:    "missing next action",
			in:      `{"summary":"Short chat."}`,
			summary: "Short chat.",
		},
		{
			name:    "null next action",
			in:      `{"summary":"Short chat.","next_action":null}`,
			summary: "Short chat.",
		},
		{
			name:    "empty next action",
			in:      `{"summary":"Short chat.","next_action":"  "}`,
			summary: "Short chat.",
		},
		{
			name:    "not json",
			in:      "  The user greeted the bot.  ",
			summary: "The user greeted the bot.",
		},
		{
			name:    "broken json falls back to raw text",
			in:      `{"summary": "unterminated`,
			summary: `{"summary": "unterminated`,
		},
		{
			name:    "unrelated json object",
			in:      `{"foo":"bar"}`,
			summary: `{"foo":"bar"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.in)
			require.NotNil(t, got)
			assert.Equal(t, tt.summary, got.Summary)
			if tt.nextAction == nil {
				assert.Nil(t, got.NextAction)
			} else {
				require.NotNil(t, got.NextAction)
				assert.Equal(t, *tt.nextAction, *got.NextAction)
			}
		})
	}
}

func TestParseNeverPanics(t *testing.T) {
	inputs := []string{"", "{", "}", "}{", "{{}}", strings.Repeat("{", 50), "null", "[1,2]", `"just a string"`}
	for _, in := range inputs {
		assert.NotPanics(t, func() { _ = Parse(in) }, in)
	}
}
