// Package summarizer condenses support transcripts into a summary and next action.
package summarizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/raphaelgruber/csbot-go/internal/llm"
	"github.com/raphaelgruber/csbot-go/internal/metrics"
	"github.com/raphaelgruber/csbot-go/internal/models"
)

const (
	systemPrompt = "You are a concise summarizer for customer support transcripts."

	userPromptFormat = "Summarize the following conversation in 2-3 sentences and provide a short next action label (one short phrase). Conversation:\n\n%s\n\nReturn JSON: {\"summary\":\"...\",\"next_action\":\"...\"}"

	maxTokens = 400

	// Retry schedule: 3 attempts, waits of 1s then 2s, never above 8s.
	maxAttempts     = 3
	initialInterval = time.Second
	maxInterval     = 8 * time.Second
)

// ErrEmptyTranscript is returned when there is nothing to summarize.
var ErrEmptyTranscript = errors.New("empty transcript")

// Summarizer asks a chat model for a structured recap of a transcript.
type Summarizer struct {
	model      llm.ChatModel
	collector  *metrics.Collector
	logger     *slog.Logger
	newBackOff func() backoff.BackOff
}

// Option configures a Summarizer.
type Option func(*Summarizer)

// WithBackOff replaces the retry schedule. The factory is called once per
// Summarize call; attempt limits must be encoded in the returned policy.
func WithBackOff(factory func() backoff.BackOff) Option {
	return func(s *Summarizer) { s.newBackOff = factory }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Summarizer) { s.logger = logger }
}

// New creates a Summarizer. collector may be nil.
func New(model llm.ChatModel, collector *metrics.Collector, opts ...Option) *Summarizer {
	s := &Summarizer{
		model:      model,
		collector:  collector,
		logger:     slog.Default(),
		newBackOff: DefaultBackOff,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultBackOff returns the production retry schedule.
func DefaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initialInterval
	b.MaxInterval = maxInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, maxAttempts-1)
}

// Summarize returns a summary of transcript. Transient model failures are
// retried; failures marked llm.ErrFatalAPI and context cancellation are not.
func (s *Summarizer) Summarize(ctx context.Context, sessionID, transcript string) (*models.Summary, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, ErrEmptyTranscript
	}

	messages := []llm.ChatMessage{
		{Role: models.RoleSystem, Content: systemPrompt},
		{Role: models.RoleUser, Content: fmt.Sprintf(userPromptFormat, transcript)},
	}
	temperature := 0.0
	opts := llm.CompletionOptions{MaxTokens: maxTokens, Temperature: &temperature}

	start := time.Now()
	attempt := 0
	var text string
	op := func() error {
		attempt++
		out, err := s.model.Complete(ctx, messages, opts)
		if err != nil {
			if errors.Is(err, llm.ErrFatalAPI) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		text = out
		return nil
	}
	notify := func(err error, wait time.Duration) {
		s.logger.Warn("summarize attempt failed, retrying", "session_id", sessionID, "attempt", attempt, "wait_ms", wait.Milliseconds(), "error", err)
	}

	err := backoff.RetryNotify(op, backoff.WithContext(s.newBackOff(), ctx), notify)
	s.collector.RecordTiming(metrics.OpSummarize, time.Since(start))
	if err != nil {
		s.logger.Error("summarize failed", "session_id", sessionID, "attempts", attempt, "error", err)
		return nil, fmt.Errorf("summarize: %w", err)
	}

	return Parse(text), nil
}

// Parse extracts a Summary from model output. It accepts a bare JSON
// object, a JSON object embedded in surrounding text, or falls back to the
// trimmed raw text with no next action.
func Parse(text string) *models.Summary {
	text = strings.TrimSpace(text)

	if sum, ok := parseJSON(text); ok {
		return sum
	}
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start != -1 && end > start {
		if sum, ok := parseJSON(text[start : end+1]); ok {
			return sum
		}
	}
	return &models.Summary{Summary: text}
}

type summaryJSON struct {
	Summary    *string `json:"summary"`
	NextAction *string `json:"next_action"`
}

func parseJSON(text string) (*models.Summary, bool) {
	var v summaryJSON
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, false
	}
	if v.Summary == nil && v.NextAction == nil {
		return nil, false
	}

	sum := &models.Summary{}
	if v.Summary != nil {
		sum.Summary = strings.TrimSpace(*v.Summary)
	}
	if v.NextAction != nil {
		if action := strings.TrimSpace(*v.NextAction); action != "" {
			sum.NextAction = &action
		}
	}
	return sum, true
}
