package service

import (
	"context"
	"errors"
	"strings"

	"github.com/raphaelgruber/csbot-go/internal/llm"
	"github.com/raphaelgruber/csbot-go/internal/models"
)

// keywordEmbedder maps texts onto a tiny fixed vocabulary so tests can
// reason about similarity.
type keywordEmbedder struct {
	calls int
	err   error
}

var vocabulary = []string{"password", "billing", "shipping"}

func (e *keywordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (e *keywordEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec := make([]float32, len(vocabulary))
		lower := strings.ToLower(t)
		for j, word := range vocabulary {
			if strings.Contains(lower, word) {
				vec[j] = 1
			}
		}
		out[i] = vec
	}
	return out, nil
}

func (e *keywordEmbedder) Model() string  { return "keyword" }
func (e *keywordEmbedder) Dimension() int { return len(vocabulary) }

// fakeChat returns reply or err and records the prompt it was given.
type fakeChat struct {
	reply  string
	err    error
	calls  int
	prompt []llm.ChatMessage
	opts   llm.CompletionOptions
}

func (c *fakeChat) Complete(_ context.Context, messages []llm.ChatMessage, opts llm.CompletionOptions) (string, error) {
	c.calls++
	c.prompt = messages
	c.opts = opts
	return c.reply, c.err
}

func (c *fakeChat) Model() string { return "fake" }

// fakeSummarizer returns a canned summary or err.
type fakeSummarizer struct {
	summary    *models.Summary
	err        error
	calls      int
	transcript string
}

func (s *fakeSummarizer) Summarize(_ context.Context, _ string, transcript string) (*models.Summary, error) {
	s.calls++
	s.transcript = transcript
	return s.summary, s.err
}

// failingRetriever always fails.
type failingRetriever struct{ calls int }

func (r *failingRetriever) Search(context.Context, string, int, float64) ([]models.FAQResult, error) {
	r.calls++
	return nil, errors.New("vector search unavailable")
}
