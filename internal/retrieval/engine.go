package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/raphaelgruber/csbot-go/internal/embedding"
	"github.com/raphaelgruber/csbot-go/internal/metrics"
	"github.com/raphaelgruber/csbot-go/internal/models"
	"github.com/raphaelgruber/csbot-go/internal/store"
)

// ErrInvalidArgument is returned for a non-positive k or a threshold outside [0, 1].
var ErrInvalidArgument = errors.New("invalid search argument")

// Engine performs exhaustive similarity search over the FAQ catalog.
type Engine struct {
	faqs      store.FAQStore
	embedder  embedding.Embedder
	collector *metrics.Collector
	logger    *slog.Logger
}

// NewEngine creates a retrieval engine. collector and logger may be nil.
func NewEngine(faqs store.FAQStore, embedder embedding.Embedder, collector *metrics.Collector, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{faqs: faqs, embedder: embedder, collector: collector, logger: logger}
}

// Search returns at most k FAQs whose similarity to query is at least
// threshold, best first. Equal scores are ordered by lower FAQ ID.
// A blank query returns an empty result without calling the embedder.
func (e *Engine) Search(ctx context.Context, query string, k int, threshold float64) ([]models.FAQResult, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be >= 1, got %d", ErrInvalidArgument, k)
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: threshold must be in [0,1], got %g", ErrInvalidArgument, threshold)
	}
	if strings.TrimSpace(query) == "" {
		return []models.FAQResult{}, nil
	}

	start := time.Now()
	defer func() { e.collector.RecordTiming(metrics.OpFAQSearch, time.Since(start)) }()

	vectors, err := e.embedder.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors, want 1", len(vectors))
	}
	qv := vectors[0]

	entries, err := e.faqs.ListFAQs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list faqs: %w", err)
	}

	results := make([]models.FAQResult, 0, len(entries))
	for _, entry := range entries {
		score, err := Cosine(qv, entry.Embedding)
		if err != nil {
			e.logger.Warn("skipping faq with incompatible embedding", "faq_id", entry.ID, "error", err)
			continue
		}
		if score < threshold {
			continue
		}
		results = append(results, models.FAQResult{Entry: entry, Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Entry.ID < results[j].Entry.ID
	})

	if len(results) > k {
		results = results[:k]
	}

	e.logger.Debug("faq search complete", "candidates", len(entries), "matches", len(results), "duration_ms", time.Since(start).Milliseconds())
	return results, nil
}
