// Package embedding provides text embedding generation with multiple backend support.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/csbot-go/internal/config"
	"github.com/raphaelgruber/csbot-go/internal/metrics"
)

// ErrDimensionMismatch is returned when a provider produces vectors of an
// unexpected length.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Embedder defines the interface for text embedding providers.
type Embedder interface {
	// Embed generates an embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates one vector per input text, in input order.
	// An empty input returns an empty result without contacting the provider.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Model returns the name of the embedding model being used.
	Model() string

	// Dimension returns the expected vector dimension, or 0 when the
	// provider's native dimension is accepted as-is.
	Dimension() int
}

// New creates an Embedder for the configured provider. Every call made
// through the returned Embedder is timed into collector (which may be nil).
func New(cfg config.Config, collector *metrics.Collector) (Embedder, error) {
	var (
		e   Embedder
		err error
	)

	switch cfg.EmbedProvider {
	case config.ProviderOpenAI, config.ProviderOllama, "":
		e, err = NewLangChain(cfg)
	case config.ProviderVoyage:
		e, err = NewVoyageClient(cfg.VoyageAPIKey, cfg.EmbedModel, cfg.EmbedDimension)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.EmbedProvider)
	}
	if err != nil {
		return nil, err
	}

	return Instrument(e, collector, nil), nil
}

// instrumented records timing for every remote call of the wrapped Embedder.
type instrumented struct {
	Embedder
	collector *metrics.Collector
	logger    *slog.Logger
}

// Instrument wraps e so that calls are timed into collector.
func Instrument(e Embedder, collector *metrics.Collector, logger *slog.Logger) Embedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &instrumented{Embedder: e, collector: collector, logger: logger}
}

func (i *instrumented) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := i.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (i *instrumented) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	start := time.Now()
	vectors, err := i.Embedder.EmbedBatch(ctx, texts)
	duration := time.Since(start)
	i.collector.RecordTiming(metrics.OpEmbedding, duration)

	if err != nil {
		i.logger.Warn("embedding failed", "model", i.Model(), "count", len(texts), "duration_ms", duration.Milliseconds(), "error", err)
		return nil, err
	}
	i.logger.Debug("embedding complete", "model", i.Model(), "count", len(texts), "duration_ms", duration.Milliseconds())
	return vectors, nil
}

// validate checks vector count and, when dimension > 0, vector length.
func validate(vectors [][]float32, want, dimension int) error {
	if len(vectors) != want {
		return fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), want)
	}
	if dimension <= 0 {
		return nil
	}
	for i, v := range vectors {
		if len(v) != dimension {
			return fmt.Errorf("%w: embedding %d has %d values, want %d", ErrDimensionMismatch, i, len(v), dimension)
		}
	}
	return nil
}
