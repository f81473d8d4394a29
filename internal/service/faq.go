package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/raphaelgruber/csbot-go/internal/embedding"
	"github.com/raphaelgruber/csbot-go/internal/llm"
	"github.com/raphaelgruber/csbot-go/internal/models"
	"github.com/raphaelgruber/csbot-go/internal/store"
)

// SampleFAQs is a small starter catalog.
var SampleFAQs = []models.FAQInput{
	{
		Question: "How do I reset my password?",
		Answer:   "Go to Settings > Account > Reset Password. Enter your email; we will send a reset link.",
		Metadata: map[string]any{"topic": "auth"},
	},
	{
		Question: "How do I update my billing card?",
		Answer:   "Go to Billing > Payment Methods > Add Card or Edit existing card.",
		Metadata: map[string]any{"topic": "billing"},
	},
}

// FAQService embeds and stores FAQ entries.
type FAQService struct {
	faqs      store.FAQStore
	embedder  embedding.Embedder
	batchSize int
	logger    *slog.Logger
}

// NewFAQService creates an FAQ service. batchSize <= 0 defaults to 32.
func NewFAQService(faqs store.FAQStore, embedder embedding.Embedder, batchSize int, logger *slog.Logger) *FAQService {
	if batchSize <= 0 {
		batchSize = 32
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FAQService{faqs: faqs, embedder: embedder, batchSize: batchSize, logger: logger}
}

// IngestResult summarizes an ingestion run.
type IngestResult struct {
	Stored  int
	Skipped int
	Errors  []string
}

// ProgressFunc is called after each batch with the number of inputs handled so far.
type ProgressFunc func(done, total int)

// Ingest embeds question+answer for every input and appends the entries.
// Inputs without a question or answer are skipped. A batch that fails to
// embed is recorded and skipped, unless the failure is fatal for the
// provider, which aborts the run.
func (s *FAQService) Ingest(ctx context.Context, inputs []models.FAQInput, progress ProgressFunc) (*IngestResult, error) {
	result := &IngestResult{}

	valid := make([]models.FAQInput, 0, len(inputs))
	for i, in := range inputs {
		in.Question = strings.TrimSpace(in.Question)
		in.Answer = strings.TrimSpace(in.Answer)
		if in.Question == "" || in.Answer == "" {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("item %d: question and answer are required", i))
			continue
		}
		valid = append(valid, in)
	}

	total := len(inputs)
	done := result.Skipped
	if progress != nil {
		progress(done, total)
	}

	for start := 0; start < len(valid); start += s.batchSize {
		end := min(start+s.batchSize, len(valid))
		batch := valid[start:end]

		texts := make([]string, len(batch))
		for i, in := range batch {
			texts[i] = in.EmbeddingText()
		}

		vectors, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			if errors.Is(err, llm.ErrFatalAPI) || ctx.Err() != nil {
				return result, fmt.Errorf("embed faqs: %w", err)
			}
			s.logger.Warn("faq batch embedding failed", "from", start, "to", end, "error", err)
			result.Skipped += len(batch)
			result.Errors = append(result.Errors, fmt.Sprintf("items %d-%d: %v", start, end-1, err))
			done += len(batch)
			if progress != nil {
				progress(done, total)
			}
			continue
		}

		entries := make([]models.FAQEntry, len(batch))
		for i, in := range batch {
			entries[i] = models.FAQEntry{
				Question:  in.Question,
				Answer:    in.Answer,
				Embedding: vectors[i],
				Metadata:  in.Metadata,
			}
		}
		stored, err := s.faqs.AppendFAQs(ctx, entries)
		if err != nil {
			return result, fmt.Errorf("store faqs: %w", err)
		}
		result.Stored += len(stored)

		done += len(batch)
		if progress != nil {
			progress(done, total)
		}
	}

	s.logger.Info("faq ingestion complete", "stored", result.Stored, "skipped", result.Skipped)
	return result, nil
}

// List returns every stored FAQ in insertion order.
func (s *FAQService) List(ctx context.Context) ([]models.FAQEntry, error) {
	return s.faqs.ListFAQs(ctx)
}

// Count returns the number of stored FAQs.
func (s *FAQService) Count(ctx context.Context) (int, error) {
	return s.faqs.CountFAQs(ctx)
}
