package embedding

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/csbot-go/internal/config"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangChainEmbedder wraps langchaingo embeddings with dimension validation.
type LangChainEmbedder struct {
	model     embeddings.Embedder
	dimension int
	modelName string
}

// Compile-time check that LangChainEmbedder implements Embedder.
var _ Embedder = (*LangChainEmbedder)(nil)

// NewLangChain creates an OpenAI or Ollama embedder from configuration.
func NewLangChain(cfg config.Config) (*LangChainEmbedder, error) {
	var model embeddings.Embedder
	var err error

	switch cfg.EmbedProvider {
	case config.ProviderOllama:
		llm, ollamaErr := ollama.New(
			ollama.WithModel(cfg.EmbedModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if ollamaErr != nil {
			return nil, fmt.Errorf("create ollama client: %w", ollamaErr)
		}
		model, err = embeddings.NewEmbedder(llm)
		if err != nil {
			return nil, fmt.Errorf("create ollama embedder: %w", err)
		}

	case config.ProviderOpenAI, "":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		llm, openaiErr := openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithEmbeddingModel(cfg.EmbedModel),
		)
		if openaiErr != nil {
			return nil, fmt.Errorf("create openai client: %w", openaiErr)
		}
		model, err = embeddings.NewEmbedder(llm)
		if err != nil {
			return nil, fmt.Errorf("create openai embedder: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.EmbedProvider)
	}

	return NewLangChainFrom(model, cfg.EmbedModel, cfg.EmbedDimension), nil
}

// NewLangChainFrom wraps an existing langchaingo embedder.
func NewLangChainFrom(model embeddings.Embedder, modelName string, dimension int) *LangChainEmbedder {
	return &LangChainEmbedder{model: model, dimension: dimension, modelName: modelName}
}

// Embed generates an embedding vector for text.
func (e *LangChainEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *LangChainEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vectors, err := e.model.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed batch: %w", err)
	}
	if err := validate(vectors, len(texts), e.dimension); err != nil {
		return nil, err
	}
	return vectors, nil
}

// Model returns the embedding model name.
func (e *LangChainEmbedder) Model() string {
	return e.modelName
}

// Dimension returns the expected embedding dimension.
func (e *LangChainEmbedder) Dimension() int {
	return e.dimension
}
