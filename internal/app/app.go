// Package app wires configuration, storage and model providers into the
// chat and FAQ services.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/csbot-go/internal/config"
	"github.com/raphaelgruber/csbot-go/internal/db"
	"github.com/raphaelgruber/csbot-go/internal/embedding"
	"github.com/raphaelgruber/csbot-go/internal/llm"
	"github.com/raphaelgruber/csbot-go/internal/metrics"
	"github.com/raphaelgruber/csbot-go/internal/retrieval"
	"github.com/raphaelgruber/csbot-go/internal/service"
	"github.com/raphaelgruber/csbot-go/internal/sqlite"
	"github.com/raphaelgruber/csbot-go/internal/store"
	"github.com/raphaelgruber/csbot-go/internal/summarizer"
)

// App holds every long-lived dependency.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Metrics  *metrics.Collector
	Store    store.Store
	Embedder embedding.Embedder
	Model    llm.ChatModel
	Chat     *service.ChatService
	FAQs     *service.FAQService
}

// New opens the configured store and creates the provider clients.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mc := metrics.NewCollector()

	st, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	embedder, err := embedding.New(cfg, mc)
	if err != nil {
		st.Close(ctx)
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	model, err := llm.NewModel(ctx, cfg, mc)
	if err != nil {
		st.Close(ctx)
		return nil, fmt.Errorf("create model: %w", err)
	}

	return Assemble(cfg, st, embedder, model, mc, logger), nil
}

// Assemble builds the services on top of already constructed
// dependencies. collector may be nil.
func Assemble(
	cfg config.Config,
	st store.Store,
	embedder embedding.Embedder,
	model llm.ChatModel,
	collector *metrics.Collector,
	logger *slog.Logger,
) *App {
	if logger == nil {
		logger = slog.Default()
	}
	if collector == nil {
		collector = metrics.NewCollector()
	}

	engine := retrieval.NewEngine(st, embedder, collector, logger)
	summ := summarizer.New(model, collector, summarizer.WithLogger(logger))

	chat := service.NewChatService(st, st, engine, model, summ, service.ChatConfig{
		ContextWindow: cfg.ContextWindow,
		TopK:          cfg.FAQTopK,
		Threshold:     cfg.FAQThreshold,
	}, collector, logger)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Metrics:  collector,
		Store:    st,
		Embedder: embedder,
		Model:    model,
		Chat:     chat,
		FAQs:     service.NewFAQService(st, embedder, cfg.EmbedBatchSize, logger),
	}
}

// OpenStore opens the backend selected by cfg.StoreBackend.
func OpenStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return store.NewMemory(), nil

	case config.BackendSQLite, "":
		st, err := sqlite.New(cfg.DBPath, logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		logger.Info("using sqlite store", "path", cfg.DBPath)
		return st, nil

	case config.BackendSurreal:
		client, err := db.Open(ctx, db.ConfigFrom(cfg), logger)
		if err != nil {
			return nil, fmt.Errorf("open surrealdb store: %w", err)
		}
		return client, nil
	}
	return nil, fmt.Errorf("%w: unknown store backend %q", config.ErrInvalidConfig, cfg.StoreBackend)
}

// Wipe deletes all stored sessions, messages and FAQs. The memory backend
// starts empty and needs no wipe.
func (a *App) Wipe(ctx context.Context) error {
	w, ok := a.Store.(interface{ WipeData(context.Context) error })
	if !ok {
		return nil
	}
	return w.WipeData(ctx)
}

// Close releases the store.
func (a *App) Close(ctx context.Context) error {
	if a.Store != nil {
		return a.Store.Close(ctx)
	}
	return nil
}
