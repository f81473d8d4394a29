// Package main provides the standalone HTTP server for csbot.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/raphaelgruber/csbot-go/internal/app"
	"github.com/raphaelgruber/csbot-go/internal/config"
	"github.com/raphaelgruber/csbot-go/internal/server"
	"github.com/raphaelgruber/csbot-go/internal/service"
)

func main() {
	// Parse flags
	wipeDB := flag.Bool("wipe", false, "wipe all data from database on startup (testing only)")
	seedSample := flag.Bool("seed-sample", false, "store the sample FAQ catalog when the catalog is empty")
	port := flag.Int("port", 0, "listen port (default $CSBOT_SERVER_PORT or 8000)")
	flag.Parse()

	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if *port == 0 {
		*port = cfg.ServerPort
	}

	// Initialize logging
	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer cleanup()
	slog.SetDefault(logger)

	slog.Info("starting csbot-server", "port", *port, "store", cfg.StoreBackend)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	a, err := app.New(ctx, cfg, logger)
	cancel()
	if err != nil {
		slog.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			slog.Error("failed to close store", "error", err)
		}
	}()

	// Wipe database if requested (via flag or env var)
	if *wipeDB || os.Getenv("CSBOT_WIPE_DB") == "true" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := a.Wipe(ctx)
		cancel()
		if err != nil {
			slog.Error("failed to wipe database", "error", err)
			os.Exit(1)
		}
	}

	if *seedSample {
		seed(a)
	}

	if err := cfg.CheckLLMCredentials(); err != nil {
		slog.Warn("health check will fail", "error", err)
	}

	srv := server.New(server.Options{
		Chat:    a.Chat,
		Metrics: a.Metrics,
		Health: func(context.Context) error {
			return cfg.CheckLLMCredentials()
		},
		Logger: logger,
	})

	// Wait for interrupt signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("API available", "url", "http://localhost:"+strconv.Itoa(*port)+"/")
	if err := srv.ListenAndServe(ctx, ":"+strconv.Itoa(*port)); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// seed stores the sample catalog unless FAQs already exist.
func seed(a *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	n, err := a.FAQs.Count(ctx)
	if err != nil {
		slog.Error("failed to count faqs", "error", err)
		os.Exit(1)
	}
	if n > 0 {
		slog.Info("faq catalog already populated, skipping seed", "count", n)
		return
	}
	res, err := a.FAQs.Ingest(ctx, service.SampleFAQs, nil)
	if err != nil {
		slog.Error("failed to seed faqs", "error", err)
		os.Exit(1)
	}
	slog.Info("seeded sample faqs", "stored", res.Stored)
}
