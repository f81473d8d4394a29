package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/raphaelgruber/csbot-go/internal/server"
	"github.com/spf13/cobra"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Long: `Run the HTTP and WebSocket API in the foreground until interrupted.

Examples:
  csbot serve
  csbot serve --port 9000`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (default $CSBOT_SERVER_PORT or 8000)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := getApp(ctx)
	if err != nil {
		return err
	}

	port := servePort
	if port == 0 {
		port = cfg.ServerPort
	}

	logger.Info("starting csbot server",
		"version", Version,
		"port", port,
		"store", cfg.StoreBackend,
		"llm_provider", cfg.LLMProvider,
		"llm_model", a.Model.Model(),
		"embed_model", a.Embedder.Model(),
	)

	srv := server.New(server.Options{
		Chat:    a.Chat,
		Metrics: a.Metrics,
		Health: func(context.Context) error {
			return cfg.CheckLLMCredentials()
		},
		Logger: logger,
	})
	if err := srv.ListenAndServe(ctx, fmt.Sprintf(":%d", port)); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
