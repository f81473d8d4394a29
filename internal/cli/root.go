// Package cli provides the command-line interface for csbot.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/raphaelgruber/csbot-go/internal/app"
	"github.com/raphaelgruber/csbot-go/internal/client"
	"github.com/raphaelgruber/csbot-go/internal/config"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose   bool
	serverURL string

	// Global config and logger
	cfg           config.Config
	logger        *slog.Logger
	loggerCleanup func() error

	// Lazy-initialized in-process application
	application *app.App
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "csbot",
	Short: "Customer-support chat backend",
	Long: `csbot answers customer questions using an FAQ catalog and a chat model,
hands conversations off to a human when the customer asks for one, and
summarizes sessions for support staff.

Commands run in-process against the configured store, or against a running
server when --server is given.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip setup for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()
		if err := cfg.Validate(); err != nil {
			return err
		}

		// Interactive commands stay quiet on stderr unless asked otherwise.
		level := cfg.LogLevel
		if !verbose && cmd.Name() != "serve" && level < slog.LevelWarn {
			level = slog.LevelWarn
		}
		logger, loggerCleanup = config.SetupLogger(cfg.LogFile, level)
		slog.SetDefault(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if application != nil {
			if err := application.Close(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close store: %v\n", err)
			}
		}
		if loggerCleanup != nil {
			_ = loggerCleanup()
		}
	},
}

// getApp builds the in-process application on first use.
func getApp(ctx context.Context) (*app.App, error) {
	if application != nil {
		return application, nil
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init app: %w", err)
	}
	application = a
	return a, nil
}

// getBackend returns a remote backend when --server is set, otherwise the
// in-process application.
func getBackend(ctx context.Context) (backend, error) {
	if serverURL != "" {
		return &remoteBackend{client: client.New(serverURL)}, nil
	}
	a, err := getApp(ctx)
	if err != nil {
		return nil, err
	}
	return &localBackend{app: a}, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "talk to a running csbot server at this URL instead of running in-process")

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(summarizeCmd)
	rootCmd.AddCommand(faqCmd)
	rootCmd.AddCommand(statsCmd)
}
