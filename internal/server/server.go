// Package server exposes the chat service over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/csbot-go/internal/metrics"
	"github.com/raphaelgruber/csbot-go/internal/models"
)

// DefaultRequestTimeout bounds every non-WebSocket request.
const DefaultRequestTimeout = 60 * time.Second

// Chat is the subset of service.ChatService the server needs.
type Chat interface {
	CreateSession(ctx context.Context, userID *string, metadata map[string]any) (*models.Session, error)
	Handle(ctx context.Context, sessionID, userMessage string) (*models.ChatReply, error)
	Messages(ctx context.Context, sessionID string, limit, offset int) ([]models.Message, error)
	SummarizeSession(ctx context.Context, sessionID string) (*models.Summary, error)
}

// Options configures a Server.
type Options struct {
	Chat    Chat
	Metrics *metrics.Collector
	// Health reports whether the service can answer requests. Nil means always healthy.
	Health         func(ctx context.Context) error
	Logger         *slog.Logger
	RequestTimeout time.Duration
}

// Server holds the HTTP router and its dependencies.
type Server struct {
	chat     Chat
	metrics  *metrics.Collector
	health   func(ctx context.Context) error
	logger   *slog.Logger
	timeout  time.Duration
	upgrader websocket.Upgrader
	router   chi.Router
}

// New creates a server and registers all routes.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}

	s := &Server{
		chat:    opts.Chat,
		metrics: opts.Metrics,
		health:  opts.Health,
		logger:  opts.Logger,
		timeout: opts.RequestTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins; no browser auth to protect
			},
		},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(s.logger))
	r.Use(middleware.Recoverer)

	r.Group(func(gr chi.Router) {
		gr.Use(middleware.Timeout(s.timeout))

		gr.Get("/health", s.handleHealth)
		gr.Get("/stats", s.handleStats)
		gr.Post("/sessions", s.handleCreateSession)
		gr.Get("/sessions/{id}/messages", s.handleMessages)
		gr.Post("/sessions/{id}/summarize", s.handleSummarize)
		gr.Post("/message", s.handleMessage)
	})

	// Long-lived; each frame gets its own timeout instead.
	r.Get("/ws", s.handleWebSocket)

	s.router = r
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: s.timeout + 5*time.Second, // Long for LLM responses
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}
