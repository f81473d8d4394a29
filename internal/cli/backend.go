package cli

import (
	"context"

	"github.com/raphaelgruber/csbot-go/internal/app"
	"github.com/raphaelgruber/csbot-go/internal/client"
	"github.com/raphaelgruber/csbot-go/internal/metrics"
	"github.com/raphaelgruber/csbot-go/internal/models"
)

// backend is what the interactive commands need, served either in-process
// or by a remote server.
type backend interface {
	CreateSession(ctx context.Context, userID *string, metadata map[string]any) (*models.Session, error)
	Send(ctx context.Context, sessionID, message string) (*models.ChatReply, error)
	Messages(ctx context.Context, sessionID string, limit, offset int) ([]models.Message, error)
	Summarize(ctx context.Context, sessionID string) (*models.Summary, error)
	Stats(ctx context.Context) (*metrics.Snapshot, error)
	Close() error
}

type localBackend struct {
	app *app.App
}

func (b *localBackend) CreateSession(ctx context.Context, userID *string, metadata map[string]any) (*models.Session, error) {
	return b.app.Chat.CreateSession(ctx, userID, metadata)
}

func (b *localBackend) Send(ctx context.Context, sessionID, message string) (*models.ChatReply, error) {
	return b.app.Chat.Handle(ctx, sessionID, message)
}

func (b *localBackend) Messages(ctx context.Context, sessionID string, limit, offset int) ([]models.Message, error) {
	return b.app.Chat.Messages(ctx, sessionID, limit, offset)
}

func (b *localBackend) Summarize(ctx context.Context, sessionID string) (*models.Summary, error) {
	return b.app.Chat.SummarizeSession(ctx, sessionID)
}

func (b *localBackend) Stats(context.Context) (*metrics.Snapshot, error) {
	snap := b.app.Metrics.Snapshot()
	return &snap, nil
}

// Close is a no-op; the application is closed by the root command.
func (b *localBackend) Close() error { return nil }

// remoteBackend sends chat messages over a WebSocket once one is open and
// everything else over REST.
type remoteBackend struct {
	client *client.Client
	conv   *client.Conversation
}

func (b *remoteBackend) CreateSession(ctx context.Context, userID *string, metadata map[string]any) (*models.Session, error) {
	return b.client.CreateSession(ctx, userID, metadata)
}

func (b *remoteBackend) Send(ctx context.Context, sessionID, message string) (*models.ChatReply, error) {
	if b.conv == nil {
		conv, err := b.client.Chat(ctx)
		if err != nil {
			// Fall back to REST when the server refuses the upgrade.
			return b.client.PostMessage(ctx, sessionID, message)
		}
		b.conv = conv
	}
	return b.conv.Send(ctx, sessionID, message)
}

func (b *remoteBackend) Messages(ctx context.Context, sessionID string, limit, offset int) ([]models.Message, error) {
	return b.client.Messages(ctx, sessionID, limit, offset)
}

func (b *remoteBackend) Summarize(ctx context.Context, sessionID string) (*models.Summary, error) {
	return b.client.Summarize(ctx, sessionID)
}

func (b *remoteBackend) Stats(ctx context.Context) (*metrics.Snapshot, error) {
	return b.client.Stats(ctx)
}

func (b *remoteBackend) Close() error {
	if b.conv != nil {
		return b.conv.Close()
	}
	return nil
}
