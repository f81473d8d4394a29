// Package store defines persistence contracts for sessions, messages and FAQs.
package store

import (
	"context"
	"errors"

	"github.com/raphaelgruber/csbot-go/internal/models"
)

// Sentinel errors shared by every backend.
var (
	// ErrNotFound indicates the requested session does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument indicates a malformed request to the store.
	ErrInvalidArgument = errors.New("invalid argument")
)

// SessionStore creates and looks up sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, userID *string, metadata map[string]any) (*models.Session, error)
	GetSession(ctx context.Context, id string) (*models.Session, error)
}

// MessageStore is an append-only log of messages per session.
type MessageStore interface {
	AppendMessage(ctx context.Context, sessionID string, role models.Role, content string, escalated bool) (*models.Message, error)

	// RecentMessages returns at most limit of the newest messages of a
	// session in chronological order, oldest first.
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]models.Message, error)

	// ListMessages returns a chronological page of a session's messages.
	ListMessages(ctx context.Context, sessionID string, limit, offset int) ([]models.Message, error)
}

// FAQStore is an append-only catalog of embedded FAQs.
type FAQStore interface {
	// AppendFAQs stores entries and returns them with IDs assigned in input order.
	AppendFAQs(ctx context.Context, entries []models.FAQEntry) ([]models.FAQEntry, error)

	// ListFAQs returns every FAQ in insertion order.
	ListFAQs(ctx context.Context) ([]models.FAQEntry, error)

	CountFAQs(ctx context.Context) (int, error)
}

// Store bundles every contract behind a single backend.
type Store interface {
	SessionStore
	MessageStore
	FAQStore
	Close(ctx context.Context) error
}

// CloneMetadata returns a shallow copy of m, never nil.
func CloneMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
