package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/csbot-go/internal/models"
)

// Memory is an in-process Store. All methods are goroutine-safe.
type Memory struct {
	mu        sync.RWMutex
	sessions  map[string]models.Session
	messages  map[string][]models.Message
	faqs      []models.FAQEntry
	nextMsgID int64
	nextFAQID int64
	now       func() time.Time
}

// Compile-time check that Memory implements Store.
var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]models.Session),
		messages: make(map[string][]models.Message),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateSession stores a new session with a random UUID.
func (m *Memory) CreateSession(_ context.Context, userID *string, metadata map[string]any) (*models.Session, error) {
	s := models.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Metadata:  CloneMetadata(metadata),
		CreatedAt: m.now(),
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	return &s, nil
}

// GetSession returns ErrNotFound for unknown IDs.
func (m *Memory) GetSession(_ context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return &s, nil
}

// AppendMessage adds a message to a session's log.
func (m *Memory) AppendMessage(_ context.Context, sessionID string, role models.Role, content string, escalated bool) (*models.Message, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: role %q", ErrInvalidArgument, role)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextMsgID++
	msg := models.Message{
		ID:        m.nextMsgID,
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: m.now(),
		Escalated: escalated,
	}
	m.messages[sessionID] = append(m.messages[sessionID], msg)
	return &msg, nil
}

// RecentMessages returns the last limit messages, oldest first.
func (m *Memory) RecentMessages(_ context.Context, sessionID string, limit int) ([]models.Message, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: negative limit", ErrInvalidArgument)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	log := m.messages[sessionID]
	start := len(log) - limit
	if start < 0 {
		start = 0
	}
	out := make([]models.Message, len(log)-start)
	copy(out, log[start:])
	return out, nil
}

// ListMessages returns a chronological page of messages.
func (m *Memory) ListMessages(_ context.Context, sessionID string, limit, offset int) ([]models.Message, error) {
	if limit < 0 || offset < 0 {
		return nil, fmt.Errorf("%w: negative limit or offset", ErrInvalidArgument)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	log := m.messages[sessionID]
	if offset >= len(log) {
		return []models.Message{}, nil
	}
	end := offset + limit
	if end > len(log) {
		end = len(log)
	}
	out := make([]models.Message, end-offset)
	copy(out, log[offset:end])
	return out, nil
}

// AppendFAQs assigns IDs in input order and stores the entries.
func (m *Memory) AppendFAQs(_ context.Context, entries []models.FAQEntry) ([]models.FAQEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.FAQEntry, len(entries))
	for i, e := range entries {
		m.nextFAQID++
		e.ID = m.nextFAQID
		e.Metadata = CloneMetadata(e.Metadata)
		m.faqs = append(m.faqs, e)
		out[i] = e
	}
	return out, nil
}

// ListFAQs returns all FAQs in insertion order.
func (m *Memory) ListFAQs(_ context.Context) ([]models.FAQEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.FAQEntry, len(m.faqs))
	copy(out, m.faqs)
	return out, nil
}

// CountFAQs returns the number of stored FAQs.
func (m *Memory) CountFAQs(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.faqs), nil
}

// Close is a no-op.
func (m *Memory) Close(context.Context) error { return nil }
