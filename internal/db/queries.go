package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/raphaelgruber/csbot-go/internal/models"
	"github.com/raphaelgruber/csbot-go/internal/store"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Compile-time check that Client implements store.Store.
var _ store.Store = (*Client)(nil)

type sessionRow struct {
	ID       surrealmodels.RecordID `json:"id"`
	UserID   *string                `json:"user_id,omitempty"`
	Metadata map[string]any         `json:"metadata,omitempty"`
	Created  time.Time              `json:"created"`
}

type messageRow struct {
	Seq       int64     `json:"seq"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Escalated bool      `json:"escalated"`
	Created   time.Time `json:"created"`
}

func (r messageRow) message() models.Message {
	return models.Message{
		ID:        r.Seq,
		SessionID: r.SessionID,
		Role:      models.Role(r.Role),
		Content:   r.Content,
		CreatedAt: r.Created,
		Escalated: r.Escalated,
	}
}

type faqRow struct {
	Seq       int64          `json:"seq"`
	Question  string         `json:"question"`
	Answer    string         `json:"answer"`
	Embedding []float32      `json:"embedding"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// recordIDString extracts the string key from a SurrealDB RecordID.
func recordIDString(id surrealmodels.RecordID) (string, error) {
	s, ok := id.ID.(string)
	if !ok {
		return "", fmt.Errorf("record id %v is %T, not string", id, id.ID)
	}
	return s, nil
}

// nextSeq advances the named counter by n and returns the first value of
// the reserved range. Concurrent appends may conflict on the counter
// record; those attempts are retried.
func (c *Client) nextSeq(ctx context.Context, name string, n int) (int64, error) {
	var last int64
	op := func() error {
		results, err := surrealdb.Query[[]int64](ctx, c.db, `
			UPSERT type::record("counter", $name) SET value += $n RETURN VALUE value
		`, map[string]any{"name": name, "n": n})
		if err != nil {
			err = wrapQueryError(err)
			if errors.Is(err, ErrTransactionConflict) {
				return err
			}
			return backoff.Permanent(err)
		}
		if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
			return backoff.Permanent(fmt.Errorf("counter %s returned no value", name))
		}
		last = (*results)[0].Result[0]
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(c.cfg.ConflictDelay), uint64(c.cfg.ConflictRetries)), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return 0, fmt.Errorf("next %s seq: %w", name, err)
	}
	return last - int64(n) + 1, nil
}

// CreateSession creates a session record keyed by a random UUID.
func (c *Client) CreateSession(ctx context.Context, userID *string, metadata map[string]any) (*models.Session, error) {
	id := uuid.NewString()
	content := map[string]any{"metadata": store.CloneMetadata(metadata)}
	// option<string> rejects NULL, so the field is left out instead.
	if userID != nil {
		content["user_id"] = *userID
	}

	results, err := surrealdb.Query[[]sessionRow](ctx, c.db, `
		CREATE type::record("session", $id) CONTENT $content RETURN AFTER
	`, map[string]any{"id": id, "content": content})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("create session: no record returned")
	}
	return sessionFromRow((*results)[0].Result[0], id), nil
}

// GetSession returns store.ErrNotFound for unknown IDs.
func (c *Client) GetSession(ctx context.Context, id string) (*models.Session, error) {
	results, err := surrealdb.Query[[]sessionRow](ctx, c.db, `
		SELECT * FROM type::record("session", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get session: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	return sessionFromRow((*results)[0].Result[0], id), nil
}

func sessionFromRow(row sessionRow, fallbackID string) *models.Session {
	id, err := recordIDString(row.ID)
	if err != nil {
		id = fallbackID
	}
	meta := row.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	return &models.Session{
		ID:        id,
		UserID:    row.UserID,
		Metadata:  meta,
		CreatedAt: row.Created,
	}
}

// AppendMessage stores a message with the next value of counter:message.
func (c *Client) AppendMessage(ctx context.Context, sessionID string, role models.Role, content string, escalated bool) (*models.Message, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: role %q", store.ErrInvalidArgument, role)
	}

	seq, err := c.nextSeq(ctx, "message", 1)
	if err != nil {
		return nil, err
	}

	results, err := surrealdb.Query[[]messageRow](ctx, c.db, `
		CREATE type::record("message", $seq) SET
			seq = $seq,
			session_id = $session_id,
			role = $role,
			content = $content,
			escalated = $escalated
		RETURN AFTER
	`, map[string]any{
		"seq":        seq,
		"session_id": sessionID,
		"role":       string(role),
		"content":    content,
		"escalated":  escalated,
	})
	if err != nil {
		return nil, fmt.Errorf("append message: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("append message: no record returned")
	}
	msg := (*results)[0].Result[0].message()
	return &msg, nil
}

// RecentMessages returns the last limit messages, oldest first.
func (c *Client) RecentMessages(ctx context.Context, sessionID string, limit int) ([]models.Message, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: negative limit", store.ErrInvalidArgument)
	}
	if limit == 0 {
		return []models.Message{}, nil
	}

	results, err := surrealdb.Query[[]messageRow](ctx, c.db, `
		SELECT seq, session_id, role, content, escalated, created
		FROM message WHERE session_id = $session_id
		ORDER BY seq DESC LIMIT $limit
	`, map[string]any{"session_id": sessionID, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", wrapQueryError(err))
	}

	rows := firstResult(results)
	msgs := make([]models.Message, len(rows))
	for i, r := range rows {
		msgs[len(rows)-1-i] = r.message()
	}
	return msgs, nil
}

// ListMessages returns a chronological page of messages.
func (c *Client) ListMessages(ctx context.Context, sessionID string, limit, offset int) ([]models.Message, error) {
	if limit < 0 || offset < 0 {
		return nil, fmt.Errorf("%w: negative limit or offset", store.ErrInvalidArgument)
	}
	if limit == 0 {
		return []models.Message{}, nil
	}

	results, err := surrealdb.Query[[]messageRow](ctx, c.db, `
		SELECT seq, session_id, role, content, escalated, created
		FROM message WHERE session_id = $session_id
		ORDER BY seq ASC LIMIT $limit START $offset
	`, map[string]any{"session_id": sessionID, "limit": limit, "offset": offset})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", wrapQueryError(err))
	}

	rows := firstResult(results)
	msgs := make([]models.Message, len(rows))
	for i, r := range rows {
		msgs[i] = r.message()
	}
	return msgs, nil
}

// AppendFAQs reserves a contiguous seq range and inserts all entries in
// one statement.
func (c *Client) AppendFAQs(ctx context.Context, entries []models.FAQEntry) ([]models.FAQEntry, error) {
	if len(entries) == 0 {
		return []models.FAQEntry{}, nil
	}

	first, err := c.nextSeq(ctx, "faq", len(entries))
	if err != nil {
		return nil, err
	}

	out := make([]models.FAQEntry, len(entries))
	rows := make([]map[string]any, len(entries))
	for i, e := range entries {
		e.ID = first + int64(i)
		emb := e.Embedding
		if emb == nil {
			emb = []float32{}
		}
		row := map[string]any{
			"seq":       e.ID,
			"question":  e.Question,
			"answer":    e.Answer,
			"embedding": emb,
		}
		if len(e.Metadata) > 0 {
			row["metadata"] = e.Metadata
		}
		rows[i] = row
		out[i] = e
	}

	if _, err := surrealdb.Query[any](ctx, c.db, `INSERT INTO faq $rows`, map[string]any{"rows": rows}); err != nil {
		return nil, fmt.Errorf("append faqs: %w", wrapQueryError(err))
	}
	return out, nil
}

// ListFAQs returns every FAQ ordered by seq.
func (c *Client) ListFAQs(ctx context.Context) ([]models.FAQEntry, error) {
	results, err := surrealdb.Query[[]faqRow](ctx, c.db, `
		SELECT seq, question, answer, embedding, metadata FROM faq ORDER BY seq ASC
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("list faqs: %w", wrapQueryError(err))
	}

	rows := firstResult(results)
	out := make([]models.FAQEntry, 0, len(rows))
	for _, r := range rows {
		if len(r.Embedding) == 0 {
			c.logger.Warn("skipping faq without embedding", "faq_id", r.Seq)
			continue
		}
		out = append(out, models.FAQEntry{
			ID:        r.Seq,
			Question:  r.Question,
			Answer:    r.Answer,
			Embedding: r.Embedding,
			Metadata:  r.Metadata,
		})
	}
	return out, nil
}

// CountFAQs returns the number of stored FAQ records.
func (c *Client) CountFAQs(ctx context.Context) (int, error) {
	results, err := surrealdb.Query[[]struct{ C int }](ctx, c.db, `
		SELECT count() AS c FROM faq GROUP ALL
	`, nil)
	if err != nil {
		return 0, fmt.Errorf("count faqs: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return 0, nil
	}
	return (*results)[0].Result[0].C, nil
}

func firstResult[T any](results *[]surrealdb.QueryResult[[]T]) []T {
	if results == nil || len(*results) == 0 {
		return nil
	}
	return (*results)[0].Result
}
