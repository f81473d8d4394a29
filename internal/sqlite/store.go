// Package sqlite provides a SQLite-backed store.Store.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/csbot-go/internal/models"
	"github.com/raphaelgruber/csbot-go/internal/store"

	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps the SQLite connection.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// New opens (or creates) the SQLite database at dbPath and runs all pending
// migrations. If logger is nil, the default slog logger is used.
func New(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	s := &Store{db: db, logger: logger, now: func() time.Time { return time.Now().UTC() }}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// DB returns the raw *sql.DB for ad-hoc queries.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying database connection.
func (s *Store) Close(context.Context) error { return s.db.Close() }

// WipeData deletes all rows while preserving schema and resets ID counters.
// Use for testing only.
func (s *Store) WipeData(ctx context.Context) error {
	s.logger.Warn("wiping all data from database")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin wipe: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"messages", "sessions", "faqs"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sqlite_sequence"); err != nil {
		return fmt.Errorf("reset sequences: %w", err)
	}
	return tx.Commit()
}

// runMigrations applies any SQL files not yet recorded in schema_migrations.
func (s *Store) runMigrations() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY,
			applied_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			description TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var current int
	_ = s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current)

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		parts := strings.SplitN(e.Name(), "_", 2)
		if len(parts) < 2 {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(parts[0], "%d", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}
		description := strings.TrimSuffix(parts[1], ".sql")

		content, err := migrationsFS.ReadFile("migrations/" + e.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", e.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration tx: %w", err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", e.Name(), err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
			version, description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", e.Name(), err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", e.Name(), err)
		}
		s.logger.Info("applied migration", "version", version, "description", description)
	}
	return nil
}

// CreateSession inserts a session with a random UUID.
func (s *Store) CreateSession(ctx context.Context, userID *string, metadata map[string]any) (*models.Session, error) {
	sess := models.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Metadata:  store.CloneMetadata(metadata),
		CreatedAt: s.now(),
	}

	metaJSON, err := json.Marshal(sess.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO sessions (id, user_id, metadata, created_at) VALUES (?, ?, ?, ?)",
		sess.ID, nullableString(userID), string(metaJSON), formatTime(sess.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return &sess, nil
}

// GetSession returns store.ErrNotFound for unknown IDs.
func (s *Store) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var (
		sess      models.Session
		userID    sql.NullString
		metaJSON  string
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, metadata, created_at FROM sessions WHERE id = ?", id,
	).Scan(&sess.ID, &userID, &metaJSON, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	if userID.Valid {
		sess.UserID = &userID.String
	}
	sess.Metadata = map[string]any{}
	if err := json.Unmarshal([]byte(metaJSON), &sess.Metadata); err != nil {
		s.logger.Warn("ignoring malformed session metadata", "session_id", id, "error", err)
		sess.Metadata = map[string]any{}
	}
	sess.CreatedAt = parseTime(createdAt)
	return &sess, nil
}

// AppendMessage inserts a message; IDs come from the AUTOINCREMENT key.
func (s *Store) AppendMessage(ctx context.Context, sessionID string, role models.Role, content string, escalated bool) (*models.Message, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: role %q", store.ErrInvalidArgument, role)
	}

	msg := models.Message{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: s.now(),
		Escalated: escalated,
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO messages (session_id, role, content, created_at, escalated) VALUES (?, ?, ?, ?, ?)",
		sessionID, string(role), content, formatTime(msg.CreatedAt), escalated,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	if msg.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("message id: %w", err)
	}
	return &msg, nil
}

// RecentMessages returns the last limit messages, oldest first.
func (s *Store) RecentMessages(ctx context.Context, sessionID string, limit int) ([]models.Message, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: negative limit", store.ErrInvalidArgument)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, created_at, escalated
		FROM messages WHERE session_id = ?
		ORDER BY id DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// ListMessages returns a chronological page of messages.
func (s *Store) ListMessages(ctx context.Context, sessionID string, limit, offset int) ([]models.Message, error) {
	if limit < 0 || offset < 0 {
		return nil, fmt.Errorf("%w: negative limit or offset", store.ErrInvalidArgument)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, created_at, escalated
		FROM messages WHERE session_id = ?
		ORDER BY id ASC LIMIT ? OFFSET ?`,
		sessionID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]models.Message, error) {
	defer rows.Close()

	msgs := []models.Message{}
	for rows.Next() {
		var (
			m         models.Message
			role      string
			createdAt string
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &createdAt, &m.Escalated); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = models.Role(role)
		m.CreatedAt = parseTime(createdAt)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return msgs, nil
}

// AppendFAQs inserts entries in one transaction, in input order.
func (s *Store) AppendFAQs(ctx context.Context, entries []models.FAQEntry) ([]models.FAQEntry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin faq tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO faqs (question, answer, embedding, metadata, created_at) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return nil, fmt.Errorf("prepare faq insert: %w", err)
	}
	defer stmt.Close()

	now := formatTime(s.now())
	out := make([]models.FAQEntry, len(entries))
	for i, e := range entries {
		embJSON, err := json.Marshal(e.Embedding)
		if err != nil {
			return nil, fmt.Errorf("marshal embedding: %w", err)
		}
		var metaJSON []byte
		if len(e.Metadata) > 0 {
			if metaJSON, err = json.Marshal(e.Metadata); err != nil {
				return nil, fmt.Errorf("marshal metadata: %w", err)
			}
		}

		res, err := stmt.ExecContext(ctx, e.Question, e.Answer, string(embJSON), nullableBytes(metaJSON), now)
		if err != nil {
			return nil, fmt.Errorf("insert faq: %w", err)
		}
		if e.ID, err = res.LastInsertId(); err != nil {
			return nil, fmt.Errorf("faq id: %w", err)
		}
		out[i] = e
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit faqs: %w", err)
	}
	return out, nil
}

// ListFAQs returns every FAQ in insertion order. Rows whose embedding or
// metadata cannot be decoded are skipped with a warning.
func (s *Store) ListFAQs(ctx context.Context) ([]models.FAQEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, question, answer, embedding, metadata FROM faqs ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("list faqs: %w", err)
	}
	defer rows.Close()

	out := []models.FAQEntry{}
	for rows.Next() {
		var (
			e        models.FAQEntry
			embJSON  string
			metaJSON sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Question, &e.Answer, &embJSON, &metaJSON); err != nil {
			return nil, fmt.Errorf("scan faq: %w", err)
		}
		if err := json.Unmarshal([]byte(embJSON), &e.Embedding); err != nil {
			s.logger.Warn("skipping faq with malformed embedding", "faq_id", e.ID, "error", err)
			continue
		}
		if metaJSON.Valid && metaJSON.String != "" {
			if err := json.Unmarshal([]byte(metaJSON.String), &e.Metadata); err != nil {
				s.logger.Warn("skipping faq with malformed metadata", "faq_id", e.ID, "error", err)
				continue
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate faqs: %w", err)
	}
	return out, nil
}

// CountFAQs returns the number of stored FAQ rows.
func (s *Store) CountFAQs(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM faqs").Scan(&n); err != nil {
		return 0, fmt.Errorf("count faqs: %w", err)
	}
	return n, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
