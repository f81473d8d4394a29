// Package db provides a SurrealDB-backed store.Store with auto-reconnect support.
package db

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/raphaelgruber/csbot-go/internal/config"
	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/contrib/rews"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	"github.com/surrealdb/surrealdb.go/pkg/logger"
	"github.com/surrealdb/surrealdb.go/surrealcbor"
)

func init() {
	// WebSocket upgrades fail over HTTP/2, so pin ALPN to HTTP/1.1 for wss://.
	gorillaws.DefaultDialer.TLSClientConfig = &tls.Config{
		NextProtos: []string{"http/1.1"},
	}
}

// Defaults applied by Open for zero-valued Config fields.
const (
	DefaultDialTimeout      = 5 * time.Second
	DefaultReconnectRetries = 10
	DefaultReconnectDelay   = time.Second
	DefaultReconnectMaxWait = 30 * time.Second
	DefaultConflictRetries  = 5
	DefaultConflictDelay    = 50 * time.Millisecond
)

// Config describes the SurrealDB deployment that backs the chat store.
type Config struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
	AuthLevel string // "root" or "database"

	DialTimeout time.Duration

	// Reconnects back off exponentially from ReconnectDelay up to
	// ReconnectMaxWait.
	ReconnectRetries int
	ReconnectDelay   time.Duration
	ReconnectMaxWait time.Duration

	// ConflictRetries bounds retries of a sequence bump that lost a
	// transaction race against a concurrent append.
	ConflictRetries int
	ConflictDelay   time.Duration
}

// ConfigFrom maps the SURREALDB_* settings onto a Config.
func ConfigFrom(cfg config.Config) Config {
	return Config{
		URL:              cfg.SurrealDBURL,
		Namespace:        cfg.SurrealDBNamespace,
		Database:         cfg.SurrealDBDatabase,
		Username:         cfg.SurrealDBUser,
		Password:         cfg.SurrealDBPass,
		AuthLevel:        cfg.SurrealDBAuthLevel,
		ReconnectRetries: cfg.SurrealDBReconnectRetries,
		ReconnectDelay:   cfg.SurrealDBReconnectDelay,
		ConflictRetries:  cfg.SurrealDBConflictRetries,
	}
}

func (c Config) withDefaults() Config {
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.ReconnectRetries <= 0 {
		c.ReconnectRetries = DefaultReconnectRetries
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.ReconnectMaxWait < c.ReconnectDelay {
		c.ReconnectMaxWait = max(DefaultReconnectMaxWait, c.ReconnectDelay)
	}
	if c.ConflictRetries <= 0 {
		c.ConflictRetries = DefaultConflictRetries
	}
	if c.ConflictDelay <= 0 {
		c.ConflictDelay = DefaultConflictDelay
	}
	if c.AuthLevel == "" {
		c.AuthLevel = "root"
	}
	return c
}

// auth returns the credentials for the configured auth level. Database
// users are scoped to the namespace and database; root users are not.
func (c Config) auth() surrealdb.Auth {
	if c.AuthLevel == "database" {
		return surrealdb.Auth{
			Namespace: c.Namespace,
			Database:  c.Database,
			Username:  c.Username,
			Password:  c.Password,
		}
	}
	return surrealdb.Auth{Username: c.Username, Password: c.Password}
}

// rpcBase strips a trailing /rpc; gorillaws appends it itself.
func rpcBase(url string) string {
	return strings.TrimSuffix(strings.TrimRight(url, "/"), "/rpc")
}

// Client is a store.Store over one auto-reconnecting SurrealDB session.
type Client struct {
	conn   *rews.Connection[*gorillaws.Connection]
	db     *surrealdb.DB
	cfg    Config
	logger logger.Logger
}

// Open connects to SurrealDB, signs in, selects the namespace and database
// and applies the chat schema. The returned client is ready for use.
func Open(ctx context.Context, cfg Config, log *slog.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	sdkLogger := logger.New(log.Handler())
	codec := surrealcbor.New()
	base := rpcBase(cfg.URL)

	conn := rews.New(
		func(ctx context.Context) (*gorillaws.Connection, error) {
			return gorillaws.New(&connection.Config{
				BaseURL:     base,
				Marshaler:   codec,
				Unmarshaler: codec,
				Logger:      sdkLogger,
			}), nil
		},
		cfg.DialTimeout,
		codec,
		sdkLogger,
	)

	retryer := rews.NewExponentialBackoffRetryer()
	retryer.InitialDelay = cfg.ReconnectDelay
	retryer.MaxDelay = cfg.ReconnectMaxWait
	retryer.Multiplier = 2.0
	retryer.MaxRetries = cfg.ReconnectRetries
	conn.Retryer = retryer

	log.Info("connecting to surrealdb", "url", cfg.URL, "namespace", cfg.Namespace, "database", cfg.Database)
	if err := conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	c := &Client{conn: conn, cfg: cfg, logger: sdkLogger}
	if err := c.session(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, err
	}
	if err := c.initSchema(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, err
	}

	log.Info("surrealdb store ready", "auth_level", cfg.AuthLevel)
	return c, nil
}

// session binds a DB handle to the connection and scopes it to the chat
// namespace and database.
func (c *Client) session(ctx context.Context) error {
	db, err := surrealdb.FromConnection(ctx, c.conn)
	if err != nil {
		return fmt.Errorf("from connection: %w", err)
	}
	if _, err := db.SignIn(ctx, c.cfg.auth()); err != nil {
		return fmt.Errorf("signin as %s user %q: %w", c.cfg.AuthLevel, c.cfg.Username, err)
	}
	if err := db.Use(ctx, c.cfg.Namespace, c.cfg.Database); err != nil {
		return fmt.Errorf("use %s/%s: %w", c.cfg.Namespace, c.cfg.Database, err)
	}
	c.db = db
	return nil
}

// initSchema applies SchemaSQL. Every statement is IF NOT EXISTS, so
// reopening an existing database is safe.
func (c *Client) initSchema(ctx context.Context) error {
	if _, err := surrealdb.Query[any](ctx, c.db, SchemaSQL, nil); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Close closes the SurrealDB connection.
func (c *Client) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}

// chatTables are the tables WipeData clears, children first.
var chatTables = []string{"message", "session", "faq", "counter"}

// WipeData deletes every session, message and FAQ and resets the ID
// counters. The schema is kept.
func (c *Client) WipeData(ctx context.Context) error {
	for _, table := range chatTables {
		if _, err := surrealdb.Query[any](ctx, c.db, "DELETE "+table, nil); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	c.logger.Warn("wiped chat data", "tables", chatTables)
	return nil
}
