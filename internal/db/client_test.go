package db

import (
	"testing"
	"time"

	"github.com/raphaelgruber/csbot-go/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.Config{
		SurrealDBURL:              "wss://db.example.com/rpc",
		SurrealDBNamespace:        "support",
		SurrealDBDatabase:         "csbot",
		SurrealDBUser:             "agent",
		SurrealDBPass:             "secret",
		SurrealDBAuthLevel:        "database",
		SurrealDBReconnectRetries: 3,
		SurrealDBReconnectDelay:   200 * time.Millisecond,
		SurrealDBConflictRetries:  7,
	})

	assert.Equal(t, Config{
		URL:              "wss://db.example.com/rpc",
		Namespace:        "support",
		Database:         "csbot",
		Username:         "agent",
		Password:         "secret",
		AuthLevel:        "database",
		ReconnectRetries: 3,
		ReconnectDelay:   200 * time.Millisecond,
		ConflictRetries:  7,
	}, cfg)
}

func TestConfigDefaults(t *testing.T) {
	t.Run("zero values", func(t *testing.T) {
		cfg := Config{}.withDefaults()
		assert.Equal(t, DefaultDialTimeout, cfg.DialTimeout)
		assert.Equal(t, DefaultReconnectRetries, cfg.ReconnectRetries)
		assert.Equal(t, DefaultReconnectDelay, cfg.ReconnectDelay)
		assert.Equal(t, DefaultReconnectMaxWait, cfg.ReconnectMaxWait)
		assert.Equal(t, DefaultConflictRetries, cfg.ConflictRetries)
		assert.Equal(t, DefaultConflictDelay, cfg.ConflictDelay)
		assert.Equal(t, "root", cfg.AuthLevel)
	})

	t.Run("explicit values kept", func(t *testing.T) {
		cfg := Config{ReconnectRetries: 2, ReconnectDelay: 10 * time.Millisecond, ConflictRetries: 1}.withDefaults()
		assert.Equal(t, 2, cfg.ReconnectRetries)
		assert.Equal(t, 10*time.Millisecond, cfg.ReconnectDelay)
		assert.Equal(t, 1, cfg.ConflictRetries)
	})

	t.Run("max wait never below first delay", func(t *testing.T) {
		cfg := Config{ReconnectDelay: time.Minute}.withDefaults()
		assert.Equal(t, time.Minute, cfg.ReconnectMaxWait)
	})
}

func TestConfigAuth(t *testing.T) {
	cfg := Config{Namespace: "support", Database: "csbot", Username: "u", Password: "p"}

	cfg.AuthLevel = "root"
	root := cfg.auth()
	assert.Empty(t, root.Namespace)
	assert.Empty(t, root.Database)
	assert.Equal(t, "u", root.Username)

	cfg.AuthLevel = "database"
	scoped := cfg.auth()
	assert.Equal(t, "support", scoped.Namespace)
	assert.Equal(t, "csbot", scoped.Database)
	assert.Equal(t, "p", scoped.Password)
}

func TestRPCBase(t *testing.T) {
	tests := map[string]string{
		"ws://localhost:8000/rpc":  "ws://localhost:8000",
		"ws://localhost:8000/rpc/": "ws://localhost:8000",
		"ws://localhost:8000":      "ws://localhost:8000",
		"wss://db.example.com/":    "wss://db.example.com",
	}
	for in, want := range tests {
		assert.Equal(t, want, rpcBase(in), in)
	}
}
