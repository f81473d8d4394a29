// Package config loads runtime configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Provider names for chat and embedding backends.
const (
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
	ProviderVoyage    = "voyage"
)

// Store backends.
const (
	BackendMemory  = "memory"
	BackendSQLite  = "sqlite"
	BackendSurreal = "surreal"
)

// ErrInvalidConfig is returned by Validate for out-of-range settings.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds all configuration values.
type Config struct {
	// Chat model
	LLMProvider string
	LLMModel    string

	// Embeddings
	EmbedProvider  string
	EmbedModel     string
	EmbedDimension int
	EmbedBatchSize int

	// Provider credentials and endpoints
	OpenAIAPIKey    string
	AnthropicAPIKey string
	VoyageAPIKey    string
	OllamaHost      string
	AWSRegion       string

	// Conversation tuning
	ContextWindow int
	FAQTopK       int
	FAQThreshold  float64

	// Storage
	StoreBackend string
	DBPath       string

	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// SurrealDB retry tuning; zero values use the store defaults.
	SurrealDBReconnectRetries int
	SurrealDBReconnectDelay   time.Duration
	SurrealDBConflictRetries  int

	// HTTP server
	ServerPort int

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first when present; real environment variables
// take precedence over it.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		LLMProvider: getEnv("LLM_PROVIDER", ProviderOpenAI),
		LLMModel:    getEnv("LLM_MODEL", getEnv("OPENAI_MODEL", "gpt-4o-mini")),

		EmbedProvider:  getEnv("EMBED_PROVIDER", ProviderOpenAI),
		EmbedModel:     getEnv("EMBED_MODEL", "text-embedding-3-small"),
		EmbedDimension: getEnvInt("EMBED_DIMENSION", 0),
		EmbedBatchSize: getEnvInt("FAQ_EMBED_BATCH", 32),

		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		VoyageAPIKey:    getEnv("VOYAGE_API_KEY", ""),
		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
		AWSRegion:       getEnv("AWS_REGION", "us-east-1"),

		ContextWindow: getEnvInt("CONTEXT_WINDOW", 8),
		FAQTopK:       getEnvInt("TOP_K_FAQ", 3),
		FAQThreshold:  getEnvFloat("FAQ_SIM_THRESHOLD", 0.7),

		StoreBackend: getEnv("STORE_BACKEND", BackendSQLite),
		DBPath:       getEnv("DB_PATH", "./csbot.db"),

		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "support"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "csbot"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		SurrealDBReconnectRetries: getEnvInt("SURREALDB_RECONNECT_RETRIES", 10),
		SurrealDBReconnectDelay:   getEnvDuration("SURREALDB_RECONNECT_DELAY", time.Second),
		SurrealDBConflictRetries:  getEnvInt("SURREALDB_CONFLICT_RETRIES", 5),

		ServerPort: getEnvInt("CSBOT_SERVER_PORT", 8000),

		LogFile:  getEnv("CSBOT_LOG_FILE", "./logs/csbot.log"),
		LogLevel: parseLogLevel(getEnv("CSBOT_LOG_LEVEL", "INFO")),
	}
}

// Validate checks that tuning values are within their allowed ranges.
func (c Config) Validate() error {
	if c.ContextWindow < 1 {
		return fmt.Errorf("%w: CONTEXT_WINDOW must be >= 1, got %d", ErrInvalidConfig, c.ContextWindow)
	}
	if c.FAQTopK < 1 {
		return fmt.Errorf("%w: TOP_K_FAQ must be >= 1, got %d", ErrInvalidConfig, c.FAQTopK)
	}
	if c.FAQThreshold < 0 || c.FAQThreshold > 1 {
		return fmt.Errorf("%w: FAQ_SIM_THRESHOLD must be in [0,1], got %g", ErrInvalidConfig, c.FAQThreshold)
	}
	if c.EmbedDimension < 0 {
		return fmt.Errorf("%w: EMBED_DIMENSION must be >= 0, got %d", ErrInvalidConfig, c.EmbedDimension)
	}
	switch c.StoreBackend {
	case BackendMemory, BackendSQLite, BackendSurreal:
	default:
		return fmt.Errorf("%w: unknown STORE_BACKEND %q", ErrInvalidConfig, c.StoreBackend)
	}
	return nil
}

// LLMAPIKey returns the credential the configured chat provider needs, or
// an empty string when the provider does not use one.
func (c Config) LLMAPIKey() string {
	switch c.LLMProvider {
	case ProviderOpenAI:
		return c.OpenAIAPIKey
	case ProviderAnthropic:
		return c.AnthropicAPIKey
	default:
		return ""
	}
}

// RequiresLLMAPIKey reports whether the chat provider is keyed.
func (c Config) RequiresLLMAPIKey() bool {
	return c.LLMProvider == ProviderOpenAI || c.LLMProvider == ProviderAnthropic
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		slog.Warn("ignoring malformed integer setting", "key", key, "value", val)
		return defaultVal
	}
	return n
}

func getEnvFloat(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
	if err != nil {
		slog.Warn("ignoring malformed float setting", "key", key, "value", val)
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(strings.TrimSpace(val))
	if err != nil {
		slog.Warn("ignoring malformed duration setting", "key", key, "value", val)
		return defaultVal
	}
	return d
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// CheckLLMCredentials fails when the chat provider needs an API key that
// is not configured.
func (c Config) CheckLLMCredentials() error {
	if c.RequiresLLMAPIKey() && c.LLMAPIKey() == "" {
		return fmt.Errorf("no API key configured for LLM provider %s", c.LLMProvider)
	}
	return nil
}
