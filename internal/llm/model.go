// Package llm provides chat completion services using langchaingo.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/raphaelgruber/csbot-go/internal/config"
	"github.com/raphaelgruber/csbot-go/internal/metrics"
	"github.com/raphaelgruber/csbot-go/internal/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// ChatMessage is one entry of a chat prompt.
type ChatMessage struct {
	Role    models.Role
	Content string
}

// CompletionOptions tune a single completion call.
type CompletionOptions struct {
	MaxTokens int
	// Temperature is left to the provider default when nil.
	Temperature *float64
}

// ChatModel produces a completion for an ordered list of chat messages.
// Implementations return the text of the first choice, or an error.
type ChatModel interface {
	Complete(ctx context.Context, messages []ChatMessage, opts CompletionOptions) (string, error)
	Model() string
}

// Model wraps a langchaingo LLM for chat completion.
type Model struct {
	llm       llms.Model
	modelName string
	collector *metrics.Collector
	logger    *slog.Logger
}

// Compile-time check that Model implements ChatModel.
var _ ChatModel = (*Model)(nil)

// NewModel creates a chat model based on configuration.
func NewModel(ctx context.Context, cfg config.Config, collector *metrics.Collector) (*Model, error) {
	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI, "":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	case config.ProviderBedrock:
		awsCfg, awsErr := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if awsErr != nil {
			return nil, fmt.Errorf("load aws config: %w", awsErr)
		}
		model, err = bedrock.New(
			bedrock.WithClient(bedrockruntime.NewFromConfig(awsCfg)),
			bedrock.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create bedrock model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return NewModelFrom(model, cfg.LLMModel, collector, nil), nil
}

// NewModelFrom wraps an existing langchaingo model.
func NewModelFrom(model llms.Model, modelName string, collector *metrics.Collector, logger *slog.Logger) *Model {
	if logger == nil {
		logger = slog.Default()
	}
	return &Model{llm: model, modelName: modelName, collector: collector, logger: logger}
}

// Complete sends messages to the model and returns the first choice's text.
// Errors that will not succeed on retry are wrapped with ErrFatalAPI.
func (m *Model) Complete(ctx context.Context, messages []ChatMessage, opts CompletionOptions) (string, error) {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		content = append(content, llms.TextParts(messageType(msg.Role), msg.Content))
	}

	var callOpts []llms.CallOption
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}
	if opts.Temperature != nil {
		callOpts = append(callOpts, llms.WithTemperature(*opts.Temperature))
	}

	start := time.Now()
	response, err := m.llm.GenerateContent(ctx, content, callOpts...)
	duration := time.Since(start)

	if err != nil {
		m.logger.Warn("completion failed", "model", m.modelName, "messages", len(messages), "duration_ms", duration.Milliseconds(), "error", err)
		return "", fmt.Errorf("complete: %w", wrapFatalError(err))
	}
	if response == nil || len(response.Choices) == 0 || response.Choices[0] == nil {
		return "", ErrNoChoices
	}

	choice := response.Choices[0]
	in, out := tokenUsage(choice.GenerationInfo)
	m.collector.RecordLLMUsage(metrics.OpLLMComplete, duration, in, out)
	m.logger.Debug("completion done", "model", m.modelName, "duration_ms", duration.Milliseconds(), "input_tokens", in, "output_tokens", out)

	return choice.Content, nil
}

// Model returns the LLM model name.
func (m *Model) Model() string {
	return m.modelName
}

func messageType(role models.Role) llms.ChatMessageType {
	switch role {
	case models.RoleSystem:
		return llms.ChatMessageTypeSystem
	case models.RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

// tokenUsage reads prompt/completion token counts from provider-specific
// generation info keys. Missing counts are reported as zero.
func tokenUsage(info map[string]any) (input, output int64) {
	for key, val := range info {
		n, ok := toInt64(val)
		if !ok {
			continue
		}
		switch strings.ToLower(key) {
		case "prompttokens", "inputtokens", "input_tokens", "prompt_tokens":
			input = n
		case "completiontokens", "outputtokens", "output_tokens", "completion_tokens":
			output = n
		}
	}
	return input, output
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	}
	return 0, false
}
