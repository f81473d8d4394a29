// Package service provides business logic for the support chat backend.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/raphaelgruber/csbot-go/internal/escalation"
	"github.com/raphaelgruber/csbot-go/internal/llm"
	"github.com/raphaelgruber/csbot-go/internal/metrics"
	"github.com/raphaelgruber/csbot-go/internal/models"
	"github.com/raphaelgruber/csbot-go/internal/store"
)

const (
	systemInstruction = "You are an AI support assistant. Be brief, polite, and helpful."
	chatMaxTokens     = 250
	degradedFormat    = "⚠️ I’m sorry — something went wrong while generating a response. (%s)"
	maxSessionIDLen   = 128
)

// Validation errors. Both wrap ErrValidation.
var (
	ErrValidation     = errors.New("validation failed")
	ErrEmptyMessage   = fmt.Errorf("%w: user message cannot be empty", ErrValidation)
	ErrInvalidSession = fmt.Errorf("%w: malformed session id", ErrValidation)

	// ErrNoMessages is returned when summarizing a session without history.
	ErrNoMessages = errors.New("no messages found for this session")

	// ErrSummaryFailed wraps failures of an explicit summary request.
	ErrSummaryFailed = errors.New("summary failed")
)

// Retriever finds FAQs relevant to a query.
type Retriever interface {
	Search(ctx context.Context, query string, k int, threshold float64) ([]models.FAQResult, error)
}

// Summarizer produces a conversation summary.
type Summarizer interface {
	Summarize(ctx context.Context, sessionID, transcript string) (*models.Summary, error)
}

// ChatConfig tunes conversation handling.
type ChatConfig struct {
	// ContextWindow sizes history: 2x for replies, 10x for summaries.
	ContextWindow int
	TopK          int
	Threshold     float64
}

// ChatService orchestrates one support exchange per user message.
type ChatService struct {
	sessions   store.SessionStore
	messages   store.MessageStore
	retriever  Retriever
	model      llm.ChatModel
	summarizer Summarizer
	cfg        ChatConfig
	collector  *metrics.Collector
	logger     *slog.Logger
}

// NewChatService creates a chat service. collector and logger may be nil.
func NewChatService(
	sessions store.SessionStore,
	messages store.MessageStore,
	retriever Retriever,
	model llm.ChatModel,
	summarizer Summarizer,
	cfg ChatConfig,
	collector *metrics.Collector,
	logger *slog.Logger,
) *ChatService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{
		sessions:   sessions,
		messages:   messages,
		retriever:  retriever,
		model:      model,
		summarizer: summarizer,
		cfg:        cfg,
		collector:  collector,
		logger:     logger,
	}
}

// CreateSession starts a new conversation.
func (s *ChatService) CreateSession(ctx context.Context, userID *string, metadata map[string]any) (*models.Session, error) {
	if userID != nil && strings.TrimSpace(*userID) == "" {
		userID = nil
	}
	sess, err := s.sessions.CreateSession(ctx, userID, metadata)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.logger.Info("session created", "session_id", sess.ID)
	return sess, nil
}

// Session looks up a session by ID.
func (s *ChatService) Session(ctx context.Context, sessionID string) (*models.Session, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	return s.sessions.GetSession(ctx, sessionID)
}

// Handle processes one user message and returns the assistant's reply.
// Only validation and persistence failures are returned as errors; model
// failures produce a degraded reply and summary failures a nil summary.
func (s *ChatService) Handle(ctx context.Context, sessionID, userMessage string) (*models.ChatReply, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	msg := strings.TrimSpace(userMessage)
	if msg == "" {
		return nil, ErrEmptyMessage
	}

	if _, err := s.appendMessage(ctx, sessionID, models.RoleUser, msg, false); err != nil {
		return nil, err
	}

	if kw, ok := escalation.Match(msg); ok {
		return s.escalate(ctx, sessionID, msg, kw)
	}

	history := s.recentMessages(ctx, sessionID, s.cfg.ContextWindow*2)
	conversation := formatConversation(history)

	faqs, err := s.retriever.Search(ctx, msg, s.cfg.TopK, s.cfg.Threshold)
	if err != nil {
		s.logger.Warn("faq retrieval failed, continuing without faqs", "session_id", sessionID, "error", err)
		faqs = nil
	}
	if faqs == nil {
		faqs = []models.FAQResult{}
	}

	prompt := buildPrompt(conversation, faqs, msg)
	reply, err := s.model.Complete(ctx, prompt, llm.CompletionOptions{MaxTokens: chatMaxTokens})
	reply = strings.TrimSpace(reply)
	if err == nil && reply == "" {
		err = errors.New("empty completion")
	}
	if err != nil {
		return s.degrade(ctx, sessionID, faqs, err)
	}

	if _, err := s.appendMessage(ctx, sessionID, models.RoleAssistant, reply, false); err != nil {
		return nil, err
	}

	result := &models.ChatReply{Reply: reply, Escalated: false, FAQs: faqs}

	transcript := conversation + "\nASSISTANT: " + reply
	if sum, err := s.summarizer.Summarize(ctx, sessionID, transcript); err != nil {
		s.logger.Warn("best-effort summary failed", "session_id", sessionID, "error", err)
	} else if sum != nil {
		result.Summary = &sum.Summary
	}

	return result, nil
}

func (s *ChatService) escalate(ctx context.Context, sessionID, msg, keyword string) (*models.ChatReply, error) {
	if _, err := s.appendMessage(ctx, sessionID, models.RoleAssistant, escalation.Reply, true); err != nil {
		return nil, err
	}
	s.collector.Increment(metrics.CounterEscalation)
	s.logger.Info("message escalated", "session_id", sessionID, "keyword", keyword)

	summary := escalation.Summary(msg)
	return &models.ChatReply{
		Reply:     escalation.Reply,
		Escalated: true,
		FAQs:      []models.FAQResult{},
		Summary:   &summary,
	}, nil
}

func (s *ChatService) degrade(ctx context.Context, sessionID string, faqs []models.FAQResult, cause error) (*models.ChatReply, error) {
	s.logger.Error("chat completion failed", "session_id", sessionID, "error", cause)
	s.collector.Increment(metrics.CounterDegraded)

	reply := fmt.Sprintf(degradedFormat, cause.Error())
	if _, err := s.appendMessage(ctx, sessionID, models.RoleAssistant, reply, false); err != nil {
		return nil, err
	}
	return &models.ChatReply{Reply: reply, Escalated: false, FAQs: faqs}, nil
}

// SummarizeSession summarizes up to ContextWindow*10 recent messages.
func (s *ChatService) SummarizeSession(ctx context.Context, sessionID string) (*models.Summary, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}

	start := time.Now()
	recent, err := s.messages.RecentMessages(ctx, sessionID, s.cfg.ContextWindow*10)
	s.collector.RecordTiming(metrics.OpStoreRecent, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("load session messages: %w", err)
	}
	if len(recent) == 0 {
		return nil, ErrNoMessages
	}

	sum, err := s.summarizer.Summarize(ctx, sessionID, formatConversation(recent))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSummaryFailed, err)
	}
	return sum, nil
}

// Messages returns a chronological page of a session's history.
func (s *ChatService) Messages(ctx context.Context, sessionID string, limit, offset int) ([]models.Message, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.messages.ListMessages(ctx, sessionID, limit, offset)
}

func (s *ChatService) appendMessage(ctx context.Context, sessionID string, role models.Role, content string, escalated bool) (*models.Message, error) {
	start := time.Now()
	msg, err := s.messages.AppendMessage(ctx, sessionID, role, content, escalated)
	s.collector.RecordTiming(metrics.OpStoreAppend, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("save %s message: %w", role, err)
	}
	return msg, nil
}

func (s *ChatService) recentMessages(ctx context.Context, sessionID string, limit int) []models.Message {
	start := time.Now()
	msgs, err := s.messages.RecentMessages(ctx, sessionID, limit)
	s.collector.RecordTiming(metrics.OpStoreRecent, time.Since(start))
	if err != nil {
		s.logger.Warn("loading history failed, continuing without it", "session_id", sessionID, "error", err)
		return nil
	}
	return msgs
}

// ValidateSessionID rejects empty, oversized, or whitespace/control-bearing IDs.
func ValidateSessionID(id string) error {
	if id == "" || len(id) > maxSessionIDLen {
		return ErrInvalidSession
	}
	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return ErrInvalidSession
		}
	}
	return nil
}

func formatConversation(msgs []models.Message) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, strings.ToUpper(string(m.Role))+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}

func formatFAQs(faqs []models.FAQResult) string {
	blocks := make([]string, 0, len(faqs))
	for _, f := range faqs {
		blocks = append(blocks, fmt.Sprintf("Q: %s\nA: %s", f.Entry.Question, f.Entry.Answer))
	}
	return strings.Join(blocks, "\n\n")
}

func buildPrompt(conversation string, faqs []models.FAQResult, userMessage string) []llm.ChatMessage {
	prompt := []llm.ChatMessage{{Role: models.RoleSystem, Content: systemInstruction}}
	if conversation != "" {
		prompt = append(prompt, llm.ChatMessage{Role: models.RoleSystem, Content: "Conversation so far:\n" + conversation})
	}
	if len(faqs) > 0 {
		prompt = append(prompt, llm.ChatMessage{Role: models.RoleSystem, Content: "Relevant FAQs:\n" + formatFAQs(faqs)})
	}
	return append(prompt, llm.ChatMessage{Role: models.RoleUser, Content: userMessage})
}
