// Package client provides an HTTP and WebSocket client for the csbot server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/csbot-go/internal/metrics"
	"github.com/raphaelgruber/csbot-go/internal/models"
)

// Client talks to a csbot server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// APIError is a non-2xx reply from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.StatusCode, e.Message)
}

// New creates a client.
// If baseURL is empty, uses CSBOT_SERVER_URL env var or defaults to localhost:8000.
// Timeout can be configured via CSBOT_CLIENT_TIMEOUT env var (default 2m for slow completions).
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("CSBOT_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}

	timeout := 2 * time.Minute
	if t := os.Getenv("CSBOT_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// do sends a JSON request and decodes a JSON response into result.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var rdr io.Reader
	if body != nil {
		reqBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rdr = bytes.NewReader(reqBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}

	if result != nil && len(data) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// errorMessage extracts "error" (or health "message") from an error body.
func errorMessage(data []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return strings.TrimSpace(string(data))
}

type createSessionRequest struct {
	UserID   *string        `json:"user_id,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type messageRequest struct {
	SessionID   string `json:"session_id"`
	UserMessage string `json:"user_message"`
}

// Health returns nil when the server reports status ok.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// CreateSession starts a conversation.
func (c *Client) CreateSession(ctx context.Context, userID *string, metadata map[string]any) (*models.Session, error) {
	var sess models.Session
	if err := c.do(ctx, http.MethodPost, "/sessions", createSessionRequest{UserID: userID, Metadata: metadata}, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// PostMessage sends one user message and returns the assistant reply.
func (c *Client) PostMessage(ctx context.Context, sessionID, userMessage string) (*models.ChatReply, error) {
	var reply models.ChatReply
	if err := c.do(ctx, http.MethodPost, "/message", messageRequest{SessionID: sessionID, UserMessage: userMessage}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// Messages returns a page of a session's history.
func (c *Client) Messages(ctx context.Context, sessionID string, limit, offset int) ([]models.Message, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	path := "/sessions/" + url.PathEscape(sessionID) + "/messages"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var msgs []models.Message
	if err := c.do(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Summarize asks the server to summarize a session.
func (c *Client) Summarize(ctx context.Context, sessionID string) (*models.Summary, error) {
	var sum models.Summary
	if err := c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(sessionID)+"/summarize", nil, &sum); err != nil {
		return nil, err
	}
	return &sum, nil
}

// Stats returns the server's metrics snapshot.
func (c *Client) Stats(ctx context.Context) (*metrics.Snapshot, error) {
	var snap metrics.Snapshot
	if err := c.do(ctx, http.MethodGet, "/stats", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// =============================================================================
// WEBSOCKET CHAT
// =============================================================================

// Conversation is an open /ws connection. Send calls are serialized.
type Conversation struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Chat opens a WebSocket conversation with the server.
func (c *Client) Chat(ctx context.Context) (*Conversation, error) {
	// Convert HTTP endpoint to WebSocket endpoint
	wsEndpoint := c.baseURL
	wsEndpoint = strings.Replace(wsEndpoint, "http://", "ws://", 1)
	wsEndpoint = strings.Replace(wsEndpoint, "https://", "wss://", 1)

	u, err := url.Parse(wsEndpoint + "/ws")
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket connect: %w", err)
	}
	return &Conversation{conn: conn}, nil
}

// Send posts one message and waits for its reply. Canceling ctx closes
// the connection.
func (cv *Conversation) Send(ctx context.Context, sessionID, userMessage string) (*models.ChatReply, error) {
	cv.mu.Lock()
	defer cv.mu.Unlock()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			cv.conn.Close()
		case <-done:
		}
	}()

	if err := cv.conn.WriteJSON(messageRequest{SessionID: sessionID, UserMessage: userMessage}); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("send message: %w", err)
	}

	_, data, err := cv.conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("read reply: %w", err)
	}

	var frame struct {
		models.ChatReply
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("unmarshal reply: %w", err)
	}
	if frame.Error != "" {
		return nil, errors.New(frame.Error)
	}
	return &frame.ChatReply, nil
}

// Close sends a close frame and closes the connection.
func (cv *Conversation) Close() error {
	_ = cv.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return cv.conn.Close()
}
