package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/csbot-go/internal/metrics"
	"github.com/raphaelgruber/csbot-go/internal/models"
	"github.com/raphaelgruber/csbot-go/internal/server"
	"github.com/raphaelgruber/csbot-go/internal/service"
	"github.com/raphaelgruber/csbot-go/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChat answers every message with an echo unless err is set.
type fakeChat struct {
	err        error
	summaryErr error
	lastUser   *string
	lastMeta   map[string]any
	lastLimit  int
	lastOffset int
}

func (f *fakeChat) CreateSession(_ context.Context, userID *string, metadata map[string]any) (*models.Session, error) {
	f.lastUser = userID
	f.lastMeta = metadata
	return &models.Session{ID: "11111111-2222-3333-4444-555555555555", UserID: userID, Metadata: map[string]any{}, CreatedAt: time.Unix(0, 0).UTC()}, nil
}

func (f *fakeChat) Handle(_ context.Context, sessionID, userMessage string) (*models.ChatReply, error) {
	if f.err != nil {
		return nil, f.err
	}
	if strings.TrimSpace(userMessage) == "" {
		return nil, service.ErrEmptyMessage
	}
	return &models.ChatReply{Reply: "echo: " + userMessage, FAQs: []models.FAQResult{}}, nil
}

func (f *fakeChat) Messages(_ context.Context, sessionID string, limit, offset int) ([]models.Message, error) {
	f.lastLimit, f.lastOffset = limit, offset
	return []models.Message{{ID: 1, SessionID: sessionID, Role: models.RoleUser, Content: "hi"}}, nil
}

func (f *fakeChat) SummarizeSession(_ context.Context, sessionID string) (*models.Summary, error) {
	if f.summaryErr != nil {
		return nil, f.summaryErr
	}
	next := "follow up"
	return &models.Summary{Summary: "user said hi", NextAction: &next}, nil
}

func newTestServer(t *testing.T, chat *fakeChat, health func(context.Context) error) *httptest.Server {
	t.Helper()
	srv := server.New(server.Options{
		Chat:    chat,
		Metrics: metrics.NewCollector(),
		Health:  health,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, url, rdr)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, &fakeChat{}, nil)
	resp, body := do(t, http.MethodGet, ts.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	ts = newTestServer(t, &fakeChat{}, func(context.Context) error { return errors.New("OPENAI_API_KEY not set") })
	resp, body = do(t, http.MethodGet, ts.URL+"/health", "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "OPENAI_API_KEY not set", body["message"])
}

func TestCreateSession(t *testing.T) {
	chat := &fakeChat{}
	ts := newTestServer(t, chat, nil)

	resp, body := do(t, http.MethodPost, ts.URL+"/sessions", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "11111111-2222-3333-4444-555555555555", body["id"])
	assert.Nil(t, chat.lastUser)

	resp, _ = do(t, http.MethodPost, ts.URL+"/sessions", `{"user_id":"u1","metadata":{"channel":"web"}}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, chat.lastUser)
	assert.Equal(t, "u1", *chat.lastUser)
	assert.Equal(t, "web", chat.lastMeta["channel"])

	resp, body = do(t, http.MethodPost, ts.URL+"/sessions", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "invalid JSON body")
}

func TestPostMessage(t *testing.T) {
	ts := newTestServer(t, &fakeChat{}, nil)

	resp, body := do(t, http.MethodPost, ts.URL+"/message", `{"session_id":"s1","user_message":"hello"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "echo: hello", body["reply"])
	assert.Equal(t, false, body["escalation"])
	assert.Equal(t, []any{}, body["faqs"])
	assert.Contains(t, body, "summary")

	resp, body = do(t, http.MethodPost, ts.URL+"/message", `{"session_id":"s1","user_message":"  "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "empty")

	resp, _ = do(t, http.MethodPost, ts.URL+"/message", ``)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPostMessageInternalErrorIsHidden(t *testing.T) {
	ts := newTestServer(t, &fakeChat{err: errors.New("disk on fire")}, nil)
	resp, body := do(t, http.MethodPost, ts.URL+"/message", `{"session_id":"s1","user_message":"hello"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "internal server error", body["error"])
}

func TestListMessages(t *testing.T) {
	chat := &fakeChat{}
	ts := newTestServer(t, chat, nil)

	list, err := http.Get(ts.URL + "/sessions/s1/messages?limit=5&offset=2")
	require.NoError(t, err)
	defer list.Body.Close()
	assert.Equal(t, http.StatusOK, list.StatusCode)

	var msgs []models.Message
	require.NoError(t, json.NewDecoder(list.Body).Decode(&msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "s1", msgs[0].SessionID)
	assert.Equal(t, 5, chat.lastLimit)
	assert.Equal(t, 2, chat.lastOffset)

	resp, _ := do(t, http.MethodGet, ts.URL+"/sessions/s1/messages?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSummarize(t *testing.T) {
	chat := &fakeChat{}
	ts := newTestServer(t, chat, nil)

	resp, body := do(t, http.MethodPost, ts.URL+"/sessions/s1/summarize", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "user said hi", body["summary"])
	assert.Equal(t, "follow up", body["next_action"])

	chat.summaryErr = service.ErrNoMessages
	resp, body = do(t, http.MethodPost, ts.URL+"/sessions/s1/summarize", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "no messages found for this session", body["error"])

	chat.summaryErr = fmt.Errorf("%w: upstream 503", service.ErrSummaryFailed)
	resp, _ = do(t, http.MethodPost, ts.URL+"/sessions/s1/summarize", "")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestStats(t *testing.T) {
	ts := newTestServer(t, &fakeChat{}, nil)
	resp, body := do(t, http.MethodGet, ts.URL+"/stats", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "uptime_seconds")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{service.ErrInvalidSession, http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", store.ErrInvalidArgument), http.StatusBadRequest},
		{fmt.Errorf("session x: %w", store.ErrNotFound), http.StatusNotFound},
		{service.ErrNoMessages, http.StatusNotFound},
		{fmt.Errorf("%w: boom", service.ErrSummaryFailed), http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, server.StatusFor(tt.err))
		})
	}
}

func TestWebSocketConversation(t *testing.T) {
	ts := newTestServer(t, &fakeChat{}, nil)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(server.MessageRequest{SessionID: "s1", UserMessage: "one"}))
	var reply models.ChatReply
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "echo: one", reply.Reply)

	require.NoError(t, conn.WriteJSON(server.MessageRequest{SessionID: "s1", UserMessage: ""}))
	var errResp server.ErrorResponse
	require.NoError(t, conn.ReadJSON(&errResp))
	assert.Contains(t, errResp.Error, "empty")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{broken")))
	errResp = server.ErrorResponse{}
	require.NoError(t, conn.ReadJSON(&errResp))
	assert.Equal(t, "invalid JSON frame", errResp.Error)

	require.NoError(t, conn.WriteJSON(server.MessageRequest{SessionID: "s1", UserMessage: "two"}))
	reply = models.ChatReply{}
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "echo: two", reply.Reply, "connection survives bad frames")
}
