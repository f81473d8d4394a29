package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// wsPongWait is how long a connection may stay silent before it is dropped.
	wsPongWait = 60 * time.Second
	// wsPingPeriod must be shorter than wsPongWait.
	wsPingPeriod = 30 * time.Second
	wsWriteWait  = 10 * time.Second
	wsMaxFrame   = 64 * 1024
)

// handleWebSocket runs a chat conversation over one connection. Every
// text frame is a MessageRequest and is answered, in order, with either
// a ChatReply or an ErrorResponse.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadLimit(wsMaxFrame)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	go s.pingLoop(ctx, conn)

	s.logger.Info("websocket connected", "remote", r.RemoteAddr)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("websocket read failed", "error", err)
			}
			break
		}

		resp := s.answerFrame(ctx, data)

		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(resp); err != nil {
			s.logger.Warn("websocket write failed", "error", err)
			break
		}
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
	}
	s.logger.Info("websocket disconnected", "remote", r.RemoteAddr)
}

// answerFrame handles one MessageRequest frame.
func (s *Server) answerFrame(ctx context.Context, data []byte) any {
	var req MessageRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return ErrorResponse{Error: "invalid JSON frame"}
	}

	frameCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	reply, err := s.chat.Handle(frameCtx, req.SessionID, req.UserMessage)
	if err != nil {
		msg := err.Error()
		if StatusFor(err) == http.StatusInternalServerError {
			s.logger.Error("websocket message failed", "session_id", req.SessionID, "error", err)
			msg = "internal server error"
		}
		return ErrorResponse{Error: msg}
	}
	return reply
}

// pingLoop keeps the connection alive until ctx is done. WriteControl may
// run concurrently with WriteJSON.
func (s *Server) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
