package rpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"nhooyr.io/websocket"
)

const (
	wsWriteTimeout = 10 * time.Second
)

// handleWS speaks the same JSON-RPC protocol over a WebSocket: one request
// envelope per text frame, one response frame per request, written in the
// order the frames arrived.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "session closed")
	conn.SetReadLimit(maxRequestBytes)

	source := s.clientSource(r)
	ctx := r.Context()
	for {
		_, frame, err := conn.Read(ctx)
		if err != nil {
			return
		}
		resp := s.exec(ctx, frame, source)
		payload, err := json.Marshal(resp)
		if err != nil {
			s.logger.Error("encode ws response", slog.String("error", err.Error()))
			_ = conn.Close(websocket.StatusInternalError, "encode failure")
			return
		}
		writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
		err = conn.Write(writeCtx, websocket.MessageText, payload)
		cancel()
		if err != nil {
			return
		}
	}
}
