package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/antoniostano/robotbuddy/internal/chat"
)

const wsWriteTimeout = 10 * time.Second

// handleChatStream relays one streamed reply as server-sent events, one
// "data: <event json>" record per event. The relay is closed when the client goes
// away, which releases the upstream request.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if !query.Has("user_text") {
		respondError(w, http.StatusBadRequest, "invalid_request", "query parameter user_text is required")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming_unsupported", "response writer cannot flush")
		return
	}

	relay := s.chat.Stream(r.Context(), query.Get("user_text"))
	defer relay.Close()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		ev, err := relay.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, chat.ErrAbandoned) {
				s.logger.Warn("stream relay stopped", zap.Error(err))
			}
			return
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error("encode stream event", zap.Error(err))
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return
		}
		flusher.Flush()
	}
}

type wsRequest struct {
	UserText *string `json:"user_text"`
}

type wsInbound struct {
	text string
	err  error
}

// handleChatWS runs one relay per inbound {"user_text": ...} frame and writes the
// same event objects as the SSE route. Requests on one connection are served in
// order; a disconnect abandons the relay in flight.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan wsInbound, 1)
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		defer cancel()
		conn.SetReadLimit(int64(s.cfg.WSReadLimitBytes))
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if msgType != websocket.TextMessage {
				continue
			}
			var item wsInbound
			var req wsRequest
			switch err := json.Unmarshal(data, &req); {
			case err != nil:
				item.err = err
			case req.UserText == nil:
				item.err = errors.New("user_text is required")
			default:
				item.text = *req.UserText
			}
			select {
			case inbound <- item:
			case <-ctx.Done():
				return
			}
		}
	}()

	s.serveWS(ctx, conn, inbound)

	cancel()
	_ = conn.Close()
	<-readDone
}

func (s *Server) serveWS(ctx context.Context, conn *websocket.Conn, inbound <-chan wsInbound) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-inbound:
			if item.err != nil {
				if !s.writeWS(conn, errorResponse{Error: item.err.Error(), Code: "invalid_client_message"}) {
					return
				}
				continue
			}
			if !s.relayWS(ctx, conn, item.text) {
				return
			}
		}
	}
}

func (s *Server) relayWS(ctx context.Context, conn *websocket.Conn, userText string) bool {
	relay := s.chat.Stream(ctx, userText)
	defer relay.Close()
	for {
		ev, err := relay.Next()
		if errors.Is(err, io.EOF) {
			return true
		}
		if err != nil {
			return false
		}
		if !s.writeWS(conn, ev) {
			return false
		}
	}
}

func (s *Server) writeWS(conn *websocket.Conn, v any) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(v); err != nil {
		s.logger.Debug("websocket write failed", zap.Error(err))
		return false
	}
	return true
}
