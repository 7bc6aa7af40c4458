package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/antoniostano/robotbuddy/internal/chat"
	"github.com/antoniostano/robotbuddy/internal/config"
	"github.com/antoniostano/robotbuddy/internal/inference"
	"github.com/antoniostano/robotbuddy/internal/observability"
)

const conversationHeader = "X-Conversation-ID"

type ChatService interface {
	Chat(ctx context.Context, req chat.Request) (chat.Result, error)
	Stream(ctx context.Context, userText string) *chat.Relay
}

type Prober interface {
	Probe(ctx context.Context) (inference.Probe, error)
}

type Server struct {
	cfg      config.Config
	chat     ChatService
	prober   Prober
	metrics  *observability.Metrics
	logger   *zap.Logger
	upgrader websocket.Upgrader
	static   http.Handler
}

func New(cfg config.Config, svc ChatService, prober Prober, metrics *observability.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:     cfg,
		chat:    svc,
		prober:  prober,
		metrics: metrics,
		logger:  logger,
		static:  newStaticHandler(cfg.FrontendDir),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", s.handleHealth)
	r.Get("/healthz", s.handleLiveness)
	r.Get("/readyz", s.handleReady)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Post("/chat", s.handleChat)
	r.Get("/chat/stream", s.handleChatStream)
	r.Get("/v1/chat/ws", s.handleChatWS)

	if s.static != nil {
		r.Handle("/*", s.static)
	}
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"ok":    true,
		"model": s.cfg.OllamaModel,
	})
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.prober == nil {
		respondJSON(w, http.StatusOK, map[string]any{"status": "ready", "model": s.cfg.OllamaModel})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	probe, err := s.prober.Probe(ctx)
	if err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unavailable",
			"model":  s.cfg.OllamaModel,
			"error":  err.Error(),
		})
		return
	}
	if !probe.ModelAvailable {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "model_missing",
			"model":  probe.Model,
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready", "model": probe.Model})
}

type chatRequest struct {
	UserText       *string     `json:"user_text"`
	History        []chat.Turn `json:"history"`
	ConversationID string      `json:"conversation_id"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var body chatRequest
	if err := decodeJSON(r, &body); err != nil {
		if errors.Is(err, errEmptyBody) {
			respondError(w, http.StatusBadRequest, "invalid_request", "request body is required")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if body.UserText == nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "user_text is required")
		return
	}
	conversationID := strings.TrimSpace(body.ConversationID)
	if conversationID == "" {
		conversationID = strings.TrimSpace(r.Header.Get(conversationHeader))
	}

	result, err := s.chat.Chat(r.Context(), chat.Request{
		UserText:       *body.UserText,
		History:        body.History,
		ConversationID: conversationID,
	})
	if result.ConversationID != "" {
		w.Header().Set(conversationHeader, result.ConversationID)
	}
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, result)
	case errors.Is(err, inference.ErrUpstreamUnavailable):
		respondJSON(w, http.StatusServiceUnavailable, result)
	case errors.Is(err, context.Canceled):
		// client went away
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
