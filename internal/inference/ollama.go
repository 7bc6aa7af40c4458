package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"

	"github.com/antoniostano/robotbuddy/internal/observability"
	"github.com/antoniostano/robotbuddy/internal/policy"
)

const (
	defaultBaseURL = "http://localhost:11434"
	defaultTimeout = 120 * time.Second
	probeTimeout   = 5 * time.Second
	// maxErrorDetail bounds upstream text copied into errors.
	maxErrorDetail = 512
)

// OllamaGateway talks to an Ollama server's /api/chat endpoint.
type OllamaGateway struct {
	chatURL    string
	model      string
	streamIdle time.Duration
	client     *http.Client
	streamer   *http.Client
	api        *api.Client
	logger     *zap.Logger
	metrics    *observability.Metrics
}

func NewOllamaGateway(cfg Config) (*OllamaGateway, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid ollama base URL %q", cfg.BaseURL)
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("ollama model is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	idle := cfg.StreamIdleTimeout
	if idle <= 0 {
		idle = timeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout

	return &OllamaGateway{
		chatURL:    base + "/api/chat",
		model:      cfg.Model,
		streamIdle: idle,
		client:     &http.Client{Timeout: timeout, Transport: transport},
		// Streams are bounded per line by the idle timer instead of a total deadline.
		streamer: &http.Client{Transport: transport},
		api:      api.NewClient(parsed, &http.Client{Timeout: probeTimeout, Transport: transport}),
		logger:   logger.Named("ollama"),
		metrics:  cfg.Metrics,
	}, nil
}

func (g *OllamaGateway) Model() string { return g.model }

func (g *OllamaGateway) Chat(ctx context.Context, messages []Message) (string, error) {
	res, err := g.post(ctx, g.client, messages, false)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", transportError(ctx, err)
	}
	var reply api.ChatResponse
	if err := json.Unmarshal(body, &reply); err != nil {
		return "", &UpstreamError{Kind: KindDecode, Err: fmt.Errorf("decode chat response: %w", err)}
	}
	return reply.Message.Content, nil
}

func (g *OllamaGateway) ChatStream(ctx context.Context, messages []Message) (Stream, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	res, err := g.post(streamCtx, g.streamer, messages, true)
	if err != nil {
		cancel()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return newNDJSONStream(ctx, res.Body, cancel, g.streamIdle, g.logger, g.metrics), nil
}

// Probe checks that the server answers and whether the configured model is pulled.
func (g *OllamaGateway) Probe(ctx context.Context) (Probe, error) {
	out := Probe{Model: g.model}
	if err := g.api.Heartbeat(ctx); err != nil {
		return out, transportError(ctx, err)
	}
	list, err := g.api.List(ctx)
	if err != nil {
		return out, transportError(ctx, err)
	}
	for _, m := range list.Models {
		if m.Name == g.model || m.Model == g.model {
			out.ModelAvailable = true
			break
		}
	}
	return out, nil
}

func (g *OllamaGateway) post(ctx context.Context, client *http.Client, messages []Message, stream bool) (*http.Response, error) {
	payload, err := json.Marshal(api.ChatRequest{
		Model:    g.model,
		Messages: toAPIMessages(messages),
		Stream:   &stream,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.chatURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if stream {
		httpReq.Header.Set("Accept", "application/x-ndjson")
	}

	res, err := client.Do(httpReq)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		res.Body.Close()
		return nil, &UpstreamError{
			Kind:       KindStatus,
			StatusCode: res.StatusCode,
			Err:        fmt.Errorf("ollama http status %d: %s", res.StatusCode, policy.Scrub(string(body), maxErrorDetail)),
		}
	}
	return res, nil
}

func toAPIMessages(in []Message) []api.Message {
	out := make([]api.Message, 0, len(in))
	for _, m := range in {
		out = append(out, api.Message{Role: m.Role, Content: m.Content})
	}
	return out
}
