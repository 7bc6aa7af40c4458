package inference

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/antoniostano/robotbuddy/internal/observability"
)

// Message is one entry of the conversation sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Chunk is one decoded line of a streamed reply.
type Chunk struct {
	Content string
	Done    bool
}

// Stream is a pull-based view over a streamed reply. Next returns io.EOF once the
// upstream body ends. Close releases the upstream connection and may be called at
// any time, including concurrently with a blocked Next.
type Stream interface {
	Next() (Chunk, error)
	Close() error
}

// Probe reports what the backend said about itself.
type Probe struct {
	Model          string `json:"model"`
	ModelAvailable bool   `json:"model_available"`
}

// Gateway performs the exchange with the inference backend. Every failure is
// reported once; nothing is retried.
type Gateway interface {
	Chat(ctx context.Context, messages []Message) (string, error)
	ChatStream(ctx context.Context, messages []Message) (Stream, error)
	Probe(ctx context.Context) (Probe, error)
}

// Config controls gateway construction.
type Config struct {
	Mode              string
	BaseURL           string
	Model             string
	Timeout           time.Duration
	StreamIdleTimeout time.Duration
	Logger            *zap.Logger
	Metrics           *observability.Metrics
}

func NewGateway(cfg Config) (Gateway, error) {
	m := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if m == "" {
		m = "ollama"
	}

	switch m {
	case "ollama":
		return NewOllamaGateway(cfg)
	case "mock":
		return NewMockGateway(cfg.Model), nil
	default:
		return nil, fmt.Errorf("unsupported gateway mode %q", cfg.Mode)
	}
}
