package inference

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// MockGateway provides deterministic local replies when no model server is running.
type MockGateway struct {
	model string
}

func NewMockGateway(model string) *MockGateway {
	if strings.TrimSpace(model) == "" {
		model = "mock"
	}
	return &MockGateway{model: model}
}

func (g *MockGateway) Chat(ctx context.Context, messages []Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return buildMockReply(messages), nil
}

func (g *MockGateway) ChatStream(ctx context.Context, messages []Message) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	words := strings.Fields(buildMockReply(messages))
	chunks := make([]Chunk, 0, len(words)+1)
	for i, w := range words {
		if i > 0 {
			w = " " + w
		}
		chunks = append(chunks, Chunk{Content: w})
	}
	chunks = append(chunks, Chunk{Done: true})
	return &sliceStream{ctx: ctx, chunks: chunks}, nil
}

func (g *MockGateway) Probe(ctx context.Context) (Probe, error) {
	if err := ctx.Err(); err != nil {
		return Probe{}, err
	}
	return Probe{Model: g.model, ModelAvailable: true}, nil
}

func buildMockReply(messages []Message) string {
	var last string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			last = strings.TrimSpace(messages[i].Content)
			break
		}
	}
	if last == "" {
		return "Ik luister."
	}
	return fmt.Sprintf("Ik hoorde je: %s", last)
}

// sliceStream replays prepared chunks.
type sliceStream struct {
	ctx    context.Context
	chunks []Chunk
	next   int
	closed bool
}

func (s *sliceStream) Next() (Chunk, error) {
	if s.closed || s.next >= len(s.chunks) {
		return Chunk{}, io.EOF
	}
	if err := s.ctx.Err(); err != nil {
		return Chunk{}, err
	}
	c := s.chunks[s.next]
	s.next++
	return c, nil
}

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}
