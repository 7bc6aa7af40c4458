package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/antoniostano/robotbuddy/internal/observability"
)

type wireRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   *bool     `json:"stream"`
}

func newGateway(t *testing.T, url string, timeout, idle time.Duration) *OllamaGateway {
	t.Helper()
	g, err := NewOllamaGateway(Config{
		BaseURL:           url,
		Model:             "llama3.2:1b",
		Timeout:           timeout,
		StreamIdleTimeout: idle,
	})
	require.NoError(t, err)
	return g
}

func TestChatSendsOrderedMessagesAndReadsContent(t *testing.T) {
	var got wireRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"model":"llama3.2:1b","message":{"role":"assistant","content":"Hallo daar!"},"done":true}`)
	}))
	defer ts.Close()

	g := newGateway(t, ts.URL, time.Second, time.Second)
	text, err := g.Chat(context.Background(), []Message{
		{Role: RoleSystem, Content: "regels"},
		{Role: RoleUser, Content: "eerder"},
		{Role: RoleAssistant, Content: "antwoord"},
		{Role: RoleUser, Content: "nu"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hallo daar!", text)

	assert.Equal(t, "llama3.2:1b", got.Model)
	require.NotNil(t, got.Stream)
	assert.False(t, *got.Stream)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, RoleSystem, got.Messages[0].Role)
	assert.Equal(t, "nu", got.Messages[3].Content)
}

func TestChatNonSuccessStatusIsUpstreamUnavailable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer ts.Close()

	_, err := newGateway(t, ts.URL, time.Second, time.Second).Chat(context.Background(), nil)
	require.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Equal(t, KindStatus, KindOf(err))

	var ue *UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, http.StatusInternalServerError, ue.StatusCode)
}

func TestChatStatusErrorScrubsBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad prompt from anna@example.org\n"+strings.Repeat("x", 2000), http.StatusBadRequest)
	}))
	defer ts.Close()

	_, err := newGateway(t, ts.URL, time.Second, time.Second).Chat(context.Background(), nil)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "[REDACTED_EMAIL]")
	assert.NotContains(t, msg, "anna@example.org")
	assert.Less(t, len(msg), 700)
}

func TestChatConnectionRefused(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := newGateway(t, url, time.Second, time.Second).Chat(context.Background(), nil)
	require.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Equal(t, KindConnect, KindOf(err))
}

func TestChatTimeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer ts.Close()

	_, err := newGateway(t, ts.URL, 50*time.Millisecond, time.Second).Chat(context.Background(), nil)
	require.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Equal(t, KindTimeout, KindOf(err))
}

func TestChatUndecodableBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>proxy error</html>")
	}))
	defer ts.Close()

	_, err := newGateway(t, ts.URL, time.Second, time.Second).Chat(context.Background(), nil)
	require.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Equal(t, KindDecode, KindOf(err))
}

func TestChatCanceledCallerIsNotUpstreamFailure(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newGateway(t, ts.URL, time.Second, time.Second).Chat(ctx, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrUpstreamUnavailable)
}

func ndjsonServer(lines []string, hold bool) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		flusher, _ := w.(http.Flusher)
		for _, line := range lines {
			_, _ = fmt.Fprintln(w, line)
			if flusher != nil {
				flusher.Flush()
			}
		}
		if hold {
			<-r.Context().Done()
		}
	}))
}

func TestChatStreamSkipsMalformedLines(t *testing.T) {
	ts := ndjsonServer([]string{
		`{"message":{"role":"assistant","content":"Hal"},"done":false}`,
		`not-json`,
		``,
		`{"message":{"role":"assistant","content":"lo"},"done":false}`,
		`{"message":{"role":"assistant","content":""},"done":true}`,
	}, false)
	defer ts.Close()

	metrics := observability.NewMetrics("inference_test")
	g, err := NewOllamaGateway(Config{
		BaseURL:           ts.URL,
		Model:             "llama3.2:1b",
		Timeout:           time.Second,
		StreamIdleTimeout: time.Second,
		Metrics:           metrics,
	})
	require.NoError(t, err)
	stream, err := g.ChatStream(context.Background(), nil)
	require.NoError(t, err)
	defer stream.Close()

	var chunks []Chunk
	for {
		c, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		chunks = append(chunks, c)
	}
	require.Len(t, chunks, 3)
	assert.Equal(t, "Hal", chunks[0].Content)
	assert.Equal(t, "lo", chunks[1].Content)
	assert.True(t, chunks[2].Done)
	assert.Equal(t, []observability.Indicator{{Name: "stream_line_skipped", Count: 1}}, metrics.SnapshotStages().Indicators)

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "inference_test_stream_lines_skipped_total 1")
}

func TestChatStreamErrorLine(t *testing.T) {
	ts := ndjsonServer([]string{`{"error":"model 'x' not found"}`}, false)
	defer ts.Close()

	stream, err := newGateway(t, ts.URL, time.Second, time.Second).ChatStream(context.Background(), nil)
	require.NoError(t, err)
	defer stream.Close()

	_, err = stream.Next()
	require.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Equal(t, KindStream, KindOf(err))
}

func TestChatStreamIdleTimeout(t *testing.T) {
	ts := ndjsonServer([]string{`{"message":{"content":"Hoi"},"done":false}`}, true)
	defer ts.Close()

	stream, err := newGateway(t, ts.URL, time.Second, 50*time.Millisecond).ChatStream(context.Background(), nil)
	require.NoError(t, err)
	defer stream.Close()

	c, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, "Hoi", c.Content)

	_, err = stream.Next()
	require.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Equal(t, KindTimeout, KindOf(err))
}

func TestChatStreamCloseReleasesUpstream(t *testing.T) {
	released := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintln(w, `{"message":{"content":"Hoi"},"done":false}`)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
		close(released)
	}))
	defer ts.Close()

	stream, err := newGateway(t, ts.URL, time.Second, time.Minute).ChatStream(context.Background(), nil)
	require.NoError(t, err)
	_, err = stream.Next()
	require.NoError(t, err)

	require.NoError(t, stream.Close())
	select {
	case <-released:
	case <-time.After(2 * time.Second):
		t.Fatal("upstream request was not released after Close")
	}
}

func TestChatStreamStatusFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	_, err := newGateway(t, ts.URL, time.Second, time.Second).ChatStream(context.Background(), nil)
	require.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Equal(t, KindStatus, KindOf(err))
}

func TestProbe(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			w.WriteHeader(http.StatusOK)
		case "/api/tags":
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"models":[{"name":"llama3.2:1b","model":"llama3.2:1b"}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	p, err := newGateway(t, ts.URL, time.Second, time.Second).Probe(context.Background())
	require.NoError(t, err)
	assert.True(t, p.ModelAvailable)
	assert.Equal(t, "llama3.2:1b", p.Model)
}

func TestNewGatewayModes(t *testing.T) {
	g, err := NewGateway(Config{Mode: "MOCK"})
	require.NoError(t, err)
	_, ok := g.(*MockGateway)
	assert.True(t, ok)

	_, err = NewGateway(Config{Mode: "carrier-pigeon"})
	require.Error(t, err)

	_, err = NewGateway(Config{Mode: "ollama", BaseURL: "::not a url", Model: "m"})
	require.Error(t, err)

	_, err = NewGateway(Config{Mode: "ollama", BaseURL: "http://localhost:11434"})
	require.Error(t, err, "model is required")
}

func TestMockGatewayStreamsReply(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := NewMockGateway("")
	stream, err := g.ChatStream(context.Background(), []Message{{Role: RoleUser, Content: "hoi robot"}})
	require.NoError(t, err)
	defer stream.Close()

	var text string
	for {
		c, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		text += c.Content
	}
	assert.Equal(t, "Ik hoorde je: hoi robot", text)
}
