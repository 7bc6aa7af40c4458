package inference

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"

	"github.com/antoniostano/robotbuddy/internal/observability"
	"github.com/antoniostano/robotbuddy/internal/policy"
)

// ndjsonStream decodes one api.ChatResponse per line. Lines that do not decode are
// skipped and counted in metrics; a read failure ends the stream with an UpstreamError.
type ndjsonStream struct {
	parent  context.Context
	body    io.ReadCloser
	cancel  context.CancelFunc
	scanner *bufio.Scanner
	logger  *zap.Logger
	metrics *observability.Metrics

	idle     time.Duration
	timer    *time.Timer
	idleHit  atomic.Bool
	closing  sync.Once
	finished bool
}

func newNDJSONStream(parent context.Context, body io.ReadCloser, cancel context.CancelFunc, idle time.Duration, logger *zap.Logger, metrics *observability.Metrics) *ndjsonStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	s := &ndjsonStream{
		parent:  parent,
		body:    body,
		cancel:  cancel,
		scanner: scanner,
		logger:  logger,
		metrics: metrics,
		idle:    idle,
	}
	s.timer = time.AfterFunc(idle, func() {
		s.idleHit.Store(true)
		s.cancel()
	})
	s.timer.Stop()
	return s
}

func (s *ndjsonStream) Next() (Chunk, error) {
	if s.finished {
		return Chunk{}, io.EOF
	}
	for {
		s.timer.Reset(s.idle)
		ok := s.scanner.Scan()
		s.timer.Stop()
		if !ok {
			s.finished = true
			if err := s.scanner.Err(); err != nil {
				return Chunk{}, s.readError(err)
			}
			if s.idleHit.Load() {
				return Chunk{}, &UpstreamError{Kind: KindTimeout, Err: errors.New("stream idle timeout")}
			}
			return Chunk{}, io.EOF
		}

		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var failure struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(line, &failure) == nil && failure.Error != "" {
			s.finished = true
			return Chunk{}, &UpstreamError{Kind: KindStream, Err: errors.New(policy.Scrub(failure.Error, maxErrorDetail))}
		}

		var reply api.ChatResponse
		if err := json.Unmarshal(line, &reply); err != nil {
			s.metrics.ObserveSkippedStreamLine()
			s.logger.Debug("skipping malformed stream line", zap.Int("bytes", len(line)), zap.Error(err))
			continue
		}
		return Chunk{Content: reply.Message.Content, Done: reply.Done}, nil
	}
}

func (s *ndjsonStream) Close() error {
	var err error
	s.closing.Do(func() {
		s.timer.Stop()
		s.cancel()
		err = s.body.Close()
	})
	return err
}

func (s *ndjsonStream) readError(err error) error {
	if s.idleHit.Load() {
		return &UpstreamError{Kind: KindTimeout, Err: err}
	}
	if ctxErr := s.parent.Err(); ctxErr != nil {
		return ctxErr
	}
	return &UpstreamError{Kind: KindStream, Err: err}
}
