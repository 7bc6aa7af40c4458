package chat

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/antoniostano/robotbuddy/internal/inference"
	"github.com/antoniostano/robotbuddy/internal/mode"
	"github.com/antoniostano/robotbuddy/internal/observability"
)

// ErrAbandoned is returned by Relay.Next once the consumer has detached, either by
// calling Close or by canceling the context the relay was created with.
var ErrAbandoned = errors.New("stream abandoned by consumer")

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateDone
	StateError
	// StateClosed means the consumer detached before a terminal event.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

func (s State) terminal() bool {
	return s == StateDone || s == StateError || s == StateClosed
}

// Relay forwards a streamed model reply one Event at a time. Events arrive in
// upstream order and are followed by exactly one done or error event, after which
// Next returns io.EOF. Nothing runs in the background: the upstream is only read
// from inside Next.
type Relay struct {
	svc      *Service
	ctx      context.Context
	cancel   context.CancelFunc
	mode     mode.Mode
	facts    []string
	messages []inference.Message
	logger   *zap.Logger
	started  time.Time

	mu       sync.Mutex
	state    State
	upstream inference.Stream

	pendingDone bool
	chunks      int
}

func (r *Relay) Mode() mode.Mode { return r.mode }

func (r *Relay) FactsUsed() []string { return r.facts }

func (r *Relay) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Relay) setState(s State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateClosed {
		return false
	}
	r.state = s
	return true
}

func (r *Relay) Next() (Event, error) {
	for {
		switch r.State() {
		case StateIdle:
			if !r.setState(StateConnecting) {
				return Event{}, ErrAbandoned
			}
			stream, err := r.svc.gateway.ChatStream(r.ctx, r.messages)
			if err != nil {
				return r.fail(err)
			}
			if !r.attach(stream) {
				_ = stream.Close()
				return Event{}, ErrAbandoned
			}

		case StateStreaming:
			if r.pendingDone {
				return r.finish()
			}
			up := r.currentUpstream()
			if up == nil {
				return Event{}, ErrAbandoned
			}
			chunk, err := up.Next()
			if errors.Is(err, io.EOF) {
				return r.finish()
			}
			if err != nil {
				return r.fail(err)
			}
			if chunk.Done {
				r.pendingDone = true
				r.releaseUpstream()
			}
			if chunk.Content == "" {
				continue
			}
			if r.chunks == 0 {
				r.svc.metrics.ObserveStage(observability.StageFirstChunk, time.Since(r.started))
			}
			r.chunks++
			r.svc.metrics.ObserveStreamEvent(string(EventChunk))
			return Event{Kind: EventChunk, Chunk: chunk.Content}, nil

		case StateClosed:
			return Event{}, ErrAbandoned

		default:
			return Event{}, io.EOF
		}
	}
}

// Close detaches the consumer. It cancels any in-flight upstream read and releases
// the connection. Safe to call more than once and from another goroutine.
func (r *Relay) Close() error {
	r.mu.Lock()
	prev := r.state
	if !prev.terminal() {
		r.state = StateClosed
	}
	up := r.upstream
	r.upstream = nil
	r.mu.Unlock()

	r.cancel()
	var err error
	if up != nil {
		err = up.Close()
	}
	if !prev.terminal() {
		r.svc.metrics.ObserveIndicator("stream_abandoned")
		r.logger.Info("stream abandoned by consumer", zap.String("state", prev.String()))
	}
	return err
}

func (r *Relay) attach(stream inference.Stream) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateClosed {
		return false
	}
	r.upstream = stream
	r.state = StateStreaming
	return true
}

func (r *Relay) currentUpstream() inference.Stream {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.upstream
}

func (r *Relay) releaseUpstream() {
	if up := r.currentUpstream(); up != nil {
		_ = up.Close()
	}
}

func (r *Relay) finish() (Event, error) {
	if !r.setState(StateDone) {
		return Event{}, ErrAbandoned
	}
	r.releaseUpstream()
	r.cancel()
	r.svc.metrics.ObserveStage(observability.StageStreamTotal, time.Since(r.started))
	r.svc.metrics.ObserveStreamEvent(string(EventDone))
	r.logger.Debug("stream relay done", zap.Int("chunks", r.chunks))
	return Event{Kind: EventDone, Mode: r.mode, FactsUsed: r.facts}, nil
}

func (r *Relay) fail(err error) (Event, error) {
	prev := r.State()
	if r.ctx.Err() != nil || prev == StateClosed {
		if r.setState(StateClosed) {
			r.svc.metrics.ObserveIndicator("stream_abandoned")
			r.logger.Info("stream abandoned by consumer", zap.String("state", prev.String()))
		}
		r.releaseUpstream()
		r.cancel()
		return Event{}, ErrAbandoned
	}
	r.setState(StateError)
	r.releaseUpstream()
	r.cancel()

	kind := string(inference.KindOf(err))
	r.svc.metrics.ObserveUpstreamError(kind)
	r.svc.metrics.ObserveStreamEvent(string(EventError))
	r.logger.Warn("stream relay failed",
		zap.String("kind", kind),
		zap.Int("chunks", r.chunks),
		zap.Error(err),
	)
	return Event{Kind: EventError, Error: r.svc.fallback, Mode: r.mode}, nil
}
