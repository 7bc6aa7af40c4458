package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/antoniostano/robotbuddy/internal/answer"
	"github.com/antoniostano/robotbuddy/internal/inference"
	"github.com/antoniostano/robotbuddy/internal/mode"
	"github.com/antoniostano/robotbuddy/internal/observability"
	"github.com/antoniostano/robotbuddy/internal/prompt"
)

// Retriever returns ranked facts for a query. An error means the store could not be
// read; the pipeline then continues without facts.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]string, error)
}

type Options struct {
	Classifier     *mode.Classifier
	Retriever      Retriever
	Template       prompt.Template
	Gateway        inference.Gateway
	Metrics        *observability.Metrics
	Logger         *zap.Logger
	FallbackAnswer string
}

// Service runs the classify, retrieve, assemble, generate and shape pipeline. It
// keeps no per-request state and is safe for concurrent use.
type Service struct {
	classifier *mode.Classifier
	retriever  Retriever
	template   prompt.Template
	gateway    inference.Gateway
	metrics    *observability.Metrics
	logger     *zap.Logger
	fallback   string
}

func NewService(opts Options) *Service {
	s := &Service{
		classifier: opts.Classifier,
		retriever:  opts.Retriever,
		template:   opts.Template,
		gateway:    opts.Gateway,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		fallback:   strings.TrimSpace(opts.FallbackAnswer),
	}
	if s.classifier == nil {
		s.classifier = mode.NewClassifier(mode.DefaultKeywords())
	}
	if len(s.template.Rules) == 0 && len(s.template.Tones) == 0 {
		s.template = prompt.DefaultTemplate()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.fallback == "" {
		s.fallback = FallbackAnswer
	}
	return s
}

type preparation struct {
	mode  mode.Mode
	facts []string
}

// prepare classifies and retrieves in parallel. Neither step can fail the request.
func (s *Service) prepare(ctx context.Context, text string) preparation {
	start := time.Now()
	var p preparation

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p.mode = s.classifier.Classify(text)
		return nil
	})
	g.Go(func() error {
		if s.retriever == nil {
			return nil
		}
		facts, err := s.retriever.Retrieve(gctx, text)
		if err != nil {
			s.logger.Warn("knowledge retrieval failed, continuing without facts", zap.Error(err))
			facts = nil
		}
		s.metrics.ObserveRetrieval(len(facts), err != nil)
		p.facts = facts
		return nil
	})
	_ = g.Wait()

	s.metrics.ObserveStage(observability.StagePrepare, time.Since(start))
	return p
}

// Chat answers a single request. When the backend is unavailable the returned
// Result carries FallbackAnswer and the error matches inference.ErrUpstreamUnavailable.
func (s *Service) Chat(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	conversationID := strings.TrimSpace(req.ConversationID)
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	logger := s.logger.With(zap.String("conversation_id", conversationID))

	p := s.prepare(ctx, req.UserText)
	s.metrics.ObserveRequest("chat", string(p.mode))
	result := Result{
		Mode:           p.mode,
		FactsUsed:      headFacts(p.facts),
		ConversationID: conversationID,
	}

	messages := BuildMessages(s.template.Assemble(p.mode, p.facts), req.History, req.UserText)
	upstreamStart := time.Now()
	raw, err := s.gateway.Chat(ctx, messages)
	s.metrics.ObserveStage(observability.StageUpstream, time.Since(upstreamStart))
	if err != nil {
		result.Answer = s.fallback
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if !errors.Is(err, inference.ErrUpstreamUnavailable) {
			err = fmt.Errorf("%w: %w", inference.ErrUpstreamUnavailable, err)
		}
		kind := string(inference.KindOf(err))
		s.metrics.ObserveUpstreamError(kind)
		s.metrics.ObserveIndicator("chat_fallback")
		logger.Warn("inference backend unavailable",
			zap.String("mode", string(p.mode)),
			zap.String("kind", kind),
			zap.Error(err),
		)
		return result, err
	}

	shapeStart := time.Now()
	result.Answer = answer.Shape(raw)
	s.metrics.ObserveStage(observability.StageShape, time.Since(shapeStart))
	s.metrics.ObserveStage(observability.StageChatTotal, time.Since(start))

	logger.Info("chat answered",
		zap.String("mode", string(p.mode)),
		zap.Int("user_chars", len(req.UserText)),
		zap.Int("history", len(req.History)),
		zap.Int("facts", len(p.facts)),
	)
	return result, nil
}

// Stream classifies and retrieves immediately and returns a relay that connects to
// the backend on its first Next call. The caller must Close the relay.
func (s *Service) Stream(ctx context.Context, userText string) *Relay {
	p := s.prepare(ctx, userText)
	s.metrics.ObserveRequest("stream", string(p.mode))

	relayCtx, cancel := context.WithCancel(ctx)
	return &Relay{
		svc:      s,
		ctx:      relayCtx,
		cancel:   cancel,
		mode:     p.mode,
		facts:    headFacts(p.facts),
		messages: BuildMessages(s.template.Assemble(p.mode, p.facts), nil, userText),
		logger:   s.logger.With(zap.String("mode", string(p.mode))),
		state:    StateIdle,
		started:  time.Now(),
	}
}
