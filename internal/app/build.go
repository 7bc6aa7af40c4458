package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/antoniostano/robotbuddy/internal/chat"
	"github.com/antoniostano/robotbuddy/internal/config"
	"github.com/antoniostano/robotbuddy/internal/httpapi"
	"github.com/antoniostano/robotbuddy/internal/inference"
	"github.com/antoniostano/robotbuddy/internal/knowledge"
	"github.com/antoniostano/robotbuddy/internal/mode"
	"github.com/antoniostano/robotbuddy/internal/observability"
)

type BuildResult struct {
	Config    config.Config
	API       *httpapi.Server
	Chat      *chat.Service
	Gateway   inference.Gateway
	Knowledge knowledge.Source
	Metrics   *observability.Metrics

	// Cleanup releases external resources (database pool). Call it on shutdown.
	Cleanup func() error
}

// Build wires the pipeline from cfg. The logger is used as-is; callers own it.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	source, err := knowledge.NewSource(ctx, cfg.KnowledgeStorePath, cfg.KnowledgeDatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("knowledge source init failed: %w", err)
	}

	gateway, err := inference.NewGateway(inference.Config{
		Mode:              cfg.GatewayMode,
		BaseURL:           cfg.OllamaURL,
		Model:             cfg.OllamaModel,
		Timeout:           cfg.OllamaTimeout,
		StreamIdleTimeout: cfg.StreamIdleTimeout,
		Logger:            logger.Named("inference"),
		Metrics:           metrics,
	})
	if err != nil {
		_ = source.Close()
		return nil, fmt.Errorf("inference gateway init failed: %w", err)
	}

	keywords := mode.DefaultKeywords()
	if len(cfg.HighRiskKeywords) > 0 {
		keywords.HighRisk = cfg.HighRiskKeywords
	}
	if len(cfg.SensitiveKeywords) > 0 {
		keywords.Sensitive = cfg.SensitiveKeywords
	}

	svc := chat.NewService(chat.Options{
		Classifier: mode.NewClassifier(keywords),
		Retriever:  knowledge.NewRetriever(source),
		Gateway:    gateway,
		Metrics:    metrics,
		Logger:     logger.Named("chat"),
	})

	api := httpapi.New(cfg, svc, gateway, metrics, logger.Named("http"))

	cleanup := func() error {
		var errs []error
		if err := source.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close knowledge source: %w", err))
		}
		return errors.Join(errs...)
	}

	logger.Info("pipeline ready",
		zap.String("gateway_mode", cfg.GatewayMode),
		zap.String("model", cfg.OllamaModel),
		zap.Bool("knowledge_postgres", cfg.KnowledgeDatabaseURL != ""),
	)

	return &BuildResult{
		Config:    cfg,
		API:       api,
		Chat:      svc,
		Gateway:   gateway,
		Knowledge: source,
		Metrics:   metrics,
		Cleanup:   cleanup,
	}, nil
}
