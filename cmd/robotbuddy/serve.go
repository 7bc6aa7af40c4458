package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/antoniostano/robotbuddy/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := loadRuntime()
		if err != nil {
			return err
		}
		defer logger.Sync()

		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.BindAddr = addr
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		built, err := app.Build(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := built.Cleanup(); err != nil {
				logger.Warn("cleanup failed", zap.Error(err))
			}
		}()

		httpServer := &http.Server{
			Addr:    cfg.BindAddr,
			Handler: built.API.Router(),
		}

		listenErr := make(chan error, 1)
		go func() {
			logger.Info("server listening", zap.String("addr", cfg.BindAddr))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				listenErr <- err
			}
			close(listenErr)
		}()

		select {
		case err := <-listenErr:
			if err != nil {
				return err
			}
		case <-ctx.Done():
			logger.Info("shutdown signal received")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown failed", zap.Error(err))
			_ = httpServer.Close()
		}
		logger.Info("shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides APP_BIND_ADDR)")
	rootCmd.Flags().AddFlagSet(serveCmd.Flags())
	rootCmd.AddCommand(serveCmd)
}
