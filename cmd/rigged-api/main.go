package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rigged/internal/api"
	"rigged/internal/config"
	"rigged/internal/pipeline"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	pipelines := pipeline.New(cfg, logger)

	// Missing settings are reported per invocation as 400s, so the server
	// comes up regardless; seeding is only attempted with a full config.
	if cfg.StartupSeedStocks {
		if err := cfg.Validate(); err != nil {
			logger.Warn("skipping startup seed", "err", err)
		} else if _, err := pipelines.Seed(ctx); err != nil {
			logger.Error("startup seed failed", "err", err)
		}
	}

	server := api.New(cfg, logger, pipelines)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("rigged api listening", "addr", cfg.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
