package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

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
	if err := cfg.Validate(); err != nil {
		slog.Error("incomplete config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	pipelines := pipeline.New(cfg, logger)

	if cfg.StartupSeedStocks {
		if _, err := pipelines.Seed(ctx); err != nil {
			logger.Error("startup seed failed", "err", err)
			os.Exit(1)
		}
	}

	if cfg.WorkerRunOnce {
		if err := runCycle(ctx, logger, pipelines); err != nil {
			logger.Error("cycle failed", "err", err)
			os.Exit(1)
		}
		logger.Info("worker run-once completed")
		return
	}

	ticker := time.NewTicker(cfg.WorkerTickEvery)
	defer ticker.Stop()

	logger.Info("worker started", "tick_every", cfg.WorkerTickEvery.String())
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutdown")
			return
		case <-ticker.C:
			if err := runCycle(ctx, logger, pipelines); err != nil {
				logger.Error("cycle failed", "err", err)
				continue
			}
			logger.Info("cycle complete")
		}
	}
}

// runCycle walks the data flow: real quotes in, manipulator derived, game
// prices perturbed.
func runCycle(ctx context.Context, logger *slog.Logger, p *pipeline.Pipelines) error {
	scrape, err := p.Scrape(ctx)
	if err != nil {
		return err
	}
	logger.Info("scrape summary", "created", scrape.Created, "updated", scrape.Updated, "failed", scrape.Failed, "source", scrape.DataSource)

	manip, err := p.UpdateManipulator(ctx)
	if err != nil {
		return err
	}
	if manip.Manipulator != nil && manip.AverageChange != nil {
		logger.Info("manipulator summary", "manipulator", *manip.Manipulator, "average_change", *manip.AverageChange)
	}

	update, err := p.UpdateMarket(ctx)
	if err != nil {
		return err
	}
	logger.Info("market summary", "updated", update.Updated, "skipped", update.Skipped, "failed", update.Failed)
	return nil
}
