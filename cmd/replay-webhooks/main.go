// Command replay-webhooks re-runs stored webhook events that failed or were
// left unfinished. It processes one batch per run and is meant for cron.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/flipmyera/credit-ledger/internal/bootstrap"
	"github.com/flipmyera/credit-ledger/internal/config"
)

func main() {
	batchSize := flag.Int("batch-size", 0, "events per run (overrides replay.batch_size)")
	maxAttempts := flag.Int("max-attempts", 0, "skip events retried this many times (overrides replay.max_attempts)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *batchSize > 0 {
		cfg.Service.Replay.BatchSize = *batchSize
	}
	if *maxAttempts > 0 {
		cfg.Service.Replay.MaxAttempts = *maxAttempts
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger, false)
	if err != nil {
		logger.Fatal("Failed to initialize replay", zap.Error(err))
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("Failed to close database connection", zap.Error(err))
		}
	}()

	summary, err := app.Replay.Run(ctx)
	if summary != nil {
		logger.Info("Webhook replay finished",
			zap.Int("scanned", summary.Scanned),
			zap.Int("skipped", summary.Skipped),
			zap.Int("processed", summary.Processed),
			zap.Int("ignored", summary.Ignored),
			zap.Int("failed", summary.Failed))
	}
	if err != nil {
		logger.Error("Webhook replay aborted", zap.Error(err))
		_ = app.Close()
		logger.Sync()
		os.Exit(1)
	}
}
