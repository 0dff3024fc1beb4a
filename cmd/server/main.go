package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	grpchandler "github.com/flipmyera/credit-ledger/internal/adapter/handler/grpc"
	"github.com/flipmyera/credit-ledger/internal/bootstrap"
	"github.com/flipmyera/credit-ledger/internal/config"
	grpcServer "github.com/flipmyera/credit-ledger/internal/infrastructure/grpc"
	httpServer "github.com/flipmyera/credit-ledger/internal/infrastructure/http"
)

const healthProbeInterval = 10 * time.Second

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := cfg.NewLogger()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database, migrations, providers and usecases
	app, err := bootstrap.New(ctx, cfg, logger, true)
	if err != nil {
		logger.Fatal("Failed to initialize service", zap.Error(err))
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("Failed to close database connection", zap.Error(err))
		}
	}()

	health := grpchandler.NewHealthHandler(cfg.Service.Name, app.Ping, logger)
	go health.Run(ctx, healthProbeInterval)

	// Initialize servers
	grpcSrv := grpcServer.NewServer(cfg, logger, health)
	httpSrv := httpServer.NewServer(cfg, logger, httpServer.Services{
		Webhooks:     app.Webhooks,
		Credits:      app.Credits,
		Transactions: app.Transactions,
		Admin:        app.Admin,
		Health:       app.Ping,
	})

	// Start servers
	go func() {
		if err := grpcSrv.Start(); err != nil {
			logger.Fatal("Failed to start gRPC server", zap.Error(err))
		}
	}()

	go func() {
		if err := httpSrv.Start(); err != nil {
			logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down servers...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	// Stop taking webhooks first so in-flight ledger writes finish.
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown HTTP server", zap.Error(err))
	}

	if err := grpcSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown gRPC server", zap.Error(err))
	}

	cancel()
	logger.Info("Servers shut down successfully")
}
