// Package bootstrap wires configuration, storage and providers into the usecases
// shared by the server and the replay command.
package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/flipmyera/credit-ledger/internal/config"
	"github.com/flipmyera/credit-ledger/internal/domain/provider"
	"github.com/flipmyera/credit-ledger/internal/infrastructure/catalog"
	"github.com/flipmyera/credit-ledger/internal/infrastructure/database"
	"github.com/flipmyera/credit-ledger/internal/infrastructure/provider/stripe"
	"github.com/flipmyera/credit-ledger/internal/usecase"
	"github.com/flipmyera/credit-ledger/pkg/messaging"
)

type App struct {
	DB        *gorm.DB
	Repos     *database.Repositories
	Publisher messaging.Publisher

	Credits      *usecase.CreditService
	Transactions *usecase.CreditTransactionService
	Webhooks     *usecase.WebhookService
	Admin        *usecase.AdminService
	Replay       *usecase.ReplayService

	logger *zap.Logger
}

// New connects to the database (migrating it when migrate is set) and builds every usecase.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, migrate bool) (*App, error) {
	db, err := database.NewConnection(&cfg.Database, cfg.Log, logger)
	if err != nil {
		return nil, err
	}

	if migrate {
		if err := database.Migrate(db, logger); err != nil {
			_ = database.Close(db, logger)
			return nil, err
		}
	}

	publisher, err := newPublisher(ctx, cfg, logger)
	if err != nil {
		_ = database.Close(db, logger)
		return nil, err
	}

	products, err := catalog.Load(cfg.Service.ProductsPath)
	if err != nil {
		_ = publisher.Close()
		_ = database.Close(db, logger)
		return nil, fmt.Errorf("failed to load product catalog: %w", err)
	}
	logger.Info("Product catalog loaded",
		zap.String("path", cfg.Service.ProductsPath),
		zap.Int("products", products.Len()))

	var lineItems provider.CheckoutSessionFetcher
	if cfg.Service.StripeSecretKey != "" {
		lineItems = stripe.NewCheckoutClient(cfg.Service.StripeSecretKey, logger)
	} else {
		logger.Warn("Stripe secret key not set; sessions without credit metadata cannot be priced")
	}

	app := Assemble(db, publisher, cfg, stripe.NewWebhookVerifier(cfg.Service.StripeWebhookSecret, logger), lineItems, products, logger)
	return app, nil
}

// Assemble builds the usecases over an open database.
func Assemble(
	db *gorm.DB,
	publisher messaging.Publisher,
	cfg *config.Config,
	verifier provider.WebhookVerifier,
	lineItems provider.CheckoutSessionFetcher,
	products provider.ProductCatalog,
	logger *zap.Logger,
) *App {
	repos := database.NewRepositories(db, logger)
	if publisher == nil {
		publisher = messaging.NopPublisher{}
	}

	events := usecase.NewEventPublisher(publisher, cfg.Redis.Channel, logger)
	credits := usecase.NewCreditService(repos.Ledger, repos.Transactions, events, logger)
	resolver := usecase.NewIdentityResolver(repos.Profiles, logger)
	webhooks := usecase.NewWebhookService(repos.Webhooks, repos.Ledger, repos.Refunds, credits, resolver, verifier, lineItems, products, logger)

	return &App{
		DB:           db,
		Repos:        repos,
		Publisher:    publisher,
		Credits:      credits,
		Transactions: usecase.NewCreditTransactionService(repos.Transactions, logger),
		Webhooks:     webhooks,
		Admin:        usecase.NewAdminService(repos.Ledger, repos.Transactions, repos.Profiles, credits, logger),
		Replay: usecase.NewReplayService(repos.Webhooks, webhooks, usecase.ReplayOptions{
			BatchSize:   cfg.Service.Replay.BatchSize,
			MaxAttempts: cfg.Service.Replay.MaxAttempts,
			StaleAfter:  cfg.Service.Replay.StaleAfter,
		}, logger),
		logger: logger,
	}
}

// Ping reports database reachability for health checks.
func (a *App) Ping(context.Context) error {
	return database.Ping(a.DB)
}

func (a *App) Close() error {
	if err := a.Publisher.Close(); err != nil {
		a.logger.Warn("Failed to close event publisher", zap.Error(err))
	}
	return database.Close(a.DB, a.logger)
}

func newPublisher(ctx context.Context, cfg *config.Config, logger *zap.Logger) (messaging.Publisher, error) {
	if !cfg.Redis.Enabled {
		return messaging.NopPublisher{}, nil
	}

	client, err := messaging.NewRedisClient(ctx, messaging.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Ledger events publishing to redis",
		zap.String("addr", cfg.Redis.Addr),
		zap.String("channel", cfg.Redis.Channel))
	return client, nil
}
