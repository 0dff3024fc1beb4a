package usecase_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/flipmyera/credit-ledger/internal/domain/dto"
	"github.com/flipmyera/credit-ledger/internal/domain/event"
	"github.com/flipmyera/credit-ledger/internal/domain/model"
	"github.com/flipmyera/credit-ledger/internal/domain/provider"
	"github.com/flipmyera/credit-ledger/internal/infrastructure/database"
	"github.com/flipmyera/credit-ledger/internal/usecase"
)

// MockVerifier is a mock implementation of provider.WebhookVerifier
type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) VerifyEvent(payload []byte, signatureHeader string) (event.Event, error) {
	args := m.Called(payload, signatureHeader)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(event.Event), args.Error(1)
}

func (m *MockVerifier) ParseEvent(payload []byte) (event.Event, error) {
	args := m.Called(payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(event.Event), args.Error(1)
}

// MockLineItems is a mock implementation of provider.CheckoutSessionFetcher
type MockLineItems struct {
	mock.Mock
}

func (m *MockLineItems) ListLineItems(ctx context.Context, sessionID string) ([]provider.LineItem, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]provider.LineItem), args.Error(1)
}

// staticCatalog prices line items from a fixed map.
type staticCatalog map[string]int64

func (c staticCatalog) CreditsForPrice(priceID string) (int64, bool) {
	credits, ok := c[priceID]
	return credits, ok
}

// MockProfileRepository is a mock implementation of repository.ProfileRepository
type MockProfileRepository struct {
	mock.Mock
}

func (m *MockProfileRepository) FindByEmail(ctx context.Context, email string) (*model.Profile, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Profile), args.Error(1)
}

func (m *MockProfileRepository) FindByCustomerID(ctx context.Context, customerID string) (*model.Profile, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Profile), args.Error(1)
}

func (m *MockProfileRepository) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Profile), args.Error(1)
}

func (m *MockProfileRepository) BackfillCustomerID(ctx context.Context, profileID, customerID string) (bool, error) {
	args := m.Called(ctx, profileID, customerID)
	return args.Bool(0), args.Error(1)
}

// ledgerEnv wires the usecases over an in-memory sqlite ledger.
type ledgerEnv struct {
	db        *gorm.DB
	repos     *database.Repositories
	credits   *usecase.CreditService
	resolver  *usecase.IdentityResolver
	verifier  *MockVerifier
	lineItems *MockLineItems
	catalog   staticCatalog
	webhooks  *usecase.WebhookService
}

func newLedgerEnv(t *testing.T) *ledgerEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db, zap.NewNop()))

	logger := zap.NewNop()
	env := &ledgerEnv{
		db:        db,
		repos:     database.NewRepositories(db, logger),
		verifier:  new(MockVerifier),
		lineItems: new(MockLineItems),
		catalog:   staticCatalog{"price_single": 1, "price_bundle": 3},
	}
	env.credits = usecase.NewCreditService(env.repos.Ledger, env.repos.Transactions,
		usecase.NewEventPublisher(nil, "ledger.events", logger), logger)
	env.resolver = usecase.NewIdentityResolver(env.repos.Profiles, logger)
	env.webhooks = usecase.NewWebhookService(env.repos.Webhooks, env.repos.Ledger, env.repos.Refunds, env.credits,
		env.resolver, env.verifier, env.lineItems, env.catalog, logger)
	return env
}

func (e *ledgerEnv) seedProfile(t *testing.T, id, email string, customerID *string) {
	t.Helper()
	require.NoError(t, e.db.Create(&model.Profile{ID: id, Email: email, StripeCustomerID: customerID}).Error)
}

func (e *ledgerEnv) transactions(t *testing.T, userID string) []model.CreditTransaction {
	t.Helper()
	txns, err := e.repos.Transactions.GetTransactions(context.Background(), dto.TransactionFilters{UserID: userID, Limit: 100})
	require.NoError(t, err)
	return txns
}

func (e *ledgerEnv) balance(t *testing.T, userID string) int64 {
	t.Helper()
	b, err := e.repos.Ledger.GetBalance(context.Background(), userID)
	require.NoError(t, err)
	if b == nil {
		return 0
	}
	return b.Balance
}

// assertConsistent checks the balance equals the sum of the user's transactions.
func (e *ledgerEnv) assertConsistent(t *testing.T, userID string) {
	t.Helper()
	sum, err := e.repos.Ledger.SumTransactions(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, e.balance(t, userID), sum, "balance must equal the sum of transactions")
	assert.GreaterOrEqual(t, e.balance(t, userID), int64(0))
}

func strPtr(s string) *string { return &s }
