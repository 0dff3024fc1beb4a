package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/flipmyera/credit-ledger/internal/adapter/repository"
	domainRepo "github.com/flipmyera/credit-ledger/internal/domain/repository"
)

// Repositories holds all repository instances
type Repositories struct {
	Ledger       domainRepo.LedgerRepository
	Transactions domainRepo.CreditTransactionRepository
	Profiles     domainRepo.ProfileRepository
	Webhooks     domainRepo.WebhookEventRepository
	Refunds      domainRepo.PendingRefundRepository
}

// NewRepositories creates new repository instances with database connection
func NewRepositories(db *gorm.DB, logger *zap.Logger) *Repositories {
	return &Repositories{
		Ledger:       repository.NewLedgerRepository(db, logger.Named("ledger")),
		Transactions: repository.NewCreditTransactionRepository(db, logger),
		Profiles:     repository.NewProfileRepository(db),
		Webhooks:     repository.NewWebhookRepository(db, logger.Named("webhooks")),
		Refunds:      repository.NewPendingRefundRepository(db, logger.Named("refunds")),
	}
}
