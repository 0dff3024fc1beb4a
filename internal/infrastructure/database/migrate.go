package database

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/flipmyera/credit-ledger/internal/domain/model"
)

// Models lists every table owned by the ledger.
func Models() []interface{} {
	return []interface{}{
		&model.Profile{},
		&model.CreditBalance{},
		&model.CreditTransaction{},
		&model.WebhookEvent{},
		&model.PendingRefund{},
	}
}

// Migrate runs database migrations. Postgres additionally gets the constraints and
// triggers that enforce the ledger invariants at the storage layer.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	logger.Info("Running database migrations...",
		zap.String("dialect", db.Dialector.Name()))

	if err := db.AutoMigrate(Models()...); err != nil {
		logger.Error("Failed to run migrations", zap.Error(err))
		return fmt.Errorf("failed to auto-migrate: %w", err)
	}

	if db.Dialector.Name() != "postgres" {
		logger.Info("Database migrations completed")
		return nil
	}

	if err := createConstraints(db); err != nil {
		logger.Error("Failed to create constraints", zap.Error(err))
		return err
	}

	if err := createCustomIndexes(db); err != nil {
		logger.Error("Failed to create custom indexes", zap.Error(err))
		return err
	}

	if err := createAppendOnlyTrigger(db, logger); err != nil {
		logger.Error("Failed to create append-only trigger", zap.Error(err))
		return err
	}

	logger.Info("Database migrations completed")
	return nil
}

func createConstraints(db *gorm.DB) error {
	types := make([]string, 0, len(model.TransactionTypes))
	for _, t := range model.TransactionTypes {
		types = append(types, "'"+string(t)+"'")
	}

	statements := []string{
		`ALTER TABLE credit_transactions DROP CONSTRAINT IF EXISTS chk_credit_transactions_type`,
		fmt.Sprintf(`ALTER TABLE credit_transactions ADD CONSTRAINT chk_credit_transactions_type CHECK (transaction_type IN (%s))`,
			strings.Join(types, ", ")),
		`ALTER TABLE webhook_events DROP CONSTRAINT IF EXISTS chk_webhook_events_status`,
		`ALTER TABLE webhook_events ADD CONSTRAINT chk_webhook_events_status CHECK (status IN ('pending', 'processing', 'completed', 'failed', 'ignored'))`,
		`ALTER TABLE user_credits DROP CONSTRAINT IF EXISTS chk_user_credits_subscription_status`,
		`ALTER TABLE user_credits ADD CONSTRAINT chk_user_credits_subscription_status CHECK (subscription_status IN ('active', 'cancelled', 'past_due', 'none'))`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to apply constraint: %w", err)
		}
	}
	return nil
}

// createCustomIndexes creates custom indexes that GORM doesn't handle automatically
func createCustomIndexes(db *gorm.DB) error {
	statements := []string{
		`CREATE INDEX IF NOT EXISTS idx_profiles_email_lower ON profiles (LOWER(email))`,
		`CREATE INDEX IF NOT EXISTS idx_webhook_events_retryable ON webhook_events (created_at) WHERE status IN ('pending', 'processing', 'failed')`,
		`CREATE INDEX IF NOT EXISTS idx_credit_transactions_purchase_intent ON credit_transactions (stripe_payment_intent_id) WHERE transaction_type = 'purchase'`,
		`CREATE INDEX IF NOT EXISTS idx_credit_transactions_refund_intent ON credit_transactions (stripe_payment_intent_id) WHERE transaction_type = 'refund'`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// createAppendOnlyTrigger makes credit_transactions reject UPDATE and DELETE.
func createAppendOnlyTrigger(db *gorm.DB, logger *zap.Logger) error {
	functionSQL := `
CREATE OR REPLACE FUNCTION reject_credit_transaction_mutation() RETURNS TRIGGER AS $$
BEGIN
    RAISE EXCEPTION 'credit_transactions is append-only: % rejected', TG_OP
        USING ERRCODE = 'insufficient_privilege';
END;
$$ LANGUAGE plpgsql;`

	if err := db.Exec(functionSQL).Error; err != nil {
		return fmt.Errorf("failed to create trigger function: %w", err)
	}

	if err := db.Exec(`DROP TRIGGER IF EXISTS credit_transactions_append_only ON credit_transactions`).Error; err != nil {
		logger.Warn("Failed to drop existing trigger", zap.Error(err))
	}

	triggerSQL := `
CREATE TRIGGER credit_transactions_append_only
    BEFORE UPDATE OR DELETE ON credit_transactions
    FOR EACH ROW EXECUTE FUNCTION reject_credit_transaction_mutation();`

	if err := db.Exec(triggerSQL).Error; err != nil {
		return fmt.Errorf("failed to create trigger: %w", err)
	}

	logger.Info("Created append-only trigger", zap.String("table", "credit_transactions"))
	return nil
}
