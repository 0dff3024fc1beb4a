package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domainerrors "github.com/flipmyera/credit-ledger/internal/domain/errors"
	"github.com/flipmyera/credit-ledger/internal/domain/model"
	domainRepo "github.com/flipmyera/credit-ledger/internal/domain/repository"
)

// Rollback signals. They never leave this package.
var (
	errDuplicateKey  = errors.New("idempotency key already recorded")
	errBalanceTooLow = errors.New("balance lower than amount")
)

// ledgerRepository implements the LedgerRepository interface
type ledgerRepository struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewLedgerRepository creates a new ledger repository instance
func NewLedgerRepository(db *gorm.DB, logger *zap.Logger) domainRepo.LedgerRepository {
	return &ledgerRepository{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// GetBalance retrieves the balance row for a user
func (r *ledgerRepository) GetBalance(ctx context.Context, userID string) (*model.CreditBalance, error) {
	balance, err := loadBalance(r.db.WithContext(ctx), userID)
	if err != nil {
		r.logger.Error("Failed to get credit balance",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get credit balance: %w", err)
	}
	return balance, nil
}

// EnsureBalance returns the balance row, creating an empty one when missing
func (r *ledgerRepository) EnsureBalance(ctx context.Context, userID string) (*model.CreditBalance, error) {
	var balance *model.CreditBalance
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureBalanceRow(tx, userID, r.now()); err != nil {
			return err
		}
		var err error
		balance, err = loadBalance(tx, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure credit balance: %w", err)
	}
	return balance, nil
}

// Grant upserts the balance by +amount and appends the transaction in one database
// transaction. A recorded idempotency key rolls everything back.
func (r *ledgerRepository) Grant(ctx context.Context, entry domainRepo.Entry) (*domainRepo.Result, error) {
	if entry.Amount <= 0 {
		return nil, domainerrors.ErrInvalidAmount
	}

	result := &domainRepo.Result{}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := r.now()
		row := model.CreditBalance{
			UserID:             entry.UserID,
			Balance:            entry.Amount,
			SubscriptionStatus: model.SubscriptionStatusNone,
			SubscriptionType:   model.SubscriptionTypeFree,
			TotalEarned:        entry.Amount,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"balance":      gorm.Expr("user_credits.balance + ?", entry.Amount),
				"total_earned": gorm.Expr("user_credits.total_earned + ?", entry.Amount),
				"updated_at":   now,
			}),
		}).Create(&row).Error
		if err != nil {
			return fmt.Errorf("failed to upsert balance: %w", err)
		}

		balance, err := loadBalance(tx, entry.UserID)
		if err != nil {
			return err
		}

		txn, err := appendTransaction(tx, entry, entry.Amount, balance.Balance, now)
		if err != nil {
			return err
		}

		result.Balance = balance
		result.Transaction = txn
		return nil
	})

	if errors.Is(err, errDuplicateKey) {
		return r.duplicateResult(ctx, entry)
	}
	if err != nil {
		r.logger.Error("Failed to grant credits",
			zap.String("user_id", entry.UserID),
			zap.Int64("amount", entry.Amount),
			zap.String("idempotency_key", entry.IdempotencyKey),
			zap.Error(err))
		return nil, fmt.Errorf("failed to grant credits: %w", err)
	}

	r.logger.Info("Credits granted",
		zap.String("user_id", entry.UserID),
		zap.Int64("amount", entry.Amount),
		zap.String("transaction_type", string(entry.Type)),
		zap.Int64("balance", result.Balance.Balance))
	return result, nil
}

// Deduct decrements with a single conditional UPDATE. When the balance does not
// cover the amount no row matches and nothing is written.
func (r *ledgerRepository) Deduct(ctx context.Context, entry domainRepo.Entry) (*domainRepo.DeductResult, error) {
	if entry.Amount <= 0 {
		return nil, domainerrors.ErrInvalidAmount
	}

	result := &domainRepo.DeductResult{}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if entry.IdempotencyKey != "" {
			seen, err := keyExists(tx, entry.IdempotencyKey)
			if err != nil {
				return err
			}
			if seen {
				return errDuplicateKey
			}
		}

		now := r.now()
		res := tx.Model(&model.CreditBalance{}).
			Where("user_id = ? AND balance >= ?", entry.UserID, entry.Amount).
			Updates(map[string]interface{}{
				"balance":     gorm.Expr("balance - ?", entry.Amount),
				"total_spent": gorm.Expr("total_spent + ?", entry.Amount),
				"updated_at":  now,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to decrement balance: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return errBalanceTooLow
		}

		balance, err := loadBalance(tx, entry.UserID)
		if err != nil {
			return err
		}

		txn, err := appendTransaction(tx, entry, -entry.Amount, balance.Balance, now)
		if err != nil {
			return err
		}

		result.Success = true
		result.Balance = balance
		result.Transaction = txn
		return nil
	})

	switch {
	case errors.Is(err, errDuplicateKey):
		dup, err := r.duplicateResult(ctx, entry)
		if err != nil {
			return nil, err
		}
		return &domainRepo.DeductResult{Result: *dup, Success: true}, nil
	case errors.Is(err, errBalanceTooLow):
		balance, err := r.GetBalance(ctx, entry.UserID)
		if err != nil {
			return nil, err
		}
		r.logger.Info("Insufficient credits for deduction",
			zap.String("user_id", entry.UserID),
			zap.Int64("requested", entry.Amount),
			zap.Int64("available", balanceOf(balance)))
		return &domainRepo.DeductResult{Result: domainRepo.Result{Balance: balance}}, nil
	case err != nil:
		r.logger.Error("Failed to deduct credits",
			zap.String("user_id", entry.UserID),
			zap.Int64("amount", entry.Amount),
			zap.Error(err))
		return nil, fmt.Errorf("failed to deduct credits: %w", err)
	}

	return result, nil
}

// Revoke locks the balance row and removes min(balance, amount). The recorded
// transaction carries the credits actually removed so the ledger sum stays exact.
func (r *ledgerRepository) Revoke(ctx context.Context, entry domainRepo.Entry) (*domainRepo.RevokeResult, error) {
	if entry.Amount <= 0 {
		return nil, domainerrors.ErrInvalidAmount
	}
	return r.revoke(ctx, entry, func(*gorm.DB) (int64, error) {
		return entry.Amount, nil
	})
}

// RevokeRefund revokes what the refunds of a payment intent still owe. Prior
// refund entries are summed under the balance row lock, so concurrent refunds of
// one purchase cannot claim the same credits.
func (r *ledgerRepository) RevokeRefund(ctx context.Context, entry domainRepo.Entry) (*domainRepo.RevokeResult, error) {
	if entry.Amount <= 0 {
		return nil, domainerrors.ErrInvalidAmount
	}
	if entry.StripePaymentIntentID == "" {
		return nil, fmt.Errorf("refund revocation without payment intent: %w", domainerrors.ErrInvalidAmount)
	}

	target := entry.Amount
	metadata := make(map[string]interface{}, len(entry.Metadata)+1)
	for k, v := range entry.Metadata {
		metadata[k] = v
	}
	metadata["revocation_target"] = target
	entry.Metadata = metadata

	return r.revoke(ctx, entry, func(tx *gorm.DB) (int64, error) {
		if entry.IdempotencyKey != "" {
			seen, err := keyExists(tx, entry.IdempotencyKey)
			if err != nil {
				return 0, err
			}
			if seen {
				return 0, errDuplicateKey
			}
		}
		prior, err := revokedForRefunds(tx, entry.StripePaymentIntentID)
		if err != nil {
			return 0, err
		}
		return target - prior, nil
	})
}

// revoke runs one clamped revocation. owed is evaluated once the balance row is
// locked; a non-positive result writes nothing.
func (r *ledgerRepository) revoke(ctx context.Context, entry domainRepo.Entry, owed func(tx *gorm.DB) (int64, error)) (*domainRepo.RevokeResult, error) {
	result := &domainRepo.RevokeResult{}
	requested := int64(0)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := r.now()
		if err := ensureBalanceRow(tx, entry.UserID, now); err != nil {
			return err
		}

		var current model.CreditBalance
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", entry.UserID).
			First(&current).Error
		if err != nil {
			return fmt.Errorf("failed to lock balance: %w", err)
		}

		requested, err = owed(tx)
		if err != nil {
			return err
		}
		if requested <= 0 {
			result.Balance = &current
			return nil
		}

		revoked := requested
		if current.Balance < revoked {
			revoked = current.Balance
		}

		if revoked > 0 {
			err := tx.Model(&model.CreditBalance{}).
				Where("user_id = ?", entry.UserID).
				Updates(map[string]interface{}{
					"balance":    gorm.Expr("balance - ?", revoked),
					"updated_at": now,
				}).Error
			if err != nil {
				return fmt.Errorf("failed to revoke credits: %w", err)
			}
		}

		metadata := make(map[string]interface{}, len(entry.Metadata)+1)
		for k, v := range entry.Metadata {
			metadata[k] = v
		}
		metadata["requested_revocation"] = requested

		recorded := entry
		recorded.Metadata = metadata
		txn, err := appendTransaction(tx, recorded, -revoked, current.Balance-revoked, now)
		if err != nil {
			return err
		}

		current.Balance -= revoked
		current.UpdatedAt = now
		result.Balance = &current
		result.Transaction = txn
		result.Revoked = revoked
		return nil
	})

	if errors.Is(err, errDuplicateKey) {
		dup, err := r.duplicateResult(ctx, entry)
		if err != nil {
			return nil, err
		}
		return &domainRepo.RevokeResult{Result: *dup, Revoked: -dup.Transaction.Amount}, nil
	}
	if err != nil {
		r.logger.Error("Failed to revoke credits",
			zap.String("user_id", entry.UserID),
			zap.Int64("amount", entry.Amount),
			zap.Error(err))
		return nil, fmt.Errorf("failed to revoke credits: %w", err)
	}

	if result.Transaction != nil && result.Revoked < requested {
		r.logger.Warn("Revocation clamped at zero balance",
			zap.String("user_id", entry.UserID),
			zap.Int64("requested", requested),
			zap.Int64("revoked", result.Revoked))
	}
	return result, nil
}

// Note appends a zero-amount transaction for audit purposes
func (r *ledgerRepository) Note(ctx context.Context, entry domainRepo.Entry) (*domainRepo.Result, error) {
	result := &domainRepo.Result{}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := r.now()
		if err := ensureBalanceRow(tx, entry.UserID, now); err != nil {
			return err
		}
		balance, err := loadBalance(tx, entry.UserID)
		if err != nil {
			return err
		}
		txn, err := appendTransaction(tx, entry, 0, balance.Balance, now)
		if err != nil {
			return err
		}
		result.Balance = balance
		result.Transaction = txn
		return nil
	})

	if errors.Is(err, errDuplicateKey) {
		return r.duplicateResult(ctx, entry)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record ledger note: %w", err)
	}
	return result, nil
}

// UpdateSubscription upserts subscription fields. Empty type or subscription id
// leave the stored values untouched, so out-of-order events cannot blank them.
// With an event time, the update only lands when it is not older than the last
// applied subscription event.
func (r *ledgerRepository) UpdateSubscription(ctx context.Context, update domainRepo.SubscriptionUpdate) (*domainRepo.SubscriptionUpdateResult, error) {
	now := r.now()

	row := model.CreditBalance{
		UserID:             update.UserID,
		SubscriptionStatus: update.Status,
		SubscriptionType:   update.SubscriptionType,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if row.SubscriptionType == "" {
		row.SubscriptionType = model.SubscriptionTypeFree
	}
	if update.StripeSubscriptionID != "" {
		row.StripeSubscriptionID = &update.StripeSubscriptionID
	}

	columns := []string{"subscription_status", "updated_at"}
	if update.SubscriptionType != "" {
		columns = append(columns, "subscription_type")
	}
	if update.StripeSubscriptionID != "" {
		columns = append(columns, "stripe_subscription_id")
	}

	onConflict := clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}}
	if !update.EventAt.IsZero() {
		eventAt := update.EventAt.UTC()
		row.SubscriptionEventAt = &eventAt
		columns = append(columns, "subscription_event_at")
		onConflict.Where = clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "(user_credits.subscription_event_at IS NULL OR user_credits.subscription_event_at <= excluded.subscription_event_at)"},
		}}
	}
	onConflict.DoUpdates = clause.AssignmentColumns(columns)

	result := &domainRepo.SubscriptionUpdateResult{}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(onConflict).Create(&row)
		if res.Error != nil {
			return res.Error
		}
		result.Applied = res.RowsAffected > 0

		var err error
		result.Balance, err = loadBalance(tx, update.UserID)
		return err
	})
	if err != nil {
		r.logger.Error("Failed to update subscription",
			zap.String("user_id", update.UserID),
			zap.String("status", string(update.Status)),
			zap.Error(err))
		return nil, fmt.Errorf("failed to update subscription: %w", err)
	}

	if !result.Applied {
		r.logger.Info("Stale subscription update dropped",
			zap.String("user_id", update.UserID),
			zap.String("status", string(update.Status)),
			zap.Time("event_at", update.EventAt))
	}
	return result, nil
}

// HasProcessed reports whether an idempotency key has been recorded
func (r *ledgerRepository) HasProcessed(ctx context.Context, idempotencyKey string) (bool, error) {
	seen, err := keyExists(r.db.WithContext(ctx), idempotencyKey)
	if err != nil {
		return false, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	return seen, nil
}

// FindPurchaseByPaymentIntent returns the purchase transaction for a payment intent
func (r *ledgerRepository) FindPurchaseByPaymentIntent(ctx context.Context, paymentIntentID string) (*model.CreditTransaction, error) {
	var txn model.CreditTransaction
	err := r.db.WithContext(ctx).
		Where("stripe_payment_intent_id = ? AND transaction_type = ?", paymentIntentID, model.TransactionTypePurchase).
		Order("created_at ASC").
		First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find purchase: %w", err)
	}
	return &txn, nil
}

// SumTransactions returns the sum of all transaction amounts for a user
func (r *ledgerRepository) SumTransactions(ctx context.Context, userID string) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).
		Model(&model.CreditTransaction{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("user_id = ?", userID).
		Scan(&sum).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum transactions: %w", err)
	}
	return sum, nil
}

func (r *ledgerRepository) duplicateResult(ctx context.Context, entry domainRepo.Entry) (*domainRepo.Result, error) {
	db := r.db.WithContext(ctx)

	var existing model.CreditTransaction
	if err := db.Where("idempotency_key = ?", entry.IdempotencyKey).First(&existing).Error; err != nil {
		return nil, fmt.Errorf("failed to load transaction for duplicate key: %w", err)
	}

	balance, err := loadBalance(db, existing.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load balance for duplicate key: %w", err)
	}

	r.logger.Info("Ledger operation already recorded",
		zap.String("idempotency_key", entry.IdempotencyKey),
		zap.String("user_id", existing.UserID),
		zap.String("transaction_id", existing.ID.String()))

	return &domainRepo.Result{Balance: balance, Transaction: &existing, Duplicate: true}, nil
}

// appendTransaction inserts the ledger row. A conflicting idempotency key inserts
// nothing and returns errDuplicateKey so the caller's transaction rolls back.
func appendTransaction(tx *gorm.DB, entry domainRepo.Entry, amount, balanceAfter int64, now time.Time) (*model.CreditTransaction, error) {
	txn := &model.CreditTransaction{
		UserID:                  entry.UserID,
		Amount:                  amount,
		TransactionType:         entry.Type,
		Description:             entry.Description,
		IdempotencyKey:          optional(entry.IdempotencyKey),
		StripeSessionID:         optional(entry.StripeSessionID),
		StripePaymentIntentID:   optional(entry.StripePaymentIntentID),
		StripeSubscriptionID:    optional(entry.StripeSubscriptionID),
		Metadata:                model.NewMetadata(entry.Metadata),
		BalanceAfterTransaction: balanceAfter,
		CreatedAt:               now,
	}

	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "idempotency_key"}},
		DoNothing: true,
	}).Create(txn)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to insert transaction: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, errDuplicateKey
	}
	return txn, nil
}

// revokedForRefunds sums what earlier refund entries of a payment intent asked to
// revoke. Requested, not removed, so credits a clamp could not take are not chased
// again by the next partial refund.
func revokedForRefunds(tx *gorm.DB, paymentIntentID string) (int64, error) {
	var refunds []model.CreditTransaction
	err := tx.Select("amount", "metadata").
		Where("stripe_payment_intent_id = ? AND transaction_type = ?", paymentIntentID, model.TransactionTypeRefund).
		Find(&refunds).Error
	if err != nil {
		return 0, fmt.Errorf("failed to load prior refunds: %w", err)
	}

	var total int64
	for i := range refunds {
		total += requestedOf(&refunds[i])
	}
	return total, nil
}

// requestedOf returns metadata.requested_revocation, or the removed amount for
// entries written without it.
func requestedOf(txn *model.CreditTransaction) int64 {
	if v, ok := txn.MetadataMap()["requested_revocation"].(float64); ok {
		return int64(v)
	}
	return -txn.Amount
}

func ensureBalanceRow(tx *gorm.DB, userID string, now time.Time) error {
	row := model.CreditBalance{
		UserID:             userID,
		SubscriptionStatus: model.SubscriptionStatusNone,
		SubscriptionType:   model.SubscriptionTypeFree,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to create balance row: %w", err)
	}
	return nil
}

func loadBalance(db *gorm.DB, userID string) (*model.CreditBalance, error) {
	var balance model.CreditBalance
	err := db.Where("user_id = ?", userID).First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &balance, nil
}

func keyExists(db *gorm.DB, key string) (bool, error) {
	var count int64
	err := db.Model(&model.CreditTransaction{}).
		Where("idempotency_key = ?", key).
		Count(&count).Error
	return count > 0, err
}

func balanceOf(b *model.CreditBalance) int64 {
	if b == nil {
		return 0
	}
	return b.Balance
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
