package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/flipmyera/credit-ledger/internal/domain/model"
	"github.com/flipmyera/credit-ledger/internal/domain/repository"
)

type pendingRefundRepository struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewPendingRefundRepository creates a new pending refund repository
func NewPendingRefundRepository(db *gorm.DB, logger *zap.Logger) repository.PendingRefundRepository {
	return &pendingRefundRepository{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Defer upserts by charge id. A redelivered or older refund event never lowers the
// stored cumulative amount, and an applied row becomes pending again when it grows.
func (r *pendingRefundRepository) Defer(ctx context.Context, refund *model.PendingRefund) error {
	now := r.now()
	refund.CreatedAt = now
	refund.UpdatedAt = now
	refund.AppliedAt = nil

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "charge_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"event_id", "amount_paid", "amount_refunded", "currency", "applied_at", "updated_at",
			}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: "pending_refunds.amount_refunded < excluded.amount_refunded"},
			}},
		}).
		Create(refund).Error
	if err != nil {
		r.logger.Error("Failed to defer refund",
			zap.String("charge_id", refund.ChargeID),
			zap.String("payment_intent_id", refund.PaymentIntentID),
			zap.Error(err))
		return fmt.Errorf("failed to defer refund: %w", err)
	}
	return nil
}

func (r *pendingRefundRepository) ListUnapplied(ctx context.Context, paymentIntentID string) ([]model.PendingRefund, error) {
	var refunds []model.PendingRefund
	err := r.db.WithContext(ctx).
		Where("payment_intent_id = ? AND applied_at IS NULL", paymentIntentID).
		Order("created_at ASC").
		Find(&refunds).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending refunds: %w", err)
	}
	return refunds, nil
}

func (r *pendingRefundRepository) MarkApplied(ctx context.Context, id uuid.UUID) error {
	now := r.now()
	err := r.db.WithContext(ctx).
		Model(&model.PendingRefund{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"applied_at": now,
			"updated_at": now,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark refund %s applied: %w", id, err)
	}
	return nil
}
