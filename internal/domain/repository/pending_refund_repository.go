package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/flipmyera/credit-ledger/internal/domain/model"
)

// PendingRefundRepository parks refunds whose purchase has not been credited yet.
type PendingRefundRepository interface {
	// Defer stores the refund, keeping the larger cumulative amount when the charge
	// is already parked
	Defer(ctx context.Context, refund *model.PendingRefund) error

	// ListUnapplied returns the parked refunds for a payment intent, oldest first
	ListUnapplied(ctx context.Context, paymentIntentID string) ([]model.PendingRefund, error)

	MarkApplied(ctx context.Context, id uuid.UUID) error
}
