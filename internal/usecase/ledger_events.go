package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/flipmyera/credit-ledger/internal/domain/model"
	"github.com/flipmyera/credit-ledger/pkg/messaging"
)

// LedgerEvent is published after a ledger mutation commits. Consumers run the
// slow side effects, e.g. purchase confirmation emails.
type LedgerEvent struct {
	TransactionID   string                `json:"transaction_id"`
	UserID          string                `json:"user_id"`
	TransactionType model.TransactionType `json:"transaction_type"`
	Amount          int64                 `json:"amount"`
	BalanceAfter    int64                 `json:"balance_after"`
	IdempotencyKey  string                `json:"idempotency_key,omitempty"`
	OccurredAt      time.Time             `json:"occurred_at"`
}

// EventPublisher publishes ledger events to a fixed channel. Failures are logged,
// never returned: the ledger row is already committed.
type EventPublisher struct {
	publisher messaging.Publisher
	channel   string
	logger    *zap.Logger
}

// NewEventPublisher creates an EventPublisher. A nil publisher disables publishing.
func NewEventPublisher(publisher messaging.Publisher, channel string, logger *zap.Logger) *EventPublisher {
	if publisher == nil {
		publisher = messaging.NopPublisher{}
	}
	return &EventPublisher{
		publisher: publisher,
		channel:   channel,
		logger:    logger,
	}
}

// PublishTransaction publishes txn unless it is nil.
func (p *EventPublisher) PublishTransaction(ctx context.Context, txn *model.CreditTransaction) {
	if p == nil || txn == nil {
		return
	}

	evt := LedgerEvent{
		TransactionID:   txn.ID.String(),
		UserID:          txn.UserID,
		TransactionType: txn.TransactionType,
		Amount:          txn.Amount,
		BalanceAfter:    txn.BalanceAfterTransaction,
		OccurredAt:      txn.CreatedAt,
	}
	if txn.IdempotencyKey != nil {
		evt.IdempotencyKey = *txn.IdempotencyKey
	}

	if err := p.publisher.Publish(ctx, p.channel, evt); err != nil {
		p.logger.Warn("Failed to publish ledger event",
			zap.String("transaction_id", evt.TransactionID),
			zap.String("user_id", evt.UserID),
			zap.Error(err))
	}
}
