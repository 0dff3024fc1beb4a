package repository

import (
	"context"
	"time"

	"github.com/flipmyera/credit-ledger/internal/domain/model"
)

// Entry describes one ledger transaction to append.
type Entry struct {
	UserID      string
	Amount      int64
	Type        model.TransactionType
	Description string
	// IdempotencyKey, when set, makes the whole operation a no-op on redelivery.
	IdempotencyKey        string
	StripeSessionID       string
	StripePaymentIntentID string
	StripeSubscriptionID  string
	Metadata              map[string]interface{}
}

// Result is the state after a ledger operation.
type Result struct {
	Balance     *model.CreditBalance
	Transaction *model.CreditTransaction
	// Duplicate is true when the idempotency key had already been recorded and
	// nothing was changed. Transaction is then the previously recorded row.
	Duplicate bool
}

// DeductResult extends Result with the outcome of the conditional decrement.
type DeductResult struct {
	Result
	// Success is false when the balance was lower than the amount; nothing was mutated.
	Success bool
}

// RevokeResult extends Result with the credits actually removed.
type RevokeResult struct {
	Result
	Revoked int64
}

// SubscriptionUpdate is the subscription state written to the balance row.
type SubscriptionUpdate struct {
	UserID               string
	Status               model.SubscriptionStatus
	SubscriptionType     string
	StripeSubscriptionID string
	// EventAt is when the provider created the event. An update older than the
	// last applied one is dropped. Zero always applies.
	EventAt time.Time
}

// SubscriptionUpdateResult is the balance row after UpdateSubscription.
type SubscriptionUpdateResult struct {
	Balance *model.CreditBalance
	// Applied is false when a newer subscription event had already been written.
	Applied bool
}

// LedgerRepository owns user_credits and credit_transactions. Every mutating method
// runs in a single database transaction and keeps balance equal to the transaction sum.
type LedgerRepository interface {
	// GetBalance returns the balance row, or nil when the user has none
	GetBalance(ctx context.Context, userID string) (*model.CreditBalance, error)

	// EnsureBalance returns the balance row, creating a zero row when missing
	EnsureBalance(ctx context.Context, userID string) (*model.CreditBalance, error)

	// Grant adds a positive amount
	Grant(ctx context.Context, entry Entry) (*Result, error)

	// Deduct subtracts a positive amount only if the balance covers it, in one conditional update
	Deduct(ctx context.Context, entry Entry) (*DeductResult, error)

	// Revoke subtracts up to entry.Amount, clamping the balance at zero
	Revoke(ctx context.Context, entry Entry) (*RevokeResult, error)

	// RevokeRefund treats entry.Amount as the total credits the refunds of
	// entry.StripePaymentIntentID should have revoked, and revokes only the part
	// earlier refund entries have not, clamping the balance at zero
	RevokeRefund(ctx context.Context, entry Entry) (*RevokeResult, error)

	// Note records a zero-amount audit entry
	Note(ctx context.Context, entry Entry) (*Result, error)

	// UpdateSubscription upserts the subscription fields of the balance row unless a
	// newer subscription event already did
	UpdateSubscription(ctx context.Context, update SubscriptionUpdate) (*SubscriptionUpdateResult, error)

	// HasProcessed reports whether an idempotency key has been recorded
	HasProcessed(ctx context.Context, idempotencyKey string) (bool, error)

	// FindPurchaseByPaymentIntent returns the purchase transaction for a payment intent, or nil
	FindPurchaseByPaymentIntent(ctx context.Context, paymentIntentID string) (*model.CreditTransaction, error)

	// SumTransactions returns the sum of all transaction amounts for a user
	SumTransactions(ctx context.Context, userID string) (int64, error)
}
