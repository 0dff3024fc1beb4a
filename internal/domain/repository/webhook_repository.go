package repository

import (
	"context"
	"time"

	"github.com/flipmyera/credit-ledger/internal/domain/model"
)

// WebhookEventRepository is the event-level idempotency log.
type WebhookEventRepository interface {
	// Claim inserts the event as processing. When the event id already exists it
	// re-claims only a failed event; claimed is false for every other status.
	Claim(ctx context.Context, event *model.WebhookEvent) (claimed bool, existing *model.WebhookEvent, err error)

	// Reclaim takes a stored failed or stale event for replay
	Reclaim(ctx context.Context, stripeEventID string, staleBefore time.Time) (bool, error)

	GetEvent(ctx context.Context, stripeEventID string) (*model.WebhookEvent, error)

	MarkProcessed(ctx context.Context, stripeEventID string) error

	// MarkIgnored completes the event without effect, keeping the reason
	MarkIgnored(ctx context.Context, stripeEventID string, reason string) error

	// MarkFailed records the error and schedules the next retry with exponential backoff
	MarkFailed(ctx context.Context, stripeEventID string, errorMsg string) error

	// GetRetryableEvents returns failed events due for retry and stale pending/processing ones
	GetRetryableEvents(ctx context.Context, now time.Time, staleBefore time.Time, maxAttempts int, limit int) ([]*model.WebhookEvent, error)
}
