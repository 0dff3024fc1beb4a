package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/flipmyera/credit-ledger/internal/domain/model"
	"github.com/flipmyera/credit-ledger/internal/domain/repository"
)

type webhookRepository struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewWebhookRepository creates a new webhook repository
func NewWebhookRepository(db *gorm.DB, logger *zap.Logger) repository.WebhookEventRepository {
	return &webhookRepository{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Claim inserts the event first and treats a unique conflict as "already seen".
// Only failed events can be claimed again, and only by one caller.
func (r *webhookRepository) Claim(ctx context.Context, event *model.WebhookEvent) (bool, *model.WebhookEvent, error) {
	now := r.now()
	event.Status = model.WebhookStatusProcessing
	event.ProcessingAttempts = 1
	event.CreatedAt = now
	event.UpdatedAt = now

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "stripe_event_id"}},
			DoNothing: true,
		}).
		Create(event)
	if res.Error != nil {
		r.logger.Error("Failed to save webhook event",
			zap.String("event_id", event.StripeEventID),
			zap.String("event_type", event.EventType),
			zap.Error(res.Error))
		return false, nil, fmt.Errorf("failed to save webhook event: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return true, event, nil
	}

	reclaim := r.db.WithContext(ctx).
		Model(&model.WebhookEvent{}).
		Where("stripe_event_id = ? AND status = ?", event.StripeEventID, model.WebhookStatusFailed).
		Updates(map[string]interface{}{
			"status":              model.WebhookStatusProcessing,
			"processing_attempts": gorm.Expr("processing_attempts + 1"),
			"next_retry_at":       nil,
			"updated_at":          now,
		})
	if reclaim.Error != nil {
		return false, nil, fmt.Errorf("failed to reclaim webhook event: %w", reclaim.Error)
	}

	existing, err := r.GetEvent(ctx, event.StripeEventID)
	if err != nil {
		return false, nil, err
	}
	return reclaim.RowsAffected == 1, existing, nil
}

// Reclaim takes a stored event for replay: failed events, or pending/processing
// ones last touched before staleBefore. It reports whether this caller won it.
func (r *webhookRepository) Reclaim(ctx context.Context, eventID string, staleBefore time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.WebhookEvent{}).
		Where("stripe_event_id = ? AND (status = ? OR (status IN (?, ?) AND updated_at < ?))",
			eventID, model.WebhookStatusFailed,
			model.WebhookStatusPending, model.WebhookStatusProcessing, staleBefore).
		Updates(map[string]interface{}{
			"status":              model.WebhookStatusProcessing,
			"processing_attempts": gorm.Expr("processing_attempts + 1"),
			"next_retry_at":       nil,
			"updated_at":          r.now(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to reclaim webhook event: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// GetEvent retrieves a webhook event by ID
func (r *webhookRepository) GetEvent(ctx context.Context, eventID string) (*model.WebhookEvent, error) {
	var event model.WebhookEvent

	err := r.db.WithContext(ctx).
		Where("stripe_event_id = ?", eventID).
		First(&event).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get webhook event",
			zap.String("event_id", eventID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get webhook event: %w", err)
	}

	return &event, nil
}

// MarkProcessed marks a webhook event as processed
func (r *webhookRepository) MarkProcessed(ctx context.Context, eventID string) error {
	return r.finish(ctx, eventID, model.WebhookStatusCompleted, nil)
}

// MarkIgnored completes a webhook event that had nothing to act on
func (r *webhookRepository) MarkIgnored(ctx context.Context, eventID string, reason string) error {
	return r.finish(ctx, eventID, model.WebhookStatusIgnored, &reason)
}

func (r *webhookRepository) finish(ctx context.Context, eventID string, status model.WebhookStatus, reason *string) error {
	now := r.now()

	result := r.db.WithContext(ctx).
		Model(&model.WebhookEvent{}).
		Where("stripe_event_id = ?", eventID).
		Updates(map[string]interface{}{
			"status":        status,
			"processed_at":  &now,
			"last_error":    reason,
			"next_retry_at": nil,
			"updated_at":    now,
		})

	if result.Error != nil {
		r.logger.Error("Failed to mark webhook event",
			zap.String("event_id", eventID),
			zap.String("status", string(status)),
			zap.Error(result.Error))
		return fmt.Errorf("failed to mark webhook as %s: %w", status, result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("webhook event not found: %s", eventID)
	}

	return nil
}

// MarkFailed marks a webhook event as failed
func (r *webhookRepository) MarkFailed(ctx context.Context, eventID string, errorMsg string) error {
	var event model.WebhookEvent
	if err := r.db.WithContext(ctx).
		Where("stripe_event_id = ?", eventID).
		First(&event).Error; err != nil {
		r.logger.Error("Failed to get webhook event for failure update",
			zap.String("event_id", eventID),
			zap.Error(err))
		return fmt.Errorf("failed to get webhook event: %w", err)
	}

	now := r.now()
	nextRetry := now.Add(RetryBackoff(event.ProcessingAttempts))

	result := r.db.WithContext(ctx).
		Model(&model.WebhookEvent{}).
		Where("stripe_event_id = ?", eventID).
		Updates(map[string]interface{}{
			"status":        model.WebhookStatusFailed,
			"last_error":    &errorMsg,
			"next_retry_at": &nextRetry,
			"updated_at":    now,
		})

	if result.Error != nil {
		r.logger.Error("Failed to mark webhook as failed",
			zap.String("event_id", eventID),
			zap.Error(result.Error))
		return fmt.Errorf("failed to mark webhook as failed: %w", result.Error)
	}

	return nil
}

// RetryBackoff returns the delay before the next attempt: 5 minutes doubling per
// attempt, capped at 24 hours.
func RetryBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		return 24 * time.Hour
	}
	retryMinutes := 5 * (1 << attempts)
	if retryMinutes > 1440 {
		retryMinutes = 1440
	}
	return time.Duration(retryMinutes) * time.Minute
}

// GetRetryableEvents retrieves failed events due for retry plus pending or
// processing events abandoned before staleBefore
func (r *webhookRepository) GetRetryableEvents(ctx context.Context, now time.Time, staleBefore time.Time, maxAttempts int, limit int) ([]*model.WebhookEvent, error) {
	var events []*model.WebhookEvent

	query := r.db.WithContext(ctx).
		Where("(status = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)) OR (status IN (?, ?) AND updated_at < ?)",
			model.WebhookStatusFailed, now,
			model.WebhookStatusPending, model.WebhookStatusProcessing, staleBefore).
		Order("created_at ASC")

	if maxAttempts > 0 {
		query = query.Where("processing_attempts < ?", maxAttempts)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&events).Error; err != nil {
		r.logger.Error("Failed to get retryable webhook events",
			zap.Error(err))
		return nil, fmt.Errorf("failed to get retryable webhook events: %w", err)
	}

	return events, nil
}
