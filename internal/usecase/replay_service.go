package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/flipmyera/credit-ledger/internal/domain/repository"
)

// ReplayOptions bounds one replay run.
type ReplayOptions struct {
	BatchSize   int
	MaxAttempts int
	StaleAfter  time.Duration
}

// ReplaySummary counts what a replay run did.
type ReplaySummary struct {
	Scanned   int
	Skipped   int
	Processed int
	Ignored   int
	Failed    int
}

// ReplayService re-runs failed and abandoned webhook events from the stored payloads.
type ReplayService struct {
	webhooks repository.WebhookEventRepository
	webhook  *WebhookService
	opts     ReplayOptions
	logger   *zap.Logger
	now      func() time.Time
}

// NewReplayService creates a new replay service
func NewReplayService(webhooks repository.WebhookEventRepository, webhook *WebhookService, opts ReplayOptions, logger *zap.Logger) *ReplayService {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 15 * time.Minute
	}
	return &ReplayService{
		webhooks: webhooks,
		webhook:  webhook,
		opts:     opts,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run replays one batch. An event another worker reclaimed first is skipped.
func (s *ReplayService) Run(ctx context.Context) (*ReplaySummary, error) {
	now := s.now()
	staleBefore := now.Add(-s.opts.StaleAfter)

	events, err := s.webhooks.GetRetryableEvents(ctx, now, staleBefore, s.opts.MaxAttempts, s.opts.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("list retryable webhook events: %w", err)
	}

	summary := &ReplaySummary{Scanned: len(events)}
	for _, stored := range events {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		claimed, err := s.webhooks.Reclaim(ctx, stored.StripeEventID, staleBefore)
		if err != nil {
			return summary, fmt.Errorf("reclaim %s: %w", stored.StripeEventID, err)
		}
		if !claimed {
			summary.Skipped++
			continue
		}

		result, err := s.webhook.ReplayStored(ctx, stored)
		if err != nil {
			summary.Failed++
			s.logger.Warn("Replay attempt failed",
				zap.String("event_id", stored.StripeEventID),
				zap.Int("attempts", stored.ProcessingAttempts+1),
				zap.Error(err))
			continue
		}

		switch result.Outcome {
		case OutcomeIgnored:
			summary.Ignored++
		default:
			summary.Processed++
		}
	}

	s.logger.Info("Webhook replay finished",
		zap.Int("scanned", summary.Scanned),
		zap.Int("processed", summary.Processed),
		zap.Int("ignored", summary.Ignored),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped))
	return summary, nil
}
