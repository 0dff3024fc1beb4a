package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/flipmyera/credit-ledger/internal/domain/billing"
	domainErrors "github.com/flipmyera/credit-ledger/internal/domain/errors"
	"github.com/flipmyera/credit-ledger/internal/domain/event"
	"github.com/flipmyera/credit-ledger/internal/domain/model"
	"github.com/flipmyera/credit-ledger/internal/domain/provider"
	"github.com/flipmyera/credit-ledger/internal/domain/repository"
)

// DeliveryOutcome is what happened to one webhook delivery.
type DeliveryOutcome string

const (
	OutcomeProcessed DeliveryOutcome = "processed"
	OutcomeIgnored   DeliveryOutcome = "ignored"
	OutcomeDuplicate DeliveryOutcome = "duplicate"
	OutcomeFailed    DeliveryOutcome = "failed"
)

// DeliveryResult summarises a handled webhook delivery.
type DeliveryResult struct {
	EventID   string
	EventType string
	Outcome   DeliveryOutcome
	Reason    string
}

// CheckoutResult is the outcome of the purchase path.
type CheckoutResult struct {
	Success   bool
	Credits   int64
	UserID    string
	Duplicate bool
	// Revoked counts credits taken back by refunds that arrived before the checkout.
	Revoked int64
}

// SubscriptionResult is the outcome of the subscription path.
type SubscriptionResult struct {
	UserID    string
	Status    model.SubscriptionStatus
	Allocated int64
	Duplicate bool
	// Stale is true when a newer subscription event had already been applied.
	Stale bool
}

// RefundResult is the outcome of the revocation path.
type RefundResult struct {
	UserID    string
	Revoked   int64
	Balance   int64
	Duplicate bool
	// Deferred is true when the purchase is not credited yet; the refund is
	// applied when its checkout arrives.
	Deferred bool
}

// WebhookService verifies, deduplicates and routes payment provider events.
type WebhookService struct {
	webhooks  repository.WebhookEventRepository
	ledger    repository.LedgerRepository
	refunds   repository.PendingRefundRepository
	credits   *CreditService
	resolver  *IdentityResolver
	verifier  provider.WebhookVerifier
	lineItems provider.CheckoutSessionFetcher
	catalog   provider.ProductCatalog
	logger    *zap.Logger
}

// NewWebhookService creates a new webhook service
func NewWebhookService(
	webhooks repository.WebhookEventRepository,
	ledger repository.LedgerRepository,
	refunds repository.PendingRefundRepository,
	credits *CreditService,
	resolver *IdentityResolver,
	verifier provider.WebhookVerifier,
	lineItems provider.CheckoutSessionFetcher,
	catalog provider.ProductCatalog,
	logger *zap.Logger,
) *WebhookService {
	return &WebhookService{
		webhooks:  webhooks,
		ledger:    ledger,
		refunds:   refunds,
		credits:   credits,
		resolver:  resolver,
		verifier:  verifier,
		lineItems: lineItems,
		catalog:   catalog,
		logger:    logger,
	}
}

// HandleDelivery processes one signed delivery. Errors wrapping ErrInvalidSignature
// or ErrUnusablePayload mean the request itself was bad; any other error is an
// infrastructure failure and the provider should redeliver.
func (s *WebhookService) HandleDelivery(ctx context.Context, payload []byte, signature string) (*DeliveryResult, error) {
	evt, err := s.verifier.VerifyEvent(payload, signature)
	if err != nil {
		return nil, err
	}

	meta := evt.Meta()
	record := &model.WebhookEvent{
		StripeEventID: meta.ID,
		EventType:     meta.Type,
		Payload:       datatypes.JSON(payload),
	}
	if meta.APIVersion != "" {
		record.APIVersion = &meta.APIVersion
	}
	if !meta.Created.IsZero() {
		created := meta.Created
		record.StripeCreatedAt = &created
	}

	claimed, existing, err := s.webhooks.Claim(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("claim webhook event %s: %w", meta.ID, err)
	}
	if !claimed {
		status := ""
		if existing != nil {
			status = string(existing.Status)
		}
		s.logger.Info("Duplicate webhook delivery",
			zap.String("event_id", meta.ID),
			zap.String("event_type", meta.Type),
			zap.String("stored_status", status))
		return &DeliveryResult{
			EventID:   meta.ID,
			EventType: meta.Type,
			Outcome:   OutcomeDuplicate,
			Reason:    domainErrors.ErrDuplicateEvent.Error(),
		}, nil
	}

	return s.process(ctx, evt)
}

// ReplayStored re-runs an event already claimed from the event log.
func (s *WebhookService) ReplayStored(ctx context.Context, stored *model.WebhookEvent) (*DeliveryResult, error) {
	evt, err := s.verifier.ParseEvent(stored.Payload)
	if err != nil {
		reason := err.Error()
		if markErr := s.webhooks.MarkIgnored(ctx, stored.StripeEventID, reason); markErr != nil {
			return nil, markErr
		}
		return &DeliveryResult{
			EventID:   stored.StripeEventID,
			EventType: stored.EventType,
			Outcome:   OutcomeIgnored,
			Reason:    reason,
		}, nil
	}
	return s.process(ctx, evt)
}

func (s *WebhookService) process(ctx context.Context, evt event.Event) (*DeliveryResult, error) {
	meta := evt.Meta()
	result := &DeliveryResult{EventID: meta.ID, EventType: meta.Type}
	log := s.logger.With(zap.String("event_id", meta.ID), zap.String("event_type", meta.Type))

	start := time.Now()
	err := s.Dispatch(ctx, evt)

	_, unsupported := evt.(event.Unsupported)
	switch {
	case err == nil && unsupported:
		result.Outcome = OutcomeIgnored
		result.Reason = "unhandled event type"
		s.finish(log, s.webhooks.MarkIgnored(ctx, meta.ID, result.Reason))
	case err == nil:
		result.Outcome = OutcomeProcessed
		s.finish(log, s.webhooks.MarkProcessed(ctx, meta.ID))
	case domainErrors.IsAcknowledgeable(err):
		result.Outcome = OutcomeIgnored
		result.Reason = err.Error()
		log.Warn("Webhook acknowledged without effect", zap.Error(err))
		s.finish(log, s.webhooks.MarkIgnored(ctx, meta.ID, result.Reason))
	default:
		result.Outcome = OutcomeFailed
		result.Reason = err.Error()
		log.Error("Webhook processing failed", zap.Error(err))
		s.finish(log, s.webhooks.MarkFailed(ctx, meta.ID, result.Reason))
		return result, err
	}

	log.Info("Webhook handled",
		zap.String("outcome", string(result.Outcome)),
		zap.Duration("elapsed", time.Since(start)))
	return result, nil
}

// finish logs bookkeeping failures. The ledger effects already committed and are
// idempotent, so a stale status is repaired by the next replay.
func (s *WebhookService) finish(log *zap.Logger, err error) {
	if err != nil {
		log.Error("Failed to update webhook event status", zap.Error(err))
	}
}

// Dispatch routes a parsed event to its handler.
func (s *WebhookService) Dispatch(ctx context.Context, evt event.Event) error {
	switch e := evt.(type) {
	case event.CheckoutCompleted:
		_, err := s.HandleCheckoutCompleted(ctx, e)
		return err
	case event.SubscriptionChanged:
		_, err := s.HandleSubscriptionChanged(ctx, e)
		return err
	case event.ChargeRefunded:
		_, err := s.HandleChargeRefunded(ctx, e)
		return err
	case event.InvoicePaymentFailed:
		return s.HandleInvoicePaymentFailed(ctx, e)
	case event.Unsupported:
		return nil
	default:
		return fmt.Errorf("unknown event kind %T: %w", evt, domainErrors.ErrUnusablePayload)
	}
}

// HandleCheckoutCompleted grants purchased credits once per checkout session.
func (s *WebhookService) HandleCheckoutCompleted(ctx context.Context, e event.CheckoutCompleted) (*CheckoutResult, error) {
	profile, err := s.resolver.Resolve(ctx, e.Customer)
	if err != nil {
		return nil, fmt.Errorf("checkout %s: %w", e.SessionID, err)
	}

	if e.Mode == event.CheckoutModeSubscription {
		// Subscription credits arrive with the subscription events.
		return &CheckoutResult{Success: true, UserID: profile.ID}, nil
	}
	if e.PaymentStatus == "unpaid" {
		return nil, fmt.Errorf("checkout %s is unpaid: %w", e.SessionID, domainErrors.ErrUnusablePayload)
	}

	credits, err := s.checkoutCredits(ctx, e)
	if err != nil {
		return nil, err
	}

	result, err := s.credits.Grant(ctx, repository.Entry{
		UserID:                profile.ID,
		Amount:                credits,
		Type:                  model.TransactionTypePurchase,
		Description:           fmt.Sprintf("Purchased %d credits", credits),
		IdempotencyKey:        CheckoutKey(e.SessionID),
		StripeSessionID:       e.SessionID,
		StripePaymentIntentID: e.PaymentIntentID,
		Metadata: map[string]interface{}{
			"event_id":    e.ID,
			"amount_paid": e.AmountTotal,
			"currency":    e.Currency,
			"credits":     credits,
		},
	})
	if err != nil {
		return nil, err
	}

	if result.Duplicate {
		s.logger.Info("Checkout session already credited",
			zap.String("session_id", e.SessionID),
			zap.String("user_id", profile.ID))
	}

	// Runs on duplicates too: a crash between the grant and this step is repaired
	// by the redelivery.
	revoked, err := s.applyDeferredRefunds(ctx, result.Transaction)
	if err != nil {
		return nil, err
	}

	return &CheckoutResult{
		Success:   true,
		Credits:   credits,
		UserID:    profile.ID,
		Duplicate: result.Duplicate,
		Revoked:   revoked,
	}, nil
}

// applyDeferredRefunds revokes the refunds parked for the purchase's payment intent.
func (s *WebhookService) applyDeferredRefunds(ctx context.Context, purchase *model.CreditTransaction) (int64, error) {
	if purchase == nil || purchase.StripePaymentIntentID == nil {
		return 0, nil
	}

	pending, err := s.refunds.ListUnapplied(ctx, *purchase.StripePaymentIntentID)
	if err != nil {
		return 0, err
	}

	var revoked int64
	for _, refund := range pending {
		result, err := s.applyRefund(ctx, purchase, refundClaim{
			EventID:         refund.EventID,
			ChargeID:        refund.ChargeID,
			PaymentIntentID: refund.PaymentIntentID,
			AmountPaid:      refund.AmountPaid,
			AmountRefunded:  refund.AmountRefunded,
			Currency:        refund.Currency,
		})
		if err != nil {
			return revoked, fmt.Errorf("apply deferred refund %s: %w", refund.ChargeID, err)
		}
		if err := s.refunds.MarkApplied(ctx, refund.ID); err != nil {
			return revoked, err
		}
		if !result.Duplicate {
			revoked += result.Revoked
		}

		s.logger.Info("Deferred refund applied",
			zap.String("charge_id", refund.ChargeID),
			zap.String("payment_intent_id", refund.PaymentIntentID),
			zap.Int64("revoked", result.Revoked))
	}
	return revoked, nil
}

// checkoutCredits reads metadata.credits, falling back to pricing the session's line items.
func (s *WebhookService) checkoutCredits(ctx context.Context, e event.CheckoutCompleted) (int64, error) {
	if e.Metadata["type"] == "credits" {
		credits, ok := e.MetadataCredits()
		if !ok {
			return 0, fmt.Errorf("checkout %s has invalid metadata.credits %q: %w",
				e.SessionID, e.Metadata["credits"], domainErrors.ErrUnusablePayload)
		}
		return credits, nil
	}

	if s.lineItems == nil || s.catalog == nil {
		return 0, fmt.Errorf("checkout %s declares no credits: %w", e.SessionID, domainErrors.ErrUnusablePayload)
	}

	items, err := s.lineItems.ListLineItems(ctx, e.SessionID)
	if err != nil {
		return 0, fmt.Errorf("fetch line items for %s: %w", e.SessionID, err)
	}

	var credits int64
	for _, item := range items {
		perUnit, ok := s.catalog.CreditsForPrice(item.PriceID)
		if !ok {
			s.logger.Warn("Line item price not in product catalog",
				zap.String("session_id", e.SessionID),
				zap.String("price_id", item.PriceID))
			continue
		}
		quantity := item.Quantity
		if quantity <= 0 {
			quantity = 1
		}
		credits += perUnit * quantity
	}
	if credits <= 0 {
		return 0, fmt.Errorf("checkout %s has no credit products: %w", e.SessionID, domainErrors.ErrUnusablePayload)
	}
	return credits, nil
}

// HandleSubscriptionChanged upserts subscription state and grants the period's
// allocation once when the subscription is active.
func (s *WebhookService) HandleSubscriptionChanged(ctx context.Context, e event.SubscriptionChanged) (*SubscriptionResult, error) {
	profile, err := s.resolver.Resolve(ctx, e.Customer)
	if err != nil {
		return nil, fmt.Errorf("subscription %s: %w", e.SubscriptionID, err)
	}

	status := billing.MapSubscriptionStatus(e.Status)
	if e.Action == event.SubscriptionDeleted {
		status = model.SubscriptionStatusCancelled
	}

	update := repository.SubscriptionUpdate{
		UserID:               profile.ID,
		Status:               status,
		StripeSubscriptionID: e.SubscriptionID,
		EventAt:              e.Created,
	}
	if e.Action != event.SubscriptionDeleted {
		update.SubscriptionType = billing.SubscriptionType(e.Metadata)
	}
	updated, err := s.ledger.UpdateSubscription(ctx, update)
	if err != nil {
		return nil, fmt.Errorf("update subscription for %s: %w", profile.ID, err)
	}

	result := &SubscriptionResult{UserID: profile.ID, Status: status}
	if !updated.Applied {
		// A newer event already set the state and handled its own allocation.
		result.Status = updated.Balance.SubscriptionStatus
		result.Stale = true
		return result, nil
	}

	credits, ok := e.AllocationCredits()
	if status != model.SubscriptionStatusActive || !ok {
		return result, nil
	}
	if e.CurrentPeriodStart.IsZero() {
		s.logger.Warn("Active subscription without period start, skipping allocation",
			zap.String("subscription_id", e.SubscriptionID))
		return result, nil
	}

	grant, err := s.credits.Grant(ctx, repository.Entry{
		UserID:               profile.ID,
		Amount:               credits,
		Type:                 model.TransactionTypeMonthlyAllocation,
		Description:          fmt.Sprintf("Subscription allocation of %d credits", credits),
		IdempotencyKey:       AllocationKey(e.SubscriptionID, e.CurrentPeriodStart),
		StripeSubscriptionID: e.SubscriptionID,
		Metadata: map[string]interface{}{
			"event_id":     e.ID,
			"period_start": e.CurrentPeriodStart.Unix(),
			"period_end":   e.CurrentPeriodEnd.Unix(),
		},
	})
	if err != nil {
		return nil, err
	}

	result.Duplicate = grant.Duplicate
	if !grant.Duplicate {
		result.Allocated = credits
	}
	return result, nil
}

// refundClaim is one cumulative refund of a charge, from an event or a deferred row.
type refundClaim struct {
	EventID                string
	ChargeID               string
	PaymentIntentID        string
	AmountPaid             int64
	AmountRefunded         int64
	PreviousAmountRefunded int64
	Currency               string
}

// HandleChargeRefunded revokes the credits proportional to the refunded amount.
// A refund for a purchase not credited yet is parked until its checkout arrives.
func (s *WebhookService) HandleChargeRefunded(ctx context.Context, e event.ChargeRefunded) (*RefundResult, error) {
	if e.PaymentIntentID == "" {
		return nil, fmt.Errorf("charge %s has no payment intent: %w", e.ChargeID, domainErrors.ErrUnusablePayload)
	}

	purchase, err := s.ledger.FindPurchaseByPaymentIntent(ctx, e.PaymentIntentID)
	if err != nil {
		return nil, fmt.Errorf("find purchase for %s: %w", e.PaymentIntentID, err)
	}
	if purchase == nil {
		err := s.refunds.Defer(ctx, &model.PendingRefund{
			ChargeID:        e.ChargeID,
			PaymentIntentID: e.PaymentIntentID,
			EventID:         e.ID,
			AmountPaid:      e.Amount,
			AmountRefunded:  e.AmountRefunded,
			Currency:        e.Currency,
		})
		if err != nil {
			return nil, err
		}

		// The checkout may have committed between the lookup and the deferral,
		// after it listed pending refunds.
		purchase, err = s.ledger.FindPurchaseByPaymentIntent(ctx, e.PaymentIntentID)
		if err != nil {
			return nil, fmt.Errorf("find purchase for %s: %w", e.PaymentIntentID, err)
		}
		if purchase != nil {
			revoked, err := s.applyDeferredRefunds(ctx, purchase)
			if err != nil {
				return nil, err
			}
			return &RefundResult{UserID: purchase.UserID, Revoked: revoked}, nil
		}

		s.logger.Info("Refund deferred until purchase is credited",
			zap.String("charge_id", e.ChargeID),
			zap.String("payment_intent_id", e.PaymentIntentID),
			zap.Int64("amount_refunded", e.AmountRefunded))
		return &RefundResult{Deferred: true}, nil
	}

	return s.applyRefund(ctx, purchase, refundClaim{
		EventID:                e.ID,
		ChargeID:               e.ChargeID,
		PaymentIntentID:        e.PaymentIntentID,
		AmountPaid:             e.Amount,
		AmountRefunded:         e.AmountRefunded,
		PreviousAmountRefunded: e.PreviousAmountRefunded,
		Currency:               e.Currency,
	})
}

// applyRefund revokes up to the credits the cumulative refund covers. What earlier
// refunds of the purchase already revoked comes from the ledger, not the event.
func (s *WebhookService) applyRefund(ctx context.Context, purchase *model.CreditTransaction, claim refundClaim) (*RefundResult, error) {
	paid := claim.AmountPaid
	if paid <= 0 {
		paid = metadataInt(purchase.MetadataMap(), "amount_paid")
	}

	target := billing.CreditsToRevoke(paid, claim.AmountRefunded, purchase.Amount)
	if target == 0 {
		s.logger.Info("Refund revokes no credits",
			zap.String("charge_id", claim.ChargeID),
			zap.Int64("amount_refunded", claim.AmountRefunded))
		return &RefundResult{UserID: purchase.UserID}, nil
	}

	sessionID := ""
	if purchase.StripeSessionID != nil {
		sessionID = *purchase.StripeSessionID
	}

	revoked, err := s.credits.RevokeRefund(ctx, repository.Entry{
		UserID:                purchase.UserID,
		Amount:                target,
		Type:                  model.TransactionTypeRefund,
		Description:           fmt.Sprintf("Refund of %d/%d %s", claim.AmountRefunded, paid, claim.Currency),
		IdempotencyKey:        RefundKey(claim.ChargeID, claim.AmountRefunded),
		StripeSessionID:       sessionID,
		StripePaymentIntentID: claim.PaymentIntentID,
		Metadata: map[string]interface{}{
			"event_id":                 claim.EventID,
			"charge_id":                claim.ChargeID,
			"amount_refunded":          claim.AmountRefunded,
			"previous_amount_refunded": claim.PreviousAmountRefunded,
			"original_transaction_id":  purchase.ID.String(),
		},
	})
	if err != nil {
		return nil, err
	}

	if revoked.Transaction == nil {
		s.logger.Info("Refund revokes no additional credits",
			zap.String("charge_id", claim.ChargeID),
			zap.Int64("amount_refunded", claim.AmountRefunded),
			zap.Int64("revocation_target", target))
	}

	return &RefundResult{
		UserID:    purchase.UserID,
		Revoked:   revoked.Revoked,
		Balance:   balanceValue(revoked.Balance),
		Duplicate: revoked.Duplicate,
	}, nil
}

// HandleInvoicePaymentFailed marks the subscription past due and records the failure.
// Credits stay untouched during the provider's retry window.
func (s *WebhookService) HandleInvoicePaymentFailed(ctx context.Context, e event.InvoicePaymentFailed) error {
	profile, err := s.resolver.Resolve(ctx, e.Customer)
	if err != nil {
		return fmt.Errorf("invoice %s: %w", e.InvoiceID, err)
	}

	if _, err := s.ledger.UpdateSubscription(ctx, repository.SubscriptionUpdate{
		UserID:               profile.ID,
		Status:               model.SubscriptionStatusPastDue,
		StripeSubscriptionID: e.SubscriptionID,
		EventAt:              e.Created,
	}); err != nil {
		return fmt.Errorf("mark %s past due: %w", profile.ID, err)
	}

	_, err = s.credits.Note(ctx, repository.Entry{
		UserID:               profile.ID,
		Type:                 model.TransactionTypePaymentFailed,
		Description:          fmt.Sprintf("Payment failed for invoice %s (attempt %d)", e.InvoiceID, e.AttemptCount),
		IdempotencyKey:       PaymentFailedKey(e.InvoiceID),
		StripeSubscriptionID: e.SubscriptionID,
		Metadata: map[string]interface{}{
			"event_id":      e.ID,
			"invoice_id":    e.InvoiceID,
			"amount_due":    e.AmountDue,
			"attempt_count": e.AttemptCount,
		},
	})
	return err
}

func metadataInt(m map[string]interface{}, key string) int64 {
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

// IsClientError reports whether a delivery error is the request's fault rather than ours.
func IsClientError(err error) bool {
	return errors.Is(err, domainErrors.ErrInvalidSignature) || errors.Is(err, domainErrors.ErrUnusablePayload)
}
