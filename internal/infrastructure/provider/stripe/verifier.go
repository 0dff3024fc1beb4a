package stripe

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	stripeapi "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
	"go.uber.org/zap"

	domainErrors "github.com/flipmyera/credit-ledger/internal/domain/errors"
	"github.com/flipmyera/credit-ledger/internal/domain/event"
)

// WebhookVerifier verifies Stripe-Signature headers and parses events.
type WebhookVerifier struct {
	secret string
	logger *zap.Logger
}

// NewWebhookVerifier creates a verifier for the given endpoint signing secret
func NewWebhookVerifier(secret string, logger *zap.Logger) *WebhookVerifier {
	return &WebhookVerifier{
		secret: secret,
		logger: logger,
	}
}

// VerifyEvent authenticates payload and parses it into a typed event.
func (v *WebhookVerifier) VerifyEvent(payload []byte, signatureHeader string) (event.Event, error) {
	if strings.TrimSpace(signatureHeader) == "" {
		return nil, fmt.Errorf("missing Stripe-Signature header: %w", domainErrors.ErrInvalidSignature)
	}
	if v.secret == "" {
		return nil, fmt.Errorf("webhook secret not configured: %w", domainErrors.ErrInvalidSignature)
	}

	evt, err := webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		if isSignatureError(err) {
			v.logger.Warn("Webhook signature verification failed", zap.Error(err))
			return nil, fmt.Errorf("%v: %w", err, domainErrors.ErrInvalidSignature)
		}
		return nil, fmt.Errorf("decode event: %v: %w", err, domainErrors.ErrUnusablePayload)
	}

	return parse(evt, payload)
}

// ParseEvent parses a payload that was verified earlier, e.g. one stored for replay.
func (v *WebhookVerifier) ParseEvent(payload []byte) (event.Event, error) {
	var evt stripeapi.Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("decode event: %v: %w", err, domainErrors.ErrUnusablePayload)
	}
	return parse(evt, payload)
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}
