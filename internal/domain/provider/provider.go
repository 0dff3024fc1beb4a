package provider

import (
	"context"

	"github.com/flipmyera/credit-ledger/internal/domain/event"
)

// WebhookVerifier authenticates provider webhooks and parses them into typed events.
type WebhookVerifier interface {
	// VerifyEvent checks signatureHeader against payload and parses the event.
	// A missing or invalid signature yields errors.ErrInvalidSignature.
	VerifyEvent(payload []byte, signatureHeader string) (event.Event, error)

	// ParseEvent parses an already verified payload, e.g. one stored for replay.
	ParseEvent(payload []byte) (event.Event, error)
}

// LineItem is one purchased line of a checkout session.
type LineItem struct {
	PriceID     string
	Description string
	Quantity    int64
	AmountTotal int64
}

// CheckoutSessionFetcher enriches checkout events from the provider API.
type CheckoutSessionFetcher interface {
	ListLineItems(ctx context.Context, sessionID string) ([]LineItem, error)
}

// ProductCatalog maps provider price ids to credits granted per unit.
type ProductCatalog interface {
	CreditsForPrice(priceID string) (int64, bool)
}

// ProviderError wraps a failed provider API call.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
