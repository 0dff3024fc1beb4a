package stripe

import (
	"context"

	stripeapi "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"go.uber.org/zap"

	"github.com/flipmyera/credit-ledger/internal/domain/provider"
)

// CheckoutClient reads checkout sessions from the Stripe API.
type CheckoutClient struct {
	client session.Client
	logger *zap.Logger
}

// NewCheckoutClient creates a client using the default Stripe API backend.
func NewCheckoutClient(secretKey string, logger *zap.Logger) *CheckoutClient {
	backend := stripeapi.GetBackendWithConfig(stripeapi.APIBackend, &stripeapi.BackendConfig{
		LeveledLogger: logger.Sugar(),
	})
	return NewCheckoutClientWithBackend(secretKey, backend, logger)
}

// NewCheckoutClientWithBackend creates a client on an explicit backend.
func NewCheckoutClientWithBackend(secretKey string, backend stripeapi.Backend, logger *zap.Logger) *CheckoutClient {
	return &CheckoutClient{
		client: session.Client{B: backend, Key: secretKey},
		logger: logger,
	}
}

// ListLineItems returns every line item of a checkout session.
func (c *CheckoutClient) ListLineItems(ctx context.Context, sessionID string) ([]provider.LineItem, error) {
	params := &stripeapi.CheckoutSessionListLineItemsParams{
		Session: stripeapi.String(sessionID),
	}
	params.Context = ctx
	params.AddExpand("data.price")

	var items []provider.LineItem
	iter := c.client.ListLineItems(params)
	for iter.Next() {
		li := iter.LineItem()
		item := provider.LineItem{
			Description: li.Description,
			Quantity:    li.Quantity,
			AmountTotal: li.AmountTotal,
		}
		if li.Price != nil {
			item.PriceID = li.Price.ID
		}
		items = append(items, item)
	}
	if err := iter.Err(); err != nil {
		c.logger.Error("Failed to list checkout line items",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return nil, &provider.ProviderError{Op: "list line items", Err: err}
	}

	return items, nil
}
