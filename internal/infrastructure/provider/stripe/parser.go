package stripe

import (
	"encoding/json"
	"fmt"
	"time"

	stripeapi "github.com/stripe/stripe-go/v79"

	domainErrors "github.com/flipmyera/credit-ledger/internal/domain/errors"
	"github.com/flipmyera/credit-ledger/internal/domain/event"
)

// previousAttributes is the subset of data.previous_attributes the ledger reads.
type previousAttributes struct {
	Data struct {
		PreviousAttributes struct {
			AmountRefunded *int64 `json:"amount_refunded"`
		} `json:"previous_attributes"`
	} `json:"data"`
}

func parse(evt stripeapi.Event, payload []byte) (event.Event, error) {
	if evt.ID == "" || evt.Type == "" {
		return nil, fmt.Errorf("event without id or type: %w", domainErrors.ErrUnusablePayload)
	}

	env := event.Envelope{
		ID:         evt.ID,
		Type:       string(evt.Type),
		APIVersion: evt.APIVersion,
		Livemode:   evt.Livemode,
		Created:    time.Unix(evt.Created, 0).UTC(),
	}

	if evt.Data == nil || len(evt.Data.Raw) == 0 {
		switch env.Type {
		case event.TypeCheckoutSessionCompleted, event.TypeSubscriptionCreated, event.TypeSubscriptionUpdated,
			event.TypeSubscriptionDeleted, event.TypeChargeRefunded, event.TypeInvoicePaymentFailed:
			return nil, fmt.Errorf("%s without data.object: %w", env.Type, domainErrors.ErrUnusablePayload)
		}
		return event.Unsupported{Envelope: env}, nil
	}

	switch env.Type {
	case event.TypeCheckoutSessionCompleted:
		return parseCheckout(env, evt.Data.Raw)
	case event.TypeSubscriptionCreated:
		return parseSubscription(env, event.SubscriptionCreated, evt.Data.Raw)
	case event.TypeSubscriptionUpdated:
		return parseSubscription(env, event.SubscriptionUpdated, evt.Data.Raw)
	case event.TypeSubscriptionDeleted:
		return parseSubscription(env, event.SubscriptionDeleted, evt.Data.Raw)
	case event.TypeChargeRefunded:
		return parseChargeRefunded(env, evt.Data.Raw, payload)
	case event.TypeInvoicePaymentFailed:
		return parseInvoiceFailed(env, evt.Data.Raw)
	default:
		return event.Unsupported{Envelope: env}, nil
	}
}

func parseCheckout(env event.Envelope, raw json.RawMessage) (event.Event, error) {
	var session stripeapi.CheckoutSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, unusable(env, err)
	}
	if session.ID == "" {
		return nil, fmt.Errorf("checkout session without id: %w", domainErrors.ErrUnusablePayload)
	}

	out := event.CheckoutCompleted{
		Envelope:      env,
		SessionID:     session.ID,
		Mode:          event.CheckoutMode(session.Mode),
		PaymentStatus: string(session.PaymentStatus),
		AmountTotal:   session.AmountTotal,
		Currency:      string(session.Currency),
		Metadata:      session.Metadata,
	}

	out.Customer.Email = session.CustomerEmail
	if session.CustomerDetails != nil && session.CustomerDetails.Email != "" {
		out.Customer.Email = session.CustomerDetails.Email
	}
	if session.Customer != nil {
		out.Customer.CustomerID = session.Customer.ID
		if out.Customer.Email == "" {
			out.Customer.Email = session.Customer.Email
		}
	}
	if session.PaymentIntent != nil {
		out.PaymentIntentID = session.PaymentIntent.ID
	}
	if session.Subscription != nil {
		out.SubscriptionID = session.Subscription.ID
	}

	return out, nil
}

func parseSubscription(env event.Envelope, action event.SubscriptionAction, raw json.RawMessage) (event.Event, error) {
	var sub stripeapi.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, unusable(env, err)
	}
	if sub.ID == "" {
		return nil, fmt.Errorf("subscription without id: %w", domainErrors.ErrUnusablePayload)
	}

	out := event.SubscriptionChanged{
		Envelope:       env,
		Action:         action,
		SubscriptionID: sub.ID,
		Status:         string(sub.Status),
		Metadata:       sub.Metadata,
	}
	if sub.Customer != nil {
		out.Customer = event.Identity{Email: sub.Customer.Email, CustomerID: sub.Customer.ID}
	}
	if sub.CurrentPeriodStart > 0 {
		out.CurrentPeriodStart = time.Unix(sub.CurrentPeriodStart, 0).UTC()
	}
	if sub.CurrentPeriodEnd > 0 {
		out.CurrentPeriodEnd = time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	}

	return out, nil
}

func parseChargeRefunded(env event.Envelope, raw json.RawMessage, payload []byte) (event.Event, error) {
	var charge stripeapi.Charge
	if err := json.Unmarshal(raw, &charge); err != nil {
		return nil, unusable(env, err)
	}
	if charge.ID == "" {
		return nil, fmt.Errorf("charge without id: %w", domainErrors.ErrUnusablePayload)
	}

	out := event.ChargeRefunded{
		Envelope:       env,
		ChargeID:       charge.ID,
		Amount:         charge.Amount,
		AmountRefunded: charge.AmountRefunded,
		Currency:       string(charge.Currency),
	}
	if charge.PaymentIntent != nil {
		out.PaymentIntentID = charge.PaymentIntent.ID
	}

	out.Customer.Email = charge.ReceiptEmail
	if charge.BillingDetails != nil && charge.BillingDetails.Email != "" {
		out.Customer.Email = charge.BillingDetails.Email
	}
	if charge.Customer != nil {
		out.Customer.CustomerID = charge.Customer.ID
	}

	var prev previousAttributes
	if err := json.Unmarshal(payload, &prev); err == nil && prev.Data.PreviousAttributes.AmountRefunded != nil {
		out.PreviousAmountRefunded = *prev.Data.PreviousAttributes.AmountRefunded
	}

	return out, nil
}

func parseInvoiceFailed(env event.Envelope, raw json.RawMessage) (event.Event, error) {
	var invoice stripeapi.Invoice
	if err := json.Unmarshal(raw, &invoice); err != nil {
		return nil, unusable(env, err)
	}
	if invoice.ID == "" {
		return nil, fmt.Errorf("invoice without id: %w", domainErrors.ErrUnusablePayload)
	}

	out := event.InvoicePaymentFailed{
		Envelope:     env,
		InvoiceID:    invoice.ID,
		AmountDue:    invoice.AmountDue,
		AttemptCount: invoice.AttemptCount,
	}
	out.Customer.Email = invoice.CustomerEmail
	if invoice.Customer != nil {
		out.Customer.CustomerID = invoice.Customer.ID
	}
	if invoice.Subscription != nil {
		out.SubscriptionID = invoice.Subscription.ID
	}

	return out, nil
}

func unusable(env event.Envelope, err error) error {
	return fmt.Errorf("decode %s %s: %v: %w", env.Type, env.ID, err, domainErrors.ErrUnusablePayload)
}
