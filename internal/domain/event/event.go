// Package event defines the typed payment events the ledger reacts to.
// Provider payloads are parsed into these structs once, at the boundary.
package event

import (
	"strconv"
	"strings"
	"time"
)

const (
	TypeCheckoutSessionCompleted = "checkout.session.completed"
	TypeSubscriptionCreated      = "customer.subscription.created"
	TypeSubscriptionUpdated      = "customer.subscription.updated"
	TypeSubscriptionDeleted      = "customer.subscription.deleted"
	TypeChargeRefunded           = "charge.refunded"
	TypeInvoicePaymentFailed     = "invoice.payment_failed"
)

// Event is implemented by every parsed event kind.
type Event interface {
	Meta() Envelope
	isEvent()
}

// Envelope carries the provider fields common to every event.
type Envelope struct {
	ID         string
	Type       string
	APIVersion string
	Livemode   bool
	Created    time.Time
}

func (e Envelope) Meta() Envelope { return e }
func (Envelope) isEvent()         {}

// Identity is what a payment event tells us about the paying user.
type Identity struct {
	Email      string
	CustomerID string
}

func (i Identity) Empty() bool {
	return strings.TrimSpace(i.Email) == "" && strings.TrimSpace(i.CustomerID) == ""
}

type CheckoutMode string

const (
	CheckoutModePayment      CheckoutMode = "payment"
	CheckoutModeSubscription CheckoutMode = "subscription"
	CheckoutModeSetup        CheckoutMode = "setup"
)

// CheckoutCompleted is checkout.session.completed.
type CheckoutCompleted struct {
	Envelope
	SessionID       string
	Mode            CheckoutMode
	PaymentStatus   string
	Customer        Identity
	PaymentIntentID string
	SubscriptionID  string
	AmountTotal     int64
	Currency        string
	Metadata        map[string]string
}

// MetadataCredits returns metadata.credits when metadata.type is "credits".
// ok is false when the session does not declare credits.
func (c CheckoutCompleted) MetadataCredits() (credits int64, ok bool) {
	if c.Metadata["type"] != "credits" {
		return 0, false
	}
	return ParsePositiveInt(c.Metadata["credits"])
}

type SubscriptionAction string

const (
	SubscriptionCreated SubscriptionAction = "created"
	SubscriptionUpdated SubscriptionAction = "updated"
	SubscriptionDeleted SubscriptionAction = "deleted"
)

// SubscriptionChanged is customer.subscription.created, .updated or .deleted.
type SubscriptionChanged struct {
	Envelope
	Action             SubscriptionAction
	SubscriptionID     string
	Customer           Identity
	Status             string
	Metadata           map[string]string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
}

// AllocationCredits returns the per-period credit allocation from metadata.credits.
func (s SubscriptionChanged) AllocationCredits() (int64, bool) {
	return ParsePositiveInt(s.Metadata["credits"])
}

// ChargeRefunded is charge.refunded. AmountRefunded is cumulative over the charge;
// PreviousAmountRefunded comes from previous_attributes and is zero on the first refund.
type ChargeRefunded struct {
	Envelope
	ChargeID               string
	PaymentIntentID        string
	Customer               Identity
	Amount                 int64
	AmountRefunded         int64
	PreviousAmountRefunded int64
	Currency               string
}

// InvoicePaymentFailed is invoice.payment_failed.
type InvoicePaymentFailed struct {
	Envelope
	InvoiceID      string
	SubscriptionID string
	Customer       Identity
	AmountDue      int64
	AttemptCount   int64
}

// Unsupported is any verified event the ledger does not act on.
type Unsupported struct {
	Envelope
}

// ParsePositiveInt parses s as a base-10 integer greater than zero.
func ParsePositiveInt(s string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
