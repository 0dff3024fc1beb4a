package errors

import "errors"

var (
	// ErrInvalidSignature indicates a webhook whose signature header is missing or does not verify
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrUserNotFound indicates that no profile matches the identity carried by an event
	ErrUserNotFound = errors.New("user not found")

	// ErrDuplicateEvent indicates that an event or idempotency key was already processed
	ErrDuplicateEvent = errors.New("event already processed")

	// ErrInsufficientCredits indicates a deduction larger than the available balance
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrMalformedRequest indicates a client request with missing or invalid fields
	ErrMalformedRequest = errors.New("malformed request")

	// ErrUnusablePayload indicates a verified event that carries nothing the ledger can act on
	ErrUnusablePayload = errors.New("unusable event payload")

	// ErrInvalidAmount indicates a non-positive ledger amount
	ErrInvalidAmount = errors.New("amount must be positive")
)

// IsAcknowledgeable reports whether a webhook processing error should still be
// acknowledged to the provider, since redelivery can never make it succeed.
func IsAcknowledgeable(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrDuplicateEvent) ||
		errors.Is(err, ErrUnusablePayload)
}
