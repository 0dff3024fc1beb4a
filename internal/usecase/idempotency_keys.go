package usecase

import (
	"fmt"
	"time"
)

// Ledger idempotency keys. Each economic event maps to exactly one key.

func CheckoutKey(sessionID string) string {
	return "checkout:" + sessionID
}

func AllocationKey(subscriptionID string, periodStart time.Time) string {
	return fmt.Sprintf("allocation:%s:%d", subscriptionID, periodStart.Unix())
}

func RefundKey(chargeID string, cumulativeRefunded int64) string {
	return fmt.Sprintf("refund:%s:%d", chargeID, cumulativeRefunded)
}

func PaymentFailedKey(invoiceID string) string {
	return "payment_failed:" + invoiceID
}

func GenerationKey(userID, generationID string) string {
	return fmt.Sprintf("generation:%s:%s", userID, generationID)
}

func AdminGrantKey(id string) string {
	return "admin:" + id
}

func AdminRevokeKey(id string) string {
	return "admin_revoke:" + id
}
