// Package billing holds the pure pricing and subscription rules of the ledger.
package billing

import (
	"strings"

	"github.com/flipmyera/credit-ledger/internal/domain/model"
)

// MapSubscriptionStatus translates a provider subscription status into the
// application's status. It is total: unrecognised input maps to none.
func MapSubscriptionStatus(providerStatus string) model.SubscriptionStatus {
	switch providerStatus {
	case "active":
		return model.SubscriptionStatusActive
	case "canceled":
		return model.SubscriptionStatusCancelled
	case "past_due", "unpaid":
		return model.SubscriptionStatusPastDue
	default:
		return model.SubscriptionStatusNone
	}
}

// SubscriptionType picks the plan type recorded on the balance row from
// subscription metadata.
func SubscriptionType(metadata map[string]string) string {
	if t := strings.TrimSpace(metadata["subscription_type"]); t != "" {
		return t
	}
	if metadata["plan"] == model.SubscriptionTypeAnnual {
		return model.SubscriptionTypeAnnual
	}
	return model.SubscriptionTypeMonthly
}
