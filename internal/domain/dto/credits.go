package dto

import "time"

// ValidateCreditsRequest is the body of POST /credits-validate.
type ValidateCreditsRequest struct {
	CreditsRequired int64  `json:"credits_required" validate:"gte=1,lte=100"`
	StoryType       string `json:"story_type" validate:"max=64"`
	GenerationID    string `json:"generation_id" validate:"max=255"`
}

// SetDefaults fills the fields clients may omit.
func (r *ValidateCreditsRequest) SetDefaults() {
	if r.CreditsRequired == 0 {
		r.CreditsRequired = 1
	}
	if r.StoryType == "" {
		r.StoryType = "short_story"
	}
}

type ValidateCreditsData struct {
	HasSufficientCredits bool   `json:"has_sufficient_credits"`
	CurrentBalance       int64  `json:"current_balance"`
	SubscriptionType     string `json:"subscription_type"`
	TransactionID        string `json:"transaction_id,omitempty"`
	BypassCredits        bool   `json:"bypass_credits"`
}

type BalanceDTO struct {
	Balance          int64     `json:"balance"`
	SubscriptionType string    `json:"subscription_type"`
	LastUpdated      time.Time `json:"last_updated"`
}

type CreditsData struct {
	Balance            BalanceDTO             `json:"balance"`
	RecentTransactions []RecentTransactionDTO `json:"recent_transactions,omitempty"`
}

// AdminGrantRequest is the body of POST /admin/credits.
type AdminGrantRequest struct {
	UserID       string `json:"user_id" validate:"required,max=255"`
	CreditsToAdd int64  `json:"credits_to_add" validate:"gte=1,lte=10000"`
	Reason       string `json:"reason" validate:"required,max=500"`
	AdminNote    string `json:"admin_note" validate:"max=1000"`
}

// AdminRevokeRequest is the body of POST /admin/credits/revoke.
type AdminRevokeRequest struct {
	UserID          string `json:"user_id" validate:"required,max=255"`
	CreditsToRevoke int64  `json:"credits_to_revoke" validate:"gte=1,lte=10000"`
	Reason          string `json:"reason" validate:"required,max=500"`
	AdminNote       string `json:"admin_note" validate:"max=1000"`
}

// AccountDTO is the admin view of one user's ledger state.
type AccountDTO struct {
	UserID               string                 `json:"user_id"`
	Balance              int64                  `json:"balance"`
	SubscriptionStatus   string                 `json:"subscription_status"`
	SubscriptionType     string                 `json:"subscription_type"`
	StripeSubscriptionID string                 `json:"stripe_subscription_id,omitempty"`
	TotalEarned          int64                  `json:"total_earned"`
	TotalSpent           int64                  `json:"total_spent"`
	LedgerSum            int64                  `json:"ledger_sum"`
	RecentTransactions   []RecentTransactionDTO `json:"recent_transactions"`
	UpdatedAt            time.Time              `json:"updated_at"`
}

type AdminGrantData struct {
	UserID        string `json:"user_id"`
	CreditsAdded  int64  `json:"credits_added"`
	NewBalance    int64  `json:"new_balance"`
	TransactionID string `json:"transaction_id"`
}

// AdminRevokeData reports the credits actually removed, which is less than
// requested when the balance was lower.
type AdminRevokeData struct {
	UserID         string `json:"user_id"`
	CreditsRevoked int64  `json:"credits_revoked"`
	NewBalance     int64  `json:"new_balance"`
	TransactionID  string `json:"transaction_id"`
}
