package model

import (
	"database/sql/driver"
	"time"
)

// SubscriptionStatus is the application's own subscription state.
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusPastDue   SubscriptionStatus = "past_due"
	SubscriptionStatusNone      SubscriptionStatus = "none"
)

// Scan implements sql.Scanner interface
func (s *SubscriptionStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*s = SubscriptionStatus(v)
	case []byte:
		*s = SubscriptionStatus(v)
	default:
		*s = SubscriptionStatusNone
	}
	return nil
}

// Value implements driver.Valuer interface
func (s SubscriptionStatus) Value() (driver.Value, error) {
	return string(s), nil
}

const (
	SubscriptionTypeFree             = "free"
	SubscriptionTypeMonthly          = "monthly"
	SubscriptionTypeAnnual           = "annual"
	SubscriptionTypeMonthlyUnlimited = "monthly_unlimited"
	SubscriptionTypeAnnualUnlimited  = "annual_unlimited"
)

// CreditBalance is the cached per-user balance. It always equals the sum of the
// user's CreditTransaction amounts and never goes negative.
type CreditBalance struct {
	UserID               string             `gorm:"primaryKey;size:255" json:"user_id"`
	Balance              int64              `gorm:"not null;default:0;check:chk_user_credits_balance_non_negative,balance >= 0" json:"balance"`
	SubscriptionStatus   SubscriptionStatus `gorm:"size:32;not null;default:'none'" json:"subscription_status"`
	SubscriptionType     string             `gorm:"size:32;not null;default:'free'" json:"subscription_type"`
	StripeSubscriptionID *string            `gorm:"size:255;index" json:"stripe_subscription_id,omitempty"`
	SubscriptionEventAt  *time.Time         `json:"subscription_event_at,omitempty"`
	TotalEarned          int64              `gorm:"not null;default:0" json:"total_earned"`
	TotalSpent           int64              `gorm:"not null;default:0" json:"total_spent"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (CreditBalance) TableName() string {
	return "user_credits"
}

// HasUnlimitedPlan reports whether generations bypass credit deduction.
func (b *CreditBalance) HasUnlimitedPlan() bool {
	if b == nil || b.SubscriptionStatus != SubscriptionStatusActive {
		return false
	}
	return b.SubscriptionType == SubscriptionTypeMonthlyUnlimited || b.SubscriptionType == SubscriptionTypeAnnualUnlimited
}
