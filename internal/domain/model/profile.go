package model

import "time"

// Profile is owned by the identity subsystem. The ledger reads it and only ever
// writes StripeCustomerID, once.
type Profile struct {
	ID               string    `gorm:"primaryKey;size:255" json:"id"`
	Email            string    `gorm:"size:255;uniqueIndex" json:"email"`
	StripeCustomerID *string   `gorm:"size:255;uniqueIndex" json:"stripe_customer_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Profile) TableName() string {
	return "profiles"
}
