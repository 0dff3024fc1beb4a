package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PendingRefund holds a refund that arrived before the purchase it refunds was
// credited. It is applied when the checkout for the same payment intent lands.
// One row per charge; AmountRefunded only ever grows.
type PendingRefund struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ChargeID        string     `gorm:"uniqueIndex;not null;size:255" json:"charge_id"`
	PaymentIntentID string     `gorm:"not null;size:255;index" json:"payment_intent_id"`
	EventID         string     `gorm:"not null;size:255" json:"event_id"`
	AmountPaid      int64      `gorm:"not null;default:0" json:"amount_paid"`
	AmountRefunded  int64      `gorm:"not null" json:"amount_refunded"`
	Currency        string     `gorm:"size:16" json:"currency"`
	AppliedAt       *time.Time `json:"applied_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (PendingRefund) TableName() string {
	return "pending_refunds"
}

func (p *PendingRefund) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
