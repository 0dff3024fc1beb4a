package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TransactionType represents the type of credit transaction
type TransactionType string

const (
	TransactionTypePurchase          TransactionType = "purchase"
	TransactionTypeEbookGeneration   TransactionType = "ebook_generation"
	TransactionTypeRefund            TransactionType = "refund"
	TransactionTypeMonthlyAllocation TransactionType = "monthly_allocation"
	TransactionTypePaymentFailed     TransactionType = "payment_failed"
	TransactionTypeAdminGrant        TransactionType = "admin_grant"
	TransactionTypeAdminRevoke       TransactionType = "admin_revoke"
)

// TransactionTypes lists every type accepted by the ledger.
var TransactionTypes = []TransactionType{
	TransactionTypePurchase,
	TransactionTypeEbookGeneration,
	TransactionTypeRefund,
	TransactionTypeMonthlyAllocation,
	TransactionTypePaymentFailed,
	TransactionTypeAdminGrant,
	TransactionTypeAdminRevoke,
}

func (t TransactionType) IsValid() bool {
	for _, known := range TransactionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Scan implements sql.Scanner interface
func (t *TransactionType) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*t = TransactionType(v)
	case []byte:
		*t = TransactionType(v)
	}
	return nil
}

// Value implements driver.Valuer interface
func (t TransactionType) Value() (driver.Value, error) {
	return string(t), nil
}

// CreditTransaction is one immutable row of the credit ledger.
// Amount is signed: grants are positive, deductions and revocations negative, notes zero.
type CreditTransaction struct {
	ID                      uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	UserID                  string          `gorm:"size:255;not null;index:idx_credit_transactions_user_created" json:"user_id"`
	Amount                  int64           `gorm:"not null" json:"amount"`
	TransactionType         TransactionType `gorm:"size:32;not null;index" json:"transaction_type"`
	Description             string          `gorm:"not null;default:''" json:"description"`
	IdempotencyKey          *string         `gorm:"size:255;uniqueIndex" json:"idempotency_key,omitempty"`
	StripeSessionID         *string         `gorm:"size:255;index" json:"stripe_session_id,omitempty"`
	StripePaymentIntentID   *string         `gorm:"size:255;index" json:"stripe_payment_intent_id,omitempty"`
	StripeSubscriptionID    *string         `gorm:"size:255" json:"stripe_subscription_id,omitempty"`
	Metadata                datatypes.JSON  `json:"metadata,omitempty"`
	BalanceAfterTransaction int64           `gorm:"not null" json:"balance_after_transaction"`
	CreatedAt               time.Time       `gorm:"not null;index:idx_credit_transactions_user_created" json:"created_at"`
}

// TableName specifies the table name for GORM
func (CreditTransaction) TableName() string {
	return "credit_transactions"
}

func (t *CreditTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if len(t.Metadata) == 0 {
		t.Metadata = datatypes.JSON("{}")
	}
	return nil
}

// MetadataMap decodes Metadata, returning an empty map for missing or invalid JSON.
func (t *CreditTransaction) MetadataMap() map[string]interface{} {
	out := map[string]interface{}{}
	if len(t.Metadata) == 0 {
		return out
	}
	if err := json.Unmarshal(t.Metadata, &out); err != nil {
		return map[string]interface{}{}
	}
	return out
}

// NewMetadata encodes m as a JSON column value. Nil and empty maps encode as {}.
func NewMetadata(m map[string]interface{}) datatypes.JSON {
	if len(m) == 0 {
		return datatypes.JSON("{}")
	}
	b, err := json.Marshal(m)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(b)
}
