package dto

import (
	"time"
)

// CreditTransactionDTO represents a simplified credit transaction for API responses
type CreditTransactionDTO struct {
	ID                      string                 `json:"id"`
	TransactionType         string                 `json:"transaction_type"`
	Amount                  int64                  `json:"amount"`
	BalanceAfterTransaction int64                  `json:"balance_after_transaction"`
	Description             string                 `json:"description,omitempty"`
	Metadata                map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt               time.Time              `json:"created_at"`
}

// RecentTransactionDTO is the short form embedded in the balance response.
type RecentTransactionDTO struct {
	ID              string    `json:"id"`
	Type            string    `json:"type"`
	Amount          int64     `json:"amount"`
	Description     string    `json:"description"`
	TransactionDate time.Time `json:"transaction_date"`
}

// TransactionListResponse represents the paginated transaction list response
type TransactionListResponse struct {
	Transactions []CreditTransactionDTO `json:"transactions"`
	Pagination   PaginationInfo         `json:"pagination"`
}

// PaginationInfo contains pagination metadata
type PaginationInfo struct {
	Total   int64 `json:"total"`
	Limit   int   `json:"limit"`
	Offset  int   `json:"offset"`
	HasMore bool  `json:"has_more"`
}

// TransactionFilters contains query filters for transaction retrieval
type TransactionFilters struct {
	UserID          string
	Limit           int
	Offset          int
	StartDate       *time.Time
	EndDate         *time.Time
	TransactionType *string
}

const (
	DefaultTransactionLimit = 20
	MaxTransactionLimit     = 100
)

// SetDefaults sets default values for pagination
func (f *TransactionFilters) SetDefaults() {
	if f.Limit <= 0 {
		f.Limit = DefaultTransactionLimit
	}
	if f.Limit > MaxTransactionLimit {
		f.Limit = MaxTransactionLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}
