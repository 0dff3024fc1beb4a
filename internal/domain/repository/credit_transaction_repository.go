package repository

import (
	"context"

	"github.com/flipmyera/credit-ledger/internal/domain/dto"
	"github.com/flipmyera/credit-ledger/internal/domain/model"
)

// CreditTransactionRepository defines the interface for credit transaction data operations
type CreditTransactionRepository interface {
	// GetTransactions retrieves credit transactions with filters, newest first
	GetTransactions(ctx context.Context, filters dto.TransactionFilters) ([]model.CreditTransaction, error)

	// CountTransactions counts the total number of transactions matching the filters
	CountTransactions(ctx context.Context, filters dto.TransactionFilters) (int64, error)
}
