package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/flipmyera/credit-ledger/internal/domain/dto"
	"github.com/flipmyera/credit-ledger/internal/domain/model"
	"github.com/flipmyera/credit-ledger/internal/domain/repository"
)

// creditTransactionRepository implements the CreditTransactionRepository interface
type creditTransactionRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewCreditTransactionRepository creates a new credit transaction repository
func NewCreditTransactionRepository(db *gorm.DB, logger *zap.Logger) repository.CreditTransactionRepository {
	return &creditTransactionRepository{
		db:     db,
		logger: logger,
	}
}

// GetTransactions retrieves a user's credit transactions with filters
func (r *creditTransactionRepository) GetTransactions(ctx context.Context, filters dto.TransactionFilters) ([]model.CreditTransaction, error) {
	var transactions []model.CreditTransaction

	query := r.filtered(ctx, filters).
		Order("created_at DESC").
		Limit(filters.Limit).
		Offset(filters.Offset)

	if err := query.Find(&transactions).Error; err != nil {
		r.logger.Error("failed to get user transactions",
			zap.String("user_id", filters.UserID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get user transactions: %w", err)
	}

	return transactions, nil
}

// CountTransactions counts the total number of transactions matching the filters
func (r *creditTransactionRepository) CountTransactions(ctx context.Context, filters dto.TransactionFilters) (int64, error) {
	var count int64

	if err := r.filtered(ctx, filters).Count(&count).Error; err != nil {
		r.logger.Error("failed to count user transactions",
			zap.String("user_id", filters.UserID),
			zap.Error(err))
		return 0, fmt.Errorf("failed to count user transactions: %w", err)
	}

	return count, nil
}

func (r *creditTransactionRepository) filtered(ctx context.Context, filters dto.TransactionFilters) *gorm.DB {
	query := r.db.WithContext(ctx).
		Model(&model.CreditTransaction{}).
		Where("user_id = ?", filters.UserID)

	if filters.StartDate != nil {
		query = query.Where("created_at >= ?", *filters.StartDate)
	}
	if filters.EndDate != nil {
		query = query.Where("created_at <= ?", *filters.EndDate)
	}
	if filters.TransactionType != nil && *filters.TransactionType != "" {
		query = query.Where("transaction_type = ?", *filters.TransactionType)
	}
	return query
}
