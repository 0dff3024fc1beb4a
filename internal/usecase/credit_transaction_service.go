package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/flipmyera/credit-ledger/internal/domain/dto"
	"github.com/flipmyera/credit-ledger/internal/domain/repository"
)

const maxDescriptionLength = 100

// CreditTransactionService handles credit transaction history
type CreditTransactionService struct {
	transactionRepo repository.CreditTransactionRepository
	logger          *zap.Logger
}

// NewCreditTransactionService creates a new credit transaction service
func NewCreditTransactionService(
	transactionRepo repository.CreditTransactionRepository,
	logger *zap.Logger,
) *CreditTransactionService {
	return &CreditTransactionService{
		transactionRepo: transactionRepo,
		logger:          logger,
	}
}

// GetUserTransactionHistory retrieves a user's transaction history with pagination and filters
func (s *CreditTransactionService) GetUserTransactionHistory(
	ctx context.Context,
	userID string,
	filters dto.TransactionFilters,
) (*dto.TransactionListResponse, error) {
	// Set user ID and defaults
	filters.UserID = userID
	filters.SetDefaults()

	transactions, err := s.transactionRepo.GetTransactions(ctx, filters)
	if err != nil {
		s.logger.Error("failed to get transactions",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get transaction history: %w", err)
	}

	totalCount, err := s.transactionRepo.CountTransactions(ctx, filters)
	if err != nil {
		s.logger.Error("failed to count transactions",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}

	transactionDTOs := make([]dto.CreditTransactionDTO, len(transactions))
	for i, tx := range transactions {
		description := truncateDescription(tx.Description)

		transactionDTOs[i] = dto.CreditTransactionDTO{
			ID:                      tx.ID.String(),
			TransactionType:         string(tx.TransactionType),
			Amount:                  tx.Amount,
			BalanceAfterTransaction: tx.BalanceAfterTransaction,
			Description:             description,
			Metadata:                tx.MetadataMap(),
			CreatedAt:               tx.CreatedAt,
		}
	}

	hasMore := int64(filters.Offset+filters.Limit) < totalCount

	return &dto.TransactionListResponse{
		Transactions: transactionDTOs,
		Pagination: dto.PaginationInfo{
			Total:   totalCount,
			Limit:   filters.Limit,
			Offset:  filters.Offset,
			HasMore: hasMore,
		},
	}, nil
}

// truncateDescription limits s to maxDescriptionLength characters, cutting on
// rune boundaries so multi-byte descriptions stay valid UTF-8.
func truncateDescription(s string) string {
	runes := []rune(s)
	if len(runes) <= maxDescriptionLength {
		return s
	}
	return string(runes[:maxDescriptionLength-3]) + "..."
}
