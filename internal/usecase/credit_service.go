package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/flipmyera/credit-ledger/internal/domain/dto"
	domainErrors "github.com/flipmyera/credit-ledger/internal/domain/errors"
	"github.com/flipmyera/credit-ledger/internal/domain/model"
	"github.com/flipmyera/credit-ledger/internal/domain/repository"
)

const recentTransactionLimit = 10

// CreditService is the credit ledger: atomic grants, deductions and revocations
// over the ledger repository, plus the balance reads served to clients.
type CreditService struct {
	ledger       repository.LedgerRepository
	transactions repository.CreditTransactionRepository
	events       *EventPublisher
	logger       *zap.Logger
}

// NewCreditService creates a new credit service instance
func NewCreditService(
	ledger repository.LedgerRepository,
	transactions repository.CreditTransactionRepository,
	events *EventPublisher,
	logger *zap.Logger,
) *CreditService {
	return &CreditService{
		ledger:       ledger,
		transactions: transactions,
		events:       events,
		logger:       logger,
	}
}

// Grant adds credits. A recorded idempotency key makes it a no-op returning the existing state.
func (s *CreditService) Grant(ctx context.Context, entry repository.Entry) (*repository.Result, error) {
	if entry.Amount <= 0 {
		return nil, domainErrors.ErrInvalidAmount
	}

	result, err := s.ledger.Grant(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("grant %d credits to %s: %w", entry.Amount, entry.UserID, err)
	}
	if !result.Duplicate {
		s.events.PublishTransaction(ctx, result.Transaction)
	}
	return result, nil
}

// Deduct spends credits only when the balance covers them. An uncovered amount
// is reported through Success=false, not as an error.
func (s *CreditService) Deduct(ctx context.Context, entry repository.Entry) (*repository.DeductResult, error) {
	if entry.Amount <= 0 {
		return nil, domainErrors.ErrInvalidAmount
	}

	result, err := s.ledger.Deduct(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("deduct %d credits from %s: %w", entry.Amount, entry.UserID, err)
	}
	if result.Success && !result.Duplicate {
		s.events.PublishTransaction(ctx, result.Transaction)
	}
	return result, nil
}

// Revoke removes up to entry.Amount credits, never driving the balance negative.
func (s *CreditService) Revoke(ctx context.Context, entry repository.Entry) (*repository.RevokeResult, error) {
	if entry.Amount <= 0 {
		return nil, domainErrors.ErrInvalidAmount
	}

	result, err := s.ledger.Revoke(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("revoke %d credits from %s: %w", entry.Amount, entry.UserID, err)
	}
	if !result.Duplicate {
		s.events.PublishTransaction(ctx, result.Transaction)
	}
	return result, nil
}

// RevokeRefund brings the credits revoked for a refunded payment intent up to
// entry.Amount. Nothing is recorded when earlier refunds already reached it.
func (s *CreditService) RevokeRefund(ctx context.Context, entry repository.Entry) (*repository.RevokeResult, error) {
	if entry.Amount <= 0 {
		return nil, domainErrors.ErrInvalidAmount
	}

	result, err := s.ledger.RevokeRefund(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("revoke refund of %s from %s: %w", entry.StripePaymentIntentID, entry.UserID, err)
	}
	if !result.Duplicate {
		s.events.PublishTransaction(ctx, result.Transaction)
	}
	return result, nil
}

// Note records a zero-amount ledger entry.
func (s *CreditService) Note(ctx context.Context, entry repository.Entry) (*repository.Result, error) {
	entry.Amount = 0
	result, err := s.ledger.Note(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("record %s note for %s: %w", entry.Type, entry.UserID, err)
	}
	if !result.Duplicate {
		s.events.PublishTransaction(ctx, result.Transaction)
	}
	return result, nil
}

// GetCredits returns the caller's balance, creating an empty account on first access.
func (s *CreditService) GetCredits(ctx context.Context, userID string, includeTransactions bool) (*dto.CreditsData, error) {
	balance, err := s.ledger.EnsureBalance(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to load credit balance",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get credit balance: %w", err)
	}

	data := &dto.CreditsData{
		Balance: dto.BalanceDTO{
			Balance:          balance.Balance,
			SubscriptionType: balance.SubscriptionType,
			LastUpdated:      balance.UpdatedAt,
		},
	}

	if includeTransactions {
		recent, err := s.recentTransactions(ctx, userID)
		if err != nil {
			return nil, err
		}
		data.RecentTransactions = recent
	}

	return data, nil
}

// ValidateGeneration checks and deducts the credits a generation needs. Active
// unlimited subscribers are not charged; a zero-amount entry is recorded instead.
// A generation id makes retries of the same generation free.
func (s *CreditService) ValidateGeneration(ctx context.Context, userID string, req dto.ValidateCreditsRequest) (*dto.ValidateCreditsData, error) {
	balance, err := s.ledger.EnsureBalance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get credit balance: %w", err)
	}

	entry := repository.Entry{
		UserID:      userID,
		Amount:      req.CreditsRequired,
		Type:        model.TransactionTypeEbookGeneration,
		Description: fmt.Sprintf("Generation of %s", req.StoryType),
		Metadata: map[string]interface{}{
			"story_type":       req.StoryType,
			"credits_required": req.CreditsRequired,
		},
	}
	if req.GenerationID != "" {
		entry.IdempotencyKey = GenerationKey(userID, req.GenerationID)
		entry.Metadata["generation_id"] = req.GenerationID
	}

	if balance.HasUnlimitedPlan() {
		entry.Description = fmt.Sprintf("Generation of %s (unlimited plan)", req.StoryType)
		entry.Metadata["bypass_credits"] = true
		result, err := s.Note(ctx, entry)
		if err != nil {
			return nil, err
		}
		return &dto.ValidateCreditsData{
			HasSufficientCredits: true,
			CurrentBalance:       result.Balance.Balance,
			SubscriptionType:     result.Balance.SubscriptionType,
			TransactionID:        result.Transaction.ID.String(),
			BypassCredits:        true,
		}, nil
	}

	result, err := s.Deduct(ctx, entry)
	if err != nil {
		return nil, err
	}

	data := &dto.ValidateCreditsData{
		HasSufficientCredits: result.Success,
		CurrentBalance:       balanceValue(result.Balance),
		SubscriptionType:     balance.SubscriptionType,
	}
	if result.Balance != nil {
		data.SubscriptionType = result.Balance.SubscriptionType
	}
	if result.Success && result.Transaction != nil {
		data.TransactionID = result.Transaction.ID.String()
	}
	if !result.Success {
		s.logger.Info("Generation rejected for insufficient credits",
			zap.String("user_id", userID),
			zap.Error(domainErrors.NewInsufficientBalanceError(userID, req.CreditsRequired, data.CurrentBalance)))
	}

	return data, nil
}

func (s *CreditService) recentTransactions(ctx context.Context, userID string) ([]dto.RecentTransactionDTO, error) {
	filters := dto.TransactionFilters{UserID: userID, Limit: recentTransactionLimit}
	txns, err := s.transactions.GetTransactions(ctx, filters)
	if err != nil {
		s.logger.Error("Failed to load recent transactions",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get recent transactions: %w", err)
	}
	return toRecentTransactions(txns), nil
}

func toRecentTransactions(txns []model.CreditTransaction) []dto.RecentTransactionDTO {
	out := make([]dto.RecentTransactionDTO, len(txns))
	for i, tx := range txns {
		out[i] = dto.RecentTransactionDTO{
			ID:              tx.ID.String(),
			Type:            string(tx.TransactionType),
			Amount:          tx.Amount,
			Description:     tx.Description,
			TransactionDate: tx.CreatedAt,
		}
	}
	return out
}

func balanceValue(b *model.CreditBalance) int64 {
	if b == nil {
		return 0
	}
	return b.Balance
}
