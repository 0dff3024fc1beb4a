package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flipmyera/credit-ledger/internal/domain/dto"
	domainErrors "github.com/flipmyera/credit-ledger/internal/domain/errors"
	"github.com/flipmyera/credit-ledger/internal/domain/model"
	"github.com/flipmyera/credit-ledger/internal/domain/repository"
)

// AdminService backs the operator credit tools.
type AdminService struct {
	ledger       repository.LedgerRepository
	transactions repository.CreditTransactionRepository
	profiles     repository.ProfileRepository
	credits      *CreditService
	logger       *zap.Logger
}

// NewAdminService creates a new admin service
func NewAdminService(
	ledger repository.LedgerRepository,
	transactions repository.CreditTransactionRepository,
	profiles repository.ProfileRepository,
	credits *CreditService,
	logger *zap.Logger,
) *AdminService {
	return &AdminService{
		ledger:       ledger,
		transactions: transactions,
		profiles:     profiles,
		credits:      credits,
		logger:       logger,
	}
}

// GetAccount returns a user's ledger state, including the transaction sum so
// operators can see the balance invariant hold.
func (s *AdminService) GetAccount(ctx context.Context, userID string) (*dto.AccountDTO, error) {
	if err := s.requireProfile(ctx, userID); err != nil {
		return nil, err
	}

	balance, err := s.ledger.EnsureBalance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}

	sum, err := s.ledger.SumTransactions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum transactions: %w", err)
	}

	txns, err := s.transactions.GetTransactions(ctx, dto.TransactionFilters{UserID: userID, Limit: recentTransactionLimit})
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}

	if sum != balance.Balance {
		s.logger.Error("Ledger sum does not match balance",
			zap.String("user_id", userID),
			zap.Int64("balance", balance.Balance),
			zap.Int64("ledger_sum", sum))
	}

	account := &dto.AccountDTO{
		UserID:             userID,
		Balance:            balance.Balance,
		SubscriptionStatus: string(balance.SubscriptionStatus),
		SubscriptionType:   balance.SubscriptionType,
		TotalEarned:        balance.TotalEarned,
		TotalSpent:         balance.TotalSpent,
		LedgerSum:          sum,
		RecentTransactions: toRecentTransactions(txns),
		UpdatedAt:          balance.UpdatedAt,
	}
	if balance.StripeSubscriptionID != nil {
		account.StripeSubscriptionID = *balance.StripeSubscriptionID
	}
	return account, nil
}

// GrantCredits adds credits on an operator's behalf.
func (s *AdminService) GrantCredits(ctx context.Context, adminID string, req dto.AdminGrantRequest) (*dto.AdminGrantData, error) {
	if err := s.requireProfile(ctx, req.UserID); err != nil {
		return nil, err
	}

	metadata := map[string]interface{}{
		"granted_by": adminID,
		"reason":     req.Reason,
	}
	if req.AdminNote != "" {
		metadata["admin_note"] = req.AdminNote
	}

	result, err := s.credits.Grant(ctx, repository.Entry{
		UserID:         req.UserID,
		Amount:         req.CreditsToAdd,
		Type:           model.TransactionTypeAdminGrant,
		Description:    fmt.Sprintf("Admin grant: %s", req.Reason),
		IdempotencyKey: AdminGrantKey(uuid.NewString()),
		Metadata:       metadata,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Admin granted credits",
		zap.String("admin_id", adminID),
		zap.String("user_id", req.UserID),
		zap.Int64("credits", req.CreditsToAdd),
		zap.Int64("new_balance", result.Balance.Balance))

	return &dto.AdminGrantData{
		UserID:        req.UserID,
		CreditsAdded:  req.CreditsToAdd,
		NewBalance:    result.Balance.Balance,
		TransactionID: result.Transaction.ID.String(),
	}, nil
}

// RevokeCredits removes credits on an operator's behalf, clamping at zero.
func (s *AdminService) RevokeCredits(ctx context.Context, adminID string, req dto.AdminRevokeRequest) (*dto.AdminRevokeData, error) {
	if err := s.requireProfile(ctx, req.UserID); err != nil {
		return nil, err
	}

	metadata := map[string]interface{}{
		"revoked_by": adminID,
		"reason":     req.Reason,
	}
	if req.AdminNote != "" {
		metadata["admin_note"] = req.AdminNote
	}

	result, err := s.credits.Revoke(ctx, repository.Entry{
		UserID:         req.UserID,
		Amount:         req.CreditsToRevoke,
		Type:           model.TransactionTypeAdminRevoke,
		Description:    fmt.Sprintf("Admin revocation: %s", req.Reason),
		IdempotencyKey: AdminRevokeKey(uuid.NewString()),
		Metadata:       metadata,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Admin revoked credits",
		zap.String("admin_id", adminID),
		zap.String("user_id", req.UserID),
		zap.Int64("requested", req.CreditsToRevoke),
		zap.Int64("revoked", result.Revoked),
		zap.Int64("new_balance", result.Balance.Balance))

	return &dto.AdminRevokeData{
		UserID:         req.UserID,
		CreditsRevoked: result.Revoked,
		NewBalance:     result.Balance.Balance,
		TransactionID:  result.Transaction.ID.String(),
	}, nil
}

func (s *AdminService) requireProfile(ctx context.Context, userID string) error {
	profile, err := s.profiles.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to look up profile: %w", err)
	}
	if profile == nil {
		return domainErrors.ErrUserNotFound
	}
	return nil
}
