package usecase_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/flipmyera/credit-ledger/internal/domain/dto"
	domainErrors "github.com/flipmyera/credit-ledger/internal/domain/errors"
	"github.com/flipmyera/credit-ledger/internal/domain/model"
	"github.com/flipmyera/credit-ledger/internal/usecase"
)

func TestAdminService(t *testing.T) {
	ctx := context.Background()
	env := newLedgerEnv(t)
	env.seedProfile(t, "user_1", "reader@example.com", nil)
	admin := usecase.NewAdminService(env.repos.Ledger, env.repos.Transactions, env.repos.Profiles, env.credits, zap.NewNop())

	req := dto.AdminGrantRequest{UserID: "user_1", CreditsToAdd: 7, Reason: "support ticket", AdminNote: "goodwill"}

	first, err := admin.GrantCredits(ctx, "admin_1", req)
	require.NoError(t, err)
	assert.Equal(t, int64(7), first.NewBalance)

	// Each admin grant is a distinct economic event.
	second, err := admin.GrantCredits(ctx, "admin_1", req)
	require.NoError(t, err)
	assert.Equal(t, int64(14), second.NewBalance)
	assert.NotEqual(t, first.TransactionID, second.TransactionID)

	account, err := admin.GetAccount(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, int64(14), account.Balance)
	assert.Equal(t, account.Balance, account.LedgerSum)
	assert.Equal(t, int64(14), account.TotalEarned)
	require.Len(t, account.RecentTransactions, 2)
	assert.Equal(t, string(model.TransactionTypeAdminGrant), account.RecentTransactions[0].Type)

	_, err = admin.GrantCredits(ctx, "admin_1", dto.AdminGrantRequest{UserID: "ghost", CreditsToAdd: 1, Reason: "x"})
	assert.ErrorIs(t, err, domainErrors.ErrUserNotFound)

	revoked, err := admin.RevokeCredits(ctx, "admin_1", dto.AdminRevokeRequest{UserID: "user_1", CreditsToRevoke: 4, Reason: "chargeback"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), revoked.CreditsRevoked)
	assert.Equal(t, int64(10), revoked.NewBalance)

	// More than the balance clamps at zero.
	clamped, err := admin.RevokeCredits(ctx, "admin_1", dto.AdminRevokeRequest{UserID: "user_1", CreditsToRevoke: 25, Reason: "fraud"})
	require.NoError(t, err)
	assert.Equal(t, int64(10), clamped.CreditsRevoked)
	assert.Zero(t, clamped.NewBalance)
	env.assertConsistent(t, "user_1")

	var revocations []int64
	for _, txn := range env.transactions(t, "user_1") {
		if txn.TransactionType == model.TransactionTypeAdminRevoke {
			revocations = append(revocations, txn.Amount)
		}
	}
	assert.ElementsMatch(t, []int64{-4, -10}, revocations)

	_, err = admin.RevokeCredits(ctx, "admin_1", dto.AdminRevokeRequest{UserID: "ghost", CreditsToRevoke: 1, Reason: "x"})
	assert.ErrorIs(t, err, domainErrors.ErrUserNotFound)

	_, err = admin.GetAccount(ctx, "ghost")
	assert.ErrorIs(t, err, domainErrors.ErrUserNotFound)
}
