package usecase_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flipmyera/credit-ledger/internal/domain/dto"
	domainErrors "github.com/flipmyera/credit-ledger/internal/domain/errors"
	"github.com/flipmyera/credit-ledger/internal/domain/model"
	"github.com/flipmyera/credit-ledger/internal/domain/repository"
	"github.com/flipmyera/credit-ledger/internal/usecase"
)

func repositoryEntry(userID string, amount int64) repository.Entry {
	return repository.Entry{
		UserID: userID,
		Amount: amount,
		Type:   model.TransactionTypeEbookGeneration,
	}
}

func grant(t *testing.T, env *ledgerEnv, userID string, amount int64, key string) {
	t.Helper()
	_, err := env.credits.Grant(context.Background(), repository.Entry{
		UserID:         userID,
		Amount:         amount,
		Type:           model.TransactionTypePurchase,
		IdempotencyKey: key,
	})
	require.NoError(t, err)
}

func TestCreditService_RejectsNonPositiveAmounts(t *testing.T) {
	env := newLedgerEnv(t)
	ctx := context.Background()

	_, err := env.credits.Grant(ctx, repositoryEntry("user_1", 0))
	assert.ErrorIs(t, err, domainErrors.ErrInvalidAmount)
	_, err = env.credits.Deduct(ctx, repositoryEntry("user_1", -1))
	assert.ErrorIs(t, err, domainErrors.ErrInvalidAmount)
	_, err = env.credits.Revoke(ctx, repositoryEntry("user_1", 0))
	assert.ErrorIs(t, err, domainErrors.ErrInvalidAmount)
	_, err = env.credits.RevokeRefund(ctx, repositoryEntry("user_1", 0))
	assert.ErrorIs(t, err, domainErrors.ErrInvalidAmount)
}

func TestCreditService_ConcurrentDeductions(t *testing.T) {
	env := newLedgerEnv(t)
	grant(t, env, "user_1", 50, "checkout:cs_seed")

	var wg sync.WaitGroup
	results := make([]*repository.DeductResult, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := env.credits.Deduct(context.Background(), repositoryEntry("user_1", 30))
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, res := range results {
		require.NotNil(t, res)
		if res.Success {
			successes++
		}
	}
	assert.Equal(t, 1, successes, "exactly one deduction may succeed")
	assert.Equal(t, int64(20), env.balance(t, "user_1"))
	env.assertConsistent(t, "user_1")
}

func TestCreditService_GetCredits(t *testing.T) {
	ctx := context.Background()

	t.Run("creates an empty account", func(t *testing.T) {
		env := newLedgerEnv(t)

		data, err := env.credits.GetCredits(ctx, "user_new", true)
		require.NoError(t, err)
		assert.Zero(t, data.Balance.Balance)
		assert.Equal(t, model.SubscriptionTypeFree, data.Balance.SubscriptionType)
		assert.Empty(t, data.RecentTransactions)
	})

	t.Run("recent transactions newest first", func(t *testing.T) {
		env := newLedgerEnv(t)
		grant(t, env, "user_1", 5, "checkout:cs_1")
		grant(t, env, "user_1", 3, "checkout:cs_2")

		data, err := env.credits.GetCredits(ctx, "user_1", true)
		require.NoError(t, err)
		assert.Equal(t, int64(8), data.Balance.Balance)
		require.Len(t, data.RecentTransactions, 2)

		without, err := env.credits.GetCredits(ctx, "user_1", false)
		require.NoError(t, err)
		assert.Nil(t, without.RecentTransactions)
	})
}

func TestCreditService_ValidateGeneration(t *testing.T) {
	ctx := context.Background()
	req := dto.ValidateCreditsRequest{CreditsRequired: 2, StoryType: "short_story"}

	t.Run("deducts when covered", func(t *testing.T) {
		env := newLedgerEnv(t)
		grant(t, env, "user_1", 5, "checkout:cs_1")

		data, err := env.credits.ValidateGeneration(ctx, "user_1", req)
		require.NoError(t, err)
		assert.True(t, data.HasSufficientCredits)
		assert.Equal(t, int64(3), data.CurrentBalance)
		assert.NotEmpty(t, data.TransactionID)
		assert.False(t, data.BypassCredits)
		env.assertConsistent(t, "user_1")
	})

	t.Run("insufficient credits is a structured failure", func(t *testing.T) {
		env := newLedgerEnv(t)
		grant(t, env, "user_1", 1, "checkout:cs_1")

		data, err := env.credits.ValidateGeneration(ctx, "user_1", req)
		require.NoError(t, err)
		assert.False(t, data.HasSufficientCredits)
		assert.Equal(t, int64(1), data.CurrentBalance)
		assert.Empty(t, data.TransactionID)
		assert.Len(t, env.transactions(t, "user_1"), 1)
	})

	t.Run("retried generation is charged once", func(t *testing.T) {
		env := newLedgerEnv(t)
		grant(t, env, "user_1", 5, "checkout:cs_1")

		withID := req
		withID.GenerationID = "gen_42"
		first, err := env.credits.ValidateGeneration(ctx, "user_1", withID)
		require.NoError(t, err)
		second, err := env.credits.ValidateGeneration(ctx, "user_1", withID)
		require.NoError(t, err)

		assert.True(t, second.HasSufficientCredits)
		assert.Equal(t, first.TransactionID, second.TransactionID)
		assert.Equal(t, int64(3), env.balance(t, "user_1"))

		seen, err := env.repos.Ledger.HasProcessed(ctx, usecase.GenerationKey("user_1", "gen_42"))
		require.NoError(t, err)
		assert.True(t, seen)
	})

	t.Run("unlimited subscribers bypass credits", func(t *testing.T) {
		env := newLedgerEnv(t)
		_, err := env.repos.Ledger.UpdateSubscription(ctx, repository.SubscriptionUpdate{
			UserID:           "user_1",
			Status:           model.SubscriptionStatusActive,
			SubscriptionType: model.SubscriptionTypeMonthlyUnlimited,
		})
		require.NoError(t, err)

		data, err := env.credits.ValidateGeneration(ctx, "user_1", req)
		require.NoError(t, err)
		assert.True(t, data.HasSufficientCredits)
		assert.True(t, data.BypassCredits)
		assert.Zero(t, data.CurrentBalance)
		assert.Equal(t, model.SubscriptionTypeMonthlyUnlimited, data.SubscriptionType)

		txns := env.transactions(t, "user_1")
		require.Len(t, txns, 1)
		assert.Zero(t, txns[0].Amount)
		assert.Equal(t, model.TransactionTypeEbookGeneration, txns[0].TransactionType)
	})
}
