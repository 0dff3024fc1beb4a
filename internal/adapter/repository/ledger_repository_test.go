package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	domainerrors "github.com/flipmyera/credit-ledger/internal/domain/errors"
	"github.com/flipmyera/credit-ledger/internal/domain/model"
	domainRepo "github.com/flipmyera/credit-ledger/internal/domain/repository"
)

func newTestLedger(t *testing.T) *ledgerRepository {
	t.Helper()
	repo := NewLedgerRepository(newTestDB(t), zap.NewNop()).(*ledgerRepository)
	repo.now = steppingClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	return repo
}

func assertLedgerConsistent(t *testing.T, repo *ledgerRepository, userID string) {
	t.Helper()
	ctx := context.Background()

	balance, err := repo.GetBalance(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, balance)

	sum, err := repo.SumTransactions(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, balance.Balance, sum, "balance must equal the sum of transactions")
	assert.GreaterOrEqual(t, balance.Balance, int64(0))
}

func TestLedgerRepository_Grant(t *testing.T) {
	ctx := context.Background()

	t.Run("creates the balance row on first grant", func(t *testing.T) {
		repo := newTestLedger(t)

		res, err := repo.Grant(ctx, domainRepo.Entry{
			UserID:          "user_1",
			Amount:          5,
			Type:            model.TransactionTypePurchase,
			Description:     "Purchased 5 credits",
			IdempotencyKey:  "checkout:cs_1",
			StripeSessionID: "cs_1",
			Metadata:        map[string]interface{}{"amount_paid": 999},
		})
		require.NoError(t, err)

		assert.False(t, res.Duplicate)
		assert.Equal(t, int64(5), res.Balance.Balance)
		assert.Equal(t, int64(5), res.Balance.TotalEarned)
		assert.Equal(t, model.SubscriptionStatusNone, res.Balance.SubscriptionStatus)
		assert.Equal(t, int64(5), res.Transaction.Amount)
		assert.Equal(t, int64(5), res.Transaction.BalanceAfterTransaction)
		assert.Equal(t, model.TransactionTypePurchase, res.Transaction.TransactionType)
		assert.EqualValues(t, 999, res.Transaction.MetadataMap()["amount_paid"])
		assertLedgerConsistent(t, repo, "user_1")
	})

	t.Run("adds to an existing balance", func(t *testing.T) {
		repo := newTestLedger(t)

		_, err := repo.Grant(ctx, domainRepo.Entry{UserID: "user_1", Amount: 5, Type: model.TransactionTypePurchase, IdempotencyKey: "checkout:cs_1"})
		require.NoError(t, err)
		res, err := repo.Grant(ctx, domainRepo.Entry{UserID: "user_1", Amount: 3, Type: model.TransactionTypeMonthlyAllocation, IdempotencyKey: "allocation:sub_1:1"})
		require.NoError(t, err)

		assert.Equal(t, int64(8), res.Balance.Balance)
		assert.Equal(t, int64(8), res.Balance.TotalEarned)
		assertLedgerConsistent(t, repo, "user_1")
	})

	t.Run("same idempotency key grants once", func(t *testing.T) {
		repo := newTestLedger(t)
		entry := domainRepo.Entry{UserID: "user_1", Amount: 5, Type: model.TransactionTypePurchase, IdempotencyKey: "checkout:cs_1"}

		first, err := repo.Grant(ctx, entry)
		require.NoError(t, err)
		second, err := repo.Grant(ctx, entry)
		require.NoError(t, err)

		assert.True(t, second.Duplicate)
		assert.Equal(t, first.Transaction.ID, second.Transaction.ID)
		assert.Equal(t, int64(5), second.Balance.Balance)

		seen, err := repo.HasProcessed(ctx, "checkout:cs_1")
		require.NoError(t, err)
		assert.True(t, seen)
		assertLedgerConsistent(t, repo, "user_1")
	})

	t.Run("concurrent redelivery grants once", func(t *testing.T) {
		repo := newTestLedger(t)
		entry := domainRepo.Entry{UserID: "user_1", Amount: 5, Type: model.TransactionTypePurchase, IdempotencyKey: "checkout:cs_race"}

		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.Grant(ctx, entry)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		balance, err := repo.GetBalance(ctx, "user_1")
		require.NoError(t, err)
		assert.Equal(t, int64(5), balance.Balance)
		assertLedgerConsistent(t, repo, "user_1")
	})

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		repo := newTestLedger(t)
		_, err := repo.Grant(ctx, domainRepo.Entry{UserID: "user_1", Amount: 0, Type: model.TransactionTypePurchase})
		assert.ErrorIs(t, err, domainerrors.ErrInvalidAmount)
	})
}

func TestLedgerRepository_Deduct(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T, repo *ledgerRepository, amount int64) {
		t.Helper()
		_, err := repo.Grant(ctx, domainRepo.Entry{UserID: "user_1", Amount: amount, Type: model.TransactionTypePurchase, IdempotencyKey: "seed"})
		require.NoError(t, err)
	}

	t.Run("deducts when the balance covers the amount", func(t *testing.T) {
		repo := newTestLedger(t)
		seed(t, repo, 10)

		res, err := repo.Deduct(ctx, domainRepo.Entry{UserID: "user_1", Amount: 3, Type: model.TransactionTypeEbookGeneration})
		require.NoError(t, err)

		assert.True(t, res.Success)
		assert.Equal(t, int64(7), res.Balance.Balance)
		assert.Equal(t, int64(3), res.Balance.TotalSpent)
		assert.Equal(t, int64(-3), res.Transaction.Amount)
		assertLedgerConsistent(t, repo, "user_1")
	})

	t.Run("insufficient balance mutates nothing", func(t *testing.T) {
		repo := newTestLedger(t)
		seed(t, repo, 2)

		res, err := repo.Deduct(ctx, domainRepo.Entry{UserID: "user_1", Amount: 3, Type: model.TransactionTypeEbookGeneration})
		require.NoError(t, err)

		assert.False(t, res.Success)
		assert.Nil(t, res.Transaction)
		assert.Equal(t, int64(2), res.Balance.Balance)
		assertLedgerConsistent(t, repo, "user_1")
	})

	t.Run("user without a balance row", func(t *testing.T) {
		repo := newTestLedger(t)

		res, err := repo.Deduct(ctx, domainRepo.Entry{UserID: "ghost", Amount: 1, Type: model.TransactionTypeEbookGeneration})
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Nil(t, res.Balance)
	})

	t.Run("two concurrent deductions of 30 against 50", func(t *testing.T) {
		repo := newTestLedger(t)
		seed(t, repo, 50)

		var wg sync.WaitGroup
		results := make([]*domainRepo.DeductResult, 2)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				res, err := repo.Deduct(ctx, domainRepo.Entry{UserID: "user_1", Amount: 30, Type: model.TransactionTypeEbookGeneration})
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
		assert.Equal(t, 1, successes)

		balance, err := repo.GetBalance(ctx, "user_1")
		require.NoError(t, err)
		assert.Equal(t, int64(20), balance.Balance)
		assertLedgerConsistent(t, repo, "user_1")
	})

	t.Run("many concurrent deductions never overspend", func(t *testing.T) {
		repo := newTestLedger(t)
		seed(t, repo, 10)

		var wg sync.WaitGroup
		var mu sync.Mutex
		spent := int64(0)
		for i := 0; i < 25; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := repo.Deduct(ctx, domainRepo.Entry{UserID: "user_1", Amount: 1, Type: model.TransactionTypeEbookGeneration})
				if assert.NoError(t, err) && res.Success {
					mu.Lock()
					spent++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int64(10), spent)
		assertLedgerConsistent(t, repo, "user_1")
	})

	t.Run("generation key charges once", func(t *testing.T) {
		repo := newTestLedger(t)
		seed(t, repo, 5)
		entry := domainRepo.Entry{UserID: "user_1", Amount: 2, Type: model.TransactionTypeEbookGeneration, IdempotencyKey: "generation:user_1:gen_1"}

		first, err := repo.Deduct(ctx, entry)
		require.NoError(t, err)
		second, err := repo.Deduct(ctx, entry)
		require.NoError(t, err)

		assert.True(t, first.Success)
		assert.True(t, second.Success)
		assert.True(t, second.Duplicate)
		assert.Equal(t, first.Transaction.ID, second.Transaction.ID)
		assert.Equal(t, int64(3), second.Balance.Balance)
		assertLedgerConsistent(t, repo, "user_1")
	})
}

func TestLedgerRepository_Revoke(t *testing.T) {
	ctx := context.Background()

	t.Run("revokes the requested amount", func(t *testing.T) {
		repo := newTestLedger(t)
		_, err := repo.Grant(ctx, domainRepo.Entry{UserID: "user_1", Amount: 10, Type: model.TransactionTypePurchase, IdempotencyKey: "checkout:cs_1"})
		require.NoError(t, err)

		res, err := repo.Revoke(ctx, domainRepo.Entry{UserID: "user_1", Amount: 4, Type: model.TransactionTypeAdminRevoke, IdempotencyKey: "admin_revoke:1"})
		require.NoError(t, err)

		assert.Equal(t, int64(4), res.Revoked)
		assert.Equal(t, int64(6), res.Balance.Balance)
		assert.Equal(t, int64(-4), res.Transaction.Amount)
		assert.EqualValues(t, 4, res.Transaction.MetadataMap()["requested_revocation"])
		assertLedgerConsistent(t, repo, "user_1")
	})

	t.Run("clamps at zero after credits were spent", func(t *testing.T) {
		repo := newTestLedger(t)
		_, err := repo.Grant(ctx, domainRepo.Entry{UserID: "user_1", Amount: 10, Type: model.TransactionTypePurchase, IdempotencyKey: "checkout:cs_1"})
		require.NoError(t, err)
		_, err = repo.Deduct(ctx, domainRepo.Entry{UserID: "user_1", Amount: 8, Type: model.TransactionTypeEbookGeneration})
		require.NoError(t, err)

		res, err := repo.Revoke(ctx, domainRepo.Entry{UserID: "user_1", Amount: 10, Type: model.TransactionTypeAdminRevoke, IdempotencyKey: "admin_revoke:1"})
		require.NoError(t, err)

		assert.Equal(t, int64(2), res.Revoked)
		assert.Equal(t, int64(0), res.Balance.Balance)
		assertLedgerConsistent(t, repo, "user_1")
	})

	t.Run("same key revokes once", func(t *testing.T) {
		repo := newTestLedger(t)
		_, err := repo.Grant(ctx, domainRepo.Entry{UserID: "user_1", Amount: 10, Type: model.TransactionTypePurchase, IdempotencyKey: "checkout:cs_1"})
		require.NoError(t, err)

		entry := domainRepo.Entry{UserID: "user_1", Amount: 4, Type: model.TransactionTypeAdminRevoke, IdempotencyKey: "admin_revoke:1"}
		_, err = repo.Revoke(ctx, entry)
		require.NoError(t, err)
		dup, err := repo.Revoke(ctx, entry)
		require.NoError(t, err)

		assert.True(t, dup.Duplicate)
		assert.Equal(t, int64(4), dup.Revoked)
		assert.Equal(t, int64(6), dup.Balance.Balance)
		assertLedgerConsistent(t, repo, "user_1")
	})
}

func TestLedgerRepository_NoteAndSubscription(t *testing.T) {
	ctx := context.Background()
	repo := newTestLedger(t)

	note, err := repo.Note(ctx, domainRepo.Entry{UserID: "user_1", Type: model.TransactionTypePaymentFailed, IdempotencyKey: "payment_failed:in_1"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), note.Transaction.Amount)
	assert.Equal(t, int64(0), note.Balance.Balance)

	dup, err := repo.Note(ctx, domainRepo.Entry{UserID: "user_1", Type: model.TransactionTypePaymentFailed, IdempotencyKey: "payment_failed:in_1"})
	require.NoError(t, err)
	assert.True(t, dup.Duplicate)

	updated, err := repo.UpdateSubscription(ctx, domainRepo.SubscriptionUpdate{
		UserID:               "user_1",
		Status:               model.SubscriptionStatusActive,
		SubscriptionType:     model.SubscriptionTypeMonthlyUnlimited,
		StripeSubscriptionID: "sub_1",
	})
	require.NoError(t, err)
	assert.True(t, updated.Applied)
	balance := updated.Balance
	assert.Equal(t, model.SubscriptionStatusActive, balance.SubscriptionStatus)
	assert.True(t, balance.HasUnlimitedPlan())

	// A status-only update keeps the stored type and subscription id.
	updated, err = repo.UpdateSubscription(ctx, domainRepo.SubscriptionUpdate{UserID: "user_1", Status: model.SubscriptionStatusPastDue})
	require.NoError(t, err)
	balance = updated.Balance
	assert.Equal(t, model.SubscriptionStatusPastDue, balance.SubscriptionStatus)
	assert.Equal(t, model.SubscriptionTypeMonthlyUnlimited, balance.SubscriptionType)
	require.NotNil(t, balance.StripeSubscriptionID)
	assert.Equal(t, "sub_1", *balance.StripeSubscriptionID)
	assert.False(t, balance.HasUnlimitedPlan())

	// Subscription for a user with no balance row yet.
	updated, err = repo.UpdateSubscription(ctx, domainRepo.SubscriptionUpdate{UserID: "user_2", Status: model.SubscriptionStatusActive, SubscriptionType: "annual"})
	require.NoError(t, err)
	balance = updated.Balance
	assert.Equal(t, int64(0), balance.Balance)
	assert.Equal(t, "annual", balance.SubscriptionType)

	assertLedgerConsistent(t, repo, "user_1")
}

func TestLedgerRepository_UpdateSubscriptionOrdering(t *testing.T) {
	ctx := context.Background()
	repo := newTestLedger(t)
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	deleted, err := repo.UpdateSubscription(ctx, domainRepo.SubscriptionUpdate{
		UserID:               "user_1",
		Status:               model.SubscriptionStatusCancelled,
		StripeSubscriptionID: "sub_1",
		EventAt:              created.Add(100 * time.Second),
	})
	require.NoError(t, err)
	assert.True(t, deleted.Applied)
	require.NotNil(t, deleted.Balance.SubscriptionEventAt)

	stale, err := repo.UpdateSubscription(ctx, domainRepo.SubscriptionUpdate{
		UserID:               "user_1",
		Status:               model.SubscriptionStatusActive,
		SubscriptionType:     model.SubscriptionTypeMonthly,
		StripeSubscriptionID: "sub_1",
		EventAt:              created,
	})
	require.NoError(t, err)
	assert.False(t, stale.Applied)
	assert.Equal(t, model.SubscriptionStatusCancelled, stale.Balance.SubscriptionStatus)
	assert.Equal(t, model.SubscriptionTypeFree, stale.Balance.SubscriptionType)

	// Same second applies; ties come from one provider-side change.
	tied, err := repo.UpdateSubscription(ctx, domainRepo.SubscriptionUpdate{
		UserID:  "user_1",
		Status:  model.SubscriptionStatusPastDue,
		EventAt: created.Add(100 * time.Second),
	})
	require.NoError(t, err)
	assert.True(t, tied.Applied)
	assert.Equal(t, model.SubscriptionStatusPastDue, tied.Balance.SubscriptionStatus)

	newer, err := repo.UpdateSubscription(ctx, domainRepo.SubscriptionUpdate{
		UserID:           "user_1",
		Status:           model.SubscriptionStatusActive,
		SubscriptionType: model.SubscriptionTypeAnnual,
		EventAt:          created.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.True(t, newer.Applied)
	assert.Equal(t, model.SubscriptionStatusActive, newer.Balance.SubscriptionStatus)
	assert.Equal(t, model.SubscriptionTypeAnnual, newer.Balance.SubscriptionType)

	// Untimed updates (admin paths) always apply.
	untimed, err := repo.UpdateSubscription(ctx, domainRepo.SubscriptionUpdate{UserID: "user_1", Status: model.SubscriptionStatusNone})
	require.NoError(t, err)
	assert.True(t, untimed.Applied)
	assert.Equal(t, model.SubscriptionStatusNone, untimed.Balance.SubscriptionStatus)
}

func TestLedgerRepository_RevokeRefund(t *testing.T) {
	ctx := context.Background()

	purchase := func(t *testing.T) *ledgerRepository {
		repo := newTestLedger(t)
		_, err := repo.Grant(ctx, domainRepo.Entry{
			UserID: "user_1", Amount: 10, Type: model.TransactionTypePurchase,
			IdempotencyKey: "checkout:cs_1", StripePaymentIntentID: "pi_1",
		})
		require.NoError(t, err)
		return repo
	}
	refund := func(target int64, key string) domainRepo.Entry {
		return domainRepo.Entry{
			UserID: "user_1", Amount: target, Type: model.TransactionTypeRefund,
			IdempotencyKey: key, StripePaymentIntentID: "pi_1",
		}
	}

	t.Run("revokes only what earlier refunds did not", func(t *testing.T) {
		repo := purchase(t)

		first, err := repo.RevokeRefund(ctx, refund(4, "refund:ch_1:333"))
		require.NoError(t, err)
		assert.Equal(t, int64(4), first.Revoked)

		second, err := repo.RevokeRefund(ctx, refund(7, "refund:ch_1:666"))
		require.NoError(t, err)
		assert.Equal(t, int64(3), second.Revoked)
		assert.Equal(t, int64(-3), second.Transaction.Amount)
		assert.EqualValues(t, 3, second.Transaction.MetadataMap()["requested_revocation"])
		assert.EqualValues(t, 7, second.Transaction.MetadataMap()["revocation_target"])
		assert.Equal(t, int64(3), second.Balance.Balance)
		assertLedgerConsistent(t, repo, "user_1")
	})

	t.Run("target already reached writes nothing", func(t *testing.T) {
		repo := purchase(t)

		_, err := repo.RevokeRefund(ctx, refund(7, "refund:ch_1:666"))
		require.NoError(t, err)

		res, err := repo.RevokeRefund(ctx, refund(4, "refund:ch_1:333"))
		require.NoError(t, err)
		assert.Zero(t, res.Revoked)
		assert.Nil(t, res.Transaction)
		assert.False(t, res.Duplicate)
		assert.Equal(t, int64(3), res.Balance.Balance)

		seen, err := repo.HasProcessed(ctx, "refund:ch_1:333")
		require.NoError(t, err)
		assert.False(t, seen)
		assertLedgerConsistent(t, repo, "user_1")
	})

	t.Run("clamped refunds count what they requested", func(t *testing.T) {
		repo := purchase(t)
		_, err := repo.Deduct(ctx, domainRepo.Entry{UserID: "user_1", Amount: 9, Type: model.TransactionTypeEbookGeneration})
		require.NoError(t, err)

		first, err := repo.RevokeRefund(ctx, refund(5, "refund:ch_1:500"))
		require.NoError(t, err)
		assert.Equal(t, int64(1), first.Revoked)

		_, err = repo.Grant(ctx, domainRepo.Entry{UserID: "user_1", Amount: 20, Type: model.TransactionTypeAdminGrant, IdempotencyKey: "admin:1"})
		require.NoError(t, err)

		second, err := repo.RevokeRefund(ctx, refund(10, "refund:ch_1:1000"))
		require.NoError(t, err)
		assert.Equal(t, int64(5), second.Revoked)
		assert.Equal(t, int64(15), second.Balance.Balance)
		assertLedgerConsistent(t, repo, "user_1")
	})

	t.Run("same key is a duplicate", func(t *testing.T) {
		repo := purchase(t)

		_, err := repo.RevokeRefund(ctx, refund(5, "refund:ch_1:500"))
		require.NoError(t, err)
		dup, err := repo.RevokeRefund(ctx, refund(5, "refund:ch_1:500"))
		require.NoError(t, err)

		assert.True(t, dup.Duplicate)
		assert.Equal(t, int64(5), dup.Revoked)
		assert.Equal(t, int64(5), dup.Balance.Balance)
	})

	t.Run("requires a payment intent", func(t *testing.T) {
		repo := purchase(t)
		entry := refund(5, "refund:ch_1:500")
		entry.StripePaymentIntentID = ""

		_, err := repo.RevokeRefund(ctx, entry)
		assert.Error(t, err)
	})
}

func TestLedgerRepository_FindPurchaseByPaymentIntent(t *testing.T) {
	ctx := context.Background()
	repo := newTestLedger(t)

	_, err := repo.Grant(ctx, domainRepo.Entry{
		UserID:                "user_1",
		Amount:                5,
		Type:                  model.TransactionTypePurchase,
		IdempotencyKey:        "checkout:cs_1",
		StripePaymentIntentID: "pi_1",
	})
	require.NoError(t, err)

	found, err := repo.FindPurchaseByPaymentIntent(ctx, "pi_1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "user_1", found.UserID)

	missing, err := repo.FindPurchaseByPaymentIntent(ctx, "pi_unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)

	ensured, err := repo.EnsureBalance(ctx, "user_new")
	require.NoError(t, err)
	assert.Equal(t, int64(0), ensured.Balance)
	assert.Equal(t, model.SubscriptionTypeFree, ensured.SubscriptionType)
}
