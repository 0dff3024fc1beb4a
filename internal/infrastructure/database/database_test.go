package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/flipmyera/credit-ledger/internal/domain/model"
	domainRepo "github.com/flipmyera/credit-ledger/internal/domain/repository"
)

func TestMigrateAndRepositories(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	defer sqlDB.Close()

	require.NoError(t, Migrate(db, zap.NewNop()))
	// Migrations are idempotent.
	require.NoError(t, Migrate(db, zap.NewNop()))
	require.NoError(t, Ping(db))

	for _, m := range Models() {
		assert.True(t, db.Migrator().HasTable(m))
	}

	repos := NewRepositories(db, zap.NewNop())
	_, err = repos.Ledger.Grant(context.Background(), domainRepo.Entry{
		UserID: "user_1", Amount: 1, Type: model.TransactionTypeAdminGrant, IdempotencyKey: "admin:1",
	})
	require.NoError(t, err)

	// The balance check constraint rejects negative balances.
	err = db.Exec("UPDATE user_credits SET balance = -1 WHERE user_id = ?", "user_1").Error
	assert.Error(t, err)
}
