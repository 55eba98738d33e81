package accounts

import (
	"context"
	"testing"

	"github.com/aistudio-app/backend/internal/ledger"
	"github.com/aistudio-app/backend/pkg/db/models"
	"github.com/aistudio-app/backend/pkg/enums"
	pkgerrors "github.com/aistudio-app/backend/pkg/errors"
	"github.com/aistudio-app/backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupAccountsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	accounts := `
CREATE TABLE IF NOT EXISTS accounts (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  token_balance INTEGER NOT NULL DEFAULT 0,
  total_tokens_purchased INTEGER NOT NULL DEFAULT 0,
  total_tokens_used INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`
	ledgerEntries := `
CREATE TABLE IF NOT EXISTS ledger_entries (
  id TEXT PRIMARY KEY,
  account_id TEXT NOT NULL,
  type TEXT NOT NULL,
  amount INTEGER NOT NULL,
  balance_after INTEGER NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  generation_id TEXT,
  purchase_id TEXT,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(accounts).Error)
	require.NoError(t, db.Exec(ledgerEntries).Error)
	return db
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func newTestService(t *testing.T, db *gorm.DB, bonus int) Service {
	t.Helper()

	svc, err := NewService(NewRepository(db), ledger.NewRepository(db), stubTxRunner{}, bonus)
	require.NoError(t, err)
	return svc
}

func TestSyncCreatesAccountWithSignupBonus(t *testing.T) {
	db := setupAccountsTestDB(t)
	svc := newTestService(t, db, 60)

	account, created, err := svc.Sync(context.Background(), "New.User@Example.com")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "new.user@example.com", account.Email)
	assert.Equal(t, 60, account.TokenBalance)

	var entries []models.LedgerEntry
	require.NoError(t, db.Where("account_id = ?", account.ID).Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, enums.LedgerEntryTypeBonus, entries[0].Type)
	assert.Equal(t, 60, entries[0].Amount)
	assert.Equal(t, 60, entries[0].BalanceAfter)
}

func TestSyncReturnsExistingAccount(t *testing.T) {
	db := setupAccountsTestDB(t)
	svc := newTestService(t, db, 60)

	first, created, err := svc.Sync(context.Background(), "repeat@example.com")
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := svc.Sync(context.Background(), "repeat@example.com")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	// bonus granted only once
	var count int64
	require.NoError(t, db.Model(&models.LedgerEntry{}).Where("account_id = ?", first.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestSyncRejectsInvalidEmail(t *testing.T) {
	db := setupAccountsTestDB(t)
	svc := newTestService(t, db, 60)

	_, _, err := svc.Sync(context.Background(), "not-an-email")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestSyncZeroBonusSkipsLedger(t *testing.T) {
	db := setupAccountsTestDB(t)
	svc := newTestService(t, db, 0)

	account, created, err := svc.Sync(context.Background(), "nobonus@example.com")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 0, account.TokenBalance)

	var count int64
	require.NoError(t, db.Model(&models.LedgerEntry{}).Where("account_id = ?", account.ID).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestProfileNotFound(t *testing.T) {
	db := setupAccountsTestDB(t)
	svc := newTestService(t, db, 60)

	_, err := svc.Profile(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestTransactionsListsEntries(t *testing.T) {
	db := setupAccountsTestDB(t)
	svc := newTestService(t, db, 60)

	account, _, err := svc.Sync(context.Background(), "ledger@example.com")
	require.NoError(t, err)

	list, err := svc.Transactions(context.Background(), account.ID, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, list.Entries, 1)
	assert.Equal(t, enums.LedgerEntryTypeBonus, list.Entries[0].Type)
}
