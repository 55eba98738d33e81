package ledger

import (
	"context"
	"testing"
	"time"

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

func setupLedgerTestDB(t *testing.T) *gorm.DB {
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

func newAccount(t *testing.T, db *gorm.DB, email string, balance int) *models.Account {
	t.Helper()

	account := &models.Account{
		ID:           uuid.New(),
		Email:        email,
		TokenBalance: balance,
	}
	require.NoError(t, db.Create(account).Error)
	return account
}

func TestBalanceReadsCurrentValue(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	account := newAccount(t, db, "balance@example.com", 42)

	balance, err := repo.Balance(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, 42, balance)

	_, err = repo.Balance(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestAdjustDebitsBalanceAndCounters(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	account := newAccount(t, db, "debit@example.com", 100)

	balance, err := repo.Adjust(context.Background(), Adjustment{
		AccountID:    account.ID,
		BalanceDelta: -20,
		UsedDelta:    20,
	})
	require.NoError(t, err)
	assert.Equal(t, 80, balance)

	var stored models.Account
	require.NoError(t, db.First(&stored, "id = ?", account.ID).Error)
	assert.Equal(t, 80, stored.TokenBalance)
	assert.Equal(t, 20, stored.TotalTokensUsed)
	assert.Equal(t, 0, stored.TotalTokensPurchased)
}

func TestAdjustRejectsOverdraft(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	account := newAccount(t, db, "overdraft@example.com", 10)

	_, err := repo.Adjust(context.Background(), Adjustment{
		AccountID:    account.ID,
		BalanceDelta: -20,
		UsedDelta:    20,
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeInsufficientCredits, pkgerrors.As(err).Code())

	var stored models.Account
	require.NoError(t, db.First(&stored, "id = ?", account.ID).Error)
	assert.Equal(t, 10, stored.TokenBalance)
	assert.Equal(t, 0, stored.TotalTokensUsed)
}

func TestAdjustAllowsExactBalance(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	account := newAccount(t, db, "exact@example.com", 20)

	balance, err := repo.Adjust(context.Background(), Adjustment{
		AccountID:    account.ID,
		BalanceDelta: -20,
		UsedDelta:    20,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, balance)
}

func TestAdjustMissingAccount(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)

	_, err := repo.Adjust(context.Background(), Adjustment{
		AccountID:    uuid.New(),
		BalanceDelta: -5,
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestAdjustCreditsPurchase(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	account := newAccount(t, db, "credit@example.com", 5)

	balance, err := repo.Adjust(context.Background(), Adjustment{
		AccountID:      account.ID,
		BalanceDelta:   500,
		PurchasedDelta: 500,
	})
	require.NoError(t, err)
	assert.Equal(t, 505, balance)

	var stored models.Account
	require.NoError(t, db.First(&stored, "id = ?", account.ID).Error)
	assert.Equal(t, 500, stored.TotalTokensPurchased)
}

func TestAppendEntryAndListByAccount(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	account := newAccount(t, db, "history@example.com", 0)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		entry := &models.LedgerEntry{
			ID:           uuid.New(),
			AccountID:    account.ID,
			Type:         enums.LedgerEntryTypeUsage,
			Amount:       -20,
			BalanceAfter: 100 - (i+1)*20,
			Description:  "video generation",
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}
		_, err := repo.AppendEntry(context.Background(), entry)
		require.NoError(t, err)
	}

	page, err := repo.ListByAccount(context.Background(), account.ID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)
	assert.NotEmpty(t, page.Cursor)
	// newest first
	assert.Equal(t, 40, page.Entries[0].BalanceAfter)

	rest, err := repo.ListByAccount(context.Background(), account.ID, pagination.Params{Limit: 2, Cursor: page.Cursor})
	require.NoError(t, err)
	require.Len(t, rest.Entries, 1)
	assert.Empty(t, rest.Cursor)
	assert.Equal(t, 80, rest.Entries[0].BalanceAfter)
}

func TestListByAccountScopedToAccount(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	first := newAccount(t, db, "first@example.com", 0)
	second := newAccount(t, db, "second@example.com", 0)

	_, err := repo.AppendEntry(context.Background(), &models.LedgerEntry{
		ID:           uuid.New(),
		AccountID:    first.ID,
		Type:         enums.LedgerEntryTypeBonus,
		Amount:       60,
		BalanceAfter: 60,
		Description:  "signup bonus",
	})
	require.NoError(t, err)

	page, err := repo.ListByAccount(context.Background(), second.ID, pagination.Params{})
	require.NoError(t, err)
	assert.Empty(t, page.Entries)
}
