package purchases

import (
	"context"
	"io"
	"testing"

	"github.com/aistudio-app/backend/internal/ledger"
	"github.com/aistudio-app/backend/pkg/db/models"
	"github.com/aistudio-app/backend/pkg/enums"
	pkgerrors "github.com/aistudio-app/backend/pkg/errors"
	"github.com/aistudio-app/backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupPurchasesTestDB(t *testing.T) *gorm.DB {
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
	purchasesTable := `
CREATE TABLE IF NOT EXISTS purchases (
  id TEXT PRIMARY KEY,
  account_id TEXT NOT NULL,
  provider TEXT NOT NULL,
  provider_txn_ref TEXT NOT NULL UNIQUE,
  package_id TEXT NOT NULL,
  tokens_granted INTEGER NOT NULL,
  amount NUMERIC NOT NULL,
  currency TEXT NOT NULL DEFAULT 'USD',
  status TEXT NOT NULL DEFAULT 'completed',
  created_at DATETIME
);`
	require.NoError(t, db.Exec(accounts).Error)
	require.NoError(t, db.Exec(ledgerEntries).Error)
	require.NoError(t, db.Exec(purchasesTable).Error)
	return db
}

type realTxRunner struct {
	db *gorm.DB
}

// Settlement relies on the duplicate insert rolling back the credit, so these
// tests run real sqlite transactions instead of the pass-through stub.
func (r realTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func newPurchasesService(t *testing.T, db *gorm.DB) Service {
	t.Helper()

	svc, err := NewService(
		NewRepository(db),
		ledger.NewRepository(db),
		realTxRunner{db: db},
		logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		"apple_iap",
	)
	require.NoError(t, err)
	return svc
}

func seedAccount(t *testing.T, db *gorm.DB, balance int) *models.Account {
	t.Helper()

	account := &models.Account{
		ID:           uuid.New(),
		Email:        uuid.NewString() + "@example.com",
		TokenBalance: balance,
	}
	require.NoError(t, db.Create(account).Error)
	return account
}

func TestSettleCreditsPackage(t *testing.T) {
	db := setupPurchasesTestDB(t)
	svc := newPurchasesService(t, db)
	account := seedAccount(t, db, 10)

	out, err := svc.Settle(context.Background(), SettleInput{
		AccountID:      account.ID,
		ProviderTxnRef: "txn-1001",
		PackageID:      "tokens_500",
	})
	require.NoError(t, err)
	assert.False(t, out.AlreadySettled)
	assert.Equal(t, 510, out.TokenBalance)
	assert.Equal(t, 500, out.Purchase.TokensGranted)
	assert.Equal(t, "apple_iap", out.Purchase.Provider)

	var stored models.Account
	require.NoError(t, db.First(&stored, "id = ?", account.ID).Error)
	assert.Equal(t, 510, stored.TokenBalance)
	assert.Equal(t, 500, stored.TotalTokensPurchased)

	var entry models.LedgerEntry
	require.NoError(t, db.First(&entry, "account_id = ?", account.ID).Error)
	assert.Equal(t, enums.LedgerEntryTypePurchase, entry.Type)
	assert.Equal(t, 500, entry.Amount)
	assert.Equal(t, 510, entry.BalanceAfter)
	require.NotNil(t, entry.PurchaseID)
	assert.Equal(t, out.Purchase.ID, *entry.PurchaseID)
}

func TestSettleDuplicateTxnRefCreditsOnce(t *testing.T) {
	db := setupPurchasesTestDB(t)
	svc := newPurchasesService(t, db)
	account := seedAccount(t, db, 0)

	first, err := svc.Settle(context.Background(), SettleInput{
		AccountID:      account.ID,
		ProviderTxnRef: "txn-2002",
		PackageID:      "tokens_100",
	})
	require.NoError(t, err)
	require.False(t, first.AlreadySettled)

	second, err := svc.Settle(context.Background(), SettleInput{
		AccountID:      account.ID,
		ProviderTxnRef: "txn-2002",
		PackageID:      "tokens_100",
	})
	require.NoError(t, err)
	assert.True(t, second.AlreadySettled)
	assert.Equal(t, first.Purchase.ID, second.Purchase.ID)

	var stored models.Account
	require.NoError(t, db.First(&stored, "id = ?", account.ID).Error)
	assert.Equal(t, 100, stored.TokenBalance)
	assert.Equal(t, 100, stored.TotalTokensPurchased)

	var purchaseCount, entryCount int64
	require.NoError(t, db.Model(&models.Purchase{}).Count(&purchaseCount).Error)
	require.NoError(t, db.Model(&models.LedgerEntry{}).Count(&entryCount).Error)
	assert.EqualValues(t, 1, purchaseCount)
	assert.EqualValues(t, 1, entryCount)
}

func TestSettleUnknownPackage(t *testing.T) {
	db := setupPurchasesTestDB(t)
	svc := newPurchasesService(t, db)
	account := seedAccount(t, db, 0)

	_, err := svc.Settle(context.Background(), SettleInput{
		AccountID:      account.ID,
		ProviderTxnRef: "txn-3003",
		PackageID:      "tokens_9999",
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestSettleMissingAccountRollsBack(t *testing.T) {
	db := setupPurchasesTestDB(t)
	svc := newPurchasesService(t, db)

	_, err := svc.Settle(context.Background(), SettleInput{
		AccountID:      uuid.New(),
		ProviderTxnRef: "txn-4004",
		PackageID:      "tokens_100",
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())

	// the orphaned purchase row must not survive the rollback
	var purchaseCount int64
	require.NoError(t, db.Model(&models.Purchase{}).Count(&purchaseCount).Error)
	assert.EqualValues(t, 0, purchaseCount)
}

func TestCatalogLookup(t *testing.T) {
	pkg, ok := PackageByID("tokens_1000")
	require.True(t, ok)
	assert.Equal(t, 1000, pkg.Tokens)
	assert.Equal(t, "34.99", pkg.Price.StringFixed(2))

	_, ok = PackageByID("tokens_42")
	assert.False(t, ok)

	assert.Len(t, Catalog(), 4)
}
