package ledger

import (
	"context"

	"github.com/aistudio-app/backend/pkg/db/models"
	"github.com/aistudio-app/backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Adjustment describes one atomic balance mutation. BalanceDelta is signed;
// UsedDelta and PurchasedDelta update the lifetime counters in the same
// statement so the row never goes through an inconsistent state.
type Adjustment struct {
	AccountID      uuid.UUID
	BalanceDelta   int
	UsedDelta      int
	PurchasedDelta int
}

// EntryList is one page of ledger entries plus the next-page cursor.
type EntryList struct {
	Entries []models.LedgerEntry
	Cursor  string
}

// Repository defines persistence operations for accounts' balances and the
// append-only ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Balance(ctx context.Context, accountID uuid.UUID) (int, error)
	Adjust(ctx context.Context, adj Adjustment) (int, error)
	AppendEntry(ctx context.Context, entry *models.LedgerEntry) (*models.LedgerEntry, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, params pagination.Params) (*EntryList, error)
}
