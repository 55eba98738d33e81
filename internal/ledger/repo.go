package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/aistudio-app/backend/pkg/db/models"
	pkgerrors "github.com/aistudio-app/backend/pkg/errors"
	"github.com/aistudio-app/backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a ledger repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Balance reads the current token balance. Callers use it as a cheap
// admission pre-check; it is not a substitute for the guard in Adjust.
func (r *repository) Balance(ctx context.Context, accountID uuid.UUID) (int, error) {
	var account models.Account
	err := r.db.WithContext(ctx).
		Select("token_balance").
		First(&account, "id = ?", accountID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
		}
		return 0, err
	}
	return account.TokenBalance, nil
}

// Adjust applies the adjustment in a single guarded UPDATE and returns the
// resulting balance. The guard rejects any delta that would take the balance
// below zero, which is what makes concurrent debits safe without row locks.
func (r *repository) Adjust(ctx context.Context, adj Adjustment) (int, error) {
	if adj.AccountID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}

	var balance int
	res := r.db.WithContext(ctx).Raw(
		`UPDATE accounts
		 SET token_balance = token_balance + ?,
		     total_tokens_used = total_tokens_used + ?,
		     total_tokens_purchased = total_tokens_purchased + ?,
		     updated_at = ?
		 WHERE id = ? AND token_balance + ? >= 0
		 RETURNING token_balance`,
		adj.BalanceDelta,
		adj.UsedDelta,
		adj.PurchasedDelta,
		time.Now().UTC(),
		adj.AccountID,
		adj.BalanceDelta,
	).Scan(&balance)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, r.classifyRejectedAdjust(ctx, adj.AccountID)
	}
	return balance, nil
}

// classifyRejectedAdjust distinguishes a missing account from a balance guard
// rejection after the UPDATE matched no row.
func (r *repository) classifyRejectedAdjust(ctx context.Context, accountID uuid.UUID) error {
	var exists bool
	err := r.db.WithContext(ctx).
		Raw(`SELECT EXISTS (SELECT 1 FROM accounts WHERE id = ?)`, accountID).
		Scan(&exists).Error
	if err != nil {
		return err
	}
	if !exists {
		return pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientCredits, "insufficient token balance")
}

func (r *repository) AppendEntry(ctx context.Context, entry *models.LedgerEntry) (*models.LedgerEntry, error) {
	if entry == nil {
		return nil, errors.New("ledger entry required")
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *repository) ListByAccount(ctx context.Context, accountID uuid.UUID, params pagination.Params) (*EntryList, error) {
	limit := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC, id DESC").
		Limit(limit + 1)

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var entries []models.LedgerEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}

	next := ""
	if len(entries) > limit {
		entries = entries[:limit]
		// cursor points at the last returned row; the strictly-exclusive
		// filter above resumes on the row after it
		last := entries[limit-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	return &EntryList{Entries: entries, Cursor: next}, nil
}
