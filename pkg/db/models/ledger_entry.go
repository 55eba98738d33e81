package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/aistudio-app/backend/pkg/enums"
)

// LedgerEntry records an immutable balance-affecting event. Rows are append
// only; the entries for an account sum to its current token balance.
type LedgerEntry struct {
	ID           uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AccountID    uuid.UUID             `gorm:"column:account_id;type:uuid;not null;index"`
	Type         enums.LedgerEntryType `gorm:"column:type;type:ledger_entry_type_enum;not null"`
	Amount       int                   `gorm:"column:amount;not null"`
	BalanceAfter int                   `gorm:"column:balance_after;not null"`
	Description  string                `gorm:"column:description;not null"`
	GenerationID *uuid.UUID            `gorm:"column:generation_id;type:uuid"`
	PurchaseID   *uuid.UUID            `gorm:"column:purchase_id;type:uuid"`
	CreatedAt    time.Time             `gorm:"column:created_at;autoCreateTime"`
}
