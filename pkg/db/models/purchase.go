package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aistudio-app/backend/pkg/enums"
)

// Purchase is one settled token-package purchase. ProviderTxnRef is the
// payment authority's transaction reference and doubles as the settlement
// idempotency key (unique index).
type Purchase struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AccountID      uuid.UUID            `gorm:"column:account_id;type:uuid;not null;index"`
	Provider       string               `gorm:"column:provider;not null"`
	ProviderTxnRef string               `gorm:"column:provider_txn_ref;not null;uniqueIndex:ux_purchases_provider_txn_ref"`
	PackageID      string               `gorm:"column:package_id;not null"`
	TokensGranted  int                  `gorm:"column:tokens_granted;not null"`
	Amount         decimal.Decimal      `gorm:"column:amount;type:numeric(10,2);not null"`
	Currency       string               `gorm:"column:currency;not null;default:USD"`
	Status         enums.PurchaseStatus `gorm:"column:status;type:purchase_status_enum;not null;default:completed"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
}
