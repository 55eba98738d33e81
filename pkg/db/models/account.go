package models

import (
	"time"

	"github.com/google/uuid"
)

// Account holds the per-user token balance plus lifetime counters.
//
// TokenBalance is only ever mutated through the ledger repository's atomic
// adjustment; nothing else writes this column.
type Account struct {
	ID                   uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Email                string    `gorm:"column:email;not null;uniqueIndex"`
	TokenBalance         int       `gorm:"column:token_balance;not null;default:0"`
	TotalTokensPurchased int       `gorm:"column:total_tokens_purchased;not null;default:0"`
	TotalTokensUsed      int       `gorm:"column:total_tokens_used;not null;default:0"`
	CreatedAt            time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
