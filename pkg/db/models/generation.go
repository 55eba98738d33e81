package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aistudio-app/backend/pkg/enums"
)

// Generation is one media generation request and its lifecycle state.
//
// JobID is the client-generated correlation id the external worker echoes back
// in its callback; it is distinct from the storage-assigned row id.
// TokensCharged is fixed at admission and never changes afterwards.
type Generation struct {
	ID             uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	JobID          string                 `gorm:"column:job_id;not null;uniqueIndex"`
	AccountID      uuid.UUID              `gorm:"column:account_id;type:uuid;not null;index"`
	MediaType      enums.MediaType        `gorm:"column:media_type;type:media_type_enum;not null"`
	VideoStyle     *enums.VideoStyle      `gorm:"column:video_style;type:video_style_enum"`
	Prompt         string                 `gorm:"column:prompt;not null"`
	Notes          *string                `gorm:"column:notes"`
	Status         enums.GenerationStatus `gorm:"column:status;type:generation_status_enum;not null;default:pending"`
	SourceAssetURL string                 `gorm:"column:source_asset_url"`
	ResultURL      *string                `gorm:"column:result_url"`
	ErrorMessage   *string                `gorm:"column:error_message"`
	TokensCharged  int                    `gorm:"column:tokens_charged;not null"`
	Favorite       bool                   `gorm:"column:favorite;not null;default:false"`
	Metadata       json.RawMessage        `gorm:"column:metadata;type:jsonb"`
	CreatedAt      time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time              `gorm:"column:updated_at;autoUpdateTime"`
	CompletedAt    *time.Time             `gorm:"column:completed_at"`
	DeletedAt      gorm.DeletedAt         `gorm:"column:deleted_at;index"`
}
