package generations

import (
	"context"
	"time"

	"github.com/aistudio-app/backend/pkg/db/models"
	"github.com/aistudio-app/backend/pkg/enums"
	"github.com/aistudio-app/backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ListFilters narrows gallery listings.
type ListFilters struct {
	MediaType    *enums.MediaType
	Status       *enums.GenerationStatus
	FavoriteOnly bool
}

// GenerationList is one page of generations plus the next-page cursor.
type GenerationList struct {
	Generations []models.Generation
	Cursor      string
}

// Repository defines persistence operations for generation rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, generation *models.Generation) (*models.Generation, error)
	FindByJobID(ctx context.Context, jobID string) (*models.Generation, error)
	FindByIDForAccount(ctx context.Context, id, accountID uuid.UUID) (*models.Generation, error)
	List(ctx context.Context, accountID uuid.UUID, params pagination.Params, filters ListFilters) (*GenerationList, error)
	TransitionFromActive(ctx context.Context, jobID string, updates map[string]any) (int64, error)
	MarkProcessing(ctx context.Context, jobID string) (int64, error)
	UpdateFavorite(ctx context.Context, id, accountID uuid.UUID, favorite bool) (int64, error)
	SoftDelete(ctx context.Context, id, accountID uuid.UUID) (int64, error)
	FindStaleActive(ctx context.Context, cutoff time.Time, limit int) ([]models.Generation, error)
}
