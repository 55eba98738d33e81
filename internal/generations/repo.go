package generations

import (
	"context"
	"time"

	"github.com/aistudio-app/backend/pkg/db/models"
	"github.com/aistudio-app/backend/pkg/enums"
	pkgerrors "github.com/aistudio-app/backend/pkg/errors"
	"github.com/aistudio-app/backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// activeStatuses are the lifecycle states a callback or the reaper may still
// move out of. Terminal rows never transition again.
var activeStatuses = []enums.GenerationStatus{
	enums.GenerationStatusPending,
	enums.GenerationStatusProcessing,
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a generations repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, generation *models.Generation) (*models.Generation, error) {
	if err := r.db.WithContext(ctx).Create(generation).Error; err != nil {
		return nil, err
	}
	return generation, nil
}

func (r *repository) FindByJobID(ctx context.Context, jobID string) (*models.Generation, error) {
	var generation models.Generation
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		First(&generation).Error
	if err != nil {
		return nil, err
	}
	return &generation, nil
}

func (r *repository) FindByIDForAccount(ctx context.Context, id, accountID uuid.UUID) (*models.Generation, error) {
	var generation models.Generation
	err := r.db.WithContext(ctx).
		Where("id = ? AND account_id = ?", id, accountID).
		First(&generation).Error
	if err != nil {
		return nil, err
	}
	return &generation, nil
}

func (r *repository) List(ctx context.Context, accountID uuid.UUID, params pagination.Params, filters ListFilters) (*GenerationList, error) {
	limit := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC, id DESC").
		Limit(limit + 1)

	if filters.MediaType != nil {
		query = query.Where("media_type = ?", *filters.MediaType)
	}
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.FavoriteOnly {
		query = query.Where("favorite = ?", true)
	}

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

	var rows []models.Generation
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		// cursor points at the last returned row; the strictly-exclusive
		// filter above resumes on the row after it
		last := rows[limit-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	return &GenerationList{Generations: rows, Cursor: next}, nil
}

// TransitionFromActive applies updates to the row identified by jobID only
// while it is still in an active state. The returned count is zero when the
// row is missing or already terminal, which callers use to detect duplicate
// callbacks.
func (r *repository) TransitionFromActive(ctx context.Context, jobID string, updates map[string]any) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Generation{}).
		Where("job_id = ? AND status IN ?", jobID, activeStatuses).
		Updates(updates)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// MarkProcessing advances a pending row to processing. Zero affected rows
// means the row is missing, already processing, or terminal; callers treat
// all three as a no-op acknowledgment.
func (r *repository) MarkProcessing(ctx context.Context, jobID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Generation{}).
		Where("job_id = ? AND status = ?", jobID, enums.GenerationStatusPending).
		Updates(map[string]any{
			"status":     enums.GenerationStatusProcessing,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repository) UpdateFavorite(ctx context.Context, id, accountID uuid.UUID, favorite bool) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Generation{}).
		Where("id = ? AND account_id = ?", id, accountID).
		Update("favorite", favorite)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repository) SoftDelete(ctx context.Context, id, accountID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND account_id = ?", id, accountID).
		Delete(&models.Generation{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repository) FindStaleActive(ctx context.Context, cutoff time.Time, limit int) ([]models.Generation, error) {
	var rows []models.Generation
	query := r.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?", activeStatuses, cutoff).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
