package generations

import (
	"context"

	"github.com/aistudio-app/backend/pkg/db/models"
	pkgerrors "github.com/aistudio-app/backend/pkg/errors"
	"github.com/aistudio-app/backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func (s *service) List(ctx context.Context, accountID uuid.UUID, params pagination.Params, filters ListFilters) (*GenerationList, error) {
	if accountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "account identity missing")
	}
	list, err := s.repo.List(ctx, accountID, params, filters)
	if err != nil {
		if pkgErr := pkgerrors.As(err); pkgErr != nil && pkgErr.Code() == pkgerrors.CodeValidation {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing generations")
	}
	return list, nil
}

func (s *service) Get(ctx context.Context, id, accountID uuid.UUID) (*models.Generation, error) {
	if accountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "account identity missing")
	}
	generation, err := s.repo.FindByIDForAccount(ctx, id, accountID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "generation not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading generation")
	}
	return generation, nil
}

func (s *service) SetFavorite(ctx context.Context, id, accountID uuid.UUID, favorite bool) error {
	if accountID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "account identity missing")
	}
	affected, err := s.repo.UpdateFavorite(ctx, id, accountID, favorite)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "updating favorite")
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "generation not found")
	}
	return nil
}

// Delete soft-deletes the row so the gallery hides it; the stored media is
// kept and the ledger history still references the generation.
func (s *service) Delete(ctx context.Context, id, accountID uuid.UUID) error {
	if accountID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "account identity missing")
	}
	affected, err := s.repo.SoftDelete(ctx, id, accountID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deleting generation")
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "generation not found")
	}
	return nil
}
