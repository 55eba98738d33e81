package purchases

import (
	"context"

	"github.com/aistudio-app/backend/pkg/db/models"
	"gorm.io/gorm"
)

// Repository defines persistence operations for settled purchases.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, purchase *models.Purchase) (*models.Purchase, error)
	FindByProviderTxnRef(ctx context.Context, providerTxnRef string) (*models.Purchase, error)
}
