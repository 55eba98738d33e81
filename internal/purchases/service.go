package purchases

import (
	"context"
	"fmt"
	"strings"

	"github.com/aistudio-app/backend/internal/ledger"
	"github.com/aistudio-app/backend/pkg/db"
	"github.com/aistudio-app/backend/pkg/db/models"
	"github.com/aistudio-app/backend/pkg/enums"
	pkgerrors "github.com/aistudio-app/backend/pkg/errors"
	"github.com/aistudio-app/backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const txnRefConstraint = "ux_purchases_provider_txn_ref"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service settles token-package purchases reported by the payment authority.
type Service interface {
	Settle(ctx context.Context, input SettleInput) (*SettleOutput, error)
}

type service struct {
	repo       Repository
	ledgerRepo ledger.Repository
	tx         txRunner
	logg       *logger.Logger
	provider   string
}

// NewService builds a purchases service with the required dependencies.
func NewService(repo Repository, ledgerRepo ledger.Repository, tx txRunner, logg *logger.Logger, provider string) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("purchases repository required")
	}
	if ledgerRepo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(provider) == "" {
		return nil, fmt.Errorf("billing provider required")
	}
	return &service{
		repo:       repo,
		ledgerRepo: ledgerRepo,
		tx:         tx,
		logg:       logg,
		provider:   provider,
	}, nil
}

// SettleInput is one settlement notification from the payment authority.
type SettleInput struct {
	AccountID      uuid.UUID
	ProviderTxnRef string
	PackageID      string
}

// SettleOutput reports the stored purchase. AlreadySettled is true when the
// transaction reference had been credited before; no tokens move in that case.
type SettleOutput struct {
	Purchase       *models.Purchase
	TokenBalance   int
	AlreadySettled bool
}

// Settle credits the package exactly once per provider transaction reference.
// The unique index on provider_txn_ref is the authority; a duplicate insert
// rolls back the whole transaction so the credit cannot double-apply.
func (s *service) Settle(ctx context.Context, input SettleInput) (*SettleOutput, error) {
	if input.AccountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	txnRef := strings.TrimSpace(input.ProviderTxnRef)
	if txnRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider transaction reference required")
	}
	pkg, ok := PackageByID(strings.TrimSpace(input.PackageID))
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown package %q", input.PackageID))
	}

	purchase := &models.Purchase{
		ID:             uuid.New(),
		AccountID:      input.AccountID,
		Provider:       s.provider,
		ProviderTxnRef: txnRef,
		PackageID:      pkg.ID,
		TokensGranted:  pkg.Tokens,
		Amount:         pkg.Price,
		Currency:       pkg.Currency,
		Status:         enums.PurchaseStatusCompleted,
	}

	var balance int
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ledgerRepo := s.ledgerRepo.WithTx(tx)

		if _, err := repo.Create(ctx, purchase); err != nil {
			return err
		}

		balanceAfter, err := ledgerRepo.Adjust(ctx, ledger.Adjustment{
			AccountID:      input.AccountID,
			BalanceDelta:   pkg.Tokens,
			PurchasedDelta: pkg.Tokens,
		})
		if err != nil {
			return err
		}
		balance = balanceAfter

		_, err = ledgerRepo.AppendEntry(ctx, &models.LedgerEntry{
			ID:           uuid.New(),
			AccountID:    input.AccountID,
			Type:         enums.LedgerEntryTypePurchase,
			Amount:       pkg.Tokens,
			BalanceAfter: balanceAfter,
			Description:  fmt.Sprintf("purchased %s", pkg.ID),
			PurchaseID:   &purchase.ID,
		})
		return err
	})
	if err != nil {
		if db.IsUniqueViolation(err, txnRefConstraint) {
			existing, findErr := s.repo.FindByProviderTxnRef(ctx, txnRef)
			if findErr != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "loading settled purchase")
			}
			s.logg.Info(ctx, fmt.Sprintf("purchase %s already settled", txnRef))
			return &SettleOutput{Purchase: existing, AlreadySettled: true}, nil
		}
		if pkgErr := pkgerrors.As(err); pkgErr != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settling purchase")
	}

	return &SettleOutput{Purchase: purchase, TokenBalance: balance}, nil
}
