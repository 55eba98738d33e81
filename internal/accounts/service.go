package accounts

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/aistudio-app/backend/internal/ledger"
	"github.com/aistudio-app/backend/pkg/db"
	"github.com/aistudio-app/backend/pkg/db/models"
	"github.com/aistudio-app/backend/pkg/enums"
	pkgerrors "github.com/aistudio-app/backend/pkg/errors"
	"github.com/aistudio-app/backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service defines account-level operations.
type Service interface {
	Sync(ctx context.Context, email string) (*models.Account, bool, error)
	Profile(ctx context.Context, accountID uuid.UUID) (*models.Account, error)
	Transactions(ctx context.Context, accountID uuid.UUID, params pagination.Params) (*ledger.EntryList, error)
}

type service struct {
	repo        Repository
	ledgerRepo  ledger.Repository
	tx          txRunner
	signupBonus int
}

// NewService builds an accounts service with the required dependencies.
func NewService(repo Repository, ledgerRepo ledger.Repository, tx txRunner, signupBonus int) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("accounts repository required")
	}
	if ledgerRepo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if signupBonus < 0 {
		return nil, fmt.Errorf("signup bonus must be non-negative")
	}
	return &service{
		repo:        repo,
		ledgerRepo:  ledgerRepo,
		tx:          tx,
		signupBonus: signupBonus,
	}, nil
}

// Sync resolves the identity's account, creating it with the signup bonus on
// first sight. Returns true when the account was created by this call.
func (s *service) Sync(ctx context.Context, email string) (*models.Account, bool, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(normalized); err != nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "valid email required")
	}

	existing, err := s.repo.FindByEmail(ctx, normalized)
	if err == nil {
		return existing, false, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "looking up account")
	}

	account, err := s.createWithBonus(ctx, normalized)
	if err != nil {
		// A concurrent sync may have won the insert race.
		if db.IsUniqueViolation(err, "") {
			existing, findErr := s.repo.FindByEmail(ctx, normalized)
			if findErr != nil {
				return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "re-fetching account")
			}
			return existing, false, nil
		}
		return nil, false, err
	}
	return account, true, nil
}

func (s *service) createWithBonus(ctx context.Context, email string) (*models.Account, error) {
	account := &models.Account{
		ID:    uuid.New(),
		Email: email,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ledgerRepo := s.ledgerRepo.WithTx(tx)

		if _, err := repo.Create(ctx, account); err != nil {
			return err
		}
		if s.signupBonus == 0 {
			return nil
		}

		balance, err := ledgerRepo.Adjust(ctx, ledger.Adjustment{
			AccountID:    account.ID,
			BalanceDelta: s.signupBonus,
		})
		if err != nil {
			return err
		}
		account.TokenBalance = balance

		_, err = ledgerRepo.AppendEntry(ctx, &models.LedgerEntry{
			ID:           uuid.New(),
			AccountID:    account.ID,
			Type:         enums.LedgerEntryTypeBonus,
			Amount:       s.signupBonus,
			BalanceAfter: balance,
			Description:  "signup bonus",
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (s *service) Profile(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	if accountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "account identity missing")
	}
	account, err := s.repo.FindByID(ctx, accountID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading account")
	}
	return account, nil
}

func (s *service) Transactions(ctx context.Context, accountID uuid.UUID, params pagination.Params) (*ledger.EntryList, error) {
	if accountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "account identity missing")
	}
	list, err := s.ledgerRepo.ListByAccount(ctx, accountID, params)
	if err != nil {
		if pkgErr := pkgerrors.As(err); pkgErr != nil && pkgErr.Code() == pkgerrors.CodeValidation {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing ledger entries")
	}
	return list, nil
}
