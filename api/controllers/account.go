package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/aistudio-app/backend/api/middleware"
	"github.com/aistudio-app/backend/api/responses"
	"github.com/aistudio-app/backend/api/validators"
	accountsvc "github.com/aistudio-app/backend/internal/accounts"
	"github.com/aistudio-app/backend/pkg/db/models"
	pkgerrors "github.com/aistudio-app/backend/pkg/errors"
	"github.com/aistudio-app/backend/pkg/logger"
)

type accountResponse struct {
	ID                   uuid.UUID `json:"id"`
	Email                string    `json:"email"`
	TokenBalance         int       `json:"token_balance"`
	TotalTokensPurchased int       `json:"total_tokens_purchased"`
	TotalTokensUsed      int       `json:"total_tokens_used"`
	CreatedAt            time.Time `json:"created_at"`
}

func newAccountResponse(account *models.Account) accountResponse {
	return accountResponse{
		ID:                   account.ID,
		Email:                account.Email,
		TokenBalance:         account.TokenBalance,
		TotalTokensPurchased: account.TotalTokensPurchased,
		TotalTokensUsed:      account.TotalTokensUsed,
		CreatedAt:            account.CreatedAt,
	}
}

type ledgerEntryResponse struct {
	ID           uuid.UUID  `json:"id"`
	Type         string     `json:"type"`
	Amount       int        `json:"amount"`
	BalanceAfter int        `json:"balance_after"`
	Description  string     `json:"description"`
	GenerationID *uuid.UUID `json:"generation_id,omitempty"`
	PurchaseID   *uuid.UUID `json:"purchase_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type transactionListResponse struct {
	Entries []ledgerEntryResponse `json:"entries"`
	Cursor  string                `json:"cursor,omitempty"`
}

func accountIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := middleware.AccountIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "account context missing")
	}
	accountID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid account id")
	}
	return accountID, nil
}

// AccountMe returns the caller's profile and balance.
func AccountMe(svc accountsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "accounts service unavailable"))
			return
		}

		accountID, err := accountIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		account, err := svc.Profile(r.Context(), accountID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newAccountResponse(account))
	}
}

// AccountTransactions lists the caller's ledger entries, newest first.
func AccountTransactions(svc accountsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "accounts service unavailable"))
			return
		}

		accountID, err := accountIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.Transactions(r.Context(), accountID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries := make([]ledgerEntryResponse, len(list.Entries))
		for i, entry := range list.Entries {
			entries[i] = ledgerEntryResponse{
				ID:           entry.ID,
				Type:         string(entry.Type),
				Amount:       entry.Amount,
				BalanceAfter: entry.BalanceAfter,
				Description:  entry.Description,
				GenerationID: entry.GenerationID,
				PurchaseID:   entry.PurchaseID,
				CreatedAt:    entry.CreatedAt,
			}
		}

		responses.WriteSuccess(w, transactionListResponse{Entries: entries, Cursor: list.Cursor})
	}
}
