package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/aistudio-app/backend/api/responses"
	"github.com/aistudio-app/backend/api/validators"
	accountsvc "github.com/aistudio-app/backend/internal/accounts"
	pkgAuth "github.com/aistudio-app/backend/pkg/auth"
	"github.com/aistudio-app/backend/pkg/config"
	pkgerrors "github.com/aistudio-app/backend/pkg/errors"
	"github.com/aistudio-app/backend/pkg/logger"
)

type authSyncRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type authSyncResponse struct {
	Token   string          `json:"token"`
	Account accountResponse `json:"account"`
	Created bool            `json:"created"`
}

// AuthSync upserts the account for the verified identity and returns a fresh
// access token. The identity provider has already authenticated the email by
// the time this endpoint is called.
func AuthSync(svc accountsvc.Service, cfg config.JWTConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "accounts service unavailable"))
			return
		}

		var payload authSyncRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		account, created, err := svc.Sync(r.Context(), strings.TrimSpace(payload.Email))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		token, err := pkgAuth.MintAccessToken(cfg, time.Now().UTC(), pkgAuth.AccessTokenPayload{
			AccountID: account.ID,
			Email:     account.Email,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint access token"))
			return
		}

		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, authSyncResponse{
			Token:   token,
			Account: newAccountResponse(account),
			Created: created,
		})
	}
}
