package webhooks

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/aistudio-app/backend/api/responses"
	"github.com/aistudio-app/backend/api/validators"
	"github.com/aistudio-app/backend/internal/purchases"
	"github.com/aistudio-app/backend/pkg/config"
	pkgerrors "github.com/aistudio-app/backend/pkg/errors"
	"github.com/aistudio-app/backend/pkg/logger"
)

const billingSignatureHeader = "X-Billing-Signature"

type purchaseSettleRequest struct {
	AccountID      uuid.UUID `json:"account_id" validate:"required"`
	ProviderTxnRef string    `json:"provider_txn_ref" validate:"required"`
	PackageID      string    `json:"package_id" validate:"required"`
}

type purchaseSettleResponse struct {
	PurchaseID     uuid.UUID `json:"purchase_id"`
	TokensGranted  int       `json:"tokens_granted"`
	TokenBalance   int       `json:"token_balance,omitempty"`
	AlreadySettled bool      `json:"already_settled"`
}

// PurchaseSettled handles the payment authority's settlement notification.
// The shared webhook secret authenticates the caller; the unique transaction
// reference keeps replays from crediting twice.
func PurchaseSettled(svc purchases.Service, cfg config.BillingConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purchases service unavailable"))
			return
		}
		if cfg.WebhookSecret == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing webhook secret not configured"))
			return
		}

		signature := strings.TrimSpace(r.Header.Get(billingSignatureHeader))
		if subtle.ConstantTimeCompare([]byte(signature), []byte(cfg.WebhookSecret)) != 1 {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid billing signature"))
			return
		}

		var payload purchaseSettleRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		out, err := svc.Settle(ctx, purchases.SettleInput{
			AccountID:      payload.AccountID,
			ProviderTxnRef: strings.TrimSpace(payload.ProviderTxnRef),
			PackageID:      strings.TrimSpace(payload.PackageID),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, purchaseSettleResponse{
			PurchaseID:     out.Purchase.ID,
			TokensGranted:  out.Purchase.TokensGranted,
			TokenBalance:   out.TokenBalance,
			AlreadySettled: out.AlreadySettled,
		})
	}
}
