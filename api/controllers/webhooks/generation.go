package webhooks

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/aistudio-app/backend/api/responses"
	"github.com/aistudio-app/backend/api/validators"
	"github.com/aistudio-app/backend/internal/reconcile"
	"github.com/aistudio-app/backend/pkg/enums"
	pkgerrors "github.com/aistudio-app/backend/pkg/errors"
	"github.com/aistudio-app/backend/pkg/logger"
)

type generationCallbackRequest struct {
	JobID        string `json:"job_id" validate:"required"`
	Status       string `json:"status" validate:"required"`
	ResultURL    string `json:"result_url"`
	ErrorMessage string `json:"error_message"`
}

type generationCallbackResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Applied bool   `json:"applied"`
}

// GenerationCallback handles the worker's terminal-status callback. The
// endpoint is unauthenticated; the job id is the only shared context, and
// duplicate or late callbacks are absorbed by the reconciler.
func GenerationCallback(svc reconcile.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconcile service unavailable"))
			return
		}

		var payload generationCallbackRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		status, err := enums.ParseGenerationStatus(strings.TrimSpace(payload.Status))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		outcome, err := svc.Reconcile(ctx, reconcile.Input{
			JobID:        strings.TrimSpace(payload.JobID),
			Status:       status,
			ResultURL:    strings.TrimSpace(payload.ResultURL),
			ErrorMessage: strings.TrimSpace(payload.ErrorMessage),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(ctx, fmt.Sprintf("generation callback %s reconciled", outcome.Generation.JobID))
		}
		responses.WriteSuccess(w, generationCallbackResponse{
			JobID:   outcome.Generation.JobID,
			Status:  string(outcome.Generation.Status),
			Applied: outcome.Applied,
		})
	}
}
