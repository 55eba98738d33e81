package webhooks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aistudio-app/backend/internal/reconcile"
	"github.com/aistudio-app/backend/pkg/db/models"
	"github.com/aistudio-app/backend/pkg/enums"
	pkgerrors "github.com/aistudio-app/backend/pkg/errors"
)

type fakeReconcileService struct {
	inputs []reconcile.Input
	err    error
}

func (f *fakeReconcileService) Reconcile(ctx context.Context, input reconcile.Input) (*reconcile.Outcome, error) {
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return nil, f.err
	}
	return &reconcile.Outcome{
		Generation: &models.Generation{JobID: input.JobID, Status: input.Status},
		Applied:    true,
	}, nil
}

func postCallback(t *testing.T, handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/generation", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestGenerationCallback_Completed(t *testing.T) {
	svc := &fakeReconcileService{}
	handler := GenerationCallback(svc, nil)

	rec := postCallback(t, handler, `{"job_id":"job-1","status":"completed","result_url":"https://storage.googleapis.com/out/results/job-1.png"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, svc.inputs, 1)
	assert.Equal(t, "job-1", svc.inputs[0].JobID)
	assert.Equal(t, enums.GenerationStatusCompleted, svc.inputs[0].Status)
	assert.Equal(t, "https://storage.googleapis.com/out/results/job-1.png", svc.inputs[0].ResultURL)
	assert.Contains(t, rec.Body.String(), `"applied":true`)
}

func TestGenerationCallback_ProcessingAccepted(t *testing.T) {
	svc := &fakeReconcileService{}
	handler := GenerationCallback(svc, nil)

	rec := postCallback(t, handler, `{"job_id":"job-4","status":"processing"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, svc.inputs, 1)
	assert.Equal(t, enums.GenerationStatusProcessing, svc.inputs[0].Status)
}

func TestGenerationCallback_FailedCarriesErrorMessage(t *testing.T) {
	svc := &fakeReconcileService{}
	handler := GenerationCallback(svc, nil)

	rec := postCallback(t, handler, `{"job_id":"job-2","status":"failed","error_message":"model exploded"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, svc.inputs, 1)
	assert.Equal(t, enums.GenerationStatusFailed, svc.inputs[0].Status)
	assert.Equal(t, "model exploded", svc.inputs[0].ErrorMessage)
}

func TestGenerationCallback_RejectsInvalidStatus(t *testing.T) {
	svc := &fakeReconcileService{}
	handler := GenerationCallback(svc, nil)

	rec := postCallback(t, handler, `{"job_id":"job-3","status":"sideways"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, svc.inputs)
}

func TestGenerationCallback_RejectsMissingJobID(t *testing.T) {
	svc := &fakeReconcileService{}
	handler := GenerationCallback(svc, nil)

	rec := postCallback(t, handler, `{"status":"completed"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, svc.inputs)
}

func TestGenerationCallback_UnknownJobPropagates(t *testing.T) {
	svc := &fakeReconcileService{err: pkgerrors.New(pkgerrors.CodeNotFound, "unknown job id")}
	handler := GenerationCallback(svc, nil)

	rec := postCallback(t, handler, `{"job_id":"missing","status":"completed"}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
