package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aistudio-app/backend/api/controllers"
	gensvc "github.com/aistudio-app/backend/internal/generations"
	"github.com/aistudio-app/backend/internal/ledger"
	"github.com/aistudio-app/backend/internal/purchases"
	"github.com/aistudio-app/backend/internal/reconcile"
	pkgAuth "github.com/aistudio-app/backend/pkg/auth"
	"github.com/aistudio-app/backend/pkg/config"
	"github.com/aistudio-app/backend/pkg/db/models"
	"github.com/aistudio-app/backend/pkg/enums"
	"github.com/aistudio-app/backend/pkg/logger"
	"github.com/aistudio-app/backend/pkg/pagination"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubAccountsService struct {
	account *models.Account
}

func (s stubAccountsService) Sync(ctx context.Context, email string) (*models.Account, bool, error) {
	return s.account, true, nil
}

func (s stubAccountsService) Profile(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	return s.account, nil
}

func (s stubAccountsService) Transactions(ctx context.Context, accountID uuid.UUID, params pagination.Params) (*ledger.EntryList, error) {
	return &ledger.EntryList{}, nil
}

type stubGenerationsService struct{}

func (stubGenerationsService) Submit(ctx context.Context, input gensvc.SubmitInput) (*gensvc.SubmitOutput, error) {
	panic("unimplemented")
}

func (stubGenerationsService) List(ctx context.Context, accountID uuid.UUID, params pagination.Params, filters gensvc.ListFilters) (*gensvc.GenerationList, error) {
	return &gensvc.GenerationList{}, nil
}

func (stubGenerationsService) Get(ctx context.Context, id, accountID uuid.UUID) (*models.Generation, error) {
	panic("unimplemented")
}

func (stubGenerationsService) SetFavorite(ctx context.Context, id, accountID uuid.UUID, favorite bool) error {
	panic("unimplemented")
}

func (stubGenerationsService) Delete(ctx context.Context, id, accountID uuid.UUID) error {
	panic("unimplemented")
}

type stubPurchasesService struct {
	settled []purchases.SettleInput
}

func (s *stubPurchasesService) Settle(ctx context.Context, input purchases.SettleInput) (*purchases.SettleOutput, error) {
	s.settled = append(s.settled, input)
	return &purchases.SettleOutput{
		Purchase: &models.Purchase{ID: uuid.New(), TokensGranted: 500},
	}, nil
}

type stubReconcileService struct {
	inputs []reconcile.Input
}

func (s *stubReconcileService) Reconcile(ctx context.Context, input reconcile.Input) (*reconcile.Outcome, error) {
	s.inputs = append(s.inputs, input)
	return &reconcile.Outcome{
		Generation: &models.Generation{JobID: input.JobID, Status: input.Status},
		Applied:    true,
	}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		JWT: config.JWTConfig{
			Secret:            "secret",
			Issuer:            "issuer",
			ExpirationMinutes: 60,
		},
		Billing: config.BillingConfig{
			Provider:      "apple_iap",
			WebhookSecret: "whsec_test",
		},
	}
}

func newTestRouter(cfg *config.Config, purchasesSvc *stubPurchasesService, reconciler *stubReconcileService) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	account := &models.Account{ID: uuid.New(), Email: "buyer@example.com", TokenBalance: 60}
	return NewRouter(Deps{
		Config:      cfg,
		Logger:      logg,
		Pingers:     map[string]controllers.Pinger{"database": stubPinger{}},
		Accounts:    stubAccountsService{account: account},
		Generations: stubGenerationsService{},
		Purchases:   purchasesSvc,
		Reconciler:  reconciler,
	})
}

func buildToken(t *testing.T, cfg *config.Config) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now().UTC(), pkgAuth.AccessTokenPayload{
		AccountID: uuid.New(),
		Email:     "buyer@example.com",
	})
	require.NoError(t, err)
	return token
}

func TestProtectedGroupRejectsMissingJWT(t *testing.T) {
	router := newTestRouter(testConfig(), &stubPurchasesService{}, &stubReconcileService{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/account/me", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestProtectedGroupSucceedsWithJWT(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, &stubPurchasesService{}, &stubReconcileService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/account/me", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "buyer@example.com")
}

func TestHealthEndpointsArePublic(t *testing.T) {
	router := newTestRouter(testConfig(), &stubPurchasesService{}, &stubReconcileService{})

	for _, path := range []string{"/health/live", "/health/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		assert.Equal(t, http.StatusOK, resp.Code, path)
	}
}

func TestGenerationWebhookIsUnauthenticated(t *testing.T) {
	reconciler := &stubReconcileService{}
	router := newTestRouter(testConfig(), &stubPurchasesService{}, reconciler)

	body := `{"job_id":"job-123","status":"completed","result_url":"https://storage.googleapis.com/out/results/job-123.png"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/generation", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.Len(t, reconciler.inputs, 1)
	assert.Equal(t, "job-123", reconciler.inputs[0].JobID)
	assert.Equal(t, enums.GenerationStatusCompleted, reconciler.inputs[0].Status)
}

func TestPurchaseWebhookRequiresSecret(t *testing.T) {
	purchasesSvc := &stubPurchasesService{}
	router := newTestRouter(testConfig(), purchasesSvc, &stubReconcileService{})

	body := `{"account_id":"` + uuid.NewString() + `","provider_txn_ref":"txn-1","package_id":"tokens_500"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/purchase", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Empty(t, purchasesSvc.settled)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/purchase", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Billing-Signature", "whsec_test")
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Len(t, purchasesSvc.settled, 1)
}

func TestPackagesEndpointListsCatalog(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, &stubPurchasesService{}, &stubReconcileService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/packages", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "tokens_500")
}

func TestAuthSyncIssuesToken(t *testing.T) {
	router := newTestRouter(testConfig(), &stubPurchasesService{}, &stubReconcileService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/sync", strings.NewReader(`{"email":"buyer@example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	assert.Contains(t, resp.Body.String(), `"token"`)
}
