package webhooks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aistudio-app/backend/internal/purchases"
	"github.com/aistudio-app/backend/pkg/config"
	"github.com/aistudio-app/backend/pkg/db/models"
)

type fakePurchasesService struct {
	inputs []purchases.SettleInput
	out    *purchases.SettleOutput
	err    error
}

func (f *fakePurchasesService) Settle(ctx context.Context, input purchases.SettleInput) (*purchases.SettleOutput, error) {
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return nil, f.err
	}
	if f.out != nil {
		return f.out, nil
	}
	return &purchases.SettleOutput{
		Purchase:     &models.Purchase{ID: uuid.New(), TokensGranted: 500},
		TokenBalance: 560,
	}, nil
}

func billingConfig() config.BillingConfig {
	return config.BillingConfig{Provider: "apple_iap", WebhookSecret: "whsec_test"}
}

func postSettlement(t *testing.T, handler http.HandlerFunc, signature, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/purchase", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("X-Billing-Signature", signature)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestPurchaseSettled_CreditsOnValidSignature(t *testing.T) {
	svc := &fakePurchasesService{}
	handler := PurchaseSettled(svc, billingConfig(), nil)

	accountID := uuid.New()
	body := `{"account_id":"` + accountID.String() + `","provider_txn_ref":"txn-abc","package_id":"tokens_500"}`
	rec := postSettlement(t, handler, "whsec_test", body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, svc.inputs, 1)
	assert.Equal(t, accountID, svc.inputs[0].AccountID)
	assert.Equal(t, "txn-abc", svc.inputs[0].ProviderTxnRef)
	assert.Equal(t, "tokens_500", svc.inputs[0].PackageID)
	assert.Contains(t, rec.Body.String(), `"tokens_granted":500`)
}

func TestPurchaseSettled_RejectsBadSignature(t *testing.T) {
	svc := &fakePurchasesService{}
	handler := PurchaseSettled(svc, billingConfig(), nil)

	body := `{"account_id":"` + uuid.NewString() + `","provider_txn_ref":"txn-abc","package_id":"tokens_500"}`

	rec := postSettlement(t, handler, "wrong", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postSettlement(t, handler, "", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Empty(t, svc.inputs)
}

func TestPurchaseSettled_ReportsDuplicateSettlement(t *testing.T) {
	svc := &fakePurchasesService{
		out: &purchases.SettleOutput{
			Purchase:       &models.Purchase{ID: uuid.New(), TokensGranted: 500},
			AlreadySettled: true,
		},
	}
	handler := PurchaseSettled(svc, billingConfig(), nil)

	body := `{"account_id":"` + uuid.NewString() + `","provider_txn_ref":"txn-abc","package_id":"tokens_500"}`
	rec := postSettlement(t, handler, "whsec_test", body)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"already_settled":true`)
}

func TestPurchaseSettled_RejectsIncompletePayload(t *testing.T) {
	svc := &fakePurchasesService{}
	handler := PurchaseSettled(svc, billingConfig(), nil)

	rec := postSettlement(t, handler, "whsec_test", `{"provider_txn_ref":"txn-abc"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, svc.inputs)
}
