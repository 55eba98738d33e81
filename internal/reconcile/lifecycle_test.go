package reconcile

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/aistudio-app/backend/internal/dispatch"
	"github.com/aistudio-app/backend/internal/generations"
	"github.com/aistudio-app/backend/internal/ledger"
	"github.com/aistudio-app/backend/pkg/config"
	"github.com/aistudio-app/backend/pkg/db/models"
	"github.com/aistudio-app/backend/pkg/enums"
	"github.com/aistudio-app/backend/pkg/logger"
	"github.com/aistudio-app/backend/pkg/storage/gcs"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}

type nopAssetStore struct{}

func (nopAssetStore) Upload(ctx context.Context, bucket, object, contentType string, body io.Reader) (*gcs.ObjectInfo, error) {
	return &gcs.ObjectInfo{Name: object, Bucket: bucket, ContentType: contentType}, nil
}

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(ctx context.Context, job dispatch.Job) error {
	return nil
}

type sqliteTxRunner struct {
	db *gorm.DB
}

func (r sqliteTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

// Exercises admission and reconciliation against the same database: a video
// request spends the whole balance, the worker reports failure, and the
// refund restores the balance with both ledger entries on record.
func TestSubmitThenFailedCallbackRestoresBalance(t *testing.T) {
	db := setupReconcileTestDB(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	runner := sqliteTxRunner{db: db}

	submitSvc, err := generations.NewService(generations.ServiceParams{
		Repo:         generations.NewRepository(db),
		LedgerRepo:   ledger.NewRepository(db),
		Tx:           runner,
		Assets:       nopAssetStore{},
		Dispatcher:   nopDispatcher{},
		Logger:       logg,
		ImagesBucket: "images-test",
		MaxUploadMB:  1,
		Costs:        config.GenerationConfig{ImageCost: 5, VideoCost: 20},
	})
	require.NoError(t, err)

	reconcileSvc, err := NewService(ServiceParams{
		Repo:         generations.NewRepository(db),
		LedgerRepo:   ledger.NewRepository(db),
		Tx:           runner,
		Results:      &stubResultStore{objects: map[string][]gcs.ObjectInfo{}},
		Logger:       logg,
		ImagesBucket: "images-test",
		VideosBucket: "videos-test",
	})
	require.NoError(t, err)

	account := &models.Account{
		ID:           uuid.New(),
		Email:        "lifecycle@example.com",
		TokenBalance: 20,
	}
	require.NoError(t, db.Create(account).Error)

	style := enums.VideoStyleUGC
	jobID := uuid.NewString()
	out, err := submitSvc.Submit(context.Background(), generations.SubmitInput{
		AccountID:   account.ID,
		JobID:       jobID,
		MediaType:   enums.MediaTypeVideo,
		VideoStyle:  &style,
		Prompt:      "rotate the sneaker",
		SourceAsset: bytes.NewReader(pngHeader),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, out.TokenBalance)
	assert.Equal(t, enums.GenerationStatusPending, out.Generation.Status)

	result, err := reconcileSvc.Reconcile(context.Background(), Input{
		JobID:        jobID,
		Status:       enums.GenerationStatusFailed,
		ErrorMessage: "model timeout",
	})
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Equal(t, enums.GenerationStatusFailed, result.Generation.Status)
	require.NotNil(t, result.Generation.ErrorMessage)
	assert.Equal(t, "model timeout", *result.Generation.ErrorMessage)

	var stored models.Account
	require.NoError(t, db.First(&stored, "id = ?", account.ID).Error)
	assert.Equal(t, 20, stored.TokenBalance)

	var entries []models.LedgerEntry
	require.NoError(t, db.Order("created_at ASC").Find(&entries).Error)
	require.Len(t, entries, 2)
	assert.Equal(t, enums.LedgerEntryTypeUsage, entries[0].Type)
	assert.Equal(t, -20, entries[0].Amount)
	assert.Equal(t, enums.LedgerEntryTypeReversal, entries[1].Type)
	assert.Equal(t, 20, entries[1].Amount)
	assert.Equal(t, 20, entries[1].BalanceAfter)
}
