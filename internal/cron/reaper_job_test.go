package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aistudio-app/backend/internal/reconcile"
	"github.com/aistudio-app/backend/pkg/db/models"
	"github.com/aistudio-app/backend/pkg/enums"
	"github.com/aistudio-app/backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStaleReader struct {
	rows   []models.Generation
	cutoff time.Time
	limit  int
	err    error
}

func (s *stubStaleReader) FindStaleActive(ctx context.Context, cutoff time.Time, limit int) ([]models.Generation, error) {
	s.cutoff = cutoff
	s.limit = limit
	if s.err != nil {
		return nil, s.err
	}
	return s.rows, nil
}

type stubReconciler struct {
	inputs  []reconcile.Input
	applied map[string]bool
	errFor  map[string]error
}

func (s *stubReconciler) Reconcile(ctx context.Context, input reconcile.Input) (*reconcile.Outcome, error) {
	s.inputs = append(s.inputs, input)
	if err, ok := s.errFor[input.JobID]; ok {
		return nil, err
	}
	return &reconcile.Outcome{
		Generation: &models.Generation{JobID: input.JobID, Status: enums.GenerationStatusFailed},
		Applied:    s.applied == nil || s.applied[input.JobID],
	}, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func newStaleRow() models.Generation {
	return models.Generation{
		ID:        uuid.New(),
		JobID:     uuid.NewString(),
		AccountID: uuid.New(),
		Status:    enums.GenerationStatusPending,
	}
}

func TestGenerationReaperTimesOutStaleJobs(t *testing.T) {
	first := newStaleRow()
	second := newStaleRow()
	reader := &stubStaleReader{rows: []models.Generation{first, second}}
	reconciler := &stubReconciler{}

	job, err := NewGenerationReaperJob(GenerationReaperJobParams{
		Logger:     testLogger(),
		Reader:     reader,
		Reconciler: reconciler,
		PendingTTL: 2 * time.Hour,
		BatchSize:  50,
	})
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, 50, reader.limit)
	assert.WithinDuration(t, time.Now().UTC().Add(-2*time.Hour), reader.cutoff, time.Minute)

	require.Len(t, reconciler.inputs, 2)
	assert.Equal(t, first.JobID, reconciler.inputs[0].JobID)
	assert.Equal(t, enums.GenerationStatusFailed, reconciler.inputs[0].Status)
	assert.Equal(t, "generation timed out", reconciler.inputs[0].ErrorMessage)
}

func TestGenerationReaperContinuesPastFailures(t *testing.T) {
	broken := newStaleRow()
	healthy := newStaleRow()
	reader := &stubStaleReader{rows: []models.Generation{broken, healthy}}
	reconciler := &stubReconciler{
		errFor: map[string]error{broken.JobID: errors.New("db hiccup")},
	}

	job, err := NewGenerationReaperJob(GenerationReaperJobParams{
		Logger:     testLogger(),
		Reader:     reader,
		Reconciler: reconciler,
		PendingTTL: time.Hour,
	})
	require.NoError(t, err)

	err = job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), broken.JobID)

	// the healthy row was still reconciled
	require.Len(t, reconciler.inputs, 2)
	assert.Equal(t, healthy.JobID, reconciler.inputs[1].JobID)
}

func TestGenerationReaperEmptyBatch(t *testing.T) {
	reader := &stubStaleReader{}
	reconciler := &stubReconciler{}

	job, err := NewGenerationReaperJob(GenerationReaperJobParams{
		Logger:     testLogger(),
		Reader:     reader,
		Reconciler: reconciler,
		PendingTTL: time.Hour,
	})
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))
	assert.Empty(t, reconciler.inputs)
}
