package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/aistudio-app/backend/internal/reconcile"
	"github.com/aistudio-app/backend/pkg/db/models"
	"github.com/aistudio-app/backend/pkg/enums"
	"github.com/aistudio-app/backend/pkg/logger"
	"github.com/aistudio-app/backend/pkg/metrics"
	"go.uber.org/multierr"
)

const timeoutMessage = "generation timed out"

// GenerationReaperJobParams configure the stale generation reaper.
type GenerationReaperJobParams struct {
	Logger     *logger.Logger
	Reader     staleGenerationReader
	Reconciler reconcile.Service
	Metrics    *metrics.JobMetrics

	PendingTTL time.Duration
	BatchSize  int
}

type staleGenerationReader interface {
	FindStaleActive(ctx context.Context, cutoff time.Time, limit int) ([]models.Generation, error)
}

// NewGenerationReaperJob builds the cron job that fails generations whose
// worker never called back and refunds their admission charges.
func NewGenerationReaperJob(params GenerationReaperJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reader == nil {
		return nil, fmt.Errorf("stale generation reader required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconcile service required")
	}
	if params.PendingTTL <= 0 {
		return nil, fmt.Errorf("pending ttl must be positive")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	return &generationReaperJob{
		logg:       params.Logger,
		reader:     params.Reader,
		reconciler: params.Reconciler,
		metrics:    params.Metrics,
		pendingTTL: params.PendingTTL,
		batchSize:  batchSize,
		now:        time.Now,
	}, nil
}

type generationReaperJob struct {
	logg       *logger.Logger
	reader     staleGenerationReader
	reconciler reconcile.Service
	metrics    *metrics.JobMetrics
	pendingTTL time.Duration
	batchSize  int
	now        func() time.Time
}

func (j *generationReaperJob) Name() string { return "generation-reaper" }

// Run times out stale jobs through the reconcile path so reaping and worker
// callbacks share one set of transition rules. A callback racing the reaper
// simply wins or loses the status CAS; either way the charge settles once.
func (j *generationReaperJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.pendingTTL)
	stale, err := j.reader.FindStaleActive(ctx, cutoff, j.batchSize)
	if err != nil {
		return fmt.Errorf("query stale generations: %w", err)
	}

	reaped := 0
	var errs []error
	for _, generation := range stale {
		outcome, err := j.reconciler.Reconcile(ctx, reconcile.Input{
			JobID:        generation.JobID,
			Status:       enums.GenerationStatusFailed,
			ErrorMessage: timeoutMessage,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("reap job %s: %w", generation.JobID, err))
			continue
		}
		if outcome.Applied {
			reaped++
		}
	}

	if j.metrics != nil && reaped > 0 {
		j.metrics.AddReaped(j.Name(), reaped)
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{"stale": len(stale), "reaped": reaped})
	j.logg.Info(logCtx, "generation reap loop complete")
	return multierr.Combine(errs...)
}
