package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aistudio-app/backend/internal/generations"
	"github.com/aistudio-app/backend/internal/ledger"
	"github.com/aistudio-app/backend/pkg/db"
	"github.com/aistudio-app/backend/pkg/db/models"
	"github.com/aistudio-app/backend/pkg/enums"
	pkgerrors "github.com/aistudio-app/backend/pkg/errors"
	"github.com/aistudio-app/backend/pkg/logger"
	"github.com/aistudio-app/backend/pkg/storage/gcs"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"
)

// resultsPrefix is where the worker writes finished media, keyed by job id.
const resultsPrefix = "results/"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type resultStore interface {
	ListByPrefix(ctx context.Context, bucket, prefix string) ([]gcs.ObjectInfo, error)
}

// Input is one worker callback (or reaper timeout) to reconcile.
type Input struct {
	JobID        string
	Status       enums.GenerationStatus
	ResultURL    string
	ErrorMessage string
}

// Outcome reports the row after reconciliation. Applied is false when the
// callback lost the idempotency race and changed nothing.
type Outcome struct {
	Generation *models.Generation
	Applied    bool
}

// Service reconciles generation lifecycle transitions with the token ledger.
type Service interface {
	Reconcile(ctx context.Context, input Input) (*Outcome, error)
}

type service struct {
	repo       generations.Repository
	ledgerRepo ledger.Repository
	tx         txRunner
	results    resultStore
	guard      *IdempotencyGuard
	logg       *logger.Logger

	imagesBucket string
	videosBucket string
}

// ServiceParams collects the dependencies for NewService. Guard is optional.
type ServiceParams struct {
	Repo       generations.Repository
	LedgerRepo ledger.Repository
	Tx         txRunner
	Results    resultStore
	Guard      *IdempotencyGuard
	Logger     *logger.Logger

	ImagesBucket string
	VideosBucket string
}

// NewService builds a reconcile service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("generations repository required")
	}
	if params.LedgerRepo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Results == nil {
		return nil, fmt.Errorf("result store required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.ImagesBucket == "" || params.VideosBucket == "" {
		return nil, fmt.Errorf("bucket names required")
	}
	return &service{
		repo:         params.Repo,
		ledgerRepo:   params.LedgerRepo,
		tx:           params.Tx,
		results:      params.Results,
		guard:        params.Guard,
		logg:         params.Logger,
		imagesBucket: params.ImagesBucket,
		videosBucket: params.VideosBucket,
	}, nil
}

// Reconcile applies a reported status to the generation identified by
// input.JobID. Processing callbacks advance pending rows and touch no money.
// Completed callbacks record the result; failed callbacks reverse the
// admission charge in the same transaction as the status flip. Duplicate
// callbacks are absorbed without side effects.
func (s *service) Reconcile(ctx context.Context, input Input) (*Outcome, error) {
	jobID := strings.TrimSpace(input.JobID)
	if jobID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "job_id required")
	}
	if input.Status != enums.GenerationStatusProcessing && !input.Status.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "status must be processing, completed or failed")
	}
	ctx = s.logg.WithJobID(ctx, jobID)

	if input.Status == enums.GenerationStatusProcessing {
		return s.markProcessing(ctx, jobID)
	}

	if s.guard != nil {
		duplicate, err := s.guard.CheckAndMark(ctx, jobID)
		if err != nil {
			// Redis being down must not block reconciliation.
			s.logg.Warn(ctx, "idempotency guard unavailable, relying on status guard")
		} else if duplicate {
			generation, err := s.loadByJobID(ctx, jobID)
			if err != nil {
				return nil, err
			}
			if generation.Status.IsTerminal() {
				return &Outcome{Generation: generation, Applied: false}, nil
			}
			// Marked but never finished; fall through and reconcile.
		}
	}

	generation, err := s.loadByJobID(ctx, jobID)
	if err != nil {
		s.releaseGuard(ctx, jobID)
		return nil, err
	}
	if generation.Status.IsTerminal() {
		return &Outcome{Generation: generation, Applied: false}, nil
	}

	status := input.Status
	resultURL := strings.TrimSpace(input.ResultURL)
	errorMessage := strings.TrimSpace(input.ErrorMessage)

	if status == enums.GenerationStatusCompleted && resultURL == "" {
		discovered, err := s.discoverResult(ctx, generation)
		if err != nil {
			s.releaseGuard(ctx, jobID)
			return nil, err
		}
		if discovered == "" {
			// Worker reported success but produced nothing we can serve.
			status = enums.GenerationStatusFailed
			errorMessage = "result asset not found"
			s.logg.Warn(ctx, "completed callback without result asset, failing job")
		}
		resultURL = discovered
	}

	outcome, err := s.applyTransition(ctx, generation, status, resultURL, errorMessage)
	if err != nil {
		s.releaseGuard(ctx, jobID)
		return nil, err
	}
	return outcome, nil
}

// markProcessing records the optional worker progress signal. The status
// guard keeps a late signal from overwriting a terminal row, and the
// idempotency mark stays untouched so the terminal callback still lands.
func (s *service) markProcessing(ctx context.Context, jobID string) (*Outcome, error) {
	affected, err := s.repo.MarkProcessing(ctx, jobID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marking generation processing")
	}

	generation, err := s.loadByJobID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &Outcome{Generation: generation, Applied: affected > 0}, nil
}

func (s *service) loadByJobID(ctx context.Context, jobID string) (*models.Generation, error) {
	generation, err := s.repo.FindByJobID(ctx, jobID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "unknown job id")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading generation")
	}
	return generation, nil
}

// discoverResult searches the media bucket for an object keyed by the job id.
// Workers usually include the URL in the callback; this covers the ones that
// upload and then fail to report it.
func (s *service) discoverResult(ctx context.Context, generation *models.Generation) (string, error) {
	bucket := s.imagesBucket
	if generation.MediaType == enums.MediaTypeVideo {
		bucket = s.videosBucket
	}

	objects, err := s.results.ListByPrefix(ctx, bucket, resultsPrefix+generation.JobID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "searching for result asset")
	}
	if len(objects) == 0 {
		return "", nil
	}
	return gcs.PublicURL(bucket, objects[0].Name), nil
}

func (s *service) applyTransition(ctx context.Context, generation *models.Generation, status enums.GenerationStatus, resultURL, errorMessage string) (*Outcome, error) {
	now := time.Now().UTC()
	updates := map[string]any{
		"status":       status,
		"completed_at": now,
		"updated_at":   now,
	}
	if status == enums.GenerationStatusCompleted {
		updates["result_url"] = resultURL
		updates["error_message"] = nil
	} else {
		if errorMessage == "" {
			errorMessage = "generation failed"
		}
		updates["error_message"] = errorMessage
	}

	applied := false
	work := func(ctx context.Context) error {
		applied = false
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)

			affected, err := repo.TransitionFromActive(ctx, generation.JobID, updates)
			if err != nil {
				return err
			}
			if affected == 0 {
				// Lost the race against another callback or the reaper.
				return nil
			}
			applied = true

			if status == enums.GenerationStatusFailed && generation.TokensCharged > 0 {
				return s.reverseCharge(ctx, tx, generation)
			}
			return nil
		})
	}

	backoff := retry.WithMaxRetries(3, retry.NewExponential(50*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := work(ctx)
		if db.IsRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "applying transition")
	}

	fresh, err := s.loadByJobID(ctx, generation.JobID)
	if err != nil {
		return nil, err
	}
	return &Outcome{Generation: fresh, Applied: applied}, nil
}

// reverseCharge refunds the admission debit inside the transition transaction
// so a crash cannot leave a failed job without its refund.
func (s *service) reverseCharge(ctx context.Context, tx *gorm.DB, generation *models.Generation) error {
	ledgerRepo := s.ledgerRepo.WithTx(tx)

	balance, err := ledgerRepo.Adjust(ctx, ledger.Adjustment{
		AccountID:    generation.AccountID,
		BalanceDelta: generation.TokensCharged,
		UsedDelta:    -generation.TokensCharged,
	})
	if err != nil {
		return err
	}

	_, err = ledgerRepo.AppendEntry(ctx, &models.LedgerEntry{
		ID:           uuid.New(),
		AccountID:    generation.AccountID,
		Type:         enums.LedgerEntryTypeReversal,
		Amount:       generation.TokensCharged,
		BalanceAfter: balance,
		Description:  fmt.Sprintf("%s generation failed", generation.MediaType),
		GenerationID: &generation.ID,
	})
	return err
}

func (s *service) releaseGuard(ctx context.Context, jobID string) {
	if s.guard == nil {
		return
	}
	if err := s.guard.Delete(ctx, jobID); err != nil {
		s.logg.Warn(ctx, "releasing idempotency mark failed")
	}
}
