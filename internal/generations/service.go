package generations

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aistudio-app/backend/internal/dispatch"
	"github.com/aistudio-app/backend/internal/ledger"
	"github.com/aistudio-app/backend/pkg/config"
	"github.com/aistudio-app/backend/pkg/db"
	"github.com/aistudio-app/backend/pkg/db/models"
	"github.com/aistudio-app/backend/pkg/enums"
	pkgerrors "github.com/aistudio-app/backend/pkg/errors"
	"github.com/aistudio-app/backend/pkg/logger"
	"github.com/aistudio-app/backend/pkg/pagination"
	"github.com/aistudio-app/backend/pkg/storage/gcs"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const maxPromptLength = 2000

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type assetStore interface {
	Upload(ctx context.Context, bucket, object, contentType string, body io.Reader) (*gcs.ObjectInfo, error)
}

// Service defines generation admission and gallery operations.
type Service interface {
	Submit(ctx context.Context, input SubmitInput) (*SubmitOutput, error)
	List(ctx context.Context, accountID uuid.UUID, params pagination.Params, filters ListFilters) (*GenerationList, error)
	Get(ctx context.Context, id, accountID uuid.UUID) (*models.Generation, error)
	SetFavorite(ctx context.Context, id, accountID uuid.UUID, favorite bool) error
	Delete(ctx context.Context, id, accountID uuid.UUID) error
}

type service struct {
	repo       Repository
	ledgerRepo ledger.Repository
	tx         txRunner
	assets     assetStore
	dispatcher dispatch.Dispatcher
	logg       *logger.Logger

	imagesBucket   string
	maxUploadBytes int64
	costs          config.GenerationConfig
}

// ServiceParams collects the dependencies for NewService.
type ServiceParams struct {
	Repo       Repository
	LedgerRepo ledger.Repository
	Tx         txRunner
	Assets     assetStore
	Dispatcher dispatch.Dispatcher
	Logger     *logger.Logger

	ImagesBucket string
	MaxUploadMB  int
	Costs        config.GenerationConfig
}

// NewService builds a generations service with the required dependencies.
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
	if params.Assets == nil {
		return nil, fmt.Errorf("asset store required")
	}
	if params.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.ImagesBucket == "" {
		return nil, fmt.Errorf("images bucket required")
	}
	if params.Costs.ImageCost <= 0 || params.Costs.VideoCost <= 0 {
		return nil, fmt.Errorf("generation costs must be positive")
	}
	maxUploadMB := params.MaxUploadMB
	if maxUploadMB <= 0 {
		maxUploadMB = 10
	}

	return &service{
		repo:           params.Repo,
		ledgerRepo:     params.LedgerRepo,
		tx:             params.Tx,
		assets:         params.Assets,
		dispatcher:     params.Dispatcher,
		logg:           params.Logger,
		imagesBucket:   params.ImagesBucket,
		maxUploadBytes: int64(maxUploadMB) * 1024 * 1024,
		costs:          params.Costs,
	}, nil
}

// SubmitInput carries one generation request. JobID comes from the client and
// correlates the request with its eventual worker callback.
type SubmitInput struct {
	AccountID  uuid.UUID
	JobID      string
	MediaType  enums.MediaType
	VideoStyle *enums.VideoStyle
	Prompt     string
	Notes      *string

	// SourceAsset is the optional product shot the worker generates from.
	// Required for video requests.
	SourceAsset io.Reader
}

// SubmitOutput returns the admitted generation plus the balance after debit.
type SubmitOutput struct {
	Generation   *models.Generation
	TokenBalance int
}

// Submit admits a generation request: it charges the account and persists the
// pending row in one transaction, then hands the job to the worker. A failed
// handoff does not undo admission; the reaper times the job out later.
func (s *service) Submit(ctx context.Context, input SubmitInput) (*SubmitOutput, error) {
	if err := s.validateSubmit(input); err != nil {
		return nil, err
	}

	jobID := strings.TrimSpace(input.JobID)
	ctx = s.logg.WithJobID(ctx, jobID)

	// Cheap pre-read so an underfunded request fails before any durable
	// write; the guarded debit below stays authoritative.
	cost := s.costFor(input.MediaType)
	balance, err := s.ledgerRepo.Balance(ctx, input.AccountID)
	if err != nil {
		return nil, err
	}
	if balance < cost {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientCredits, "insufficient token balance")
	}

	sourceURL := ""
	if input.SourceAsset != nil {
		uploaded, err := s.uploadSourceAsset(ctx, jobID, input.SourceAsset)
		if err != nil {
			return nil, err
		}
		sourceURL = uploaded
	}

	generation := &models.Generation{
		ID:             uuid.New(),
		JobID:          jobID,
		AccountID:      input.AccountID,
		MediaType:      input.MediaType,
		VideoStyle:     input.VideoStyle,
		Prompt:         strings.TrimSpace(input.Prompt),
		Notes:          input.Notes,
		Status:         enums.GenerationStatusPending,
		SourceAssetURL: sourceURL,
		TokensCharged:  cost,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ledgerRepo := s.ledgerRepo.WithTx(tx)

		if _, err := repo.Create(ctx, generation); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "job id already submitted")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating generation")
		}

		balanceAfter, err := ledgerRepo.Adjust(ctx, ledger.Adjustment{
			AccountID:    input.AccountID,
			BalanceDelta: -cost,
			UsedDelta:    cost,
		})
		if err != nil {
			return err
		}
		balance = balanceAfter

		_, err = ledgerRepo.AppendEntry(ctx, &models.LedgerEntry{
			ID:           uuid.New(),
			AccountID:    input.AccountID,
			Type:         enums.LedgerEntryTypeUsage,
			Amount:       -cost,
			BalanceAfter: balanceAfter,
			Description:  fmt.Sprintf("%s generation", input.MediaType),
			GenerationID: &generation.ID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := s.dispatcher.Dispatch(ctx, dispatch.Job{
		JobID:          jobID,
		AccountID:      input.AccountID,
		MediaType:      input.MediaType,
		VideoStyle:     input.VideoStyle,
		Prompt:         generation.Prompt,
		Notes:          input.Notes,
		SourceAssetURL: sourceURL,
	}); err != nil {
		// Admission already committed; the job stays pending until the
		// reaper reconciles it as failed and refunds the charge.
		s.logg.Error(ctx, "dispatching generation job failed", err)
	}

	return &SubmitOutput{Generation: generation, TokenBalance: balance}, nil
}

func (s *service) validateSubmit(input SubmitInput) error {
	if input.AccountID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "account identity missing")
	}
	if strings.TrimSpace(input.JobID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "job_id required")
	}
	if !input.MediaType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "media_type must be image or video")
	}
	prompt := strings.TrimSpace(input.Prompt)
	if prompt == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "prompt required")
	}
	if len(prompt) > maxPromptLength {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("prompt must be at most %d characters", maxPromptLength))
	}
	if input.MediaType == enums.MediaTypeVideo {
		if input.VideoStyle == nil || !input.VideoStyle.IsValid() {
			return pkgerrors.New(pkgerrors.CodeValidation, "video_style required for video generations")
		}
		if input.SourceAsset == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "source asset required for video generations")
		}
	}
	if input.MediaType == enums.MediaTypeImage && input.VideoStyle != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "video_style not allowed for image generations")
	}
	return nil
}

// uploadSourceAsset sniffs and stores the source asset before any money
// moves. Failures here reject the request with nothing persisted.
func (s *service) uploadSourceAsset(ctx context.Context, jobID string, asset io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(asset, s.maxUploadBytes+1))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "reading source asset")
	}
	if int64(len(data)) > s.maxUploadBytes {
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("source asset exceeds %d bytes", s.maxUploadBytes))
	}
	if len(data) == 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "source asset is empty")
	}

	mime := mimetype.Detect(data)
	if !strings.HasPrefix(mime.String(), "image/") {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "source asset must be an image")
	}

	object := fmt.Sprintf("sources/%s%s", jobID, mime.Extension())
	if _, err := s.assets.Upload(ctx, s.imagesBucket, object, mime.String(), bytes.NewReader(data)); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "uploading source asset")
	}
	return gcs.PublicURL(s.imagesBucket, object), nil
}

func (s *service) costFor(mediaType enums.MediaType) int {
	if mediaType == enums.MediaTypeVideo {
		return s.costs.VideoCost
	}
	return s.costs.ImageCost
}
