package controllers

import (
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/aistudio-app/backend/api/responses"
	"github.com/aistudio-app/backend/api/validators"
	gensvc "github.com/aistudio-app/backend/internal/generations"
	"github.com/aistudio-app/backend/pkg/db/models"
	"github.com/aistudio-app/backend/pkg/enums"
	pkgerrors "github.com/aistudio-app/backend/pkg/errors"
	"github.com/aistudio-app/backend/pkg/logger"
)

// multipartMemoryLimit bounds how much of the upload stays in memory before
// spilling to a temp file.
const multipartMemoryLimit = 8 << 20

type generationResponse struct {
	ID             uuid.UUID  `json:"id"`
	JobID          string     `json:"job_id"`
	MediaType      string     `json:"media_type"`
	VideoStyle     *string    `json:"video_style,omitempty"`
	Prompt         string     `json:"prompt"`
	Notes          *string    `json:"notes,omitempty"`
	Status         string     `json:"status"`
	SourceAssetURL string     `json:"source_asset_url,omitempty"`
	ResultURL      *string    `json:"result_url,omitempty"`
	ErrorMessage   *string    `json:"error_message,omitempty"`
	TokensCharged  int        `json:"tokens_charged"`
	Favorite       bool       `json:"favorite"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

func newGenerationResponse(g *models.Generation) generationResponse {
	var style *string
	if g.VideoStyle != nil {
		value := string(*g.VideoStyle)
		style = &value
	}
	return generationResponse{
		ID:             g.ID,
		JobID:          g.JobID,
		MediaType:      string(g.MediaType),
		VideoStyle:     style,
		Prompt:         g.Prompt,
		Notes:          g.Notes,
		Status:         string(g.Status),
		SourceAssetURL: g.SourceAssetURL,
		ResultURL:      g.ResultURL,
		ErrorMessage:   g.ErrorMessage,
		TokensCharged:  g.TokensCharged,
		Favorite:       g.Favorite,
		CreatedAt:      g.CreatedAt,
		CompletedAt:    g.CompletedAt,
	}
}

type submitResponse struct {
	Generation   generationResponse `json:"generation"`
	TokenBalance int                `json:"token_balance"`
}

type submitJSONRequest struct {
	JobID      string  `json:"job_id" validate:"required"`
	MediaType  string  `json:"media_type" validate:"required"`
	VideoStyle *string `json:"video_style"`
	Prompt     string  `json:"prompt" validate:"required,max=2000"`
	Notes      *string `json:"notes"`
}

// GenerationSubmit admits a new generation request. Video requests carry the
// source asset as a multipart file; image requests may use plain JSON.
func GenerationSubmit(svc gensvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "generations service unavailable"))
			return
		}

		accountID, err := accountIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, cleanup, err := parseSubmitRequest(r)
		if cleanup != nil {
			defer cleanup()
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input.AccountID = accountID

		out, err := svc.Submit(r.Context(), *input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, submitResponse{
			Generation:   newGenerationResponse(out.Generation),
			TokenBalance: out.TokenBalance,
		})
	}
}

func parseSubmitRequest(r *http.Request) (*gensvc.SubmitInput, func(), error) {
	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.HasPrefix(contentType, "multipart/") {
		return parseSubmitMultipart(r)
	}

	var payload submitJSONRequest
	if err := validators.DecodeJSONBody(r, &payload); err != nil {
		return nil, nil, err
	}
	input, err := buildSubmitInput(payload.JobID, payload.MediaType, payload.VideoStyle, payload.Prompt, payload.Notes, nil)
	return input, nil, err
}

func parseSubmitMultipart(r *http.Request) (*gensvc.SubmitInput, func(), error) {
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart form")
	}
	cleanup := func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}

	var style *string
	if raw := strings.TrimSpace(r.FormValue("video_style")); raw != "" {
		style = &raw
	}
	var notes *string
	if raw := strings.TrimSpace(r.FormValue("notes")); raw != "" {
		notes = &raw
	}

	var asset io.Reader
	file, _, err := r.FormFile("source_asset")
	switch {
	case err == nil:
		asset = file
	case err == http.ErrMissingFile:
		// optional for image requests
	default:
		return nil, cleanup, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid source asset")
	}

	input, err := buildSubmitInput(r.FormValue("job_id"), r.FormValue("media_type"), style, r.FormValue("prompt"), notes, asset)
	return input, cleanup, err
}

func buildSubmitInput(jobID, rawMediaType string, rawStyle *string, prompt string, notes *string, asset io.Reader) (*gensvc.SubmitInput, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "job_id required")
	}

	mediaType, err := enums.ParseMediaType(strings.TrimSpace(rawMediaType))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid media type")
	}

	var style *enums.VideoStyle
	if rawStyle != nil && strings.TrimSpace(*rawStyle) != "" {
		parsed, err := enums.ParseVideoStyle(strings.TrimSpace(*rawStyle))
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid video style")
		}
		style = &parsed
	}

	return &gensvc.SubmitInput{
		JobID:       jobID,
		MediaType:   mediaType,
		VideoStyle:  style,
		Prompt:      strings.TrimSpace(prompt),
		Notes:       notes,
		SourceAsset: asset,
	}, nil
}

type generationListResponse struct {
	Generations []generationResponse `json:"generations"`
	Cursor      string               `json:"cursor,omitempty"`
}

// GenerationList returns the caller's gallery page with optional filters.
func GenerationList(svc gensvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "generations service unavailable"))
			return
		}

		accountID, err := accountIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		mediaType, err := validators.ParseMediaTypeFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := validators.ParseStatusFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		favoriteOnly, err := validators.ParseQueryBool(r, "favorite")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.List(r.Context(), accountID, params, gensvc.ListFilters{
			MediaType:    mediaType,
			Status:       status,
			FavoriteOnly: favoriteOnly,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]generationResponse, len(list.Generations))
		for i := range list.Generations {
			items[i] = newGenerationResponse(&list.Generations[i])
		}

		responses.WriteSuccess(w, generationListResponse{Generations: items, Cursor: list.Cursor})
	}
}

func generationIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "generationID")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid generation id")
	}
	return id, nil
}

// GenerationGet returns a single generation owned by the caller.
func GenerationGet(svc gensvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "generations service unavailable"))
			return
		}

		accountID, err := accountIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		id, err := generationIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		generation, err := svc.Get(r.Context(), id, accountID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newGenerationResponse(generation))
	}
}

type favoriteRequest struct {
	Favorite *bool `json:"favorite" validate:"required"`
}

// GenerationFavorite flips the favorite flag on a generation.
func GenerationFavorite(svc gensvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "generations service unavailable"))
			return
		}

		accountID, err := accountIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		id, err := generationIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload favoriteRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.SetFavorite(r.Context(), id, accountID, *payload.Favorite); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{"id": id, "favorite": *payload.Favorite})
	}
}

// GenerationDelete soft-deletes a generation from the caller's gallery.
func GenerationDelete(svc gensvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "generations service unavailable"))
			return
		}

		accountID, err := accountIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		id, err := generationIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Delete(r.Context(), id, accountID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
	}
}
