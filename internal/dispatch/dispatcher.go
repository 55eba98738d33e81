// Package dispatch hands admitted generation jobs to the external worker.
// Dispatch is fire and forget: a failed handoff is logged by callers and the
// reaper eventually times the job out, so nothing here touches the ledger.
package dispatch

import (
	"context"

	"github.com/aistudio-app/backend/pkg/enums"
	"github.com/google/uuid"
)

// Job is the payload the worker receives for one admitted generation.
type Job struct {
	JobID          string            `json:"job_id"`
	AccountID      uuid.UUID         `json:"account_id"`
	MediaType      enums.MediaType   `json:"media_type"`
	VideoStyle     *enums.VideoStyle `json:"video_style,omitempty"`
	Prompt         string            `json:"prompt"`
	Notes          *string           `json:"notes,omitempty"`
	SourceAssetURL string            `json:"source_asset_url,omitempty"`
}

// Dispatcher hands a job to the worker transport.
type Dispatcher interface {
	Dispatch(ctx context.Context, job Job) error
}
