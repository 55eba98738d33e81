package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aistudio-app/backend/pkg/config"
)

const defaultDispatchTimeout = 10 * time.Second

var errWorkerURLRequired = errors.New("worker webhook url is required")

// httpDispatcher posts jobs directly to the worker's intake webhook.
type httpDispatcher struct {
	httpClient *http.Client
	workerURL  string
}

// NewHTTPDispatcher builds a webhook-based dispatcher from config.
func NewHTTPDispatcher(cfg config.DispatchConfig) (Dispatcher, error) {
	workerURL := strings.TrimSpace(cfg.WorkerWebhookURL)
	if workerURL == "" {
		return nil, errWorkerURLRequired
	}
	parsed, err := url.Parse(workerURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid worker webhook url %q", workerURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}

	return &httpDispatcher{
		httpClient: &http.Client{Timeout: timeout},
		workerURL:  workerURL,
	}, nil
}

func (d *httpDispatcher) Dispatch(ctx context.Context, job Job) error {
	if job.JobID == "" {
		return errors.New("job id is required")
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encoding job payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.workerURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting job to worker: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if len(b) > 0 {
			return fmt.Errorf("worker rejected job: %s: %s", resp.Status, strings.TrimSpace(string(b)))
		}
		return fmt.Errorf("worker rejected job: %s", resp.Status)
	}
	return nil
}
