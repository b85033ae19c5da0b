package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls exponential backoff for backend uploads.
type RetryConfig struct {
	MaxRetries      int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		BaseDelay:       200 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		BackoffMultiple: 2.0,
	}
}

func (c RetryConfig) delay(attempt int) time.Duration {
	d := time.Duration(float64(c.BaseDelay) * math.Pow(c.BackoffMultiple, float64(attempt)))
	if d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("telemetry backend returned %d: %s", e.StatusCode, e.Body)
}

// BackendWriter uploads profiles to the telemetry backend at
// POST {endpoint}/v1/organizations/{org}/datasets/{dataset}/profiles.
type BackendWriter struct {
	cfg    BackendConfig
	client *http.Client
	retry  RetryConfig
	log    *zap.Logger
}

func NewBackendWriter(cfg BackendConfig, log *zap.Logger) (*BackendWriter, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("%s is required for the backend writer", EnvEndpoint)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s is required for the backend writer", EnvAPIKey)
	}
	if cfg.OrgID == "" {
		return nil, fmt.Errorf("%s is required for the backend writer", EnvOrgID)
	}
	if _, err := url.Parse(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", EnvEndpoint, err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &BackendWriter{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		retry:  DefaultRetryConfig(),
		log:    log,
	}, nil
}

func (w *BackendWriter) Write(ctx context.Context, profile ProfileSummary) error {
	payload, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	dataset := w.cfg.DatasetID
	if dataset == "" {
		dataset = profile.Dataset
	}
	target := strings.TrimRight(w.cfg.Endpoint, "/") +
		"/v1/organizations/" + url.PathEscape(w.cfg.OrgID) +
		"/datasets/" + url.PathEscape(dataset) + "/profiles"

	var lastErr error
	for attempt := 0; attempt <= w.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := w.retry.delay(attempt - 1)
			w.log.Warn("retrying profile upload",
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = w.post(ctx, target, payload)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("upload profile after %d attempts: %w", w.retry.MaxRetries+1, lastErr)
}

func (w *BackendWriter) post(ctx context.Context, target string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", w.cfg.APIKey)

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

// retryable treats transport errors, 429 and 5xx as transient.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}
	return true
}
