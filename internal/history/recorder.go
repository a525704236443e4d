package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/trafficroute/trafficroute/internal/provider/resilience"
	"github.com/trafficroute/trafficroute/internal/telemetry"
)

const (
	// ServiceName identifies the history service in the registry and metrics.
	ServiceName = "history"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 5 * time.Second
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RecorderConfig holds configuration for the Recorder.
type RecorderConfig struct {
	// BaseURL is the history service base URL (required).
	BaseURL string

	// HTTPClient overrides the resilient client.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (default: 5s).
	Timeout time.Duration

	// Registry is the upstream registry for health tracking (optional).
	Registry *resilience.Registry

	// Metrics records call durations (optional).
	Metrics *telemetry.ProviderMetrics

	// Logger for recorder operations.
	Logger zerolog.Logger
}

// Recorder posts entries to {BaseURL}/search-history. It never retries.
type Recorder struct {
	endpoint   string
	httpClient HTTPDoer
	metrics    *telemetry.ProviderMetrics
	logger     zerolog.Logger
}

// NewRecorder creates a new Recorder.
func NewRecorder(cfg RecorderConfig) *Recorder {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ServiceName)
		clientCfg.Timeout = timeout
		clientCfg.Registry = cfg.Registry
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Recorder{
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + "/search-history",
		httpClient: httpClient,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
	}
}

// Record sends entry on behalf of the token holder.
// An empty token skips the call and returns nil.
// Failures are logged and returned as *RecordError.
func (r *Recorder) Record(ctx context.Context, entry Entry, token string) error {
	if token == "" {
		r.logger.Debug().Msg("no credential, skipping search history")
		return nil
	}

	start := time.Now()
	err := r.send(ctx, entry, token)
	r.metrics.RecordRequest(ServiceName, "record", time.Since(start), err)

	if err != nil {
		r.logger.Warn().Err(err).
			Str("origin", entry.Origin).
			Str("destination", entry.Destination).
			Msg("failed to record search history")
		return err
	}

	r.logger.Debug().
		Str("origin", entry.Origin).
		Str("destination", entry.Destination).
		Msg("search history recorded")
	return nil
}

func (r *Recorder) send(ctx context.Context, entry Entry, token string) error {
	payload, err := newRecordRequest(entry)
	if err != nil {
		return &RecordError{Err: fmt.Errorf("encoding prediction result: %w", err)}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return &RecordError{Err: fmt.Errorf("marshaling request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return &RecordError{Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return &RecordError{Err: fmt.Errorf("%w: %w", ErrUnreachable, err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // body is ignored

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &RecordError{StatusCode: resp.StatusCode, Err: ErrUnauthorized}
	default:
		return &RecordError{StatusCode: resp.StatusCode, Err: ErrRejected}
	}
}
