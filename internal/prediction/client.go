package prediction

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
	// ServiceName identifies the prediction service in the registry and metrics.
	ServiceName = "prediction"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second

	// maxBodyBytes bounds how much of a response is read.
	maxBodyBytes = 1 << 20
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the prediction client.
type ClientConfig struct {
	// BaseURL is the prediction service base URL (required).
	BaseURL string

	// HTTPClient overrides the resilient client.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (default: 10s).
	Timeout time.Duration

	// Registry is the upstream registry for health tracking (optional).
	Registry *resilience.Registry

	// Metrics records call durations (optional).
	Metrics *telemetry.ProviderMetrics

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client calls POST {BaseURL}/predict.
type Client struct {
	endpoint   string
	httpClient HTTPDoer
	metrics    *telemetry.ProviderMetrics
	logger     zerolog.Logger
}

// NewClient creates a new prediction client.
func NewClient(cfg ClientConfig) *Client {
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

	return &Client{
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + "/predict",
		httpClient: httpClient,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
	}
}

// Predict asks the service for the traffic level of a trip departing at.
func (c *Client) Predict(ctx context.Context, origin, destination string, at time.Time) (Prediction, error) {
	start := time.Now()
	p, err := c.predict(ctx, origin, destination, at)
	c.metrics.RecordRequest(ServiceName, "predict", time.Since(start), err)

	if err != nil {
		c.logger.Error().Err(err).
			Str("origin", origin).
			Str("destination", destination).
			Msg("traffic prediction failed")
		return Prediction{}, err
	}

	c.logger.Debug().
		Str("traffic_level", p.ReportedLevel().String()).
		Bool("inexact", p.Inexact).
		Msg("received traffic prediction")
	return p, nil
}

func (c *Client) predict(ctx context.Context, origin, destination string, at time.Time) (Prediction, error) {
	body, err := json.Marshal(predictRequest{
		Origin:      origin,
		Destination: destination,
		Datetime:    FormatDatetime(at),
	})
	if err != nil {
		return Prediction{}, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Prediction{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Prediction{}, &ServiceError{Message: "prediction request failed", Err: fmt.Errorf("%w: %w", ErrUnavailable, err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Prediction{}, &ServiceError{Message: "reading prediction response", Err: fmt.Errorf("%w: %w", ErrUnavailable, err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Prediction{}, &ServiceError{
			StatusCode: resp.StatusCode,
			Message:    "prediction service rejected the request",
			Err:        ErrUnexpectedStatus,
		}
	}

	var pr predictResponse
	if err := json.Unmarshal(raw, &pr); err != nil {
		return Prediction{}, &ServiceError{Message: "decoding prediction response", Err: fmt.Errorf("%w: %w", ErrMalformedResponse, err)}
	}
	p, err := parseLevel(pr.TrafficLevel)
	if err != nil {
		return Prediction{}, &ServiceError{Message: "invalid traffic_level", Err: err}
	}

	p.Raw = json.RawMessage(raw)
	return p, nil
}
