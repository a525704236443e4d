// Package googlemaps provides a routing provider backed by the Google
// Directions web service.
package googlemaps

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/trafficroute/trafficroute/internal/provider/resilience"
	"github.com/trafficroute/trafficroute/internal/routing"
)

const (
	// ProviderName identifies this routing provider.
	ProviderName = "googlemaps"

	// DefaultBaseURL is the Google Maps web services base URL.
	DefaultBaseURL = "https://maps.googleapis.com"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second

	directionsPath = "/maps/api/directions/json"

	// maxBodyBytes bounds how much of a Directions response is read.
	maxBodyBytes = 8 << 20
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the Directions client.
type ClientConfig struct {
	// APIKey is the Google Maps API key (required).
	APIKey string

	// BaseURL overrides DefaultBaseURL.
	BaseURL string

	// Language is passed through so duration and distance text is localized.
	Language string

	// HTTPClient is the HTTP client to use.
	// If nil, a resilient client without retries is created.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (default: 10s).
	Timeout time.Duration

	// Registry is the upstream registry for health tracking (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is a Google Directions API client.
type Client struct {
	apiKey     string
	baseURL    string
	language   string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewClient creates a new Directions client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = timeout
		clientCfg.Registry = cfg.Registry
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		language:   cfg.Language,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// GetDirections requests driving directions between two free-text locations.
func (c *Client) GetDirections(ctx context.Context, req routing.DirectionsRequest) (*routing.DirectionsResponse, error) {
	mode := req.TravelMode
	if mode == "" {
		mode = routing.ModeDriving
	}

	query := url.Values{}
	query.Set("origin", req.Origin)
	query.Set("destination", req.Destination)
	query.Set("mode", strings.ToLower(string(mode)))
	query.Set("key", c.apiKey)
	if c.language != "" {
		query.Set("language", c.language)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+directionsPath+"?"+query.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("origin", req.Origin).
		Str("destination", req.Destination).
		Str("mode", string(mode)).
		Msg("requesting directions from Google")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "REQUEST_FAILED",
			Message:  "failed to reach routing provider",
			Err:      fmt.Errorf("%w: %w", routing.ErrProviderUnavailable, err),
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "READ_FAILED",
			Message:  "failed to read routing provider response",
			Err:      fmt.Errorf("%w: %w", routing.ErrProviderUnavailable, err),
		}
	}
	if len(body) > maxBodyBytes {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "RESPONSE_TOO_LARGE",
			Message:  fmt.Sprintf("routing provider response exceeds %d bytes", maxBodyBytes),
			Err:      routing.ErrProviderUnavailable,
		}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Message:  fmt.Sprintf("routing provider returned status %d", resp.StatusCode),
			Err:      routing.ErrProviderUnavailable,
		}
	}

	var dr directionsResponse
	if err := json.Unmarshal(body, &dr); err != nil {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "DECODE_FAILED",
			Message:  "routing provider returned malformed JSON",
			Err:      fmt.Errorf("%w: %w", routing.ErrProviderUnavailable, err),
		}
	}

	if dr.Status != statusOK {
		return nil, statusError(dr.Status, dr.ErrorMessage)
	}

	result := toDirectionsResponse(&dr)

	c.logger.Debug().
		Int("route_count", len(result.Routes)).
		Msg("received directions from Google")

	return result, nil
}

// statusError maps a non-OK Directions status to a domain error.
func statusError(status, message string) error {
	if message == "" {
		message = "routing provider returned status " + status
	}

	switch status {
	case statusNotFound, statusZeroResults:
		return &routing.Error{
			Provider: ProviderName,
			Code:     status,
			Message:  "no route found between the given locations",
			Err:      routing.ErrNoRouteFound,
		}
	case statusOverQueryLimit, statusOverDailyLimit:
		return &routing.Error{
			Provider: ProviderName,
			Code:     status,
			Message:  "API rate limit exceeded, please try again later",
			Err:      routing.ErrRateLimitExceeded,
		}
	case statusMaxWaypoints, statusMaxRouteLength:
		return &routing.Error{
			Provider: ProviderName,
			Code:     status,
			Message:  message,
			Err:      routing.ErrNoRouteFound,
		}
	default:
		// REQUEST_DENIED, INVALID_REQUEST, UNKNOWN_ERROR and anything newer.
		return &routing.Error{
			Provider: ProviderName,
			Code:     status,
			Message:  message,
			Err:      routing.ErrProviderUnavailable,
		}
	}
}

func toDirectionsResponse(dr *directionsResponse) *routing.DirectionsResponse {
	routes := make([]routing.Route, 0, len(dr.Routes))
	for i := range dr.Routes {
		r := &dr.Routes[i]
		legs := make([]routing.Leg, 0, len(r.Legs))
		for j := range r.Legs {
			l := &r.Legs[j]
			legs = append(legs, routing.Leg{
				DurationSeconds: l.Duration.Value,
				DurationText:    l.Duration.Text,
				DistanceMeters:  int(l.Distance.Value),
				DistanceText:    l.Distance.Text,
				StartAddress:    l.StartAddress,
				EndAddress:      l.EndAddress,
			})
		}
		routes = append(routes, routing.Route{
			GeometryPolyline: r.OverviewPolyline.Points,
			Summary:          r.Summary,
			Legs:             legs,
		})
	}

	return &routing.DirectionsResponse{
		Routes:    routes,
		Provider:  ProviderName,
		FetchedAt: time.Now(),
	}
}
