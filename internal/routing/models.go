// Package routing provides driving route lookup between named locations.
package routing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/trafficroute/trafficroute/pkg/polyline"
)

// Sentinel errors for routing operations.
var (
	// ErrInvalidLocation indicates a missing origin or destination.
	ErrInvalidLocation = errors.New("origin and destination are required")
	// ErrNoRouteFound indicates no route could be produced for the request.
	// Every provider failure is also reported as ErrNoRouteFound.
	ErrNoRouteFound = errors.New("no route found between the given locations")
	// ErrProviderUnavailable indicates the routing provider is down or the circuit breaker is open.
	ErrProviderUnavailable = errors.New("routing provider unavailable")
	// ErrRateLimitExceeded indicates the API quota has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// Provider defines the interface for routing providers.
type Provider interface {
	// GetDirections retrieves route directions between two locations.
	GetDirections(ctx context.Context, req DirectionsRequest) (*DirectionsResponse, error)
	// Name returns the provider identifier for logging and metrics.
	Name() string
}

// TravelMode is the mode of transport requested from the provider.
type TravelMode string

// ModeDriving is the only mode used for traffic predictions.
const ModeDriving TravelMode = "DRIVING"

// DirectionsRequest is the request sent to a provider.
type DirectionsRequest struct {
	Origin      string
	Destination string
	TravelMode  TravelMode
}

// DirectionsResponse is a provider response. Providers may return several
// routes; only the first route's first leg is ever consumed.
type DirectionsResponse struct {
	Routes    []Route
	Provider  string
	FetchedAt time.Time
}

// Route represents a single route option.
type Route struct {
	GeometryPolyline string // Encoded polyline (precision 5)
	Summary          string
	Legs             []Leg
}

// Leg is one leg of a route.
type Leg struct {
	DurationSeconds float64
	DurationText    string
	DistanceMeters  int
	DistanceText    string
	StartAddress    string
	EndAddress      string
}

// Result is the base route consumed by the rest of the system.
type Result struct {
	PathGeometry        string    `json:"pathGeometry"`
	BaseDurationSeconds float64   `json:"baseDurationSeconds"`
	DurationText        string    `json:"durationText,omitempty"`
	DistanceText        string    `json:"distanceText"`
	DistanceMeters      int       `json:"distanceMeters"`
	Summary             string    `json:"summary,omitempty"`
	Provider            string    `json:"provider"`
	FetchedAt           time.Time `json:"fetchedAt"`
}

// Path decodes the route geometry into coordinates for map rendering.
func (r *Result) Path() []polyline.Coordinate {
	return polyline.Decode(r.PathGeometry)
}

// Error provides detailed error information from the routing provider.
type Error struct {
	Provider string // Provider that generated the error
	Code     string // Error code from the provider
	Message  string // Human-readable error message
	Err      error  // Underlying error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsValidation reports whether the error was caused by invalid input.
func (e *Error) IsValidation() bool {
	return errors.Is(e.Err, ErrInvalidLocation)
}

// providerFailure builds an error that reports both the route-not-found
// outcome and the concrete cause.
func providerFailure(provider, code, message string, cause error) *Error {
	return &Error{
		Provider: provider,
		Code:     code,
		Message:  message,
		Err:      fmt.Errorf("%w: %w", ErrNoRouteFound, cause),
	}
}
