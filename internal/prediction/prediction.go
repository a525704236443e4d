// Package prediction is a client for the traffic prediction service.
package prediction

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Sentinel errors describing why a prediction could not be obtained.
var (
	// ErrUnavailable indicates the service could not be reached or timed out.
	ErrUnavailable = errors.New("prediction service unavailable")
	// ErrUnexpectedStatus indicates a non-2xx response.
	ErrUnexpectedStatus = errors.New("prediction service returned an unexpected status")
	// ErrMalformedResponse indicates a body that is not JSON or lacks a numeric
	// traffic_level.
	ErrMalformedResponse = errors.New("prediction service returned a malformed response")
)

// DatetimeLayout is ISO-8601 in UTC with millisecond precision.
const DatetimeLayout = "2006-01-02T15:04:05.000Z"

// FormatDatetime renders t the way the prediction and history services expect.
func FormatDatetime(t time.Time) string {
	return t.UTC().Format(DatetimeLayout)
}

// Prediction is the predicted congestion level for a trip.
// Levels outside 0..2 are valid and classify as unknown.
type Prediction struct {
	Level int `json:"trafficLevel"`

	// Inexact is set when the service reported a number that is not a whole
	// level, such as 1.5 or 1e300. Level is then zero and the prediction
	// classifies as unknown.
	Inexact bool `json:"-"`

	// Reported is the traffic_level literal as sent by the service.
	Reported json.Number `json:"-"`

	// Raw is the full response body, forwarded verbatim to the history service.
	Raw json.RawMessage `json:"-"`
}

// ReportedLevel is the level as the service sent it.
func (p Prediction) ReportedLevel() json.Number {
	if p.Reported != "" {
		return p.Reported
	}
	return json.Number(strconv.Itoa(p.Level))
}

// maxExactLevel bounds levels that convert to int without loss.
const maxExactLevel = 1 << 53

// parseLevel reads a traffic_level literal. Whole numbers become levels,
// whatever their notation (1, 1.0, 1e0). Other numbers are inexact.
// Anything that is not a JSON number is malformed.
func parseLevel(raw json.RawMessage) (Prediction, error) {
	lit := strings.TrimSpace(string(raw))
	if lit == "" || lit == "null" {
		return Prediction{}, fmt.Errorf("%w: traffic_level is missing", ErrMalformedResponse)
	}
	if c := lit[0]; c != '-' && (c < '0' || c > '9') {
		return Prediction{}, fmt.Errorf("%w: traffic_level %s is not a number", ErrMalformedResponse, lit)
	}

	p := Prediction{Reported: json.Number(lit)}
	v, err := strconv.ParseFloat(lit, 64)
	switch {
	case errors.Is(err, strconv.ErrRange):
		p.Inexact = true
	case err != nil:
		return Prediction{}, fmt.Errorf("%w: traffic_level %s: %w", ErrMalformedResponse, lit, err)
	case v != math.Trunc(v) || math.Abs(v) > maxExactLevel:
		p.Inexact = true
	default:
		p.Level = int(v)
	}
	return p, nil
}

// ServiceError describes a failed prediction call.
type ServiceError struct {
	// StatusCode is set for ErrUnexpectedStatus.
	StatusCode int
	Message    string
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %v", e.Message, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

type predictRequest struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Datetime    string `json:"datetime"`
}

type predictResponse struct {
	TrafficLevel json.RawMessage `json:"traffic_level"`
}
