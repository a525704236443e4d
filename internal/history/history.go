// Package history records completed searches with the user's history service.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/trafficroute/trafficroute/internal/prediction"
)

// Sentinel errors for history recording.
var (
	// ErrUnreachable indicates a transport failure or timeout.
	ErrUnreachable = errors.New("history service unreachable")
	// ErrUnauthorized indicates the service rejected the token (401/403).
	ErrUnauthorized = errors.New("history service rejected the credential")
	// ErrRejected indicates any other non-2xx response.
	ErrRejected = errors.New("history service rejected the entry")
)

// Entry is one completed search.
type Entry struct {
	Origin      string
	Destination string
	Datetime    time.Time
	Prediction  prediction.Prediction
}

// RecordError describes a failed recording.
type RecordError struct {
	StatusCode int
	Err        error
}

func (e *RecordError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("recording search history (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("recording search history: %v", e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

type recordRequest struct {
	Origin           string          `json:"origin"`
	Destination      string          `json:"destination"`
	Datetime         string          `json:"datetime"`
	PredictionResult json.RawMessage `json:"prediction_result"`
}

// newRecordRequest builds the wire body. The raw prediction response is
// sent as-is; a prediction without one is re-encoded from its level.
func newRecordRequest(e Entry) (recordRequest, error) {
	result := e.Prediction.Raw
	if len(result) == 0 {
		encoded, err := json.Marshal(map[string]json.Number{"traffic_level": e.Prediction.ReportedLevel()})
		if err != nil {
			return recordRequest{}, err
		}
		result = encoded
	}

	return recordRequest{
		Origin:           e.Origin,
		Destination:      e.Destination,
		Datetime:         prediction.FormatDatetime(e.Datetime),
		PredictionResult: result,
	}, nil
}
