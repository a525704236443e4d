package models_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trafficroute/trafficroute/internal/api/models"
	"github.com/trafficroute/trafficroute/internal/routing"
	"github.com/trafficroute/trafficroute/internal/severity"
	"github.com/trafficroute/trafficroute/internal/trip"
)

func TestPredictRequest_Query(t *testing.T) {
	at := time.Date(2026, 3, 9, 8, 30, 0, 0, time.UTC)

	q := models.PredictRequest{Origin: "  Istanbul ", Destination: "Ankara", Datetime: &at}.Query()
	assert.Equal(t, "Istanbul", q.Origin)
	assert.Equal(t, "Ankara", q.Destination)
	assert.True(t, at.Equal(q.Datetime))

	before := time.Now()
	q = models.PredictRequest{Origin: "Istanbul", Destination: "Ankara"}.Query()
	assert.False(t, q.Datetime.Before(before), "missing datetime defaults to now")
}

func TestNewTripResult_Ready(t *testing.T) {
	snap := trip.Snapshot{
		Generation: 3,
		State:      trip.StateReady,
		Query: &trip.Query{
			Origin:      "Istanbul",
			Destination: "Ankara",
			Datetime:    time.Date(2026, 3, 9, 5, 30, 0, 0, time.UTC),
		},
		Route: &routing.Result{
			PathGeometry:        "_p~iF~ps|U_ulLnnqC_mqNvxq`@",
			BaseDurationSeconds: 1000,
			DistanceText:        "12 km",
			DistanceMeters:      12000,
		},
		Outcome: &trip.Outcome{
			Level:                   1,
			Severity:                severity.Classify(1),
			AdjustedDurationSeconds: 1300,
			FormattedDuration:       "22 minutes",
			DistanceText:            "12 km",
		},
	}

	res := models.NewTripResult(snap, true)
	assert.Equal(t, uint64(3), res.Generation)
	assert.Equal(t, "ready", res.State)
	require.NotNil(t, res.Route)
	assert.Len(t, res.Route.Path, 3)
	require.NotNil(t, res.Route.Bounds)
	assert.InDelta(t, 43.252, res.Route.Bounds.North, 1e-5)
	require.NotNil(t, res.Outcome)
	assert.Equal(t, severity.ColorYellow, res.Outcome.Severity.Color)
	assert.True(t, res.Outcome.Severity.Known)

	data, err := json.Marshal(res)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, "2026-03-09T05:30:00Z", body["query"].(map[string]any)["datetime"])
	assert.NotContains(t, body, "errorStage")
}

func TestNewTripResult_PredictionFailureKeepsRoute(t *testing.T) {
	snap := trip.Snapshot{
		Generation: 1,
		State:      trip.StateError,
		Route:      &routing.Result{PathGeometry: "_p~iF~ps|U", DistanceText: "1 km"},
		ErrorStage: trip.StagePrediction,
		Message:    trip.MessagePredictionUnavailable,
	}

	res := models.NewTripResult(snap, false)
	assert.Equal(t, "error", res.State)
	assert.Equal(t, "prediction", res.ErrorStage)
	require.NotNil(t, res.Route)
	assert.Empty(t, res.Route.Path)
	assert.Nil(t, res.Route.Bounds)
	assert.Nil(t, res.Outcome)
}

func TestTimestamp_RoundTrip(t *testing.T) {
	in := models.Timestamp(time.Date(2026, 10, 15, 12, 0, 0, 0, time.FixedZone("TRT", 3*3600)))
	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `"2026-10-15T09:00:00Z"`, string(data))

	var out models.Timestamp
	require.NoError(t, json.Unmarshal(data, &out))
	assert.True(t, in.Time().Equal(out.Time()))
}
