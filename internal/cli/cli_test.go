package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trafficroute/trafficroute/internal/eta"
	"github.com/trafficroute/trafficroute/internal/prediction"
	"github.com/trafficroute/trafficroute/internal/routing"
	"github.com/trafficroute/trafficroute/internal/trip"
)

type stubRoutes struct{}

func (stubRoutes) FetchRoute(_ context.Context, origin, _ string) (*routing.Result, error) {
	if origin == "Atlantis" {
		return nil, routing.ErrNoRouteFound
	}
	return &routing.Result{
		PathGeometry:        "_p~iF~ps|U",
		BaseDurationSeconds: 3600,
		DurationText:        "1 hour",
		DistanceText:        "80 km",
		DistanceMeters:      80000,
		Summary:             "O-4",
	}, nil
}

type stubPredictor struct {
	level    int
	reported string
	lastAt   time.Time
	failing  bool
}

func (p *stubPredictor) Predict(_ context.Context, _, _ string, at time.Time) (prediction.Prediction, error) {
	p.lastAt = at
	if p.failing {
		return prediction.Prediction{}, &prediction.ServiceError{StatusCode: 503, Message: "down", Err: prediction.ErrUnexpectedStatus}
	}
	if p.reported != "" {
		return prediction.Prediction{Inexact: true, Reported: json.Number(p.reported)}, nil
	}
	return prediction.Prediction{Level: p.level}, nil
}

func builder(p *stubPredictor, locales *[]string) Builder {
	return func(locale string) (*trip.Orchestrator, error) {
		if locales != nil {
			*locales = append(*locales, locale)
		}
		f := eta.NewFormatter(locale)
		return trip.New(trip.Config{
			Routes:    stubRoutes{},
			Predictor: p,
			Formatter: &f,
			Logger:    zerolog.Nop(),
		}), nil
	}
}

func execute(t *testing.T, build Builder, args ...string) (string, error) {
	t.Helper()
	out, _, err := executeSplit(t, build, args...)
	return out, err
}

func executeSplit(t *testing.T, build Builder, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCommand("1.2.3", build)
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, builder(&stubPredictor{}, nil), "version")
	require.NoError(t, err)
	assert.Equal(t, "trafficroute version 1.2.3\n", out)
}

func TestPredict_Text(t *testing.T) {
	p := &stubPredictor{level: 2}
	out, err := execute(t, builder(p, nil), "predict", "--from", "Kadıköy", "--to", "Beşiktaş")
	require.NoError(t, err)

	assert.Contains(t, out, "Trip:      Kadıköy -> Beşiktaş")
	assert.Contains(t, out, "Distance:  80 km")
	assert.Contains(t, out, "Traffic:   Heavy (red)")
	assert.Contains(t, out, "ETA:       1 hours 42 minutes")
	assert.False(t, p.lastAt.IsZero())
}

func TestPredict_UnknownLevel(t *testing.T) {
	out, err := execute(t, builder(&stubPredictor{level: 9}, nil), "predict", "--from", "A", "--to", "B")
	require.NoError(t, err)
	assert.Contains(t, out, "Traffic:   unknown level 9 (gray)")
	assert.Contains(t, out, "ETA:       1 hours 0 minutes")
}

func TestPredict_FractionalLevel(t *testing.T) {
	p := &stubPredictor{reported: "1.5"}
	out, err := execute(t, builder(p, nil), "predict", "--from", "A", "--to", "B")
	require.NoError(t, err)
	assert.Contains(t, out, "Traffic:   unknown level 1.5 (gray)")
	assert.Contains(t, out, "ETA:       1 hours 0 minutes")
}

func TestPredict_ProgressOnStderr(t *testing.T) {
	out, errOut, err := executeSplit(t, builder(&stubPredictor{level: 0}, nil), "predict", "--from", "A", "--to", "B")
	require.NoError(t, err)
	assert.Equal(t, "Looking up route...\nPredicting traffic...\n", errOut)
	assert.NotContains(t, out, "Looking up route")
	assert.Contains(t, out, "Traffic:   Light (green)")
}

func TestPredict_ProgressStopsAtFailedStage(t *testing.T) {
	_, errOut, err := executeSplit(t, builder(&stubPredictor{}, nil), "predict", "--from", "Atlantis", "--to", "B")
	require.Error(t, err)
	assert.Contains(t, errOut, "Looking up route...")
	assert.NotContains(t, errOut, "Predicting traffic...")
}

func TestPredict_NoProgress(t *testing.T) {
	for _, flag := range []string{"--quiet", "--json"} {
		t.Run(flag, func(t *testing.T) {
			_, errOut, err := executeSplit(t, builder(&stubPredictor{}, nil), "predict", "--from", "A", "--to", "B", flag)
			require.NoError(t, err)
			assert.Empty(t, errOut)
		})
	}
}

func TestPredict_JSONWithTimeAndLocale(t *testing.T) {
	p := &stubPredictor{level: 1}
	var locales []string
	out, err := execute(t, builder(p, &locales),
		"predict", "--from", "A", "--to", "B", "--at", "2026-03-09T08:30:00+03:00", "--locale", "tr", "--json")
	require.NoError(t, err)

	assert.Equal(t, []string{"tr"}, locales)
	assert.True(t, p.lastAt.Equal(time.Date(2026, 3, 9, 5, 30, 0, 0, time.UTC)))

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.Equal(t, "ready", body["state"])
	outcome, ok := body["outcome"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1 saat 18 dakika", outcome["formattedDuration"])
	route, ok := body["route"].(map[string]any)
	require.True(t, ok)
	assert.NotContains(t, route, "path")
}

func TestPredict_NoRoute(t *testing.T) {
	out, err := execute(t, builder(&stubPredictor{}, nil), "predict", "--from", "Atlantis", "--to", "B")
	require.Error(t, err)
	assert.Equal(t, trip.MessageNoRoute, err.Error())
	assert.NotContains(t, out, "Distance:")
}

func TestPredict_PredictionFailureKeepsRoute(t *testing.T) {
	out, err := execute(t, builder(&stubPredictor{failing: true}, nil), "predict", "--from", "A", "--to", "B")
	require.Error(t, err)
	assert.Equal(t, trip.MessagePredictionUnavailable, err.Error())
	assert.Contains(t, out, "Distance:  80 km")
	assert.NotContains(t, out, "ETA:")
}

func TestPredict_BlankLocation(t *testing.T) {
	_, err := execute(t, builder(&stubPredictor{}, nil), "predict", "--from", "  ", "--to", "B")
	require.Error(t, err)
	assert.Equal(t, trip.MessageInvalidQuery, err.Error())
}

func TestPredict_FlagErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "missing destination",
			args:    []string{"predict", "--from", "A"},
			wantErr: `required flag(s) "to" not set`,
		},
		{
			name:    "bad time",
			args:    []string{"predict", "--from", "A", "--to", "B", "--at", "tomorrow"},
			wantErr: "invalid --at",
		},
		{
			name:    "positional args",
			args:    []string{"predict", "--from", "A", "--to", "B", "extra"},
			wantErr: "unknown command",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, builder(&stubPredictor{}, nil), tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPredict_BuilderError(t *testing.T) {
	failing := func(string) (*trip.Orchestrator, error) { return nil, errors.New("GOOGLE_MAPS_API_KEY missing") }
	_, err := execute(t, failing, "predict", "--from", "A", "--to", "B")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GOOGLE_MAPS_API_KEY")
}
