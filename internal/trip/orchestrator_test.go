package trip_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/trafficroute/trafficroute/internal/credentials"
	"github.com/trafficroute/trafficroute/internal/eta"
	"github.com/trafficroute/trafficroute/internal/history"
	"github.com/trafficroute/trafficroute/internal/prediction"
	"github.com/trafficroute/trafficroute/internal/routing"
	"github.com/trafficroute/trafficroute/internal/severity"
	"github.com/trafficroute/trafficroute/internal/trip"
)

type fakeRoutes struct {
	mu     sync.Mutex
	result *routing.Result
	err    error
	calls  atomic.Int32
	// gate, when set, blocks lookups for the named origin until closed.
	gate       chan struct{}
	gateOrigin string
	entered    chan struct{}
}

func (f *fakeRoutes) FetchRoute(_ context.Context, origin, _ string) (*routing.Result, error) {
	f.calls.Add(1)
	if f.gate != nil && origin == f.gateOrigin {
		if f.entered != nil {
			close(f.entered)
		}
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	r := *f.result
	r.Summary = origin
	return &r, nil
}

type fakePredictor struct {
	level int
	err   error
	calls atomic.Int32
}

func (f *fakePredictor) Predict(_ context.Context, _, _ string, _ time.Time) (prediction.Prediction, error) {
	f.calls.Add(1)
	if f.err != nil {
		return prediction.Prediction{}, f.err
	}
	return prediction.Prediction{Level: f.level}, nil
}

type fakeHistory struct {
	mu      sync.Mutex
	entries []history.Entry
	tokens  []string
	err     error
	release chan struct{}
}

func (f *fakeHistory) Record(ctx context.Context, entry history.Entry, token string) error {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	f.tokens = append(f.tokens, token)
	return f.err
}

func (f *fakeHistory) recorded() ([]history.Entry, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]history.Entry(nil), f.entries...), append([]string(nil), f.tokens...)
}

var departure = time.Date(2026, 3, 9, 8, 30, 0, 0, time.UTC)

func baseRoute() *routing.Result {
	return &routing.Result{
		PathGeometry:        "_p~iF~ps|U_ulLnnqC",
		BaseDurationSeconds: 1000,
		DistanceText:        "12.3 km",
		DistanceMeters:      12300,
	}
}

type fixture struct {
	routes    *fakeRoutes
	predictor *fakePredictor
	history   *fakeHistory
	orch      *trip.Orchestrator
}

func newFixture(creds credentials.Provider) *fixture {
	f := &fixture{
		routes:    &fakeRoutes{result: baseRoute()},
		predictor: &fakePredictor{level: 1},
		history:   &fakeHistory{},
	}
	f.orch = trip.New(trip.Config{
		Routes:      f.routes,
		Predictor:   f.predictor,
		History:     f.history,
		Credentials: creds,
		Logger:      zerolog.Nop(),
	})
	return f
}

func waitRecordings(t *testing.T, o *trip.Orchestrator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, o.Wait(ctx))
}

func TestSubmit_ModerateTrafficWithToken(t *testing.T) {
	f := newFixture(credentials.Static("tok-1"))

	snap, err := f.orch.Submit(context.Background(), trip.NewQuery("Kadıköy", "Beşiktaş", departure))
	require.NoError(t, err)

	assert.Equal(t, trip.StateReady, snap.State)
	require.NotNil(t, snap.Outcome)
	assert.InDelta(t, 1300.0, snap.Outcome.AdjustedDurationSeconds, 1e-9)
	assert.Equal(t, "22 minutes", snap.Outcome.FormattedDuration)
	assert.Equal(t, "12.3 km", snap.Outcome.DistanceText)
	assert.Equal(t, severity.ColorYellow, snap.Outcome.Severity.Color)
	assert.Equal(t, severity.LabelModerate, snap.Outcome.Severity.Label)
	assert.Equal(t, "_p~iF~ps|U_ulLnnqC", snap.Route.PathGeometry)
	assert.Empty(t, snap.Message)

	waitRecordings(t, f.orch)
	entries, tokens := f.history.recorded()
	require.Len(t, entries, 1)
	assert.Equal(t, "Kadıköy", entries[0].Origin)
	assert.Equal(t, "Beşiktaş", entries[0].Destination)
	assert.Equal(t, departure, entries[0].Datetime)
	assert.Equal(t, 1, entries[0].Prediction.Level)
	assert.Equal(t, []string{"tok-1"}, tokens)
}

func TestSubmit_UnknownLevelFallsBackToGray(t *testing.T) {
	f := newFixture(credentials.None)
	f.predictor.level = 5

	snap, err := f.orch.Submit(context.Background(), trip.NewQuery("A", "B", departure))
	require.NoError(t, err)

	assert.Equal(t, trip.StateReady, snap.State)
	assert.Equal(t, severity.Fallback, snap.Outcome.Severity)
	assert.InDelta(t, 1000.0, snap.Outcome.AdjustedDurationSeconds, 1e-9)

	waitRecordings(t, f.orch)
	entries, _ := f.history.recorded()
	assert.Empty(t, entries, "no token, no history")
}

func TestSubmit_FractionalLevelFromServiceIsUnknown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"traffic_level": 1.5}`))
	}))
	t.Cleanup(server.Close)

	orch := trip.New(trip.Config{
		Routes:      &fakeRoutes{result: baseRoute()},
		Predictor:   prediction.NewClient(prediction.ClientConfig{BaseURL: server.URL + "/", Logger: zerolog.Nop()}),
		History:     &fakeHistory{},
		Credentials: credentials.None,
		Logger:      zerolog.Nop(),
	})

	snap, err := orch.Submit(context.Background(), trip.NewQuery("A", "B", departure))
	require.NoError(t, err)

	assert.Equal(t, trip.StateReady, snap.State)
	require.NotNil(t, snap.Outcome)
	assert.Equal(t, severity.ColorGray, snap.Outcome.Severity.Color)
	assert.InDelta(t, 1.0, snap.Outcome.Severity.Multiplier, 1e-9)
	assert.InDelta(t, 1000.0, snap.Outcome.AdjustedDurationSeconds, 1e-9)
	assert.Equal(t, "1.5", snap.Outcome.ReportedLevel.String())
}

func TestSubmit_RouteNotFound(t *testing.T) {
	f := newFixture(credentials.Static("tok"))
	f.routes.err = routing.ErrNoRouteFound

	snap, err := f.orch.Submit(context.Background(), trip.NewQuery("A", "Atlantis", departure))

	var stageErr *trip.StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, trip.StageRouteLookup, stageErr.Stage)
	assert.ErrorIs(t, err, routing.ErrNoRouteFound)

	assert.Equal(t, trip.StateError, snap.State)
	assert.Equal(t, trip.StageRouteLookup, snap.ErrorStage)
	assert.Equal(t, trip.MessageNoRoute, snap.Message)
	assert.Nil(t, snap.Route)
	assert.Nil(t, snap.Outcome)
	assert.Equal(t, int32(0), f.predictor.calls.Load())

	waitRecordings(t, f.orch)
	entries, _ := f.history.recorded()
	assert.Empty(t, entries)
}

func TestSubmit_PredictionFailureKeepsRoute(t *testing.T) {
	f := newFixture(credentials.Static("tok"))
	f.predictor.err = &prediction.ServiceError{Message: "boom", Err: prediction.ErrUnavailable}

	snap, err := f.orch.Submit(context.Background(), trip.NewQuery("A", "B", departure))

	assert.ErrorIs(t, err, prediction.ErrUnavailable)
	assert.Equal(t, trip.StateError, snap.State)
	assert.Equal(t, trip.StagePrediction, snap.ErrorStage)
	assert.Equal(t, trip.MessagePredictionUnavailable, snap.Message)
	require.NotNil(t, snap.Route, "route stays visible without annotation")
	assert.Equal(t, 1000.0, snap.Route.BaseDurationSeconds)
	assert.Nil(t, snap.Outcome)

	waitRecordings(t, f.orch)
	entries, _ := f.history.recorded()
	assert.Empty(t, entries)
}

func TestSubmit_ValidationMakesNoCalls(t *testing.T) {
	tests := []struct {
		name        string
		origin      string
		destination string
	}{
		{name: "empty origin", origin: "", destination: "B"},
		{name: "empty destination", origin: "A", destination: ""},
		{name: "whitespace only", origin: "  ", destination: "\t"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(credentials.Static("tok"))

			snap, err := f.orch.Submit(context.Background(), trip.NewQuery(tt.origin, tt.destination, departure))

			var stageErr *trip.StageError
			require.True(t, errors.As(err, &stageErr))
			assert.Equal(t, trip.StageValidation, stageErr.Stage)
			assert.ErrorIs(t, err, routing.ErrInvalidLocation)
			assert.Equal(t, trip.StateError, snap.State)
			assert.Equal(t, trip.MessageInvalidQuery, snap.Message)
			assert.Equal(t, int32(0), f.routes.calls.Load())
			assert.Equal(t, int32(0), f.predictor.calls.Load())
		})
	}
}

func TestSubmit_ZeroDatetimeDefaultsToNow(t *testing.T) {
	f := newFixture(credentials.None)

	before := time.Now()
	snap, err := f.orch.Submit(context.Background(), trip.Query{Origin: " A ", Destination: "B"})
	require.NoError(t, err)

	require.NotNil(t, snap.Query)
	assert.Equal(t, "A", snap.Query.Origin)
	assert.False(t, snap.Query.Datetime.Before(before))
}

func TestSubmit_SupersededQueryIsDiscarded(t *testing.T) {
	f := newFixture(credentials.Static("tok"))
	f.routes.gate = make(chan struct{})
	f.routes.gateOrigin = "slow"
	f.routes.entered = make(chan struct{})

	type result struct {
		snap trip.Snapshot
		err  error
	}
	first := make(chan result, 1)
	go func() {
		snap, err := f.orch.Submit(context.Background(), trip.NewQuery("slow", "B", departure))
		first <- result{snap, err}
	}()
	<-f.routes.entered

	second, err := f.orch.Submit(context.Background(), trip.NewQuery("fast", "B", departure))
	require.NoError(t, err)
	assert.Equal(t, trip.StateReady, second.State)

	close(f.routes.gate)
	got := <-first
	assert.ErrorIs(t, got.err, trip.ErrSuperseded)

	current := f.orch.Snapshot()
	assert.Equal(t, second.Generation, current.Generation)
	assert.Equal(t, "fast", current.Route.Summary)
	assert.Equal(t, int32(1), f.predictor.calls.Load(), "superseded query never reaches prediction")

	waitRecordings(t, f.orch)
	entries, _ := f.history.recorded()
	require.Len(t, entries, 1)
	assert.Equal(t, "fast", entries[0].Origin)
}

func TestSubmit_NewQueryResetsPreviousResult(t *testing.T) {
	f := newFixture(credentials.None)

	ready, err := f.orch.Submit(context.Background(), trip.NewQuery("A", "B", departure))
	require.NoError(t, err)
	require.NotNil(t, ready.Outcome)

	f.routes.err = routing.ErrNoRouteFound
	failed, err := f.orch.Submit(context.Background(), trip.NewQuery("A", "C", departure))
	require.Error(t, err)

	assert.Greater(t, failed.Generation, ready.Generation)
	assert.Nil(t, failed.Outcome, "no stale outcome from the previous query")
	assert.Nil(t, failed.Route)
}

func TestSubmit_HistoryFailureDoesNotAffectState(t *testing.T) {
	f := newFixture(credentials.Static("tok"))
	f.history.err = &history.RecordError{StatusCode: 401, Err: history.ErrUnauthorized}

	snap, err := f.orch.Submit(context.Background(), trip.NewQuery("A", "B", departure))
	require.NoError(t, err)

	waitRecordings(t, f.orch)
	assert.Equal(t, trip.StateReady, snap.State)
	assert.Equal(t, trip.StateReady, f.orch.Snapshot().State)
}

func TestSubmit_HistoryDoesNotBlockAndOutlivesCaller(t *testing.T) {
	f := newFixture(credentials.Static("tok"))
	f.history.release = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	snap, err := f.orch.Submit(ctx, trip.NewQuery("A", "B", departure))
	require.NoError(t, err)
	assert.Equal(t, trip.StateReady, snap.State)
	cancel()

	short, cancelShort := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelShort()
	assert.ErrorIs(t, f.orch.Wait(short), context.DeadlineExceeded)

	close(f.history.release)
	waitRecordings(t, f.orch)
	entries, _ := f.history.recorded()
	assert.Len(t, entries, 1, "recording survives cancellation of the submitting context")
}

func TestSubmit_CredentialFromContext(t *testing.T) {
	f := newFixture(credentials.FromContext)

	ctx := credentials.WithToken(context.Background(), "request-token")
	_, err := f.orch.Submit(ctx, trip.NewQuery("A", "B", departure))
	require.NoError(t, err)

	waitRecordings(t, f.orch)
	_, tokens := f.history.recorded()
	assert.Equal(t, []string{"request-token"}, tokens)
}

func TestSubscribe_ReceivesEveryTransition(t *testing.T) {
	f := newFixture(credentials.None)

	var states []trip.State
	unsubscribe := f.orch.Subscribe(func(s trip.Snapshot) {
		states = append(states, s.State)
	})

	_, err := f.orch.Submit(context.Background(), trip.NewQuery("A", "B", departure))
	require.NoError(t, err)

	assert.Equal(t, []trip.State{
		trip.StateIdle,
		trip.StateLookingUpRoute,
		trip.StatePredictingTraffic,
		trip.StateReady,
	}, states)

	unsubscribe()
	_, _ = f.orch.Submit(context.Background(), trip.NewQuery("A", "B", departure))
	assert.Len(t, states, 4)
}

func TestSnapshot_IsACopy(t *testing.T) {
	f := newFixture(credentials.None)
	_, err := f.orch.Submit(context.Background(), trip.NewQuery("A", "B", departure))
	require.NoError(t, err)

	snap := f.orch.Snapshot()
	snap.Route.DistanceText = "mutated"
	snap.Outcome.FormattedDuration = "mutated"

	again := f.orch.Snapshot()
	assert.Equal(t, "12.3 km", again.Route.DistanceText)
	assert.Equal(t, "22 minutes", again.Outcome.FormattedDuration)
}

func TestNew_IdleInitially(t *testing.T) {
	f := newFixture(credentials.None)
	snap := f.orch.Snapshot()
	assert.Equal(t, trip.StateIdle, snap.State)
	assert.Zero(t, snap.Generation)
}

func TestSubmit_LocalizedFormatter(t *testing.T) {
	formatter := eta.NewFormatter("tr")
	o := trip.New(trip.Config{
		Routes:    &fakeRoutes{result: &routing.Result{BaseDurationSeconds: 3000, DistanceText: "40 km"}},
		Predictor: &fakePredictor{level: 2},
		Formatter: &formatter,
		Logger:    zerolog.Nop(),
	})

	snap, err := o.Submit(context.Background(), trip.NewQuery("A", "B", departure))
	require.NoError(t, err)
	assert.Equal(t, "1 saat 25 dakika", snap.Outcome.FormattedDuration)
}

func TestSubmit_Spans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	o := trip.New(trip.Config{
		Routes:         &fakeRoutes{result: baseRoute()},
		Predictor:      &fakePredictor{err: prediction.ErrUnavailable},
		TracerProvider: tp,
		Logger:         zerolog.Nop(),
	})

	_, err := o.Submit(context.Background(), trip.NewQuery("A", "B", departure))
	require.Error(t, err)

	var names []string
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}
	assert.ElementsMatch(t, []string{"trip.LookupRoute", "trip.PredictTraffic", "trip.Submit"}, names)
}

func TestStart_ReturnsGenerationAndRunsInBackground(t *testing.T) {
	f := newFixture(credentials.Static("tok"))
	f.routes.gate = make(chan struct{})
	f.routes.gateOrigin = "A"
	f.routes.entered = make(chan struct{})

	gen := f.orch.Start(context.Background(), trip.NewQuery("A", "B", departure))
	assert.Equal(t, uint64(1), gen)

	<-f.routes.entered
	snap := f.orch.Snapshot()
	assert.Equal(t, gen, snap.Generation)
	assert.Equal(t, trip.StateLookingUpRoute, snap.State)

	close(f.routes.gate)
	waitRecordings(t, f.orch)

	snap = f.orch.Snapshot()
	assert.Equal(t, trip.StateReady, snap.State)
	entries, _ := f.history.recorded()
	assert.Len(t, entries, 1, "Wait covers the pipeline and its recording")
}

func TestStart_LastSubmissionWins(t *testing.T) {
	f := newFixture(credentials.None)
	f.routes.gate = make(chan struct{})
	f.routes.gateOrigin = "slow"
	f.routes.entered = make(chan struct{})

	first := f.orch.Start(context.Background(), trip.NewQuery("slow", "B", departure))
	<-f.routes.entered
	second := f.orch.Start(context.Background(), trip.NewQuery("fast", "B", departure))
	assert.Greater(t, second, first)

	close(f.routes.gate)
	waitRecordings(t, f.orch)

	snap := f.orch.Snapshot()
	assert.Equal(t, second, snap.Generation)
	assert.Equal(t, trip.StateReady, snap.State)
	assert.Equal(t, "fast", snap.Route.Summary)
}
