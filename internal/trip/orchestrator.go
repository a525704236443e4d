package trip

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/trafficroute/trafficroute/internal/credentials"
	"github.com/trafficroute/trafficroute/internal/eta"
	"github.com/trafficroute/trafficroute/internal/history"
	"github.com/trafficroute/trafficroute/internal/prediction"
	"github.com/trafficroute/trafficroute/internal/routing"
	"github.com/trafficroute/trafficroute/internal/severity"
)

const tracerName = "github.com/trafficroute/trafficroute/internal/trip"

// RouteLookup finds the base driving route.
type RouteLookup interface {
	FetchRoute(ctx context.Context, origin, destination string) (*routing.Result, error)
}

// Predictor predicts the traffic level of a trip.
type Predictor interface {
	Predict(ctx context.Context, origin, destination string, at time.Time) (prediction.Prediction, error)
}

// HistoryRecorder stores completed searches.
type HistoryRecorder interface {
	Record(ctx context.Context, entry history.Entry, token string) error
}

// Config holds the collaborators of an Orchestrator.
type Config struct {
	Routes    RouteLookup
	Predictor Predictor

	// History is optional; without it nothing is recorded.
	History HistoryRecorder

	// Credentials supplies the history token (default: none).
	Credentials credentials.Provider

	// Severity overrides the default severity table.
	Severity *severity.Table

	// Formatter renders the adjusted duration (default: English).
	Formatter *eta.Formatter

	// HistoryTimeout bounds each detached recording (default: 10s).
	HistoryTimeout time.Duration

	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider

	Logger zerolog.Logger
}

// Orchestrator runs queries and holds the latest presentation state.
// A new Submit supersedes any query still in flight.
type Orchestrator struct {
	routes         RouteLookup
	predictor      Predictor
	history        HistoryRecorder
	credentials    credentials.Provider
	table          *severity.Table
	formatter      eta.Formatter
	historyTimeout time.Duration
	logger         zerolog.Logger
	tracer         trace.Tracer
	validate       *validator.Validate
	now            func() time.Time

	mu         sync.Mutex
	generation uint64
	current    Snapshot

	// notifyMu keeps listener notifications in transition order.
	notifyMu  sync.Mutex
	listeners map[int]func(Snapshot)
	nextID    int

	pipelines  sync.WaitGroup
	recordings sync.WaitGroup
}

// New creates an Orchestrator in the Idle state.
func New(cfg Config) *Orchestrator {
	creds := cfg.Credentials
	if creds == nil {
		creds = credentials.None
	}
	formatter := eta.English
	if cfg.Formatter != nil {
		formatter = *cfg.Formatter
	}
	timeout := cfg.HistoryTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	return &Orchestrator{
		routes:         cfg.Routes,
		predictor:      cfg.Predictor,
		history:        cfg.History,
		credentials:    creds,
		table:          cfg.Severity,
		formatter:      formatter,
		historyTimeout: timeout,
		logger:         cfg.Logger,
		tracer:         tp.Tracer(tracerName),
		validate:       validator.New(validator.WithRequiredStructEnabled()),
		now:            time.Now,
		current:        Snapshot{State: StateIdle},
		listeners:      make(map[int]func(Snapshot)),
	}
}

// Snapshot returns a copy of the current state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current.clone()
}

// Subscribe registers fn to receive a snapshot after every transition.
// fn runs synchronously and must not call Submit. The returned function
// removes the subscription.
func (o *Orchestrator) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	o.notifyMu.Lock()
	defer o.notifyMu.Unlock()

	id := o.nextID
	o.nextID++
	o.listeners[id] = fn

	return func() {
		o.notifyMu.Lock()
		defer o.notifyMu.Unlock()
		delete(o.listeners, id)
	}
}

// Submit runs q to completion in the calling goroutine.
//
// It returns the terminal snapshot of this query. A failed stage returns the
// Error snapshot together with a *StageError. If a newer Submit supersedes
// q, Submit returns ErrSuperseded at the next stage boundary and q's late
// results are dropped. In-flight calls of a superseded query are not
// cancelled.
func (o *Orchestrator) Submit(ctx context.Context, q Query) (Snapshot, error) {
	q = q.normalize(o.now)
	return o.run(ctx, o.begin(q), q)
}

// Start begins q like Submit but runs the pipeline in a new goroutine. It
// returns the generation assigned to q; the outcome is observed through
// Snapshot or Subscribe. Wait also waits for started pipelines.
func (o *Orchestrator) Start(ctx context.Context, q Query) uint64 {
	q = q.normalize(o.now)
	gen := o.begin(q)

	o.pipelines.Add(1)
	go func() {
		defer o.pipelines.Done()
		if _, err := o.run(ctx, gen, q); errors.Is(err, ErrSuperseded) {
			o.logger.Debug().Uint64("generation", gen).Msg("started query superseded")
		}
	}()
	return gen
}

func (o *Orchestrator) run(ctx context.Context, gen uint64, q Query) (Snapshot, error) {
	ctx, span := o.tracer.Start(ctx, "trip.Submit", trace.WithAttributes(
		attribute.Int64("trip.generation", int64(gen)), //nolint:gosec // generation fits
	))
	defer span.End()

	logger := o.logger.With().Uint64("generation", gen).Logger()

	if err := o.validate.Struct(q); err != nil {
		return o.fail(span, gen, StageValidation, fmt.Errorf("%w: %w", routing.ErrInvalidLocation, err))
	}

	if _, ok := o.apply(gen, func(s *Snapshot) { s.State = StateLookingUpRoute }); !ok {
		return o.superseded(span)
	}

	route, err := o.lookupRoute(ctx, q)
	if err != nil {
		logger.Info().Err(err).Msg("route lookup failed")
		return o.fail(span, gen, StageRouteLookup, err)
	}

	if _, ok := o.apply(gen, func(s *Snapshot) {
		s.State = StatePredictingTraffic
		s.Route = route
	}); !ok {
		return o.superseded(span)
	}

	pred, err := o.predict(ctx, q)
	if err != nil {
		logger.Info().Err(err).Msg("traffic prediction failed")
		return o.fail(span, gen, StagePrediction, err)
	}

	outcome := Combine(route, pred, o.table, o.formatter)
	snap, ok := o.apply(gen, func(s *Snapshot) {
		s.State = StateReady
		s.Outcome = &outcome
	})
	if !ok {
		return o.superseded(span)
	}

	span.SetAttributes(
		attribute.String("trip.traffic_level", pred.ReportedLevel().String()),
		attribute.Bool("trip.traffic_level_known", outcome.Severity.Known()),
		attribute.Float64("trip.adjusted_seconds", outcome.AdjustedDurationSeconds),
	)
	logger.Debug().
		Str("traffic_level", pred.ReportedLevel().String()).
		Str("severity", string(outcome.Severity.Label)).
		Str("eta", outcome.FormattedDuration).
		Msg("query ready")

	o.recordHistory(ctx, q, pred)
	return snap, nil
}

// Wait blocks until started pipelines and detached history recordings
// finish or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.pipelines.Wait()
		o.recordings.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// begin starts a new generation and resets the state to Idle.
func (o *Orchestrator) begin(q Query) uint64 {
	o.notifyMu.Lock()
	defer o.notifyMu.Unlock()

	o.mu.Lock()
	o.generation++
	gen := o.generation
	o.current = Snapshot{Generation: gen, State: StateIdle, Query: &q}
	snap := o.current.clone()
	o.mu.Unlock()

	o.notify(snap)
	return gen
}

// apply mutates the state if gen is still current and notifies listeners.
func (o *Orchestrator) apply(gen uint64, mutate func(*Snapshot)) (Snapshot, bool) {
	o.notifyMu.Lock()
	defer o.notifyMu.Unlock()

	o.mu.Lock()
	if gen != o.generation {
		o.mu.Unlock()
		return Snapshot{}, false
	}
	mutate(&o.current)
	snap := o.current.clone()
	o.mu.Unlock()

	o.notify(snap)
	return snap, true
}

// notify calls listeners. Callers must hold notifyMu.
func (o *Orchestrator) notify(snap Snapshot) {
	for _, fn := range o.listeners {
		fn(snap.clone())
	}
}

func (o *Orchestrator) fail(span trace.Span, gen uint64, stage Stage, cause error) (Snapshot, error) {
	stageErr := &StageError{Stage: stage, Err: cause}
	span.RecordError(stageErr)
	span.SetStatus(codes.Error, string(stage))

	snap, ok := o.apply(gen, func(s *Snapshot) {
		s.State = StateError
		s.ErrorStage = stage
		s.Message = stageErr.UserMessage()
		s.Err = stageErr
		s.Outcome = nil
	})
	if !ok {
		return Snapshot{}, ErrSuperseded
	}
	return snap, stageErr
}

func (o *Orchestrator) superseded(span trace.Span) (Snapshot, error) {
	span.SetAttributes(attribute.Bool("trip.superseded", true))
	return Snapshot{}, ErrSuperseded
}

func (o *Orchestrator) lookupRoute(ctx context.Context, q Query) (*routing.Result, error) {
	ctx, span := o.tracer.Start(ctx, "trip.LookupRoute")
	defer span.End()

	route, err := o.routes.FetchRoute(ctx, q.Origin, q.Destination)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "route lookup failed")
		return nil, err
	}
	return route, nil
}

func (o *Orchestrator) predict(ctx context.Context, q Query) (prediction.Prediction, error) {
	ctx, span := o.tracer.Start(ctx, "trip.PredictTraffic")
	defer span.End()

	p, err := o.predictor.Predict(ctx, q.Origin, q.Destination, q.Datetime)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "prediction failed")
		return prediction.Prediction{}, err
	}
	return p, nil
}

// recordHistory launches a detached recording when a token is available.
// Its outcome never reaches the snapshot.
func (o *Orchestrator) recordHistory(ctx context.Context, q Query, p prediction.Prediction) {
	if o.history == nil {
		return
	}

	token, ok := o.credentials.Token(ctx)
	if !ok {
		o.logger.Debug().Msg("no credential, search history not recorded")
		return
	}

	entry := history.Entry{
		Origin:      q.Origin,
		Destination: q.Destination,
		Datetime:    q.Datetime,
		Prediction:  p,
	}

	detached := context.WithoutCancel(ctx)
	o.recordings.Add(1)
	go func() {
		defer o.recordings.Done()

		rctx, cancel := context.WithTimeout(detached, o.historyTimeout)
		defer cancel()

		if err := o.history.Record(rctx, entry, token); err != nil {
			o.logger.Warn().Err(err).Msg("search history not recorded")
		}
	}()
}
