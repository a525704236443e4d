package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const providerMeterName = "github.com/trafficroute/trafficroute/internal/telemetry"

// Outcomes of an upstream call, recorded as the upstream.outcome attribute.
const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeTimeout     = "timeout"
	OutcomeCircuitOpen = "circuit_open"
)

// ProviderMetrics records calls to the route, prediction and history
// upstreams. A nil *ProviderMetrics is valid and records nothing.
type ProviderMetrics struct {
	requestDuration metric.Float64Histogram
	requestTotal    metric.Int64Counter
	cacheLookups    metric.Int64Counter
}

// NewProviderMetrics creates the instruments on the global meter provider.
func NewProviderMetrics() (*ProviderMetrics, error) {
	return NewProviderMetricsWithMeter(otel.Meter(providerMeterName))
}

// NewProviderMetricsWithMeter creates the instruments on meter.
func NewProviderMetricsWithMeter(meter metric.Meter) (*ProviderMetrics, error) {
	requestDuration, err := meter.Float64Histogram(
		"upstream.request.duration",
		metric.WithDescription("Duration of upstream calls in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, err
	}

	requestTotal, err := meter.Int64Counter(
		"upstream.request.total",
		metric.WithDescription("Upstream calls by outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	cacheLookups, err := meter.Int64Counter(
		"route_cache.lookup.total",
		metric.WithDescription("Route cache lookups; cache.hit tells hits from misses"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	return &ProviderMetrics{
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLookups:    cacheLookups,
	}, nil
}

// Outcome classifies the error of an upstream call.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return OutcomeCircuitOpen
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	default:
		return OutcomeError
	}
}

// RecordRequest records one call of operation on upstream.
func (m *ProviderMetrics) RecordRequest(upstream, operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}

	opt := metric.WithAttributes(
		attribute.String("upstream.name", upstream),
		attribute.String("upstream.operation", operation),
		attribute.String("upstream.outcome", Outcome(err)),
	)

	// The caller's context may already be cancelled.
	ctx := context.Background()
	m.requestDuration.Record(ctx, duration.Seconds(), opt)
	m.requestTotal.Add(ctx, 1, opt)
}

// RecordCacheHit records a route served from cache.
func (m *ProviderMetrics) RecordCacheHit(upstream, operation string) {
	m.recordLookup(upstream, operation, true)
}

// RecordCacheMiss records a route fetched from upstream.
func (m *ProviderMetrics) RecordCacheMiss(upstream, operation string) {
	m.recordLookup(upstream, operation, false)
}

func (m *ProviderMetrics) recordLookup(upstream, operation string, hit bool) {
	if m == nil {
		return
	}
	m.cacheLookups.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("upstream.name", upstream),
		attribute.String("upstream.operation", operation),
		attribute.Bool("cache.hit", hit),
	))
}
