package routing

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/trafficroute/trafficroute/internal/telemetry"
)

// ServiceConfig holds configuration for the routing service.
type ServiceConfig struct {
	// Provider is the routing data provider.
	Provider Provider

	// Logger for service operations.
	Logger zerolog.Logger

	// Metrics records provider calls (optional).
	Metrics *telemetry.ProviderMetrics

	// CacheTTL is how long to cache routes (default: 5 minutes).
	// A negative value disables caching.
	CacheTTL time.Duration

	// CleanupInterval is how often to clean up expired entries (default: 5 minutes).
	CleanupInterval time.Duration
}

// Service looks up driving routes with caching.
type Service struct {
	provider        Provider
	logger          zerolog.Logger
	metrics         *telemetry.ProviderMetrics
	cacheTTL        time.Duration
	cleanupInterval time.Duration

	mu          sync.RWMutex
	cache       map[string]*cachedRoute
	lastCleanup time.Time
}

type cachedRoute struct {
	result    Result
	expiresAt time.Time
}

// NewService creates a new routing service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 5 * time.Minute
	}

	cleanupInterval := cfg.CleanupInterval
	if cleanupInterval == 0 {
		cleanupInterval = 5 * time.Minute
	}

	return &Service{
		provider:        cfg.Provider,
		logger:          cfg.Logger,
		metrics:         cfg.Metrics,
		cacheTTL:        cacheTTL,
		cleanupInterval: cleanupInterval,
		cache:           make(map[string]*cachedRoute),
	}
}

// FetchRoute returns the base driving route between origin and destination.
//
// Missing input fails with ErrInvalidLocation before the provider is called.
// Any provider failure is reported as ErrNoRouteFound. Only the first leg
// of the first route is used.
func (s *Service) FetchRoute(ctx context.Context, origin, destination string) (*Result, error) {
	origin = strings.TrimSpace(origin)
	destination = strings.TrimSpace(destination)

	if origin == "" {
		return nil, &Error{
			Provider: s.provider.Name(),
			Code:     "MISSING_ORIGIN",
			Message:  "origin is required",
			Err:      ErrInvalidLocation,
		}
	}
	if destination == "" {
		return nil, &Error{
			Provider: s.provider.Name(),
			Code:     "MISSING_DESTINATION",
			Message:  "destination is required",
			Err:      ErrInvalidLocation,
		}
	}

	key := cacheKey(origin, destination)

	s.mu.RLock()
	if cached, ok := s.cache[key]; ok && time.Now().Before(cached.expiresAt) {
		s.mu.RUnlock()
		s.logger.Debug().
			Str("cache_key", key).
			Msg("cache hit for route")
		s.metrics.RecordCacheHit(s.provider.Name(), "directions")
		res := cached.result
		return &res, nil
	}
	s.mu.RUnlock()
	s.metrics.RecordCacheMiss(s.provider.Name(), "directions")

	result, err := s.fetch(ctx, origin, destination)
	if err != nil {
		return nil, err
	}

	if s.cacheTTL > 0 {
		s.mu.Lock()
		s.cache[key] = &cachedRoute{
			result:    *result,
			expiresAt: time.Now().Add(s.cacheTTL),
		}
		s.cleanupIfNeeded()
		s.mu.Unlock()
	}

	return result, nil
}

// fetch calls the provider and extracts the first leg of the first route.
func (s *Service) fetch(ctx context.Context, origin, destination string) (*Result, error) {
	s.logger.Debug().
		Str("origin", origin).
		Str("destination", destination).
		Str("provider", s.provider.Name()).
		Msg("fetching route from provider")

	start := time.Now()
	resp, err := s.provider.GetDirections(ctx, DirectionsRequest{
		Origin:      origin,
		Destination: destination,
		TravelMode:  ModeDriving,
	})
	s.metrics.RecordRequest(s.provider.Name(), "directions", time.Since(start), err)

	if err != nil {
		s.logger.Error().Err(err).
			Str("origin", origin).
			Str("destination", destination).
			Msg("failed to fetch route")
		return nil, asRouteNotFound(s.provider.Name(), err)
	}

	if len(resp.Routes) == 0 || len(resp.Routes[0].Legs) == 0 {
		return nil, &Error{
			Provider: s.provider.Name(),
			Code:     "NO_ROUTE",
			Message:  "provider returned no routes",
			Err:      ErrNoRouteFound,
		}
	}

	if len(resp.Routes) > 1 {
		s.logger.Debug().
			Int("route_count", len(resp.Routes)).
			Msg("ignoring alternative routes")
	}

	route := resp.Routes[0]
	leg := route.Legs[0]

	return &Result{
		PathGeometry:        route.GeometryPolyline,
		BaseDurationSeconds: leg.DurationSeconds,
		DurationText:        leg.DurationText,
		DistanceText:        leg.DistanceText,
		DistanceMeters:      leg.DistanceMeters,
		Summary:             route.Summary,
		Provider:            resp.Provider,
		FetchedAt:           resp.FetchedAt,
	}, nil
}

// asRouteNotFound makes sure every provider failure matches ErrNoRouteFound
// while keeping the original cause reachable.
func asRouteNotFound(provider string, err error) error {
	if errors.Is(err, ErrNoRouteFound) {
		return err
	}

	var routingErr *Error
	if errors.As(err, &routingErr) {
		return providerFailure(routingErr.Provider, routingErr.Code, routingErr.Message, routingErr.Err)
	}
	return providerFailure(provider, "REQUEST_FAILED", "route lookup failed", err)
}

// cacheKey normalizes a location pair. Lookups are case-insensitive.
func cacheKey(origin, destination string) string {
	return strings.ToLower(origin) + "\x00" + strings.ToLower(destination)
}

// cleanupIfNeeded removes expired entries if cleanup interval has passed.
// Callers must hold s.mu.
func (s *Service) cleanupIfNeeded() {
	now := time.Now()
	if now.Sub(s.lastCleanup) < s.cleanupInterval {
		return
	}

	s.lastCleanup = now
	expired := 0

	for key, cached := range s.cache {
		if now.After(cached.expiresAt) {
			delete(s.cache, key)
			expired++
		}
	}

	if expired > 0 {
		s.logger.Debug().
			Int("expired_entries", expired).
			Msg("cleaned up expired route cache entries")
	}
}

// InvalidateCache clears all cached data.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]*cachedRoute)
}

// CacheStats returns cache statistics.
func (s *Service) CacheStats() CacheStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	fresh := 0
	for _, c := range s.cache {
		if now.Before(c.expiresAt) {
			fresh++
		}
	}

	return CacheStats{
		TotalEntries: len(s.cache),
		FreshEntries: fresh,
		Provider:     s.provider.Name(),
	}
}

// CacheStats contains cache statistics.
type CacheStats struct {
	TotalEntries int
	FreshEntries int
	Provider     string
}

// ProviderName returns the name of the underlying provider.
func (s *Service) ProviderName() string {
	return s.provider.Name()
}
