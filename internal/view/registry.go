// Package view keeps one long-lived orchestrator per client view, so that
// each view sees only the result of its latest query.
package view

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/trafficroute/trafficroute/internal/trip"
)

var (
	// ErrInvalidID is returned for view ids that are empty, too long or
	// contain characters other than letters, digits, '-' and '_'.
	ErrInvalidID = errors.New("invalid view id")
	// ErrNotFound is returned for unknown or evicted views.
	ErrNotFound = errors.New("view not found")
	// ErrTooManyViews is returned when creating a view would exceed MaxViews.
	ErrTooManyViews = errors.New("too many active views")
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Factory builds the orchestrator of a new view.
type Factory func() *trip.Orchestrator

// Config holds configuration for the registry.
type Config struct {
	// New builds orchestrators. Required.
	New Factory

	// TTL evicts views not accessed for this long (default: 30 minutes).
	TTL time.Duration

	// JanitorInterval is how often Run looks for idle views (default: TTL/4, at most one minute).
	JanitorInterval time.Duration

	// MaxViews bounds the number of live views (default: 10000).
	MaxViews int

	Logger zerolog.Logger
}

// Registry maps view ids to orchestrators.
type Registry struct {
	newOrchestrator Factory
	ttl             time.Duration
	interval        time.Duration
	maxViews        int
	logger          zerolog.Logger
	now             func() time.Time

	mu    sync.Mutex
	views map[string]*entry
	// retired holds removed views until their work has finished.
	retired map[*trip.Orchestrator]struct{}
}

type entry struct {
	orch       *trip.Orchestrator
	createdAt  time.Time
	lastAccess time.Time
}

// Info describes a live view.
type Info struct {
	ID         string
	CreatedAt  time.Time
	LastAccess time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) *Registry {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	interval := cfg.JanitorInterval
	if interval <= 0 {
		interval = min(ttl/4, time.Minute)
	}
	maxViews := cfg.MaxViews
	if maxViews <= 0 {
		maxViews = 10000
	}

	return &Registry{
		newOrchestrator: cfg.New,
		ttl:             ttl,
		interval:        interval,
		maxViews:        maxViews,
		logger:          cfg.Logger,
		now:             time.Now,
		views:           make(map[string]*entry),
		retired:         make(map[*trip.Orchestrator]struct{}),
	}
}

// NewID returns a fresh random view id.
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether id can name a view.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// Submit starts q on the view's orchestrator, creating the view if needed.
// It returns the generation of q without waiting for the result.
func (r *Registry) Submit(ctx context.Context, id string, q trip.Query) (uint64, error) {
	if !ValidID(id) {
		return 0, ErrInvalidID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.getOrCreate(id)
	if err != nil {
		return 0, err
	}
	// Start under mu so that a concurrent Delete or EvictIdle, and the
	// drain that follows it, always sees this query.
	return e.orch.Start(ctx, q), nil
}

// Snapshot returns the current state of a view.
func (r *Registry) Snapshot(id string) (trip.Snapshot, error) {
	r.mu.Lock()
	e, ok := r.views[id]
	if ok {
		e.lastAccess = r.now()
	}
	r.mu.Unlock()

	if !ok {
		return trip.Snapshot{}, ErrNotFound
	}
	return e.orch.Snapshot(), nil
}

// Delete removes a view. Queries still running on it finish in the
// background and are covered by Wait.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.views[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.views, id)
	r.drain(e.orch)
	return nil
}

// Len returns the number of live views.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

// List returns the live views sorted by id.
func (r *Registry) List() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Info, 0, len(r.views))
	for id, e := range r.views {
		out = append(out, Info{ID: id, CreatedAt: e.createdAt, LastAccess: e.lastAccess})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Run evicts idle views until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().
		Dur("ttl", r.ttl).
		Dur("interval", r.interval).
		Msg("view janitor started")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("view janitor stopped")
			return
		case <-ticker.C:
			if n := r.EvictIdle(); n > 0 {
				r.logger.Debug().
					Int("evicted", n).
					Int("remaining", r.Len()).
					Msg("evicted idle views")
			}
		}
	}
}

// EvictIdle removes views idle for longer than the TTL and returns how many
// were removed.
func (r *Registry) EvictIdle() int {
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, e := range r.views {
		if e.lastAccess.Before(cutoff) {
			delete(r.views, id)
			r.drain(e.orch)
			evicted++
		}
	}
	return evicted
}

// Wait blocks until every live and removed view has finished its running
// queries and history recordings, or ctx is done.
func (r *Registry) Wait(ctx context.Context) error {
	r.mu.Lock()
	pending := make([]*trip.Orchestrator, 0, len(r.views)+len(r.retired))
	for _, e := range r.views {
		pending = append(pending, e.orch)
	}
	for o := range r.retired {
		pending = append(pending, o)
	}
	r.mu.Unlock()

	for _, o := range pending {
		if err := o.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// getOrCreate returns the view's entry. Callers must hold mu.
func (r *Registry) getOrCreate(id string) (*entry, error) {
	now := r.now()
	if e, ok := r.views[id]; ok {
		e.lastAccess = now
		return e, nil
	}
	if len(r.views) >= r.maxViews {
		return nil, ErrTooManyViews
	}

	e := &entry{orch: r.newOrchestrator(), createdAt: now, lastAccess: now}
	r.views[id] = e
	return e, nil
}

// drain waits for a removed orchestrator in the background. Callers must
// hold mu, so that Wait never misses a view between its removal and drain.
func (r *Registry) drain(o *trip.Orchestrator) {
	r.retired[o] = struct{}{}
	go func() {
		_ = o.Wait(context.Background())

		r.mu.Lock()
		delete(r.retired, o)
		r.mu.Unlock()
	}()
}
