// Package app wires configuration into the services shared by the API
// server and the CLI.
package app

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/trafficroute/trafficroute/internal/config"
	"github.com/trafficroute/trafficroute/internal/credentials"
	"github.com/trafficroute/trafficroute/internal/eta"
	"github.com/trafficroute/trafficroute/internal/history"
	"github.com/trafficroute/trafficroute/internal/prediction"
	"github.com/trafficroute/trafficroute/internal/provider/resilience"
	"github.com/trafficroute/trafficroute/internal/routing"
	"github.com/trafficroute/trafficroute/internal/routing/googlemaps"
	"github.com/trafficroute/trafficroute/internal/severity"
	"github.com/trafficroute/trafficroute/internal/telemetry"
	"github.com/trafficroute/trafficroute/internal/trip"
)

// RequiredUpstreams are the upstreams every query depends on. History is
// optional by contract.
var RequiredUpstreams = []string{googlemaps.ProviderName, prediction.ServiceName}

// Services holds the long-lived collaborators of orchestrators.
type Services struct {
	Upstreams *resilience.Registry
	Routes    *routing.Service
	Predictor *prediction.Client
	History   *history.Recorder
	Severity  *severity.Table
	Formatter eta.Formatter

	cfg    *config.Config
	logger zerolog.Logger
}

// Build creates the upstream clients described by cfg. metrics may be nil.
func Build(cfg *config.Config, logger zerolog.Logger, metrics *telemetry.ProviderMetrics) (*Services, error) {
	table := severity.DefaultTable()
	if cfg.SeverityTable != "" {
		loaded, err := severity.LoadTable(cfg.SeverityTable)
		if err != nil {
			return nil, fmt.Errorf("loading severity table: %w", err)
		}
		table = loaded
		logger.Info().
			Str("path", cfg.SeverityTable).
			Ints("levels", table.Levels()).
			Msg("severity table loaded")
	}

	upstreams := resilience.NewRegistry()

	directions := googlemaps.NewClient(googlemaps.ClientConfig{
		APIKey:   cfg.GoogleMapsAPIKey,
		BaseURL:  cfg.GoogleMapsBaseURL,
		Language: cfg.RouteLanguage,
		Timeout:  cfg.UpstreamTimeout,
		Registry: upstreams,
		Logger:   logger.With().Str("component", "googlemaps").Logger(),
	})

	routes := routing.NewService(routing.ServiceConfig{
		Provider: directions,
		Logger:   logger.With().Str("component", "routing").Logger(),
		Metrics:  metrics,
		CacheTTL: cfg.RouteCacheTTL,
	})

	predictor := prediction.NewClient(prediction.ClientConfig{
		BaseURL:  cfg.PredictionBaseURL,
		Timeout:  cfg.UpstreamTimeout,
		Registry: upstreams,
		Metrics:  metrics,
		Logger:   logger.With().Str("component", "prediction").Logger(),
	})

	recorder := history.NewRecorder(history.RecorderConfig{
		BaseURL:  cfg.HistoryBaseURL,
		Timeout:  cfg.HistoryTimeout,
		Registry: upstreams,
		Metrics:  metrics,
		Logger:   logger.With().Str("component", "history").Logger(),
	})

	return &Services{
		Upstreams: upstreams,
		Routes:    routes,
		Predictor: predictor,
		History:   recorder,
		Severity:  table,
		Formatter: eta.NewFormatter(cfg.Locale),
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// NewOrchestrator returns a fresh orchestrator reading the history token
// from creds.
func (s *Services) NewOrchestrator(creds credentials.Provider) *trip.Orchestrator {
	return s.NewOrchestratorWithFormatter(creds, s.Formatter)
}

// NewOrchestratorWithFormatter is NewOrchestrator with a different duration
// wording.
func (s *Services) NewOrchestratorWithFormatter(creds credentials.Provider, f eta.Formatter) *trip.Orchestrator {
	return trip.New(trip.Config{
		Routes:         s.Routes,
		Predictor:      s.Predictor,
		History:        s.History,
		Credentials:    creds,
		Severity:       s.Severity,
		Formatter:      &f,
		HistoryTimeout: s.cfg.HistoryTimeout,
		Logger:         s.logger.With().Str("component", "trip").Logger(),
	})
}
