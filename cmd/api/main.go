// Package main provides the entrypoint for the TrafficRoute API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/trafficroute/trafficroute/internal/api"
	"github.com/trafficroute/trafficroute/internal/api/handler"
	"github.com/trafficroute/trafficroute/internal/api/middleware"
	"github.com/trafficroute/trafficroute/internal/app"
	"github.com/trafficroute/trafficroute/internal/config"
	"github.com/trafficroute/trafficroute/internal/credentials"
	"github.com/trafficroute/trafficroute/internal/telemetry"
	"github.com/trafficroute/trafficroute/internal/trip"
	"github.com/trafficroute/trafficroute/internal/view"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "trafficroute-api"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	log = log.Level(cfg.ZerologLevel())

	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.AppEnv).
		Msg("starting TrafficRoute API")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.AppEnv,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.OTelEnabled,
		SampleRatio:    cfg.OTelSampleRatio,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.OTelEnabled {
		log.Info().
			Str("otlp_endpoint", cfg.OTLPEndpoint).
			Float64("sample_ratio", cfg.OTelSampleRatio).
			Msg("OpenTelemetry initialized")
	}

	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}
	providerMetrics, err := telemetry.NewProviderMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize provider metrics")
		os.Exit(1)
	}

	services, err := app.Build(cfg, log, providerMetrics)
	if err != nil {
		log.Error().Err(err).Msg("failed to build services")
		os.Exit(1)
	}

	// Every request gets its own orchestrator; the history token comes from
	// the request's bearer header.
	newOrchestrator := func() *trip.Orchestrator {
		return services.NewOrchestrator(credentials.FromContext)
	}

	trips := handler.NewTripHandler(newOrchestrator, log.With().Str("component", "trip_handler").Logger())

	views := view.NewRegistry(view.Config{
		New:    newOrchestrator,
		TTL:    cfg.ViewTTL,
		Logger: log.With().Str("component", "views").Logger(),
	})
	go views.Run(ctx)

	router := api.NewRouter(api.RouterConfig{
		Version:            Version,
		BuildTime:          BuildTime,
		Logger:             log,
		Metrics:            metrics,
		RequireTLS:         cfg.RequireTLS,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Upstreams:          services.Upstreams,
		RequiredUpstreams:  app.RequiredUpstreams,
		RouteCache:         services.Routes,
		Trips:              trips,
		Views:              views,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2*cfg.UpstreamTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	stop()

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	// Let in-flight view queries and history recordings finish.
	if err := views.Wait(shutdownCtx); err != nil {
		log.Warn().Err(err).Int("views", views.Len()).Msg("views still running at shutdown")
	}
	if err := trips.Wait(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("history recordings still running at shutdown")
	}

	log.Info().Msg("server stopped")
}
