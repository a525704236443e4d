// Package api provides the HTTP API for TrafficRoute.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/trafficroute/trafficroute/internal/api/handler"
	"github.com/trafficroute/trafficroute/internal/api/middleware"
	"github.com/trafficroute/trafficroute/internal/api/models"
	"github.com/trafficroute/trafficroute/internal/provider/resilience"
	"github.com/trafficroute/trafficroute/internal/view"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version   string
	BuildTime string
	Logger    zerolog.Logger
	Metrics   *middleware.Metrics

	// RequireTLS rejects requests forwarded over plain HTTP.
	RequireTLS bool
	// RateLimitPerMinute is the per-IP budget of the query endpoints (default: 60).
	RateLimitPerMinute int

	Upstreams         *resilience.Registry
	RequiredUpstreams []string
	RouteCache        handler.RouteCache

	Trips *handler.TripHandler
	Views *view.Registry
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing())
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		problem := models.NewNotFound(middleware.GetRequestID(req.Context()), "no such endpoint")
		problem.Instance = req.URL.Path
		problem.Write(w)
	})

	perMinute := cfg.RateLimitPerMinute
	if perMinute <= 0 {
		perMinute = 60
	}
	queryRateLimit := middleware.RateLimitByIP(middleware.PerMinute(perMinute))

	opsCfg := handler.OpsConfig{
		Version:    cfg.Version,
		BuildTime:  cfg.BuildTime,
		Upstreams:  cfg.Upstreams,
		Required:   cfg.RequiredUpstreams,
		RouteCache: cfg.RouteCache,
	}
	if cfg.Views != nil {
		opsCfg.Views = cfg.Views
	}
	opsHandler := handler.NewOpsHandler(opsCfg)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(middleware.OpsRateLimit))
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		if cfg.Trips != nil {
			r.With(queryRateLimit, middleware.RequireJSON, middleware.BearerToken).
				Post("/routes:predict", cfg.Trips.Predict)
		}

		if cfg.Views != nil {
			viewHandler := handler.NewViewHandler(cfg.Views, cfg.Logger)
			r.Route("/views", func(r chi.Router) {
				r.With(queryRateLimit, middleware.RequireJSON, middleware.BearerToken).
					Post("/", viewHandler.Create)
				r.Get("/{viewId}", viewHandler.Get)
				r.Delete("/{viewId}", viewHandler.Delete)
				r.With(queryRateLimit, middleware.RequireJSON, middleware.BearerToken).
					Put("/{viewId}/query", viewHandler.SubmitQuery)
			})
		}
	})

	return r
}
