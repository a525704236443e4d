// Package handler provides HTTP handlers for the TrafficRoute API.
package handler

import (
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/trafficroute/trafficroute/internal/api/models"
	"github.com/trafficroute/trafficroute/internal/api/response"
	"github.com/trafficroute/trafficroute/internal/provider/resilience"
	"github.com/trafficroute/trafficroute/internal/routing"
)

// ViewCounter reports the number of live views.
type ViewCounter interface {
	Len() int
}

// RouteCache reports route cache statistics.
type RouteCache interface {
	CacheStats() routing.CacheStats
}

// OpsConfig holds the dependencies of OpsHandler. Every field but the
// version strings is optional.
type OpsConfig struct {
	Version   string
	BuildTime string

	Upstreams *resilience.Registry
	// Required names the upstreams without which no query can succeed.
	// An open circuit on any of them fails readiness.
	Required []string

	Views      ViewCounter
	RouteCache RouteCache
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg OpsConfig
	now func() time.Time
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{cfg: cfg, now: time.Now}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
		Details: map[string]any{
			"version":   h.cfg.Version,
			"buildTime": h.cfg.BuildTime,
		},
	})
}

// ReadinessCheck handles GET /v1/ops/ready. It fails while a required
// upstream has an open circuit.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	var open []string
	for _, up := range h.upstreams() {
		if up.IsUnhealthy() && slices.Contains(h.cfg.Required, up.Name) {
			open = append(open, up.Name)
		}
	}

	if len(open) > 0 {
		response.JSON(w, r, http.StatusServiceUnavailable, models.Health{
			Status:  models.HealthStatusFail,
			Time:    models.Timestamp(h.now()),
			Details: map[string]any{"openCircuits": open},
		})
		return
	}

	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
	})
}

// SystemStatus handles GET /v1/ops/status - upstream and subsystem status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(h.now()),
		Subsystems: h.subsystems(),
		Upstreams:  []models.UpstreamStatus{},
	}

	for _, up := range h.upstreams() {
		us := upstreamStatus(up)
		status.Upstreams = append(status.Upstreams, us)

		switch {
		case us.Status == models.HealthStatusFail && slices.Contains(h.cfg.Required, up.Name):
			status.Status = models.HealthStatusFail
		case us.Status != models.HealthStatusOK && status.Status == models.HealthStatusOK:
			status.Status = models.HealthStatusDegraded
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) upstreams() []*resilience.UpstreamHealth {
	if h.cfg.Upstreams == nil {
		return nil
	}
	return h.cfg.Upstreams.AllHealth()
}

func (h *OpsHandler) subsystems() []models.SubsystemStatus {
	out := []models.SubsystemStatus{}
	if h.cfg.Views != nil {
		out = append(out, models.SubsystemStatus{
			Name:   "views",
			Status: models.HealthStatusOK,
			Detail: fmt.Sprintf("%d active", h.cfg.Views.Len()),
		})
	}
	if h.cfg.RouteCache != nil {
		stats := h.cfg.RouteCache.CacheStats()
		out = append(out, models.SubsystemStatus{
			Name:   "route-cache",
			Status: models.HealthStatusOK,
			Detail: fmt.Sprintf("%d fresh of %d entries (%s)", stats.FreshEntries, stats.TotalEntries, stats.Provider),
		})
	}
	return out
}

func upstreamStatus(up *resilience.UpstreamHealth) models.UpstreamStatus {
	us := models.UpstreamStatus{
		Name:                up.Name,
		Status:              models.HealthStatusOK,
		CircuitState:        up.CircuitState.String(),
		ConsecutiveFailures: up.Counts.ConsecutiveFailures,
		LastError:           up.LastError,
	}
	switch {
	case up.IsUnhealthy():
		us.Status = models.HealthStatusFail
	case up.IsDegraded():
		us.Status = models.HealthStatusDegraded
	}
	if up.LastSuccessAt != nil {
		ts := models.Timestamp(*up.LastSuccessAt)
		us.LastSuccessAt = &ts
	}
	if up.LastFailureAt != nil {
		ts := models.Timestamp(*up.LastFailureAt)
		us.LastFailureAt = &ts
	}
	return us
}
