package models

import (
	"encoding/json"
	"time"

	"github.com/trafficroute/trafficroute/internal/routing"
	"github.com/trafficroute/trafficroute/internal/severity"
	"github.com/trafficroute/trafficroute/internal/trip"
	"github.com/trafficroute/trafficroute/pkg/polyline"
)

// PredictRequest is the body of a route prediction query.
// A missing datetime means now.
type PredictRequest struct {
	Origin      string     `json:"origin"`
	Destination string     `json:"destination"`
	Datetime    *time.Time `json:"datetime,omitempty"`
}

// Query converts the request into a trip query.
func (r PredictRequest) Query() trip.Query {
	var at time.Time
	if r.Datetime != nil {
		at = *r.Datetime
	}
	return trip.NewQuery(r.Origin, r.Destination, at)
}

// ViewQueryAccepted acknowledges an asynchronous view query.
type ViewQueryAccepted struct {
	ViewID     string `json:"viewId"`
	Generation uint64 `json:"generation"`
}

// TripResult is the API form of an orchestrator snapshot.
type TripResult struct {
	Generation uint64       `json:"generation"`
	State      string       `json:"state"`
	Query      *TripQuery   `json:"query,omitempty"`
	Route      *Route       `json:"route,omitempty"`
	Outcome    *TripOutcome `json:"outcome,omitempty"`
	ErrorStage string       `json:"errorStage,omitempty"`
	Message    string       `json:"message,omitempty"`
}

// TripQuery echoes the normalized query.
type TripQuery struct {
	Origin      string    `json:"origin"`
	Destination string    `json:"destination"`
	Datetime    Timestamp `json:"datetime"`
}

// Route is the base route with its decoded path for map rendering.
type Route struct {
	PathGeometry        string                `json:"pathGeometry"`
	Path                []polyline.Coordinate `json:"path,omitempty"`
	Bounds              *polyline.Bounds      `json:"bounds,omitempty"`
	BaseDurationSeconds float64               `json:"baseDurationSeconds"`
	DurationText        string                `json:"durationText,omitempty"`
	DistanceText        string                `json:"distanceText"`
	DistanceMeters      int                   `json:"distanceMeters"`
	Summary             string                `json:"summary,omitempty"`
}

// TripOutcome is the traffic-adjusted result.
type TripOutcome struct {
	TrafficLevel            int         `json:"trafficLevel"`
	ReportedLevel           json.Number `json:"reportedLevel,omitempty"`
	Severity                Severity `json:"severity"`
	AdjustedDurationSeconds float64  `json:"adjustedDurationSeconds"`
	FormattedDuration       string   `json:"formattedDuration"`
	DistanceText            string   `json:"distanceText"`
}

// Severity describes how a route should be drawn.
type Severity struct {
	Color      severity.Color `json:"color"`
	Label      severity.Label `json:"label"`
	Multiplier float64        `json:"multiplier"`
	Known      bool           `json:"known"`
}

// NewTripResult converts a snapshot. includePath adds the decoded path and
// its bounds to the route.
func NewTripResult(s trip.Snapshot, includePath bool) *TripResult {
	res := &TripResult{
		Generation: s.Generation,
		State:      s.State.String(),
		ErrorStage: string(s.ErrorStage),
		Message:    s.Message,
	}
	if s.Query != nil {
		res.Query = &TripQuery{
			Origin:      s.Query.Origin,
			Destination: s.Query.Destination,
			Datetime:    Timestamp(s.Query.Datetime),
		}
	}
	if s.Route != nil {
		res.Route = NewRoute(s.Route, includePath)
	}
	if o := s.Outcome; o != nil {
		res.Outcome = &TripOutcome{
			TrafficLevel:  o.Level,
			ReportedLevel: o.ReportedLevel,
			Severity: Severity{
				Color:      o.Severity.Color,
				Label:      o.Severity.Label,
				Multiplier: o.Severity.Multiplier,
				Known:      o.Severity.Known(),
			},
			AdjustedDurationSeconds: o.AdjustedDurationSeconds,
			FormattedDuration:       o.FormattedDuration,
			DistanceText:            o.DistanceText,
		}
	}
	return res
}

// NewRoute converts a routing result.
func NewRoute(r *routing.Result, includePath bool) *Route {
	route := &Route{
		PathGeometry:        r.PathGeometry,
		BaseDurationSeconds: r.BaseDurationSeconds,
		DurationText:        r.DurationText,
		DistanceText:        r.DistanceText,
		DistanceMeters:      r.DistanceMeters,
		Summary:             r.Summary,
	}
	if includePath {
		route.Path = r.Path()
		if b, ok := polyline.BoundsOf(route.Path); ok {
			route.Bounds = &b
		}
	}
	return route
}
