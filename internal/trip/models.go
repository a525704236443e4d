// Package trip runs one traffic-aware route query at a time: route lookup,
// traffic prediction and ETA adjustment, publishing a snapshot after every
// step and discarding the results of superseded queries.
package trip

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/trafficroute/trafficroute/internal/routing"
	"github.com/trafficroute/trafficroute/internal/severity"
)

// ErrSuperseded is returned by Submit when a newer query replaced the
// caller's query before it finished.
var ErrSuperseded = errors.New("query superseded by a newer submission")

// State is the presentation state of the orchestrator.
type State int

// Orchestrator states.
const (
	StateIdle State = iota
	StateLookingUpRoute
	StatePredictingTraffic
	StateReady
	StateError
)

var stateNames = map[State]string{
	StateIdle:              "idle",
	StateLookingUpRoute:    "looking_up_route",
	StatePredictingTraffic: "predicting_traffic",
	StateReady:             "ready",
	StateError:             "error",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transitions follow for this generation.
func (s State) Terminal() bool {
	return s == StateReady || s == StateError
}

// Stage names the pipeline step that failed.
type Stage string

// Pipeline stages.
const (
	StageValidation  Stage = "validation"
	StageRouteLookup Stage = "route_lookup"
	StagePrediction  Stage = "prediction"
)

// User-facing messages per failed stage.
const (
	MessageInvalidQuery          = "origin and destination are required"
	MessageNoRoute               = "no route found"
	MessagePredictionUnavailable = "traffic prediction is unavailable"
)

// StageError wraps the cause of a failed stage.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// UserMessage is the short message shown for this failure.
func (e *StageError) UserMessage() string {
	switch e.Stage {
	case StageValidation:
		return MessageInvalidQuery
	case StageRouteLookup:
		return MessageNoRoute
	default:
		return MessagePredictionUnavailable
	}
}

// Query is one user search. Build it with NewQuery.
type Query struct {
	Origin      string    `json:"origin" validate:"required"`
	Destination string    `json:"destination" validate:"required"`
	Datetime    time.Time `json:"datetime"`
}

// NewQuery trims both locations. A zero at means now.
func NewQuery(origin, destination string, at time.Time) Query {
	q := Query{Origin: origin, Destination: destination, Datetime: at}
	return q.normalize(time.Now)
}

func (q Query) normalize(now func() time.Time) Query {
	q.Origin = strings.TrimSpace(q.Origin)
	q.Destination = strings.TrimSpace(q.Destination)
	if q.Datetime.IsZero() {
		q.Datetime = now()
	}
	return q
}

// Outcome is the traffic-adjusted result of a query.
type Outcome struct {
	Level                   int           `json:"trafficLevel"`
	ReportedLevel           json.Number   `json:"reportedLevel,omitempty"`
	Severity                severity.Info `json:"severity"`
	AdjustedDurationSeconds float64       `json:"adjustedDurationSeconds"`
	FormattedDuration       string        `json:"formattedDuration"`
	DistanceText            string        `json:"distanceText"`
}

// Snapshot is a copy of the orchestrator state handed to readers.
type Snapshot struct {
	Generation uint64          `json:"generation"`
	State      State           `json:"state"`
	Query      *Query          `json:"query,omitempty"`
	Route      *routing.Result `json:"route,omitempty"`
	Outcome    *Outcome        `json:"outcome,omitempty"`
	ErrorStage Stage           `json:"errorStage,omitempty"`
	Message    string          `json:"message,omitempty"`
	Err        error           `json:"-"`
}

func (s Snapshot) clone() Snapshot {
	if s.Query != nil {
		q := *s.Query
		s.Query = &q
	}
	if s.Route != nil {
		r := *s.Route
		s.Route = &r
	}
	if s.Outcome != nil {
		o := *s.Outcome
		s.Outcome = &o
	}
	return s
}
