package models

import (
	"encoding/json"
	"net/http"
)

// Problem represents an RFC7807 error response.
// This is used for all API error responses with Content-Type: application/problem+json.
type Problem struct {
	// Type is a URI reference that identifies the problem type.
	Type string `json:"type"`

	// Title is a short, human-readable summary of the problem type.
	Title string `json:"title"`

	// Status is the HTTP status code for this occurrence of the problem.
	Status int `json:"status"`

	// Detail is a human-readable explanation specific to this occurrence.
	Detail string `json:"detail,omitempty"`

	// Instance is a URI reference that identifies the specific occurrence.
	Instance string `json:"instance,omitempty"`

	// TraceID is the request trace identifier for debugging.
	TraceID string `json:"traceId"`

	// Errors contains structured field validation errors.
	Errors []FieldError `json:"errors,omitempty"`

	// Result carries whatever partial result is still usable, such as the
	// base route of a query whose prediction failed.
	Result any `json:"result,omitempty"`
}

// FieldError represents a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Problem type URIs.
const (
	problemBase = "https://api.trafficroute.dev/problems/"

	ProblemTypeValidation            = problemBase + "validation-error"
	ProblemTypeTLSRequired           = problemBase + "tls-required"
	ProblemTypeNotFound              = problemBase + "not-found"
	ProblemTypeNoRoute               = problemBase + "no-route"
	ProblemTypeUnsupportedMediaType  = problemBase + "unsupported-media-type"
	ProblemTypeTooManyRequests       = problemBase + "too-many-requests"
	ProblemTypeInternal              = problemBase + "internal-error"
	ProblemTypePredictionUnavailable = problemBase + "prediction-unavailable"
	ProblemTypeUnavailable           = problemBase + "service-unavailable"
)

// problemKind is the fixed part of a problem type.
type problemKind struct {
	title  string
	status int
}

var problemKinds = map[string]problemKind{
	ProblemTypeValidation:            {"Validation error", http.StatusBadRequest},
	ProblemTypeTLSRequired:           {"TLS required", http.StatusForbidden},
	ProblemTypeNotFound:              {"Not found", http.StatusNotFound},
	ProblemTypeNoRoute:               {"No route found", http.StatusNotFound},
	ProblemTypeUnsupportedMediaType:  {"Unsupported media type", http.StatusUnsupportedMediaType},
	ProblemTypeTooManyRequests:       {"Too many requests", http.StatusTooManyRequests},
	ProblemTypeInternal:              {"Internal server error", http.StatusInternalServerError},
	ProblemTypePredictionUnavailable: {"Prediction unavailable", http.StatusBadGateway},
	ProblemTypeUnavailable:           {"Service unavailable", http.StatusServiceUnavailable},
}

// NewProblem creates a new Problem with the given parameters.
func NewProblem(problemType, title string, status int, traceID string) *Problem {
	return &Problem{
		Type:    problemType,
		Title:   title,
		Status:  status,
		TraceID: traceID,
	}
}

// NewProblemOf creates a problem of a known type with its title and status.
// Unknown types become internal errors.
func NewProblemOf(problemType, traceID, detail string) *Problem {
	kind, ok := problemKinds[problemType]
	if !ok {
		problemType, kind = ProblemTypeInternal, problemKinds[ProblemTypeInternal]
	}
	p := NewProblem(problemType, kind.title, kind.status, traceID)
	p.Detail = detail
	return p
}

// WithDetail adds a detail message to the Problem.
func (p *Problem) WithDetail(detail string) *Problem {
	p.Detail = detail
	return p
}

// WithInstance adds the request instance URI to the Problem.
func (p *Problem) WithInstance(instance string) *Problem {
	p.Instance = instance
	return p
}

// WithErrors adds field errors to the Problem.
func (p *Problem) WithErrors(errors []FieldError) *Problem {
	p.Errors = errors
	return p
}

// WithResult attaches a partial result to the Problem.
func (p *Problem) WithResult(result any) *Problem {
	p.Result = result
	return p
}

// Write sends the problem as application/problem+json. The trace id is
// echoed in X-Request-Id when set.
func (p *Problem) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	if p.TraceID != "" {
		w.Header().Set("X-Request-Id", p.TraceID)
	}
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p) //nolint:errchkjson // headers already sent
}

// NewBadRequest creates a validation problem listing the offending fields.
func NewBadRequest(traceID, detail string, errors []FieldError) *Problem {
	return NewProblemOf(ProblemTypeValidation, traceID, detail).WithErrors(errors)
}

// NewTLSRequired rejects a request that reached the service over plain HTTP.
func NewTLSRequired(traceID string) *Problem {
	return NewProblemOf(ProblemTypeTLSRequired, traceID, "This endpoint requires HTTPS")
}

func NewNotFound(traceID, detail string) *Problem {
	return NewProblemOf(ProblemTypeNotFound, traceID, detail)
}

// NewNoRoute reports a query whose locations could not be routed.
func NewNoRoute(traceID, detail string) *Problem {
	return NewProblemOf(ProblemTypeNoRoute, traceID, detail)
}

func NewUnsupportedMediaType(traceID, detail string) *Problem {
	return NewProblemOf(ProblemTypeUnsupportedMediaType, traceID, detail)
}

func NewTooManyRequests(traceID, detail string) *Problem {
	return NewProblemOf(ProblemTypeTooManyRequests, traceID, detail)
}

func NewInternalError(traceID, detail string) *Problem {
	return NewProblemOf(ProblemTypeInternal, traceID, detail)
}

// NewBadGateway reports a failed traffic prediction. The route found before
// the failure is usually attached with WithResult.
func NewBadGateway(traceID, detail string) *Problem {
	return NewProblemOf(ProblemTypePredictionUnavailable, traceID, detail)
}

func NewServiceUnavailable(traceID, detail string) *Problem {
	return NewProblemOf(ProblemTypeUnavailable, traceID, detail)
}
