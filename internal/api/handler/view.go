package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/trafficroute/trafficroute/internal/api/models"
	"github.com/trafficroute/trafficroute/internal/api/response"
	"github.com/trafficroute/trafficroute/internal/trip"
	"github.com/trafficroute/trafficroute/internal/view"
)

// Views is the registry behind the view endpoints.
type Views interface {
	Submit(ctx context.Context, id string, q trip.Query) (uint64, error)
	Snapshot(id string) (trip.Snapshot, error)
	Delete(id string) error
}

// ViewHandler handles long-lived views. Each view keeps the result of its
// latest query only.
type ViewHandler struct {
	views  Views
	logger zerolog.Logger
}

// NewViewHandler creates a ViewHandler.
func NewViewHandler(views Views, logger zerolog.Logger) *ViewHandler {
	return &ViewHandler{views: views, logger: logger}
}

// Create handles POST /v1/views - submits a query to a new view.
func (h *ViewHandler) Create(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, view.NewID())
}

// SubmitQuery handles PUT /v1/views/{viewId}/query. The query runs in the
// background and supersedes any query still running on the view.
func (h *ViewHandler) SubmitQuery(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, chi.URLParam(r, "viewId"))
}

func (h *ViewHandler) submit(w http.ResponseWriter, r *http.Request, id string) {
	req, ok := decodePredictRequest(w, r)
	if !ok {
		return
	}

	// The query outlives the request but keeps its credential and trace.
	ctx := context.WithoutCancel(r.Context())

	gen, err := h.views.Submit(ctx, id, req.Query())
	switch {
	case errors.Is(err, view.ErrInvalidID):
		response.BadRequest(w, r, "invalid view id", []models.FieldError{
			{Field: "viewId", Message: "must be 1-64 letters, digits, '-' or '_'", Code: "INVALID"},
		})
		return
	case errors.Is(err, view.ErrTooManyViews):
		response.ServiceUnavailable(w, r, "too many active views, try again later")
		return
	case err != nil:
		h.logger.Error().Err(err).Str("view_id", id).Msg("failed to submit view query")
		response.InternalError(w, r, "the query could not be submitted")
		return
	}

	response.Accepted(w, r, "/v1/views/"+id, models.ViewQueryAccepted{ViewID: id, Generation: gen})
}

// Get handles GET /v1/views/{viewId}.
func (h *ViewHandler) Get(w http.ResponseWriter, r *http.Request) {
	snap, err := h.views.Snapshot(chi.URLParam(r, "viewId"))
	if err != nil {
		response.NotFound(w, r, "view not found")
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewTripResult(snap, true))
}

// Delete handles DELETE /v1/views/{viewId}.
func (h *ViewHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.views.Delete(chi.URLParam(r, "viewId")); err != nil {
		response.NotFound(w, r, "view not found")
		return
	}
	response.NoContent(w, r)
}
