package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/trafficroute/trafficroute/internal/api/middleware"
	"github.com/trafficroute/trafficroute/internal/api/models"
	"github.com/trafficroute/trafficroute/internal/api/response"
	"github.com/trafficroute/trafficroute/internal/trip"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// TripHandler handles one-shot route predictions.
type TripHandler struct {
	newOrchestrator func() *trip.Orchestrator
	logger          zerolog.Logger

	// pending tracks history recordings of finished one-shot queries.
	pending sync.WaitGroup
}

// NewTripHandler creates a TripHandler. newOrchestrator is called once per
// request.
func NewTripHandler(newOrchestrator func() *trip.Orchestrator, logger zerolog.Logger) *TripHandler {
	return &TripHandler{newOrchestrator: newOrchestrator, logger: logger}
}

// Predict handles POST /v1/routes:predict. It runs the query to completion:
// 200 when ready, 400 for a missing location, 404 when no route exists and
// 502 when the prediction fails, with the route still in the body.
func (h *TripHandler) Predict(w http.ResponseWriter, r *http.Request) {
	req, ok := decodePredictRequest(w, r)
	if !ok {
		return
	}

	orch := h.newOrchestrator()
	snap, err := orch.Submit(r.Context(), req.Query())

	h.pending.Add(1)
	go func() {
		defer h.pending.Done()
		_ = orch.Wait(context.Background())
	}()

	writeSnapshot(w, r, snap, err, h.logger)
}

// Wait blocks until history recordings of finished queries are done or
// ctx is done.
func (h *TripHandler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// writeSnapshot maps a terminal snapshot and its error to a response.
func writeSnapshot(w http.ResponseWriter, r *http.Request, snap trip.Snapshot, err error, logger zerolog.Logger) {
	if err == nil {
		response.JSON(w, r, http.StatusOK, models.NewTripResult(snap, true))
		return
	}

	var stageErr *trip.StageError
	if !errors.As(err, &stageErr) {
		logger.Error().Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Msg("query failed unexpectedly")
		response.InternalError(w, r, "the query could not be completed")
		return
	}

	switch stageErr.Stage {
	case trip.StageValidation:
		response.BadRequest(w, r, stageErr.UserMessage(), fieldErrors(stageErr))
	case trip.StageRouteLookup:
		response.NoRoute(w, r, stageErr.UserMessage())
	default:
		response.BadGateway(w, r, stageErr.UserMessage(), models.NewTripResult(snap, true))
	}
}

func decodePredictRequest(w http.ResponseWriter, r *http.Request) (models.PredictRequest, bool) {
	var req models.PredictRequest

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return req, false
	}
	return req, true
}

// fieldErrors lists the missing locations of a validation failure.
func fieldErrors(err error) []models.FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}

	out := make([]models.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, models.FieldError{
			Field:   jsonName(fe.Field()),
			Message: "is " + fe.Tag(),
			Code:    strings.ToUpper(fe.Tag()),
		})
	}
	return out
}

func jsonName(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}
