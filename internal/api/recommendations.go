package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"cicerone/pkg/model"
	"cicerone/pkg/pipeline"
)

// Recommender runs the consensus pipeline for one request.
type Recommender interface {
	Run(ctx context.Context, req *model.Request) (*model.Response, error)
}

// RecommendationsHandler handles recommendation requests.
type RecommendationsHandler struct {
	pipeline Recommender
	validate *validator.Validate
}

// NewRecommendationsHandler creates a new RecommendationsHandler.
func NewRecommendationsHandler(p Recommender) *RecommendationsHandler {
	return &RecommendationsHandler{
		pipeline: p,
		validate: validator.New(),
	}
}

// HandleRecommendations handles POST /api/recommendations.
func (h *RecommendationsHandler) HandleRecommendations(w http.ResponseWriter, r *http.Request) {
	var req model.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if msgs := h.validateRequest(&req); len(msgs) > 0 {
		writeErrors(w, http.StatusBadRequest, msgs)
		return
	}

	if err := req.Normalize(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	slog.Info("API: recommendations request",
		"has_coords", req.HasCoordinates(),
		"address", req.Address,
		"categories", req.Categories,
		"force_refresh", req.ForceRefresh)

	resp, err := h.pipeline.Run(r.Context(), &req)
	if err != nil {
		h.writeRunError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// validateRequest applies the field tags plus the cross-field location
// check and returns one message per violation.
func (h *RecommendationsHandler) validateRequest(req *model.Request) []string {
	var msgs []string

	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				msgs = append(msgs, fieldMessage(fe))
			}
		} else {
			msgs = append(msgs, err.Error())
		}
	}

	if !req.HasCoordinates() && req.Address == "" {
		msgs = append(msgs, model.ErrMissingLocation.Error())
	}

	return msgs
}

func (h *RecommendationsHandler) writeRunError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrMissingLocation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		slog.Warn("API: recommendations request cancelled", "error", err)
		writeError(w, http.StatusGatewayTimeout, "request cancelled or timed out")
	case errors.Is(err, pipeline.ErrNoProviders):
		slog.Error("API: recommendations exhausted all providers")
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		slog.Error("API: recommendations request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gte":
		return fmt.Sprintf("%s must be >= %s", fe.Field(), fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
