package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"cicerone/pkg/geocode"
)

// Suggester resolves free-text queries to candidate locations.
type Suggester interface {
	Suggest(ctx context.Context, query string, limit int) ([]geocode.Location, error)
}

// GeocodeHandler handles address autocomplete requests.
type GeocodeHandler struct {
	geocoder Suggester
}

// NewGeocodeHandler creates a new GeocodeHandler.
func NewGeocodeHandler(g Suggester) *GeocodeHandler {
	return &GeocodeHandler{geocoder: g}
}

// HandleSearch handles GET /api/geocode/search.
func (h *GeocodeHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}

	limit := 5
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		val, err := strconv.Atoi(limitStr)
		if err != nil || val < 1 || val > 20 {
			writeError(w, http.StatusBadRequest, "limit must be an integer between 1 and 20")
			return
		}
		limit = val
	}

	results, err := h.geocoder.Suggest(r.Context(), query, limit)
	if err != nil {
		slog.Error("API: geocode search failed", "query", query, "error", err)
		writeError(w, http.StatusBadGateway, "geocoder unavailable")
		return
	}

	writeJSON(w, http.StatusOK, results)
}
