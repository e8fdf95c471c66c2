package api

import (
	"log/slog"
	"net/http"

	"cicerone/pkg/cache"
	"cicerone/pkg/store"
)

// CacheHandler exposes response-cache statistics and maintenance.
type CacheHandler struct {
	store store.CacheStore
}

// NewCacheHandler creates a new CacheHandler.
func NewCacheHandler(st store.CacheStore) *CacheHandler {
	return &CacheHandler{store: st}
}

// HandleStats handles GET /api/cache/stats.
func (h *CacheHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.CacheStats(r.Context())
	if err != nil {
		slog.Error("API: cache stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "cache stats unavailable")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// HandlePurge handles POST /api/cache/purge. It drops every cached
// response, expired or not.
func (h *CacheHandler) HandlePurge(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.store.DeletePrefix(r.Context(), cache.Prefix())
	if err != nil {
		slog.Error("API: cache purge failed", "error", err)
		writeError(w, http.StatusInternalServerError, "cache purge failed")
		return
	}

	slog.Info("API: cache purged", "deleted", deleted)
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}
