package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cicerone/pkg/model"
	"cicerone/pkg/version"
)

// NewServer creates and configures the HTTP server.
// It accepts handlers for all API endpoints and a shutdownFunc for graceful shutdown.
func NewServer(addr string, recs *RecommendationsHandler, geo *GeocodeHandler, cacheH *CacheHandler, stats *StatsHandler, shutdown func()) *http.Server {
	mux := http.NewServeMux()

	// 1. Health Endpoint
	mux.HandleFunc("GET /api/health", handleHealth)

	// 2. Recommendations Endpoint
	mux.HandleFunc("POST /api/recommendations", recs.HandleRecommendations)

	// 2b. Categories Endpoint
	mux.HandleFunc("GET /api/categories", handleCategories)

	// 2c. Geocode Endpoint
	mux.HandleFunc("GET /api/geocode/search", geo.HandleSearch)

	// 2d. Cache Endpoints
	mux.HandleFunc("GET /api/cache/stats", cacheH.HandleStats)
	mux.HandleFunc("POST /api/cache/purge", cacheH.HandlePurge)

	// 2e. Stats Endpoint
	mux.Handle("GET /api/stats", stats)

	// 2f. Log Endpoint
	mux.HandleFunc("GET /api/log/latest", handleLatestLog)

	// 2g. Metrics Endpoint
	mux.Handle("GET /metrics", promhttp.Handler())

	// 3. Shutdown Endpoint
	mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
		slog.Info("Graceful shutdown initiated via API")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("Shutting down...")); err != nil {
			slog.Error("Failed to write shutdown response", "error", err)
		}
		// Call shutdown in a goroutine to allow response to flush
		go func() {
			time.Sleep(100 * time.Millisecond)
			shutdown()
		}()
	})

	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := fmt.Fprintf(w, `{"status": "ok", "version": "%s"}`, version.Version); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.Categories())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeErrors(w http.ResponseWriter, status int, msgs []string) {
	writeJSON(w, status, map[string][]string{"errors": msgs})
}
