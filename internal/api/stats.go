package api

import (
	"net/http"

	"cicerone/pkg/tracker"
)

// StatsHandler serves per-provider usage counters.
type StatsHandler struct {
	tracker   *tracker.Tracker
	providers []string
}

// NewStatsHandler creates a new StatsHandler. providers lists the
// configured LLM provider names in registration order.
func NewStatsHandler(t *tracker.Tracker, providers []string) *StatsHandler {
	return &StatsHandler{
		tracker:   t,
		providers: providers,
	}
}

type ProviderStatsDTO struct {
	CacheHits     int64 `json:"cache_hits"`
	CacheMisses   int64 `json:"cache_misses"`
	APISuccess    int64 `json:"api_success"`
	APIZeroResult int64 `json:"api_zero"`
	APIFailures   int64 `json:"api_errors"`
	HitRate       int64 `json:"hit_rate"`
}

type StatsResponse struct {
	Providers    map[string]ProviderStatsDTO `json:"providers"`
	LLMProviders []string                    `json:"llm_providers"`
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snapshot := h.tracker.Snapshot()

	resp := StatsResponse{
		Providers:    make(map[string]ProviderStatsDTO),
		LLMProviders: h.providers,
	}

	for provider, stats := range snapshot {
		totalCache := stats.CacheHits + stats.CacheMisses
		hitRate := int64(0)
		if totalCache > 0 {
			hitRate = (stats.CacheHits * 100) / totalCache
		}
		resp.Providers[provider] = ProviderStatsDTO{
			CacheHits:     stats.CacheHits,
			CacheMisses:   stats.CacheMisses,
			APISuccess:    stats.APISuccess,
			APIZeroResult: stats.APIZeroResult,
			APIFailures:   stats.APIFailures,
			HitRate:       hitRate,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
