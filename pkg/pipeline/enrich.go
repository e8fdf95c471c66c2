package pipeline

import (
	"context"
	"log/slog"

	"cicerone/pkg/places"
)

// stageEnrich fetches real places around the resolved point and attaches
// the best match to each recommendation. The whole stage is skipped when
// geocoding failed or no places provider is configured, and any lookup
// failure degrades to an unenriched response.
func (p *Pipeline) stageEnrich(ctx context.Context, rc *Context) {
	if !rc.GeocodingAvailable {
		slog.Debug("Pipeline: enrichment skipped, no coordinates", "request_id", rc.ID)
		return
	}
	if p.places == nil || !p.places.Available() {
		slog.Debug("Pipeline: enrichment skipped, no places provider", "request_id", rc.ID)
		return
	}

	// The first requested category drives the nearby search; All expands
	// to a multi-type union inside the client.
	category := rc.Request.Categories[0]
	nearby, err := p.places.SearchNearby(ctx, rc.Latitude, rc.Longitude, category, rc.Request.RadiusMeters)
	if err != nil {
		slog.Warn("Pipeline: places lookup failed", "request_id", rc.ID, "error", err)
		return
	}
	rc.NearbyPlaces = nearby
	rc.GoogleEnriched = true

	matched := 0
	for ri := range rc.GenerationResults {
		res := &rc.GenerationResults[ri]
		if !res.Success {
			continue
		}
		for i := range res.Recommendations {
			if place := places.BestMatch(res.Recommendations[i].Name, nearby); place != nil {
				res.Recommendations[i].EnrichedPlace = place
				matched++
			}
		}
	}
	slog.Info("Pipeline: enrichment complete",
		"request_id", rc.ID, "places", len(nearby), "matched", matched)
}
