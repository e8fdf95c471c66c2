// Package pipeline implements the recommendation consensus pipeline: an
// eight-stage orchestration that fans a request out to every available LLM
// provider, cross-validates their answers against each other, fuses them
// into one ranked list backed by real-place evidence, and caches the result
// on a geographic grid.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cicerone/pkg/creds"
	"cicerone/pkg/geocode"
	"cicerone/pkg/llm"
	"cicerone/pkg/model"
	"cicerone/pkg/prompts"
)

// ErrNoProviders is the fatal outcome of stage 3: no provider produced a
// single recommendation, so there is nothing to score.
var ErrNoProviders = errors.New("no providers produced recommendations")

// Geocoder resolves addresses to coordinates and back.
type Geocoder interface {
	Forward(ctx context.Context, address string) (*geocode.Location, error)
	Reverse(ctx context.Context, lat, lng float64) (string, error)
}

// PlacesSource returns nearby real-world places for enrichment.
type PlacesSource interface {
	Available() bool
	SearchNearby(ctx context.Context, lat, lng float64, category model.Category, radiusMeters int) ([]model.Place, error)
}

// ResponseCache stores consolidated responses under canonical keys.
type ResponseCache interface {
	Key(lat, lng float64, hasCoords bool, address string, categories []model.Category) string
	Lookup(ctx context.Context, key string) (*model.Response, bool)
	Store(ctx context.Context, key string, resp *model.Response) error
}

// Pipeline wires the stages to their collaborators. One Pipeline serves all
// requests; per-request state lives in Context.
type Pipeline struct {
	geocoder  Geocoder
	cache     ResponseCache
	places    PlacesSource
	providers []llm.Provider
	prompts   *prompts.Manager
}

// New creates a pipeline. geocoder, cache and places may be nil; the
// corresponding stages then degrade the way an upstream outage would.
func New(geocoder Geocoder, cache ResponseCache, places PlacesSource, providers []llm.Provider, pm *prompts.Manager) *Pipeline {
	return &Pipeline{
		geocoder:  geocoder,
		cache:     cache,
		places:    places,
		providers: providers,
		prompts:   pm,
	}
}

// Providers returns the registered adapters in fan-out order.
func (p *Pipeline) Providers() []llm.Provider {
	return p.providers
}

// availableProviders filters the registry by the request's credential scope.
func (p *Pipeline) availableProviders(scope *creds.Scope) []llm.Provider {
	var out []llm.Provider
	for _, prov := range p.providers {
		if prov.IsAvailable(scope) {
			out = append(out, prov)
		}
	}
	return out
}

// Run executes the pipeline for one request. The request must be normalized.
// Cancellation of ctx aborts all in-flight provider calls; the three fatal
// outcomes are a request without any location, ErrNoProviders after stage 3,
// and a tripped context.
func (p *Pipeline) Run(ctx context.Context, req *model.Request) (*model.Response, error) {
	if !req.HasCoordinates() && req.Address == "" {
		return nil, model.ErrMissingLocation
	}

	rc := newContext(req)
	log := slog.With("request_id", rc.ID)
	log.Info("Pipeline: request started",
		"categories", req.Categories, "max_results", req.MaxResults, "radius_m", req.RadiusMeters)

	// 1. Geocode
	p.stageGeocode(ctx, rc)

	// 2. CacheCheck
	p.stageCacheCheck(ctx, rc)
	if rc.CacheHit {
		log.Info("Pipeline: served from cache", "key", rc.CacheKey)
		return rc.CachedResponse, nil
	}

	// 3. ParallelGeneration
	if err := p.stageGenerate(ctx, rc); err != nil {
		return nil, err
	}

	// 4. PlacesEnrichment
	p.stageEnrich(ctx, rc)

	// 5. CrossValidation
	p.stageValidate(ctx, rc)

	// 6. ConsensusScoring
	p.stageConsensus(rc)

	// 7. Synthesis
	p.stageSynthesize(ctx, rc)

	resp := p.buildResponse(rc)

	// 8. CacheWrite
	p.stageCacheWrite(ctx, rc, resp)

	log.Info("Pipeline: request completed",
		"recommendations", len(resp.Recommendations),
		"providers_used", resp.Metadata.ProvidersUsed,
		"elapsed_ms", resp.Metadata.ElapsedMs)
	return resp, nil
}

// stageGeocode resolves the request location. With coordinates present the
// stage only decorates them with a display name; reverse failure falls back
// to a formatted coordinate string. An address that cannot be resolved
// leaves (0,0) and flags geocoding unavailable for the stages downstream.
func (p *Pipeline) stageGeocode(ctx context.Context, rc *Context) {
	req := rc.Request

	if req.HasCoordinates() {
		rc.Latitude = *req.Latitude
		rc.Longitude = *req.Longitude
		rc.GeocodingAvailable = true

		if p.geocoder != nil {
			name, err := p.geocoder.Reverse(ctx, rc.Latitude, rc.Longitude)
			if err == nil && name != "" {
				rc.ResolvedAddress = name
				return
			}
			slog.Warn("Pipeline: reverse geocoding failed", "request_id", rc.ID, "error", err)
		}
		rc.ResolvedAddress = fmt.Sprintf("%.4f, %.4f", rc.Latitude, rc.Longitude)
		return
	}

	if p.geocoder != nil {
		loc, err := p.geocoder.Forward(ctx, req.Address)
		if err == nil {
			rc.Latitude = loc.Latitude
			rc.Longitude = loc.Longitude
			rc.ResolvedAddress = loc.DisplayName
			rc.GeocodingAvailable = true
			return
		}
		slog.Warn("Pipeline: forward geocoding failed", "request_id", rc.ID, "address", req.Address, "error", err)
	}

	rc.GeocodingAvailable = false
	rc.ResolvedAddress = req.Address
}

// stageCacheCheck computes the canonical key and performs a single read
// unless the request forces a refresh.
func (p *Pipeline) stageCacheCheck(ctx context.Context, rc *Context) {
	if p.cache == nil {
		return
	}
	rc.CacheKey = p.cache.Key(rc.Latitude, rc.Longitude, rc.GeocodingAvailable, rc.Request.Address, rc.Request.Categories)

	if rc.Request.ForceRefresh {
		slog.Debug("Pipeline: cache bypassed (forceRefresh)", "request_id", rc.ID, "key", rc.CacheKey)
		return
	}
	if resp, ok := p.cache.Lookup(ctx, rc.CacheKey); ok {
		rc.CacheHit = true
		rc.CachedResponse = resp
		return
	}
	slog.Debug("Pipeline: cache miss", "request_id", rc.ID, "key", rc.CacheKey)
}

// stageCacheWrite persists the response under the canonical key. The write
// is awaited; failure is logged and swallowed.
func (p *Pipeline) stageCacheWrite(ctx context.Context, rc *Context, resp *model.Response) {
	if p.cache == nil || rc.CacheKey == "" {
		return
	}
	if err := p.cache.Store(ctx, rc.CacheKey, resp); err != nil {
		slog.Warn("Pipeline: cache write failed", "request_id", rc.ID, "key", rc.CacheKey, "error", err)
	}
}

// buildResponse assembles the final response from the accumulated state.
func (p *Pipeline) buildResponse(rc *Context) *model.Response {
	var used, failed []string
	for _, r := range rc.GenerationResults {
		if r.Success {
			used = append(used, r.ProviderName)
		} else {
			failed = append(failed, r.ProviderName)
		}
	}

	return &model.Response{
		Latitude:        rc.Latitude,
		Longitude:       rc.Longitude,
		ResolvedAddress: rc.ResolvedAddress,
		Category:        rc.Request.Category,
		Categories:      rc.Request.Categories,
		Recommendations: rc.Ranked,
		Metadata: model.Metadata{
			ProvidersUsed:        used,
			ProvidersFailed:      failed,
			GooglePlacesEnriched: rc.GoogleEnriched,
			TotalCandidates:      rc.TotalCandidates,
			ElapsedMs:            time.Since(rc.StartedAt).Milliseconds(),
			SynthesizedBy:        rc.SynthesizedBy,
		},
		FromCache:   false,
		GeneratedAt: time.Now().UTC(),
	}
}
