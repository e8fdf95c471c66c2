package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cicerone/pkg/llm"
	"cicerone/pkg/model"
	"cicerone/pkg/prompts"
)

// stageGenerate fans the same prompt out to every available provider and
// joins on all of them. Individual failures become ProviderResult records;
// only a completely empty harvest is fatal. Cancellation of ctx surfaces as
// such rather than masquerading as provider exhaustion.
func (p *Pipeline) stageGenerate(ctx context.Context, rc *Context) error {
	available := p.availableProviders(rc.Scope)
	if len(available) == 0 {
		slog.Warn("Pipeline: no providers available", "request_id", rc.ID)
		return ErrNoProviders
	}

	prompt, err := p.prompts.Generate(generateData(rc))
	if err != nil {
		return fmt.Errorf("render generation prompt: %w", err)
	}

	results := make([]model.ProviderResult, len(available))
	var wg sync.WaitGroup
	for i, prov := range available {
		wg.Add(1)
		go func(i int, prov llm.Provider) {
			defer wg.Done()
			results[i] = p.generateOne(ctx, rc, prov, prompt)
		}(i, prov)
	}
	wg.Wait()

	rc.GenerationResults = results

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	slog.Info("Pipeline: generation complete",
		"request_id", rc.ID, "providers", len(available), "succeeded", succeeded)

	if succeeded == 0 {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrNoProviders
	}
	return nil
}

// generateOne runs a single provider call and converts the outcome into a
// ProviderResult. Errors are captured, never propagated.
func (p *Pipeline) generateOne(ctx context.Context, rc *Context, prov llm.Provider, prompt string) model.ProviderResult {
	start := time.Now()
	payload, err := prov.Generate(ctx, rc.Scope, prompt)
	elapsed := time.Since(start)

	if err != nil {
		slog.Warn("Pipeline: provider generation failed",
			"request_id", rc.ID, "provider", prov.Name(), "elapsed", elapsed, "error", err)
		return model.ProviderResult{
			ProviderName: prov.Name(),
			Success:      false,
			ErrorMessage: err.Error(),
			Elapsed:      elapsed,
		}
	}

	recs := payload.ToRecommendations(prov.Name())
	for i := range recs {
		recs[i].Category = rc.Request.Category
	}
	if len(recs) == 0 {
		slog.Warn("Pipeline: provider returned no recommendations",
			"request_id", rc.ID, "provider", prov.Name(), "elapsed", elapsed)
		return model.ProviderResult{
			ProviderName: prov.Name(),
			Success:      false,
			ErrorMessage: "no recommendations in response",
			RawResponse:  payload.Raw,
			Elapsed:      elapsed,
		}
	}

	slog.Debug("Pipeline: provider generation succeeded",
		"request_id", rc.ID, "provider", prov.Name(), "count", len(recs), "elapsed", elapsed)
	return model.ProviderResult{
		ProviderName:    prov.Name(),
		Success:         true,
		Recommendations: recs,
		RawResponse:     payload.Raw,
		Elapsed:         elapsed,
	}
}

// generateData maps the request context onto the generation prompt inputs.
func generateData(rc *Context) prompts.GenerateData {
	cats := make([]string, len(rc.Request.Categories))
	for i, c := range rc.Request.Categories {
		cats[i] = string(c)
	}
	return prompts.GenerateData{
		Location:       rc.ResolvedAddress,
		HasCoordinates: rc.GeocodingAvailable,
		Latitude:       rc.Latitude,
		Longitude:      rc.Longitude,
		RadiusMeters:   rc.Request.RadiusMeters,
		Categories:     cats,
	}
}
