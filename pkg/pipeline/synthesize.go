package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"cicerone/pkg/llm"
	"cicerone/pkg/prompts"
)

// stageSynthesize sends the ranked list to the fastest provider from stage 3
// for a final text polish. The pass may rewrite description, highlights and
// whyRecommended but never reorders, adds or removes candidates. Any failure
// leaves the consensus text in place.
func (p *Pipeline) stageSynthesize(ctx context.Context, rc *Context) {
	rc.SynthesizedBy = "Consensus"
	if len(rc.Ranked) == 0 {
		return
	}

	prov := p.fastestProvider(rc)
	if prov == nil {
		slog.Debug("Pipeline: synthesis skipped, no provider available", "request_id", rc.ID)
		return
	}

	items := make([]prompts.RankedItem, len(rc.Ranked))
	for i, rec := range rc.Ranked {
		items[i] = prompts.RankedItem{
			Name:           rec.Name,
			Description:    rec.Description,
			Highlights:     rec.Highlights,
			WhyRecommended: rec.WhyRecommended,
		}
	}
	prompt, err := p.prompts.Synthesize(prompts.SynthesizeData{
		Location: rc.ResolvedAddress,
		Items:    items,
	})
	if err != nil {
		slog.Warn("Pipeline: synthesis prompt render failed", "request_id", rc.ID, "error", err)
		return
	}

	payload, err := prov.Synthesize(ctx, rc.Scope, prompt)
	if err != nil {
		slog.Warn("Pipeline: synthesis call failed",
			"request_id", rc.ID, "provider", prov.Name(), "error", err)
		return
	}

	polished := make(map[string]*llm.SynthesisItem, len(payload.Recommendations))
	for i := range payload.Recommendations {
		item := &payload.Recommendations[i]
		key := strings.ToLower(item.Name)
		if _, seen := polished[key]; !seen {
			polished[key] = item
		}
	}

	// Matched fields are replaced only when the synthesizer produced text,
	// so a sparse synthesis response cannot blank out consensus output.
	for i := range rc.Ranked {
		rec := &rc.Ranked[i]
		if item, ok := polished[strings.ToLower(rec.Name)]; ok {
			if item.Description != "" {
				rec.Description = item.Description
			}
			if len(item.Highlights) > 0 {
				highlights := item.Highlights
				if len(highlights) > 5 {
					highlights = highlights[:5]
				}
				rec.Highlights = highlights
			}
			if item.WhyRecommended != "" {
				rec.WhyRecommended = item.WhyRecommended
			}
		}
		rec.SourceProvider = "Consensus"
	}
	rc.SynthesizedBy = prov.Name()
	slog.Info("Pipeline: synthesis complete", "request_id", rc.ID, "provider", prov.Name())
}

// fastestProvider returns the still-available provider with the lowest
// measured generation latency, ties broken by first occurrence.
func (p *Pipeline) fastestProvider(rc *Context) llm.Provider {
	byName := make(map[string]llm.Provider, len(p.providers))
	for _, prov := range p.providers {
		byName[prov.Name()] = prov
	}

	var best llm.Provider
	var bestElapsed time.Duration
	for _, res := range rc.GenerationResults {
		if !res.Success {
			continue
		}
		prov, ok := byName[res.ProviderName]
		if !ok || !prov.IsAvailable(rc.Scope) {
			continue
		}
		if best == nil || res.Elapsed < bestElapsed {
			best = prov
			bestElapsed = res.Elapsed
		}
	}
	return best
}
