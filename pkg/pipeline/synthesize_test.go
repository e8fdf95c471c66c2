package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"cicerone/pkg/model"
)

func rankedContext(t *testing.T, recs ...model.Recommendation) *Context {
	t.Helper()
	rc := newContext(coordRequest(t, 43.477, -79.76, model.CategoryAll))
	rc.ResolvedAddress = "Testville"
	rc.Ranked = recs
	return rc
}

func TestSynthesizePolishesMatchedEntries(t *testing.T) {
	alpha := &mockProvider{name: "alpha", enabled: true,
		synthesizeJSON: `{"recommendations":[` +
			`{"name":"JOE'S DINER","description":"Rewritten diner copy","highlights":["h1","h2","h3","h4","h5","h6"],"whyRecommended":"fresh angle"},` +
			`{"name":"harbour lights","description":"","whyRecommended":"sharper why"}]}`}
	p := newTestPipeline(t, nil, nil, nil, alpha)

	joe := rec("Joe's Diner", "alpha", 0.7)
	joe.Description, joe.Highlights, joe.WhyRecommended = "old copy", []string{"a"}, "old why"
	harbour := rec("Harbour Lights", "alpha", 0.6)
	harbour.Description, harbour.Highlights, harbour.WhyRecommended = "keep me", []string{"h"}, "orig"

	rc := rankedContext(t, joe, harbour)
	rc.GenerationResults = []model.ProviderResult{
		{ProviderName: "alpha", Success: true, Elapsed: 5 * time.Millisecond},
	}

	p.stageSynthesize(context.Background(), rc)

	if rc.SynthesizedBy != "alpha" {
		t.Errorf("synthesizedBy = %q, want alpha", rc.SynthesizedBy)
	}
	if len(rc.Ranked) != 2 || rc.Ranked[0].Name != "Joe's Diner" || rc.Ranked[1].Name != "Harbour Lights" {
		t.Fatalf("ranked list reordered or resized: %+v", rc.Ranked)
	}

	got := rc.Ranked[0]
	if got.Description != "Rewritten diner copy" || got.WhyRecommended != "fresh angle" {
		t.Errorf("joe polish = %q / %q", got.Description, got.WhyRecommended)
	}
	if len(got.Highlights) != 5 {
		t.Errorf("joe highlights = %d, want capped at 5", len(got.Highlights))
	}

	// Empty synthesized fields must not blank the consensus text.
	kept := rc.Ranked[1]
	if kept.Description != "keep me" {
		t.Errorf("harbour description = %q, want preserved", kept.Description)
	}
	if len(kept.Highlights) != 1 || kept.Highlights[0] != "h" {
		t.Errorf("harbour highlights = %v, want preserved", kept.Highlights)
	}
	if kept.WhyRecommended != "sharper why" {
		t.Errorf("harbour why = %q, want the non-empty replacement", kept.WhyRecommended)
	}

	for _, r := range rc.Ranked {
		if r.SourceProvider != "Consensus" {
			t.Errorf("%s sourceProvider = %q, want Consensus", r.Name, r.SourceProvider)
		}
	}
}

func TestSynthesizeFailureLeavesListUntouched(t *testing.T) {
	alpha := &mockProvider{name: "alpha", enabled: true, synthesizeErr: errors.New("model offline")}
	p := newTestPipeline(t, nil, nil, nil, alpha)

	original := rec("Joe's Diner", "alpha", 0.7)
	original.Description = "consensus copy"

	rc := rankedContext(t, original)
	rc.GenerationResults = []model.ProviderResult{
		{ProviderName: "alpha", Success: true, Elapsed: time.Millisecond},
	}

	p.stageSynthesize(context.Background(), rc)

	if rc.SynthesizedBy != "Consensus" {
		t.Errorf("synthesizedBy = %q, want Consensus", rc.SynthesizedBy)
	}
	got := rc.Ranked[0]
	if got.Description != "consensus copy" || got.SourceProvider != "alpha" {
		t.Errorf("ranked entry changed after a failed synthesis: %+v", got)
	}
	if _, _, s := alpha.calls(); s != 1 {
		t.Errorf("synthesize calls = %d, want 1", s)
	}
}

func TestSynthesizePicksFastestStillAvailable(t *testing.T) {
	alpha := &mockProvider{name: "alpha", enabled: true, synthesizeJSON: `{"recommendations":[]}`}
	beta := &mockProvider{name: "beta", synthesizeJSON: `{"recommendations":[]}`} // disabled
	gamma := &mockProvider{name: "gamma", enabled: true, synthesizeJSON: `{"recommendations":[]}`}
	p := newTestPipeline(t, nil, nil, nil, alpha, beta, gamma)

	rc := rankedContext(t, rec("Spot", "alpha", 0.7))
	rc.GenerationResults = []model.ProviderResult{
		{ProviderName: "alpha", Success: true, Elapsed: 30 * time.Millisecond},
		{ProviderName: "beta", Success: true, Elapsed: 10 * time.Millisecond},
		{ProviderName: "gamma", Success: true, Elapsed: 20 * time.Millisecond},
	}

	p.stageSynthesize(context.Background(), rc)

	if rc.SynthesizedBy != "gamma" {
		t.Errorf("synthesizedBy = %q, want gamma (beta no longer available)", rc.SynthesizedBy)
	}
	if _, _, s := gamma.calls(); s != 1 {
		t.Errorf("gamma synthesize calls = %d, want 1", s)
	}
	if _, _, s := alpha.calls(); s != 0 {
		t.Errorf("alpha synthesize calls = %d, want 0", s)
	}
	if _, _, s := beta.calls(); s != 0 {
		t.Errorf("beta synthesize calls = %d, want 0", s)
	}
}

func TestSynthesizeTieBrokenByFirstOccurrence(t *testing.T) {
	alpha := &mockProvider{name: "alpha", enabled: true, synthesizeJSON: `{"recommendations":[]}`}
	beta := &mockProvider{name: "beta", enabled: true, synthesizeJSON: `{"recommendations":[]}`}
	p := newTestPipeline(t, nil, nil, nil, alpha, beta)

	rc := rankedContext(t, rec("Spot", "alpha", 0.7))
	rc.GenerationResults = []model.ProviderResult{
		{ProviderName: "alpha", Success: true, Elapsed: 10 * time.Millisecond},
		{ProviderName: "beta", Success: true, Elapsed: 10 * time.Millisecond},
	}

	p.stageSynthesize(context.Background(), rc)

	if rc.SynthesizedBy != "alpha" {
		t.Errorf("synthesizedBy = %q, want the first of the tied providers", rc.SynthesizedBy)
	}
}

func TestSynthesizeNothingToPolish(t *testing.T) {
	alpha := &mockProvider{name: "alpha", enabled: true, synthesizeJSON: `{"recommendations":[]}`}
	p := newTestPipeline(t, nil, nil, nil, alpha)

	rc := rankedContext(t)
	rc.GenerationResults = []model.ProviderResult{
		{ProviderName: "alpha", Success: true, Elapsed: time.Millisecond},
	}

	p.stageSynthesize(context.Background(), rc)

	if rc.SynthesizedBy != "Consensus" {
		t.Errorf("synthesizedBy = %q, want Consensus", rc.SynthesizedBy)
	}
	if _, _, s := alpha.calls(); s != 0 {
		t.Errorf("synthesize calls = %d, want 0 for an empty list", s)
	}
}
