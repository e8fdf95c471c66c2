package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"cicerone/pkg/llm"
	"cicerone/pkg/model"
	"cicerone/pkg/prompts"
)

// validationPair is one (validator, source) task of the cross-validation
// round. The prompt is rendered once per source list and shared by every
// validator of that list.
type validationPair struct {
	validator llm.Provider
	source    *model.ProviderResult
	prompt    string
}

// stageValidate has every available provider score every other provider's
// recommendation list. All pairs run concurrently; a failed pair yields an
// empty result rather than aborting the round. The stage is skipped when
// fewer than two providers succeeded, since there is nothing to cross.
func (p *Pipeline) stageValidate(ctx context.Context, rc *Context) {
	successful := rc.successfulResults()
	if len(successful) < 2 {
		slog.Debug("Pipeline: cross-validation skipped, fewer than two successful providers",
			"request_id", rc.ID)
		return
	}

	available := p.availableProviders(rc.Scope)
	var pairs []validationPair
	for si := range successful {
		src := &successful[si]
		prompt, err := p.prompts.Validate(validateData(rc, src))
		if err != nil {
			slog.Warn("Pipeline: validation prompt render failed",
				"request_id", rc.ID, "source", src.ProviderName, "error", err)
			continue
		}
		for _, v := range available {
			if v.Name() == src.ProviderName {
				continue
			}
			pairs = append(pairs, validationPair{validator: v, source: src, prompt: prompt})
		}
	}
	if len(pairs) == 0 {
		return
	}

	results := make([]model.CrossValidationResult, len(pairs))
	eg, gctx := errgroup.WithContext(ctx)
	for i := range pairs {
		eg.Go(func() error {
			results[i] = p.validateOne(gctx, rc, pairs[i])
			return nil
		})
	}
	_ = eg.Wait()

	rc.ValidationResults = append(rc.ValidationResults, results...)
	slog.Info("Pipeline: cross-validation complete",
		"request_id", rc.ID, "pairs", len(pairs))
}

// validateOne runs a single validator over a single source list and maps
// the verdicts back onto the source recommendations by normalized name.
// Verdicts that match nothing in the source list are discarded.
func (p *Pipeline) validateOne(ctx context.Context, rc *Context, pair validationPair) model.CrossValidationResult {
	out := model.CrossValidationResult{
		ValidatedBy:    pair.validator.Name(),
		OriginalSource: pair.source.ProviderName,
	}

	start := time.Now()
	payload, err := pair.validator.Validate(ctx, rc.Scope, pair.prompt)
	if err != nil {
		slog.Warn("Pipeline: validation call failed",
			"request_id", rc.ID, "validator", out.ValidatedBy, "source", out.OriginalSource,
			"elapsed", time.Since(start), "error", err)
		return out
	}

	byName := make(map[string]*model.Recommendation, len(pair.source.Recommendations))
	for i := range pair.source.Recommendations {
		rec := &pair.source.Recommendations[i]
		key := model.NormalizeName(rec.Name)
		if _, seen := byName[key]; !seen {
			byName[key] = rec
		}
	}

	for i := range payload.Validations {
		item := &payload.Validations[i]
		rec, ok := byName[model.NormalizeName(item.Name)]
		if !ok {
			continue
		}
		out.Items = append(out.Items, model.ValidationEntry{
			Original:          *rec,
			ValidationScore:   item.Score(),
			FlaggedInaccurate: item.FlaggedInaccurate,
			FlaggedOutOfRange: item.FlaggedOutOfRange,
			Comment:           item.Comment,
		})
	}
	return out
}

// validateData maps one source list onto the validation prompt inputs.
func validateData(rc *Context, src *model.ProviderResult) prompts.ValidateData {
	items := make([]prompts.Candidate, len(src.Recommendations))
	for i, rec := range src.Recommendations {
		items[i] = prompts.Candidate{
			Name:        rec.Name,
			Address:     rec.Address,
			Latitude:    rec.Latitude,
			Longitude:   rec.Longitude,
			Description: rec.Description,
		}
	}
	return prompts.ValidateData{
		Location:     rc.ResolvedAddress,
		RadiusMeters: rc.Request.RadiusMeters,
		Source:       src.ProviderName,
		Items:        items,
	}
}
