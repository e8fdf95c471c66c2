package pipeline

import (
	"log/slog"
	"math"
	"sort"
	"strings"

	"cicerone/pkg/model"
)

// Score composition weights. Base confidence and cross-validation carry
// most of the signal; agreement, enrichment and flags adjust around them.
const (
	weightBase       = 0.40
	weightValidation = 0.35
	agreementStep    = 0.05
	agreementCap     = 0.20
	verifiedBonus    = 0.15
	ratingWeight     = 0.05
	inaccurateWeight = 0.20
	outOfRangeWeight = 0.30
)

// stageConsensus fuses all successful generations into one ranked list.
// Pure in-memory fold, no I/O.
func (p *Pipeline) stageConsensus(rc *Context) {
	ranked, total := fuse(rc.GenerationResults, rc.ValidationResults, rc.Request.MaxResults)
	rc.Ranked = ranked
	rc.TotalCandidates = total
	slog.Info("Pipeline: consensus complete",
		"request_id", rc.ID, "candidates", total, "ranked", len(ranked))
}

// candidateGroup accumulates every mention of one normalized place name.
type candidateGroup struct {
	key       string
	members   []*model.Recommendation
	providers map[string]struct{}
}

// fuse flattens successful provider outputs, groups them by normalized
// name, scores each group against the validation verdicts and returns the
// top maxResults groups plus the total candidate count before grouping.
func fuse(results []model.ProviderResult, validations []model.CrossValidationResult, maxResults int) ([]model.Recommendation, int) {
	groups := make(map[string]*candidateGroup)
	var order []string
	total := 0

	for ri := range results {
		res := &results[ri]
		if !res.Success {
			continue
		}
		for i := range res.Recommendations {
			rec := &res.Recommendations[i]
			total++
			key := model.NormalizeName(rec.Name)
			g, ok := groups[key]
			if !ok {
				g = &candidateGroup{key: key, providers: make(map[string]struct{})}
				groups[key] = g
				order = append(order, key)
			}
			g.members = append(g.members, rec)
			g.providers[rec.SourceProvider] = struct{}{}
		}
	}

	fused := make([]model.Recommendation, 0, len(order))
	for _, key := range order {
		fused = append(fused, scoreGroup(groups[key], validations))
	}

	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].Confidence != fused[j].Confidence {
			return fused[i].Confidence > fused[j].Confidence
		}
		return fused[i].AgreementCount > fused[j].AgreementCount
	})
	if maxResults > 0 && len(fused) > maxResults {
		fused = fused[:maxResults]
	}
	return fused, total
}

// scoreGroup folds one group and its validation entries into a single
// merged recommendation carrying the consensus score.
func scoreGroup(g *candidateGroup, validations []model.CrossValidationResult) model.Recommendation {
	rep := g.members[0]
	var baseSum float64
	for _, m := range g.members {
		baseSum += m.Confidence
		if m.Confidence > rep.Confidence {
			rep = m
		}
	}
	baseScore := baseSum / float64(len(g.members))

	agreement := len(g.providers)
	agreementBonus := math.Min(float64(agreement-1)*agreementStep, agreementCap)

	// Validation entries for this group across every (validator, source)
	// pair. Absent entries fall back to the base score, so unvalidated
	// candidates are neither punished nor boosted.
	var vSum, inaccurate, outOfRange float64
	entries := 0
	for vi := range validations {
		for ei := range validations[vi].Items {
			entry := &validations[vi].Items[ei]
			if model.NormalizeName(entry.Original.Name) != g.key {
				continue
			}
			entries++
			vSum += entry.ValidationScore
			if entry.FlaggedInaccurate {
				inaccurate++
			}
			if entry.FlaggedOutOfRange {
				outOfRange++
			}
		}
	}
	validationScore := baseScore
	flagPenalty := 0.0
	if entries > 0 {
		validationScore = vSum / float64(entries)
		flagPenalty = inaccurateWeight*(inaccurate/float64(entries)) +
			outOfRangeWeight*(outOfRange/float64(entries))
	}

	realPlaceBonus := 0.0
	ratingBonus := 0.0
	if rep.EnrichedPlace != nil {
		if rep.EnrichedPlace.IsVerifiedRealPlace {
			realPlaceBonus = verifiedBonus
		}
		if rep.EnrichedPlace.Rating != nil {
			ratingBonus = ratingWeight * (*rep.EnrichedPlace.Rating / 5.0)
		}
	}

	final := round3(model.Clamp01(
		baseScore*weightBase + validationScore*weightValidation +
			agreementBonus + realPlaceBonus + ratingBonus - flagPenalty))

	merged := model.Recommendation{
		Name:           rep.Name,
		Description:    rep.Description,
		Category:       rep.Category,
		Confidence:     final,
		Level:          model.LevelForScore(final),
		Address:        rep.Address,
		Latitude:       rep.Latitude,
		Longitude:      rep.Longitude,
		SourceProvider: rep.SourceProvider,
		EnrichedPlace:  rep.EnrichedPlace,
		Highlights:     mergeHighlights(g.members),
		WhyRecommended: firstWhy(g.members),
		AgreementCount: agreement,
	}
	return merged
}

// mergeHighlights unions highlights across the group, deduplicating
// case-insensitively and keeping first-seen order, capped at 5.
func mergeHighlights(members []*model.Recommendation) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range members {
		for _, h := range m.Highlights {
			key := strings.ToLower(strings.TrimSpace(h))
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, h)
			if len(out) == 5 {
				return out
			}
		}
	}
	return out
}

// firstWhy returns the first non-empty whyRecommended across the group.
func firstWhy(members []*model.Recommendation) string {
	for _, m := range members {
		if m.WhyRecommended != "" {
			return m.WhyRecommended
		}
	}
	return ""
}

// round3 rounds half away from zero to three decimals, matching the grid
// rounding used for cache keys.
func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
