// Package llm defines the provider abstraction shared by every model adapter
// and the parsing that turns raw model output into structured payloads.
// Model output is treated as untrusted text that merely claims to contain
// JSON.
package llm

import (
	"context"
	"strconv"
	"strings"

	"cicerone/pkg/creds"
	"cicerone/pkg/model"
)

// Provider is one LLM backend. Adapters are stateless values; per-request
// credentials arrive through the scope so concurrent requests stay isolated.
type Provider interface {
	Name() string
	IsAvailable(scope *creds.Scope) bool
	Generate(ctx context.Context, scope *creds.Scope, prompt string) (*GenerationPayload, error)
	Validate(ctx context.Context, scope *creds.Scope, prompt string) (*ValidationPayload, error)
	Synthesize(ctx context.Context, scope *creds.Scope, prompt string) (*SynthesisPayload, error)
}

// looseFloat tolerates numbers that arrive as JSON strings ("0.8").
type looseFloat float64

func (f *looseFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = looseFloat(v)
	return nil
}

// RecommendationItem is one entry of a generation response.
type RecommendationItem struct {
	Name            string      `json:"name"`
	Description     string      `json:"description"`
	Address         string      `json:"address"`
	Latitude        *looseFloat `json:"latitude"`
	Longitude       *looseFloat `json:"longitude"`
	ConfidenceScore *looseFloat `json:"confidenceScore"`
	Highlights      []string    `json:"highlights"`
	WhyRecommended  string      `json:"whyRecommended"`
}

// GenerationPayload is the parsed result of a generate call.
type GenerationPayload struct {
	Raw             string               `json:"-"`
	Recommendations []RecommendationItem `json:"recommendations"`
}

// ToRecommendations converts payload items into model records attributed to
// the given provider. Confidence is clamped and mapped to a level band.
func (p *GenerationPayload) ToRecommendations(provider string) []model.Recommendation {
	recs := make([]model.Recommendation, 0, len(p.Recommendations))
	for _, item := range p.Recommendations {
		score := 0.7
		if item.ConfidenceScore != nil {
			score = model.Clamp01(float64(*item.ConfidenceScore))
		}
		highlights := item.Highlights
		if len(highlights) > 5 {
			highlights = highlights[:5]
		}
		rec := model.Recommendation{
			Name:           item.Name,
			Description:    item.Description,
			Address:        item.Address,
			Confidence:     score,
			Level:          model.LevelForScore(score),
			SourceProvider: provider,
			Highlights:     highlights,
			WhyRecommended: item.WhyRecommended,
		}
		if item.Latitude != nil && item.Longitude != nil {
			lat, lng := float64(*item.Latitude), float64(*item.Longitude)
			rec.Latitude, rec.Longitude = &lat, &lng
		}
		recs = append(recs, rec)
	}
	return recs
}

// ValidationItem is one validator verdict keyed by place name.
type ValidationItem struct {
	Name              string      `json:"name"`
	ValidationScore   *looseFloat `json:"validationScore"`
	FlaggedInaccurate bool        `json:"flaggedAsInaccurate"`
	FlaggedOutOfRange bool        `json:"flaggedAsOutOfRange"`
	Comment           string      `json:"comment"`
}

// Score returns the clamped validation score, defaulting when absent.
func (v *ValidationItem) Score() float64 {
	if v.ValidationScore == nil {
		return 0.7
	}
	return model.Clamp01(float64(*v.ValidationScore))
}

// ValidationPayload is the parsed result of a validate call.
type ValidationPayload struct {
	Raw         string           `json:"-"`
	Validations []ValidationItem `json:"validations"`
}

// SynthesisItem carries the polished text for one ranked candidate.
type SynthesisItem struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Highlights     []string `json:"highlights"`
	WhyRecommended string   `json:"whyRecommended"`
}

// SynthesisPayload is the parsed result of a synthesize call.
type SynthesisPayload struct {
	Raw             string          `json:"-"`
	Recommendations []SynthesisItem `json:"recommendations"`
}
