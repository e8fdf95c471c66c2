package pipeline

import (
	"time"

	"github.com/google/uuid"

	"cicerone/pkg/creds"
	"cicerone/pkg/model"
)

// Context is the mutable per-request state threaded through the stages.
// It is created by Run, written only by stages in their declared order, and
// dropped once the response is built. Nothing here is shared across
// requests; concurrent stage tasks write disjoint slots.
type Context struct {
	ID      string
	Request *model.Request
	Scope   *creds.Scope

	StartedAt time.Time

	// Stage 1: Geocode
	Latitude           float64
	Longitude          float64
	ResolvedAddress    string
	GeocodingAvailable bool

	// Stage 2: CacheCheck
	CacheKey       string
	CacheHit       bool
	CachedResponse *model.Response

	// Stage 3: ParallelGeneration
	GenerationResults []model.ProviderResult

	// Stage 4: PlacesEnrichment
	GoogleEnriched bool
	NearbyPlaces   []model.Place

	// Stage 5: CrossValidation
	ValidationResults []model.CrossValidationResult

	// Stage 6: ConsensusScoring
	Ranked          []model.Recommendation
	TotalCandidates int

	// Stage 7: Synthesis
	SynthesizedBy string
}

// newContext builds the state for one request. The request must already be
// normalized; the credential scope snapshots userApiKeys so concurrent
// requests stay isolated.
func newContext(req *model.Request) *Context {
	return &Context{
		ID:        uuid.NewString(),
		Request:   req,
		Scope:     creds.NewScope(req.UserAPIKeys),
		StartedAt: time.Now(),
	}
}

// successfulResults returns the generation results that produced at least
// one recommendation, in fan-out order.
func (c *Context) successfulResults() []model.ProviderResult {
	var out []model.ProviderResult
	for _, r := range c.GenerationResults {
		if r.Success && len(r.Recommendations) > 0 {
			out = append(out, r)
		}
	}
	return out
}
