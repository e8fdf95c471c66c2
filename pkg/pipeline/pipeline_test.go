package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"cicerone/pkg/cache"
	"cicerone/pkg/creds"
	"cicerone/pkg/geocode"
	"cicerone/pkg/llm"
	"cicerone/pkg/model"
	"cicerone/pkg/prompts"
)

// --- Mock provider ---

type scopedCall struct {
	prompt string
	key    string
}

type mockProvider struct {
	name    string
	enabled bool

	generateJSON string
	generateErr  error
	generateWait time.Duration

	validateJSON string
	validateErr  error

	synthesizeJSON string
	synthesizeErr  error

	mu              sync.Mutex
	generateCalls   int
	validateCalls   int
	synthesizeCalls int
	generateSeen    []scopedCall
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) IsAvailable(scope *creds.Scope) bool {
	return m.enabled || scope.HasUserKey(m.name)
}

func (m *mockProvider) Generate(ctx context.Context, scope *creds.Scope, prompt string) (*llm.GenerationPayload, error) {
	m.mu.Lock()
	m.generateCalls++
	m.generateSeen = append(m.generateSeen, scopedCall{prompt: prompt, key: scope.Key(m.name, nil)})
	m.mu.Unlock()

	if m.generateWait > 0 {
		select {
		case <-time.After(m.generateWait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.generateErr != nil {
		return nil, m.generateErr
	}
	return llm.DecodeGeneration(m.generateJSON)
}

func (m *mockProvider) Validate(ctx context.Context, scope *creds.Scope, prompt string) (*llm.ValidationPayload, error) {
	m.mu.Lock()
	m.validateCalls++
	m.mu.Unlock()

	if m.validateErr != nil {
		return nil, m.validateErr
	}
	return llm.DecodeValidation(m.validateJSON)
}

func (m *mockProvider) Synthesize(ctx context.Context, scope *creds.Scope, prompt string) (*llm.SynthesisPayload, error) {
	m.mu.Lock()
	m.synthesizeCalls++
	m.mu.Unlock()

	if m.synthesizeErr != nil {
		return nil, m.synthesizeErr
	}
	return llm.DecodeSynthesis(m.synthesizeJSON)
}

func (m *mockProvider) calls() (generate, validate, synthesize int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generateCalls, m.validateCalls, m.synthesizeCalls
}

// --- Mock geocoder ---

type mockGeocoder struct {
	forward func(address string) (*geocode.Location, error)
	reverse func(lat, lng float64) (string, error)

	mu           sync.Mutex
	forwardCalls int
	reverseCalls int
}

func (m *mockGeocoder) Forward(_ context.Context, address string) (*geocode.Location, error) {
	m.mu.Lock()
	m.forwardCalls++
	m.mu.Unlock()
	if m.forward == nil {
		return nil, errors.New("forward not configured")
	}
	return m.forward(address)
}

func (m *mockGeocoder) Reverse(_ context.Context, lat, lng float64) (string, error) {
	m.mu.Lock()
	m.reverseCalls++
	m.mu.Unlock()
	if m.reverse == nil {
		return "", errors.New("reverse not configured")
	}
	return m.reverse(lat, lng)
}

// --- Mock places source ---

type mockPlaces struct {
	available bool
	places    []model.Place
	err       error

	mu           sync.Mutex
	calls        int
	lastCategory model.Category
}

func (m *mockPlaces) Available() bool { return m.available }

func (m *mockPlaces) SearchNearby(_ context.Context, lat, lng float64, category model.Category, radiusMeters int) ([]model.Place, error) {
	m.mu.Lock()
	m.calls++
	m.lastCategory = category
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.places, nil
}

// --- Mock response cache ---

// mockCache keeps decoded responses in a map and computes real keys, so
// the seeded-key scenarios exercise the production key format.
type mockCache struct {
	mu      sync.Mutex
	entries map[string]*model.Response
	keys    []string
	lookups int
	stores  int
}

func newMockCache() *mockCache {
	return &mockCache{entries: make(map[string]*model.Response)}
}

func (m *mockCache) Key(lat, lng float64, hasCoords bool, address string, categories []model.Category) string {
	var key string
	if hasCoords {
		key = cache.CoordinateKey(lat, lng, categories, 3)
	} else {
		key = cache.AddressKey(address, categories)
	}
	m.mu.Lock()
	m.keys = append(m.keys, key)
	m.mu.Unlock()
	return key
}

func (m *mockCache) Lookup(_ context.Context, key string) (*model.Response, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	resp, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	out := *resp
	out.FromCache = true
	return &out, true
}

func (m *mockCache) Store(_ context.Context, key string, resp *model.Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stores++
	m.entries[key] = resp
	return nil
}

// --- Helpers ---

func newTestPipeline(t *testing.T, gc Geocoder, rcache ResponseCache, pl PlacesSource, provs ...llm.Provider) *Pipeline {
	t.Helper()
	pm, err := prompts.NewManager()
	if err != nil {
		t.Fatalf("prompts.NewManager: %v", err)
	}
	return New(gc, rcache, pl, provs, pm)
}

func coordRequest(t *testing.T, lat, lng float64, cat model.Category) *model.Request {
	t.Helper()
	req := &model.Request{Latitude: &lat, Longitude: &lng, Category: cat}
	if err := req.Normalize(); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	return req
}

func addressRequest(t *testing.T, address string) *model.Request {
	t.Helper()
	req := &model.Request{Address: address}
	if err := req.Normalize(); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	return req
}

// --- Tests ---

func TestRunRequiresLocation(t *testing.T) {
	p := newTestPipeline(t, nil, nil, nil,
		&mockProvider{name: "alpha", enabled: true, generateJSON: `{"recommendations":[{"name":"X","confidenceScore":0.8}]}`})

	_, err := p.Run(context.Background(), &model.Request{})
	if !errors.Is(err, model.ErrMissingLocation) {
		t.Fatalf("error = %v, want ErrMissingLocation", err)
	}
}

func TestRunCoordinateCacheHitSkipsGeneration(t *testing.T) {
	mc := newMockCache()
	mc.entries["rec:v1:43.477:-79.760:Restaurant"] = &model.Response{
		Latitude:        43.477,
		Longitude:       -79.76,
		Recommendations: []model.Recommendation{{Name: "Seeded Spot", Confidence: 0.9}},
	}
	prov := &mockProvider{name: "alpha", enabled: true,
		generateJSON: `{"recommendations":[{"name":"Fresh Spot","confidenceScore":0.8}]}`}
	pl := &mockPlaces{available: true}
	p := newTestPipeline(t, nil, mc, pl, prov)

	resp, err := p.Run(context.Background(), coordRequest(t, 43.4769, -79.7596, model.CategoryRestaurant))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !resp.FromCache {
		t.Error("fromCache = false, want true")
	}
	if len(resp.Recommendations) != 1 || resp.Recommendations[0].Name != "Seeded Spot" {
		t.Errorf("recommendations = %+v, want the seeded entry", resp.Recommendations)
	}
	if g, v, s := prov.calls(); g != 0 || v != 0 || s != 0 {
		t.Errorf("provider calls = %d/%d/%d, want none on a cache hit", g, v, s)
	}
	if pl.calls != 0 {
		t.Errorf("places calls = %d, want 0 on a cache hit", pl.calls)
	}
	if mc.stores != 0 {
		t.Errorf("cache stores = %d, want 0 on a cache hit", mc.stores)
	}
}

func TestRunAddressFallbackKey(t *testing.T) {
	gc := &mockGeocoder{forward: func(string) (*geocode.Location, error) {
		return nil, errors.New("no results")
	}}
	mc := newMockCache()
	pl := &mockPlaces{available: true}
	prov := &mockProvider{name: "alpha", enabled: true,
		generateJSON: `{"recommendations":[{"name":"Somewhere Nice","confidenceScore":0.8}]}`,
		synthesizeJSON: `{"recommendations":[]}`}
	p := newTestPipeline(t, gc, mc, pl, prov)

	resp, err := p.Run(context.Background(), addressRequest(t, "Nowhereville"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantKey := cache.AddressKey("Nowhereville", []model.Category{model.CategoryAll})
	if len(mc.keys) == 0 || mc.keys[0] != wantKey {
		t.Errorf("cache key = %v, want %q", mc.keys, wantKey)
	}
	if !strings.HasPrefix(wantKey, "rec:v1:addr:") || !strings.HasSuffix(wantKey, ":All") {
		t.Errorf("address key %q has unexpected shape", wantKey)
	}
	if pl.calls != 0 {
		t.Errorf("places calls = %d, want 0 without coordinates", pl.calls)
	}
	if resp.Metadata.GooglePlacesEnriched {
		t.Error("googlePlacesEnriched = true, want false")
	}
	if resp.ResolvedAddress != "Nowhereville" {
		t.Errorf("resolvedAddress = %q, want the raw address", resp.ResolvedAddress)
	}
	if mc.stores != 1 {
		t.Errorf("cache stores = %d, want 1", mc.stores)
	}
}

func TestRunAllProvidersFail(t *testing.T) {
	mc := newMockCache()
	p := newTestPipeline(t, nil, mc, nil,
		&mockProvider{name: "alpha", enabled: true, generateErr: errors.New("quota exceeded")},
		&mockProvider{name: "beta", enabled: true, generateErr: errors.New("upstream 500")})

	_, err := p.Run(context.Background(), coordRequest(t, 43.477, -79.76, model.CategoryAll))
	if !errors.Is(err, ErrNoProviders) {
		t.Fatalf("error = %v, want ErrNoProviders", err)
	}
	if mc.stores != 0 {
		t.Errorf("cache stores = %d, want 0 when every provider fails", mc.stores)
	}
}

func TestRunNoAvailableProviders(t *testing.T) {
	prov := &mockProvider{name: "alpha",
		generateJSON: `{"recommendations":[{"name":"X","confidenceScore":0.8}]}`}
	p := newTestPipeline(t, nil, nil, nil, prov)

	_, err := p.Run(context.Background(), coordRequest(t, 43.477, -79.76, model.CategoryAll))
	if !errors.Is(err, ErrNoProviders) {
		t.Fatalf("error = %v, want ErrNoProviders", err)
	}
	if g, _, _ := prov.calls(); g != 0 {
		t.Errorf("generate calls = %d, want 0 for a disabled provider", g)
	}
}

func TestRunUserKeyActivatesDisabledProvider(t *testing.T) {
	prov := &mockProvider{name: "quiet",
		generateJSON:   `{"recommendations":[{"name":"Hidden Gem","confidenceScore":0.8}]}`,
		synthesizeJSON: `{"recommendations":[]}`}
	p := newTestPipeline(t, nil, nil, nil, prov)

	req := coordRequest(t, 43.477, -79.76, model.CategoryAll)
	req.UserAPIKeys = map[string]string{"quiet": "user-supplied-key"}

	resp, err := p.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if g, _, _ := prov.calls(); g != 1 {
		t.Fatalf("generate calls = %d, want 1", g)
	}
	prov.mu.Lock()
	seenKey := prov.generateSeen[0].key
	prov.mu.Unlock()
	if seenKey != "user-supplied-key" {
		t.Errorf("provider saw key %q, want the user-supplied one", seenKey)
	}
	if len(resp.Metadata.ProvidersUsed) != 1 || resp.Metadata.ProvidersUsed[0] != "quiet" {
		t.Errorf("providersUsed = %v, want [quiet]", resp.Metadata.ProvidersUsed)
	}
}

func TestRunFullPipeline(t *testing.T) {
	gc := &mockGeocoder{reverse: func(lat, lng float64) (string, error) {
		return "Oakville, Ontario", nil
	}}
	mc := newMockCache()
	rating := 4.5
	pl := &mockPlaces{available: true, places: []model.Place{{
		Name: "Harbour Lights", Rating: &rating, IsVerifiedRealPlace: true,
	}}}

	alpha := &mockProvider{name: "alpha", enabled: true, generateWait: 5 * time.Millisecond,
		generateJSON: `{"recommendations":[{"name":"Joe's Diner","description":"Classic diner","confidenceScore":0.8}]}`,
		validateJSON: `{"validations":[{"name":"Joe's Diner","validationScore":0.9}]}`,
	}
	beta := &mockProvider{name: "beta", enabled: true, generateWait: time.Millisecond,
		generateJSON: `{"recommendations":[{"name":"joes diner","confidenceScore":0.8},{"name":"Harbour Lights","description":"Waterfront seafood","confidenceScore":0.9}]}`,
		validateJSON: `{"validations":[{"name":"Joe's Diner","validationScore":0.9}]}`,
		synthesizeJSON: `{"recommendations":[{"name":"Harbour Lights","description":"Polished seafood spot","whyRecommended":"Best tables on the pier"}]}`,
	}
	p := newTestPipeline(t, gc, mc, pl, alpha, beta)

	resp, err := p.Run(context.Background(), coordRequest(t, 43.4769, -79.7596, model.CategoryRestaurant))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if resp.ResolvedAddress != "Oakville, Ontario" {
		t.Errorf("resolvedAddress = %q", resp.ResolvedAddress)
	}
	if len(resp.Recommendations) != 2 {
		t.Fatalf("recommendations = %d, want 2", len(resp.Recommendations))
	}

	// Harbour Lights: 0.9*0.4 + 0.9*0.35 + 0.15 + 0.045 = 0.87.
	// Joe's Diner: 0.8*0.4 + 0.9*0.35 + 0.05 = 0.685.
	top, second := resp.Recommendations[0], resp.Recommendations[1]
	if top.Name != "Harbour Lights" || top.Confidence != 0.87 {
		t.Errorf("top = %q (%v), want Harbour Lights at 0.87", top.Name, top.Confidence)
	}
	if second.Name != "Joe's Diner" || second.Confidence != 0.685 {
		t.Errorf("second = %q (%v), want Joe's Diner at 0.685", second.Name, second.Confidence)
	}
	if second.AgreementCount != 2 {
		t.Errorf("Joe's Diner agreement = %d, want 2", second.AgreementCount)
	}
	if top.EnrichedPlace == nil || !top.EnrichedPlace.IsVerifiedRealPlace {
		t.Error("Harbour Lights not enriched with the verified place")
	}
	if top.Description != "Polished seafood spot" || top.WhyRecommended != "Best tables on the pier" {
		t.Errorf("synthesis did not polish the top entry: %q / %q", top.Description, top.WhyRecommended)
	}
	// Sparse synthesis must not blank unmatched entries.
	if second.Description != "Classic diner" {
		t.Errorf("Joe's Diner description = %q, want the consensus text", second.Description)
	}
	for _, r := range resp.Recommendations {
		if r.SourceProvider != "Consensus" {
			t.Errorf("%s sourceProvider = %q, want Consensus", r.Name, r.SourceProvider)
		}
	}

	md := resp.Metadata
	if len(md.ProvidersUsed) != 2 {
		t.Errorf("providersUsed = %v, want both", md.ProvidersUsed)
	}
	if !md.GooglePlacesEnriched {
		t.Error("googlePlacesEnriched = false, want true")
	}
	if md.TotalCandidates != 3 {
		t.Errorf("totalCandidates = %d, want 3", md.TotalCandidates)
	}
	if md.SynthesizedBy != "beta" {
		t.Errorf("synthesizedBy = %q, want the fastest provider beta", md.SynthesizedBy)
	}

	if _, v, s := alpha.calls(); v != 1 || s != 0 {
		t.Errorf("alpha validate/synthesize = %d/%d, want 1/0", v, s)
	}
	if _, v, s := beta.calls(); v != 1 || s != 1 {
		t.Errorf("beta validate/synthesize = %d/%d, want 1/1", v, s)
	}

	if resp.FromCache {
		t.Error("fromCache = true on a fresh response")
	}
	if resp.GeneratedAt.Location() != time.UTC {
		t.Errorf("generatedAt zone = %v, want UTC", resp.GeneratedAt.Location())
	}
	if mc.stores != 1 {
		t.Errorf("cache stores = %d, want 1", mc.stores)
	}
}

func TestRunForceRefreshBypassesLookup(t *testing.T) {
	mc := newMockCache()
	key := cache.CoordinateKey(43.477, -79.76, []model.Category{model.CategoryAll}, 3)
	mc.entries[key] = &model.Response{Recommendations: []model.Recommendation{{Name: "Stale"}}}

	prov := &mockProvider{name: "alpha", enabled: true,
		generateJSON:   `{"recommendations":[{"name":"Fresh Spot","confidenceScore":0.8}]}`,
		synthesizeJSON: `{"recommendations":[]}`}
	p := newTestPipeline(t, nil, mc, nil, prov)

	req := coordRequest(t, 43.477, -79.76, model.CategoryAll)
	req.ForceRefresh = true

	resp, err := p.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if mc.lookups != 0 {
		t.Errorf("cache lookups = %d, want 0 with forceRefresh", mc.lookups)
	}
	if resp.FromCache {
		t.Error("fromCache = true, want a fresh response")
	}
	if len(resp.Recommendations) != 1 || resp.Recommendations[0].Name != "Fresh Spot" {
		t.Errorf("recommendations = %+v, want the fresh entry", resp.Recommendations)
	}
	if mc.stores != 1 {
		t.Errorf("cache stores = %d, want the refreshed entry written", mc.stores)
	}
}

func TestRunCancellationSurfacesContextError(t *testing.T) {
	prov := &mockProvider{name: "alpha", enabled: true, generateWait: time.Second,
		generateJSON: `{"recommendations":[{"name":"X","confidenceScore":0.8}]}`}
	p := newTestPipeline(t, nil, nil, nil, prov)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Run(ctx, coordRequest(t, 43.477, -79.76, model.CategoryAll))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want DeadlineExceeded rather than ErrNoProviders", err)
	}
}

func TestRunCredentialIsolation(t *testing.T) {
	prov := &mockProvider{name: "shared", enabled: true,
		generateJSON:   `{"recommendations":[{"name":"Corner Cafe","confidenceScore":0.8}]}`,
		synthesizeJSON: `{"recommendations":[]}`}
	p := newTestPipeline(t, nil, nil, nil, prov)

	requests := []struct {
		marker string
		key    string
	}{
		{"Alphaville", "key-alpha"},
		{"Betatown", "key-beta"},
	}

	var wg sync.WaitGroup
	for _, tc := range requests {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := &model.Request{Address: tc.marker, UserAPIKeys: map[string]string{"shared": tc.key}}
			if err := req.Normalize(); err != nil {
				t.Errorf("Normalize: %v", err)
				return
			}
			if _, err := p.Run(context.Background(), req); err != nil {
				t.Errorf("Run(%s): %v", tc.marker, err)
			}
		}()
	}
	wg.Wait()

	prov.mu.Lock()
	defer prov.mu.Unlock()
	if len(prov.generateSeen) != 2 {
		t.Fatalf("generate calls = %d, want 2", len(prov.generateSeen))
	}
	for _, call := range prov.generateSeen {
		want := ""
		for _, tc := range requests {
			if strings.Contains(call.prompt, tc.marker) {
				want = tc.key
			}
		}
		if want == "" {
			t.Errorf("prompt matched no request marker: %q", call.prompt)
			continue
		}
		if call.key != want {
			t.Errorf("request credentials leaked across scopes: saw %q, want %q", call.key, want)
		}
	}
}

func TestRunWithoutGeocoderFormatsCoordinates(t *testing.T) {
	prov := &mockProvider{name: "alpha", enabled: true,
		generateJSON:   `{"recommendations":[{"name":"X","confidenceScore":0.8}]}`,
		synthesizeJSON: `{"recommendations":[]}`}
	p := newTestPipeline(t, nil, nil, nil, prov)

	resp, err := p.Run(context.Background(), coordRequest(t, 43.4769, -79.7596, model.CategoryAll))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.ResolvedAddress != "43.4769, -79.7596" {
		t.Errorf("resolvedAddress = %q, want formatted coordinates", resp.ResolvedAddress)
	}
}
