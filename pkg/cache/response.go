package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"cicerone/pkg/model"
	"cicerone/pkg/store"
)

// purgeChance is the denominator for the opportunistic purge lottery: on
// average one write in purgeChance triggers an async sweep of expired rows.
const purgeChance = 50

// ResponseCache stores consolidated responses keyed on the coordinate grid.
type ResponseCache struct {
	store     store.CacheStore
	ttl       time.Duration
	precision int
}

// NewResponseCache creates a response cache. ttl is the write TTL;
// precision is the coordinate grid rounding in decimal places.
func NewResponseCache(st store.CacheStore, ttl time.Duration, precision int) *ResponseCache {
	if precision <= 0 {
		precision = 3
	}
	return &ResponseCache{store: st, ttl: ttl, precision: precision}
}

// Key computes the cache key for a request. Coordinate keys are used
// whenever coordinates are known (given or geocoded); the address form is
// the fallback when geocoding failed but an address exists.
func (rc *ResponseCache) Key(lat, lng float64, hasCoords bool, address string, categories []model.Category) string {
	if hasCoords {
		return CoordinateKey(lat, lng, categories, rc.precision)
	}
	return AddressKey(address, categories)
}

// Lookup fetches and decodes a cached response. The returned copy is
// flagged fromCache=true. Undecodable entries read as a miss.
func (rc *ResponseCache) Lookup(ctx context.Context, key string) (*model.Response, bool) {
	data, found := rc.store.GetCache(ctx, key)
	if !found {
		return nil, false
	}

	var resp model.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		slog.Warn("Cache entry undecodable, treating as miss", "key", key, "error", err)
		return nil, false
	}
	resp.FromCache = true
	return &resp, true
}

// Store writes a consolidated response. The write is awaited so a
// follow-up request on the same grid cell sees it; failures are returned
// for the caller to log and swallow. Roughly one write in fifty also kicks
// off an async purge of expired entries.
func (rc *ResponseCache) Store(ctx context.Context, key string, resp *model.Response) error {
	stored := *resp
	stored.FromCache = false

	data, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	if err := rc.store.SetCache(ctx, key, data, rc.ttl); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}

	if rand.Intn(purgeChance) == 0 {
		go rc.purgeExpired()
	}
	return nil
}

func (rc *ResponseCache) purgeExpired() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := rc.store.PurgeExpired(ctx)
	if err != nil {
		slog.Warn("Async cache purge failed", "error", err)
		return
	}
	if n > 0 {
		slog.Debug("Async cache purge completed", "removed", n)
	}
}
