// Package cache provides the response cache for consolidated
// recommendations and the grid-keyed cache key scheme.
package cache

import (
	"context"
	"time"
)

// Cacher defines the caching interface.
type Cacher interface {
	GetCache(ctx context.Context, key string) ([]byte, bool)
	// SetCache writes an entry; ttl <= 0 means the backend's default TTL.
	SetCache(ctx context.Context, key string, val []byte, ttl time.Duration) error
}
