package store

import (
	"context"
	"time"
)

// CacheStore handles TTL-bounded key-value caching.
type CacheStore interface {
	GetCache(ctx context.Context, key string) ([]byte, bool)
	HasCache(ctx context.Context, key string) (bool, error)
	// SetCache writes an entry. ttl <= 0 means the store's default TTL.
	SetCache(ctx context.Context, key string, val []byte, ttl time.Duration) error
	ListCacheKeys(ctx context.Context, prefix string) ([]string, error)
	// PurgeExpired removes entries past their expiry and reports how many.
	PurgeExpired(ctx context.Context) (int64, error)
	// DeletePrefix removes all entries whose key starts with prefix.
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
	CacheStats(ctx context.Context) (*CacheStats, error)
}

// CacheStats summarizes the cache table for the stats endpoint.
type CacheStats struct {
	Entries   int64      `json:"entries"`
	Expired   int64      `json:"expired"`
	TotalHits int64      `json:"totalHits"`
	SizeBytes int64      `json:"sizeBytes"`
	Oldest    *time.Time `json:"oldest,omitempty"`
	Newest    *time.Time `json:"newest,omitempty"`
}
