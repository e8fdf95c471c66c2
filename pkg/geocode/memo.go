package geocode

import (
	"sync"
	"time"
)

// cleanupInterval is how often Get() triggers lazy eviction of expired entries.
const cleanupInterval = 100

type memoEntry[T any] struct {
	value   T
	expires time.Time
}

// memo is a typed, thread-safe TTL cache for geocoding results. Nominatim's
// usage policy caps us at one request per second, so repeated lookups for
// the same grid cell must not reach the wire.
type memo[T any] struct {
	mu       sync.Mutex
	entries  map[string]memoEntry[T]
	ttl      time.Duration
	getCalls int
}

func newMemo[T any](ttl time.Duration) *memo[T] {
	return &memo[T]{
		entries: make(map[string]memoEntry[T]),
		ttl:     ttl,
	}
}

// get returns the memoized value for key, if present and fresh.
func (m *memo[T]) get(key string) (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.getCalls++
	if m.getCalls%cleanupInterval == 0 {
		m.cleanupLocked()
	}

	e, ok := m.entries[key]
	if !ok || time.Now().After(e.expires) {
		var zero T
		return zero, false
	}
	return e.value, true
}

// put stores a value under key for the memo's TTL.
func (m *memo[T]) put(key string, value T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoEntry[T]{value: value, expires: time.Now().Add(m.ttl)}
}

func (m *memo[T]) cleanupLocked() {
	now := time.Now()
	for key, e := range m.entries {
		if now.After(e.expires) {
			delete(m.entries, key)
		}
	}
}

// len returns the number of stored entries, expired or not.
func (m *memo[T]) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
