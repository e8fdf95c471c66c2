package tracker

import (
	"sync"
	"testing"
)

func TestTracker(t *testing.T) {
	tr := New()

	stats := tr.Snapshot()
	if len(stats) != 0 {
		t.Errorf("expected empty stats, got %d entries", len(stats))
	}

	provider := "test.provider"
	tr.TrackCacheHit(provider)
	tr.TrackCacheMiss(provider)
	tr.TrackAPISuccess(provider)
	tr.TrackAPIFailure(provider)
	tr.TrackAPIZero(provider)

	stats = tr.Snapshot()
	s, ok := stats[provider]
	if !ok {
		t.Fatalf("expected stats for %s", provider)
	}

	if s.CacheHits != 1 {
		t.Errorf("CacheHits = %d, want 1", s.CacheHits)
	}
	if s.CacheMisses != 1 {
		t.Errorf("CacheMisses = %d, want 1", s.CacheMisses)
	}
	if s.APISuccess != 1 {
		t.Errorf("APISuccess = %d, want 1", s.APISuccess)
	}
	if s.APIFailures != 1 {
		t.Errorf("APIFailures = %d, want 1", s.APIFailures)
	}
	if s.APIZeroResult != 1 {
		t.Errorf("APIZeroResult = %d, want 1", s.APIZeroResult)
	}
}

func TestTrackerConcurrent(t *testing.T) {
	tr := New()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.TrackAPISuccess("concurrent.provider")
			}
		}()
	}
	wg.Wait()

	stats := tr.Snapshot()
	if got := stats["concurrent.provider"].APISuccess; got != 1000 {
		t.Errorf("APISuccess = %d, want 1000", got)
	}
}
