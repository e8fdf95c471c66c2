// Package maintenance runs startup housekeeping on the cache database.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"cicerone/pkg/db"
	"cicerone/pkg/store"
)

// hardPruneAge is the age past which entries are removed even if an
// unusually long TTL would keep them alive.
const hardPruneAge = 30 * 24 * time.Hour

// Run executes all maintenance tasks. It blocks until completion.
// purgeExpired controls whether TTL-expired entries are removed now; the
// hard age prune always runs.
func Run(ctx context.Context, s store.CacheStore, d *db.DB, purgeExpired bool) error {
	slog.Info("Starting database maintenance...")

	if purgeExpired {
		n, err := s.PurgeExpired(ctx)
		if err != nil {
			slog.Error("Cache purge failed", "error", err)
		} else {
			slog.Info("Cache purge completed", "removed", n)
		}
	}

	if err := d.PruneCache(hardPruneAge); err != nil {
		slog.Error("Cache pruning failed", "error", err)
	} else {
		slog.Info("Cache pruning completed")
	}

	return nil
}
