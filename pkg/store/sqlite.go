package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"cicerone/pkg/db"
)

// sqliteTimeFormat matches SQLite's DEFAULT CURRENT_TIMESTAMP so string
// comparisons in WHERE clauses stay lexicographically correct.
const sqliteTimeFormat = "2006-01-02 15:04:05"

// Store defines the repository interface.
// Consumers should depend on specific sub-interfaces when possible.
type Store interface {
	CacheStore

	// Close closes the store connection.
	Close() error
}

// SQLiteStore implements Store.
type SQLiteStore struct {
	db         *db.DB
	defaultTTL time.Duration
}

// NewSQLiteStore creates a new store. defaultTTL applies to SetCache calls
// that pass ttl <= 0.
func NewSQLiteStore(db *db.DB, defaultTTL time.Duration) *SQLiteStore {
	if defaultTTL <= 0 {
		defaultTTL = 24 * time.Hour
	}
	return &SQLiteStore{db: db, defaultTTL: defaultTTL}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Cache ---

func (s *SQLiteStore) GetCache(ctx context.Context, key string) ([]byte, bool) {
	now := fmtTime(time.Now())

	var val []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM cache WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)",
		key, now).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		// Treat store errors as a miss; the pipeline regenerates.
		slog.Debug("Store: GetCache failed", "key", key, "error", err)
		return nil, false
	}

	// Hit bookkeeping on the same connection. Failure is harmless.
	if _, err := s.db.ExecContext(ctx,
		"UPDATE cache SET hit_count = hit_count + 1, last_accessed_at = ? WHERE key = ?",
		now, key); err != nil {
		slog.Debug("Store: hit count update failed", "key", key, "error", err)
	}

	// Transparent Decompression
	if len(val) > 2 && val[0] == 0x1f && val[1] == 0x8b {
		decompressed, err := decompress(val)
		if err == nil {
			return decompressed, true
		}
		// If decompression fails, maybe it's not actually gzipped. Return raw.
	}

	return val, true
}

func (s *SQLiteStore) HasCache(ctx context.Context, key string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM cache WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)",
		key, fmtTime(time.Now())).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) SetCache(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	// Transparent Compression
	compressed, err := compress(val)
	if err == nil {
		val = compressed
	}

	now := time.Now()
	query := `INSERT OR REPLACE INTO cache (key, value, created_at, expires_at, hit_count, last_accessed_at)
	          VALUES (?, ?, ?, ?, 0, NULL)`
	_, err = s.db.ExecContext(ctx, query, key, val, fmtTime(now), fmtTime(now.Add(ttl)))
	return err
}

func (s *SQLiteStore) ListCacheKeys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key FROM cache WHERE key LIKE ?", prefix+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *SQLiteStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM cache WHERE expires_at IS NOT NULL AND expires_at <= ?",
		fmtTime(time.Now()))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM cache WHERE key LIKE ?", prefix+"%")
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) CacheStats(ctx context.Context) (*CacheStats, error) {
	now := fmtTime(time.Now())
	stats := &CacheStats{}

	row := s.db.QueryRowContext(ctx, `
		SELECT count(*),
		       coalesce(sum(expires_at IS NOT NULL AND expires_at <= ?), 0),
		       coalesce(sum(hit_count), 0),
		       coalesce(sum(length(value)), 0),
		       min(created_at), max(created_at)
		FROM cache`, now)

	var oldest, newest sql.NullString
	if err := row.Scan(&stats.Entries, &stats.Expired, &stats.TotalHits, &stats.SizeBytes, &oldest, &newest); err != nil {
		return nil, err
	}
	if oldest.Valid {
		if t, err := time.ParseInLocation(sqliteTimeFormat, oldest.String, time.UTC); err == nil {
			stats.Oldest = &t
		}
	}
	if newest.Valid {
		if t, err := time.ParseInLocation(sqliteTimeFormat, newest.String, time.UTC); err == nil {
			stats.Newest = &t
		}
	}
	return stats, nil
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeFormat)
}

// --- Compression Pooling ---

var (
	// Pool for gzip writers to reuse flate state
	gzipWriterPool = sync.Pool{
		New: func() interface{} {
			return gzip.NewWriter(io.Discard)
		},
	}
	// Pool for generic byte buffers
	bufferPool = sync.Pool{
		New: func() interface{} {
			return new(bytes.Buffer)
		},
	}
)

func compress(data []byte) ([]byte, error) {
	// Get Buffer
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	// Get Writer
	w := gzipWriterPool.Get().(*gzip.Writer)
	defer gzipWriterPool.Put(w)

	// Reset Writer to write to our buffer
	w.Reset(buf)

	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	// Must copy because buf is returned to pool
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
