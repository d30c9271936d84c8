package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/quantlens/quantlens/internal/database"
)

// Store persists cached results in the cache database. Values are opaque
// bytes; expiry is checked lazily on read and swept periodically.
type Store struct {
	db *database.DB
}

// NewStore creates the result_cache table if it does not exist.
func NewStore(db *database.DB) (*Store, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS result_cache (
		key         TEXT PRIMARY KEY,
		value       BLOB NOT NULL,
		computed_at INTEGER NOT NULL,
		expires_at  INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_result_cache_expires ON result_cache(expires_at);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create result_cache table: %w", err)
	}
	return &Store{db: db}, nil
}

// Get returns the cached value for key, or found=false on a miss. An entry
// past its expiry is treated as a miss and deleted in place.
func (s *Store) Get(ctx context.Context, key string) (value []byte, found bool, err error) {
	var expiresAt int64
	row := s.db.QueryRowContext(ctx,
		"SELECT value, expires_at FROM result_cache WHERE key = ?", key)
	if scanErr := row.Scan(&value, &expiresAt); scanErr != nil {
		if errors.Is(scanErr, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache read failed: %w", scanErr)
	}

	if time.Now().Unix() >= expiresAt {
		// Lazy expiry; the sweeper catches anything a reader never touches.
		_, _ = s.db.ExecContext(ctx, "DELETE FROM result_cache WHERE key = ?", key)
		return nil, false, nil
	}
	return value, true, nil
}

// Set stores a value under key with the given TTL, replacing any existing
// entry.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO result_cache (key, value, computed_at, expires_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			computed_at = excluded.computed_at,
			expires_at = excluded.expires_at`,
		key, value, now.Unix(), now.Add(ttl).Unix())
	if err != nil {
		return fmt.Errorf("cache write failed: %w", err)
	}
	return nil
}

// Delete removes a single entry.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM result_cache WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("cache delete failed: %w", err)
	}
	return nil
}

// DeleteByPrefix removes all entries whose key starts with prefix and
// returns how many were removed.
func (s *Store) DeleteByPrefix(ctx context.Context, prefix string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM result_cache WHERE key >= ? AND key < ?",
		prefix, prefix+"\xff")
	if err != nil {
		return 0, fmt.Errorf("cache prefix delete failed: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// SweepExpired removes all entries past their expiry and returns the count.
func (s *Store) SweepExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM result_cache WHERE expires_at <= ?", time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("cache sweep failed: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
