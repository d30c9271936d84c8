// Package cache provides a coalescing result cache for analytics
// computations. Concurrent requests for the same key share one computation
// via singleflight; completed results persist in SQLite with a TTL so they
// survive restarts. When the store itself fails the cache degrades to
// computing directly rather than failing the request.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"
)

// Cache coalesces and persists computed results.
type Cache struct {
	store *Store
	group singleflight.Group
	log   zerolog.Logger
}

// New creates a cache over the given store.
func New(store *Store, log zerolog.Logger) *Cache {
	return &Cache{
		store: store,
		log:   log.With().Str("component", "cache").Logger(),
	}
}

// Fingerprint builds a deterministic cache key for an operation. Parameters
// are sorted by name so map iteration order never changes the key, and the
// data version token ties the key to the underlying dataset so stale entries
// die naturally when data updates.
func Fingerprint(op string, params map[string]string, version string) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(op)
	for _, name := range names {
		b.WriteByte('|')
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(params[name])
	}
	b.WriteByte('|')
	b.WriteString(version)

	sum := sha256.Sum256([]byte(b.String()))
	return op + ":" + hex.EncodeToString(sum[:])[:32]
}

// GetOrCompute returns the cached value for key, or runs compute exactly once
// across all concurrent callers and caches the result for ttl. The
// computation runs detached from the first caller's context so one impatient
// caller cannot kill a result others are waiting on; each caller's own wait
// still honors its context.
func GetOrCompute[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	var zero T

	if data, found := c.lookup(ctx, key); found {
		var value T
		if err := msgpack.Unmarshal(data, &value); err == nil {
			return value, nil
		}
		// Undecodable entries are dropped and recomputed.
		c.log.Warn().Str("key", key).Msg("Dropping undecodable cache entry")
		_ = c.store.Delete(ctx, key)
	}

	ch := c.group.DoChan(key, func() (interface{}, error) {
		value, err := compute(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.persist(key, value, ttl)
		return value, nil
	})

	select {
	case <-ctx.Done():
		// Only this caller's wait is abandoned; the shared computation
		// continues for the others.
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// lookup reads the store, degrading to a miss on store failure.
func (c *Cache) lookup(ctx context.Context, key string) ([]byte, bool) {
	data, found, err := c.store.Get(ctx, key)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Cache read failed, computing directly")
		return nil, false
	}
	return data, found
}

// persist writes a computed value to the store; failure is logged, never
// surfaced, since the caller already has the result.
func (c *Cache) persist(key string, value interface{}, ttl time.Duration) {
	data, err := msgpack.Marshal(value)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Failed to encode cache value")
		return
	}
	if err := c.store.Set(context.Background(), key, data, ttl); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Failed to persist cache value")
	}
}

// Invalidate removes all entries whose key starts with prefix.
func (c *Cache) Invalidate(ctx context.Context, prefix string) (int64, error) {
	n, err := c.store.DeleteByPrefix(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("invalidation failed for prefix %q: %w", prefix, err)
	}
	c.log.Info().Str("prefix", prefix).Int64("removed", n).Msg("Cache invalidated")
	return n, nil
}

// SweepExpired removes expired entries; wired to a periodic job.
func (c *Cache) SweepExpired(ctx context.Context) (int64, error) {
	n, err := c.store.SweepExpired(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		c.log.Debug().Int64("removed", n).Msg("Swept expired cache entries")
	}
	return n, nil
}
