package redis

import (
	"context"
	"errors"
)

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT CACHE
// ══════════════════════════════════════════════════════════════════════════════

// ErrSnapshotUserIDEmpty is returned when an empty user ID is provided.
var ErrSnapshotUserIDEmpty = errors.New("snapshot_cache: user id cannot be empty")

// SnapshotCache caches assembled user progress snapshots.
//
// A snapshot touches several tables (account, ledger sums, achievement
// counts, recent entries), so dashboards that poll it benefit from a
// short-lived cache. The TTL is the only invalidation mechanism: a
// snapshot may lag a fresh award by up to TTLSnapshotCache.
type SnapshotCache struct {
	cache *Cache
}

// NewSnapshotCache creates a new SnapshotCache.
func NewSnapshotCache(cache *Cache) *SnapshotCache {
	return &SnapshotCache{cache: cache}
}

// snapshotKey builds the cache key for a user's snapshot.
func snapshotKey(userID string) string {
	return PrefixSnapshot + "user:" + userID
}

// Get loads a cached snapshot into dest. Returns false on a miss.
func (s *SnapshotCache) Get(ctx context.Context, userID string, dest interface{}) (bool, error) {
	if userID == "" {
		return false, ErrSnapshotUserIDEmpty
	}

	err := s.cache.Get(ctx, snapshotKey(userID), dest)
	if errors.Is(err, ErrCacheMiss) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Set stores a snapshot with the default snapshot TTL.
func (s *SnapshotCache) Set(ctx context.Context, userID string, snapshot interface{}) error {
	if userID == "" {
		return ErrSnapshotUserIDEmpty
	}
	return s.cache.Set(ctx, snapshotKey(userID), snapshot, TTLSnapshotCache)
}

// Invalidate removes a user's cached snapshot.
func (s *SnapshotCache) Invalidate(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrSnapshotUserIDEmpty
	}
	return s.cache.Delete(ctx, snapshotKey(userID))
}

// InvalidateAll clears every cached snapshot.
func (s *SnapshotCache) InvalidateAll(ctx context.Context) error {
	return s.cache.DeleteByPattern(ctx, PrefixSnapshot+"*")
}
