// Package redis implements Redis caching for the progression engine.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/studyhub/progression-engine/internal/domain/progression"
	"github.com/studyhub/progression-engine/pkg/circuitbreaker"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD CACHE ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrLeaderboardEmpty is returned when the leaderboard has no entries.
	ErrLeaderboardEmpty = errors.New("leaderboard_cache: leaderboard is empty")

	// ErrUserIDEmpty is returned when an empty user ID is provided.
	ErrUserIDEmpty = errors.New("leaderboard_cache: user id cannot be empty")
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD CACHE
// ══════════════════════════════════════════════════════════════════════════════

// entryInfo is the hash payload stored per user.
type entryInfo struct {
	TotalPoints int    `json:"total_points"`
	Level       int    `json:"level"`
	LevelTitle  string `json:"level_title"`
}

// LeaderboardCache implements progression.LeaderboardCache on Redis
// Sorted Sets.
//
// Architecture:
//   - Sorted Set "leaderboard:points" stores userID -> composite score
//   - Hash "leaderboard:info" stores userID -> entryInfo JSON
//
// The ordering is total points first, level second. Both are packed
// into one score so ZREVRANGE returns the final order directly:
// score = totalPoints * levelScoreBase + level. Levels stay far below
// levelScoreBase in practice, so the level only breaks point ties.
//
// This design allows O(log N) rank lookups and O(log N + M) range
// queries. The cache is disposable: Rebuild repopulates it from
// PostgreSQL at any time.
//
// All operations go through a circuit breaker. When Redis is down the
// breaker opens and calls fail immediately, so readers fall through to
// PostgreSQL without waiting on timeouts.
type LeaderboardCache struct {
	cache   *Cache
	breaker *circuitbreaker.CircuitBreaker
}

// Key patterns for leaderboard cache.
const (
	// keyLeaderboardPoints is the sorted set for point rankings.
	keyLeaderboardPoints = PrefixLeaderboard + "points"

	// keyLeaderboardInfo is the hash for entry details.
	keyLeaderboardInfo = PrefixLeaderboard + "info"

	// levelScoreBase packs the level into the sorted set score as a
	// tie-breaker below the points component.
	levelScoreBase = 10_000
)

// NewLeaderboardCache creates a new LeaderboardCache instance.
func NewLeaderboardCache(cache *Cache) *LeaderboardCache {
	return &LeaderboardCache{
		cache: cache,
		// A cache miss is not a failure, only real transport errors
		// should trip the breaker.
		breaker: circuitbreaker.CacheBreaker(nil, circuitbreaker.WithIsFailure(func(err error) bool {
			return !errors.Is(err, redis.Nil)
		})),
	}
}

// compositeScore packs points and level into one sortable score.
func compositeScore(totalPoints, level int) float64 {
	return float64(totalPoints)*levelScoreBase + float64(level)
}

// ══════════════════════════════════════════════════════════════════════════════
// WRITE OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// UpdateScore updates or adds a single user. O(log N).
func (l *LeaderboardCache) UpdateScore(ctx context.Context, userID string, totalPoints, level int) error {
	if userID == "" {
		return ErrUserIDEmpty
	}

	info, err := json.Marshal(entryInfo{
		TotalPoints: totalPoints,
		Level:       level,
		LevelTitle:  progression.TitleForLevel(level),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	return l.breaker.Execute(ctx, func(ctx context.Context) error {
		pipe := l.cache.Client().Pipeline()
		pipe.ZAdd(ctx, keyLeaderboardPoints, redis.Z{
			Score:  compositeScore(totalPoints, level),
			Member: userID,
		})
		pipe.HSet(ctx, keyLeaderboardInfo, userID, info)
		pipe.Expire(ctx, keyLeaderboardPoints, TTLLeaderboardCache)
		pipe.Expire(ctx, keyLeaderboardInfo, TTLLeaderboardCache)

		_, err := pipe.Exec(ctx)
		return err
	})
}

// Rebuild atomically replaces the cache contents from authoritative
// rows. Used by the periodic rebuild job and on cache misses.
func (l *LeaderboardCache) Rebuild(ctx context.Context, rows []progression.LeaderboardRow) error {
	return l.breaker.Execute(ctx, func(ctx context.Context) error {
		return l.rebuild(ctx, rows)
	})
}

func (l *LeaderboardCache) rebuild(ctx context.Context, rows []progression.LeaderboardRow) error {
	pipe := l.cache.Client().TxPipeline()
	pipe.Del(ctx, keyLeaderboardPoints, keyLeaderboardInfo)

	if len(rows) > 0 {
		members := make([]redis.Z, 0, len(rows))
		infos := make(map[string]interface{}, len(rows))
		for _, row := range rows {
			if row.UserID == "" {
				continue
			}
			members = append(members, redis.Z{
				Score:  compositeScore(row.TotalPoints, row.Level),
				Member: row.UserID,
			})
			data, err := json.Marshal(entryInfo{
				TotalPoints: row.TotalPoints,
				Level:       row.Level,
				LevelTitle:  row.LevelTitle,
			})
			if err != nil {
				return fmt.Errorf("failed to marshal entry: %w", err)
			}
			infos[row.UserID] = data
		}
		pipe.ZAdd(ctx, keyLeaderboardPoints, members...)
		pipe.HSet(ctx, keyLeaderboardInfo, infos)
	}

	pipe.Expire(ctx, keyLeaderboardPoints, TTLLeaderboardCache)
	pipe.Expire(ctx, keyLeaderboardInfo, TTLLeaderboardCache)

	_, err := pipe.Exec(ctx)
	return err
}

// ══════════════════════════════════════════════════════════════════════════════
// READ OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Top returns the highest ranked users. O(log N + M).
func (l *LeaderboardCache) Top(ctx context.Context, limit int) ([]progression.LeaderboardRow, error) {
	if limit <= 0 {
		return nil, nil
	}

	var ids []string
	var infos []interface{}
	err := l.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		ids, err = l.cache.Client().ZRevRange(ctx, keyLeaderboardPoints, 0, int64(limit-1)).Result()
		if err != nil {
			return fmt.Errorf("failed to read leaderboard: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		fields := make([]string, len(ids))
		copy(fields, ids)
		infos, err = l.cache.Client().HMGet(ctx, keyLeaderboardInfo, fields...).Result()
		if err != nil {
			return fmt.Errorf("failed to read entry details: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	rows := make([]progression.LeaderboardRow, 0, len(ids))
	for i, id := range ids {
		row := progression.LeaderboardRow{
			Rank:   i + 1,
			UserID: id,
		}
		if raw, ok := infos[i].(string); ok {
			var info entryInfo
			if err := json.Unmarshal([]byte(raw), &info); err == nil {
				row.TotalPoints = info.TotalPoints
				row.Level = info.Level
				row.LevelTitle = info.LevelTitle
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// RankOf returns the 1-based position of a user, 0 when not cached.
func (l *LeaderboardCache) RankOf(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, ErrUserIDEmpty
	}

	var rank int64
	err := l.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		rank, err = l.cache.Client().ZRevRank(ctx, keyLeaderboardPoints, userID).Result()
		return err
	})
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get rank: %w", err)
	}
	return int(rank) + 1, nil
}
