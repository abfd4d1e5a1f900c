// Package jobs contains implementations of scheduled jobs for the
// progression engine.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/studyhub/progression-engine/internal/domain/progression"
	"github.com/studyhub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REBUILD LEADERBOARD JOB
// ══════════════════════════════════════════════════════════════════════════════

// RebuildLeaderboardJob repopulates the Redis leaderboard cache from
// PostgreSQL. The cache is also updated per submission; this job heals
// drift after cache restarts or missed updates, and detects rank
// changes among the cached top.
type RebuildLeaderboardJob struct {
	accounts  progression.AccountRepository
	cache     progression.LeaderboardCache
	publisher shared.EventPublisher
	logger    *slog.Logger

	config RebuildLeaderboardConfig

	lastRebuildStats atomic.Value // *RebuildStats
}

// RebuildLeaderboardConfig contains configuration for the rebuild job.
type RebuildLeaderboardConfig struct {
	// TopLimit is how many users to load into the cache.
	TopLimit int

	// NotifyRankChanges enables rank change events.
	NotifyRankChanges bool

	// Timeout is the maximum duration for the rebuild operation.
	Timeout time.Duration
}

// DefaultRebuildLeaderboardConfig returns sensible defaults.
func DefaultRebuildLeaderboardConfig() RebuildLeaderboardConfig {
	return RebuildLeaderboardConfig{
		TopLimit:          1000,
		NotifyRankChanges: true,
		Timeout:           2 * time.Minute,
	}
}

// RebuildStats contains statistics from a rebuild run.
type RebuildStats struct {
	StartedAt        time.Time
	CompletedAt      time.Time
	Duration         time.Duration
	TotalAccounts    int
	RankChangesFound int
	Errors           []error
}

// NewRebuildLeaderboardJob creates a new rebuild leaderboard job.
func NewRebuildLeaderboardJob(
	accounts progression.AccountRepository,
	cache progression.LeaderboardCache,
	publisher shared.EventPublisher,
	logger *slog.Logger,
	config RebuildLeaderboardConfig,
) *RebuildLeaderboardJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &RebuildLeaderboardJob{
		accounts:  accounts,
		cache:     cache,
		publisher: publisher,
		logger:    logger,
		config:    config,
	}
}

// Name returns the job name.
func (j *RebuildLeaderboardJob) Name() string {
	return "rebuild_leaderboard"
}

// Description returns a human-readable description.
func (j *RebuildLeaderboardJob) Description() string {
	return "Repopulates the leaderboard cache from the accounts table and detects rank changes"
}

// Run executes the rebuild job.
func (j *RebuildLeaderboardJob) Run(ctx context.Context) error {
	startedAt := time.Now()
	stats := &RebuildStats{
		StartedAt: startedAt,
		Errors:    make([]error, 0),
	}

	j.logger.Info("starting rebuild_leaderboard job")

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	// Previous ranks before the rebuild, for change detection.
	previousRanks := j.snapshotRanks(ctx)

	accounts, err := j.accounts.Top(ctx, j.config.TopLimit)
	if err != nil {
		return fmt.Errorf("failed to load accounts: %w", err)
	}
	stats.TotalAccounts = len(accounts)

	rows := make([]progression.LeaderboardRow, len(accounts))
	for i, a := range accounts {
		rows[i] = progression.LeaderboardRow{
			Rank:        i + 1,
			UserID:      a.UserID,
			TotalPoints: a.TotalPoints,
			Level:       a.CurrentLevel,
			LevelTitle:  a.LevelTitle(),
		}
	}

	if err := j.cache.Rebuild(ctx, rows); err != nil {
		return fmt.Errorf("failed to rebuild cache: %w", err)
	}

	if j.config.NotifyRankChanges && len(previousRanks) > 0 {
		j.detectRankChanges(previousRanks, rows, stats)
	}

	stats.CompletedAt = time.Now()
	stats.Duration = stats.CompletedAt.Sub(startedAt)
	j.lastRebuildStats.Store(stats)

	j.logger.Info("rebuild_leaderboard job completed",
		"duration", stats.Duration.String(),
		"total_accounts", stats.TotalAccounts,
		"rank_changes", stats.RankChangesFound,
	)
	return nil
}

// snapshotRanks captures the cached ranks before the rebuild.
func (j *RebuildLeaderboardJob) snapshotRanks(ctx context.Context) map[string]int {
	rows, err := j.cache.Top(ctx, j.config.TopLimit)
	if err != nil || len(rows) == 0 {
		return nil
	}
	ranks := make(map[string]int, len(rows))
	for _, row := range rows {
		ranks[row.UserID] = row.Rank
	}
	return ranks
}

// detectRankChanges emits events for users whose position moved.
func (j *RebuildLeaderboardJob) detectRankChanges(previous map[string]int, rows []progression.LeaderboardRow, stats *RebuildStats) {
	for _, row := range rows {
		oldRank, ok := previous[row.UserID]
		if !ok || oldRank == row.Rank {
			continue
		}
		stats.RankChangesFound++
		if j.publisher != nil {
			event := shared.NewRankChangedEvent(row.UserID, oldRank, row.Rank)
			_ = j.publisher.Publish(event)
		}
	}
}

// LastRebuildStats returns statistics from the last rebuild.
func (j *RebuildLeaderboardJob) LastRebuildStats() *RebuildStats {
	stats := j.lastRebuildStats.Load()
	if stats == nil {
		return nil
	}
	return stats.(*RebuildStats)
}
