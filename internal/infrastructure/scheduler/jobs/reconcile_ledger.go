package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/studyhub/progression-engine/internal/application/command"
	"github.com/studyhub/progression-engine/internal/domain/progression"
	"github.com/studyhub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILE LEDGER JOB
// ══════════════════════════════════════════════════════════════════════════════

// ReconcileLedgerJob verifies the invariant that every account's cached
// total equals the sum of its ledger entries. The ledger is the source
// of truth: on drift the account is recomputed from the ledger sum,
// level included.
type ReconcileLedgerJob struct {
	accounts progression.AccountRepository
	ledger   progression.LedgerRepository
	store    command.Store
	curve    progression.Curve
	publisher shared.EventPublisher
	logger   *slog.Logger

	config ReconcileLedgerConfig

	lastStats atomic.Value // *ReconcileStats
}

// ReconcileLedgerConfig contains configuration for the reconcile job.
type ReconcileLedgerConfig struct {
	// Repair rewrites drifted accounts from the ledger. When false the
	// job only reports drift.
	Repair bool

	// Timeout is the maximum duration for one run.
	Timeout time.Duration
}

// DefaultReconcileLedgerConfig returns sensible defaults.
func DefaultReconcileLedgerConfig() ReconcileLedgerConfig {
	return ReconcileLedgerConfig{
		Repair:  true,
		Timeout: 5 * time.Minute,
	}
}

// ReconcileStats contains statistics from a reconcile run.
type ReconcileStats struct {
	StartedAt     time.Time
	CompletedAt   time.Time
	Duration      time.Duration
	AccountsSeen  int
	DriftDetected int
	Repaired      int
	Errors        []error
}

// NewReconcileLedgerJob creates a new reconcile ledger job.
func NewReconcileLedgerJob(
	accounts progression.AccountRepository,
	ledger progression.LedgerRepository,
	store command.Store,
	curve progression.Curve,
	publisher shared.EventPublisher,
	logger *slog.Logger,
	config ReconcileLedgerConfig,
) *ReconcileLedgerJob {
	if curve == nil {
		curve = progression.DefaultCurve()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconcileLedgerJob{
		accounts:  accounts,
		ledger:    ledger,
		store:     store,
		curve:     curve,
		publisher: publisher,
		logger:    logger,
		config:    config,
	}
}

// Name returns the job name.
func (j *ReconcileLedgerJob) Name() string {
	return "reconcile_ledger"
}

// Description returns a human-readable description.
func (j *ReconcileLedgerJob) Description() string {
	return "Verifies account totals against the points ledger and repairs drift"
}

// Run executes the reconcile job.
func (j *ReconcileLedgerJob) Run(ctx context.Context) error {
	startedAt := time.Now()
	stats := &ReconcileStats{
		StartedAt: startedAt,
		Errors:    make([]error, 0),
	}

	j.logger.Info("starting reconcile_ledger job")

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	userIDs, err := j.accounts.AllUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}

	for _, userID := range userIDs {
		stats.AccountsSeen++
		if err := j.reconcileUser(ctx, userID, stats); err != nil {
			stats.Errors = append(stats.Errors, err)
			j.logger.Warn("reconcile failed for user", "user_id", userID, "error", err)
		}
	}

	stats.CompletedAt = time.Now()
	stats.Duration = stats.CompletedAt.Sub(startedAt)
	j.lastStats.Store(stats)

	j.logger.Info("reconcile_ledger job completed",
		"duration", stats.Duration.String(),
		"accounts", stats.AccountsSeen,
		"drift_detected", stats.DriftDetected,
		"repaired", stats.Repaired,
	)

	if len(stats.Errors) > 0 {
		return fmt.Errorf("reconcile completed with %d errors", len(stats.Errors))
	}
	return nil
}

// reconcileUser checks one account against its ledger sum and repairs
// it inside a locked transaction when drift is found.
func (j *ReconcileLedgerJob) reconcileUser(ctx context.Context, userID string, stats *ReconcileStats) error {
	account, err := j.accounts.Get(ctx, userID)
	if err != nil {
		return err
	}
	ledgerSum, err := j.ledger.SumPoints(ctx, userID)
	if err != nil {
		return err
	}
	if account.TotalPoints == ledgerSum {
		return nil
	}

	stats.DriftDetected++
	j.logger.Warn("ledger drift detected",
		"user_id", userID,
		"cached_total", account.TotalPoints,
		"ledger_total", ledgerSum,
	)

	repaired := false
	if j.config.Repair {
		err := j.store.Execute(ctx, userID, func(tx command.TxRepos) error {
			locked, err := tx.Accounts().GetOrCreateForUpdate(ctx, userID)
			if err != nil {
				return err
			}
			// Re-read under the lock: a concurrent submission may have
			// already closed the gap.
			sum, err := tx.Ledger().SumPoints(ctx, userID)
			if err != nil {
				return err
			}
			if locked.TotalPoints == sum {
				return nil
			}

			locked.TotalPoints = 0
			locked.PointsInLevel = 0
			locked.CurrentLevel = 1
			locked.AddPoints(sum)
			locked.ApplyLevelUps(j.curve)
			return tx.Accounts().Save(ctx, locked)
		})
		if err != nil {
			return err
		}
		repaired = true
		stats.Repaired++
	}

	if j.publisher != nil {
		event := shared.NewLedgerDriftDetectedEvent(userID, account.TotalPoints, ledgerSum, repaired)
		_ = j.publisher.Publish(event)
	}
	return nil
}

// LastStats returns statistics from the last run.
func (j *ReconcileLedgerJob) LastStats() *ReconcileStats {
	stats := j.lastStats.Load()
	if stats == nil {
		return nil
	}
	return stats.(*ReconcileStats)
}
