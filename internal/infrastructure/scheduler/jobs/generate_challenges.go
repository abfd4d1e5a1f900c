package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/studyhub/progression-engine/internal/application/command"
)

// ══════════════════════════════════════════════════════════════════════════════
// GENERATE CHALLENGES JOB
// ══════════════════════════════════════════════════════════════════════════════

// Locker serializes a job run across worker replicas.
type Locker interface {
	// Acquire attempts to take the lock, false when another holder has it.
	Acquire(ctx context.Context) (bool, error)

	// Release frees the lock.
	Release(ctx context.Context) error
}

// GenerateChallengesJob creates the daily challenge cohort shortly
// after midnight UTC. Generation is idempotent, so overlapping runs
// and restarts are harmless.
type GenerateChallengesJob struct {
	handler *command.GenerateChallengesHandler
	logger  *slog.Logger
	lock    Locker

	// Timeout is the maximum duration for one run.
	Timeout time.Duration
}

// NewGenerateChallengesJob creates a new generate challenges job.
func NewGenerateChallengesJob(handler *command.GenerateChallengesHandler, logger *slog.Logger) *GenerateChallengesJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &GenerateChallengesJob{
		handler: handler,
		logger:  logger,
		Timeout: time.Minute,
	}
}

// WithLock makes the job skip its run when another replica holds the
// lock. Without a lock concurrent runs are merely wasteful, generation
// is idempotent either way.
func (j *GenerateChallengesJob) WithLock(lock Locker) *GenerateChallengesJob {
	j.lock = lock
	return j
}

// Name returns the job name.
func (j *GenerateChallengesJob) Name() string {
	return "generate_challenges"
}

// Description returns a human-readable description.
func (j *GenerateChallengesJob) Description() string {
	return "Creates the daily challenge cohort for the current date"
}

// Run executes the generation job.
func (j *GenerateChallengesJob) Run(ctx context.Context) error {
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	if j.lock != nil {
		ok, err := j.lock.Acquire(ctx)
		if err != nil {
			// Lock failures are advisory, generation stays idempotent.
			j.logger.Warn("generate_challenges lock unavailable, proceeding", "error", err)
		} else if !ok {
			j.logger.Info("generate_challenges skipped, another replica holds the lock")
			return nil
		} else {
			defer func() {
				if err := j.lock.Release(context.WithoutCancel(ctx)); err != nil {
					j.logger.Warn("failed to release generate_challenges lock", "error", err)
				}
			}()
		}
	}

	result, err := j.handler.Handle(ctx, command.GenerateChallengesCommand{})
	if err != nil {
		return fmt.Errorf("failed to generate challenges: %w", err)
	}

	j.logger.Info("generate_challenges job completed",
		"date", result.Date.Format("2006-01-02"),
		"created", result.Created,
		"skipped", result.Skipped,
	)
	return nil
}
