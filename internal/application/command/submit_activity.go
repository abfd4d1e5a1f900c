// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/studyhub/progression-engine/internal/domain/achievement"
	"github.com/studyhub/progression-engine/internal/domain/challenge"
	"github.com/studyhub/progression-engine/internal/domain/progression"
	"github.com/studyhub/progression-engine/internal/domain/shared"
	"github.com/studyhub/progression-engine/pkg/logger"
	"github.com/studyhub/progression-engine/pkg/retry"
	"github.com/studyhub/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT ACTIVITY COMMAND
// The sole write entry point of the progression engine. One external
// Activity Event is processed as a state machine:
//
//	Received -> PointsComputed -> LedgerAppended -> LevelChecked ->
//	StreakUpdated -> ChallengesAdvanced -> AchievementsEvaluated -> Completed
//
// Synthetic events (level_up, streak bonuses, achievement/challenge rewards)
// re-enter through an explicit bounded FIFO queue processed inside the same
// per-user transaction, so the whole cascade commits or aborts atomically.
// ══════════════════════════════════════════════════════════════════════════════

// MaxCascadeDepth caps the synthetic event cascade. Exceeding it indicates
// a curve/criteria misconfiguration and fails the whole submission.
const MaxCascadeDepth = 5

// TxRepos groups the repositories bound to one submission transaction.
type TxRepos interface {
	Accounts() progression.AccountRepository
	Ledger() progression.LedgerRepository
	Achievements() achievement.Repository
	Challenges() challenge.Repository
}

// Store is the transactional boundary of the coordinator. Execute runs fn
// inside a single transaction with the user's account row locked; lock and
// serialization failures surface as shared.ErrConcurrencyConflict.
type Store interface {
	Execute(ctx context.Context, userID string, fn func(tx TxRepos) error) error
}

// SubmitActivityCommand contains one external Activity Event.
type SubmitActivityCommand struct {
	// UserID is the user the event belongs to.
	UserID string

	// ActivityType is the kind of activity. Synthetic types are generated
	// by the engine itself and are rejected at this boundary.
	ActivityType progression.ActivityType

	// Metadata is the typed payload matching the activity type.
	Metadata progression.Metadata

	// Description overrides the default ledger description (optional).
	Description string

	// Today is the caller-supplied current date. Zero means "use the
	// handler clock"; tests always inject it.
	Today time.Time

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c SubmitActivityCommand) Validate() error {
	if c.UserID == "" {
		return shared.NewDomainError("progression", "Submit", shared.ErrEmptyValue, "user id is required")
	}
	if !c.ActivityType.IsValid() {
		return shared.WrapError("progression", "Submit", shared.ErrInvalidInput,
			fmt.Sprintf("activity type %q", c.ActivityType), shared.ErrUnknownActivityType)
	}
	if c.ActivityType.IsSynthetic() {
		return shared.WrapError("progression", "Submit", shared.ErrInvalidInput,
			fmt.Sprintf("%q events are engine-generated and cannot be submitted", c.ActivityType),
			shared.ErrUnknownActivityType)
	}
	if c.Metadata != nil {
		if c.Metadata.For() != c.ActivityType {
			return shared.WrapError("progression", "Submit", shared.ErrValidation,
				"metadata variant does not match activity type", shared.ErrInvalidMetadata)
		}
		if err := c.Metadata.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ChallengeCompletion describes one newly completed challenge.
type ChallengeCompletion struct {
	Challenge    *challenge.Challenge
	PointsEarned int
}

// ProgressionResult is the consolidated outcome of one submission; the UI
// uses it for celebratory notifications.
type ProgressionResult struct {
	// Entry is the ledger entry written for the submitted event.
	Entry *progression.LedgerEntry

	// CascadeEntries are ledger entries written for synthetic events.
	CascadeEntries []*progression.LedgerEntry

	// LevelUp describes the highest level reached, if any.
	LevelUp *progression.LevelUp

	// StreakOutcome describes the streak update of this submission.
	StreakOutcome progression.StreakOutcome

	// CompletedChallenges are challenges completed by this submission.
	CompletedChallenges []ChallengeCompletion

	// NewAchievements are achievements unlocked by this submission.
	NewAchievements []*achievement.Achievement

	// TotalPoints and CurrentLevel reflect the account after commit.
	TotalPoints  int
	CurrentLevel int

	// Warnings lists non-fatal sub-step failures (degraded result):
	// achievement/challenge evaluation errors never roll back the award.
	Warnings []string

	// Events contains domain events generated (published after commit).
	Events []shared.Event
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// SubmitActivityHandler handles the SubmitActivityCommand.
type SubmitActivityHandler struct {
	store     Store
	curve     progression.Curve
	evaluator *achievement.Evaluator
	publisher shared.EventPublisher
	cache     progression.LeaderboardCache
	retrier   *retry.Retrier
	log       *logger.Logger

	// clock supplies "now" when the command carries no date.
	clock func() time.Time
}

// NewSubmitActivityHandler creates a new SubmitActivityHandler.
// cache and publisher may be nil (pure engine mode, used in tests).
func NewSubmitActivityHandler(
	store Store,
	curve progression.Curve,
	publisher shared.EventPublisher,
	cache progression.LeaderboardCache,
	log *logger.Logger,
) *SubmitActivityHandler {
	if curve == nil {
		curve = progression.DefaultCurve()
	}
	if log == nil {
		log = logger.Default()
	}
	return &SubmitActivityHandler{
		store:     store,
		curve:     curve,
		evaluator: achievement.NewEvaluator(),
		publisher: publisher,
		cache:     cache,
		retrier:   retry.ConflictRetrier(),
		log:       log,
		clock:     time.Now,
	}
}

// WithClock overrides the handler clock (tests).
func (h *SubmitActivityHandler) WithClock(clock func() time.Time) *SubmitActivityHandler {
	h.clock = clock
	return h
}

// Handle executes the submit activity command. Concurrency conflicts are
// retried from the top: the whole event, including its cascade, re-runs.
func (h *SubmitActivityHandler) Handle(ctx context.Context, cmd SubmitActivityCommand) (*ProgressionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	today := cmd.Today
	if today.IsZero() {
		today = h.clock().UTC()
	}
	today = timeutil.StartOfDay(today)

	var result *ProgressionResult
	err := h.retrier.Do(ctx, func(ctx context.Context) error {
		txErr := h.store.Execute(ctx, cmd.UserID, func(tx TxRepos) error {
			var err error
			result, err = h.process(ctx, tx, cmd, today)
			return err
		})
		if txErr != nil && shared.IsConflict(txErr) {
			return retry.Retryable(txErr)
		}
		return txErr
	})
	if err != nil {
		h.log.Error("activity submission failed",
			logger.UserID(cmd.UserID),
			logger.ActivityType(string(cmd.ActivityType)),
			logger.Err(err))
		return nil, err
	}

	h.afterCommit(ctx, cmd, result)
	return result, nil
}

// pendingEvent is one element of the cascade queue.
type pendingEvent struct {
	activityType progression.ActivityType
	metadata     progression.Metadata
	description  string
	depth        int
}

// process runs the full state machine for one submission inside tx.
func (h *SubmitActivityHandler) process(ctx context.Context, tx TxRepos, cmd SubmitActivityCommand, today time.Time) (*ProgressionResult, error) {
	account, err := tx.Accounts().GetOrCreateForUpdate(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}

	result := &ProgressionResult{}

	// Achievement catalog and unlock set are fetched once per submission;
	// the unlock set is maintained locally as the cascade inserts rows.
	catalog, unlocked, catalogErr := h.loadAchievementState(ctx, tx, cmd.UserID)
	if catalogErr != nil {
		result.Warnings = append(result.Warnings, "achievement evaluation unavailable: "+catalogErr.Error())
	}

	queue := []pendingEvent{{
		activityType: cmd.ActivityType,
		metadata:     cmd.Metadata,
		description:  cmd.Description,
		depth:        0,
	}}

	for len(queue) > 0 {
		ev := queue[0]
		queue = queue[1:]

		if ev.depth > MaxCascadeDepth {
			return nil, shared.WrapError("progression", "Submit", shared.ErrInvalidState,
				fmt.Sprintf("cascade depth %d for user %s", ev.depth, cmd.UserID),
				shared.ErrCascadeDepthExceeded)
		}

		// PointsComputed
		points, err := progression.CalculatePoints(ev.activityType, ev.metadata)
		if err != nil {
			return nil, err
		}

		// LedgerAppended
		entry, err := progression.NewLedgerEntry(cmd.UserID, ev.activityType, points, ev.description, ev.metadata)
		if err != nil {
			return nil, err
		}
		if err := tx.Ledger().Append(ctx, entry); err != nil {
			return nil, shared.WrapError("progression", "Submit", shared.ErrStorage,
				"ledger append failed", err)
		}
		if ev.depth == 0 {
			result.Entry = entry
		} else {
			result.CascadeEntries = append(result.CascadeEntries, entry)
		}
		account.AddPoints(points)
		result.Events = append(result.Events, shared.NewPointsAwardedEvent(
			cmd.UserID, string(ev.activityType), points, account.TotalPoints, entry.Description))

		// LevelChecked
		for _, up := range account.ApplyLevelUps(h.curve) {
			up := up
			result.LevelUp = &up
			result.Events = append(result.Events,
				shared.NewLevelUpEvent(cmd.UserID, up.OldLevel, up.NewLevel, up.Title))
			queue = append(queue, pendingEvent{
				activityType: progression.ActivityLevelUp,
				metadata:     progression.LevelUpMetadata{OldLevel: up.OldLevel, NewLevel: up.NewLevel},
				depth:        ev.depth + 1,
			})
		}

		// StreakUpdated: the same-day no-op branch makes this idempotent
		// within the cascade, so it runs for synthetic events too.
		outcome := progression.TouchStreaks(account, today)
		if ev.depth == 0 {
			result.StreakOutcome = outcome
		}
		if outcome.Touched {
			result.Events = append(result.Events,
				shared.NewStreakUpdatedEvent(cmd.UserID, outcome.DailyStreak, outcome.WeeklyStreak))
			if outcome.Reset && outcome.DiscardedStreak > 0 {
				result.Events = append(result.Events,
					shared.NewStreakBrokenEvent(cmd.UserID, outcome.DiscardedStreak, outcome.DaysMissed))
			}
			if outcome.DailyBonusEligible {
				queue = append(queue, pendingEvent{
					activityType: progression.ActivityDailyStreak,
					metadata:     progression.StreakMetadata{StreakDays: outcome.DailyStreak},
					depth:        ev.depth + 1,
				})
			}
			if outcome.WeeklyBonusEligible {
				queue = append(queue, pendingEvent{
					activityType: progression.ActivityWeeklyStreak,
					metadata:     progression.WeeklyStreakMetadata{StreakWeeks: outcome.WeeklyStreak},
					depth:        ev.depth + 1,
				})
			}
		}

		// ChallengesAdvanced: only externally-originated events advance
		// challenges (reward loop guard). Streak challenges are driven by
		// the streak update of the same external event.
		if ev.depth == 0 {
			completions, warn := h.advanceChallenges(ctx, tx, cmd.UserID, ev, outcome, today)
			if warn != "" {
				result.Warnings = append(result.Warnings, warn)
			}
			for _, comp := range completions {
				result.CompletedChallenges = append(result.CompletedChallenges, comp)
				result.Events = append(result.Events, shared.NewChallengeCompletedEvent(
					cmd.UserID, comp.Challenge.ID, comp.Challenge.Title, comp.PointsEarned))
				queue = append(queue, pendingEvent{
					activityType: progression.ActivityChallengeCompleted,
					metadata: progression.ChallengeMetadata{
						ChallengeID:    comp.Challenge.ID,
						ChallengeTitle: comp.Challenge.Title,
						Points:         comp.PointsEarned,
					},
					depth: ev.depth + 1,
				})
			}
		}

		// AchievementsEvaluated
		if catalogErr == nil {
			newUnlocks, warn := h.evaluateAchievements(ctx, tx, cmd.UserID, account, catalog, unlocked)
			if warn != "" {
				result.Warnings = append(result.Warnings, warn)
			}
			for _, a := range newUnlocks {
				result.NewAchievements = append(result.NewAchievements, a)
				result.Events = append(result.Events, shared.NewAchievementUnlockedEvent(
					cmd.UserID, a.ID, a.Name, a.PointsReward, int(a.Rarity)))
				queue = append(queue, pendingEvent{
					activityType: progression.ActivityAchievementUnlocked,
					metadata: progression.AchievementMetadata{
						AchievementID:   a.ID,
						AchievementName: a.Name,
						Points:          a.PointsReward,
					},
					depth: ev.depth + 1,
				})
			}
		}
	}

	// Completed
	if err := tx.Accounts().Save(ctx, account); err != nil {
		return nil, shared.WrapError("progression", "Submit", shared.ErrStorage,
			"account save failed", err)
	}
	result.TotalPoints = account.TotalPoints
	result.CurrentLevel = account.CurrentLevel
	return result, nil
}

// loadAchievementState fetches the active catalog and the user's unlock set.
func (h *SubmitActivityHandler) loadAchievementState(ctx context.Context, tx TxRepos, userID string) ([]*achievement.Achievement, map[string]bool, error) {
	catalog, err := tx.Achievements().ActiveCatalog(ctx)
	if err != nil {
		return nil, nil, err
	}
	unlocked, err := tx.Achievements().UnlockedIDs(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if unlocked == nil {
		unlocked = make(map[string]bool)
	}
	return catalog, unlocked, nil
}

// advanceChallenges advances today's relevant challenges for one external
// event. Failures degrade the result instead of failing the submission.
func (h *SubmitActivityHandler) advanceChallenges(
	ctx context.Context,
	tx TxRepos,
	userID string,
	ev pendingEvent,
	outcome progression.StreakOutcome,
	today time.Time,
) ([]ChallengeCompletion, string) {
	challenges, err := tx.Challenges().ActiveForDate(ctx, today)
	if err != nil {
		return nil, "challenge advancement skipped: " + err.Error()
	}

	// The streak was just updated by this event; streak-type challenges
	// advance here rather than from the synthetic daily_streak bonus.
	type step struct {
		activityType progression.ActivityType
		metadata     progression.Metadata
	}
	steps := []step{{ev.activityType, ev.metadata}}
	if outcome.Touched {
		steps = append(steps, step{
			progression.ActivityDailyStreak,
			progression.StreakMetadata{StreakDays: outcome.DailyStreak},
		})
	}

	var completions []ChallengeCompletion
	now := h.clock().UTC()
	for _, ch := range challenges {
		relevant := false
		for _, s := range steps {
			if challenge.IsRelevant(ch.Type, s.activityType) {
				relevant = true
				break
			}
		}
		if !relevant {
			continue
		}

		prog, err := tx.Challenges().GetProgress(ctx, userID, ch.ID)
		if err != nil {
			return completions, "challenge progress unavailable: " + err.Error()
		}
		if prog == nil {
			prog = challenge.NewProgress(userID, ch.ID)
		}
		if prog.Completed {
			// Completed rows are frozen, never re-evaluated.
			continue
		}

		before := prog.Counters
		for _, s := range steps {
			if challenge.Advance(ch, prog, s.activityType, s.metadata, now) {
				completions = append(completions, ChallengeCompletion{
					Challenge:    ch,
					PointsEarned: ch.PointsReward,
				})
			}
		}
		if prog.Counters != before {
			if err := tx.Challenges().SaveProgress(ctx, prog); err != nil {
				return completions, "challenge progress save failed: " + err.Error()
			}
		}
	}
	return completions, ""
}

// evaluateAchievements evaluates the catalog against live user statistics
// and inserts unlock rows. The insert's uniqueness constraint is the
// concurrency guard: only the inserting caller awards the bonus.
func (h *SubmitActivityHandler) evaluateAchievements(
	ctx context.Context,
	tx TxRepos,
	userID string,
	account *progression.Account,
	catalog []*achievement.Achievement,
	unlocked map[string]bool,
) ([]*achievement.Achievement, string) {
	stats, err := h.collectStats(ctx, tx, userID, account)
	if err != nil {
		return nil, "achievement evaluation skipped: " + err.Error()
	}

	var newUnlocks []*achievement.Achievement
	for _, a := range h.evaluator.Evaluate(catalog, unlocked, stats) {
		inserted, err := tx.Achievements().InsertUnlock(ctx, userID, a.ID, h.clock().UTC())
		if err != nil {
			return newUnlocks, "achievement unlock failed: " + err.Error()
		}
		unlocked[a.ID] = true
		if inserted {
			newUnlocks = append(newUnlocks, a)
		}
	}
	return newUnlocks, ""
}

// collectStats assembles the live statistics achievement criteria compare
// against. Quiz and questionnaire counters derive from the ledger.
func (h *SubmitActivityHandler) collectStats(ctx context.Context, tx TxRepos, userID string, account *progression.Account) (achievement.UserStats, error) {
	totalQuizzes, err := tx.Ledger().CountByType(ctx, userID, progression.ActivityQuizCompleted)
	if err != nil {
		return achievement.UserStats{}, err
	}
	perfectScores, err := tx.Ledger().CountPerfectScores(ctx, userID)
	if err != nil {
		return achievement.UserStats{}, err
	}
	habits, err := tx.Ledger().CountByType(ctx, userID, progression.ActivityHabitsQuestionnaire)
	if err != nil {
		return achievement.UserStats{}, err
	}
	return achievement.UserStats{
		TotalQuizzes:    totalQuizzes,
		PerfectScores:   perfectScores,
		DailyStreak:     account.DailyStreak,
		TotalPoints:     account.TotalPoints,
		CurrentLevel:    account.CurrentLevel,
		HabitsCompleted: habits,
	}, nil
}

// afterCommit performs best-effort side effects once the transaction has
// committed: leaderboard cache refresh and event publication.
func (h *SubmitActivityHandler) afterCommit(ctx context.Context, cmd SubmitActivityCommand, result *ProgressionResult) {
	if h.cache != nil {
		if err := h.cache.UpdateScore(ctx, cmd.UserID, result.TotalPoints, result.CurrentLevel); err != nil {
			h.log.Warn("leaderboard cache update failed",
				logger.UserID(cmd.UserID), logger.Err(err))
		}
	}
	if h.publisher != nil {
		for _, event := range result.Events {
			if err := h.publisher.Publish(event); err != nil && !errors.Is(err, context.Canceled) {
				h.log.Warn("event publish failed",
					logger.UserID(cmd.UserID),
					logger.F("event_type", string(event.EventType())),
					logger.Err(err))
			}
		}
	}
	h.log.Info("activity processed",
		logger.UserID(cmd.UserID),
		logger.ActivityType(string(cmd.ActivityType)),
		logger.PointsAmount(result.Entry.PointsEarned),
		logger.LevelNumber(result.CurrentLevel),
		logger.F("cascade_entries", len(result.CascadeEntries)),
		logger.F("new_achievements", len(result.NewAchievements)))
}
