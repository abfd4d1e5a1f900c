package command

import (
	"context"
	"time"

	"github.com/studyhub/progression-engine/internal/domain/challenge"
	"github.com/studyhub/progression-engine/internal/domain/shared"
	"github.com/studyhub/progression-engine/pkg/logger"
	"github.com/studyhub/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GENERATE CHALLENGES COMMAND
// Creates the daily challenge cohort for a date. Idempotent: an existing
// cohort is never recreated, and concurrent generators racing on the same
// date converge via the (date, title) uniqueness constraint.
// ══════════════════════════════════════════════════════════════════════════════

// GenerateChallengesCommand requests cohort generation for a date.
type GenerateChallengesCommand struct {
	// Date is the target date. Zero means "today".
	Date time.Time

	// Force inserts missing challenges even when the date already has
	// a cohort (used after extending the default set).
	Force bool
}

// GenerateChallengesResult reports what the generation pass did.
type GenerateChallengesResult struct {
	Date    time.Time
	Created int
	Skipped int
	Events  []shared.Event
}

// GenerateChallengesHandler handles the GenerateChallengesCommand.
type GenerateChallengesHandler struct {
	challenges challenge.Repository
	publisher  shared.EventPublisher
	log        *logger.Logger
	clock      func() time.Time

	// cohort builds the challenge set for a date; defaults to the
	// standard three-challenge cohort.
	cohort func(date time.Time) []*challenge.Challenge
}

// NewGenerateChallengesHandler creates a new GenerateChallengesHandler.
func NewGenerateChallengesHandler(
	challenges challenge.Repository,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *GenerateChallengesHandler {
	if log == nil {
		log = logger.Default()
	}
	return &GenerateChallengesHandler{
		challenges: challenges,
		publisher:  publisher,
		log:        log,
		clock:      time.Now,
		cohort:     challenge.DefaultCohort,
	}
}

// WithCohort overrides the cohort builder (tests, seasonal sets).
func (h *GenerateChallengesHandler) WithCohort(cohort func(date time.Time) []*challenge.Challenge) *GenerateChallengesHandler {
	h.cohort = cohort
	return h
}

// Handle executes the generate challenges command.
func (h *GenerateChallengesHandler) Handle(ctx context.Context, cmd GenerateChallengesCommand) (*GenerateChallengesResult, error) {
	date := cmd.Date
	if date.IsZero() {
		date = h.clock().UTC()
	}
	date = timeutil.StartOfDay(date)

	result := &GenerateChallengesResult{Date: date}

	exists, err := h.challenges.ExistsForDate(ctx, date)
	if err != nil {
		return nil, shared.WrapError("challenge", "Generate", shared.ErrStorage,
			"cohort existence check failed", err)
	}
	if exists && !cmd.Force {
		h.log.Debug("challenge cohort already exists",
			logger.F("date", timeutil.FormatDateStr(date)))
		return result, nil
	}

	for _, c := range h.cohort(date) {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		inserted, err := h.challenges.Insert(ctx, c)
		if err != nil {
			return nil, shared.WrapError("challenge", "Generate", shared.ErrStorage,
				"challenge insert failed", err)
		}
		if inserted {
			result.Created++
		} else {
			result.Skipped++
		}
	}

	if result.Created > 0 {
		event := shared.NewChallengesGeneratedEvent(
			timeutil.FormatDateStr(date), result.Created, result.Skipped)
		result.Events = append(result.Events, event)
		if h.publisher != nil {
			if err := h.publisher.Publish(event); err != nil {
				h.log.Warn("event publish failed", logger.Err(err))
			}
		}
	}

	h.log.Info("challenge cohort generated",
		logger.F("date", timeutil.FormatDateStr(date)),
		logger.F("created", result.Created),
		logger.F("skipped", result.Skipped))
	return result, nil
}
