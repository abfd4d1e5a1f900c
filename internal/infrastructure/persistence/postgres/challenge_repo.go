// Package postgres implements the PostgreSQL persistence layer of the
// progression engine.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/studyhub/progression-engine/internal/domain/challenge"
	"github.com/studyhub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHALLENGE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ChallengeRepository implements challenge.Repository for PostgreSQL.
type ChallengeRepository struct {
	q Querier
}

// NewChallengeRepository creates a new ChallengeRepository on the pool.
func NewChallengeRepository(conn *Connection) *ChallengeRepository {
	return &ChallengeRepository{q: conn}
}

// newChallengeRepository binds the repository to a transaction.
func newChallengeRepository(q Querier) *ChallengeRepository {
	return &ChallengeRepository{q: q}
}

// ActiveForDate returns the active challenges of a date.
func (r *ChallengeRepository) ActiveForDate(ctx context.Context, date time.Time) ([]*challenge.Challenge, error) {
	query := `
		SELECT id, title, description, challenge_type, requirements, points_reward, challenge_date, is_active
		FROM daily_challenges
		WHERE challenge_date = $1 AND is_active
		ORDER BY title
	`

	rows, err := r.q.Query(ctx, query, date.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query challenges: %w", err)
	}
	defer rows.Close()

	var challenges []*challenge.Challenge
	for rows.Next() {
		var (
			c                challenge.Challenge
			challengeType    string
			requirementsJSON []byte
		)
		err := rows.Scan(
			&c.ID,
			&c.Title,
			&c.Description,
			&challengeType,
			&requirementsJSON,
			&c.PointsReward,
			&c.Date,
			&c.Active,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan challenge: %w", err)
		}
		c.Type = challenge.Type(challengeType)
		if err := json.Unmarshal(requirementsJSON, &c.Requirements); err != nil {
			return nil, fmt.Errorf("failed to unmarshal requirements: %w", err)
		}
		challenges = append(challenges, &c)
	}
	return challenges, rows.Err()
}

// ExistsForDate reports whether the date already has a cohort.
func (r *ChallengeRepository) ExistsForDate(ctx context.Context, date time.Time) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM daily_challenges WHERE challenge_date = $1)`

	var exists bool
	if err := r.q.QueryRow(ctx, query, date.UTC()).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check cohort: %w", err)
	}
	return exists, nil
}

// Insert inserts a challenge; a duplicate (date, title) is silently
// skipped so concurrent generators converge. Returns true when this
// call inserted the row.
func (r *ChallengeRepository) Insert(ctx context.Context, c *challenge.Challenge) (bool, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	requirementsJSON, err := json.Marshal(c.Requirements)
	if err != nil {
		return false, fmt.Errorf("failed to marshal requirements: %w", err)
	}

	query := `
		INSERT INTO daily_challenges (id, title, description, challenge_type, requirements, points_reward, challenge_date, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (challenge_date, title) DO NOTHING
	`

	result, err := r.q.Exec(ctx, query,
		c.ID,
		c.Title,
		c.Description,
		string(c.Type),
		requirementsJSON,
		c.PointsReward,
		c.Date.UTC(),
		c.Active,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert challenge: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// GetProgress returns the progress of a user for one challenge.
// Returns nil without error when there is no progress row yet.
func (r *ChallengeRepository) GetProgress(ctx context.Context, userID, challengeID string) (*challenge.Progress, error) {
	query := `
		SELECT user_id, challenge_id, counters, completed, completed_at
		FROM challenge_progress
		WHERE user_id = $1 AND challenge_id = $2
	`

	var (
		p            challenge.Progress
		countersJSON []byte
		completedAt  *time.Time
	)
	err := r.q.QueryRow(ctx, query, userID, challengeID).Scan(
		&p.UserID,
		&p.ChallengeID,
		&countersJSON,
		&p.Completed,
		&completedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get progress: %w", err)
	}

	if err := json.Unmarshal(countersJSON, &p.Counters); err != nil {
		return nil, fmt.Errorf("failed to unmarshal counters: %w", err)
	}
	if completedAt != nil {
		p.CompletedAt = completedAt.UTC()
	}
	return &p, nil
}

// SaveProgress creates or updates a progress row.
func (r *ChallengeRepository) SaveProgress(ctx context.Context, p *challenge.Progress) error {
	countersJSON, err := json.Marshal(p.Counters)
	if err != nil {
		return fmt.Errorf("failed to marshal counters: %w", err)
	}

	query := `
		INSERT INTO challenge_progress (user_id, challenge_id, counters, completed, completed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (user_id, challenge_id) DO UPDATE SET
			counters = EXCLUDED.counters,
			completed = EXCLUDED.completed,
			completed_at = EXCLUDED.completed_at,
			updated_at = NOW()
	`

	_, err = r.q.Exec(ctx, query,
		p.UserID,
		p.ChallengeID,
		countersJSON,
		p.Completed,
		nullableDate(p.CompletedAt),
	)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return shared.WrapError("challenge", "SaveProgress", shared.ErrNotFound,
				fmt.Sprintf("challenge %s", p.ChallengeID), shared.ErrChallengeNotFound)
		}
		return fmt.Errorf("failed to save progress: %w", err)
	}
	return nil
}

// ProgressForDate returns the progress of a user for all challenges of
// a date, keyed by challenge ID.
func (r *ChallengeRepository) ProgressForDate(ctx context.Context, userID string, date time.Time) (map[string]*challenge.Progress, error) {
	query := `
		SELECT p.user_id, p.challenge_id, p.counters, p.completed, p.completed_at
		FROM challenge_progress p
		JOIN daily_challenges c ON c.id = p.challenge_id
		WHERE p.user_id = $1 AND c.challenge_date = $2
	`

	rows, err := r.q.Query(ctx, query, userID, date.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query progress: %w", err)
	}
	defer rows.Close()

	progress := make(map[string]*challenge.Progress)
	for rows.Next() {
		var (
			p            challenge.Progress
			countersJSON []byte
			completedAt  *time.Time
		)
		err := rows.Scan(&p.UserID, &p.ChallengeID, &countersJSON, &p.Completed, &completedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan progress: %w", err)
		}
		if err := json.Unmarshal(countersJSON, &p.Counters); err != nil {
			return nil, fmt.Errorf("failed to unmarshal counters: %w", err)
		}
		if completedAt != nil {
			p.CompletedAt = completedAt.UTC()
		}
		progress[p.ChallengeID] = &p
	}
	return progress, rows.Err()
}
