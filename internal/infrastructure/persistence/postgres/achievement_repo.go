// Package postgres implements the PostgreSQL persistence layer of the
// progression engine.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/studyhub/progression-engine/internal/domain/achievement"
	"github.com/studyhub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AchievementRepository implements achievement.Repository for PostgreSQL.
type AchievementRepository struct {
	q Querier
}

// NewAchievementRepository creates a new AchievementRepository on the pool.
func NewAchievementRepository(conn *Connection) *AchievementRepository {
	return &AchievementRepository{q: conn}
}

// newAchievementRepository binds the repository to a transaction.
func newAchievementRepository(q Querier) *AchievementRepository {
	return &AchievementRepository{q: q}
}

const achievementColumns = `
	id, name, description, category, rarity, criteria, points_reward, is_active
`

// ActiveCatalog returns active catalog entries.
func (r *AchievementRepository) ActiveCatalog(ctx context.Context) ([]*achievement.Achievement, error) {
	query := `SELECT ` + achievementColumns + ` FROM achievements WHERE is_active ORDER BY rarity, name`
	return r.queryCatalog(ctx, query)
}

// FullCatalog returns the whole catalog, inactive entries included.
func (r *AchievementRepository) FullCatalog(ctx context.Context) ([]*achievement.Achievement, error) {
	query := `SELECT ` + achievementColumns + ` FROM achievements ORDER BY rarity, name`
	return r.queryCatalog(ctx, query)
}

// Upsert creates or updates a catalog entry keyed by name.
func (r *AchievementRepository) Upsert(ctx context.Context, a *achievement.Achievement) error {
	if err := a.Validate(); err != nil {
		return err
	}

	criteriaJSON, err := json.Marshal(a.Criteria)
	if err != nil {
		return fmt.Errorf("failed to marshal criteria: %w", err)
	}

	query := `
		INSERT INTO achievements (id, name, description, category, rarity, criteria, points_reward, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (name) DO UPDATE SET
			description = EXCLUDED.description,
			category = EXCLUDED.category,
			rarity = EXCLUDED.rarity,
			criteria = EXCLUDED.criteria,
			points_reward = EXCLUDED.points_reward,
			is_active = EXCLUDED.is_active
	`

	_, err = r.q.Exec(ctx, query,
		a.ID,
		a.Name,
		a.Description,
		a.Category,
		int(a.Rarity),
		criteriaJSON,
		a.PointsReward,
		a.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert achievement: %w", err)
	}
	return nil
}

// UnlockedIDs returns the set of achievement IDs unlocked by a user.
func (r *AchievementRepository) UnlockedIDs(ctx context.Context, userID string) (map[string]bool, error) {
	query := `SELECT achievement_id FROM achievement_unlocks WHERE user_id = $1`

	rows, err := r.q.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query unlocks: %w", err)
	}
	defer rows.Close()

	unlocked := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan unlock: %w", err)
		}
		unlocked[id] = true
	}
	return unlocked, rows.Err()
}

// Unlocks returns the unlocks of a user with timestamps.
func (r *AchievementRepository) Unlocks(ctx context.Context, userID string) ([]achievement.Unlock, error) {
	query := `
		SELECT user_id, achievement_id, unlocked_at
		FROM achievement_unlocks
		WHERE user_id = $1
		ORDER BY unlocked_at DESC
	`

	rows, err := r.q.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query unlocks: %w", err)
	}
	defer rows.Close()

	var unlocks []achievement.Unlock
	for rows.Next() {
		var u achievement.Unlock
		if err := rows.Scan(&u.UserID, &u.AchievementID, &u.UnlockedAt); err != nil {
			return nil, fmt.Errorf("failed to scan unlock: %w", err)
		}
		unlocks = append(unlocks, u)
	}
	return unlocks, rows.Err()
}

// InsertUnlock inserts an unlock row. Returns true when this call
// inserted the row: the composite primary key makes the insert the
// idempotency guard, so only the inserting caller awards the bonus.
func (r *AchievementRepository) InsertUnlock(ctx context.Context, userID, achievementID string, unlockedAt time.Time) (bool, error) {
	query := `
		INSERT INTO achievement_unlocks (user_id, achievement_id, unlocked_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, achievement_id) DO NOTHING
	`

	result, err := r.q.Exec(ctx, query, userID, achievementID, unlockedAt.UTC())
	if err != nil {
		if IsForeignKeyViolation(err) {
			return false, shared.WrapError("achievement", "InsertUnlock", shared.ErrNotFound,
				fmt.Sprintf("achievement %s", achievementID), shared.ErrAchievementNotFound)
		}
		return false, fmt.Errorf("failed to insert unlock: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// CountUnlocked returns the number of achievements a user has unlocked.
func (r *AchievementRepository) CountUnlocked(ctx context.Context, userID string) (int, error) {
	query := `SELECT COUNT(*) FROM achievement_unlocks WHERE user_id = $1`

	var count int
	if err := r.q.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unlocks: %w", err)
	}
	return count, nil
}

// queryCatalog runs a catalog query and scans the rows.
func (r *AchievementRepository) queryCatalog(ctx context.Context, query string) ([]*achievement.Achievement, error) {
	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog: %w", err)
	}
	defer rows.Close()

	var catalog []*achievement.Achievement
	for rows.Next() {
		var (
			a            achievement.Achievement
			rarity       int
			criteriaJSON []byte
		)
		err := rows.Scan(
			&a.ID,
			&a.Name,
			&a.Description,
			&a.Category,
			&rarity,
			&criteriaJSON,
			&a.PointsReward,
			&a.Active,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan achievement: %w", err)
		}
		a.Rarity = achievement.Rarity(rarity)
		if err := json.Unmarshal(criteriaJSON, &a.Criteria); err != nil {
			return nil, fmt.Errorf("failed to unmarshal criteria: %w", err)
		}
		catalog = append(catalog, &a)
	}
	return catalog, rows.Err()
}
