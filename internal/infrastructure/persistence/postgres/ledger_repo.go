// Package postgres implements the PostgreSQL persistence layer of the
// progression engine.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/studyhub/progression-engine/internal/domain/progression"
	"github.com/studyhub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER REPOSITORY IMPLEMENTATION
// The ledger is append-only: this repository exposes no update or delete.
// ══════════════════════════════════════════════════════════════════════════════

// LedgerRepository implements progression.LedgerRepository for PostgreSQL.
type LedgerRepository struct {
	q Querier
}

// NewLedgerRepository creates a new LedgerRepository on the pool.
func NewLedgerRepository(conn *Connection) *LedgerRepository {
	return &LedgerRepository{q: conn}
}

// newLedgerRepository binds the repository to a transaction.
func newLedgerRepository(q Querier) *LedgerRepository {
	return &LedgerRepository{q: q}
}

// Append writes one ledger entry.
func (r *LedgerRepository) Append(ctx context.Context, entry *progression.LedgerEntry) error {
	query := `
		INSERT INTO point_transactions (
			id, user_id, activity_type, points_earned, description, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	_, err := r.q.Exec(ctx, query,
		entry.ID,
		entry.UserID,
		string(entry.ActivityType),
		entry.PointsEarned,
		entry.Description,
		metadataJSON,
		entry.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.WrapError("progression", "Append", shared.ErrAlreadyExists,
				fmt.Sprintf("ledger entry %s", entry.ID), shared.ErrLedgerAppendOnly)
		}
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

// SumPoints returns the ledger total of a user. This is the source of
// truth the cached account total reconciles against.
func (r *LedgerRepository) SumPoints(ctx context.Context, userID string) (int, error) {
	query := `SELECT COALESCE(SUM(points_earned), 0) FROM point_transactions WHERE user_id = $1`

	var sum int
	if err := r.q.QueryRow(ctx, query, userID).Scan(&sum); err != nil {
		return 0, fmt.Errorf("failed to sum points: %w", err)
	}
	return sum, nil
}

// SumSince returns points earned at or after cutoff.
func (r *LedgerRepository) SumSince(ctx context.Context, userID string, cutoff time.Time) (int, error) {
	query := `
		SELECT COALESCE(SUM(points_earned), 0)
		FROM point_transactions
		WHERE user_id = $1 AND created_at >= $2
	`

	var sum int
	if err := r.q.QueryRow(ctx, query, userID, cutoff.UTC()).Scan(&sum); err != nil {
		return 0, fmt.Errorf("failed to sum points since cutoff: %w", err)
	}
	return sum, nil
}

// RecentEntries returns the latest entries, newest first.
func (r *LedgerRepository) RecentEntries(ctx context.Context, userID string, limit int) ([]*progression.LedgerEntry, error) {
	query := `
		SELECT id, user_id, activity_type, points_earned, description, metadata, created_at
		FROM point_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*progression.LedgerEntry
	for rows.Next() {
		var (
			entry        progression.LedgerEntry
			activityType string
			metadataJSON []byte
		)
		err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&activityType,
			&entry.PointsEarned,
			&entry.Description,
			&metadataJSON,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entry.ActivityType = progression.ActivityType(activityType)
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// CountByType returns the number of entries of one activity type.
func (r *LedgerRepository) CountByType(ctx context.Context, userID string, activityType progression.ActivityType) (int, error) {
	query := `
		SELECT COUNT(*) FROM point_transactions
		WHERE user_id = $1 AND activity_type = $2
	`

	var count int
	if err := r.q.QueryRow(ctx, query, userID, string(activityType)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return count, nil
}

// CountPerfectScores returns the number of quizzes finished with a
// score of 100 or more, read from the entry metadata.
func (r *LedgerRepository) CountPerfectScores(ctx context.Context, userID string) (int, error) {
	query := `
		SELECT COUNT(*) FROM point_transactions
		WHERE user_id = $1
		  AND activity_type = $2
		  AND (metadata->>'score')::int >= 100
	`

	var count int
	err := r.q.QueryRow(ctx, query, userID, string(progression.ActivityQuizCompleted)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count perfect scores: %w", err)
	}
	return count, nil
}
