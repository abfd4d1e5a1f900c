// Package postgres implements the PostgreSQL persistence layer of the
// progression engine.
package postgres

import (
	"fmt"
	"time"

	"context"

	"github.com/studyhub/progression-engine/internal/domain/progression"
	"github.com/studyhub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACCOUNT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AccountRepository implements progression.AccountRepository for PostgreSQL.
type AccountRepository struct {
	q Querier
}

// NewAccountRepository creates a new AccountRepository on the pool.
func NewAccountRepository(conn *Connection) *AccountRepository {
	return &AccountRepository{q: conn}
}

// newAccountRepository binds the repository to a transaction.
func newAccountRepository(q Querier) *AccountRepository {
	return &AccountRepository{q: q}
}

const accountColumns = `
	user_id, total_points, current_level, points_in_level,
	daily_streak, weekly_streak, last_activity_date, last_week_start,
	created_at, updated_at
`

// Get returns the account of a user.
func (r *AccountRepository) Get(ctx context.Context, userID string) (*progression.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM progression_accounts WHERE user_id = $1`

	account, err := r.scanAccount(r.q.QueryRow(ctx, query, userID))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.WrapError("progression", "Get", shared.ErrNotFound,
				fmt.Sprintf("account for user %s", userID), shared.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// GetOrCreateForUpdate returns the account with its row locked for the
// duration of the transaction, creating it lazily on first activity.
// Must be called inside a transaction; the lock serializes concurrent
// submissions for the same user.
func (r *AccountRepository) GetOrCreateForUpdate(ctx context.Context, userID string) (*progression.Account, error) {
	fresh := progression.NewAccount(userID)

	insert := `
		INSERT INTO progression_accounts (
			user_id, total_points, current_level, points_in_level,
			daily_streak, weekly_streak, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO NOTHING
	`
	_, err := r.q.Exec(ctx, insert,
		fresh.UserID,
		fresh.TotalPoints,
		fresh.CurrentLevel,
		fresh.PointsInLevel,
		fresh.DailyStreak,
		fresh.WeeklyStreak,
		fresh.CreatedAt,
		fresh.UpdatedAt,
	)
	if err != nil {
		if IsConcurrencyConflict(err) {
			return nil, shared.WrapError("progression", "GetOrCreateForUpdate", shared.ErrConcurrentModification,
				"account insert conflict", shared.ErrConcurrencyConflict)
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	query := `SELECT ` + accountColumns + ` FROM progression_accounts WHERE user_id = $1 FOR UPDATE`
	account, err := r.scanAccount(r.q.QueryRow(ctx, query, userID))
	if err != nil {
		if IsConcurrencyConflict(err) {
			return nil, shared.WrapError("progression", "GetOrCreateForUpdate", shared.ErrConcurrentModification,
				"account row lock conflict", shared.ErrConcurrencyConflict)
		}
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}
	return account, nil
}

// Save persists the account state.
func (r *AccountRepository) Save(ctx context.Context, account *progression.Account) error {
	query := `
		UPDATE progression_accounts SET
			total_points = $1,
			current_level = $2,
			points_in_level = $3,
			daily_streak = $4,
			weekly_streak = $5,
			last_activity_date = $6,
			last_week_start = $7,
			updated_at = $8
		WHERE user_id = $9
	`

	account.UpdatedAt = time.Now().UTC()
	result, err := r.q.Exec(ctx, query,
		account.TotalPoints,
		account.CurrentLevel,
		account.PointsInLevel,
		account.DailyStreak,
		account.WeeklyStreak,
		nullableDate(account.LastActivityDate),
		nullableDate(account.LastWeekStart),
		account.UpdatedAt,
		account.UserID,
	)
	if err != nil {
		if IsConcurrencyConflict(err) {
			return shared.WrapError("progression", "Save", shared.ErrConcurrentModification,
				"account save conflict", shared.ErrConcurrencyConflict)
		}
		return fmt.Errorf("failed to save account: %w", err)
	}
	if result.RowsAffected() == 0 {
		return shared.WrapError("progression", "Save", shared.ErrNotFound,
			fmt.Sprintf("account for user %s", account.UserID), shared.ErrAccountNotFound)
	}
	return nil
}

// Top returns the leaderboard ordering: total points, then level.
func (r *AccountRepository) Top(ctx context.Context, limit int) ([]*progression.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM progression_accounts
		ORDER BY total_points DESC, current_level DESC
		LIMIT $1
	`

	rows, err := r.q.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*progression.Account
	for rows.Next() {
		account, err := r.scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// RankOf returns the 1-based leaderboard position of a user.
func (r *AccountRepository) RankOf(ctx context.Context, userID string) (int, error) {
	query := `
		SELECT rank FROM (
			SELECT user_id,
			       RANK() OVER (ORDER BY total_points DESC, current_level DESC) AS rank
			FROM progression_accounts
		) ranked
		WHERE user_id = $1
	`

	var rank int
	if err := r.q.QueryRow(ctx, query, userID).Scan(&rank); err != nil {
		if IsNoRows(err) {
			return 0, shared.WrapError("progression", "RankOf", shared.ErrNotFound,
				fmt.Sprintf("account for user %s", userID), shared.ErrAccountNotFound)
		}
		return 0, fmt.Errorf("failed to get rank: %w", err)
	}
	return rank, nil
}

// Count returns the number of accounts.
func (r *AccountRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM progression_accounts`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count accounts: %w", err)
	}
	return count, nil
}

// AllUserIDs returns the user IDs of all accounts (reconciliation jobs).
func (r *AccountRepository) AllUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.q.Query(ctx, `SELECT user_id FROM progression_accounts ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query user ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Scan helpers
// ─────────────────────────────────────────────────────────────────────────────

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *AccountRepository) scanAccount(row rowScanner) (*progression.Account, error) {
	var (
		account          progression.Account
		lastActivityDate *time.Time
		lastWeekStart    *time.Time
	)

	err := row.Scan(
		&account.UserID,
		&account.TotalPoints,
		&account.CurrentLevel,
		&account.PointsInLevel,
		&account.DailyStreak,
		&account.WeeklyStreak,
		&lastActivityDate,
		&lastWeekStart,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastActivityDate != nil {
		account.LastActivityDate = lastActivityDate.UTC()
	}
	if lastWeekStart != nil {
		account.LastWeekStart = lastWeekStart.UTC()
	}
	return &account, nil
}

// nullableDate maps the zero time to SQL NULL.
func nullableDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}
