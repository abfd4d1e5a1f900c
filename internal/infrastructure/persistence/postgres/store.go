// Package postgres implements the PostgreSQL persistence layer of the
// progression engine.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/studyhub/progression-engine/internal/application/command"
	"github.com/studyhub/progression-engine/internal/domain/achievement"
	"github.com/studyhub/progression-engine/internal/domain/challenge"
	"github.com/studyhub/progression-engine/internal/domain/progression"
	"github.com/studyhub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// TRANSACTIONAL STORE
// Implements command.Store: one submission runs in one transaction with
// the user's account row locked, so a whole cascade commits atomically.
// ══════════════════════════════════════════════════════════════════════════════

// Store implements command.Store on a PostgreSQL connection.
type Store struct {
	conn *Connection
}

// NewStore creates a new Store.
func NewStore(conn *Connection) *Store {
	return &Store{conn: conn}
}

// Execute runs fn within a single read-write transaction. Serialization
// and lock failures are mapped to shared.ErrConcurrencyConflict so the
// coordinator can retry the submission from the top.
func (s *Store) Execute(ctx context.Context, userID string, fn func(tx command.TxRepos) error) error {
	err := s.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		return fn(&txRepos{q: tx})
	})
	if err != nil {
		if IsConcurrencyConflict(err) {
			return shared.WrapError("progression", "Execute", shared.ErrConcurrentModification,
				"transaction conflict", shared.ErrConcurrencyConflict)
		}
		return err
	}
	return nil
}

// txRepos exposes transaction-bound repositories.
type txRepos struct {
	q Querier
}

func (t *txRepos) Accounts() progression.AccountRepository {
	return newAccountRepository(t.q)
}

func (t *txRepos) Ledger() progression.LedgerRepository {
	return newLedgerRepository(t.q)
}

func (t *txRepos) Achievements() achievement.Repository {
	return newAchievementRepository(t.q)
}

func (t *txRepos) Challenges() challenge.Repository {
	return newChallengeRepository(t.q)
}
