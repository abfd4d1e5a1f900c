package progression

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Эти интерфейсы определяют контракт для работы с хранилищем данных.
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// AccountRepository определяет операции над аккаунтами прогрессии.
type AccountRepository interface {
	// Get возвращает аккаунт пользователя.
	// Возвращает ErrAccountNotFound, если аккаунта ещё нет.
	Get(ctx context.Context, userID string) (*Account, error)

	// GetOrCreateForUpdate возвращает аккаунт, создавая его лениво при
	// первом событии, и берёт блокировку строки на время транзакции.
	// Вне транзакции поведение не определено.
	GetOrCreateForUpdate(ctx context.Context, userID string) (*Account, error)

	// Save сохраняет изменённые счётчики аккаунта.
	Save(ctx context.Context, account *Account) error

	// Top возвращает аккаунты, отсортированные по
	// (totalPoints desc, currentLevel desc).
	Top(ctx context.Context, limit int) ([]*Account, error)

	// RankOf возвращает позицию пользователя в рейтинге (1-based).
	RankOf(ctx context.Context, userID string) (int, error)

	// Count возвращает общее количество аккаунтов.
	Count(ctx context.Context) (int, error)

	// AllUserIDs возвращает идентификаторы всех аккаунтов (для job-а сверки).
	AllUserIDs(ctx context.Context) ([]string, error)
}

// LedgerRepository определяет операции над ledger.
// Только append и чтение: update/delete не существуют по построению.
type LedgerRepository interface {
	// Append добавляет запись. Единственная причина ошибки - хранилище.
	Append(ctx context.Context, entry *LedgerEntry) error

	// SumPoints возвращает сумму очков пользователя по всем записям.
	SumPoints(ctx context.Context, userID string) (int, error)

	// SumSince возвращает сумму очков начиная с cutoff
	// ("очки за сегодня", "очки за неделю").
	SumSince(ctx context.Context, userID string, cutoff time.Time) (int, error)

	// RecentEntries возвращает последние записи, новые первыми.
	RecentEntries(ctx context.Context, userID string, limit int) ([]*LedgerEntry, error)

	// CountByType возвращает количество записей данного типа активности.
	// Статистика для критериев достижений выводится из ledger.
	CountByType(ctx context.Context, userID string, activityType ActivityType) (int, error)

	// CountPerfectScores возвращает количество квизов со score >= 100.
	CountPerfectScores(ctx context.Context, userID string) (int, error)
}

// LeaderboardCache определяет кеш рейтинга (обычно Redis sorted set).
// Кеш вторичен: источник истины - таблица аккаунтов.
type LeaderboardCache interface {
	// UpdateScore обновляет очки и уровень пользователя в кеше.
	UpdateScore(ctx context.Context, userID string, totalPoints, level int) error

	// Top возвращает топ-N записей кеша.
	Top(ctx context.Context, limit int) ([]LeaderboardRow, error)

	// RankOf возвращает позицию пользователя (1-based), 0 если не в кеше.
	RankOf(ctx context.Context, userID string) (int, error)

	// Rebuild атомарно замещает содержимое кеша.
	Rebuild(ctx context.Context, rows []LeaderboardRow) error
}

// LeaderboardRow - одна строка рейтинга.
type LeaderboardRow struct {
	Rank        int
	UserID      string
	TotalPoints int
	Level       int
	LevelTitle  string
}
