package achievement

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции над каталогом и разблокировками.
type Repository interface {
	// ActiveCatalog возвращает активные достижения каталога.
	ActiveCatalog(ctx context.Context) ([]*Achievement, error)

	// FullCatalog возвращает весь каталог, включая неактивные.
	FullCatalog(ctx context.Context) ([]*Achievement, error)

	// Upsert создаёт или обновляет элемент каталога.
	Upsert(ctx context.Context, a *Achievement) error

	// UnlockedIDs возвращает ID достижений, разблокированных пользователем.
	UnlockedIDs(ctx context.Context, userID string) (map[string]bool, error)

	// Unlocks возвращает разблокировки пользователя с временем.
	Unlocks(ctx context.Context, userID string) ([]Unlock, error)

	// InsertUnlock вставляет разблокировку с ON CONFLICT DO NOTHING.
	// Возвращает true, если строка вставлена этим вызовом: только
	// вставивший начисляет бонусные очки.
	InsertUnlock(ctx context.Context, userID, achievementID string, unlockedAt time.Time) (bool, error)

	// CountUnlocked возвращает количество достижений пользователя.
	CountUnlocked(ctx context.Context, userID string) (int, error)
}
