package challenge

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции над челленджами и прогрессом.
type Repository interface {
	// ActiveForDate возвращает активные челленджи на дату.
	ActiveForDate(ctx context.Context, date time.Time) ([]*Challenge, error)

	// ExistsForDate проверяет, есть ли когорта на дату.
	ExistsForDate(ctx context.Context, date time.Time) (bool, error)

	// Insert вставляет челлендж; дубликат (date, title) молча пропускается.
	// Возвращает true, если строка вставлена этим вызовом.
	Insert(ctx context.Context, c *Challenge) (bool, error)

	// GetProgress возвращает прогресс пользователя по челленджу.
	// Возвращает nil без ошибки, если прогресса ещё нет.
	GetProgress(ctx context.Context, userID, challengeID string) (*Progress, error)

	// SaveProgress создаёт или обновляет строку прогресса.
	SaveProgress(ctx context.Context, p *Progress) error

	// ProgressForDate возвращает прогресс пользователя по всем
	// челленджам даты (для дашборда).
	ProgressForDate(ctx context.Context, userID string, date time.Time) (map[string]*Progress, error)
}
