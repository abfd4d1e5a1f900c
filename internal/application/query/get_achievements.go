package query

import (
	"context"
	"time"

	"github.com/studyhub/progression-engine/internal/domain/achievement"
	"github.com/studyhub/progression-engine/internal/domain/progression"
	"github.com/studyhub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET ACHIEVEMENTS QUERY
// Возвращает каталог достижений, аннотированный статусом пользователя:
// разблокировано/нет, когда, и процент выполнения критериев.
// ══════════════════════════════════════════════════════════════════════════════

// GetAchievementsQuery содержит параметры запроса достижений.
type GetAchievementsQuery struct {
	// UserID - идентификатор пользователя.
	UserID string

	// OnlyUnlocked - вернуть только разблокированные.
	OnlyUnlocked bool
}

// Validate проверяет корректность параметров запроса.
func (q *GetAchievementsQuery) Validate() error {
	if q.UserID == "" {
		return shared.NewDomainError("query", "GetAchievements", shared.ErrEmptyValue, "user id is required")
	}
	return nil
}

// AchievementDTO - DTO элемента каталога с пользовательским статусом.
type AchievementDTO struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	Category     string     `json:"category"`
	Rarity       int        `json:"rarity"`
	RarityLabel  string     `json:"rarity_label"`
	PointsReward int        `json:"points_reward"`
	Unlocked     bool       `json:"unlocked"`
	UnlockedAt   *time.Time `json:"unlocked_at,omitempty"`

	// CompletionPercent - прогресс по критериям (0-100, 100 = разблокировано).
	CompletionPercent float64 `json:"completion_percent"`
}

// GetAchievementsResult содержит аннотированный каталог.
type GetAchievementsResult struct {
	Achievements  []AchievementDTO `json:"achievements"`
	UnlockedCount int              `json:"unlocked_count"`
	TotalCount    int              `json:"total_count"`
}

// GetAchievementsHandler обрабатывает запросы каталога достижений.
type GetAchievementsHandler struct {
	achievements achievement.Repository
	accounts     progression.AccountRepository
	ledger       progression.LedgerRepository
}

// NewGetAchievementsHandler создаёт новый обработчик.
func NewGetAchievementsHandler(
	achievements achievement.Repository,
	accounts progression.AccountRepository,
	ledger progression.LedgerRepository,
) *GetAchievementsHandler {
	return &GetAchievementsHandler{
		achievements: achievements,
		accounts:     accounts,
		ledger:       ledger,
	}
}

// Handle выполняет запрос каталога достижений.
func (h *GetAchievementsHandler) Handle(ctx context.Context, query GetAchievementsQuery) (*GetAchievementsResult, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	catalog, err := h.achievements.ActiveCatalog(ctx)
	if err != nil {
		return nil, shared.WrapError("query", "GetAchievements", shared.ErrStorage,
			"failed to load catalog", err)
	}

	unlocks, err := h.achievements.Unlocks(ctx, query.UserID)
	if err != nil {
		return nil, shared.WrapError("query", "GetAchievements", shared.ErrStorage,
			"failed to load unlocks", err)
	}
	unlockedAt := make(map[string]time.Time, len(unlocks))
	for _, u := range unlocks {
		unlockedAt[u.AchievementID] = u.UnlockedAt
	}

	stats := h.collectStats(ctx, query.UserID)

	result := &GetAchievementsResult{TotalCount: len(catalog)}
	for _, a := range catalog {
		at, unlocked := unlockedAt[a.ID]
		if unlocked {
			result.UnlockedCount++
		}
		if query.OnlyUnlocked && !unlocked {
			continue
		}

		dto := AchievementDTO{
			ID:                a.ID,
			Name:              a.Name,
			Description:       a.Description,
			Category:          a.Category,
			Rarity:            int(a.Rarity),
			RarityLabel:       a.Rarity.Label(),
			PointsReward:      a.PointsReward,
			Unlocked:          unlocked,
			CompletionPercent: a.CompletionPercent(stats, unlocked),
		}
		if unlocked {
			at := at
			dto.UnlockedAt = &at
		}
		result.Achievements = append(result.Achievements, dto)
	}

	return result, nil
}

// collectStats собирает статистику пользователя для процента выполнения.
// Ошибки дают нулевую статистику: каталог важнее точности процентов.
func (h *GetAchievementsHandler) collectStats(ctx context.Context, userID string) achievement.UserStats {
	var stats achievement.UserStats

	account, err := h.accounts.Get(ctx, userID)
	if err == nil {
		stats.DailyStreak = account.DailyStreak
		stats.TotalPoints = account.TotalPoints
		stats.CurrentLevel = account.CurrentLevel
	}
	if n, err := h.ledger.CountByType(ctx, userID, progression.ActivityQuizCompleted); err == nil {
		stats.TotalQuizzes = n
	}
	if n, err := h.ledger.CountPerfectScores(ctx, userID); err == nil {
		stats.PerfectScores = n
	}
	if n, err := h.ledger.CountByType(ctx, userID, progression.ActivityHabitsQuestionnaire); err == nil {
		stats.HabitsCompleted = n
	}
	return stats
}
