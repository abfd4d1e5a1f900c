package achievement

import (
	"time"

	"github.com/studyhub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// CriterionType - тип предиката критерия достижения.
type CriterionType string

const (
	CriterionTotalQuizzes    CriterionType = "total_quizzes"
	CriterionPerfectScores   CriterionType = "perfect_scores"
	CriterionDailyStreak     CriterionType = "daily_streak"
	CriterionTotalPoints     CriterionType = "total_points"
	CriterionLevelReached    CriterionType = "level_reached"
	CriterionHabitsCompleted CriterionType = "habits_completed"
)

// IsValid проверяет, известен ли тип критерия.
func (t CriterionType) IsValid() bool {
	switch t {
	case CriterionTotalQuizzes, CriterionPerfectScores, CriterionDailyStreak,
		CriterionTotalPoints, CriterionLevelReached, CriterionHabitsCompleted:
		return true
	}
	return false
}

// Criterion - один предикат критерия: statistic >= Value.
type Criterion struct {
	Type  CriterionType `json:"type"`
	Value int           `json:"value"`
}

// Rarity - уровень редкости достижения (1-4).
type Rarity int

const (
	RarityCommon    Rarity = 1
	RarityRare      Rarity = 2
	RarityEpic      Rarity = 3
	RarityLegendary Rarity = 4
)

// Label возвращает название редкости.
func (r Rarity) Label() string {
	switch r {
	case RarityRare:
		return "Rare"
	case RarityEpic:
		return "Epic"
	case RarityLegendary:
		return "Legendary"
	default:
		return "Common"
	}
}

// Achievement - элемент каталога достижений (управляется администратором).
type Achievement struct {
	// ID - идентификатор достижения.
	ID string

	// Name - название.
	Name string

	// Description - описание условия.
	Description string

	// Category - категория (milestones, performance, consistency, exploration).
	Category string

	// Rarity - редкость (1-4).
	Rarity Rarity

	// Criteria - упорядоченный список предикатов, объединённых AND.
	Criteria []Criterion

	// PointsReward - награда за разблокировку.
	PointsReward int

	// Active - участвует ли достижение в оценке.
	Active bool
}

// Validate проверяет корректность определения достижения.
func (a *Achievement) Validate() error {
	if a.Name == "" {
		return shared.NewDomainError("achievement", "Validate", shared.ErrEmptyValue, "achievement name is required")
	}
	if len(a.Criteria) == 0 {
		return shared.NewDomainError("achievement", "Validate", shared.ErrInvalidInput, "achievement needs at least one criterion")
	}
	for _, c := range a.Criteria {
		if !c.Type.IsValid() {
			return shared.WrapError("achievement", "Validate", shared.ErrInvalidInput,
				"criterion type "+string(c.Type), shared.ErrUnknownCriteria)
		}
		if c.Value < 0 {
			return shared.NewDomainError("achievement", "Validate", shared.ErrNegativeValue, "criterion value cannot be negative")
		}
	}
	if a.PointsReward < 0 {
		return shared.NewDomainError("achievement", "Validate", shared.ErrNegativeValue, "points reward cannot be negative")
	}
	return nil
}

// Unlock - факт разблокировки достижения пользователем.
// Уникальность пары (userID, achievementID) - защита от двойного начисления.
type Unlock struct {
	UserID        string
	AchievementID string
	UnlockedAt    time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// USER STATS
// ══════════════════════════════════════════════════════════════════════════════

// UserStats - живая статистика пользователя, против которой оцениваются
// критерии. Счётчики квизов и опросников выводятся из ledger.
type UserStats struct {
	TotalQuizzes    int
	PerfectScores   int
	DailyStreak     int
	TotalPoints     int
	CurrentLevel    int
	HabitsCompleted int
}

// Satisfies проверяет один критерий против статистики (сравнение >=).
func (s UserStats) Satisfies(c Criterion) bool {
	switch c.Type {
	case CriterionTotalQuizzes:
		return s.TotalQuizzes >= c.Value
	case CriterionPerfectScores:
		return s.PerfectScores >= c.Value
	case CriterionDailyStreak:
		return s.DailyStreak >= c.Value
	case CriterionTotalPoints:
		return s.TotalPoints >= c.Value
	case CriterionLevelReached:
		return s.CurrentLevel >= c.Value
	case CriterionHabitsCompleted:
		return s.HabitsCompleted >= c.Value
	}
	return false
}

// IsSatisfiedBy проверяет все критерии достижения (AND-семантика).
func (a *Achievement) IsSatisfiedBy(stats UserStats) bool {
	for _, c := range a.Criteria {
		if !stats.Satisfies(c) {
			return false
		}
	}
	return len(a.Criteria) > 0
}

// CompletionPercent возвращает долю выполненных критериев (0-100)
// для аннотации каталога. Разблокированное достижение всегда 100.
func (a *Achievement) CompletionPercent(stats UserStats, unlocked bool) float64 {
	if unlocked {
		return 100
	}
	if len(a.Criteria) == 0 {
		return 0
	}
	met := 0
	for _, c := range a.Criteria {
		if stats.Satisfies(c) {
			met++
		}
	}
	return float64(met) / float64(len(a.Criteria)) * 100
}
