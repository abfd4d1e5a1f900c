package achievement

import (
	"context"

	"github.com/google/uuid"
)

// DefaultCatalog возвращает стартовый каталог достижений.
// Сид выполняется при старте приложения через SeedCatalog;
// дальше каталог управляется администратором.
func DefaultCatalog() []*Achievement {
	defs := []*Achievement{
		{
			Name:         "First Steps",
			Description:  "Complete your first quiz",
			Category:     "milestones",
			Rarity:       RarityCommon,
			Criteria:     []Criterion{{Type: CriterionTotalQuizzes, Value: 1}},
			PointsReward: 25,
		},
		{
			Name:         "Perfect Score",
			Description:  "Achieve 100% on any quiz",
			Category:     "performance",
			Rarity:       RarityRare,
			Criteria:     []Criterion{{Type: CriterionPerfectScores, Value: 1}},
			PointsReward: 50,
		},
		{
			Name:         "Streak Master",
			Description:  "Maintain a 7-day learning streak",
			Category:     "consistency",
			Rarity:       RarityRare,
			Criteria:     []Criterion{{Type: CriterionDailyStreak, Value: 7}},
			PointsReward: 100,
		},
		{
			Name:         "Quiz Enthusiast",
			Description:  "Complete 10 quizzes",
			Category:     "milestones",
			Rarity:       RarityRare,
			Criteria:     []Criterion{{Type: CriterionTotalQuizzes, Value: 10}},
			PointsReward: 75,
		},
		{
			Name:         "Knowledge Seeker",
			Description:  "Complete the learning habits questionnaire",
			Category:     "exploration",
			Rarity:       RarityCommon,
			Criteria:     []Criterion{{Type: CriterionHabitsCompleted, Value: 1}},
			PointsReward: 30,
		},
		{
			Name:         "Perfectionist",
			Description:  "Achieve 100% on 5 different quizzes",
			Category:     "performance",
			Rarity:       RarityEpic,
			Criteria:     []Criterion{{Type: CriterionPerfectScores, Value: 5}},
			PointsReward: 200,
		},
		{
			Name:         "Point Collector",
			Description:  "Earn 500 total points",
			Category:     "milestones",
			Rarity:       RarityRare,
			Criteria:     []Criterion{{Type: CriterionTotalPoints, Value: 500}},
			PointsReward: 50,
		},
		{
			Name:         "Dedicated Learner",
			Description:  "Maintain a 30-day learning streak",
			Category:     "consistency",
			Rarity:       RarityEpic,
			Criteria:     []Criterion{{Type: CriterionDailyStreak, Value: 30}},
			PointsReward: 500,
		},
		{
			Name:         "Rising Star",
			Description:  "Reach Level 5",
			Category:     "milestones",
			Rarity:       RarityRare,
			Criteria:     []Criterion{{Type: CriterionLevelReached, Value: 5}},
			PointsReward: 150,
		},
		{
			Name:         "Quiz Master",
			Description:  "Complete 50 quizzes",
			Category:     "milestones",
			Rarity:       RarityEpic,
			Criteria:     []Criterion{{Type: CriterionTotalQuizzes, Value: 50}},
			PointsReward: 300,
		},
		{
			Name:         "Elite Scholar",
			Description:  "Reach Level 10",
			Category:     "milestones",
			Rarity:       RarityLegendary,
			Criteria:     []Criterion{{Type: CriterionLevelReached, Value: 10}},
			PointsReward: 500,
		},
		{
			Name:         "Unstoppable",
			Description:  "Maintain a 100-day learning streak",
			Category:     "consistency",
			Rarity:       RarityLegendary,
			Criteria:     []Criterion{{Type: CriterionDailyStreak, Value: 100}},
			PointsReward: 1000,
		},
	}

	for _, a := range defs {
		a.ID = uuid.NewString()
		a.Active = true
	}
	return defs
}

// SeedCatalog дозаполняет каталог недостающими элементами DefaultCatalog.
// Существующие записи (по имени) не трогаются, чтобы не затирать правки
// администратора. Возвращает количество созданных достижений.
func SeedCatalog(ctx context.Context, repo Repository) (int, error) {
	existing, err := repo.FullCatalog(ctx)
	if err != nil {
		return 0, err
	}
	known := make(map[string]bool, len(existing))
	for _, a := range existing {
		known[a.Name] = true
	}

	created := 0
	for _, a := range DefaultCatalog() {
		if known[a.Name] {
			continue
		}
		if err := repo.Upsert(ctx, a); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}
