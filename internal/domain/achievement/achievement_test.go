package achievement

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCriterionType_IsValid(t *testing.T) {
	assert.True(t, CriterionTotalQuizzes.IsValid())
	assert.True(t, CriterionPerfectScores.IsValid())
	assert.True(t, CriterionLevelReached.IsValid())
	assert.False(t, CriterionType("total_logins").IsValid())
}

func TestUserStats_Satisfies(t *testing.T) {
	stats := UserStats{
		TotalQuizzes:    10,
		PerfectScores:   2,
		DailyStreak:     7,
		TotalPoints:     500,
		CurrentLevel:    5,
		HabitsCompleted: 1,
	}

	assert.True(t, stats.Satisfies(Criterion{Type: CriterionTotalQuizzes, Value: 10}))
	assert.False(t, stats.Satisfies(Criterion{Type: CriterionTotalQuizzes, Value: 11}))
	assert.True(t, stats.Satisfies(Criterion{Type: CriterionDailyStreak, Value: 7}))
	assert.True(t, stats.Satisfies(Criterion{Type: CriterionTotalPoints, Value: 499}))
	assert.True(t, stats.Satisfies(Criterion{Type: CriterionLevelReached, Value: 5}))
	assert.False(t, stats.Satisfies(Criterion{Type: CriterionType("unknown"), Value: 0}))
}

func TestAchievement_IsSatisfiedBy_AndSemantics(t *testing.T) {
	a := &Achievement{
		Name: "Perfect Streak",
		Criteria: []Criterion{
			{Type: CriterionPerfectScores, Value: 3},
			{Type: CriterionDailyStreak, Value: 7},
		},
	}

	assert.False(t, a.IsSatisfiedBy(UserStats{PerfectScores: 3, DailyStreak: 6}))
	assert.False(t, a.IsSatisfiedBy(UserStats{PerfectScores: 2, DailyStreak: 7}))
	assert.True(t, a.IsSatisfiedBy(UserStats{PerfectScores: 3, DailyStreak: 7}))
}

func TestAchievement_IsSatisfiedBy_EmptyCriteria(t *testing.T) {
	// Достижение без критериев не выполняется никогда.
	a := &Achievement{Name: "Broken"}
	assert.False(t, a.IsSatisfiedBy(UserStats{TotalPoints: 99999}))
}

func TestAchievement_Validate(t *testing.T) {
	valid := &Achievement{
		Name:         "First Steps",
		Criteria:     []Criterion{{Type: CriterionTotalQuizzes, Value: 1}},
		PointsReward: 25,
	}
	assert.NoError(t, valid.Validate())

	assert.Error(t, (&Achievement{
		Criteria: []Criterion{{Type: CriterionTotalQuizzes, Value: 1}},
	}).Validate())

	assert.Error(t, (&Achievement{Name: "No Criteria"}).Validate())

	assert.Error(t, (&Achievement{
		Name:     "Bad Type",
		Criteria: []Criterion{{Type: CriterionType("bogus"), Value: 1}},
	}).Validate())

	assert.Error(t, (&Achievement{
		Name:         "Negative Reward",
		Criteria:     []Criterion{{Type: CriterionTotalQuizzes, Value: 1}},
		PointsReward: -10,
	}).Validate())
}

func TestAchievement_CompletionPercent(t *testing.T) {
	a := &Achievement{
		Name: "Half Done",
		Criteria: []Criterion{
			{Type: CriterionTotalQuizzes, Value: 10},
			{Type: CriterionDailyStreak, Value: 7},
		},
	}

	stats := UserStats{TotalQuizzes: 10, DailyStreak: 3}
	assert.Equal(t, float64(50), a.CompletionPercent(stats, false))
	assert.Equal(t, float64(100), a.CompletionPercent(stats, true))
	assert.Equal(t, float64(0), a.CompletionPercent(UserStats{}, false))
}

func TestEvaluator_Evaluate(t *testing.T) {
	catalog := []*Achievement{
		{ID: "a1", Name: "First Steps", Active: true,
			Criteria: []Criterion{{Type: CriterionTotalQuizzes, Value: 1}}},
		{ID: "a2", Name: "Quiz Enthusiast", Active: true,
			Criteria: []Criterion{{Type: CriterionTotalQuizzes, Value: 10}}},
		{ID: "a3", Name: "Retired", Active: false,
			Criteria: []Criterion{{Type: CriterionTotalQuizzes, Value: 1}}},
	}
	evaluator := NewEvaluator()

	matched := evaluator.Evaluate(catalog, map[string]bool{}, UserStats{TotalQuizzes: 3})
	assert.Len(t, matched, 1)
	assert.Equal(t, "a1", matched[0].ID)

	// Уже разблокированные пропускаются.
	matched = evaluator.Evaluate(catalog, map[string]bool{"a1": true}, UserStats{TotalQuizzes: 3})
	assert.Empty(t, matched)

	matched = evaluator.Evaluate(catalog, map[string]bool{}, UserStats{TotalQuizzes: 15})
	assert.Len(t, matched, 2)
}

func TestRarity_Label(t *testing.T) {
	assert.Equal(t, "Common", RarityCommon.Label())
	assert.Equal(t, "Rare", RarityRare.Label())
	assert.Equal(t, "Epic", RarityEpic.Label())
	assert.Equal(t, "Legendary", RarityLegendary.Label())
}

func TestDefaultCatalog(t *testing.T) {
	catalog := DefaultCatalog()
	assert.Len(t, catalog, 12)

	seen := map[string]bool{}
	for _, a := range catalog {
		assert.NoError(t, a.Validate(), "catalog entry %q", a.Name)
		assert.True(t, a.Active)
		assert.NotEmpty(t, a.ID)
		assert.False(t, seen[a.Name], "duplicate name %q", a.Name)
		seen[a.Name] = true
	}
}

// seedRepo - минимальный репозиторий для проверки сида каталога.
type seedRepo struct {
	catalog []*Achievement
	upserts int
}

func (r *seedRepo) ActiveCatalog(_ context.Context) ([]*Achievement, error) { return r.catalog, nil }
func (r *seedRepo) FullCatalog(_ context.Context) ([]*Achievement, error)  { return r.catalog, nil }

func (r *seedRepo) Upsert(_ context.Context, a *Achievement) error {
	r.upserts++
	r.catalog = append(r.catalog, a)
	return nil
}

func (r *seedRepo) UnlockedIDs(_ context.Context, _ string) (map[string]bool, error) {
	return nil, nil
}

func (r *seedRepo) Unlocks(_ context.Context, _ string) ([]Unlock, error) { return nil, nil }

func (r *seedRepo) InsertUnlock(_ context.Context, _, _ string, _ time.Time) (bool, error) {
	return false, nil
}

func (r *seedRepo) CountUnlocked(_ context.Context, _ string) (int, error) { return 0, nil }

func TestSeedCatalog(t *testing.T) {
	repo := &seedRepo{}

	created, err := SeedCatalog(context.Background(), repo)
	require.NoError(t, err)
	assert.Equal(t, 12, created)
	assert.Len(t, repo.catalog, 12)
}

func TestSeedCatalog_ExistingEntriesUntouched(t *testing.T) {
	// Правка администратора: Perfect Score деактивирован.
	repo := &seedRepo{catalog: []*Achievement{
		{ID: "a-perfect", Name: "Perfect Score", Active: false, PointsReward: 999,
			Criteria: []Criterion{{Type: CriterionPerfectScores, Value: 1}}},
	}}

	created, err := SeedCatalog(context.Background(), repo)
	require.NoError(t, err)
	assert.Equal(t, 11, created)
	assert.Len(t, repo.catalog, 12)

	// Существующая запись не перезаписана.
	for _, a := range repo.catalog {
		if a.Name == "Perfect Score" {
			assert.Equal(t, "a-perfect", a.ID)
			assert.False(t, a.Active)
			assert.Equal(t, 999, a.PointsReward)
		}
	}

	// Повторный сид ничего не добавляет.
	created, err = SeedCatalog(context.Background(), repo)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Len(t, repo.catalog, 12)
}
