package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyhub/progression-engine/internal/domain/challenge"
	"github.com/studyhub/progression-engine/pkg/timeutil"
)

func TestGenerateChallenges_CreatesDefaultCohort(t *testing.T) {
	repo := newMemChallengeRepo()
	handler := NewGenerateChallengesHandler(repo, nil, nil)
	date := timeutil.Date(2026, 3, 4)

	result, err := handler.Handle(context.Background(), GenerateChallengesCommand{Date: date})
	require.NoError(t, err)

	assert.Equal(t, date, result.Date)
	assert.Equal(t, 3, result.Created)
	assert.Equal(t, 0, result.Skipped)
	require.Len(t, result.Events, 1)

	active, err := repo.ActiveForDate(context.Background(), date)
	require.NoError(t, err)
	assert.Len(t, active, 3)
}

func TestGenerateChallenges_Idempotent(t *testing.T) {
	repo := newMemChallengeRepo()
	handler := NewGenerateChallengesHandler(repo, nil, nil)
	date := timeutil.Date(2026, 3, 4)
	ctx := context.Background()

	_, err := handler.Handle(ctx, GenerateChallengesCommand{Date: date})
	require.NoError(t, err)

	// Существующая когорта не пересоздаётся.
	result, err := handler.Handle(ctx, GenerateChallengesCommand{Date: date})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Created)
	assert.Empty(t, result.Events)

	active, err := repo.ActiveForDate(ctx, date)
	require.NoError(t, err)
	assert.Len(t, active, 3)
}

func TestGenerateChallenges_ForceInsertsMissing(t *testing.T) {
	repo := newMemChallengeRepo()
	date := timeutil.Date(2026, 3, 4)
	ctx := context.Background()

	base := NewGenerateChallengesHandler(repo, nil, nil)
	_, err := base.Handle(ctx, GenerateChallengesCommand{Date: date})
	require.NoError(t, err)

	// Расширенный набор: Force довставляет новый челлендж, дубликаты
	// сходятся по уникальности (date, title).
	extended := NewGenerateChallengesHandler(repo, nil, nil).WithCohort(func(d time.Time) []*challenge.Challenge {
		cohort := challenge.DefaultCohort(d)
		return append(cohort, &challenge.Challenge{
			Title:        "Night Owl",
			Description:  "Create 2 study notes",
			Type:         challenge.TypeStudyTime,
			Requirements: challenge.Requirements{TargetMinutes: 10},
			PointsReward: 20,
			Date:         d,
			Active:       true,
		})
	})

	result, err := extended.Handle(ctx, GenerateChallengesCommand{Date: date, Force: true})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 3, result.Skipped)
}

func TestGenerateChallenges_DatesAreNormalized(t *testing.T) {
	repo := newMemChallengeRepo()
	handler := NewGenerateChallengesHandler(repo, nil, nil)

	// Время внутри дня отбрасывается до полуночи UTC.
	noon := time.Date(2026, 3, 4, 12, 30, 0, 0, time.UTC)
	result, err := handler.Handle(context.Background(), GenerateChallengesCommand{Date: noon})
	require.NoError(t, err)
	assert.Equal(t, timeutil.Date(2026, 3, 4), result.Date)

	exists, err := repo.ExistsForDate(context.Background(), timeutil.Date(2026, 3, 4))
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestGenerateChallenges_RejectsInvalidCohort(t *testing.T) {
	repo := newMemChallengeRepo()
	handler := NewGenerateChallengesHandler(repo, nil, nil).WithCohort(func(d time.Time) []*challenge.Challenge {
		return []*challenge.Challenge{{Title: "", Type: challenge.TypeQuizCount, Date: d}}
	})

	_, err := handler.Handle(context.Background(), GenerateChallengesCommand{Date: timeutil.Date(2026, 3, 4)})
	assert.Error(t, err)
}
