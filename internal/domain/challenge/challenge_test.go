package challenge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/studyhub/progression-engine/internal/domain/progression"
	"github.com/studyhub/progression-engine/pkg/timeutil"
)

func quizCountChallenge(target int) *Challenge {
	return &Challenge{
		ID:           "ch-count",
		Title:        "Quiz Master",
		Type:         TypeQuizCount,
		Requirements: Requirements{TargetCount: target},
		PointsReward: 50,
		Date:         timeutil.Date(2026, 3, 4),
		Active:       true,
	}
}

func TestChallenge_Validate(t *testing.T) {
	assert.NoError(t, quizCountChallenge(3).Validate())

	assert.Error(t, (&Challenge{
		Type:         TypeQuizCount,
		Requirements: Requirements{TargetCount: 3},
	}).Validate())

	assert.Error(t, (&Challenge{
		Title:        "Bad Type",
		Type:         Type("marathon"),
		Requirements: Requirements{TargetCount: 1},
	}).Validate())

	// Цель должна быть положительной.
	assert.Error(t, quizCountChallenge(0).Validate())

	neg := quizCountChallenge(3)
	neg.PointsReward = -10
	assert.Error(t, neg.Validate())
}

func TestChallenge_Difficulty(t *testing.T) {
	c := quizCountChallenge(3)

	c.PointsReward = 30
	assert.Equal(t, "Easy", c.Difficulty())
	c.PointsReward = 50
	assert.Equal(t, "Medium", c.Difficulty())
	c.PointsReward = 100
	assert.Equal(t, "Hard", c.Difficulty())
}

func TestIsRelevant(t *testing.T) {
	assert.True(t, IsRelevant(TypeQuizCount, progression.ActivityQuizCompleted))
	assert.True(t, IsRelevant(TypePerfectScore, progression.ActivityQuizCompleted))
	assert.True(t, IsRelevant(TypeStreak, progression.ActivityDailyStreak))
	assert.True(t, IsRelevant(TypeStudyTime, progression.ActivityNoteCreated))

	assert.False(t, IsRelevant(TypeQuizCount, progression.ActivityNoteCreated))
	assert.False(t, IsRelevant(TypeStreak, progression.ActivityQuizCompleted))
	assert.False(t, IsRelevant(TypeQuizCount, progression.ActivityChallengeCompleted))
}

func TestAdvance_QuizCount(t *testing.T) {
	c := quizCountChallenge(3)
	p := NewProgress("user-1", c.ID)
	now := time.Now().UTC()
	meta := progression.QuizMetadata{Score: 60}

	assert.False(t, Advance(c, p, progression.ActivityQuizCompleted, meta, now))
	assert.False(t, Advance(c, p, progression.ActivityQuizCompleted, meta, now))
	assert.Equal(t, 2, p.Counters.CompletedQuizzes)
	assert.False(t, p.Completed)

	// Третий квиз защёлкивает completed.
	assert.True(t, Advance(c, p, progression.ActivityQuizCompleted, meta, now))
	assert.True(t, p.Completed)
	assert.False(t, p.CompletedAt.IsZero())
}

func TestAdvance_CompletedRowIsFrozen(t *testing.T) {
	c := quizCountChallenge(1)
	p := NewProgress("user-1", c.ID)
	now := time.Now().UTC()

	assert.True(t, Advance(c, p, progression.ActivityQuizCompleted, progression.QuizMetadata{Score: 50}, now))

	// Повторное событие не возвращает true и не меняет счётчики.
	assert.False(t, Advance(c, p, progression.ActivityQuizCompleted, progression.QuizMetadata{Score: 50}, now))
	assert.Equal(t, 1, p.Counters.CompletedQuizzes)
}

func TestAdvance_InactiveChallengeIgnored(t *testing.T) {
	c := quizCountChallenge(1)
	c.Active = false
	p := NewProgress("user-1", c.ID)

	assert.False(t, Advance(c, p, progression.ActivityQuizCompleted, progression.QuizMetadata{Score: 50}, time.Now()))
	assert.Equal(t, 0, p.Counters.CompletedQuizzes)
}

func TestAdvance_QuizScoreKeepsBest(t *testing.T) {
	c := &Challenge{
		ID: "ch-score", Title: "High Achiever", Type: TypeQuizScore,
		Requirements: Requirements{TargetScore: 85}, Active: true,
	}
	p := NewProgress("user-1", c.ID)
	now := time.Now().UTC()

	assert.False(t, Advance(c, p, progression.ActivityQuizCompleted, progression.QuizMetadata{Score: 70}, now))
	assert.Equal(t, 70, p.Counters.BestScore)

	// Худший результат не понижает лучший.
	assert.False(t, Advance(c, p, progression.ActivityQuizCompleted, progression.QuizMetadata{Score: 40}, now))
	assert.Equal(t, 70, p.Counters.BestScore)

	assert.True(t, Advance(c, p, progression.ActivityQuizCompleted, progression.QuizMetadata{Score: 90}, now))
	assert.True(t, p.Completed)
}

func TestAdvance_PerfectScoreCountsQuizzes(t *testing.T) {
	// perfect_score считает количество идеальных квизов, не балл.
	c := &Challenge{
		ID: "ch-perfect", Title: "Perfectionist", Type: TypePerfectScore,
		Requirements: Requirements{TargetCount: 2}, Active: true,
	}
	p := NewProgress("user-1", c.ID)
	now := time.Now().UTC()

	assert.False(t, Advance(c, p, progression.ActivityQuizCompleted, progression.QuizMetadata{Score: 99}, now))
	assert.Equal(t, 0, p.Counters.PerfectScores)

	assert.False(t, Advance(c, p, progression.ActivityQuizCompleted, progression.QuizMetadata{Score: 100}, now))
	assert.Equal(t, 1, p.Counters.PerfectScores)

	assert.True(t, Advance(c, p, progression.ActivityQuizCompleted, progression.QuizMetadata{Score: 100}, now))
	assert.True(t, p.Completed)
}

func TestAdvance_StreakTracksHighWater(t *testing.T) {
	c := &Challenge{
		ID: "ch-streak", Title: "Keep Going", Type: TypeStreak,
		Requirements: Requirements{TargetDays: 3}, Active: true,
	}
	p := NewProgress("user-1", c.ID)
	now := time.Now().UTC()

	assert.False(t, Advance(c, p, progression.ActivityDailyStreak, progression.StreakMetadata{StreakDays: 2}, now))
	assert.Equal(t, 2, p.Counters.CurrentStreak)

	assert.True(t, Advance(c, p, progression.ActivityDailyStreak, progression.StreakMetadata{StreakDays: 3}, now))
	assert.True(t, p.Completed)
}

func TestAdvance_StudyTimeApproximation(t *testing.T) {
	c := &Challenge{
		ID: "ch-time", Title: "Deep Focus", Type: TypeStudyTime,
		Requirements: Requirements{TargetMinutes: 25}, Active: true,
	}
	p := NewProgress("user-1", c.ID)
	now := time.Now().UTC()

	assert.False(t, Advance(c, p, progression.ActivityQuizCompleted, progression.QuizMetadata{Score: 50}, now))
	assert.Equal(t, 10, p.Counters.StudyMinutes)

	assert.False(t, Advance(c, p, progression.ActivityNoteCreated, nil, now))
	assert.Equal(t, 15, p.Counters.StudyMinutes)

	assert.True(t, Advance(c, p, progression.ActivityQuizCompleted, progression.QuizMetadata{Score: 50}, now))
	assert.Equal(t, 25, p.Counters.StudyMinutes)
}

func TestProgress_CompletionPercent(t *testing.T) {
	c := quizCountChallenge(4)
	p := NewProgress("user-1", c.ID)

	assert.Equal(t, float64(0), p.CompletionPercent(c))

	p.Counters.CompletedQuizzes = 1
	assert.Equal(t, float64(25), p.CompletionPercent(c))

	p.Counters.CompletedQuizzes = 10
	assert.Equal(t, float64(100), p.CompletionPercent(c))

	p.Completed = true
	assert.Equal(t, float64(100), p.CompletionPercent(c))
}

func TestDefaultCohort(t *testing.T) {
	date := timeutil.Date(2026, 3, 4)
	cohort := DefaultCohort(date)

	assert.Len(t, cohort, 3)
	titles := map[string]bool{}
	for _, c := range cohort {
		assert.NoError(t, c.Validate(), "cohort entry %q", c.Title)
		assert.True(t, c.Active)
		assert.Equal(t, date, c.Date)
		assert.False(t, titles[c.Title], "duplicate title %q", c.Title)
		titles[c.Title] = true
	}
}
