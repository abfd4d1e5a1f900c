package progression

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/studyhub/progression-engine/internal/domain/shared"
)

func TestActivityType_IsValid(t *testing.T) {
	assert.True(t, ActivityQuizCompleted.IsValid())
	assert.True(t, ActivityDailyStreak.IsValid())
	assert.True(t, ActivityManualAward.IsValid())
	assert.False(t, ActivityType("unknown").IsValid())
	assert.False(t, ActivityType("").IsValid())
}

func TestActivityType_IsSynthetic(t *testing.T) {
	assert.True(t, ActivityDailyStreak.IsSynthetic())
	assert.True(t, ActivityWeeklyStreak.IsSynthetic())
	assert.True(t, ActivityLevelUp.IsSynthetic())
	assert.True(t, ActivityAchievementUnlocked.IsSynthetic())
	assert.True(t, ActivityChallengeCompleted.IsSynthetic())

	assert.False(t, ActivityQuizCompleted.IsSynthetic())
	assert.False(t, ActivityNoteCreated.IsSynthetic())
	assert.False(t, ActivityManualAward.IsSynthetic())
}

func TestCalculatePoints_QuizScoreTiers(t *testing.T) {
	tests := []struct {
		name  string
		score int
		want  int
	}{
		{"base score", 45, PointsQuizBase},
		{"just below good", 69, PointsQuizBase},
		{"good score", 70, PointsQuizGoodScore},
		{"high score", 80, PointsQuizHighScore},
		{"just below perfect", 99, PointsQuizHighScore},
		{"perfect score", 100, PointsQuizPerfect},
		{"zero score", 0, PointsQuizBase},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			points, err := CalculatePoints(ActivityQuizCompleted, QuizMetadata{Score: tt.score})
			assert.NoError(t, err)
			assert.Equal(t, tt.want, points)
		})
	}
}

func TestCalculatePoints_QuizScoreOutOfRange(t *testing.T) {
	_, err := CalculatePoints(ActivityQuizCompleted, QuizMetadata{Score: 101})
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = CalculatePoints(ActivityQuizCompleted, QuizMetadata{Score: -1})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestCalculatePoints_DailyStreakBonus(t *testing.T) {
	points, err := CalculatePoints(ActivityDailyStreak, StreakMetadata{StreakDays: 3})
	assert.NoError(t, err)
	assert.Equal(t, PointsDailyStreakBase+2*2, points)

	// Бонус растёт максимум MaxStreakBonusDays дней.
	points, err = CalculatePoints(ActivityDailyStreak, StreakMetadata{StreakDays: 11})
	assert.NoError(t, err)
	assert.Equal(t, PointsDailyStreakBase+MaxStreakBonusDays*2, points)

	points, err = CalculatePoints(ActivityDailyStreak, StreakMetadata{StreakDays: 365})
	assert.NoError(t, err)
	assert.Equal(t, PointsDailyStreakBase+MaxStreakBonusDays*2, points)
}

func TestCalculatePoints_FixedAwards(t *testing.T) {
	points, err := CalculatePoints(ActivityWeeklyStreak, WeeklyStreakMetadata{StreakWeeks: 2})
	assert.NoError(t, err)
	assert.Equal(t, PointsWeeklyStreak, points)

	points, err = CalculatePoints(ActivityFirstQuizDay, nil)
	assert.NoError(t, err)
	assert.Equal(t, PointsFirstQuizDay, points)

	points, err = CalculatePoints(ActivityHabitsQuestionnaire, nil)
	assert.NoError(t, err)
	assert.Equal(t, PointsHabits, points)

	points, err = CalculatePoints(ActivityNoteCreated, nil)
	assert.NoError(t, err)
	assert.Equal(t, PointsNoteCreated, points)
}

func TestCalculatePoints_LevelUp(t *testing.T) {
	points, err := CalculatePoints(ActivityLevelUp, LevelUpMetadata{OldLevel: 2, NewLevel: 3})
	assert.NoError(t, err)
	assert.Equal(t, 3*PointsPerLevel, points)
}

func TestCalculatePoints_PassThroughRewards(t *testing.T) {
	points, err := CalculatePoints(ActivityAchievementUnlocked, AchievementMetadata{
		AchievementID: "a-1", AchievementName: "First Steps", Points: 25,
	})
	assert.NoError(t, err)
	assert.Equal(t, 25, points)

	points, err = CalculatePoints(ActivityChallengeCompleted, ChallengeMetadata{
		ChallengeID: "c-1", ChallengeTitle: "Quiz Master", Points: 50,
	})
	assert.NoError(t, err)
	assert.Equal(t, 50, points)

	points, err = CalculatePoints(ActivityManualAward, ManualMetadata{Points: 77, Reason: "contest"})
	assert.NoError(t, err)
	assert.Equal(t, 77, points)
}

func TestCalculatePoints_UnknownType(t *testing.T) {
	_, err := CalculatePoints(ActivityType("teleport"), nil)
	assert.ErrorIs(t, err, shared.ErrUnknownActivityType)
}

func TestCalculatePoints_MetadataMismatch(t *testing.T) {
	// Метаданные квиза с событием серии отклоняются.
	_, err := CalculatePoints(ActivityDailyStreak, QuizMetadata{Score: 90})
	assert.ErrorIs(t, err, shared.ErrInvalidMetadata)
}

func TestMetadata_Validate(t *testing.T) {
	assert.Error(t, StreakMetadata{StreakDays: 0}.Validate())
	assert.Error(t, WeeklyStreakMetadata{StreakWeeks: 0}.Validate())
	assert.Error(t, LevelUpMetadata{OldLevel: 3, NewLevel: 3}.Validate())
	assert.Error(t, AchievementMetadata{AchievementID: ""}.Validate())
	assert.Error(t, ChallengeMetadata{ChallengeID: "c-1", Points: -5}.Validate())
	assert.Error(t, ManualMetadata{Points: -1}.Validate())

	assert.NoError(t, QuizMetadata{Score: 85, QuizID: "q-1"}.Validate())
	assert.NoError(t, EmptyMetadata{Type: ActivityNoteCreated}.Validate())
}

func TestQuizMetadata_Payload(t *testing.T) {
	payload := QuizMetadata{Score: 100, QuizID: "q-7"}.Payload()
	assert.Equal(t, 100, payload["score"])
	assert.Equal(t, "q-7", payload["quiz_id"])

	// Пустой quiz_id не сериализуется.
	payload = QuizMetadata{Score: 50}.Payload()
	assert.Equal(t, 50, payload["score"])
	_, ok := payload["quiz_id"]
	assert.False(t, ok)
}

func TestDefaultDescription(t *testing.T) {
	assert.Equal(t, "Completed quiz with 90% score",
		DefaultDescription(ActivityQuizCompleted, QuizMetadata{Score: 90}))
	assert.Equal(t, "Maintained 5 day learning streak",
		DefaultDescription(ActivityDailyStreak, StreakMetadata{StreakDays: 5}))
	assert.Equal(t, "Reached Level 4!",
		DefaultDescription(ActivityLevelUp, LevelUpMetadata{OldLevel: 3, NewLevel: 4}))
	assert.Equal(t, "Unlocked: Perfect Score",
		DefaultDescription(ActivityAchievementUnlocked, AchievementMetadata{AchievementName: "Perfect Score"}))
	assert.Equal(t, "First quiz of the day",
		DefaultDescription(ActivityFirstQuizDay, nil))
}

func TestNewLedgerEntry(t *testing.T) {
	entry, err := NewLedgerEntry("user-1", ActivityQuizCompleted, 25, "", QuizMetadata{Score: 80})
	assert.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, "user-1", entry.UserID)
	assert.Equal(t, 25, entry.PointsEarned)
	assert.Equal(t, "Completed quiz with 80% score", entry.Description)
	assert.Equal(t, 80, entry.Metadata["score"])
}

func TestNewLedgerEntry_RejectsNegativePoints(t *testing.T) {
	_, err := NewLedgerEntry("user-1", ActivityQuizCompleted, -1, "", nil)
	assert.ErrorIs(t, err, shared.ErrNegativeValue)
}
