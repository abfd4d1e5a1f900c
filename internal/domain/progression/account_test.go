package progression

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAccount(t *testing.T) {
	account := NewAccount("user-1")

	assert.Equal(t, "user-1", account.UserID)
	assert.Equal(t, 0, account.TotalPoints)
	assert.Equal(t, 1, account.CurrentLevel)
	assert.Equal(t, 0, account.PointsInLevel)
	assert.Equal(t, 0, account.DailyStreak)
	assert.True(t, account.LastActivityDate.IsZero())
}

func TestAccount_AddPoints(t *testing.T) {
	account := NewAccount("user-1")

	account.AddPoints(50)
	assert.Equal(t, 50, account.TotalPoints)
	assert.Equal(t, 50, account.PointsInLevel)

	account.AddPoints(25)
	assert.Equal(t, 75, account.TotalPoints)

	// Ноль и отрицательные значения игнорируются.
	account.AddPoints(0)
	account.AddPoints(-10)
	assert.Equal(t, 75, account.TotalPoints)
	assert.Equal(t, 75, account.PointsInLevel)
}

func TestAccount_ApplyLevelUps_Single(t *testing.T) {
	account := NewAccount("user-1")
	curve := DefaultCurve()

	// Уровень 2 стоит 282 очка.
	account.AddPoints(300)
	ups := account.ApplyLevelUps(curve)

	assert.Len(t, ups, 1)
	assert.Equal(t, 1, ups[0].OldLevel)
	assert.Equal(t, 2, ups[0].NewLevel)
	assert.Equal(t, "Curious Student", ups[0].Title)
	assert.Equal(t, 2, account.CurrentLevel)
	assert.Equal(t, 300-282, account.PointsInLevel)
	assert.Equal(t, 300, account.TotalPoints)
}

func TestAccount_ApplyLevelUps_Multiple(t *testing.T) {
	account := NewAccount("user-1")
	curve := TableCurve{Thresholds: []int{100, 100, 100, 100}}

	// 250 очков закрывают уровни 2 и 3 по 100, остаток 50.
	account.AddPoints(250)
	ups := account.ApplyLevelUps(curve)

	assert.Len(t, ups, 2)
	assert.Equal(t, 2, ups[0].NewLevel)
	assert.Equal(t, 3, ups[1].NewLevel)
	assert.Equal(t, 3, account.CurrentLevel)
	assert.Equal(t, 50, account.PointsInLevel)
}

func TestAccount_ApplyLevelUps_BelowThreshold(t *testing.T) {
	account := NewAccount("user-1")

	account.AddPoints(100)
	ups := account.ApplyLevelUps(DefaultCurve())

	assert.Empty(t, ups)
	assert.Equal(t, 1, account.CurrentLevel)
	assert.Equal(t, 100, account.PointsInLevel)
}

func TestAccount_PointsToNextLevel(t *testing.T) {
	account := NewAccount("user-1")
	curve := DefaultCurve()

	assert.Equal(t, 282, account.PointsToNextLevel(curve))

	account.AddPoints(100)
	assert.Equal(t, 182, account.PointsToNextLevel(curve))
}

func TestAccount_LevelProgress(t *testing.T) {
	account := NewAccount("user-1")
	curve := TableCurve{Thresholds: []int{100, 200}}

	assert.Equal(t, float64(0), account.LevelProgress(curve))

	account.AddPoints(100)
	assert.Equal(t, float64(50), account.LevelProgress(curve))

	// Прогресс не превышает 100 даже при переполнении.
	account.AddPoints(500)
	assert.Equal(t, float64(100), account.LevelProgress(curve))
}

func TestAccount_LevelTitle(t *testing.T) {
	account := NewAccount("user-1")
	assert.Equal(t, "Novice Learner", account.LevelTitle())

	account.CurrentLevel = 8
	assert.Equal(t, "Master Student", account.LevelTitle())
}
