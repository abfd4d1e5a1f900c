package progression

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/studyhub/progression-engine/pkg/timeutil"
)

func TestTouchStreaks_FirstActivity(t *testing.T) {
	account := NewAccount("user-1")
	today := timeutil.Date(2026, 3, 4) // среда

	outcome := TouchStreaks(account, today)

	assert.True(t, outcome.Touched)
	assert.True(t, outcome.Reset)
	assert.False(t, outcome.Continued)
	assert.Equal(t, 0, outcome.DiscardedStreak)
	assert.Equal(t, 1, outcome.DailyStreak)
	assert.Equal(t, 1, outcome.WeeklyStreak)
	assert.Equal(t, today, account.LastActivityDate)
	assert.Equal(t, timeutil.StartOfWeek(today), account.LastWeekStart)
}

func TestTouchStreaks_SameDayNoOp(t *testing.T) {
	account := NewAccount("user-1")
	today := timeutil.Date(2026, 3, 4)

	TouchStreaks(account, today)
	outcome := TouchStreaks(account, today)

	assert.False(t, outcome.Touched)
	assert.False(t, outcome.Continued)
	assert.False(t, outcome.Reset)
	assert.Equal(t, 1, outcome.DailyStreak)
	assert.Equal(t, 1, account.DailyStreak)
}

func TestTouchStreaks_ConsecutiveDay(t *testing.T) {
	account := NewAccount("user-1")
	day1 := timeutil.Date(2026, 3, 4)

	TouchStreaks(account, day1)
	outcome := TouchStreaks(account, day1.AddDate(0, 0, 1))

	assert.True(t, outcome.Touched)
	assert.True(t, outcome.Continued)
	assert.False(t, outcome.Reset)
	assert.Equal(t, 2, outcome.DailyStreak)

	// Бонус положен с третьего дня подряд.
	assert.False(t, outcome.DailyBonusEligible)

	outcome = TouchStreaks(account, day1.AddDate(0, 0, 2))
	assert.Equal(t, 3, outcome.DailyStreak)
	assert.True(t, outcome.DailyBonusEligible)
}

func TestTouchStreaks_GapResetsStreak(t *testing.T) {
	account := NewAccount("user-1")
	day1 := timeutil.Date(2026, 3, 2) // понедельник

	TouchStreaks(account, day1)
	TouchStreaks(account, day1.AddDate(0, 0, 1))
	TouchStreaks(account, day1.AddDate(0, 0, 2))
	assert.Equal(t, 3, account.DailyStreak)

	// Пропуск двух дней: серия из 3 дней теряется.
	outcome := TouchStreaks(account, day1.AddDate(0, 0, 5))

	assert.True(t, outcome.Touched)
	assert.True(t, outcome.Reset)
	assert.Equal(t, 3, outcome.DiscardedStreak)
	assert.Equal(t, 2, outcome.DaysMissed)
	assert.Equal(t, 1, outcome.DailyStreak)
	assert.Equal(t, 1, account.DailyStreak)
}

func TestTouchStreaks_ShortStreakDiscardedSilently(t *testing.T) {
	account := NewAccount("user-1")
	day1 := timeutil.Date(2026, 3, 2)

	// Серия длиной 1 не считается потерянной.
	TouchStreaks(account, day1)
	outcome := TouchStreaks(account, day1.AddDate(0, 0, 3))

	assert.True(t, outcome.Reset)
	assert.Equal(t, 0, outcome.DiscardedStreak)
	assert.Equal(t, 0, outcome.DaysMissed)
}

func TestTouchStreaks_WeeklySameWeek(t *testing.T) {
	account := NewAccount("user-1")
	monday := timeutil.Date(2026, 3, 2)

	TouchStreaks(account, monday)
	outcome := TouchStreaks(account, monday.AddDate(0, 0, 3)) // четверг той же недели

	assert.Equal(t, 1, outcome.WeeklyStreak)
	assert.False(t, outcome.WeeklyContinued)
	assert.False(t, outcome.WeeklyBonusEligible)
}

func TestTouchStreaks_WeeklyConsecutiveWeek(t *testing.T) {
	account := NewAccount("user-1")
	friday := timeutil.Date(2026, 3, 6)

	TouchStreaks(account, friday)
	// Вторник следующей недели: дневная серия рвётся, недельная продолжается.
	outcome := TouchStreaks(account, timeutil.Date(2026, 3, 10))

	assert.True(t, outcome.Reset)
	assert.Equal(t, 1, outcome.DailyStreak)
	assert.Equal(t, 2, outcome.WeeklyStreak)
	assert.True(t, outcome.WeeklyContinued)

	// Как и у дневной серии, бонус положен только с третьей недели.
	assert.False(t, outcome.WeeklyBonusEligible)
}

func TestTouchStreaks_WeeklyBonusOnThirdWeek(t *testing.T) {
	account := NewAccount("user-1")

	TouchStreaks(account, timeutil.Date(2026, 3, 2))
	outcome := TouchStreaks(account, timeutil.Date(2026, 3, 9))
	assert.Equal(t, 2, outcome.WeeklyStreak)
	assert.False(t, outcome.WeeklyBonusEligible)

	outcome = TouchStreaks(account, timeutil.Date(2026, 3, 16))
	assert.Equal(t, 3, outcome.WeeklyStreak)
	assert.True(t, outcome.WeeklyContinued)
	assert.True(t, outcome.WeeklyBonusEligible)
}

func TestTouchStreaks_WeeklyGapResets(t *testing.T) {
	account := NewAccount("user-1")

	TouchStreaks(account, timeutil.Date(2026, 3, 2))
	TouchStreaks(account, timeutil.Date(2026, 3, 9))
	assert.Equal(t, 2, account.WeeklyStreak)

	// Пропущена целая неделя.
	outcome := TouchStreaks(account, timeutil.Date(2026, 3, 23))

	assert.Equal(t, 1, outcome.WeeklyStreak)
	assert.False(t, outcome.WeeklyContinued)
}

func TestTouchStreaks_SundayToMondayCrossesWeek(t *testing.T) {
	account := NewAccount("user-1")
	sunday := timeutil.Date(2026, 3, 8)

	TouchStreaks(account, sunday)
	outcome := TouchStreaks(account, sunday.AddDate(0, 0, 1))

	// Соседние дни, но разные ISO-недели: обе серии продолжаются.
	assert.True(t, outcome.Continued)
	assert.Equal(t, 2, outcome.DailyStreak)
	assert.True(t, outcome.WeeklyContinued)
	assert.Equal(t, 2, outcome.WeeklyStreak)
}
