package progression

import (
	"time"

	"github.com/studyhub/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK TRACKER
// ══════════════════════════════════════════════════════════════════════════════

// StreakOutcome описывает результат обновления серий.
type StreakOutcome struct {
	// Touched - false, если активность за сегодня уже была засчитана
	// (no-op ветка) и состояние не менялось.
	Touched bool

	// Continued - ежедневная серия продолжена (+1).
	Continued bool

	// Reset - серия сброшена до 1 (пропуск дней или первая активность).
	Reset bool

	// DiscardedStreak - длина потерянной серии при сбросе (>= 2),
	// используется для сообщений, не для корректности.
	DiscardedStreak int

	// DaysMissed - сколько дней пропущено при сбросе.
	DaysMissed int

	// DailyStreak - текущая серия после обновления.
	DailyStreak int

	// WeeklyStreak - недельная серия после обновления.
	WeeklyStreak int

	// WeeklyContinued - недельная серия продолжена на этой неделе.
	WeeklyContinued bool

	// DailyBonusEligible - продолженная серия достигла 3+ дней,
	// полагается синтетическое событие daily_streak.
	DailyBonusEligible bool

	// WeeklyBonusEligible - продолженная недельная серия достигла
	// 3+ недель, полагается синтетическое событие weekly_streak.
	WeeklyBonusEligible bool
}

// TouchStreaks обновляет ежедневную и недельную серии аккаунта.
// today передаётся вызывающей стороной - компонент никогда не читает
// системные часы, чтобы тесты были детерминированными.
//
// Ветки дневной серии:
//   - lastActivityDate == today: no-op (активность уже засчитана);
//   - lastActivityDate == today-1: серия продолжается (+1);
//   - иначе (разрыв >= 2 дней или первая активность): сброс до 1.
//
// Недельная серия следует тем же веткам по границам ISO-недель.
func TouchStreaks(account *Account, today time.Time) StreakOutcome {
	today = timeutil.StartOfDay(today)
	outcome := StreakOutcome{}

	last := account.LastActivityDate
	if !last.IsZero() && timeutil.IsSameDay(last, today) {
		// Сегодня уже было событие.
		outcome.DailyStreak = account.DailyStreak
		outcome.WeeklyStreak = account.WeeklyStreak
		return outcome
	}

	outcome.Touched = true

	switch {
	case !last.IsZero() && timeutil.IsConsecutiveDay(last, today):
		account.DailyStreak++
		outcome.Continued = true
		if account.DailyStreak >= 3 {
			outcome.DailyBonusEligible = true
		}
	default:
		if account.DailyStreak >= 2 {
			outcome.DiscardedStreak = account.DailyStreak
			if !last.IsZero() {
				outcome.DaysMissed = timeutil.DaysBetween(last, today) - 1
			}
		}
		account.DailyStreak = 1
		outcome.Reset = true
	}

	// Недельная серия: те же три ветки по началу недели.
	weekStart := timeutil.StartOfWeek(today)
	switch {
	case !account.LastWeekStart.IsZero() && account.LastWeekStart.Equal(weekStart):
		// Та же неделя - недельная серия не меняется.
	case !account.LastWeekStart.IsZero() && timeutil.IsConsecutiveWeek(account.LastWeekStart, today):
		account.WeeklyStreak++
		outcome.WeeklyContinued = true
		if account.WeeklyStreak >= 3 {
			outcome.WeeklyBonusEligible = true
		}
	default:
		account.WeeklyStreak = 1
	}

	account.LastActivityDate = today
	account.LastWeekStart = weekStart

	outcome.DailyStreak = account.DailyStreak
	outcome.WeeklyStreak = account.WeeklyStreak
	return outcome
}
