package challenge

import (
	"time"

	"github.com/studyhub/progression-engine/internal/domain/progression"
)

// ══════════════════════════════════════════════════════════════════════════════
// RELEVANCE & ADVANCEMENT
// ══════════════════════════════════════════════════════════════════════════════

// relevantActivities - статическая таблица соответствия типов челленджей
// типам активности, которые их продвигают.
var relevantActivities = map[Type][]progression.ActivityType{
	TypeQuizCount:    {progression.ActivityQuizCompleted},
	TypeQuizScore:    {progression.ActivityQuizCompleted},
	TypePerfectScore: {progression.ActivityQuizCompleted},
	TypeStreak:       {progression.ActivityDailyStreak},
	TypeStudyTime:    {progression.ActivityQuizCompleted, progression.ActivityNoteCreated},
}

// IsRelevant проверяет, продвигает ли тип активности данный челлендж.
func IsRelevant(challengeType Type, activityType progression.ActivityType) bool {
	for _, a := range relevantActivities[challengeType] {
		if a == activityType {
			return true
		}
	}
	return false
}

// Advance обновляет счётчики прогресса по одному событию.
// Возвращает true, если событие защёлкнуло completed (переход false -> true):
// только этот вызов начисляет награду. Уже выполненный прогресс
// не переоценивается.
func Advance(c *Challenge, p *Progress, activityType progression.ActivityType, metadata progression.Metadata, now time.Time) bool {
	if p.Completed || !c.Active {
		return false
	}
	if !IsRelevant(c.Type, activityType) {
		return false
	}

	updated := false
	switch c.Type {
	case TypeQuizCount:
		p.Counters.CompletedQuizzes++
		updated = true

	case TypeQuizScore:
		if m, ok := metadata.(progression.QuizMetadata); ok && m.Score > p.Counters.BestScore {
			p.Counters.BestScore = m.Score
			updated = true
		}

	case TypePerfectScore:
		if m, ok := metadata.(progression.QuizMetadata); ok && m.Score >= 100 {
			p.Counters.PerfectScores++
			updated = true
		}

	case TypeStreak:
		if m, ok := metadata.(progression.StreakMetadata); ok && m.StreakDays > p.Counters.CurrentStreak {
			p.Counters.CurrentStreak = m.StreakDays
			updated = true
		}

	case TypeStudyTime:
		// Учебное время аппроксимируется фиксированной длительностью
		// активности: квиз ~10 минут, заметка ~5.
		switch activityType {
		case progression.ActivityQuizCompleted:
			p.Counters.StudyMinutes += 10
			updated = true
		case progression.ActivityNoteCreated:
			p.Counters.StudyMinutes += 5
			updated = true
		}
	}

	if !updated {
		return false
	}

	if p.current(c.Type) >= c.target() {
		p.Completed = true
		p.CompletedAt = now.UTC()
		return true
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// DEFAULT COHORT
// ══════════════════════════════════════════════════════════════════════════════

// DefaultCohort возвращает стандартный набор челленджей на дату.
// Генерация идемпотентна: существующая когорта на дату не пересоздаётся.
func DefaultCohort(date time.Time) []*Challenge {
	return []*Challenge{
		{
			Title:        "Quiz Master",
			Description:  "Complete 3 quizzes today",
			Type:         TypeQuizCount,
			Requirements: Requirements{TargetCount: 3},
			PointsReward: 50,
			Date:         date,
			Active:       true,
		},
		{
			Title:        "Perfect Score",
			Description:  "Achieve 100% on any quiz",
			Type:         TypePerfectScore,
			Requirements: Requirements{TargetCount: 1},
			PointsReward: 75,
			Date:         date,
			Active:       true,
		},
		{
			Title:        "High Achiever",
			Description:  "Score 85% or higher on a quiz",
			Type:         TypeQuizScore,
			Requirements: Requirements{TargetScore: 85},
			PointsReward: 30,
			Date:         date,
			Active:       true,
		},
	}
}
