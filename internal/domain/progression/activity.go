package progression

import (
	"fmt"

	"github.com/studyhub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY TYPES
// ══════════════════════════════════════════════════════════════════════════════

// ActivityType представляет тип активности, за которую начисляются очки.
type ActivityType string

const (
	// ActivityQuizCompleted - пользователь завершил квиз.
	ActivityQuizCompleted ActivityType = "quiz_completed"

	// ActivityDailyStreak - бонус за ежедневную серию (синтетическое событие).
	ActivityDailyStreak ActivityType = "daily_streak"

	// ActivityWeeklyStreak - бонус за недельную серию (синтетическое событие).
	ActivityWeeklyStreak ActivityType = "weekly_streak"

	// ActivityFirstQuizDay - первый квиз за день.
	ActivityFirstQuizDay ActivityType = "first_quiz_day"

	// ActivityHabitsQuestionnaire - завершён опросник учебных привычек.
	ActivityHabitsQuestionnaire ActivityType = "habits_questionnaire"

	// ActivityNoteCreated - создана заметка.
	ActivityNoteCreated ActivityType = "note_created"

	// ActivityLevelUp - повышение уровня (синтетическое событие).
	ActivityLevelUp ActivityType = "level_up"

	// ActivityAchievementUnlocked - разблокировано достижение (синтетическое событие).
	ActivityAchievementUnlocked ActivityType = "achievement_unlocked"

	// ActivityChallengeCompleted - выполнен дневной челлендж (синтетическое событие).
	ActivityChallengeCompleted ActivityType = "challenge_completed"

	// ActivityManualAward - ручное начисление администратором.
	ActivityManualAward ActivityType = "manual_award"
)

// IsValid проверяет, известен ли тип активности.
func (t ActivityType) IsValid() bool {
	switch t {
	case ActivityQuizCompleted, ActivityDailyStreak, ActivityWeeklyStreak,
		ActivityFirstQuizDay, ActivityHabitsQuestionnaire, ActivityNoteCreated,
		ActivityLevelUp, ActivityAchievementUnlocked, ActivityChallengeCompleted,
		ActivityManualAward:
		return true
	}
	return false
}

// IsSynthetic возвращает true для событий, порождённых самим движком
// (каскадные события). Такие события не продвигают челленджи.
func (t ActivityType) IsSynthetic() bool {
	switch t {
	case ActivityDailyStreak, ActivityWeeklyStreak, ActivityLevelUp,
		ActivityAchievementUnlocked, ActivityChallengeCompleted:
		return true
	}
	return false
}

// String возвращает строковое представление.
func (t ActivityType) String() string {
	return string(t)
}

// ══════════════════════════════════════════════════════════════════════════════
// TYPED METADATA
// Каждому типу активности соответствует свой закрытый вариант метаданных.
// Валидация происходит на границе, до любых записей.
// ══════════════════════════════════════════════════════════════════════════════

// Metadata - закрытый набор вариантов полезной нагрузки события.
type Metadata interface {
	// For возвращает тип активности, которому принадлежат метаданные.
	For() ActivityType

	// Validate проверяет корректность значений.
	Validate() error

	// Payload возвращает метаданные в виде map для сериализации в ledger.
	Payload() map[string]interface{}
}

// QuizMetadata - метаданные завершённого квиза.
type QuizMetadata struct {
	// Score - результат квиза в процентах (0-100).
	Score int

	// QuizID - идентификатор квиза (опционально).
	QuizID string
}

func (m QuizMetadata) For() ActivityType { return ActivityQuizCompleted }

func (m QuizMetadata) Validate() error {
	if m.Score < 0 || m.Score > 100 {
		return shared.WrapError("progression", "Validate", shared.ErrValidation,
			fmt.Sprintf("quiz score %d out of range [0,100]", m.Score), shared.ErrInvalidMetadata)
	}
	return nil
}

func (m QuizMetadata) Payload() map[string]interface{} {
	p := map[string]interface{}{"score": m.Score}
	if m.QuizID != "" {
		p["quiz_id"] = m.QuizID
	}
	return p
}

// StreakMetadata - метаданные бонуса за ежедневную серию.
type StreakMetadata struct {
	// StreakDays - длина серии в днях.
	StreakDays int
}

func (m StreakMetadata) For() ActivityType { return ActivityDailyStreak }

func (m StreakMetadata) Validate() error {
	if m.StreakDays < 1 {
		return shared.WrapError("progression", "Validate", shared.ErrValidation,
			"streak days must be at least 1", shared.ErrInvalidMetadata)
	}
	return nil
}

func (m StreakMetadata) Payload() map[string]interface{} {
	return map[string]interface{}{"streak_days": m.StreakDays}
}

// WeeklyStreakMetadata - метаданные бонуса за недельную серию.
type WeeklyStreakMetadata struct {
	// StreakWeeks - длина серии в неделях.
	StreakWeeks int
}

func (m WeeklyStreakMetadata) For() ActivityType { return ActivityWeeklyStreak }

func (m WeeklyStreakMetadata) Validate() error {
	if m.StreakWeeks < 1 {
		return shared.WrapError("progression", "Validate", shared.ErrValidation,
			"streak weeks must be at least 1", shared.ErrInvalidMetadata)
	}
	return nil
}

func (m WeeklyStreakMetadata) Payload() map[string]interface{} {
	return map[string]interface{}{"streak_weeks": m.StreakWeeks}
}

// LevelUpMetadata - метаданные повышения уровня.
type LevelUpMetadata struct {
	OldLevel int
	NewLevel int
}

func (m LevelUpMetadata) For() ActivityType { return ActivityLevelUp }

func (m LevelUpMetadata) Validate() error {
	if m.NewLevel <= m.OldLevel || m.OldLevel < 1 {
		return shared.WrapError("progression", "Validate", shared.ErrValidation,
			fmt.Sprintf("invalid level transition %d -> %d", m.OldLevel, m.NewLevel), shared.ErrInvalidMetadata)
	}
	return nil
}

func (m LevelUpMetadata) Payload() map[string]interface{} {
	return map[string]interface{}{"old_level": m.OldLevel, "new_level": m.NewLevel}
}

// AchievementMetadata - метаданные разблокированного достижения.
type AchievementMetadata struct {
	AchievementID   string
	AchievementName string

	// Points - награда достижения; становится pointsEarned события.
	Points int
}

func (m AchievementMetadata) For() ActivityType { return ActivityAchievementUnlocked }

func (m AchievementMetadata) Validate() error {
	if m.AchievementID == "" {
		return shared.WrapError("progression", "Validate", shared.ErrValidation,
			"achievement id is required", shared.ErrInvalidMetadata)
	}
	if m.Points < 0 {
		return shared.WrapError("progression", "Validate", shared.ErrValidation,
			"achievement reward cannot be negative", shared.ErrInvalidMetadata)
	}
	return nil
}

func (m AchievementMetadata) Payload() map[string]interface{} {
	return map[string]interface{}{
		"achievement_id":   m.AchievementID,
		"achievement_name": m.AchievementName,
		"points":           m.Points,
	}
}

// ChallengeMetadata - метаданные выполненного челленджа.
type ChallengeMetadata struct {
	ChallengeID    string
	ChallengeTitle string

	// Points - награда челленджа; становится pointsEarned события.
	Points int
}

func (m ChallengeMetadata) For() ActivityType { return ActivityChallengeCompleted }

func (m ChallengeMetadata) Validate() error {
	if m.ChallengeID == "" {
		return shared.WrapError("progression", "Validate", shared.ErrValidation,
			"challenge id is required", shared.ErrInvalidMetadata)
	}
	if m.Points < 0 {
		return shared.WrapError("progression", "Validate", shared.ErrValidation,
			"challenge reward cannot be negative", shared.ErrInvalidMetadata)
	}
	return nil
}

func (m ChallengeMetadata) Payload() map[string]interface{} {
	return map[string]interface{}{
		"challenge_id":    m.ChallengeID,
		"challenge_title": m.ChallengeTitle,
		"points":          m.Points,
	}
}

// ManualMetadata - метаданные ручного начисления.
type ManualMetadata struct {
	Points int
	Reason string
}

func (m ManualMetadata) For() ActivityType { return ActivityManualAward }

func (m ManualMetadata) Validate() error {
	if m.Points < 0 {
		return shared.WrapError("progression", "Validate", shared.ErrValidation,
			"manual award cannot be negative", shared.ErrInvalidMetadata)
	}
	return nil
}

func (m ManualMetadata) Payload() map[string]interface{} {
	return map[string]interface{}{"points": m.Points, "reason": m.Reason}
}

// EmptyMetadata - для активностей без полезной нагрузки
// (habits_questionnaire, note_created, first_quiz_day).
type EmptyMetadata struct {
	Type ActivityType
}

func (m EmptyMetadata) For() ActivityType { return m.Type }

func (m EmptyMetadata) Validate() error { return nil }

func (m EmptyMetadata) Payload() map[string]interface{} { return map[string]interface{}{} }

// ══════════════════════════════════════════════════════════════════════════════
// POINT CALCULATION
// ══════════════════════════════════════════════════════════════════════════════

// Базовые значения очков по типам активности.
const (
	PointsQuizBase        = 10
	PointsQuizGoodScore   = 15 // 70%+
	PointsQuizHighScore   = 25 // 80%+
	PointsQuizPerfect     = 50 // 100%
	PointsDailyStreakBase = 5
	PointsWeeklyStreak    = 20
	PointsFirstQuizDay    = 15
	PointsHabits          = 30
	PointsNoteCreated     = 5
	PointsPerLevel        = 25 // level_up: newLevel * 25

	// MaxStreakBonusDays - бонус за серию растёт максимум 10 дней.
	MaxStreakBonusDays = 10
)

// CalculatePoints - чистая функция (activityType, metadata) -> очки.
// Неизвестный тип активности отклоняется до любых записей.
func CalculatePoints(activityType ActivityType, metadata Metadata) (int, error) {
	if !activityType.IsValid() {
		return 0, shared.WrapError("progression", "CalculatePoints", shared.ErrInvalidInput,
			fmt.Sprintf("activity type %q", activityType), shared.ErrUnknownActivityType)
	}
	if metadata == nil {
		metadata = EmptyMetadata{Type: activityType}
	}
	if metadata.For() != activityType {
		return 0, shared.WrapError("progression", "CalculatePoints", shared.ErrValidation,
			fmt.Sprintf("metadata for %q given for %q event", metadata.For(), activityType), shared.ErrInvalidMetadata)
	}
	if err := metadata.Validate(); err != nil {
		return 0, err
	}

	switch activityType {
	case ActivityQuizCompleted:
		m, ok := metadata.(QuizMetadata)
		if !ok {
			return 0, wrongVariant(activityType)
		}
		switch {
		case m.Score >= 100:
			return PointsQuizPerfect, nil
		case m.Score >= 80:
			return PointsQuizHighScore, nil
		case m.Score >= 70:
			return PointsQuizGoodScore, nil
		default:
			return PointsQuizBase, nil
		}

	case ActivityDailyStreak:
		m, ok := metadata.(StreakMetadata)
		if !ok {
			return 0, wrongVariant(activityType)
		}
		bonus := m.StreakDays - 1
		if bonus > MaxStreakBonusDays {
			bonus = MaxStreakBonusDays
		}
		return PointsDailyStreakBase + bonus*2, nil

	case ActivityWeeklyStreak:
		return PointsWeeklyStreak, nil

	case ActivityFirstQuizDay:
		return PointsFirstQuizDay, nil

	case ActivityHabitsQuestionnaire:
		return PointsHabits, nil

	case ActivityNoteCreated:
		return PointsNoteCreated, nil

	case ActivityLevelUp:
		m, ok := metadata.(LevelUpMetadata)
		if !ok {
			return 0, wrongVariant(activityType)
		}
		return m.NewLevel * PointsPerLevel, nil

	case ActivityAchievementUnlocked:
		m, ok := metadata.(AchievementMetadata)
		if !ok {
			return 0, wrongVariant(activityType)
		}
		return m.Points, nil

	case ActivityChallengeCompleted:
		m, ok := metadata.(ChallengeMetadata)
		if !ok {
			return 0, wrongVariant(activityType)
		}
		return m.Points, nil

	case ActivityManualAward:
		m, ok := metadata.(ManualMetadata)
		if !ok {
			return 0, wrongVariant(activityType)
		}
		return m.Points, nil
	}

	return 0, shared.ErrUnknownActivityType
}

func wrongVariant(activityType ActivityType) error {
	return shared.WrapError("progression", "CalculatePoints", shared.ErrValidation,
		fmt.Sprintf("metadata variant does not match %q", activityType), shared.ErrInvalidMetadata)
}

// DefaultDescription возвращает описание события для ledger,
// если вызывающая сторона не передала своё.
func DefaultDescription(activityType ActivityType, metadata Metadata) string {
	switch activityType {
	case ActivityQuizCompleted:
		if m, ok := metadata.(QuizMetadata); ok {
			return fmt.Sprintf("Completed quiz with %d%% score", m.Score)
		}
		return "Completed quiz"
	case ActivityDailyStreak:
		if m, ok := metadata.(StreakMetadata); ok {
			return fmt.Sprintf("Maintained %d day learning streak", m.StreakDays)
		}
		return "Maintained learning streak"
	case ActivityWeeklyStreak:
		if m, ok := metadata.(WeeklyStreakMetadata); ok {
			return fmt.Sprintf("Maintained %d week learning streak", m.StreakWeeks)
		}
		return "Maintained weekly learning streak"
	case ActivityFirstQuizDay:
		return "First quiz of the day"
	case ActivityHabitsQuestionnaire:
		return "Completed learning habits assessment"
	case ActivityNoteCreated:
		return "Created a study note"
	case ActivityLevelUp:
		if m, ok := metadata.(LevelUpMetadata); ok {
			return fmt.Sprintf("Reached Level %d!", m.NewLevel)
		}
		return "Leveled up!"
	case ActivityAchievementUnlocked:
		if m, ok := metadata.(AchievementMetadata); ok {
			return fmt.Sprintf("Unlocked: %s", m.AchievementName)
		}
		return "Unlocked an achievement"
	case ActivityChallengeCompleted:
		if m, ok := metadata.(ChallengeMetadata); ok {
			return fmt.Sprintf("Completed daily challenge: %s", m.ChallengeTitle)
		}
		return "Completed a daily challenge"
	case ActivityManualAward:
		if m, ok := metadata.(ManualMetadata); ok && m.Reason != "" {
			return m.Reason
		}
		return "Manual award"
	}
	return string(activityType)
}
