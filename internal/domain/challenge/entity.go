package challenge

import (
	"time"

	"github.com/studyhub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DAILY CHALLENGE
// ══════════════════════════════════════════════════════════════════════════════

// Type - тип дневного челленджа.
type Type string

const (
	TypeQuizCount    Type = "quiz_count"
	TypeQuizScore    Type = "quiz_score"
	TypePerfectScore Type = "perfect_score"
	TypeStreak       Type = "streak"
	TypeStudyTime    Type = "study_time"
)

// IsValid проверяет, известен ли тип челленджа.
func (t Type) IsValid() bool {
	switch t {
	case TypeQuizCount, TypeQuizScore, TypePerfectScore, TypeStreak, TypeStudyTime:
		return true
	}
	return false
}

// Requirements - целевые значения челленджа. Заполняется поле,
// соответствующее типу челленджа.
type Requirements struct {
	TargetCount   int `json:"target_count,omitempty"`
	TargetScore   int `json:"target_score,omitempty"`
	TargetDays    int `json:"target_days,omitempty"`
	TargetMinutes int `json:"target_minutes,omitempty"`
}

// Challenge - дневной челлендж. Когорта генерируется на каждую
// календарную дату идемпотентно.
type Challenge struct {
	// ID - идентификатор челленджа.
	ID string

	// Title - название (уникально в пределах даты).
	Title string

	// Description - описание условия.
	Description string

	// Type - тип челленджа.
	Type Type

	// Requirements - целевые значения.
	Requirements Requirements

	// PointsReward - награда за выполнение.
	PointsReward int

	// Date - дата, на которую действует челлендж (без времени, UTC).
	Date time.Time

	// Active - участвует ли челлендж в продвижении.
	Active bool
}

// Validate проверяет корректность определения челленджа.
func (c *Challenge) Validate() error {
	if c.Title == "" {
		return shared.WrapError("challenge", "Validate", shared.ErrEmptyValue,
			"challenge title is required", shared.ErrInvalidChallengeDef)
	}
	if !c.Type.IsValid() {
		return shared.WrapError("challenge", "Validate", shared.ErrInvalidInput,
			"challenge type "+string(c.Type), shared.ErrInvalidChallengeDef)
	}
	if c.PointsReward < 0 {
		return shared.WrapError("challenge", "Validate", shared.ErrNegativeValue,
			"points reward cannot be negative", shared.ErrInvalidChallengeDef)
	}
	if c.target() <= 0 {
		return shared.WrapError("challenge", "Validate", shared.ErrInvalidInput,
			"challenge target must be positive", shared.ErrInvalidChallengeDef)
	}
	return nil
}

// target возвращает целевое значение для типа челленджа.
// perfect_score считает количество идеальных квизов, не балл.
func (c *Challenge) target() int {
	switch c.Type {
	case TypeQuizCount, TypePerfectScore:
		return c.Requirements.TargetCount
	case TypeQuizScore:
		return c.Requirements.TargetScore
	case TypeStreak:
		return c.Requirements.TargetDays
	case TypeStudyTime:
		return c.Requirements.TargetMinutes
	}
	return 0
}

// Difficulty возвращает метку сложности, выведенную из награды.
func (c *Challenge) Difficulty() string {
	switch {
	case c.PointsReward >= 100:
		return "Hard"
	case c.PointsReward >= 50:
		return "Medium"
	default:
		return "Easy"
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CHALLENGE PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// Counters - счётчики прогресса пользователя по челленджу.
type Counters struct {
	CompletedQuizzes int `json:"completed_quizzes,omitempty"`
	BestScore        int `json:"best_score,omitempty"`
	PerfectScores    int `json:"perfect_scores,omitempty"`
	CurrentStreak    int `json:"current_streak,omitempty"`
	StudyMinutes     int `json:"study_minutes,omitempty"`
}

// Progress - прогресс пользователя по одному челленджу.
// completed - монотонный защёлкивающийся флаг false -> true;
// после установки строка заморожена и не переоценивается.
type Progress struct {
	UserID      string
	ChallengeID string
	Counters    Counters
	Completed   bool
	CompletedAt time.Time
}

// NewProgress создаёт пустой прогресс для пары (user, challenge).
func NewProgress(userID, challengeID string) *Progress {
	return &Progress{
		UserID:      userID,
		ChallengeID: challengeID,
	}
}

// current возвращает текущее значение счётчика для типа челленджа.
func (p *Progress) current(t Type) int {
	switch t {
	case TypeQuizCount:
		return p.Counters.CompletedQuizzes
	case TypeQuizScore:
		return p.Counters.BestScore
	case TypePerfectScore:
		return p.Counters.PerfectScores
	case TypeStreak:
		return p.Counters.CurrentStreak
	case TypeStudyTime:
		return p.Counters.StudyMinutes
	}
	return 0
}

// CompletionPercent возвращает процент выполнения (0-100).
func (p *Progress) CompletionPercent(c *Challenge) float64 {
	if p.Completed {
		return 100
	}
	target := c.target()
	if target <= 0 {
		return 0
	}
	pct := float64(p.current(c.Type)) / float64(target) * 100
	if pct > 100 {
		return 100
	}
	return pct
}
