package progression

import "time"

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESSION ACCOUNT
// ══════════════════════════════════════════════════════════════════════════════

// Account представляет прогрессию одного пользователя.
// totalPoints - кэшированная проекция суммы ledger-записей; инвариант
// totalPoints == sum(pointsEarned) проверяется тестами и job-ом сверки.
type Account struct {
	// UserID - идентификатор пользователя.
	UserID string

	// TotalPoints - суммарные очки (монотонно неубывающие).
	TotalPoints int

	// CurrentLevel - текущий уровень (>= 1, никогда не уменьшается).
	CurrentLevel int

	// PointsInLevel - очки, накопленные к следующему уровню.
	PointsInLevel int

	// DailyStreak - серия дней подряд с активностью.
	DailyStreak int

	// WeeklyStreak - серия недель подряд с активностью.
	WeeklyStreak int

	// LastActivityDate - дата последней активности (без времени, UTC).
	// Нулевое значение - активности ещё не было.
	LastActivityDate time.Time

	// LastWeekStart - начало ISO-недели последней активности.
	LastWeekStart time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewAccount создаёт аккаунт прогрессии с начальным состоянием.
// Аккаунты создаются лениво при первом событии пользователя.
func NewAccount(userID string) *Account {
	now := time.Now().UTC()
	return &Account{
		UserID:        userID,
		TotalPoints:   0,
		CurrentLevel:  1,
		PointsInLevel: 0,
		DailyStreak:   0,
		WeeklyStreak:  0,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// AddPoints добавляет очки к суммарному счёту и счёту уровня.
func (a *Account) AddPoints(points int) {
	if points <= 0 {
		return
	}
	a.TotalPoints += points
	a.PointsInLevel += points
}

// LevelUp описывает одно повышение уровня.
type LevelUp struct {
	OldLevel int
	NewLevel int
	Title    string
}

// ApplyLevelUps проверяет пороги кривой и применяет все накопившиеся
// повышения. Завершается, потому что кривая строго положительна и
// неубывающая: каждый уровень съедает не меньше очков, чем предыдущий.
func (a *Account) ApplyLevelUps(curve Curve) []LevelUp {
	var ups []LevelUp
	for {
		required := curve.PointsRequiredForLevel(a.CurrentLevel + 1)
		if required <= 0 || a.PointsInLevel < required {
			break
		}
		old := a.CurrentLevel
		a.CurrentLevel++
		a.PointsInLevel -= required
		ups = append(ups, LevelUp{
			OldLevel: old,
			NewLevel: a.CurrentLevel,
			Title:    TitleForLevel(a.CurrentLevel),
		})
	}
	return ups
}

// LevelTitle возвращает титул текущего уровня.
func (a *Account) LevelTitle() string {
	return TitleForLevel(a.CurrentLevel)
}

// PointsToNextLevel возвращает, сколько очков осталось до следующего уровня.
func (a *Account) PointsToNextLevel(curve Curve) int {
	required := curve.PointsRequiredForLevel(a.CurrentLevel + 1)
	remaining := required - a.PointsInLevel
	if remaining < 0 {
		return 0
	}
	return remaining
}

// LevelProgress возвращает прогресс внутри уровня в процентах (0-100).
func (a *Account) LevelProgress(curve Curve) float64 {
	required := curve.PointsRequiredForLevel(a.CurrentLevel + 1)
	if required <= 0 {
		return 0
	}
	progress := float64(a.PointsInLevel) / float64(required) * 100
	if progress > 100 {
		return 100
	}
	return progress
}
