package progression

import "math"

// ══════════════════════════════════════════════════════════════════════════════
// LEVEL CURVE
// ══════════════════════════════════════════════════════════════════════════════

// Curve - инжектируемая стратегия кривой уровней.
// PointsRequiredForLevel должна быть неубывающей и строго положительной,
// иначе цикл повышения уровней не гарантированно завершается.
type Curve interface {
	// PointsRequiredForLevel возвращает, сколько очков нужно накопить
	// внутри уровня (level-1), чтобы перейти на level.
	PointsRequiredForLevel(level int) int
}

// ExponentialCurve - кривая по умолчанию: floor(base * level^exponent).
// При base=100, exponent=1.5: уровень 2 стоит 282, уровень 3 - 519 и т.д.
type ExponentialCurve struct {
	Base     float64
	Exponent float64
}

// DefaultCurve возвращает стандартную экспоненциальную кривую.
func DefaultCurve() ExponentialCurve {
	return ExponentialCurve{Base: 100, Exponent: 1.5}
}

// PointsRequiredForLevel implements Curve.
func (c ExponentialCurve) PointsRequiredForLevel(level int) int {
	if level < 1 {
		return 0
	}
	return int(c.Base * math.Pow(float64(level), c.Exponent))
}

// TableCurve - кривая с фиксированными порогами (конфиг и тесты).
// Для уровней за пределами таблицы последний порог экстраполируется.
type TableCurve struct {
	// Thresholds[i] - стоимость уровня i+1 (Thresholds[0] - стоимость уровня 1).
	Thresholds []int
}

// PointsRequiredForLevel implements Curve.
func (c TableCurve) PointsRequiredForLevel(level int) int {
	if level < 1 || len(c.Thresholds) == 0 {
		return 0
	}
	if level <= len(c.Thresholds) {
		return c.Thresholds[level-1]
	}
	return c.Thresholds[len(c.Thresholds)-1]
}

// ══════════════════════════════════════════════════════════════════════════════
// LEVEL TITLES
// ══════════════════════════════════════════════════════════════════════════════

// levelTitles - титулы уровней; применяется наибольший подходящий.
var levelTitles = []struct {
	Level int
	Title string
}{
	{1, "Novice Learner"},
	{2, "Curious Student"},
	{3, "Dedicated Scholar"},
	{4, "Knowledge Seeker"},
	{5, "Bright Mind"},
	{6, "Academic Star"},
	{7, "Learning Champion"},
	{8, "Master Student"},
	{9, "Learning Legend"},
	{10, "Study Guru"},
	{15, "Grandmaster Scholar"},
	{20, "Ultimate Learner"},
}

// FallbackTitle используется, если уровень не покрыт таблицей титулов.
const FallbackTitle = "Legendary Scholar"

// TitleForLevel возвращает титул для уровня: наибольший подходящий
// порог таблицы, FallbackTitle - если не подошёл ни один.
func TitleForLevel(level int) string {
	title := FallbackTitle
	for _, t := range levelTitles {
		if t.Level <= level {
			title = t.Title
		}
	}
	return title
}
