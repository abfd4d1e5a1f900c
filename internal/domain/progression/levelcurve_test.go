package progression

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExponentialCurve_PointsRequiredForLevel(t *testing.T) {
	curve := DefaultCurve()

	assert.Equal(t, 100, curve.PointsRequiredForLevel(1))
	assert.Equal(t, 282, curve.PointsRequiredForLevel(2))
	assert.Equal(t, 519, curve.PointsRequiredForLevel(3))
	assert.Equal(t, 800, curve.PointsRequiredForLevel(4))

	assert.Equal(t, 0, curve.PointsRequiredForLevel(0))
	assert.Equal(t, 0, curve.PointsRequiredForLevel(-5))
}

func TestExponentialCurve_Monotonic(t *testing.T) {
	curve := DefaultCurve()
	prev := 0
	for level := 1; level <= 50; level++ {
		required := curve.PointsRequiredForLevel(level)
		assert.Greater(t, required, prev, "curve must be strictly increasing at level %d", level)
		prev = required
	}
}

func TestTableCurve_PointsRequiredForLevel(t *testing.T) {
	curve := TableCurve{Thresholds: []int{100, 200, 400}}

	assert.Equal(t, 100, curve.PointsRequiredForLevel(1))
	assert.Equal(t, 200, curve.PointsRequiredForLevel(2))
	assert.Equal(t, 400, curve.PointsRequiredForLevel(3))

	// За пределами таблицы экстраполируется последний порог.
	assert.Equal(t, 400, curve.PointsRequiredForLevel(4))
	assert.Equal(t, 400, curve.PointsRequiredForLevel(99))

	assert.Equal(t, 0, curve.PointsRequiredForLevel(0))
	assert.Equal(t, 0, TableCurve{}.PointsRequiredForLevel(1))
}

func TestTitleForLevel(t *testing.T) {
	assert.Equal(t, "Novice Learner", TitleForLevel(1))
	assert.Equal(t, "Curious Student", TitleForLevel(2))
	assert.Equal(t, "Bright Mind", TitleForLevel(5))
	assert.Equal(t, "Study Guru", TitleForLevel(10))

	// Между порогами действует наибольший подходящий.
	assert.Equal(t, "Study Guru", TitleForLevel(12))
	assert.Equal(t, "Grandmaster Scholar", TitleForLevel(17))
	assert.Equal(t, "Ultimate Learner", TitleForLevel(20))
	assert.Equal(t, "Ultimate Learner", TitleForLevel(100))
}

func TestTitleForLevel_Fallback(t *testing.T) {
	assert.Equal(t, FallbackTitle, TitleForLevel(0))
	assert.Equal(t, FallbackTitle, TitleForLevel(-1))
}
