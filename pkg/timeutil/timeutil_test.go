package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStartOfDay(t *testing.T) {
	moment := time.Date(2026, 3, 4, 15, 42, 7, 123, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), StartOfDay(moment))

	// Conversion to UTC happens before truncation.
	almaty := time.FixedZone("ALMT", 5*3600)
	local := time.Date(2026, 3, 4, 2, 0, 0, 0, almaty) // 2026-03-03 21:00 UTC
	assert.Equal(t, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), StartOfDay(local))
}

func TestStartOfWeek(t *testing.T) {
	// ISO weeks start on Monday.
	monday := Date(2026, 3, 2)
	assert.Equal(t, monday, StartOfWeek(monday))
	assert.Equal(t, monday, StartOfWeek(Date(2026, 3, 4)))
	assert.Equal(t, monday, StartOfWeek(Date(2026, 3, 8))) // Sunday

	assert.Equal(t, Date(2026, 3, 9), StartOfWeek(Date(2026, 3, 9)))
}

func TestIsSameDay(t *testing.T) {
	assert.True(t, IsSameDay(
		time.Date(2026, 3, 4, 0, 1, 0, 0, time.UTC),
		time.Date(2026, 3, 4, 23, 59, 0, 0, time.UTC),
	))
	assert.False(t, IsSameDay(Date(2026, 3, 4), Date(2026, 3, 5)))
}

func TestIsConsecutiveDay(t *testing.T) {
	assert.True(t, IsConsecutiveDay(Date(2026, 3, 4), Date(2026, 3, 5)))
	assert.False(t, IsConsecutiveDay(Date(2026, 3, 4), Date(2026, 3, 6)))
	assert.False(t, IsConsecutiveDay(Date(2026, 3, 5), Date(2026, 3, 4)))

	// Month boundary.
	assert.True(t, IsConsecutiveDay(Date(2026, 2, 28), Date(2026, 3, 1)))
}

func TestIsConsecutiveWeek(t *testing.T) {
	assert.True(t, IsConsecutiveWeek(Date(2026, 3, 6), Date(2026, 3, 10)))
	assert.False(t, IsConsecutiveWeek(Date(2026, 3, 2), Date(2026, 3, 4)))
	assert.False(t, IsConsecutiveWeek(Date(2026, 3, 2), Date(2026, 3, 17)))
}

func TestDaysBetween(t *testing.T) {
	assert.Equal(t, 0, DaysBetween(Date(2026, 3, 4), Date(2026, 3, 4)))
	assert.Equal(t, 3, DaysBetween(Date(2026, 3, 4), Date(2026, 3, 7)))
	assert.Equal(t, 3, DaysBetween(Date(2026, 3, 7), Date(2026, 3, 4)))
}

func TestFormatAndParseDate(t *testing.T) {
	assert.Equal(t, "2026-03-04", FormatDateStr(Date(2026, 3, 4)))

	parsed, err := ParseDate("2026-03-04")
	assert.NoError(t, err)
	assert.Equal(t, Date(2026, 3, 4), parsed)

	_, err = ParseDate("04.03.2026")
	assert.Error(t, err)
}
