package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCronExpression(t *testing.T) {
	expr, err := ParseCronExpression("0 21 * * *")
	require.NoError(t, err)
	assert.Equal(t, "0 21 * * *", expr.String())

	expr, err = ParseCronExpression("*/15 * * * *")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 15, 30, 45}, expr.minutes)

	expr, err = ParseCronExpression("0 9-11 * * *")
	require.NoError(t, err)
	assert.Equal(t, []int{9, 10, 11}, expr.hours)

	expr, err = ParseCronExpression("0 0 * * 1,3,5")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 5}, expr.weekdays)
}

func TestParseCronExpression_Invalid(t *testing.T) {
	_, err := ParseCronExpression("0 21 * *")
	assert.Error(t, err, "four fields")

	_, err = ParseCronExpression("61 * * * *")
	assert.Error(t, err, "minute out of range")

	_, err = ParseCronExpression("0 25 * * *")
	assert.Error(t, err, "hour out of range")

	_, err = ParseCronExpression("x * * * *")
	assert.Error(t, err)
}

func TestCronExpression_Next(t *testing.T) {
	expr, err := ParseCronExpression("5 0 * * *")
	require.NoError(t, err)

	// Before today's trigger time.
	after := time.Date(2026, 3, 4, 0, 0, 30, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 4, 0, 5, 0, 0, time.UTC), expr.Next(after))

	// Past today's trigger time, rolls to the next day.
	after = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 5, 0, 5, 0, 0, time.UTC), expr.Next(after))
}

func TestCronExpression_NextWeekday(t *testing.T) {
	expr, err := ParseCronExpression("0 0 * * 1")
	require.NoError(t, err)

	// Wednesday 2026-03-04 -> Monday 2026-03-09.
	after := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), expr.Next(after))
}

func TestIntervalSchedule(t *testing.T) {
	schedule := NewIntervalSchedule(10 * time.Minute)
	after := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, after.Add(10*time.Minute), schedule.Next(after))
}
