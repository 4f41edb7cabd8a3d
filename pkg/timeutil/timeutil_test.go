package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateKey_UsesLocation(t *testing.T) {
	almaty := time.FixedZone("Asia/Almaty", 5*60*60)
	// 21:30 UTC is already the next day in Almaty.
	ts := time.Date(2026, 3, 9, 21, 30, 0, 0, time.UTC)

	assert.Equal(t, "2026-03-09", DateKey(ts, time.UTC))
	assert.Equal(t, "2026-03-10", DateKey(ts, almaty))
	assert.Equal(t, "2026-03-09", DateKey(ts, nil))
}

func TestLoadLocation_FallsBackToUTC(t *testing.T) {
	assert.Equal(t, time.UTC, LoadLocation(""))
	assert.Equal(t, time.UTC, LoadLocation("Not/AZone"))
}

func TestStartEndOfDay(t *testing.T) {
	ts := time.Date(2026, 3, 9, 13, 45, 10, 0, time.UTC)

	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), StartOfDay(ts, time.UTC))
	assert.Equal(t, time.Date(2026, 3, 9, 23, 59, 59, 999999999, time.UTC), EndOfDay(ts, time.UTC))
}

func TestParseDateKey(t *testing.T) {
	got, err := ParseDateKey("2026-03-09", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), got)

	_, err = ParseDateKey("09.03.2026", time.UTC)
	assert.Error(t, err)
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	b := time.Date(2026, 3, 4, 1, 0, 0, 0, time.UTC)

	assert.Equal(t, 3, DaysBetween(a, b, time.UTC))
	assert.Equal(t, 3, DaysBetween(b, a, time.UTC))
	assert.True(t, IsSameDay(a, a.Add(30*time.Minute), time.UTC))
}
