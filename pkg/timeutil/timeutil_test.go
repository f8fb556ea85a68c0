package timeutil

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLocation(t *testing.T) {
	loc, err := LoadLocation("")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	_, err = LoadLocation("Not/AZone")
	assert.Error(t, err)
}

func TestCalendar_DateBoundariesFollowLocation(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	// 03:00 UTC is still the previous evening at UTC-5.
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC))
	cal := NewCalendar(loc, clock)

	assert.Equal(t, Date{2026, time.March, 9}, cal.Today())
	assert.Equal(t, "2026-03", cal.MonthKey(clock.Now()))
	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, loc), cal.StartOfDay(clock.Now()))
}

func TestCalendar_StartOfWeekIsMonday(t *testing.T) {
	cal := NewCalendar(time.UTC, nil)

	sunday := time.Date(2026, 3, 15, 18, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), cal.StartOfWeek(sunday))

	monday := time.Date(2026, 3, 9, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), cal.StartOfWeek(monday))
}

func TestCalendar_PrevNextDateAcrossMonths(t *testing.T) {
	cal := NewCalendar(time.UTC, nil)

	assert.Equal(t, Date{2026, time.February, 28}, cal.PrevDate(Date{2026, time.March, 1}))
	assert.Equal(t, Date{2027, time.January, 1}, cal.NextDate(Date{2026, time.December, 31}))
	assert.True(t, Date{2026, time.January, 31}.Before(Date{2026, time.February, 1}))
}

func TestCalendar_DaysSince(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	cal := NewCalendar(time.UTC, clock)

	assert.Equal(t, 0, cal.DaysSince(time.Date(2026, 3, 10, 0, 1, 0, 0, time.UTC)))
	assert.Equal(t, 3, cal.DaysSince(time.Date(2026, 3, 7, 23, 0, 0, 0, time.UTC)))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45s", FormatDuration(45*time.Second))
	assert.Equal(t, "5m", FormatDuration(5*time.Minute))
	assert.Equal(t, "2h", FormatDuration(2*time.Hour))
	assert.Equal(t, "2h15m", FormatDuration(2*time.Hour+15*time.Minute))
}
