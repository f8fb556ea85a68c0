package impact

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fiberfriends/companion-engine/pkg/timeutil"
)

func records(days ...int) []DailyRecord {
	out := make([]DailyRecord, 0, len(days))
	for _, d := range days {
		out = append(out, DailyRecord{RecordedAt: daysAgo(d)})
	}
	return out
}

func TestCurrentStreak_StopsAtFirstGap(t *testing.T) {
	cal := timeutil.UTC()
	assert.Equal(t, 2, CurrentStreak(cal, records(0, 1, 3), now, 30))
}

func TestCurrentStreak_RequiresToday(t *testing.T) {
	cal := timeutil.UTC()
	assert.Equal(t, 0, CurrentStreak(cal, records(1, 2, 3), now, 30))
}

func TestCurrentStreak_CappedAtLookback(t *testing.T) {
	cal := timeutil.UTC()
	var days []int
	for i := 0; i < 45; i++ {
		days = append(days, i)
	}
	assert.Equal(t, 30, CurrentStreak(cal, records(days...), now, 30))
	assert.Equal(t, 45, LongestStreak(cal, records(days...)))
}

func TestCurrentStreak_UsesLocalDates(t *testing.T) {
	// 02:00 UTC on the 16th is still the 15th at UTC-5.
	loc := time.FixedZone("UTC-5", -5*60*60)
	cal := timeutil.NewCalendar(loc, nil)
	at := time.Date(2026, 6, 16, 2, 0, 0, 0, time.UTC)

	recs := []DailyRecord{
		{RecordedAt: time.Date(2026, 6, 15, 20, 0, 0, 0, time.UTC)},
		{RecordedAt: time.Date(2026, 6, 14, 20, 0, 0, 0, time.UTC)},
	}
	assert.Equal(t, 2, CurrentStreak(cal, recs, at, 30))
	assert.Equal(t, 0, CurrentStreak(timeutil.UTC(), recs, at, 30))
}

func TestLongestStreak_IsHistoricalMaximum(t *testing.T) {
	cal := timeutil.UTC()
	// current run of 2, older run of 5
	recs := records(0, 1, 10, 11, 12, 13, 14, 20)

	assert.Equal(t, 2, CurrentStreak(cal, recs, now, 30))
	assert.Equal(t, 5, LongestStreak(cal, recs))
	assert.Equal(t, 0, LongestStreak(cal, nil))
}

func TestLongestStreak_AcrossMonthBoundary(t *testing.T) {
	cal := timeutil.UTC()
	recs := []DailyRecord{
		{RecordedAt: time.Date(2026, 2, 27, 9, 0, 0, 0, time.UTC)},
		{RecordedAt: time.Date(2026, 2, 28, 9, 0, 0, 0, time.UTC)},
		{RecordedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
	}
	assert.Equal(t, 3, LongestStreak(cal, recs))
}
