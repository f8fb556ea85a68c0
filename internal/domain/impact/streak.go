package impact

import (
	"sort"
	"time"

	"github.com/fiberfriends/companion-engine/pkg/timeutil"
)

// Streaks summarizes consecutive days of daily tracking.
type Streaks struct {
	// Current counts consecutive days ending today, capped at the lookback.
	Current int

	// Longest is the longest run of consecutive days ever recorded.
	Longest int
}

// activeDates returns the distinct local calendar dates of the records.
func activeDates(cal *timeutil.Calendar, records []DailyRecord) map[timeutil.Date]struct{} {
	dates := make(map[timeutil.Date]struct{}, len(records))
	for _, r := range records {
		dates[cal.DateOf(r.RecordedAt)] = struct{}{}
	}
	return dates
}

// CurrentStreak walks back from today over distinct active dates and stops at
// the first day without a record. Days beyond lookbackDays are not counted.
func CurrentStreak(cal *timeutil.Calendar, records []DailyRecord, now time.Time, lookbackDays int) int {
	dates := activeDates(cal, records)

	streak := 0
	day := cal.DateOf(now)
	for streak < lookbackDays {
		if _, ok := dates[day]; !ok {
			break
		}
		streak++
		day = cal.PrevDate(day)
	}
	return streak
}

// LongestStreak returns the longest run of consecutive active dates.
func LongestStreak(cal *timeutil.Calendar, records []DailyRecord) int {
	dates := activeDates(cal, records)
	if len(dates) == 0 {
		return 0
	}

	sorted := make([]timeutil.Date, 0, len(dates))
	for d := range dates {
		sorted = append(sorted, d)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	longest, run := 1, 1
	for i := 1; i < len(sorted); i++ {
		if cal.NextDate(sorted[i-1]) == sorted[i] {
			run++
		} else {
			run = 1
		}
		longest = max(longest, run)
	}
	return longest
}

// ComputeStreaks returns both streak figures.
func ComputeStreaks(cal *timeutil.Calendar, records []DailyRecord, now time.Time, lookbackDays int) Streaks {
	return Streaks{
		Current: CurrentStreak(cal, records, now, lookbackDays),
		Longest: LongestStreak(cal, records),
	}
}
