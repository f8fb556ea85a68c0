// Package timeutil provides calendar helpers bound to a configurable timezone.
// Streaks and counter windows are computed on local calendar dates of the
// community, so every day boundary goes through a Calendar.
package timeutil

import (
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

// LoadLocation resolves an IANA zone name. Empty means UTC.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "UTC") {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("timeutil: load location %q: %w", name, err)
	}
	return loc, nil
}

// Date is a calendar day without a time component.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// String returns the date in ISO format (2006-01-02).
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Before reports whether d is strictly before other.
func (d Date) Before(other Date) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

// Calendar answers calendar questions in one location using an injectable clock.
type Calendar struct {
	loc   *time.Location
	clock clockwork.Clock
}

// NewCalendar creates a Calendar. Nil arguments fall back to UTC and the real clock.
func NewCalendar(loc *time.Location, clock clockwork.Clock) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Calendar{loc: loc, clock: clock}
}

// UTC returns a Calendar in UTC backed by the real clock.
func UTC() *Calendar {
	return NewCalendar(time.UTC, nil)
}

// Location returns the calendar's timezone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Clock returns the underlying clock.
func (c *Calendar) Clock() clockwork.Clock {
	return c.clock
}

// Now returns the current time in the calendar's timezone.
func (c *Calendar) Now() time.Time {
	return c.clock.Now().In(c.loc)
}

// In converts t to the calendar's timezone.
func (c *Calendar) In(t time.Time) time.Time {
	return t.In(c.loc)
}

// DateOf returns the local calendar date of t.
func (c *Calendar) DateOf(t time.Time) Date {
	local := t.In(c.loc)
	return Date{Year: local.Year(), Month: local.Month(), Day: local.Day()}
}

// Today returns the current local calendar date.
func (c *Calendar) Today() Date {
	return c.DateOf(c.clock.Now())
}

// MonthKey returns the local calendar month of t as "2006-01".
func (c *Calendar) MonthKey(t time.Time) string {
	local := t.In(c.loc)
	return fmt.Sprintf("%04d-%02d", local.Year(), local.Month())
}

// StartOfDay returns local midnight of t's day.
func (c *Calendar) StartOfDay(t time.Time) time.Time {
	local := t.In(c.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
}

// StartOfWeek returns local midnight of the Monday of t's week.
func (c *Calendar) StartOfWeek(t time.Time) time.Time {
	local := t.In(c.loc)
	weekday := int(local.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	return c.StartOfDay(local.AddDate(0, 0, -(weekday - 1)))
}

// StartOfMonth returns local midnight of the first day of t's month.
func (c *Calendar) StartOfMonth(t time.Time) time.Time {
	local := t.In(c.loc)
	return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, c.loc)
}

// PrevDate returns the calendar day before d.
func (c *Calendar) PrevDate(d Date) Date {
	t := time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, c.loc).AddDate(0, 0, -1)
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// NextDate returns the calendar day after d.
func (c *Calendar) NextDate(d Date) Date {
	t := time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, c.loc).AddDate(0, 0, 1)
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// DaysSince returns the number of whole local calendar days between t and now.
func (c *Calendar) DaysSince(t time.Time) int {
	from := c.DateOf(t)
	to := c.Today()
	a := time.Date(from.Year, from.Month, from.Day, 0, 0, 0, 0, time.UTC)
	b := time.Date(to.Year, to.Month, to.Day, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// FormatDuration formats a duration in a compact form (e.g. "2h15m", "45s").
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	if minutes == 0 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dh%dm", hours, minutes)
}
