package scheduler

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Schedule defines when a job should run.
type Schedule interface {
	// Definition returns the gocron job definition.
	Definition() gocron.JobDefinition

	// String returns a human-readable representation of the schedule.
	String() string
}

// ClockTime is a wall-clock time of day in the scheduler's timezone.
type ClockTime struct {
	Hour   uint
	Minute uint
}

// ParseClockTime parses "HH:MM".
func ParseClockTime(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return ClockTime{}, fmt.Errorf("scheduler: invalid time of day %q: %w", s, err)
	}
	return ClockTime{Hour: uint(t.Hour()), Minute: uint(t.Minute())}, nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

func (c ClockTime) atTimes() gocron.AtTimes {
	return gocron.NewAtTimes(gocron.NewAtTime(c.Hour, c.Minute, 0))
}

// IntervalSchedule runs a job at a fixed interval.
type IntervalSchedule struct {
	Interval time.Duration
}

// Every returns an IntervalSchedule.
func Every(interval time.Duration) IntervalSchedule {
	return IntervalSchedule{Interval: interval}
}

func (s IntervalSchedule) Definition() gocron.JobDefinition { return gocron.DurationJob(s.Interval) }
func (s IntervalSchedule) String() string                   { return "@every " + s.Interval.String() }

// DailySchedule runs a job once a day.
type DailySchedule struct {
	At ClockTime
}

// Daily returns a DailySchedule.
func Daily(at ClockTime) DailySchedule {
	return DailySchedule{At: at}
}

func (s DailySchedule) Definition() gocron.JobDefinition { return gocron.DailyJob(1, s.At.atTimes()) }
func (s DailySchedule) String() string                   { return "daily at " + s.At.String() }

// WeeklySchedule runs a job once a week.
type WeeklySchedule struct {
	Day time.Weekday
	At  ClockTime
}

// Weekly returns a WeeklySchedule.
func Weekly(day time.Weekday, at ClockTime) WeeklySchedule {
	return WeeklySchedule{Day: day, At: at}
}

func (s WeeklySchedule) Definition() gocron.JobDefinition {
	return gocron.WeeklyJob(1, gocron.NewWeekdays(s.Day), s.At.atTimes())
}

func (s WeeklySchedule) String() string {
	return fmt.Sprintf("weekly on %s at %s", s.Day, s.At)
}

// MonthlySchedule runs a job once a month.
type MonthlySchedule struct {
	Day int
	At  ClockTime
}

// Monthly returns a MonthlySchedule. Day is 1-31.
func Monthly(day int, at ClockTime) MonthlySchedule {
	return MonthlySchedule{Day: day, At: at}
}

func (s MonthlySchedule) Definition() gocron.JobDefinition {
	return gocron.MonthlyJob(1, gocron.NewDaysOfTheMonth(s.Day), s.At.atTimes())
}

func (s MonthlySchedule) String() string {
	return fmt.Sprintf("monthly on day %d at %s", s.Day, s.At)
}

// CronSchedule runs a job on a standard five-field crontab expression.
type CronSchedule struct {
	Expr string
}

// Cron returns a CronSchedule.
func Cron(expr string) CronSchedule {
	return CronSchedule{Expr: expr}
}

func (s CronSchedule) Definition() gocron.JobDefinition { return gocron.CronJob(s.Expr, false) }
func (s CronSchedule) String() string                   { return s.Expr }
