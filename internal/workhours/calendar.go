// Package workhours decides whether recurring task processing is active at a
// given instant, and when it resumes next. Both sweep jobs gate on it.
package workhours

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Config is the external shape of the calendar (see config.WorkingHours).
//
// Days are weekday names ("mon".."sun", full names accepted). Periods are
// ordered, non-overlapping "HH:MM" pairs; a day may have any number of them
// (e.g. a morning block and an afternoon block around a lunch break).
type Config struct {
	Timezone string
	Days     []string
	Periods  []PeriodConfig
}

type PeriodConfig struct {
	Start string
	End   string
}

// period boundaries in seconds since local midnight, both ends inclusive.
type period struct {
	start int
	end   int
}

type Calendar struct {
	loc     *time.Location
	days    [7]bool // indexed by time.Weekday
	periods []period
}

// New validates the configuration up front. An empty day set or period list
// would make every tick a no-op and silently stop all recurring processing,
// so it is rejected here instead of being discovered in production.
func New(cfg Config) (*Calendar, error) {
	tz := strings.TrimSpace(cfg.Timezone)
	if tz == "" {
		return nil, fmt.Errorf("workhours: timezone is required")
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("workhours: invalid timezone %q: %w", tz, err)
	}

	if len(cfg.Days) == 0 {
		return nil, fmt.Errorf("workhours: working day list is empty")
	}
	var days [7]bool
	for _, d := range cfg.Days {
		wd, err := parseWeekday(d)
		if err != nil {
			return nil, err
		}
		days[wd] = true
	}

	if len(cfg.Periods) == 0 {
		return nil, fmt.Errorf("workhours: working period list is empty")
	}
	periods := make([]period, 0, len(cfg.Periods))
	for _, p := range cfg.Periods {
		start, err := parseHHMM(p.Start)
		if err != nil {
			return nil, err
		}
		end, err := parseHHMM(p.End)
		if err != nil {
			return nil, err
		}
		if start >= end {
			return nil, fmt.Errorf("workhours: period %s-%s: start must be before end", p.Start, p.End)
		}
		periods = append(periods, period{start: start, end: end})
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i].start < periods[j].start })
	for i := 1; i < len(periods); i++ {
		if periods[i].start <= periods[i-1].end {
			return nil, fmt.Errorf("workhours: working periods overlap")
		}
	}

	return &Calendar{loc: loc, days: days, periods: periods}, nil
}

func (c *Calendar) Location() *time.Location { return c.loc }

// IsWorkingTime reports whether t falls on a working day inside one of the
// configured periods. Period endpoints are inclusive on both sides.
func (c *Calendar) IsWorkingTime(t time.Time) bool {
	local := t.In(c.loc)
	if !c.days[local.Weekday()] {
		return false
	}
	sec := secondOfDay(local)
	for _, p := range c.periods {
		if sec >= p.start && sec <= p.end {
			return true
		}
	}
	return false
}

// NextWorkingTime returns the earliest working instant at or after t:
// t itself when already working, the next period start later the same working
// day, or the first period start of the next working day otherwise.
func (c *Calendar) NextWorkingTime(t time.Time) time.Time {
	local := t.In(c.loc)
	if c.IsWorkingTime(local) {
		return local
	}

	if c.days[local.Weekday()] {
		sec := secondOfDay(local)
		for _, p := range c.periods {
			if sec < p.start {
				return c.at(local, p.start)
			}
		}
	}

	// After the last period, or a non-working day: scan forward one day at a
	// time. The day set is non-empty, so this terminates within a week.
	day := local
	for {
		day = day.AddDate(0, 0, 1)
		if c.days[day.Weekday()] {
			return c.at(day, c.periods[0].start)
		}
	}
}

func (c *Calendar) at(day time.Time, sec int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), sec/3600, sec%3600/60, 0, 0, c.loc)
}

func secondOfDay(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}

func parseHHMM(s string) (int, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("workhours: invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("workhours: invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("workhours: invalid minute in %q", s)
	}
	return h*3600 + m*60, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sun", "sunday":
		return time.Sunday, nil
	case "mon", "monday":
		return time.Monday, nil
	case "tue", "tuesday":
		return time.Tuesday, nil
	case "wed", "wednesday":
		return time.Wednesday, nil
	case "thu", "thursday":
		return time.Thursday, nil
	case "fri", "friday":
		return time.Friday, nil
	case "sat", "saturday":
		return time.Saturday, nil
	}
	return 0, fmt.Errorf("workhours: unknown weekday %q", s)
}
