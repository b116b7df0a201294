package availability

import (
	"fmt"
	"strings"
	"time"
)

// Calendar carries the conventions every query depends on: which weekday
// starts a displayed week and which zone defines day boundaries.
type Calendar struct {
	WeekStart time.Weekday
	Location  *time.Location
}

func NewCalendar(weekStart time.Weekday, loc *time.Location) Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return Calendar{WeekStart: weekStart, Location: loc}
}

func ParseWeekStart(raw string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "monday", "mon":
		return time.Monday, nil
	case "sunday", "sun":
		return time.Sunday, nil
	default:
		return time.Monday, fmt.Errorf("unsupported week start %q", raw)
	}
}

func (c Calendar) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

func (c Calendar) DayStart(t time.Time) time.Time {
	return dayStart(t, c.location())
}

// DayEnd is the exclusive end of t's day, i.e. the next day's start.
func (c Calendar) DayEnd(t time.Time) time.Time {
	local := t.In(c.location())
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, c.location())
}

func (c Calendar) SameDay(a, b time.Time) bool {
	return c.DayStart(a).Equal(c.DayStart(b))
}

// WeekdayIndex numbers t's weekday 1..7 counting from WeekStart.
func (c Calendar) WeekdayIndex(t time.Time) int {
	wd := t.In(c.location()).Weekday()
	return (int(wd)-int(c.WeekStart)+7)%7 + 1
}

func (c Calendar) MonthStart(t time.Time) time.Time {
	local := t.In(c.location())
	return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, c.location())
}

func dayStart(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

const (
	DayLayout   = "2006-01-02"
	MonthLayout = "2006-01"
)

// ParseDay reads YYYY-MM-DD as the start of that day in the calendar zone.
func (c Calendar) ParseDay(raw string) (time.Time, error) {
	day, err := time.ParseInLocation(DayLayout, strings.TrimSpace(raw), c.location())
	if err != nil {
		return time.Time{}, fmt.Errorf("parse day %q: %w", raw, err)
	}
	return day, nil
}

// ParseMonth reads YYYY-MM as the first day of that month.
func (c Calendar) ParseMonth(raw string) (time.Time, error) {
	month, err := time.ParseInLocation(MonthLayout, strings.TrimSpace(raw), c.location())
	if err != nil {
		return time.Time{}, fmt.Errorf("parse month %q: %w", raw, err)
	}
	return month, nil
}
