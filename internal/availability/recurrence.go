package availability

import "time"

// Matches reports whether blockout b covers target's day.
//
// Non-recurring blockouts overlap-test their literal interval against the
// day window. Recurring blockouts only consider the day of b.Start and are
// gated to [day of Start, day of Horizon].
func (c Calendar) Matches(b Blockout, target time.Time) bool {
	dayStart := c.DayStart(target)

	if !b.Recurring() {
		return b.Start.Before(c.DayEnd(target)) && !b.End.Before(dayStart)
	}

	if dayStart.Before(c.DayStart(b.Start)) {
		return false
	}
	if b.Horizon != nil && dayStart.After(c.DayStart(*b.Horizon)) {
		return false
	}

	return c.matchesPattern(b.Recurrence, b.Start, dayStart)
}

func (c Calendar) matchesPattern(r Recurrence, anchor, day time.Time) bool {
	anchor = anchor.In(c.location())
	day = day.In(c.location())

	switch r {
	case RecurrenceNone:
		return false
	case Daily:
		return true
	case Weekly:
		return c.WeekdayIndex(day) == c.WeekdayIndex(anchor)
	case Weekdays:
		wd := day.Weekday()
		return wd >= time.Monday && wd <= time.Friday
	case Weekends:
		wd := day.Weekday()
		return wd == time.Saturday || wd == time.Sunday
	case Monthly:
		// No clamping: an anchor on the 31st skips shorter months.
		return day.Day() == anchor.Day()
	default:
		return false
	}
}

// IsBlocked reports whether any blockout covers date's day.
func (c Calendar) IsBlocked(date time.Time, blockouts []Blockout) bool {
	for _, b := range blockouts {
		if c.Matches(b, date) {
			return true
		}
	}
	return false
}

// BlockoutsOn returns the blockouts covering date's day in source order.
func (c Calendar) BlockoutsOn(date time.Time, blockouts []Blockout) []Blockout {
	if len(blockouts) == 0 {
		return nil
	}

	matched := make([]Blockout, 0, len(blockouts))
	for _, b := range blockouts {
		if c.Matches(b, date) {
			matched = append(matched, b)
		}
	}
	return matched
}
