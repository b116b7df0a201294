package availability

import "time"

// Navigator tracks the month being viewed and an optional selected day.
type Navigator struct {
	cal   Calendar
	month time.Time

	// anchor is the first of the month the selection belongs to and day its
	// intended day-of-month, which may be past the end of that month.
	anchor time.Time
	day    int
}

func NewNavigator(cal Calendar, month, selected time.Time) *Navigator {
	n := &Navigator{cal: cal, month: cal.MonthStart(month)}
	n.Select(selected)
	return n
}

// RestoreNavigator rebuilds a navigator from a saved anchor month and
// intended day-of-month. A day outside 1..31 means no selection.
func RestoreNavigator(cal Calendar, month, anchor time.Time, day int) *Navigator {
	n := &Navigator{cal: cal, month: cal.MonthStart(month)}
	if day >= 1 && day <= 31 && !anchor.IsZero() {
		n.anchor = cal.MonthStart(anchor)
		n.day = day
	}
	return n
}

func (n *Navigator) Month() time.Time {
	return n.month
}

// Selected resolves the intended day against its anchor month. When that
// month is too short the result rolls into the next month and is never
// highlighted in the grid.
func (n *Navigator) Selected() time.Time {
	if n.day == 0 {
		return time.Time{}
	}
	return time.Date(n.anchor.Year(), n.anchor.Month(), n.day, 0, 0, 0, 0, n.cal.location())
}

// Anchor returns the selection's month and intended day-of-month. Day is 0
// without a selection.
func (n *Navigator) Anchor() (time.Time, int) {
	return n.anchor, n.day
}

func (n *Navigator) Select(day time.Time) {
	if day.IsZero() {
		n.anchor, n.day = time.Time{}, 0
		return
	}
	start := n.cal.DayStart(day)
	n.anchor = n.cal.MonthStart(start)
	n.day = start.Day()
}

// Show moves the view to month without touching the selection.
func (n *Navigator) Show(month time.Time) {
	n.month = n.cal.MonthStart(month)
}

func (n *Navigator) Next() {
	n.shift(1)
}

func (n *Navigator) Previous() {
	n.shift(-1)
}

func (n *Navigator) shift(months int) {
	loc := n.cal.location()
	n.month = time.Date(n.month.Year(), n.month.Month()+time.Month(months), 1, 0, 0, 0, 0, loc)
	if n.day == 0 {
		return
	}
	n.anchor = time.Date(n.anchor.Year(), n.anchor.Month()+time.Month(months), 1, 0, 0, 0, 0, loc)
}
