package availability

import "time"

// Cell is one position in a 7-column month grid. Blank cells pad the
// boundary weeks; adjacent-month days are never shown.
type Cell struct {
	Blank bool      `json:"blank"`
	Date  time.Time `json:"date,omitzero"`
}

// BuildGrid lays out month as whole weeks. A zero month yields no cells.
func (c Calendar) BuildGrid(month time.Time) []Cell {
	if month.IsZero() {
		return nil
	}

	loc := c.location()
	first := c.MonthStart(month)
	last := time.Date(first.Year(), first.Month()+1, 0, 0, 0, 0, 0, loc)
	if last.Before(first) {
		return nil
	}

	lead := c.WeekdayIndex(first) - 1
	trail := 7 - c.WeekdayIndex(last)
	total := lead + last.Day() + trail
	if total%7 != 0 {
		return nil
	}

	cells := make([]Cell, 0, total)
	for i := 0; i < total; i++ {
		day := time.Date(first.Year(), first.Month(), 1-lead+i, 0, 0, 0, 0, loc)
		if day.Month() != first.Month() || day.Year() != first.Year() {
			cells = append(cells, Cell{Blank: true})
			continue
		}
		cells = append(cells, Cell{Date: day})
	}
	return cells
}

// WeekdayLabels returns short weekday names in grid column order.
func (c Calendar) WeekdayLabels() []string {
	labels := make([]string, 0, 7)
	for i := 0; i < 7; i++ {
		labels = append(labels, time.Weekday((int(c.WeekStart)+i)%7).String()[:3])
	}
	return labels
}

type DayCell struct {
	Cell
	Status   DayStatus `json:"status"`
	Selected bool      `json:"selected,omitempty"`
	Today    bool      `json:"today,omitempty"`
}

type MonthView struct {
	Month    time.Time `json:"month"`
	Weekdays []string  `json:"weekdays"`
	Cells    []DayCell `json:"cells"`
}

// Month decorates the grid for month with per-day status. A zero selected
// highlights nothing; a selection outside month is simply not shown.
func (c Calendar) Month(month, selected, now time.Time, blockouts []Blockout, bookings []Booking) MonthView {
	grid := c.BuildGrid(month)
	view := MonthView{
		Weekdays: c.WeekdayLabels(),
		Cells:    make([]DayCell, 0, len(grid)),
	}
	if !month.IsZero() {
		view.Month = c.MonthStart(month)
	}

	for _, cell := range grid {
		decorated := DayCell{Cell: cell}
		if !cell.Blank {
			decorated.Status = c.StatusFor(cell.Date, blockouts, bookings)
			decorated.Selected = !selected.IsZero() && c.SameDay(cell.Date, selected)
			decorated.Today = !now.IsZero() && c.SameDay(cell.Date, now)
		}
		view.Cells = append(view.Cells, decorated)
	}
	return view
}
