package waybar

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rbright/pilot-availability/internal/availability"
)

const ClassError = "error"

type Output struct {
	Text    string `json:"text"`
	Tooltip string `json:"tooltip"`
	Class   string `json:"class"`
}

// Status is everything the module needs for one render.
type Status struct {
	Today      time.Time
	Day        availability.DayStatus
	View       availability.MonthView
	BadgeLimit int
	Warning    string
}

func Render(s Status) Output {
	text := s.Today.Format("Mon 2") + " " + shortLabel(s.Day, s.BadgeLimit)

	var tooltip strings.Builder
	tooltip.WriteString(MonthGrid(s.View, s.BadgeLimit))
	tooltip.WriteString("\nx blocked, n bookings")
	if warning := strings.TrimSpace(s.Warning); warning != "" {
		tooltip.WriteString("\n\n")
		tooltip.WriteString(warning)
	}

	return Output{
		Text:    text,
		Tooltip: tooltip.String(),
		Class:   string(s.Day.Kind()),
	}
}

func RenderError(err error) Output {
	return Output{
		Text:    "Availability unavailable",
		Tooltip: err.Error(),
		Class:   ClassError,
	}
}

func Encode(output Output) ([]byte, error) {
	payload, err := json.Marshal(output)
	if err != nil {
		return nil, fmt.Errorf("marshal waybar output: %w", err)
	}
	return payload, nil
}

func shortLabel(status availability.DayStatus, badgeLimit int) string {
	switch status.Kind() {
	case availability.DayBlocked:
		return "blocked"
	case availability.DayBooked:
		return availability.BadgeText(status.BookingCount, badgeLimit) + " booked"
	default:
		return "free"
	}
}

// MonthGrid draws the view as fixed-width text, four columns per day.
func MonthGrid(view availability.MonthView, badgeLimit int) string {
	if len(view.Cells) == 0 {
		return "No month selected"
	}

	var b strings.Builder
	b.WriteString(view.Month.Format("January 2006"))
	b.WriteString("\n")
	for _, label := range view.Weekdays {
		_, _ = fmt.Fprintf(&b, "%-4s", label)
	}

	for idx, cell := range view.Cells {
		if idx%7 == 0 {
			b.WriteString("\n")
		}
		if cell.Blank {
			b.WriteString("    ")
			continue
		}
		_, _ = fmt.Fprintf(&b, "%2d%-2s", cell.Date.Day(), marker(cell.Status, badgeLimit))
	}
	lines := strings.Split(b.String(), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " ")
	}
	return strings.Join(lines, "\n")
}

func marker(status availability.DayStatus, badgeLimit int) string {
	switch status.Kind() {
	case availability.DayBlocked:
		return "x"
	case availability.DayBooked:
		return availability.BadgeText(status.BookingCount, badgeLimit)
	default:
		return ""
	}
}
