package state

import (
	"fmt"
	"html"
	"path/filepath"
	"strings"
	"time"

	"github.com/rbright/pilot-availability/internal/availability"
	"github.com/rbright/pilot-availability/internal/store"
	"github.com/spf13/afero"
)

// MenuData describes the day detail shown when the module is clicked.
type MenuData struct {
	Day       time.Time
	Status    availability.DayStatus
	Bookings  []availability.Booking
	Blockouts []availability.Blockout
}

func WriteMenu(fsys afero.Fs, path string, data MenuData) error {
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create menu dir: %w", err)
	}

	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	b.WriteString("<interface>\n")
	b.WriteString("  <object class=\"GtkMenu\" id=\"menu\">\n")

	if data.Day.IsZero() {
		writeMenuItem(&b, "noop", "No day selected")
	} else {
		writeMenuItem(&b, "day", fmt.Sprintf("%s: %s", data.Day.Format("Mon 2 Jan 2006"), dayLabel(data.Status)))
		writeSeparator(&b, "separator_day")

		for idx, booking := range data.Bookings {
			writeMenuItem(&b, fmt.Sprintf("booking_%d", idx+1), bookingLabel(booking))
		}
		for idx, blockout := range data.Blockouts {
			writeMenuItem(&b, fmt.Sprintf("blockout_%d", idx+1), blockoutLabel(blockout))
		}
		if len(data.Bookings) == 0 && len(data.Blockouts) == 0 {
			writeMenuItem(&b, "noop", "Nothing scheduled")
		}
	}

	writeSeparator(&b, "separator_actions")
	writeMenuItem(&b, "prev_month", "Previous Month")
	writeMenuItem(&b, "next_month", "Next Month")
	writeMenuItem(&b, "delete_blockout", "Delete Blockout…")
	writeMenuItem(&b, "refresh", "Refresh")

	b.WriteString("  </object>\n")
	b.WriteString("</interface>\n")

	return store.WriteFileAtomically(fsys, path, []byte(b.String()))
}

func writeMenuItem(b *strings.Builder, id, label string) {
	b.WriteString("    <child>\n")
	_, _ = fmt.Fprintf(b, "      <object class=\"GtkMenuItem\" id=\"%s\">\n", html.EscapeString(id))
	_, _ = fmt.Fprintf(b, "        <property name=\"label\">%s</property>\n", html.EscapeString(label))
	b.WriteString("      </object>\n")
	b.WriteString("    </child>\n")
}

func writeSeparator(b *strings.Builder, id string) {
	b.WriteString("    <child>\n")
	_, _ = fmt.Fprintf(b, "      <object class=\"GtkSeparatorMenuItem\" id=\"%s\" />\n", html.EscapeString(id))
	b.WriteString("    </child>\n")
}

func dayLabel(status availability.DayStatus) string {
	switch status.Kind() {
	case availability.DayBlocked:
		if status.HasBooking() {
			return fmt.Sprintf("Blocked, %s", plural(status.BookingCount, "booking"))
		}
		return "Blocked"
	case availability.DayBooked:
		return plural(status.BookingCount, "booking")
	default:
		return "Available"
	}
}

func bookingLabel(booking availability.Booking) string {
	return fmt.Sprintf("%s (%s)", fallback(booking.Title, "Booking"), booking.Status)
}

func blockoutLabel(blockout availability.Blockout) string {
	label := fallback(blockout.Label, "Unavailable")
	if !blockout.Recurring() {
		return fmt.Sprintf("%s - %s %s", blockout.Start.Format("15:04"), blockout.End.Format("15:04"), label)
	}
	if blockout.Horizon != nil {
		return fmt.Sprintf("%s (%s until %s)", label, blockout.Recurrence, blockout.Horizon.Format(availability.DayLayout))
	}
	return fmt.Sprintf("%s (%s)", label, blockout.Recurrence)
}

func plural(count int, noun string) string {
	if count == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", count, noun)
}

func fallback(value, defaultValue string) string {
	if strings.TrimSpace(value) == "" {
		return defaultValue
	}
	return value
}
