package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rbright/pilot-availability/internal/availability"
	"github.com/rbright/pilot-availability/internal/log"
	"github.com/rbright/pilot-availability/internal/snapshot"
	"github.com/rbright/pilot-availability/internal/state"
	"github.com/rbright/pilot-availability/internal/waybar"
)

func (e *env) status(ctx context.Context) (waybar.Output, error) {
	if err := state.EnsureDirs(e.fs, e.cfg.StateDir, e.cfg.MenuDir); err != nil {
		return waybar.Output{}, err
	}

	if err := e.requirePilot(); err != nil {
		if menuErr := state.WriteMenu(e.fs, e.cfg.MenuPath, state.MenuData{}); menuErr != nil {
			return waybar.Output{}, menuErr
		}
		return waybar.RenderError(err), nil
	}

	result := e.refresh(ctx)
	snap := e.loader.Snapshot()
	if result.BlockoutErr != nil && result.BookingErr != nil && snap.BlockoutsAt.IsZero() && snap.BookingsAt.IsZero() {
		return waybar.RenderError(result.Err()), nil
	}

	status, err := e.render(e.loadNavigator(), snap, result)
	if err != nil {
		return waybar.Output{}, err
	}
	return waybar.Render(status), nil
}

// render writes month.json and the day menu for nav and returns what the
// module shows. The menu follows the selected day, falling back to today.
func (e *env) render(nav *availability.Navigator, snap snapshot.Snapshot, result snapshot.Result) (waybar.Status, error) {
	now := e.now()
	view := e.cal.Month(nav.Month(), nav.Selected(), now, snap.Blockouts, snap.Bookings)
	if err := state.SaveMonth(e.fs, e.cfg.MonthPath, view); err != nil {
		return waybar.Status{}, err
	}

	day := nav.Selected()
	if day.IsZero() {
		day = e.cal.DayStart(now)
	}
	if err := state.WriteMenu(e.fs, e.cfg.MenuPath, e.menuData(day, snap)); err != nil {
		return waybar.Status{}, err
	}

	return waybar.Status{
		Today:      now,
		Day:        e.cal.StatusFor(now, snap.Blockouts, snap.Bookings),
		View:       view,
		BadgeLimit: e.cfg.BadgeLimit,
		Warning:    refreshWarning(result),
	}, nil
}

func (e *env) menuData(day time.Time, snap snapshot.Snapshot) state.MenuData {
	return state.MenuData{
		Day:       day,
		Status:    e.cal.StatusFor(day, snap.Blockouts, snap.Bookings),
		Bookings:  e.cal.BookingsOn(day, snap.Bookings),
		Blockouts: e.cal.BlockoutsOn(day, snap.Blockouts),
	}
}

func refreshWarning(result snapshot.Result) string {
	var lines []string
	if result.BlockoutErr != nil {
		lines = append(lines, "Blockouts not refreshed: "+result.BlockoutErr.Error())
	}
	if result.BookingErr != nil {
		lines = append(lines, "Bookings not refreshed: "+result.BookingErr.Error())
	}
	return strings.Join(lines, "\n")
}

// loadNavigator never fails; an unreadable view starts over on today.
func (e *env) loadNavigator() *availability.Navigator {
	nav, err := state.LoadNavigator(e.fs, e.cfg.ViewPath, e.cal, e.now())
	if err != nil {
		log.Error("load view failed", err, "path", e.cfg.ViewPath)
	}
	return nav
}

func (e *env) saveNavigator(nav *availability.Navigator) error {
	return state.SaveNavigator(e.fs, e.cfg.ViewPath, nav, e.now())
}

func (e *env) navigate(ctx context.Context, move func(*availability.Navigator)) error {
	nav := e.loadNavigator()
	move(nav)
	if err := e.saveNavigator(nav); err != nil {
		return err
	}
	_, err := e.status(ctx)
	return err
}

func (e *env) selectDay(ctx context.Context, raw string) error {
	day, err := e.cal.ParseDay(raw)
	if err != nil {
		return err
	}
	if err := e.saveNavigator(availability.NewNavigator(e.cal, day, day)); err != nil {
		return err
	}
	_, err = e.status(ctx)
	return err
}

func (e *env) month(ctx context.Context, rest []string) error {
	if err := e.requirePilot(); err != nil {
		return err
	}

	nav := e.loadNavigator()
	if len(rest) == 1 {
		month, err := e.cal.ParseMonth(rest[0])
		if err != nil {
			return err
		}
		nav.Show(month)
		if err := e.saveNavigator(nav); err != nil {
			return err
		}
	}

	if err := state.EnsureDirs(e.fs, e.cfg.StateDir, e.cfg.MenuDir); err != nil {
		return err
	}
	result := e.refresh(ctx)
	status, err := e.render(nav, e.loader.Snapshot(), result)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(e.stdout, waybar.MonthGrid(status.View, e.cfg.BadgeLimit))
	return err
}

func (e *env) day(ctx context.Context, rest []string) error {
	if err := e.requirePilot(); err != nil {
		return err
	}

	day := e.loadNavigator().Selected()
	if len(rest) == 1 {
		parsed, err := e.cal.ParseDay(rest[0])
		if err != nil {
			return err
		}
		day = parsed
	}
	if day.IsZero() {
		day = e.cal.DayStart(e.now())
	}

	e.refresh(ctx)
	data := e.menuData(day, e.loader.Snapshot())

	var b strings.Builder
	_, _ = fmt.Fprintf(&b, "%s: %s\n", day.Format("Mon 2 Jan 2006"), data.Status.Kind())
	if len(data.Bookings) > 0 {
		b.WriteString("Bookings:\n")
		for _, booking := range data.Bookings {
			_, _ = fmt.Fprintf(&b, "  %s (%s)\n", fallback(booking.Title, booking.ID), booking.Status)
		}
	}
	if len(data.Blockouts) > 0 {
		b.WriteString("Blockouts:\n")
		for _, blockout := range data.Blockouts {
			_, _ = fmt.Fprintf(&b, "  %s %s\n", describeWindow(blockout), fallback(blockout.Label, "Unavailable"))
		}
	}

	_, err := fmt.Fprint(e.stdout, b.String())
	return err
}

func describeWindow(b availability.Blockout) string {
	window := b.Start.Format("15:04") + "-" + b.End.Format("15:04")
	if !b.Recurring() {
		return window
	}
	return window + " " + b.Recurrence.String()
}

func fallback(value, defaultValue string) string {
	if strings.TrimSpace(value) == "" {
		return defaultValue
	}
	return value
}
