package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rbright/pilot-availability/internal/log"
	"github.com/rbright/pilot-availability/internal/state"
	"github.com/rbright/pilot-availability/internal/store"
	"github.com/robfig/cron/v3"
)

// watch streams one status line per refresh until ctx is done. Refreshes
// come from the cron schedule and from changes to the data files; bursts
// collapse into a single render.
func (e *env) watch(ctx context.Context) error {
	if err := e.requirePilot(); err != nil {
		return err
	}
	if err := state.EnsureDirs(e.fs, e.cfg.StateDir, e.cfg.MenuDir, e.cfg.DataDir); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()
	if err := watcher.Add(e.cfg.DataDir); err != nil {
		return fmt.Errorf("watch data dir: %w", err)
	}

	trigger := make(chan string, 1)
	scheduler := cron.New(cron.WithLocation(e.cal.Location))
	if _, err := scheduler.AddFunc(e.cfg.RefreshCron, func() { signal(trigger, "schedule") }); err != nil {
		return fmt.Errorf("parse refresh schedule %q: %w", e.cfg.RefreshCron, err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	tracker := bookingTracker{count: -1}
	emit := func(reason string) error {
		out, err := e.status(ctx)
		if err != nil {
			return err
		}
		log.Debug("status rendered", "reason", reason, "class", out.Class)
		if err := writeOutput(e.stdout, out); err != nil {
			return err
		}
		e.announceBookings(ctx, &tracker)
		return nil
	}

	if err := emit("start"); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case reason := <-trigger:
			if err := emit(reason); err != nil {
				return err
			}
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if isDataFile(event.Name) && event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				signal(trigger, "data")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("data dir watch failed", err, "dir", e.cfg.DataDir)
		}
	}
}

func signal(trigger chan<- string, reason string) {
	select {
	case trigger <- reason:
	default:
	}
}

func isDataFile(path string) bool {
	switch filepath.Base(path) {
	case store.BlockoutsFile, store.BookingsFile:
		return true
	default:
		return false
	}
}

type bookingTracker struct {
	day   time.Time
	count int
}

// observe reports how many bookings appeared on day since the last call.
// The first observation of a day only records the baseline.
func (t *bookingTracker) observe(day time.Time, count int) int {
	if t.count < 0 || !t.day.Equal(day) {
		t.day, t.count = day, count
		return 0
	}
	added := count - t.count
	t.count = count
	if added < 0 {
		return 0
	}
	return added
}

func (e *env) announceBookings(ctx context.Context, tracker *bookingTracker) {
	now := e.now()
	snap := e.loader.Snapshot()
	count := len(e.cal.BookingsOn(now, snap.Bookings))
	if added := tracker.observe(e.cal.DayStart(now), count); added > 0 {
		e.notify(ctx, "New booking today", fmt.Sprintf("%d new, %d booked for %s", added, count, now.Format("Mon 2 Jan")))
	}
}
