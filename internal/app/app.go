package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rbright/pilot-availability/internal/availability"
	"github.com/rbright/pilot-availability/internal/config"
	"github.com/rbright/pilot-availability/internal/log"
	"github.com/rbright/pilot-availability/internal/notify"
	"github.com/rbright/pilot-availability/internal/selector"
	"github.com/rbright/pilot-availability/internal/snapshot"
	"github.com/rbright/pilot-availability/internal/store"
	"github.com/rbright/pilot-availability/internal/waybar"
	"github.com/spf13/afero"
)

const usage = "usage: pilot-availability <status|refresh|month [YYYY-MM]|next-month|prev-month|select-day YYYY-MM-DD|day [YYYY-MM-DD]|blockouts [--format json|yaml]|blockout add|edit ID|delete [ID]|export-ics [PATH]|import-ics PATH|import-bookings PATH|watch>"

var errNoPilot = errors.New("PILOT_ID is not configured")

type notifier interface {
	Send(ctx context.Context, summary, body string) error
}

type env struct {
	cfg    config.Runtime
	cal    availability.Calendar
	fs     afero.Fs
	files  *store.Files
	loader *snapshot.Loader
	stdout io.Writer
	now    func() time.Time

	notifier notifier
	closers  []func() error
	pick     func(context.Context, []availability.Blockout) (string, error)
}

func Run(ctx context.Context, args []string, cfg config.Runtime, stdout io.Writer) error {
	e := newEnv(cfg, afero.NewOsFs(), stdout)
	defer e.close()
	return e.run(ctx, args)
}

func newEnv(cfg config.Runtime, fsys afero.Fs, stdout io.Writer) *env {
	cal := cfg.Calendar()
	files := store.NewFiles(fsys, cfg.DataDir, cal)
	return &env{
		cfg:    cfg,
		cal:    cal,
		fs:     fsys,
		files:  files,
		loader: snapshot.NewLoader(cfg.PilotID, files, files),
		stdout: stdout,
		now:    time.Now,
		pick:   selector.SelectBlockout,
	}
}

func (e *env) close() {
	for _, closer := range e.closers {
		_ = closer()
	}
}

func (e *env) run(ctx context.Context, args []string) error {
	command, rest, err := parseArgs(args)
	if err != nil {
		return err
	}

	switch command {
	case "status":
		out, statusErr := e.status(ctx)
		if statusErr != nil {
			return statusErr
		}
		return writeOutput(e.stdout, out)
	case "refresh":
		_, statusErr := e.status(ctx)
		return statusErr
	case "month":
		return e.month(ctx, rest)
	case "next-month":
		return e.navigate(ctx, (*availability.Navigator).Next)
	case "prev-month":
		return e.navigate(ctx, (*availability.Navigator).Previous)
	case "select-day":
		return e.selectDay(ctx, rest[0])
	case "day":
		return e.day(ctx, rest)
	case "blockouts":
		return e.listBlockouts(ctx, rest)
	case "blockout":
		return e.blockout(ctx, rest)
	case "export-ics":
		return e.exportICS(ctx, rest)
	case "import-ics":
		return e.importICS(ctx, rest[0])
	case "import-bookings":
		return e.importBookings(ctx, rest[0])
	case "watch":
		return e.watch(ctx)
	default:
		return fmt.Errorf("unsupported command %q", command)
	}
}

func parseArgs(args []string) (command string, rest []string, err error) {
	if len(args) == 0 {
		return "status", nil, nil
	}

	command = strings.TrimSpace(args[0])
	rest = args[1:]

	switch command {
	case "status", "refresh", "next-month", "prev-month", "watch":
		if len(rest) > 0 {
			return "", nil, fmt.Errorf("unexpected argument %q", rest[0])
		}
	case "month", "day", "export-ics":
		if len(rest) > 1 {
			return "", nil, fmt.Errorf("unexpected argument %q", rest[1])
		}
	case "select-day":
		if len(rest) != 1 {
			return "", nil, fmt.Errorf("usage: pilot-availability select-day YYYY-MM-DD")
		}
	case "import-ics":
		if len(rest) != 1 {
			return "", nil, fmt.Errorf("usage: pilot-availability import-ics PATH")
		}
	case "import-bookings":
		if len(rest) != 1 {
			return "", nil, fmt.Errorf("usage: pilot-availability import-bookings PATH")
		}
	case "blockouts":
	case "blockout":
		if len(rest) == 0 {
			return "", nil, fmt.Errorf("usage: pilot-availability blockout <add|edit ID|delete [ID]> [flags]")
		}
		switch rest[0] {
		case "add", "edit", "delete":
		default:
			return "", nil, fmt.Errorf("unsupported blockout action %q", rest[0])
		}
	default:
		return "", nil, errors.New(usage)
	}
	return command, rest, nil
}

func (e *env) requirePilot() error {
	if strings.TrimSpace(e.cfg.PilotID) == "" {
		return errNoPilot
	}
	return nil
}

// refresh reloads the snapshot and logs per-source failures; the previous
// data for a failed source stays in place.
func (e *env) refresh(ctx context.Context) snapshot.Result {
	result := e.loader.Refresh(ctx)
	if result.BlockoutErr != nil {
		log.Error("refresh blockouts failed", result.BlockoutErr, "pilot", e.cfg.PilotID)
	}
	if result.BookingErr != nil {
		log.Error("refresh bookings failed", result.BookingErr, "pilot", e.cfg.PilotID)
	}
	if result.Stale {
		log.Debug("discarded superseded refresh", "token", result.Token)
	}
	return result
}

// notify connects to the session bus on first use. Without a bus every
// notification is dropped.
func (e *env) notify(ctx context.Context, summary, body string) {
	if e.notifier == nil {
		client, err := notify.New(ctx)
		if err != nil {
			log.Debug("notifications unavailable", "err", err)
		}
		if client != nil {
			e.closers = append(e.closers, client.Close)
		}
		e.notifier = client
	}
	if err := e.notifier.Send(ctx, summary, body); err != nil {
		log.Debug("notification failed", "err", err)
	}
}

func writeOutput(w io.Writer, output waybar.Output) error {
	payload, err := waybar.Encode(output)
	if err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if _, err := w.Write([]byte("\n")); err != nil {
		return fmt.Errorf("write trailing newline: %w", err)
	}
	return nil
}
