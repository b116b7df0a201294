package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/rbright/pilot-availability/internal/availability"
	"github.com/rbright/pilot-availability/internal/ical"
	"github.com/rbright/pilot-availability/internal/log"
	"github.com/rbright/pilot-availability/internal/selector"
	"github.com/rbright/pilot-availability/internal/store"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

var instantLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

func (e *env) listBlockouts(ctx context.Context, args []string) error {
	flags := pflag.NewFlagSet("blockouts", pflag.ContinueOnError)
	flags.SetOutput(io.Discard)
	format := flags.StringP("format", "f", "json", "output format (json|yaml)")
	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("blockouts: %w", err)
	}
	if flags.NArg() > 0 {
		return fmt.Errorf("unexpected argument %q", flags.Arg(0))
	}
	if err := e.requirePilot(); err != nil {
		return err
	}

	blockouts, err := e.files.List(ctx, e.cfg.PilotID)
	if err != nil {
		return err
	}
	if blockouts == nil {
		blockouts = []availability.Blockout{}
	}

	var payload []byte
	switch strings.ToLower(strings.TrimSpace(*format)) {
	case "json":
		payload, err = json.MarshalIndent(blockouts, "", "  ")
		payload = append(payload, '\n')
	case "yaml", "yml":
		payload, err = yaml.Marshal(blockouts)
	default:
		return fmt.Errorf("unsupported format %q", *format)
	}
	if err != nil {
		return fmt.Errorf("encode blockouts: %w", err)
	}

	_, err = e.stdout.Write(payload)
	return err
}

func (e *env) blockout(ctx context.Context, args []string) error {
	if err := e.requirePilot(); err != nil {
		return err
	}

	action, rest := args[0], args[1:]
	switch action {
	case "add":
		fields, positional, err := e.parseBlockoutFlags("blockout add", rest)
		if err != nil {
			return err
		}
		if len(positional) > 0 {
			return fmt.Errorf("unexpected argument %q", positional[0])
		}

		created, err := e.files.Create(ctx, fields)
		if err != nil {
			return err
		}
		log.Info("blockout created", "id", created.ID, "recurrence", created.Recurrence)
		e.notify(ctx, "Blockout added", describeBlockout(created))
		return e.afterMutation(ctx, created.ID)
	case "edit":
		fields, positional, err := e.parseBlockoutFlags("blockout edit", rest)
		if err != nil {
			return err
		}
		if len(positional) != 1 {
			return fmt.Errorf("usage: pilot-availability blockout edit ID [flags]")
		}

		updated, err := e.files.Update(ctx, positional[0], fields)
		if err != nil {
			return err
		}
		log.Info("blockout updated", "id", updated.ID)
		e.notify(ctx, "Blockout updated", describeBlockout(updated))
		return e.afterMutation(ctx, updated.ID)
	case "delete":
		if len(rest) > 1 {
			return fmt.Errorf("unexpected argument %q", rest[1])
		}
		return e.deleteBlockout(ctx, rest)
	default:
		return fmt.Errorf("unsupported blockout action %q", action)
	}
}

func (e *env) deleteBlockout(ctx context.Context, rest []string) error {
	blockouts, err := e.files.List(ctx, e.cfg.PilotID)
	if err != nil {
		return err
	}

	var id string
	if len(rest) == 1 {
		id = strings.TrimSpace(rest[0])
		if !containsBlockout(blockouts, id) {
			return fmt.Errorf("blockout %s: %w", id, availability.ErrNotFound)
		}
	} else {
		id, err = e.pick(ctx, blockouts)
		if err != nil {
			if errors.Is(err, selector.ErrSelectionCancelled) {
				return nil
			}
			e.notify(ctx, "Pilot Availability", err.Error())
			return err
		}
	}

	if err := e.files.Delete(ctx, id); err != nil {
		return err
	}
	log.Info("blockout deleted", "id", id)
	e.notify(ctx, "Blockout deleted", id)
	return e.afterMutation(ctx, id)
}

func containsBlockout(blockouts []availability.Blockout, id string) bool {
	for _, b := range blockouts {
		if b.ID == id {
			return true
		}
	}
	return false
}

// afterMutation re-renders the module state and echoes the affected id.
func (e *env) afterMutation(ctx context.Context, id string) error {
	if _, err := e.status(ctx); err != nil {
		log.Error("refresh after change failed", err)
	}
	_, err := fmt.Fprintln(e.stdout, id)
	return err
}

// parseBlockoutFlags builds the full field set for add and edit. A date-only
// start without --end blocks that whole day.
func (e *env) parseBlockoutFlags(name string, args []string) (availability.BlockoutFields, []string, error) {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.SetOutput(io.Discard)
	label := flags.StringP("label", "l", "", "short description")
	startRaw := flags.String("start", "", "start (YYYY-MM-DD or YYYY-MM-DDTHH:MM)")
	endRaw := flags.String("end", "", "end (YYYY-MM-DD or YYYY-MM-DDTHH:MM)")
	repeat := flags.StringP("repeat", "r", "none", "none|daily|weekly|weekdays|weekends|monthly")
	until := flags.String("until", "", "last day the rule applies (YYYY-MM-DD)")

	if err := flags.Parse(args); err != nil {
		return availability.BlockoutFields{}, nil, fmt.Errorf("%s: %w", name, err)
	}

	if strings.TrimSpace(*startRaw) == "" {
		return availability.BlockoutFields{}, nil, fmt.Errorf("%w: --start is required", availability.ErrInvalidBlockout)
	}
	start, startDateOnly, err := e.parseInstant(*startRaw)
	if err != nil {
		return availability.BlockoutFields{}, nil, err
	}

	var end time.Time
	switch {
	case strings.TrimSpace(*endRaw) != "":
		parsed, endDateOnly, parseErr := e.parseInstant(*endRaw)
		if parseErr != nil {
			return availability.BlockoutFields{}, nil, parseErr
		}
		end = parsed
		if endDateOnly {
			end = e.cal.DayEnd(parsed).Add(-time.Second)
		}
	case startDateOnly:
		end = e.cal.DayEnd(start).Add(-time.Second)
	default:
		return availability.BlockoutFields{}, nil, fmt.Errorf("%w: --end is required with a start time", availability.ErrInvalidBlockout)
	}

	recurrence, err := availability.ParseRecurrence(*repeat)
	if err != nil {
		return availability.BlockoutFields{}, nil, err
	}

	fields := availability.BlockoutFields{
		PilotID:    e.cfg.PilotID,
		Label:      *label,
		Start:      start,
		End:        end,
		Recurrence: recurrence,
	}
	if strings.TrimSpace(*until) != "" {
		horizon, parseErr := e.cal.ParseDay(*until)
		if parseErr != nil {
			return availability.BlockoutFields{}, nil, parseErr
		}
		fields.Horizon = &horizon
	}
	return fields, flags.Args(), nil
}

func (e *env) parseInstant(raw string) (time.Time, bool, error) {
	trimmed := strings.TrimSpace(raw)
	if day, err := e.cal.ParseDay(trimmed); err == nil {
		return day, true, nil
	}
	for _, layout := range instantLayouts {
		if parsed, err := time.ParseInLocation(layout, trimmed, e.cal.Location); err == nil {
			return parsed, false, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("%w: unrecognised time %q", availability.ErrInvalidBlockout, raw)
}

func describeBlockout(b availability.Blockout) string {
	desc := fmt.Sprintf("%s from %s", fallback(b.Label, "Unavailable"), b.Start.Format("Mon 2 Jan 15:04"))
	if b.Recurring() {
		desc += ", " + b.Recurrence.String()
	}
	return desc
}

func (e *env) exportICS(ctx context.Context, rest []string) error {
	if err := e.requirePilot(); err != nil {
		return err
	}

	blockouts, err := e.files.List(ctx, e.cfg.PilotID)
	if err != nil {
		return err
	}
	feed, err := ical.Export(e.cal, e.cfg.PilotID, blockouts, e.now())
	if err != nil {
		return err
	}

	if len(rest) == 0 {
		_, err = io.WriteString(e.stdout, feed)
		return err
	}

	path := rest[0]
	if err := e.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	if err := store.WriteFileAtomically(e.fs, path, []byte(feed)); err != nil {
		return err
	}
	_, err = fmt.Fprintf(e.stdout, "Exported %d blockout(s) to %s\n", len(blockouts), path)
	return err
}

// importICS upserts so re-importing a feed does not duplicate blockouts.
// Exported events match on their blockout id, foreign events on their UID.
func (e *env) importICS(ctx context.Context, path string) error {
	if err := e.requirePilot(); err != nil {
		return err
	}

	file, err := e.fs.Open(path)
	if err != nil {
		return fmt.Errorf("open ics file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	result, err := ical.Import(e.cal, file, e.cfg.PilotID)
	if err != nil {
		return err
	}

	existing, err := e.files.List(ctx, e.cfg.PilotID)
	if err != nil {
		return err
	}
	bySource := make(map[string]string, len(existing))
	for _, b := range existing {
		if b.SourceUID != "" {
			bySource[b.SourceUID] = b.ID
		}
	}

	imported, skipped := 0, result.Skipped
	for _, b := range result.Blockouts {
		fields := availability.BlockoutFields{
			PilotID:    e.cfg.PilotID,
			Label:      b.Label,
			Start:      b.Start,
			End:        b.End,
			Recurrence: b.Recurrence,
			Horizon:    b.Horizon,
			SourceUID:  b.SourceUID,
		}

		id := b.ID
		if id == "" && b.SourceUID != "" {
			id = bySource[b.SourceUID]
		}

		var saveErr error
		if id != "" {
			_, saveErr = e.files.Update(ctx, id, fields)
		}
		if id == "" || errors.Is(saveErr, availability.ErrNotFound) {
			var created availability.Blockout
			created, saveErr = e.files.Create(ctx, fields)
			if saveErr == nil && created.SourceUID != "" {
				bySource[created.SourceUID] = created.ID
			}
		}
		if saveErr != nil {
			log.Error("import event failed", saveErr, "id", b.ID, "uid", b.SourceUID)
			skipped++
			continue
		}
		imported++
	}

	log.Info("ics imported", "path", path, "imported", imported, "skipped", skipped)
	if imported > 0 {
		e.notify(ctx, "Blockouts imported", fmt.Sprintf("%d imported, %d skipped", imported, skipped))
		if _, err := e.status(ctx); err != nil {
			log.Error("refresh after import failed", err)
		}
	}

	_, err = fmt.Fprintf(e.stdout, "Imported %d blockout(s), skipped %d\n", imported, skipped)
	return err
}
