package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rbright/pilot-availability/internal/availability"
	"github.com/rbright/pilot-availability/internal/store"
	"github.com/spf13/afero"
)

// View is the persisted navigation state between invocations. Selected is
// the resolved day; Anchor and Day keep the intended day-of-month so a
// selection that rolled past a short month can come back.
type View struct {
	Month     string `json:"month"`
	Selected  string `json:"selected,omitempty"`
	Anchor    string `json:"anchor,omitempty"`
	Day       int    `json:"day,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

func EnsureDirs(fsys afero.Fs, dirs ...string) error {
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir %s: %w", dir, err)
		}
	}
	return nil
}

// LoadNavigator restores the navigator saved at path. Without a saved view
// it opens on now's month with today selected.
func LoadNavigator(fsys afero.Fs, path string, cal availability.Calendar, now time.Time) (*availability.Navigator, error) {
	fresh := availability.NewNavigator(cal, now, now)

	raw, err := afero.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fresh, nil
		}
		return fresh, fmt.Errorf("read view file: %w", err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return fresh, nil
	}

	var view View
	if err := json.Unmarshal(raw, &view); err != nil {
		return fresh, fmt.Errorf("decode view file: %w", err)
	}

	month, err := cal.ParseMonth(view.Month)
	if err != nil {
		return fresh, fmt.Errorf("decode view file: %w", err)
	}

	if strings.TrimSpace(view.Anchor) != "" && view.Day > 0 {
		anchor, err := cal.ParseMonth(view.Anchor)
		if err != nil {
			return fresh, fmt.Errorf("decode view file: %w", err)
		}
		return availability.RestoreNavigator(cal, month, anchor, view.Day), nil
	}

	var selected time.Time
	if strings.TrimSpace(view.Selected) != "" {
		selected, err = cal.ParseDay(view.Selected)
		if err != nil {
			return fresh, fmt.Errorf("decode view file: %w", err)
		}
	}
	return availability.NewNavigator(cal, month, selected), nil
}

func SaveNavigator(fsys afero.Fs, path string, nav *availability.Navigator, now time.Time) error {
	view := View{
		Month:     nav.Month().Format(availability.MonthLayout),
		UpdatedAt: now.UTC().Format(time.RFC3339),
	}
	if selected := nav.Selected(); !selected.IsZero() {
		anchor, day := nav.Anchor()
		view.Selected = selected.Format(availability.DayLayout)
		view.Anchor = anchor.Format(availability.MonthLayout)
		view.Day = day
	}
	return writeJSON(fsys, path, view)
}

func SaveMonth(fsys afero.Fs, path string, view availability.MonthView) error {
	return writeJSON(fsys, path, view)
}

func writeJSON(fsys afero.Fs, path string, value any) error {
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	return store.WriteFileAtomically(fsys, path, append(payload, '\n'))
}
