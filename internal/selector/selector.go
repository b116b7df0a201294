package selector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rbright/pilot-availability/internal/availability"
)

var ErrSelectionCancelled = errors.New("blockout selection cancelled")

// SelectBlockout asks the user to pick one blockout and returns its ID.
func SelectBlockout(ctx context.Context, blockouts []availability.Blockout) (string, error) {
	if len(blockouts) == 0 {
		return "", fmt.Errorf("no blockouts available")
	}

	if !hasGraphicalSession() {
		return "", fmt.Errorf("blockout selection requires a graphical session")
	}

	if _, err := exec.LookPath("zenity"); err != nil {
		return "", fmt.Errorf("zenity is required for blockout selection")
	}

	cmd := exec.CommandContext(ctx, "zenity", zenityArgs(blockouts)...)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return "", ErrSelectionCancelled
		}
		return "", fmt.Errorf("zenity selector failed: %w", err)
	}

	id := parseSelectionOutput(string(out))
	if id == "" {
		return "", ErrSelectionCancelled
	}
	return id, nil
}

func hasGraphicalSession() bool {
	return strings.TrimSpace(os.Getenv("WAYLAND_DISPLAY")) != "" || strings.TrimSpace(os.Getenv("DISPLAY")) != ""
}

func zenityArgs(blockouts []availability.Blockout) []string {
	args := []string{
		"--list",
		"--radiolist",
		"--title=Pilot Availability",
		"--text=Select the blockout to delete",
		"--modal",
		"--width=760",
		"--height=480",
		"--print-column=5",
		"--column=Pick",
		"--column=Label",
		"--column=Starts",
		"--column=Repeats",
		"--column=ID",
		"--hide-column=5",
	}

	for _, blockout := range blockouts {
		args = append(args,
			"FALSE",
			blockoutLabel(blockout),
			blockout.Start.Format("2006-01-02 15:04"),
			repeatLabel(blockout),
			blockout.ID,
		)
	}
	return args
}

// parseSelectionOutput keeps the first picked row; zenity separates rows
// with '|' by default.
func parseSelectionOutput(raw string) string {
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool {
		return r == '\n' || r == '|'
	}) {
		if value := strings.TrimSpace(part); value != "" {
			return value
		}
	}
	return ""
}

func blockoutLabel(blockout availability.Blockout) string {
	if label := strings.TrimSpace(blockout.Label); label != "" {
		return label
	}
	return "Unavailable"
}

func repeatLabel(blockout availability.Blockout) string {
	if !blockout.Recurring() {
		return "-"
	}
	if blockout.Horizon != nil {
		return fmt.Sprintf("%s until %s", blockout.Recurrence, blockout.Horizon.Format(availability.DayLayout))
	}
	return blockout.Recurrence.String()
}
