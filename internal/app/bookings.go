package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rbright/pilot-availability/internal/availability"
	"github.com/rbright/pilot-availability/internal/log"
	"github.com/spf13/afero"
)

// importBookings replaces the booking feed with the JSON array at path.
// Nothing is written when any entry is malformed.
func (e *env) importBookings(ctx context.Context, path string) error {
	if err := e.requirePilot(); err != nil {
		return err
	}

	raw, err := afero.ReadFile(e.fs, path)
	if err != nil {
		return fmt.Errorf("read bookings file: %w", err)
	}

	var bookings []availability.Booking
	if err := json.Unmarshal(raw, &bookings); err != nil {
		return fmt.Errorf("decode bookings file: %w", err)
	}
	for i, booking := range bookings {
		if strings.TrimSpace(booking.ID) == "" {
			return fmt.Errorf("booking %d: id is required", i)
		}
		if !booking.Status.Valid() {
			return fmt.Errorf("booking %s: unknown status %q", booking.ID, booking.Status)
		}
	}

	if err := e.files.SaveBookings(bookings); err != nil {
		return err
	}
	log.Info("bookings imported", "path", path, "count", len(bookings))

	if _, err := e.status(ctx); err != nil {
		log.Error("refresh after import failed", err)
	}
	_, err = fmt.Fprintf(e.stdout, "Imported %d booking(s)\n", len(bookings))
	return err
}
