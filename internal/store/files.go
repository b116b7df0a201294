package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rbright/pilot-availability/internal/availability"
	"github.com/spf13/afero"
)

const (
	BlockoutsFile = "blockouts.json"
	BookingsFile  = "bookings.json"
)

// Files keeps blockouts and bookings as JSON documents under dir.
type Files struct {
	fs  afero.Fs
	dir string
	cal availability.Calendar

	mu    sync.Mutex
	newID func() string
}

var (
	_ availability.BlockoutStore = (*Files)(nil)
	_ availability.BookingSource = (*Files)(nil)
)

// NewFiles stores under dir. Blockouts are validated against cal's days.
func NewFiles(fsys afero.Fs, dir string, cal availability.Calendar) *Files {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &Files{
		fs:    fsys,
		dir:   dir,
		cal:   cal,
		newID: func() string { return uuid.NewString() },
	}
}

func (f *Files) BlockoutsPath() string {
	return filepath.Join(f.dir, BlockoutsFile)
}

func (f *Files) BookingsPath() string {
	return filepath.Join(f.dir, BookingsFile)
}

func (f *Files) List(ctx context.Context, pilotID string) ([]availability.Blockout, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	all, err := f.loadBlockouts()
	if err != nil {
		return nil, err
	}

	pilotID = strings.TrimSpace(pilotID)
	owned := make([]availability.Blockout, 0, len(all))
	for _, b := range all {
		if pilotID != "" && b.PilotID != pilotID {
			continue
		}
		owned = append(owned, b)
	}
	sortBlockouts(owned)
	return owned, nil
}

func (f *Files) Create(ctx context.Context, fields availability.BlockoutFields) (availability.Blockout, error) {
	if err := ctx.Err(); err != nil {
		return availability.Blockout{}, err
	}

	b := fields.Blockout(f.newID())
	if b.PilotID == "" {
		return availability.Blockout{}, fmt.Errorf("%w: pilot id is required", availability.ErrInvalidBlockout)
	}
	if err := b.Validate(f.cal); err != nil {
		return availability.Blockout{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	all, err := f.loadBlockouts()
	if err != nil {
		return availability.Blockout{}, err
	}
	all = append(all, b)
	if err := f.saveBlockouts(all); err != nil {
		return availability.Blockout{}, err
	}
	return b, nil
}

// Update replaces every field of the blockout with id. A blockout owned by
// another pilot is reported as missing. An empty SourceUID keeps the
// existing one.
func (f *Files) Update(ctx context.Context, id string, fields availability.BlockoutFields) (availability.Blockout, error) {
	if err := ctx.Err(); err != nil {
		return availability.Blockout{}, err
	}

	id = strings.TrimSpace(id)

	f.mu.Lock()
	defer f.mu.Unlock()

	all, err := f.loadBlockouts()
	if err != nil {
		return availability.Blockout{}, err
	}

	for i, existing := range all {
		if existing.ID != id {
			continue
		}

		b := fields.Blockout(id)
		if b.PilotID == "" {
			b.PilotID = existing.PilotID
		}
		if b.PilotID != existing.PilotID {
			break
		}
		if b.SourceUID == "" {
			b.SourceUID = existing.SourceUID
		}
		if err := b.Validate(f.cal); err != nil {
			return availability.Blockout{}, err
		}

		all[i] = b
		if err := f.saveBlockouts(all); err != nil {
			return availability.Blockout{}, err
		}
		return b, nil
	}

	return availability.Blockout{}, fmt.Errorf("blockout %s: %w", id, availability.ErrNotFound)
}

func (f *Files) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	id = strings.TrimSpace(id)

	f.mu.Lock()
	defer f.mu.Unlock()

	all, err := f.loadBlockouts()
	if err != nil {
		return err
	}

	kept := make([]availability.Blockout, 0, len(all))
	for _, b := range all {
		if b.ID == id {
			continue
		}
		kept = append(kept, b)
	}
	if len(kept) == len(all) {
		return fmt.Errorf("blockout %s: %w", id, availability.ErrNotFound)
	}
	return f.saveBlockouts(kept)
}

// ListForUser returns bookings where userID is the pilot, or the customer
// when asPilot is false. Source order is preserved.
func (f *Files) ListForUser(ctx context.Context, userID string, asPilot bool) ([]availability.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var all []availability.Booking
	if err := f.readJSON(f.BookingsPath(), &all); err != nil {
		return nil, fmt.Errorf("load bookings: %w", err)
	}

	userID = strings.TrimSpace(userID)
	matched := make([]availability.Booking, 0, len(all))
	for _, booking := range all {
		owner := booking.CustomerID
		if asPilot {
			owner = booking.PilotID
		}
		if userID != "" && owner != userID {
			continue
		}
		matched = append(matched, booking)
	}
	return matched, nil
}

func (f *Files) SaveBookings(bookings []availability.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if bookings == nil {
		bookings = []availability.Booking{}
	}
	return f.writeJSON(f.BookingsPath(), bookings)
}

func (f *Files) loadBlockouts() ([]availability.Blockout, error) {
	var all []availability.Blockout
	if err := f.readJSON(f.BlockoutsPath(), &all); err != nil {
		return nil, fmt.Errorf("load blockouts: %w", err)
	}
	return all, nil
}

func (f *Files) saveBlockouts(all []availability.Blockout) error {
	sortBlockouts(all)
	if err := f.writeJSON(f.BlockoutsPath(), all); err != nil {
		return fmt.Errorf("save blockouts: %w", err)
	}
	return nil
}

func (f *Files) readJSON(path string, out any) error {
	raw, err := afero.ReadFile(f.fs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (f *Files) writeJSON(path string, value any) error {
	if err := f.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	return WriteFileAtomically(f.fs, path, append(payload, '\n'))
}

// WriteFileAtomically writes content next to path and renames it into place.
func WriteFileAtomically(fsys afero.Fs, path string, content []byte) error {
	tmp, err := afero.TempFile(fsys, filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		_ = fsys.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = fsys.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := fsys.Rename(tmpPath, path); err != nil {
		_ = fsys.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func sortBlockouts(items []availability.Blockout) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].Start.Equal(items[j].Start) {
			return items[i].Start.Before(items[j].Start)
		}
		return items[i].ID < items[j].ID
	})
}
