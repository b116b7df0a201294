package snapshot

import (
	"context"
	"sync"
	"time"

	"github.com/rbright/pilot-availability/internal/availability"
	"github.com/sourcegraph/conc"
)

type Snapshot struct {
	Blockouts []availability.Blockout
	Bookings  []availability.Booking

	BlockoutsAt time.Time
	BookingsAt  time.Time
}

// Result reports how one refresh went. A stale result lost the race to a
// newer refresh and changed nothing.
type Result struct {
	Token       uint64
	Stale       bool
	BlockoutErr error
	BookingErr  error
}

func (r Result) Err() error {
	if r.BlockoutErr != nil {
		return r.BlockoutErr
	}
	return r.BookingErr
}

// Loader owns the session snapshot for one pilot. Each source is fetched
// independently; a failed fetch keeps whatever was held before.
type Loader struct {
	pilotID   string
	blockouts availability.BlockoutSource
	bookings  availability.BookingSource
	now       func() time.Time

	mu       sync.Mutex
	token    uint64
	applied  [2]uint64
	snapshot Snapshot
}

func NewLoader(pilotID string, blockouts availability.BlockoutSource, bookings availability.BookingSource) *Loader {
	return &Loader{
		pilotID:   pilotID,
		blockouts: blockouts,
		bookings:  bookings,
		now:       time.Now,
	}
}

func (l *Loader) Refresh(ctx context.Context) Result {
	l.mu.Lock()
	l.token++
	token := l.token
	l.mu.Unlock()

	result := Result{Token: token}

	var (
		blockouts []availability.Blockout
		bookings  []availability.Booking
	)

	var wg conc.WaitGroup
	wg.Go(func() {
		blockouts, result.BlockoutErr = l.blockouts.List(ctx, l.pilotID)
	})
	wg.Go(func() {
		bookings, result.BookingErr = l.bookings.ListForUser(ctx, l.pilotID, true)
	})
	wg.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()

	result.Stale = token != l.token
	now := l.now()
	if result.BlockoutErr == nil && token > l.applied[0] {
		l.snapshot.Blockouts = append([]availability.Blockout{}, blockouts...)
		l.snapshot.BlockoutsAt = now
		l.applied[0] = token
	}
	if result.BookingErr == nil && token > l.applied[1] {
		l.snapshot.Bookings = append([]availability.Booking{}, bookings...)
		l.snapshot.BookingsAt = now
		l.applied[1] = token
	}
	return result
}

// Snapshot returns copies so callers can never mutate the held state.
func (l *Loader) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	return Snapshot{
		Blockouts:   append([]availability.Blockout(nil), l.snapshot.Blockouts...),
		Bookings:    append([]availability.Booking(nil), l.snapshot.Bookings...),
		BlockoutsAt: l.snapshot.BlockoutsAt,
		BookingsAt:  l.snapshot.BookingsAt,
	}
}
