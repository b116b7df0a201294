package availability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidBlockout = errors.New("invalid blockout")
	ErrNotFound        = errors.New("not found")
)

type Recurrence int

const (
	RecurrenceNone Recurrence = iota
	Daily
	Weekly
	Weekdays
	Weekends
	Monthly
)

var recurrenceNames = map[Recurrence]string{
	RecurrenceNone: "none",
	Daily:          "daily",
	Weekly:         "weekly",
	Weekdays:       "weekdays",
	Weekends:       "weekends",
	Monthly:        "monthly",
}

// Recurrences lists every variant in declaration order.
func Recurrences() []Recurrence {
	return []Recurrence{RecurrenceNone, Daily, Weekly, Weekdays, Weekends, Monthly}
}

func (r Recurrence) Valid() bool {
	_, ok := recurrenceNames[r]
	return ok
}

func (r Recurrence) String() string {
	if name, ok := recurrenceNames[r]; ok {
		return name
	}
	return fmt.Sprintf("recurrence(%d)", int(r))
}

func ParseRecurrence(raw string) (Recurrence, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return RecurrenceNone, nil
	}
	for _, r := range Recurrences() {
		if recurrenceNames[r] == value {
			return r, nil
		}
	}
	return RecurrenceNone, fmt.Errorf("unknown recurrence %q", raw)
}

func (r Recurrence) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("marshal recurrence: unknown value %d", int(r))
	}
	return []byte(r.String()), nil
}

func (r *Recurrence) UnmarshalText(text []byte) error {
	parsed, err := ParseRecurrence(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Blockout is a pilot-defined unavailable interval. Start/End describe the
// first occurrence; recurring rules only look at the day of Start.
type Blockout struct {
	ID         string     `json:"id" yaml:"id"`
	PilotID    string     `json:"pilotId" yaml:"pilot_id"`
	Label      string     `json:"label,omitempty" yaml:"label,omitempty"`
	Start      time.Time  `json:"startTime" yaml:"start_time"`
	End        time.Time  `json:"endTime" yaml:"end_time"`
	Recurrence Recurrence `json:"recurrence" yaml:"recurrence"`
	Horizon    *time.Time `json:"recurrenceHorizon,omitempty" yaml:"recurrence_horizon,omitempty"`
	// SourceUID is the UID of the calendar event a blockout was imported from.
	SourceUID string `json:"sourceUid,omitempty" yaml:"source_uid,omitempty"`
}

func (b Blockout) Recurring() bool {
	return b.Recurrence != RecurrenceNone
}

// Validate checks the shape rules the mutation side enforces. The horizon
// is compared with the start day in cal's zone. The resolver never calls it.
func (b Blockout) Validate(cal Calendar) error {
	if !b.Recurrence.Valid() {
		return fmt.Errorf("%w: unknown recurrence %d", ErrInvalidBlockout, int(b.Recurrence))
	}
	if b.Start.IsZero() || b.End.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrInvalidBlockout)
	}
	if !b.End.After(b.Start) {
		return fmt.Errorf("%w: end time must be after start time", ErrInvalidBlockout)
	}
	if b.Horizon != nil {
		if !b.Recurring() {
			return fmt.Errorf("%w: recurrence horizon requires a recurrence", ErrInvalidBlockout)
		}
		if cal.DayStart(*b.Horizon).Before(cal.DayStart(b.Start)) {
			return fmt.Errorf("%w: recurrence horizon before start", ErrInvalidBlockout)
		}
	}
	return nil
}

// BlockoutFields is the full-replacement payload for create and update.
type BlockoutFields struct {
	PilotID    string
	Label      string
	Start      time.Time
	End        time.Time
	Recurrence Recurrence
	Horizon    *time.Time
	SourceUID  string
}

func (f BlockoutFields) Blockout(id string) Blockout {
	b := Blockout{
		ID:         id,
		PilotID:    strings.TrimSpace(f.PilotID),
		Label:      strings.Join(strings.Fields(f.Label), " "),
		Start:      f.Start,
		End:        f.End,
		Recurrence: f.Recurrence,
		SourceUID:  strings.TrimSpace(f.SourceUID),
	}
	if f.Horizon != nil {
		horizon := *f.Horizon
		b.Horizon = &horizon
	}
	return b
}

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingAccepted  BookingStatus = "accepted"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
	BookingDeclined  BookingStatus = "declined"
)

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPending, BookingAccepted, BookingCompleted, BookingCancelled, BookingDeclined:
		return true
	default:
		return false
	}
}

// Occupying reports whether a booking with this status takes a calendar slot.
func (s BookingStatus) Occupying() bool {
	switch s {
	case BookingAccepted, BookingCompleted:
		return true
	default:
		return false
	}
}

type Booking struct {
	ID            string        `json:"id"`
	PilotID       string        `json:"pilotId"`
	CustomerID    string        `json:"customerId"`
	Title         string        `json:"title,omitempty"`
	ScheduledDate *time.Time    `json:"scheduledDate,omitempty"`
	Status        BookingStatus `json:"status"`
}

type BlockoutSource interface {
	List(ctx context.Context, pilotID string) ([]Blockout, error)
}

type BlockoutStore interface {
	BlockoutSource
	Create(ctx context.Context, fields BlockoutFields) (Blockout, error)
	Update(ctx context.Context, id string, fields BlockoutFields) (Blockout, error)
	Delete(ctx context.Context, id string) error
}

type BookingSource interface {
	ListForUser(ctx context.Context, userID string, asPilot bool) ([]Booking, error)
}
