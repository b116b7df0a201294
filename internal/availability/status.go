package availability

import (
	"strconv"
	"time"
)

type DayKind string

const (
	DayAvailable DayKind = "available"
	DayBlocked   DayKind = "blocked"
	DayBooked    DayKind = "booked"
)

type DayStatus struct {
	IsBlocked    bool `json:"isBlocked"`
	BookingCount int  `json:"bookingCount"`
}

func (s DayStatus) HasBooking() bool {
	return s.BookingCount > 0
}

// Kind collapses the status for display. Blocked wins over booked.
func (s DayStatus) Kind() DayKind {
	switch {
	case s.IsBlocked:
		return DayBlocked
	case s.HasBooking():
		return DayBooked
	default:
		return DayAvailable
	}
}

func (c Calendar) StatusFor(date time.Time, blockouts []Blockout, bookings []Booking) DayStatus {
	return DayStatus{
		IsBlocked:    c.IsBlocked(date, blockouts),
		BookingCount: c.countBookings(date, bookings),
	}
}

// BookingsOn returns occupying bookings scheduled on date's day, in source
// order.
func (c Calendar) BookingsOn(date time.Time, bookings []Booking) []Booking {
	if len(bookings) == 0 {
		return nil
	}

	matched := make([]Booking, 0, len(bookings))
	for _, booking := range bookings {
		if c.occupies(booking, date) {
			matched = append(matched, booking)
		}
	}
	return matched
}

func (c Calendar) countBookings(date time.Time, bookings []Booking) int {
	count := 0
	for _, booking := range bookings {
		if c.occupies(booking, date) {
			count++
		}
	}
	return count
}

func (c Calendar) occupies(booking Booking, date time.Time) bool {
	if booking.ScheduledDate == nil || !booking.Status.Occupying() {
		return false
	}
	return c.SameDay(*booking.ScheduledDate, date)
}

// BadgeText renders a booking count for a grid badge, capped at limit.
func BadgeText(count, limit int) string {
	if count <= 0 {
		return ""
	}
	if limit > 0 && count > limit {
		return strconv.Itoa(limit) + "+"
	}
	return strconv.Itoa(count)
}
