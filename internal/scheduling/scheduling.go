// Package scheduling finds free appointment slots inside the clinic's
// business hours and guards bookings against conflicts.
//
// Both the finder and the guard see the calendar only through the Searcher
// interface, so tests drive them with a fake and the production wiring
// passes the CalDAV client.
package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/clinicbot/margot/internal/models"
)

// ErrSlotConflict is returned by the guard when the exact interval about to
// be booked already holds an event. It is an expected, user-facing
// condition ("slot just taken"), distinct from transport failures.
var ErrSlotConflict = errors.New("slot already taken")

// Searcher is the slice of the calendar gateway the scheduling logic needs.
type Searcher interface {
	Search(ctx context.Context, start, end time.Time) ([]models.CalendarEvent, error)
}

// Policy holds the clinic's business-hours configuration.
type Policy struct {
	// ConsultationDuration is how long an appointment lasts.
	ConsultationDuration time.Duration
	// BlockDuration is the search granularity. Must be at least the
	// consultation duration; free slots are offered one per block.
	BlockDuration time.Duration
	// AllowedWeekdays are the days appointments may start on.
	AllowedWeekdays map[time.Weekday]bool
	// AllowedStartHours are the local hours a block may start at, ascending.
	AllowedStartHours []int
	// HorizonMonths bounds how far into the future the search looks.
	HorizonMonths int
	// MaxDaysToScan is a hard cap on days visited, independent of the
	// horizon, bounding worst-case search cost.
	MaxDaysToScan int
}

// DefaultPolicy returns the clinic's standing rules: 45-minute
// consultations in hourly blocks, Mondays and Tuesdays, starts between
// 14:00 and 17:00, looking up to two months ahead.
func DefaultPolicy() Policy {
	return Policy{
		ConsultationDuration: 45 * time.Minute,
		BlockDuration:        time.Hour,
		AllowedWeekdays: map[time.Weekday]bool{
			time.Monday:  true,
			time.Tuesday: true,
		},
		AllowedStartHours: []int{14, 15, 16, 17},
		HorizonMonths:     2,
		MaxDaysToScan:     90,
	}
}

// Overlaps reports whether the event truly overlaps [blockStart, blockEnd).
// Interval comparison, not proximity: touching endpoints do not overlap.
func Overlaps(ev models.CalendarEvent, blockStart, blockEnd time.Time) bool {
	return blockStart.Before(ev.End) && blockEnd.After(ev.Start)
}
