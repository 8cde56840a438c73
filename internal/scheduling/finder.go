package scheduling

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// queryPadding widens the per-block calendar query so events hugging the
// block boundary are still returned; the real-overlap check then decides.
const queryPadding = time.Minute

// Finder searches the calendar for free appointment blocks.
type Finder struct {
	cal Searcher
	loc *time.Location
}

// NewFinder creates a finder that renders candidate blocks in loc.
func NewFinder(cal Searcher, loc *time.Location) *Finder {
	return &Finder{cal: cal, loc: loc}
}

// FindAvailableSlots returns free block starts at or after startSearch,
// day-ascending then hour-ascending. The search stops once numToFind slots
// are collected, but only between days: the last scanned day's hours are
// always finished and returned whole, so the result may exceed numToFind.
//
// Uncertainty never yields a bookable slot: a block whose calendar query
// fails, or that holds an event with missing times, is treated as busy.
// When the whole search produced nothing and at least one query failed, the
// failure is returned so callers can tell "fully booked" from "calendar
// unreachable".
func (f *Finder) FindAvailableSlots(ctx context.Context, startSearch time.Time, numToFind int, p Policy) ([]time.Time, error) {
	if numToFind <= 0 {
		return nil, nil
	}
	startSearch = startSearch.In(f.loc)

	hours := append([]int(nil), p.AllowedStartHours...)
	sort.Ints(hours)

	horizon := startSearch.AddDate(0, p.HorizonMonths, 0)
	day := time.Date(startSearch.Year(), startSearch.Month(), startSearch.Day(), 0, 0, 0, 0, f.loc)

	var slots []time.Time
	var lastErr error

	for scanned := 0; scanned < p.MaxDaysToScan; scanned++ {
		if day.After(horizon) {
			slog.Info("Finder.FindAvailableSlots: search horizon reached", "horizon", horizon, "found", len(slots))
			break
		}
		if len(slots) >= numToFind {
			break
		}
		if !p.AllowedWeekdays[day.Weekday()] {
			day = day.AddDate(0, 0, 1)
			continue
		}

		for _, hour := range hours {
			blockStart := time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, f.loc)
			blockEnd := blockStart.Add(p.BlockDuration)
			if blockStart.Before(startSearch) {
				continue
			}

			events, err := f.cal.Search(ctx, blockStart.Add(-queryPadding), blockEnd.Add(queryPadding))
			if err != nil {
				slog.Warn("Finder.FindAvailableSlots: query failed, treating block as busy", "error", err, "block_start", blockStart)
				lastErr = err
				continue
			}

			busy := false
			for _, ev := range events {
				if !ev.HasEnd() || !ev.End.After(ev.Start) {
					slog.Warn("Finder.FindAvailableSlots: event without a resolvable duration, treating block as busy", "block_start", blockStart, "summary", ev.Summary)
					busy = true
					break
				}
				if Overlaps(ev, blockStart, blockEnd) {
					busy = true
					break
				}
			}
			if !busy {
				slots = append(slots, blockStart)
			}
		}
		// Whole days only: the numToFind cutoff is checked between days.
		day = day.AddDate(0, 0, 1)
	}

	if len(slots) == 0 && lastErr != nil {
		return nil, fmt.Errorf("availability search failed: %w", lastErr)
	}
	// The last scanned day is returned whole, so the result may exceed
	// numToFind; callers present whatever came back.
	slog.Info("Finder.FindAvailableSlots: search finished", "found", len(slots), "requested", numToFind, "from", startSearch)
	return slots, nil
}
