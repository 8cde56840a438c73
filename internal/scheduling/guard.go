package scheduling

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// guardPadding widens the pre-write query by a second on each side so the
// backend cannot hide an exactly-adjacent-but-overlapping event behind
// range-boundary semantics.
const guardPadding = time.Second

// Guard re-checks the calendar immediately before an event is written.
//
// This narrows the race window between slot search and booking; it is not a
// transactional guarantee. Two writers can still pass the check
// concurrently — true atomicity would need calendar-side locking, which the
// backend does not offer. Single-instance deployments additionally
// serialize writers via the state-directory lock.
type Guard struct {
	cal Searcher
}

// NewGuard creates a conflict guard over the calendar.
func NewGuard(cal Searcher) *Guard {
	return &Guard{cal: cal}
}

// Check verifies that [start, end) is still free. Returns ErrSlotConflict
// when any event occupies the interval, or a transport error when the
// calendar cannot be queried; the two must be handled differently by
// callers (retry the choice vs. abort the flow).
func (g *Guard) Check(ctx context.Context, start, end time.Time) error {
	events, err := g.cal.Search(ctx, start.Add(-guardPadding), end.Add(guardPadding))
	if err != nil {
		slog.Error("Guard.Check: pre-booking query failed", "error", err, "start", start, "end", end)
		return fmt.Errorf("failed to verify slot availability: %w", err)
	}
	if len(events) > 0 {
		summaries := make([]string, 0, len(events))
		for _, ev := range events {
			summaries = append(summaries, ev.Summary)
		}
		slog.Warn("Guard.Check: conflict detected before booking", "start", start, "end", end, "conflicts", summaries)
		return fmt.Errorf("%w: %d event(s) in interval", ErrSlotConflict, len(events))
	}
	return nil
}
