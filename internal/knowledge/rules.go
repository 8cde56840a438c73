package knowledge

import (
	"time"

	"github.com/clinicbot/margot/internal/scheduling"
)

// SchedulingRules are the clinic's appointment rules as stored in the
// knowledge base. Days use the 0=Monday convention the base was authored
// with; EndHour is exclusive.
type SchedulingRules struct {
	DurationMinutes int   `json:"duration_minutes"`
	PreferredDays   []int `json:"preferred_days"`
	StartHour       int   `json:"start_hour"`
	EndHour         int   `json:"end_hour"`
}

func defaultRules() SchedulingRules {
	return SchedulingRules{
		DurationMinutes: 45,
		PreferredDays:   []int{0, 1}, // Monday and Tuesday
		StartHour:       14,
		EndHour:         18,
	}
}

// Rules returns the base's scheduling rules, falling back to the clinic's
// standing defaults when the file does not carry them.
func (b *Base) Rules() SchedulingRules {
	if b.Scheduling == nil {
		return defaultRules()
	}
	r := *b.Scheduling
	if r.DurationMinutes <= 0 || r.EndHour <= r.StartHour || len(r.PreferredDays) == 0 {
		return defaultRules()
	}
	return r
}

// Policy converts the rules into a search policy, translating the
// 0=Monday day convention into time.Weekday and expanding the hour range
// into explicit block starts.
func (r SchedulingRules) Policy() scheduling.Policy {
	p := scheduling.DefaultPolicy()
	p.ConsultationDuration = time.Duration(r.DurationMinutes) * time.Minute
	if p.BlockDuration < p.ConsultationDuration {
		p.BlockDuration = p.ConsultationDuration
	}
	p.AllowedWeekdays = make(map[time.Weekday]bool, len(r.PreferredDays))
	for _, d := range r.PreferredDays {
		p.AllowedWeekdays[time.Weekday((d+1)%7)] = true
	}
	p.AllowedStartHours = p.AllowedStartHours[:0]
	for h := r.StartHour; h < r.EndHour; h++ {
		p.AllowedStartHours = append(p.AllowedStartHours, h)
	}
	return p
}
