package matcher

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Loose Portuguese date/time extraction for replies like "dia 14 às 15h" or
// "pode ser 14/09 as 16:00". Deliberately narrow: numeric dates, month
// names, and clock times; anything else fails and the next strategy runs.

var ptMonths = map[string]time.Month{
	"janeiro":   time.January,
	"fevereiro": time.February,
	"março":     time.March,
	"marco":     time.March,
	"abril":     time.April,
	"maio":      time.May,
	"junho":     time.June,
	"julho":     time.July,
	"agosto":    time.August,
	"setembro":  time.September,
	"outubro":   time.October,
	"novembro":  time.November,
	"dezembro":  time.December,
}

var (
	weekdayRe    = regexp.MustCompile(`\b(segunda|terça|terca|quarta|quinta|sexta|sábado|sabado|domingo)(-feira)?\b`)
	punctRe      = regexp.MustCompile(`[,.]`)
	hourLetterRe = regexp.MustCompile(`(\d)h([^:]|$)`)
	dayWordRe    = regexp.MustCompile(`\b(no\s+)?dia\s+`)

	numericDateRe = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{2,4}))?\b`)
	monthDateRe   = regexp.MustCompile(`\b(\d{1,2})\s+de\s+(\p{L}+)(?:\s+de\s+(\d{4}))?\b`)
	clockRe       = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
)

// normalizeForParsing rewrites colloquial time notation into parseable
// form: weekday names dropped, "14h" becomes "14:00", filler words removed.
func normalizeForParsing(text string) string {
	s := strings.ToLower(text)
	s = weekdayRe.ReplaceAllString(s, "")
	s = punctRe.ReplaceAllString(s, "")
	s = strings.NewReplacer("às", "as", "ás", "as", "á", "a").Replace(s)
	s = hourLetterRe.ReplaceAllString(s, "${1}:00${2}")
	s = dayWordRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// parseLooseDateTime extracts a date and/or clock time from the message and
// composes an instant in loc, preferring the future relative to now when
// the year (or, for time-only input, the day) is unspecified.
func parseLooseDateTime(text string, now time.Time, loc *time.Location) (time.Time, bool) {
	s := normalizeForParsing(text)

	day, month, year := 0, time.Month(0), 0
	hasDate := false
	yearGiven := false

	if m := numericDateRe.FindStringSubmatch(s); m != nil {
		d, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		if d >= 1 && d <= 31 && mo >= 1 && mo <= 12 {
			day, month = d, time.Month(mo)
			hasDate = true
			if m[3] != "" {
				y, _ := strconv.Atoi(m[3])
				if y < 100 {
					y += 2000
				}
				year = y
				yearGiven = true
			}
		}
	}
	if !hasDate {
		if m := monthDateRe.FindStringSubmatch(s); m != nil {
			if mo, ok := ptMonths[m[2]]; ok {
				d, _ := strconv.Atoi(m[1])
				if d >= 1 && d <= 31 {
					day, month = d, mo
					hasDate = true
					if m[3] != "" {
						year, _ = strconv.Atoi(m[3])
						yearGiven = true
					}
				}
			}
		}
	}

	hour, minute := 0, 0
	hasTime := false
	if m := clockRe.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		mi, _ := strconv.Atoi(m[2])
		if h <= 23 && mi <= 59 {
			hour, minute = h, mi
			hasTime = true
		}
	}

	if !hasDate && !hasTime {
		return time.Time{}, false
	}

	switch {
	case hasDate:
		if !yearGiven {
			year = now.Year()
		}
		candidate := time.Date(year, month, day, hour, minute, 0, 0, loc)
		if !yearGiven && candidate.Before(now) {
			candidate = candidate.AddDate(1, 0, 0)
		}
		return candidate, true
	default:
		// Time only: today at that hour, or tomorrow if already past.
		candidate := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, loc)
		if candidate.Before(now) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		return candidate, true
	}
}
