// Package matcher interprets a patient's reply as a choice among suggested
// appointment slots.
//
// Four strategies run in strict priority order, stopping at the first
// success: a bare option number, keyword scoring on day/hour numbers, a
// loose Portuguese date parse with a tolerance window, and finally asking
// the generative model to extract the option number. Disambiguation lists
// for cancellation use only the bare-number strategy.
package matcher

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Asker is the generative fallback: given a question it returns free text
// that should contain the chosen option number.
type Asker interface {
	Ask(ctx context.Context, question string) (string, error)
}

// Matcher resolves user replies to suggested slots.
type Matcher struct {
	asker      Asker
	formatSlot func(time.Time) string
	loc        *time.Location
	now        func() time.Time
}

// NewMatcher creates a matcher. formatSlot renders a slot the way it was
// presented to the patient, so the generative fallback shows the same list.
func NewMatcher(asker Asker, formatSlot func(time.Time) string, loc *time.Location) *Matcher {
	return &Matcher{
		asker:      asker,
		formatSlot: formatSlot,
		loc:        loc,
		now:        time.Now,
	}
}

var bareNumberRe = regexp.MustCompile(`^\s*(\d+)\s*$`)

// MatchIndex resolves a bare option number against a list of n options.
// Returns the zero-based index. This is the only strategy allowed for
// event-disambiguation lists.
func MatchIndex(userText string, n int) (int, bool) {
	m := bareNumberRe.FindStringSubmatch(userText)
	if m == nil {
		return 0, false
	}
	num, err := strconv.Atoi(m[1])
	if err != nil || num < 1 || num > n {
		return 0, false
	}
	return num - 1, true
}

// Match resolves the user's reply to one of the suggested slots. The bool
// result reports whether any strategy succeeded.
func (m *Matcher) Match(ctx context.Context, userText string, slots []time.Time) (time.Time, bool) {
	if len(slots) == 0 {
		return time.Time{}, false
	}

	if idx, ok := MatchIndex(userText, len(slots)); ok {
		slog.Debug("Matcher.Match: resolved by option number", "index", idx+1)
		return slots[idx], true
	}
	if slot, ok := m.matchKeywords(userText, slots); ok {
		return slot, true
	}
	if slot, ok := m.matchLooseDate(userText, slots); ok {
		return slot, true
	}
	if slot, ok := m.askModel(ctx, userText, slots); ok {
		return slot, true
	}
	slog.Debug("Matcher.Match: no strategy matched", "text_len", len(userText))
	return time.Time{}, false
}

var (
	keywordStripRe = regexp.MustCompile(`[^\p{L}\p{N}_\s:]`)
	hourSuffixRe   = regexp.MustCompile(`(\d)\s*h(\s|$)`)
	intRe          = regexp.MustCompile(`\b(\d+)\b`)
)

// matchKeywords scores each slot by how many of its numeric components
// appear in the message. Day-of-month is worth two points, the hour one,
// and an explicit HH:MM mention one more. A slot wins with at least two
// points and a two-point lead over the runner-up (or no runner-up at all).
func (m *Matcher) matchKeywords(userText string, slots []time.Time) (time.Time, bool) {
	msg := strings.ToLower(userText)
	msg = keywordStripRe.ReplaceAllString(msg, "")
	msg = hourSuffixRe.ReplaceAllString(msg, "${1}:00${2}")
	msg = strings.ReplaceAll(msg, " as ", " ")
	msg = strings.ReplaceAll(msg, " às ", " ")

	nums := map[int]bool{}
	for _, match := range intRe.FindAllStringSubmatch(msg, -1) {
		if n, err := strconv.Atoi(match[1]); err == nil {
			nums[n] = true
		}
	}

	type scored struct {
		slot  time.Time
		score int
	}
	var candidates []scored
	for _, slot := range slots {
		local := slot.In(m.loc)
		score := 0
		if nums[local.Day()] {
			score += 2
		}
		if nums[local.Hour()] {
			score++
			if local.Minute() == 0 {
				if strings.Contains(msg, fmt.Sprintf("%d:00", local.Hour())) {
					score++
				}
			} else if strings.Contains(msg, fmt.Sprintf("%d:%d", local.Hour(), local.Minute())) {
				score++
			}
		}
		if score > 0 {
			candidates = append(candidates, scored{slot: slot, score: score})
		}
	}
	if len(candidates) == 0 {
		return time.Time{}, false
	}

	best, second := candidates[0], scored{}
	for _, c := range candidates[1:] {
		if c.score > best.score {
			second = best
			best = c
		} else if c.score > second.score {
			second = c
		}
	}
	if best.score >= 2 && (len(candidates) == 1 || best.score >= second.score+2) {
		slog.Debug("Matcher.matchKeywords: resolved by keyword score", "score", best.score, "slot", best.slot)
		return best.slot, true
	}
	slog.Debug("Matcher.matchKeywords: ambiguous or low score", "best", best.score, "second", second.score)
	return time.Time{}, false
}

// looseDateTolerance is how far a parsed instant may sit from a suggested
// slot and still count as choosing it.
const looseDateTolerance = 15 * time.Minute

// matchLooseDate parses a partial Portuguese date/time from the message and
// picks the suggested slot closest to it, within tolerance.
func (m *Matcher) matchLooseDate(userText string, slots []time.Time) (time.Time, bool) {
	parsed, ok := parseLooseDateTime(userText, m.now().In(m.loc), m.loc)
	if !ok {
		return time.Time{}, false
	}

	var best time.Time
	minDiff := looseDateTolerance + time.Second
	for _, slot := range slots {
		diff := slot.Sub(parsed)
		if diff < 0 {
			diff = -diff
		}
		if diff <= looseDateTolerance && diff < minDiff {
			minDiff = diff
			best = slot
		}
	}
	if best.IsZero() {
		slog.Debug("Matcher.matchLooseDate: parsed instant matched no slot within tolerance", "parsed", parsed)
		return time.Time{}, false
	}
	slog.Debug("Matcher.matchLooseDate: resolved by parsed date", "parsed", parsed, "slot", best)
	return best, true
}

// askModel lists the options for the generative model and asks for the
// chosen number. "0" means the model is uncertain.
func (m *Matcher) askModel(ctx context.Context, userText string, slots []time.Time) (time.Time, bool) {
	if m.asker == nil {
		return time.Time{}, false
	}
	var list strings.Builder
	for i, slot := range slots {
		fmt.Fprintf(&list, "%d. %s\n", i+1, m.formatSlot(slot))
	}
	question := fmt.Sprintf(
		"O paciente recebeu a seguinte lista de horários:\n%s\nA resposta do paciente foi: %q\n\n"+
			"Qual NÚMERO da opção o paciente escolheu? Responda SÓ o número (1, 2, 3...) ou 0 se incerto.",
		list.String(), userText)

	answer, err := m.asker.Ask(ctx, question)
	if err != nil {
		slog.Error("Matcher.askModel: generative fallback failed", "error", err)
		return time.Time{}, false
	}
	match := intRe.FindStringSubmatch(answer)
	if match == nil {
		slog.Warn("Matcher.askModel: no number in model answer", "answer", answer)
		return time.Time{}, false
	}
	choice, err := strconv.Atoi(match[1])
	if err != nil || choice < 1 || choice > len(slots) {
		if choice == 0 {
			slog.Info("Matcher.askModel: model reported uncertainty")
		} else {
			slog.Warn("Matcher.askModel: model answer out of range", "choice", choice)
		}
		return time.Time{}, false
	}
	slog.Info("Matcher.askModel: resolved by generative fallback", "index", choice)
	return slots[choice-1], true
}
