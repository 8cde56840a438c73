package matcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

type fakeAsker struct {
	answer string
	err    error
	asked  bool
}

func (f *fakeAsker) Ask(ctx context.Context, question string) (string, error) {
	f.asked = true
	return f.answer, f.err
}

func formatForTest(t time.Time) string {
	return t.Format("02/01 15:04")
}

func newTestMatcher(asker Asker) *Matcher {
	m := NewMatcher(asker, formatForTest, time.UTC)
	m.now = func() time.Time { return time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC) }
	return m
}

// Monday 14:00, Tuesday 15:00, Monday-next-week 16:00.
var testSlots = []time.Time{
	time.Date(2026, 9, 7, 14, 0, 0, 0, time.UTC),
	time.Date(2026, 9, 8, 15, 0, 0, 0, time.UTC),
	time.Date(2026, 9, 14, 16, 0, 0, 0, time.UTC),
}

func TestMatchBareNumber(t *testing.T) {
	m := newTestMatcher(&fakeAsker{})
	got, ok := m.Match(context.Background(), "2", testSlots)
	if !ok || !got.Equal(testSlots[1]) {
		t.Fatalf("Match(\"2\") = (%v, %v), want slot 2", got, ok)
	}
}

func TestMatchBareNumberWithWhitespace(t *testing.T) {
	m := newTestMatcher(&fakeAsker{})
	got, ok := m.Match(context.Background(), "  1  ", testSlots)
	if !ok || !got.Equal(testSlots[0]) {
		t.Fatalf("Match(\"  1  \") = (%v, %v), want slot 1", got, ok)
	}
}

func TestMatchNumberOutOfRangeFallsThrough(t *testing.T) {
	asker := &fakeAsker{answer: "0"}
	m := newTestMatcher(asker)
	if _, ok := m.Match(context.Background(), "9", testSlots); ok {
		t.Fatal("out-of-range option number must not match directly")
	}
}

func TestMatchKeywordsDayAndHour(t *testing.T) {
	m := newTestMatcher(&fakeAsker{})
	// Day 14 and hour 16 pin slot 3: score 3 there, nothing comparable
	// elsewhere.
	got, ok := m.Match(context.Background(), "pode ser dia 14 às 16h", testSlots)
	if !ok || !got.Equal(testSlots[2]) {
		t.Fatalf("keyword match = (%v, %v), want slot 3", got, ok)
	}
}

func TestMatchKeywordsHourOnlyIsTooWeak(t *testing.T) {
	asker := &fakeAsker{answer: "0"}
	m := newTestMatcher(asker)
	// "15:00" alone scores 2 on slot 2... hour (1) + explicit HH:MM (1).
	// That is enough only because no other slot scores.
	got, ok := m.Match(context.Background(), "15:00", testSlots)
	if !ok || !got.Equal(testSlots[1]) {
		t.Fatalf("explicit time match = (%v, %v), want slot 2", got, ok)
	}
}

func TestMatchKeywordsAmbiguousDayTriesFallback(t *testing.T) {
	// Two slots share day 7 in these suggestions, so "dia 7" alone cannot
	// decide between them.
	slots := []time.Time{
		time.Date(2026, 9, 7, 14, 0, 0, 0, time.UTC),
		time.Date(2026, 9, 7, 15, 0, 0, 0, time.UTC),
	}
	asker := &fakeAsker{answer: "0"}
	m := newTestMatcher(asker)
	if _, ok := m.Match(context.Background(), "dia 7", slots); ok {
		t.Fatal("ambiguous day must not match")
	}
	if !asker.asked {
		t.Error("ambiguous input should reach the generative fallback")
	}
}

func TestMatchLooseDate(t *testing.T) {
	// Keyword scoring ties here: "16" is slot 2's day and slot 1's hour.
	// Only the full date parse can break the tie.
	slots := []time.Time{
		time.Date(2026, 9, 14, 16, 0, 0, 0, time.UTC),
		time.Date(2026, 9, 16, 14, 0, 0, 0, time.UTC),
	}
	m := newTestMatcher(&fakeAsker{})
	got, ok := m.Match(context.Background(), "14/09 16:00", slots)
	if !ok || !got.Equal(slots[0]) {
		t.Fatalf("loose date match = (%v, %v), want 14/09 16:00", got, ok)
	}
}

func TestMatchGenerativeFallback(t *testing.T) {
	asker := &fakeAsker{answer: "Acho que o paciente escolheu a opção 3."}
	m := newTestMatcher(asker)
	got, ok := m.Match(context.Background(), "aquele mais longe, na outra semana", testSlots)
	if !ok || !got.Equal(testSlots[2]) {
		t.Fatalf("generative fallback = (%v, %v), want slot 3", got, ok)
	}
	if !asker.asked {
		t.Error("fallback was not consulted")
	}
}

func TestMatchGenerativeUncertain(t *testing.T) {
	asker := &fakeAsker{answer: "0"}
	m := newTestMatcher(asker)
	if _, ok := m.Match(context.Background(), "tanto faz", testSlots); ok {
		t.Fatal("model uncertainty (0) must be a no-match")
	}
}

func TestMatchNoContentFailingFallback(t *testing.T) {
	asker := &fakeAsker{err: errors.New("model unavailable")}
	m := newTestMatcher(asker)
	if _, ok := m.Match(context.Background(), "obrigado pela atenção", testSlots); ok {
		t.Fatal("no numeric or date content with a failing fallback must be a no-match")
	}
}

func TestMatchEmptySlots(t *testing.T) {
	m := newTestMatcher(&fakeAsker{})
	if _, ok := m.Match(context.Background(), "1", nil); ok {
		t.Fatal("matching against no slots must fail")
	}
}

func TestMatchIndex(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		want int
		ok   bool
	}{
		{"1", 3, 0, true},
		{" 3 ", 3, 2, true},
		{"0", 3, 0, false},
		{"4", 3, 0, false},
		{"primeiro", 3, 0, false},
		{"1 por favor", 3, 0, false},
	}
	for _, c := range cases {
		got, ok := MatchIndex(c.in, c.n)
		if ok != c.ok || (ok && got != c.want) {
			t.Errorf("MatchIndex(%q, %d) = (%d, %v), want (%d, %v)", c.in, c.n, got, ok, c.want, c.ok)
		}
	}
}

func TestParseLooseDateTime(t *testing.T) {
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"14/09 as 16:00", time.Date(2026, 9, 14, 16, 0, 0, 0, time.UTC), true},
		{"14/09/2026 às 16h", time.Date(2026, 9, 14, 16, 0, 0, 0, time.UTC), true},
		{"8 de setembro as 15:00", time.Date(2026, 9, 8, 15, 0, 0, 0, time.UTC), true},
		// Past date without a year rolls forward.
		{"14/08 as 16:00", time.Date(2027, 8, 14, 16, 0, 0, 0, time.UTC), true},
		// Time only: today, still ahead of now.
		{"as 15:00", time.Date(2026, 9, 1, 15, 0, 0, 0, time.UTC), true},
		// Time only, already past today: tomorrow.
		{"as 9:00", time.Date(2026, 9, 2, 9, 0, 0, 0, time.UTC), true},
		{"obrigado", time.Time{}, false},
	}
	for _, c := range cases {
		got, ok := parseLooseDateTime(c.in, now, time.UTC)
		if ok != c.ok {
			t.Errorf("parseLooseDateTime(%q) ok = %v, want %v", c.in, ok, c.ok)
			continue
		}
		if ok && !got.Equal(c.want) {
			t.Errorf("parseLooseDateTime(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestFallbackQuestionListsOptions(t *testing.T) {
	asker := &fakeAsker{answer: "0"}
	m := NewMatcher(asker, formatForTest, time.UTC)
	m.now = func() time.Time { return time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC) }

	recorded := ""
	m.asker = askerFunc(func(ctx context.Context, q string) (string, error) {
		recorded = q
		return "0", nil
	})
	m.Match(context.Background(), "sei lá", testSlots)
	for i := range testSlots {
		want := fmt.Sprintf("%d. %s", i+1, formatForTest(testSlots[i]))
		if !strings.Contains(recorded, want) {
			t.Errorf("fallback question missing option %q:\n%s", want, recorded)
		}
	}
}

type askerFunc func(ctx context.Context, q string) (string, error)

func (f askerFunc) Ask(ctx context.Context, q string) (string, error) { return f(ctx, q) }
