package messaging

import (
	"strings"
	"testing"
)

func TestSplitMessageShortBodyUntouched(t *testing.T) {
	parts := SplitMessage("Olá! Seu horário está confirmado.", MaxMessageBytes)
	if len(parts) != 1 || parts[0] != "Olá! Seu horário está confirmado." {
		t.Fatalf("short body split unexpectedly: %q", parts)
	}
}

func TestSplitMessageEmpty(t *testing.T) {
	if parts := SplitMessage("   ", MaxMessageBytes); parts != nil {
		t.Fatalf("blank body produced parts: %q", parts)
	}
}

func TestSplitMessagePrefersNewline(t *testing.T) {
	a := strings.Repeat("a", 900)
	b := strings.Repeat("b", 900)
	parts := SplitMessage(a+"\n"+b, 1000)
	if len(parts) != 2 {
		t.Fatalf("got %d parts, want 2", len(parts))
	}
	if parts[0] != a || parts[1] != b {
		t.Errorf("split did not happen at the newline: %d/%d bytes", len(parts[0]), len(parts[1]))
	}
}

func TestSplitMessageFallsBackToSpace(t *testing.T) {
	a := strings.Repeat("a", 900)
	b := strings.Repeat("b", 900)
	parts := SplitMessage(a+" "+b, 1000)
	if len(parts) != 2 || parts[0] != a || parts[1] != b {
		t.Fatalf("split did not happen at the space: %d parts", len(parts))
	}
}

func TestSplitMessageIgnoresEarlyNewline(t *testing.T) {
	// The only newline sits before the halfway point; splitting there
	// would produce a tiny first part, so the space should win.
	head := strings.Repeat("a", 100)
	mid := strings.Repeat("b", 800)
	tail := strings.Repeat("c", 500)
	parts := SplitMessage(head+"\n"+mid+" "+tail, 1000)
	if len(parts) != 2 {
		t.Fatalf("got %d parts, want 2", len(parts))
	}
	if len(parts[0]) < 500 {
		t.Errorf("early newline produced a tiny first part: %d bytes", len(parts[0]))
	}
}

func TestSplitMessageHardCut(t *testing.T) {
	body := strings.Repeat("x", 2500)
	parts := SplitMessage(body, 1000)
	if len(parts) != 3 {
		t.Fatalf("got %d parts, want 3", len(parts))
	}
	for i, p := range parts {
		if len(p) > 1000 {
			t.Errorf("part %d exceeds limit: %d bytes", i, len(p))
		}
	}
	if strings.Join(parts, "") != body {
		t.Error("hard cut lost content")
	}
}

func TestSplitMessageRuneSafe(t *testing.T) {
	body := strings.Repeat("ã", 1000) // two bytes each
	parts := SplitMessage(body, 999)  // odd limit forces a mid-rune boundary
	total := 0
	for i, p := range parts {
		if len(p) > 999 {
			t.Errorf("part %d exceeds limit: %d bytes", i, len(p))
		}
		for _, r := range p {
			if r != 'ã' {
				t.Fatalf("part %d corrupted: found %q", i, r)
			}
		}
		total += len(p)
	}
	if total != len(body) {
		t.Errorf("content lost: %d of %d bytes", total, len(body))
	}
}

func TestSplitMessageAllPartsWithinLimit(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 200; i++ {
		sb.WriteString("Linha com algum conteúdo razoável para simular uma resposta longa.\n")
	}
	parts := SplitMessage(sb.String(), MaxMessageBytes)
	if len(parts) < 2 {
		t.Fatalf("long body produced %d part(s)", len(parts))
	}
	for i, p := range parts {
		if len(p) > MaxMessageBytes {
			t.Errorf("part %d exceeds %d bytes: %d", i, MaxMessageBytes, len(p))
		}
		if p == "" {
			t.Errorf("part %d is empty", i)
		}
	}
}
