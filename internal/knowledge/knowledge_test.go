package knowledge

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/clinicbot/margot/internal/models"
)

func loadTestBase(t *testing.T) *Base {
	t.Helper()
	b, err := Load(filepath.Join("testdata", "knowledge_base.json"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return b
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join("testdata", "missing.json")); err == nil {
		t.Error("Load of missing file succeeded, want error")
	}
}

func TestFindRelevantInfoGreetingReturnsNothing(t *testing.T) {
	b := loadTestBase(t)
	for _, q := range []string{"oi", "Bom dia!", "obrigada", "tudo bem?"} {
		if got := b.FindRelevantInfo(q, nil); got != "" {
			t.Errorf("FindRelevantInfo(%q) = %q, want empty", q, got)
		}
	}
}

func TestFindRelevantInfoProcedureByName(t *testing.T) {
	b := loadTestBase(t)
	got := b.FindRelevantInfo("vocês fazem rinoplastia?", nil)
	if !strings.Contains(got, "Detalhes sobre Rinoplastia") {
		t.Errorf("procedure lookup failed:\n%q", got)
	}
}

func TestFindRelevantInfoProcedureByVariation(t *testing.T) {
	b := loadTestBase(t)
	got := b.FindRelevantInfo("queria saber sobre prótese de silicone", nil)
	if !strings.Contains(got, "Mamoplastia de Aumento") {
		t.Errorf("variation lookup failed:\n%q", got)
	}
	if !strings.Contains(got, "Atenção Importante") {
		t.Errorf("restriction missing from procedure block:\n%q", got)
	}
}

func TestFindRelevantInfoContextualFollowUp(t *testing.T) {
	b := loadTestBase(t)
	history := []models.Turn{
		{Role: "user", Content: "vocês fazem rinoplastia?"},
		{Role: "assistant", Content: "Sim! A rinoplastia é realizada pelo Dr. Juarez Missel."},
	}
	got := b.FindRelevantInfo("e como funciona isso?", history)
	if !strings.Contains(got, "Rinoplastia") {
		t.Errorf("contextual follow-up did not resolve topic:\n%q", got)
	}
}

func TestFindRelevantInfoAddress(t *testing.T) {
	b := loadTestBase(t)
	got := b.FindRelevantInfo("qual o endereço da clínica?", nil)
	if !strings.Contains(got, "Rua das Hortênsias") || !strings.Contains(got, "Passo Fundo") {
		t.Errorf("address block incomplete:\n%q", got)
	}
}

func TestFindRelevantInfoOpeningHours(t *testing.T) {
	b := loadTestBase(t)
	got := b.FindRelevantInfo("qual o horário de funcionamento?", nil)
	if !strings.Contains(got, "Segunda-feira: 08:00 às 18:00") {
		t.Errorf("opening hours block incomplete:\n%q", got)
	}
	if !strings.Contains(got, "horário marcado") {
		t.Errorf("notes missing from opening hours:\n%q", got)
	}
}

func TestFindRelevantInfoInsurance(t *testing.T) {
	b := loadTestBase(t)
	got := b.FindRelevantInfo("vocês aceitam convênio?", nil)
	if !strings.Contains(got, "particulares") {
		t.Errorf("insurance policy not returned:\n%q", got)
	}
}

func TestFindRelevantInfoProcedureList(t *testing.T) {
	b := loadTestBase(t)
	got := b.FindRelevantInfo("quais procedimentos vocês fazem?", nil)
	if !strings.Contains(got, "Principais Procedimentos Realizados") || !strings.Contains(got, "- Rinoplastia") {
		t.Errorf("procedure list incomplete:\n%q", got)
	}
}

func TestFindRelevantInfoOffTopic(t *testing.T) {
	b := loadTestBase(t)
	if got := b.FindRelevantInfo("qual a previsão do tempo?", nil); got != "" {
		t.Errorf("off-topic query returned knowledge: %q", got)
	}
}

func TestDoctorYears(t *testing.T) {
	b := loadTestBase(t)
	formation, spec := b.DoctorYears()
	if formation != 1998 || spec != 2004 {
		t.Errorf("DoctorYears = (%d, %d), want (1998, 2004)", formation, spec)
	}
}

func TestRulesPolicyConversion(t *testing.T) {
	b := loadTestBase(t)
	p := b.Rules().Policy()

	if p.ConsultationDuration != 45*time.Minute {
		t.Errorf("ConsultationDuration = %v", p.ConsultationDuration)
	}
	if !p.AllowedWeekdays[time.Monday] || !p.AllowedWeekdays[time.Tuesday] {
		t.Errorf("preferred days 0,1 must map to Monday and Tuesday: %v", p.AllowedWeekdays)
	}
	if p.AllowedWeekdays[time.Sunday] || p.AllowedWeekdays[time.Wednesday] {
		t.Errorf("unexpected weekdays allowed: %v", p.AllowedWeekdays)
	}
	wantHours := []int{14, 15, 16, 17}
	if len(p.AllowedStartHours) != len(wantHours) {
		t.Fatalf("AllowedStartHours = %v, want %v", p.AllowedStartHours, wantHours)
	}
	for i, h := range wantHours {
		if p.AllowedStartHours[i] != h {
			t.Errorf("AllowedStartHours[%d] = %d, want %d", i, p.AllowedStartHours[i], h)
		}
	}
}

func TestRulesDefaultsWhenAbsent(t *testing.T) {
	b := &Base{}
	r := b.Rules()
	if r.DurationMinutes != 45 || r.StartHour != 14 || r.EndHour != 18 {
		t.Errorf("default rules = %+v", r)
	}
}
