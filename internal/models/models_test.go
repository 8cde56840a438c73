package models

import (
	"fmt"
	"testing"
	"time"
)

func TestResetSchedulingPreservesHistory(t *testing.T) {
	s := NewSession("+5511999990000")
	s.AppendTurn("user", "quero agendar uma consulta")
	s.AppendTurn("assistant", "Claro! Qual o seu nome completo?")
	s.SchedulingStatus = StateAwaitingName
	s.PatientData.Name = "Fulano de Tal"
	slot := time.Date(2026, 9, 7, 14, 0, 0, 0, time.UTC)
	s.SuggestedSlots = []time.Time{slot}
	s.ChosenSlot = &slot
	s.EventToModify = &CalendarEvent{Identifier: "abc"}
	s.MultipleEvents = []CalendarEvent{{Identifier: "abc"}}

	s.ResetScheduling()

	if s.SchedulingStatus != StateNone {
		t.Errorf("status = %q, want StateNone", s.SchedulingStatus)
	}
	if s.PatientData != (PatientData{}) {
		t.Errorf("patient data not cleared: %+v", s.PatientData)
	}
	if s.SuggestedSlots != nil || s.ChosenSlot != nil || s.EventToModify != nil || s.MultipleEvents != nil {
		t.Error("scheduling fields not cleared")
	}
	if len(s.History) != 2 {
		t.Errorf("history length = %d, want 2 (history must survive reset)", len(s.History))
	}
}

func TestAppendTurnBoundsHistory(t *testing.T) {
	s := NewSession("+5511999990000")
	for i := 0; i < MaxHistoryPairs*2+10; i++ {
		s.AppendTurn("user", fmt.Sprintf("msg %d", i))
	}
	if len(s.History) != MaxHistoryPairs*2 {
		t.Fatalf("history length = %d, want %d", len(s.History), MaxHistoryPairs*2)
	}
	if s.History[len(s.History)-1].Content != fmt.Sprintf("msg %d", MaxHistoryPairs*2+9) {
		t.Error("newest turn was trimmed instead of oldest")
	}
}

func TestRemoveSuggestedSlot(t *testing.T) {
	a := time.Date(2026, 9, 7, 14, 0, 0, 0, time.UTC)
	b := time.Date(2026, 9, 7, 15, 0, 0, 0, time.UTC)
	s := NewSession("x")
	s.SuggestedSlots = []time.Time{a, b}
	s.RemoveSuggestedSlot(a)
	if len(s.SuggestedSlots) != 1 || !s.SuggestedSlots[0].Equal(b) {
		t.Errorf("slots after removal = %v, want only %v", s.SuggestedSlots, b)
	}
}

func TestKnownStates(t *testing.T) {
	if got := len(AllStates()); got != 18 {
		t.Fatalf("AllStates returned %d states, want 18", got)
	}
	if !StateRebookingAwaitingEmail.Known() {
		t.Error("rebooking_awaiting_email should be known")
	}
	if SchedulingState("bogus").Known() {
		t.Error("bogus state should not be known")
	}
	if !StateNone.Known() {
		t.Error("idle state should be known")
	}
}
