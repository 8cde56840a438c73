package models

import (
	"time"
)

// MaxHistoryPairs bounds the conversation history kept per session. Older
// turns are trimmed first; the bound counts user/assistant pairs.
const MaxHistoryPairs = 15

// Turn is a single message in the conversation history.
type Turn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// PatientData holds the fields collected during the booking dialogue. Fields
// are filled incrementally and only cleared by a scheduling reset.
type PatientData struct {
	Name       string `json:"name,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty"`
	Procedure  string `json:"procedure,omitempty"`
	Indication string `json:"indication,omitempty"`

	// Names given when looking up an existing appointment. Kept separate from
	// Name so a failed lookup does not clobber data collected for a new
	// booking.
	NameForCancel string `json:"name_for_cancel,omitempty"`
	NameForRebook string `json:"name_for_rebook,omitempty"`
}

// CalendarEvent is the gateway's decoded view of a booked appointment.
// Identifier is either the object path on the calendar server or the event
// UID; both resolve through the gateway. A zero End means the event carried
// no resolvable end time — such events are treated as busy by the
// availability search and excluded from by-name lookups.
type CalendarEvent struct {
	Identifier  string    `json:"identifier"`
	Summary     string    `json:"summary"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end,omitempty"`
	Description string    `json:"description,omitempty"`
}

// HasEnd reports whether the event carries a resolvable end time.
func (e CalendarEvent) HasEnd() bool { return !e.End.IsZero() }

// Session is the per-sender conversation state. It is created lazily on the
// first message from a sender and mutated only by the state handler currently
// processing that sender's message; per-sender processing is sequential.
type Session struct {
	Sender           string          `json:"sender"`
	History          []Turn          `json:"history,omitempty"`
	SchedulingStatus SchedulingState `json:"scheduling_status,omitempty"`
	PatientData      PatientData     `json:"patient_data"`
	SuggestedSlots   []time.Time     `json:"suggested_slots,omitempty"`
	ChosenSlot       *time.Time      `json:"chosen_slot,omitempty"`
	EventToModify    *CalendarEvent  `json:"event_to_modify,omitempty"`
	MultipleEvents   []CalendarEvent `json:"multiple_events_found,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// NewSession returns a fresh idle session for the given sender.
func NewSession(sender string) *Session {
	now := time.Now()
	return &Session{
		Sender:    sender,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ResetScheduling clears every scheduling field and returns the session to
// idle. The conversation history is preserved.
func (s *Session) ResetScheduling() {
	s.SchedulingStatus = StateNone
	s.PatientData = PatientData{}
	s.SuggestedSlots = nil
	s.ChosenSlot = nil
	s.EventToModify = nil
	s.MultipleEvents = nil
}

// AppendTurn records a conversation turn and trims history to the configured
// bound, dropping the oldest turns.
func (s *Session) AppendTurn(role, content string) {
	s.History = append(s.History, Turn{Role: role, Content: content})
	if max := MaxHistoryPairs * 2; len(s.History) > max {
		s.History = s.History[len(s.History)-max:]
	}
}

// RemoveSuggestedSlot drops the given slot from the suggestion list, used
// when a booking attempt on it failed with a conflict.
func (s *Session) RemoveSuggestedSlot(slot time.Time) {
	kept := s.SuggestedSlots[:0]
	for _, t := range s.SuggestedSlots {
		if !t.Equal(slot) {
			kept = append(kept, t)
		}
	}
	s.SuggestedSlots = kept
}

// Response represents an inbound message from the messaging transport.
type Response struct {
	From string `json:"from"`
	Body string `json:"body"`
	Time int64  `json:"time"`
}
