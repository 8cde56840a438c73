// Package models defines the session and calendar data structures shared
// across the Margot modules.
package models

// SchedulingState identifies where a conversation stands in the scheduling
// flow. The zero value means no flow is active and the message is handled as
// general conversation.
type SchedulingState string

const (
	StateNone SchedulingState = ""

	// Booking flow: sequential data collection, then slot choice and
	// confirmation.
	StateAwaitingName       SchedulingState = "awaiting_name"
	StateAwaitingPhone      SchedulingState = "awaiting_phone"
	StateAwaitingEmail      SchedulingState = "awaiting_email"
	StateAwaitingProcedure  SchedulingState = "awaiting_procedure"
	StateAwaitingIndication SchedulingState = "awaiting_indication"
	StateAwaitingChoice     SchedulingState = "awaiting_choice"
	StateAwaitingConfirm    SchedulingState = "awaiting_confirmation"

	// Cancellation flow.
	StateCancellingAwaitingName    SchedulingState = "cancelling_awaiting_name"
	StateCancellingFinding         SchedulingState = "cancelling_finding"
	StateCancellingAwaitingChoice  SchedulingState = "cancelling_awaiting_choice"
	StateCancellingAwaitingConfirm SchedulingState = "cancelling_awaiting_confirmation"

	// Rescheduling flow. After the old event is removed the flow re-collects
	// whatever contact data is missing and rejoins the booking path.
	StateRebookingAwaitingName    SchedulingState = "rebooking_awaiting_name"
	StateRebookingFinding         SchedulingState = "rebooking_finding"
	StateRebookingAwaitingChoice  SchedulingState = "rebooking_awaiting_choice"
	StateRebookingAwaitingConfirm SchedulingState = "rebooking_awaiting_confirmation"
	StateRebookingAwaitingPhone   SchedulingState = "rebooking_awaiting_phone"
	StateRebookingAwaitingEmail   SchedulingState = "rebooking_awaiting_email"
)

// AllStates lists every recognized state, including StateNone. Known
// validates persisted tags against it, and the flow's tests assert the
// dispatch table covers it, so an unhandled state cannot be added silently.
func AllStates() []SchedulingState {
	return []SchedulingState{
		StateNone,
		StateAwaitingName,
		StateAwaitingPhone,
		StateAwaitingEmail,
		StateAwaitingProcedure,
		StateAwaitingIndication,
		StateAwaitingChoice,
		StateAwaitingConfirm,
		StateCancellingAwaitingName,
		StateCancellingFinding,
		StateCancellingAwaitingChoice,
		StateCancellingAwaitingConfirm,
		StateRebookingAwaitingName,
		StateRebookingFinding,
		StateRebookingAwaitingChoice,
		StateRebookingAwaitingConfirm,
		StateRebookingAwaitingPhone,
		StateRebookingAwaitingEmail,
	}
}

// Known reports whether s is one of the recognized states.
func (s SchedulingState) Known() bool {
	for _, known := range AllStates() {
		if s == known {
			return true
		}
	}
	return false
}

// Intent classifies what the user is asking for when no flow is active.
type Intent int

const (
	IntentNone Intent = iota
	IntentSchedule
	IntentReschedule
	IntentCancel
)

func (i Intent) String() string {
	switch i {
	case IntentSchedule:
		return "schedule"
	case IntentReschedule:
		return "reschedule"
	case IntentCancel:
		return "cancel"
	default:
		return "none"
	}
}

// Confirmation classifies a yes/no style reply.
type Confirmation int

const (
	ConfirmUnclear Confirmation = iota
	ConfirmYes
	ConfirmNo
)
