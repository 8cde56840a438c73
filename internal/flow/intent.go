package flow

import (
	"regexp"

	"github.com/clinicbot/margot/internal/models"
)

// Intent detection and yes/no classification are plain pattern matching,
// kept separate from the state handlers so they can be tested on their own.

var (
	scheduleIntentRe   = regexp.MustCompile(`(?i)\b(agendar|marcar|agendamento|marcando)\b.*\b(consulta|hor[aá]rio)\b`)
	rescheduleIntentRe = regexp.MustCompile(`(?i)\b(remarcar|reagendar|mudar|alterar)\b.*\b(consulta|hor[aá]rio|agendamento)\b`)
	cancelIntentRe     = regexp.MustCompile(`(?i)\b(cancelar|desmarcar)\b.*\b(consulta|hor[aá]rio|agendamento)\b`)
)

// DetectIntent classifies an idle-state message. Scheduling wins over
// rescheduling and cancellation when a message somehow matches more than one.
func DetectIntent(text string) models.Intent {
	switch {
	case scheduleIntentRe.MatchString(text):
		return models.IntentSchedule
	case rescheduleIntentRe.MatchString(text):
		return models.IntentReschedule
	case cancelIntentRe.MatchString(text):
		return models.IntentCancel
	default:
		return models.IntentNone
	}
}

var (
	bookingYesRe = regexp.MustCompile(`(?i)\b(sim|s|ok|positivo|confirmo|confirmado|pode ser|pode)\b`)
	bookingNoRe  = regexp.MustCompile(`(?i)\b(n[aã]o|cancela|errado|mudar|outro|nao)\b`)

	cancelYesRe = regexp.MustCompile(`(?i)\b(sim|s|ok|positivo|confirmo|confirmado|pode cancelar)\b`)
	cancelNoRe  = regexp.MustCompile(`(?i)\b(n[aã]o|espera|mudei de ideia|deixa|nao)\b`)

	rebookYesRe = regexp.MustCompile(`(?i)\b(sim|s|ok|positivo|confirmo|confirmado|quero remarcar)\b`)
)

func classify(text string, yes, no *regexp.Regexp) models.Confirmation {
	switch {
	case yes.MatchString(text):
		return models.ConfirmYes
	case no.MatchString(text):
		return models.ConfirmNo
	default:
		return models.ConfirmUnclear
	}
}

// ClassifyBookingReply interprets the answer to "can we confirm this slot?".
func ClassifyBookingReply(text string) models.Confirmation {
	return classify(text, bookingYesRe, bookingNoRe)
}

// ClassifyCancelReply interprets the answer to "cancel this appointment?".
func ClassifyCancelReply(text string) models.Confirmation {
	return classify(text, cancelYesRe, cancelNoRe)
}

// ClassifyRebookReply interprets the answer to "reschedule this appointment?".
func ClassifyRebookReply(text string) models.Confirmation {
	return classify(text, rebookYesRe, cancelNoRe)
}
