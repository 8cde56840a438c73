package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/clinicbot/margot/internal/caldav"
	"github.com/clinicbot/margot/internal/matcher"
	"github.com/clinicbot/margot/internal/models"
	"github.com/clinicbot/margot/internal/util"
)

// The cancellation and rescheduling flows mirror each other: collect the
// name used on the original booking, look it up in the next six months,
// disambiguate when several appointments match, then confirm the delete.
// Rescheduling continues into the booking path after the delete.

func (c *Conversation) handleCancellingName(ctx context.Context, s *models.Session, text string) outcome {
	if !ValidName(text) {
		return outcome{compose: true, expected: "name"}
	}
	s.PatientData.NameForCancel = TitleCase(text)
	s.SchedulingStatus = models.StateCancellingFinding
	return outcome{reply: fmt.Sprintf("Obrigada, %s. Buscando agendamentos...", s.PatientData.NameForCancel)}
}

func (c *Conversation) handleCancellingFinding(ctx context.Context, s *models.Session, text string) outcome {
	name := s.PatientData.NameForCancel
	slog.Info("Conversation: searching appointments to cancel", "sender", s.Sender, "name", name)

	events, err := c.findUpcomingByName(ctx, name)
	if err != nil {
		slog.Error("Conversation: appointment lookup failed", "sender", s.Sender, "error", err)
		s.ResetScheduling()
		return outcome{reply: "Desculpe, tive um problema ao buscar seus agendamentos. Por favor, tente novamente mais tarde."}
	}

	switch len(events) {
	case 0:
		s.ResetScheduling()
		return outcome{reply: fmt.Sprintf("Não encontrei agendamentos futuros para %s. Nome correto?", valueOr(name, "você"))}
	case 1:
		ev := events[0]
		s.EventToModify = &ev
		s.SchedulingStatus = models.StateCancellingAwaitingConfirm
		return outcome{reply: fmt.Sprintf("Encontrei: *%s* para *%s*. Cancelar este? (Sim/Não)",
			ev.Summary, util.FormatDateTimePtBR(ev.Start.In(c.loc)))}
	default:
		s.MultipleEvents = events
		s.SchedulingStatus = models.StateCancellingAwaitingChoice
		parts := []string{fmt.Sprintf("Encontrei %d agendamentos para %s:", len(events), valueOr(name, "você"))}
		parts = append(parts, c.numberedEventLines(events)...)
		parts = append(parts, "\nQual deles (número) deseja cancelar?")
		return outcome{reply: strings.Join(parts, "\n")}
	}
}

func (c *Conversation) handleCancellingChoice(ctx context.Context, s *models.Session, text string) outcome {
	idx, ok := matcher.MatchIndex(text, len(s.MultipleEvents))
	if !ok {
		return outcome{compose: true, expected: "multiple_choice", modifyCtx: c.modifyContext("cancelamento", s.MultipleEvents)}
	}
	ev := s.MultipleEvents[idx]
	s.EventToModify = &ev
	s.MultipleEvents = nil
	s.SchedulingStatus = models.StateCancellingAwaitingConfirm
	return outcome{reply: fmt.Sprintf("Selecionado: *%s* para *%s*. Confirmar cancelamento? (Sim/Não)",
		ev.Summary, util.FormatDateTimePtBR(ev.Start.In(c.loc)))}
}

func (c *Conversation) handleCancellingConfirm(ctx context.Context, s *models.Session, text string) outcome {
	ev := s.EventToModify
	if ev == nil || ev.Identifier == "" {
		slog.Error("Conversation: cancellation confirm with no event reference", "sender", s.Sender)
		s.ResetScheduling()
		s.SchedulingStatus = models.StateCancellingAwaitingName
		return outcome{reply: "Erro interno. Recomeçar cancelamento? Por favor, me informe o nome completo utilizado no agendamento."}
	}

	switch ClassifyCancelReply(text) {
	case models.ConfirmYes:
		err := c.calendar.DeleteEvent(ctx, ev.Identifier)
		switch {
		case err == nil:
			slog.Info("Conversation: appointment cancelled", "sender", s.Sender, "identifier", ev.Identifier)
			reply := fmt.Sprintf("✅ Cancelamento Confirmado! Agendamento de %s cancelado.",
				util.FormatDateTimePtBR(ev.Start.In(c.loc)))
			s.ResetScheduling()
			return outcome{reply: reply}
		case errors.Is(err, caldav.ErrNotFound):
			slog.Warn("Conversation: appointment to cancel no longer exists", "sender", s.Sender, "identifier", ev.Identifier)
			s.ResetScheduling()
			return outcome{reply: "Problema ao cancelar: não encontrei mais este agendamento. Contate a clínica."}
		default:
			slog.Error("Conversation: cancellation failed", "sender", s.Sender, "error", err)
			s.ResetScheduling()
			return outcome{reply: "Desculpe, erro técnico grave ao cancelar. Equipe notificada."}
		}
	case models.ConfirmNo:
		s.ResetScheduling()
		return outcome{reply: "Ok, não cancelado. Algo mais?"}
	default:
		return outcome{compose: true, expected: "cancel_confirmation", modifyCtx: c.modifyContext("cancelamento", []models.CalendarEvent{*ev})}
	}
}

func (c *Conversation) handleRebookingName(ctx context.Context, s *models.Session, text string) outcome {
	if !ValidName(text) {
		return outcome{compose: true, expected: "name"}
	}
	s.PatientData.NameForRebook = TitleCase(text)
	s.SchedulingStatus = models.StateRebookingFinding
	return outcome{reply: fmt.Sprintf("Obrigada, %s. Buscando agendamentos para remarcar...", s.PatientData.NameForRebook)}
}

func (c *Conversation) handleRebookingFinding(ctx context.Context, s *models.Session, text string) outcome {
	name := s.PatientData.NameForRebook
	slog.Info("Conversation: searching appointments to reschedule", "sender", s.Sender, "name", name)

	events, err := c.findUpcomingByName(ctx, name)
	if err != nil {
		slog.Error("Conversation: appointment lookup failed", "sender", s.Sender, "error", err)
		s.ResetScheduling()
		return outcome{reply: "Desculpe, tive um problema ao buscar seus agendamentos. Por favor, tente novamente mais tarde."}
	}

	switch len(events) {
	case 0:
		// Nothing to move: fall through into a fresh booking, keeping the
		// name the patient just gave.
		s.ResetScheduling()
		s.PatientData.Name = name
		s.SchedulingStatus = models.StateAwaitingPhone
		return outcome{reply: fmt.Sprintf("Não achei agendamentos para %s. Vamos fazer um novo. Qual seu telefone com DDD?", name)}
	case 1:
		ev := events[0]
		s.EventToModify = &ev
		s.SchedulingStatus = models.StateRebookingAwaitingConfirm
		return outcome{reply: fmt.Sprintf("Encontrei: *%s* para *%s*. Remarcar este? (Sim/Não)",
			ev.Summary, util.FormatDateTimePtBR(ev.Start.In(c.loc)))}
	default:
		s.MultipleEvents = events
		s.SchedulingStatus = models.StateRebookingAwaitingChoice
		parts := []string{fmt.Sprintf("Encontrei %d agendamentos para %s:", len(events), valueOr(name, "você"))}
		parts = append(parts, c.numberedEventLines(events)...)
		parts = append(parts, "\nQual deles (número) deseja remarcar?")
		return outcome{reply: strings.Join(parts, "\n")}
	}
}

func (c *Conversation) handleRebookingChoice(ctx context.Context, s *models.Session, text string) outcome {
	idx, ok := matcher.MatchIndex(text, len(s.MultipleEvents))
	if !ok {
		return outcome{compose: true, expected: "multiple_choice", modifyCtx: c.modifyContext("remarcação", s.MultipleEvents)}
	}
	ev := s.MultipleEvents[idx]
	s.EventToModify = &ev
	s.MultipleEvents = nil
	s.SchedulingStatus = models.StateRebookingAwaitingConfirm
	return outcome{reply: fmt.Sprintf("Ok: *%s* em *%s*. Confirmar remarcação? (Sim/Não)",
		ev.Summary, util.FormatDateTimePtBR(ev.Start.In(c.loc)))}
}

func (c *Conversation) handleRebookingConfirm(ctx context.Context, s *models.Session, text string) outcome {
	ev := s.EventToModify
	if ev == nil || ev.Identifier == "" {
		slog.Error("Conversation: rebooking confirm with no event reference", "sender", s.Sender)
		s.ResetScheduling()
		s.SchedulingStatus = models.StateRebookingAwaitingName
		return outcome{reply: "Erro interno. Recomeçar remarcação? Por favor, me informe o nome completo utilizado no agendamento."}
	}

	switch ClassifyRebookReply(text) {
	case models.ConfirmYes:
		err := c.calendar.DeleteEvent(ctx, ev.Identifier)
		switch {
		case err == nil:
			slog.Info("Conversation: old appointment removed, continuing to rebook", "sender", s.Sender, "identifier", ev.Identifier)
			s.PatientData.Name = patientNameFromSummary(ev.Summary, s.PatientData.NameForRebook)
			s.EventToModify = nil
			s.MultipleEvents = nil
			s.SuggestedSlots = nil
			s.ChosenSlot = nil
			if s.PatientData.Phone == "" {
				s.SchedulingStatus = models.StateRebookingAwaitingPhone
				return outcome{reply: "Ok! Cancelei o anterior. Para o novo, confirme seu telefone com DDD."}
			}
			if s.PatientData.Email == "" {
				s.SchedulingStatus = models.StateRebookingAwaitingEmail
				return outcome{reply: "Ok! Cancelei o anterior. E seu e-mail para o novo?"}
			}
			return c.findAndPresentSlots(ctx, s)
		case errors.Is(err, caldav.ErrNotFound):
			slog.Warn("Conversation: appointment to reschedule no longer exists", "sender", s.Sender, "identifier", ev.Identifier)
			return outcome{reply: "Problema ao cancelar o agendamento anterior: não o encontrei mais. Tente de novo ou contate a clínica."}
		default:
			slog.Error("Conversation: rescheduling delete failed", "sender", s.Sender, "error", err)
			s.ResetScheduling()
			return outcome{reply: "Desculpe, erro técnico grave ao remarcar. Equipe notificada."}
		}
	case models.ConfirmNo:
		s.ResetScheduling()
		return outcome{reply: "Ok, agendamento mantido. Algo mais?"}
	default:
		return outcome{compose: true, expected: "rebook_confirmation", modifyCtx: c.modifyContext("remarcação", []models.CalendarEvent{*ev})}
	}
}

// Post-reschedule collection states: only the fields still missing are
// asked for before re-entering the slot search.

func (c *Conversation) handleRebookingPhone(ctx context.Context, s *models.Session, text string) outcome {
	phone, ok := ValidatePhone(text)
	if !ok {
		return outcome{compose: true, expected: "phone"}
	}
	s.PatientData.Phone = phone
	if s.PatientData.Email == "" {
		s.SchedulingStatus = models.StateRebookingAwaitingEmail
		return outcome{reply: "Obrigada. E qual seu e-mail?"}
	}
	return c.findAndPresentSlots(ctx, s)
}

func (c *Conversation) handleRebookingEmail(ctx context.Context, s *models.Session, text string) outcome {
	if !ValidateEmail(text) {
		return outcome{compose: true, expected: "email"}
	}
	s.PatientData.Email = strings.ToLower(text)
	return c.findAndPresentSlots(ctx, s)
}

// findUpcomingByName looks up the patient's future appointments within the
// modify-search window.
func (c *Conversation) findUpcomingByName(ctx context.Context, name string) ([]models.CalendarEvent, error) {
	now := c.now().In(c.loc)
	return c.calendar.FindByText(ctx, name, now, now.AddDate(0, modifySearchMonths, 0))
}

func (c *Conversation) numberedEventLines(events []models.CalendarEvent) []string {
	lines := make([]string, len(events))
	for i, ev := range events {
		lines[i] = fmt.Sprintf("%d. %s (%s)", i+1, util.FormatDateTimePtBR(ev.Start.In(c.loc)), ev.Summary)
	}
	return lines
}

// modifyContext describes the pending cancel/rebook decision for the
// composer when the patient's reply was ambiguous.
func (c *Conversation) modifyContext(action string, events []models.CalendarEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ação pendente: %s.", action)
	if len(events) == 1 {
		fmt.Fprintf(&b, " Agendamento: %s em %s.",
			events[0].Summary, util.FormatDateTimePtBR(events[0].Start.In(c.loc)))
		return b.String()
	}
	b.WriteString(" Agendamentos encontrados:")
	for i, ev := range events {
		fmt.Fprintf(&b, "\n%d. %s (%s)", i+1, util.FormatDateTimePtBR(ev.Start.In(c.loc)), ev.Summary)
	}
	return b.String()
}

// patientNameFromSummary recovers the patient name from a booked event's
// summary, which embeds it by convention after the last " - ".
func patientNameFromSummary(summary, fallback string) string {
	parts := strings.Split(summary, " - ")
	if len(parts) > 1 {
		if name := strings.TrimSpace(parts[len(parts)-1]); name != "" {
			return TitleCase(name)
		}
	}
	return fallback
}
