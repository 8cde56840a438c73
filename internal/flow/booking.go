package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/clinicbot/margot/internal/caldav"
	"github.com/clinicbot/margot/internal/models"
	"github.com/clinicbot/margot/internal/scheduling"
	"github.com/clinicbot/margot/internal/util"
)

// handleIdle runs when no flow is active: detect a scheduling intent or
// answer as general conversation grounded on the knowledge base.
func (c *Conversation) handleIdle(ctx context.Context, s *models.Session, text string) outcome {
	switch DetectIntent(text) {
	case models.IntentSchedule:
		slog.Info("Conversation: booking intent detected", "sender", s.Sender)
		s.SchedulingStatus = models.StateAwaitingName
		return outcome{reply: "Claro! Será um prazer ajudar com o agendamento. Para começar, pode me informar o seu nome completo, por favor?"}
	case models.IntentReschedule:
		slog.Info("Conversation: reschedule intent detected", "sender", s.Sender)
		s.SchedulingStatus = models.StateRebookingAwaitingName
		return outcome{reply: "Entendido. Para remarcar sua consulta, por favor, me informe o nome completo utilizado no agendamento original."}
	case models.IntentCancel:
		slog.Info("Conversation: cancel intent detected", "sender", s.Sender)
		s.SchedulingStatus = models.StateCancellingAwaitingName
		return outcome{reply: "Compreendo. Para prosseguir com o cancelamento, por favor, me informe o nome completo utilizado no agendamento."}
	}

	relevant := c.kb.FindRelevantInfo(text, s.History)
	if relevant != "" {
		slog.Debug("Conversation: knowledge block found for general query", "sender", s.Sender)
	}
	return outcome{compose: true, knowledge: relevant}
}

func (c *Conversation) handleAwaitingName(ctx context.Context, s *models.Session, text string) outcome {
	if !ValidName(text) {
		return outcome{compose: true, expected: "name"}
	}
	s.PatientData.Name = TitleCase(text)
	s.SchedulingStatus = models.StateAwaitingPhone
	return outcome{reply: fmt.Sprintf("Obrigada, %s! Agora, por favor, me informe o seu número de telefone com DDD para contato.", s.PatientData.Name)}
}

func (c *Conversation) handleAwaitingPhone(ctx context.Context, s *models.Session, text string) outcome {
	phone, ok := ValidatePhone(text)
	if !ok {
		return outcome{compose: true, expected: "phone"}
	}
	s.PatientData.Phone = phone
	s.SchedulingStatus = models.StateAwaitingEmail
	return outcome{reply: "Perfeito. E qual o seu melhor endereço de e-mail?"}
}

func (c *Conversation) handleAwaitingEmail(ctx context.Context, s *models.Session, text string) outcome {
	if !ValidateEmail(text) {
		return outcome{compose: true, expected: "email"}
	}
	s.PatientData.Email = strings.ToLower(text)
	s.SchedulingStatus = models.StateAwaitingProcedure
	return outcome{reply: "Estamos quase lá! Você tem interesse em algum procedimento específico ou é uma consulta geral de avaliação?"}
}

func (c *Conversation) handleAwaitingProcedure(ctx context.Context, s *models.Session, text string) outcome {
	if text == "" {
		return outcome{compose: true, expected: "procedure"}
	}
	s.PatientData.Procedure = text
	s.SchedulingStatus = models.StateAwaitingIndication
	return outcome{reply: "Entendido. Só mais uma pergunta: você foi indicado(a) por alguém? Se sim, por quem? (Se não, pode só dizer 'Não')."}
}

// handleAwaitingIndication completes data collection and goes straight to
// the availability search, no intermediate state.
func (c *Conversation) handleAwaitingIndication(ctx context.Context, s *models.Session, text string) outcome {
	s.PatientData.Indication = valueOr(text, "Não informado")
	slog.Info("Conversation: data collection complete, searching slots", "sender", s.Sender)
	return c.findAndPresentSlots(ctx, s)
}

// findAndPresentSlots runs the availability search, stores the suggestions
// on the session, and moves to awaiting_choice. On an empty or failed search
// the scheduling flow resets; there is nothing to choose from.
func (c *Conversation) findAndPresentSlots(ctx context.Context, s *models.Session) outcome {
	slots, err := c.finder.FindAvailableSlots(ctx, c.now().In(c.loc), slotsToOffer, c.policy)
	if err != nil {
		slog.Error("Conversation.findAndPresentSlots: availability search failed", "sender", s.Sender, "error", err)
		s.ResetScheduling()
		return outcome{reply: "Desculpe, tive um problema técnico grave ao verificar a agenda no momento. A equipe foi notificada. Por favor, tente novamente mais tarde ou aguarde nosso contato."}
	}
	if len(slots) == 0 {
		slog.Warn("Conversation.findAndPresentSlots: no slots found", "sender", s.Sender)
		s.ResetScheduling()
		return outcome{reply: "Peço desculpas, mas não encontrei horários disponíveis que se encaixem nas regras de agendamento atuais (normalmente tardes de segunda e terça). A agenda pode estar completa ou houve um problema na verificação. A equipe da clínica foi notificada e entrará em contato para auxiliar."}
	}

	s.SuggestedSlots = slots
	s.SchedulingStatus = models.StateAwaitingChoice
	slog.Info("Conversation.findAndPresentSlots: slots presented", "sender", s.Sender, "count", len(slots))

	parts := []string{"Perfeito! Com base nas informações, aqui estão os próximos horários disponíveis:"}
	for i, t := range slots {
		parts = append(parts, fmt.Sprintf("%d. %s", i+1, util.FormatDateTimePtBR(t.In(c.loc))))
	}
	parts = append(parts, "\nQual horário você prefere? (Responda com o número ou descreva o horário)")
	return outcome{reply: strings.Join(parts, "\n")}
}

// handleAwaitingChoice resolves the reply against the presented slot list
// through the layered matcher.
func (c *Conversation) handleAwaitingChoice(ctx context.Context, s *models.Session, text string) outcome {
	if len(s.SuggestedSlots) == 0 {
		slog.Warn("Conversation: awaiting_choice with no suggested slots, searching again", "sender", s.Sender)
		return c.findAndPresentSlots(ctx, s)
	}

	slot, ok := c.matcher.Match(ctx, text, s.SuggestedSlots)
	if !ok {
		slog.Warn("Conversation: no matching strategy resolved the choice", "sender", s.Sender)
		parts := []string{"Desculpe, não consegui identificar qual horário você escolheu.", "\nLembrando as opções:"}
		for i, t := range s.SuggestedSlots {
			parts = append(parts, fmt.Sprintf("%d. %s", i+1, util.FormatDateTimePtBR(t.In(c.loc))))
		}
		parts = append(parts, "\nPor favor, tente responder apenas com o *número da opção* ou reescreva a data/hora (ex: 'Terça, dia 5, às 16:00').")
		return outcome{reply: strings.Join(parts, "\n")}
	}

	chosen := slot
	s.ChosenSlot = &chosen
	s.SchedulingStatus = models.StateAwaitingConfirm
	slog.Info("Conversation: slot matched, asking for confirmation", "sender", s.Sender, "slot", chosen)
	return outcome{reply: fmt.Sprintf("Perfeito! Podemos confirmar sua consulta para %s?", util.FormatDateTimePtBR(chosen.In(c.loc)))}
}

// handleAwaitingConfirm executes the booking on a clear yes, goes back to
// the slot list on a clear no, and asks the composer to re-request a yes/no
// on anything else.
func (c *Conversation) handleAwaitingConfirm(ctx context.Context, s *models.Session, text string) outcome {
	if s.ChosenSlot == nil {
		slog.Error("Conversation: awaiting_confirmation with no chosen slot", "sender", s.Sender)
		return c.findAndPresentSlots(ctx, s)
	}
	chosen := s.ChosenSlot.In(c.loc)

	switch ClassifyBookingReply(text) {
	case models.ConfirmYes:
		return c.bookChosenSlot(ctx, s)
	case models.ConfirmNo:
		slog.Info("Conversation: slot declined, back to choice", "sender", s.Sender)
		s.SchedulingStatus = models.StateAwaitingChoice
		s.ChosenSlot = nil
		if len(s.SuggestedSlots) == 0 {
			return c.findAndPresentSlots(ctx, s)
		}
		parts := []string{"Entendido. Vamos escolher outro.", "\nOpções:"}
		for i, t := range s.SuggestedSlots {
			parts = append(parts, fmt.Sprintf("%d. %s", i+1, util.FormatDateTimePtBR(t.In(c.loc))))
		}
		parts = append(parts, "\nQual prefere?")
		return outcome{reply: strings.Join(parts, "\n")}
	default:
		return outcome{compose: true, expected: "confirmation", chosenSlot: util.FormatDateTimePtBR(chosen)}
	}
}

// bookChosenSlot re-checks the chosen window for conflicts and writes the
// event. A conflict sends the user back to the remaining options; a backend
// failure resets the flow.
func (c *Conversation) bookChosenSlot(ctx context.Context, s *models.Session) outcome {
	chosen := *s.ChosenSlot
	end := chosen.Add(c.policy.ConsultationDuration)
	slog.Info("Conversation.bookChosenSlot: booking", "sender", s.Sender, "start", chosen, "end", end)

	if err := c.guard.Check(ctx, chosen, end); err != nil {
		if errors.Is(err, scheduling.ErrSlotConflict) {
			slog.Warn("Conversation.bookChosenSlot: slot taken between search and booking", "sender", s.Sender, "slot", chosen)
			return c.slotTaken(ctx, s, chosen)
		}
		slog.Error("Conversation.bookChosenSlot: conflict check failed", "sender", s.Sender, "error", err)
		s.ResetScheduling()
		return outcome{reply: "Desculpe, erro técnico grave ao confirmar. Equipe notificada."}
	}

	draft := caldav.EventDraft{
		Start:       chosen,
		End:         end,
		PatientName: s.PatientData.Name,
		Phone:       s.PatientData.Phone,
		Email:       s.PatientData.Email,
		Procedure:   s.PatientData.Procedure,
		Indication:  s.PatientData.Indication,
	}
	if _, err := c.calendar.CreateEvent(ctx, draft); err != nil {
		slog.Error("Conversation.bookChosenSlot: event creation failed", "sender", s.Sender, "error", err)
		s.ResetScheduling()
		return outcome{reply: "Desculpe, erro técnico grave ao confirmar. Equipe notificada."}
	}
	slog.Info("Conversation.bookChosenSlot: appointment booked", "sender", s.Sender, "start", chosen)

	if err := c.memory.SavePatient(ctx, s.Sender, &s.PatientData, chosen); err != nil {
		slog.Error("Conversation.bookChosenSlot: patient memory save failed", "sender", s.Sender, "error", err)
	}
	c.notifyOperator(ctx, s, chosen)

	reply := fmt.Sprintf(
		"✅ *Agendamento Confirmado!* 🎉\n\n"+
			"%s foi agendada com sucesso para:\n*%s*\n\n"+
			"Procedimento/Interesse: %s\n"+
			"Com o Dr. Juarez Missel.\n\n"+
			"📍 *Endereço:* %s\n"+
			"⏰ *Lembrete:* Chegue com 15 minutos de antecedência.\n"+
			"📋 Se estiver usando medicamentos, leve a lista.\n"+
			"🧾 Se tiver exames relacionados, leve-os também.\n\n"+
			"Qualquer dúvida, estou à disposição. A %s agradece a confiança!",
		valueOr(s.PatientData.Name, "Sua consulta"),
		util.FormatDateTimePtBR(chosen.In(c.loc)),
		valueOr(s.PatientData.Procedure, "Avaliação Geral"),
		valueOr(c.kb.AddressLine(), "Rua Coronel Gabriel Bastos, 371 – Passo Fundo/RS"),
		c.clinicName,
	)
	s.ResetScheduling()
	return outcome{reply: reply}
}

// slotTaken removes the conflicted slot and re-presents what is left,
// re-running the search when nothing remains.
func (c *Conversation) slotTaken(ctx context.Context, s *models.Session, failed time.Time) outcome {
	s.SchedulingStatus = models.StateAwaitingChoice
	s.ChosenSlot = nil
	s.RemoveSuggestedSlot(failed)

	if len(s.SuggestedSlots) == 0 {
		return c.findAndPresentSlots(ctx, s)
	}
	parts := []string{
		"Desculpe, parece que este horário foi ocupado. Gostaria de tentar outro?",
		"\nRelembrando os horários que sobraram:",
	}
	for i, t := range s.SuggestedSlots {
		parts = append(parts, fmt.Sprintf("%d. %s", i+1, util.FormatDateTimePtBR(t.In(c.loc))))
	}
	parts = append(parts, "\nQual você prefere?")
	return outcome{reply: strings.Join(parts, "\n")}
}

// notifyOperator sends a booking summary to the clinic's relationship team.
// Failures are logged and never affect the patient-facing reply.
func (c *Conversation) notifyOperator(ctx context.Context, s *models.Session, chosen time.Time) {
	if c.notifier == nil || c.operatorAddr == "" {
		return
	}
	msg := fmt.Sprintf(
		"[MARGOT] Nova consulta agendada!\n\n"+
			"📌 Nome: %s\n"+
			"📞 Telefone: %s\n"+
			"📧 Email: %s\n"+
			"🗓 Data/Hora: %s\n"+
			"💬 Procedimento: %s\n"+
			"🔁 Indicação: %s",
		valueOr(s.PatientData.Name, "N/A"),
		valueOr(s.PatientData.Phone, "N/A"),
		valueOr(s.PatientData.Email, "N/A"),
		util.FormatDateTimePtBR(chosen.In(c.loc)),
		valueOr(s.PatientData.Procedure, "Não informado"),
		valueOr(s.PatientData.Indication, "Não informado"),
	)
	if err := c.notifier.SendMessage(ctx, c.operatorAddr, msg); err != nil {
		slog.Error("Conversation.notifyOperator: team notification failed", "sender", s.Sender, "error", err)
		return
	}
	slog.Info("Conversation.notifyOperator: team notified", "sender", s.Sender)
}
