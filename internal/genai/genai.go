// Package genai composes Margot's replies through the OpenAI chat API.
//
// The model never decides scheduling actions. The state machine decides
// everything and passes the already-decided transition in as context; the
// model's job is wording. The two exceptions, delegated explicitly, are the
// slot-selection fallback and re-asking for a clear yes/no.
package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/clinicbot/margot/internal/models"
	"github.com/clinicbot/margot/internal/util"
)

// maxPromptHistoryPairs bounds how much conversation history goes into one
// prompt. Smaller than the session's stored history: the prompt budget is
// the tighter constraint.
const maxPromptHistoryPairs = 5

// Request carries one reply-composition request: the user's message plus
// every piece of already-decided scheduling context the model should word.
type Request struct {
	UserMessage string
	History     []models.Turn

	// State is the current scheduling state, empty for general chat.
	State models.SchedulingState
	// PatientData holds the fields collected so far.
	PatientData *models.PatientData
	// ExpectedData names the one piece of information the reply must ask
	// for: "name", "phone", "email", "procedure", "indication",
	// "slot_choice", "confirmation", "cancel_confirmation",
	// "rebook_confirmation", "multiple_choice".
	ExpectedData string
	// RelevantKnowledge is the formatted knowledge-base block, if any.
	RelevantKnowledge string
	// AvailableSlots are formatted slot descriptions to present numbered.
	AvailableSlots []string
	// ChosenSlot is the formatted slot awaiting a yes/no.
	ChosenSlot string
	// CancelRebookContext describes the event(s) found for cancellation or
	// rescheduling.
	CancelRebookContext string
}

// ClientInterface defines the reply-composition operations the
// conversation layer depends on.
type ClientInterface interface {
	// GetReply composes Margot's next message.
	GetReply(ctx context.Context, req Request) (string, error)
	// Ask sends a bare analytical question outside the conversation, used
	// by the slot matcher's fallback.
	Ask(ctx context.Context, question string) (string, error)
}

// Opts holds configuration options for the OpenAI client.
type Opts struct {
	// APIKey is the OpenAI API key.
	APIKey string
	// Model overrides the default chat model.
	Model string
	// FormationYear and PlasticSpecYear feed the persona's credentials.
	FormationYear   int
	PlasticSpecYear int
	// Location renders the temporal context in clinic time.
	Location *time.Location
}

// Option configures OpenAI client Opts.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the chat model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithDoctorYears sets the graduation and specialization years mentioned in
// the persona.
func WithDoctorYears(formation, plasticSpec int) Option {
	return func(o *Opts) {
		o.FormationYear = formation
		o.PlasticSpecYear = plasticSpec
	}
}

// WithLocation sets the timezone for the prompt's temporal context.
func WithLocation(loc *time.Location) Option {
	return func(o *Opts) { o.Location = loc }
}

// Client is the OpenAI-backed reply composer.
type Client struct {
	client openai.Client
	opts   Opts
	now    func() time.Time
}

// NewClient creates a reply composer. The API key is required.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{
		Model:           string(openai.ChatModelGPT4oMini),
		FormationYear:   1998,
		PlasticSpecYear: 2004,
		Location:        time.UTC,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai client requires an API key")
	}
	slog.Info("GenAI client initialized", "model", cfg.Model)
	return &Client{
		client: openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		opts:   cfg,
		now:    time.Now,
	}, nil
}

// persona is Margot's identity and ground rules, sent as the first system
// message of every request.
func (c *Client) persona() string {
	return fmt.Sprintf(
		"Você é Margot, a concierge e responsável pelo atendimento aos pacientes na Clínica Missel, "+
			"cujo especialista responsável é o Dr. Juarez Missel (formado em %d, especialista em plástica desde %d), "+
			"um renomado especialista em Cirurgia Plástica. "+
			"Sua comunicação deve ser impecável: extremamente educada, cordial, acolhedora, paciente, atenciosa e altamente prestativa. "+
			"Aja sempre como um membro humano da equipe e trate todos os pacientes com respeito e empatia. "+
			"Seu objetivo principal é fornecer informações precisas sobre a Clínica Missel e gerenciar a agenda de consultas, "+
			"sempre seguindo o fluxo definido pelo sistema (você será informada do estado atual do agendamento e qual informação pedir).\n"+
			"Instruções Gerais:\n"+
			"- Responda sempre em Português do Brasil.\n"+
			"- NUNCA use formatação Markdown (como asteriscos) em suas respostas finais. Use apenas texto puro.\n"+
			"- Use uma linguagem clara, acolhedora e nunca robótica.\n"+
			"Regras Essenciais:\n"+
			"1. APRESENTAÇÃO INICIAL: na PRIMEIRA mensagem desta conversa, apresente-se como 'Olá! Sou a Margot, da Clínica Missel. Em que posso ajudar?'. "+
			"Nas respostas seguintes, não repita a apresentação completa.\n"+
			"2. VOCÊ NÃO É IA: nunca revele ser uma inteligência artificial, chatbot ou modelo. Você é Margot, uma pessoa da equipe.\n"+
			"3. SEM CONSELHOS MÉDICOS: não dê diagnósticos nem opiniões médicas; redirecione para a consulta com o Dr. Juarez.\n"+
			"4. INFORMAÇÕES DA CLÍNICA: use as informações da base de dados quando fornecidas no contexto; se a informação não estiver na base, "+
			"diga que verificará ou que será detalhado na consulta.\n"+
			"5. FLUXO DE AGENDAMENTO: quando o contexto indicar a informação esperada, peça APENAS essa informação. "+
			"Se o usuário responder outra coisa, reconheça brevemente e repita o pedido com educação. "+
			"Quando o contexto fornecer horários disponíveis, apresente-os numerados e peça a escolha pelo número. "+
			"Quando o contexto pedir confirmação, apresente o horário e peça um Sim/Não direto.\n"+
			"6. ERROS: se o sistema informar uma falha, explique com clareza e ofereça alternativas ou diga que a equipe entrará em contato.\n"+
			"7. FOCO: mantenha a conversa nos assuntos da Clínica Missel; redirecione gentilmente desvios prolongados.\n"+
			"8. Não inclua marcadores de ação como [ACTION:...] nas respostas.",
		c.opts.FormationYear, c.opts.PlasticSpecYear)
}

var expectedDataDescriptions = map[string]string{
	"name":                "o nome completo do paciente",
	"phone":               "o número de telefone com DDD",
	"email":               "o endereço de e-mail",
	"procedure":           "o procedimento de interesse ou se é consulta geral",
	"indication":          "se houve indicação e por quem",
	"slot_choice":         "que o usuário escolha UM dos horários da lista APENAS PELO NÚMERO",
	"confirmation":        "uma confirmação (Sim/Não) para o horário selecionado",
	"cancel_confirmation": "uma confirmação (Sim/Não) para CANCELAR o agendamento encontrado",
	"rebook_confirmation": "uma confirmação (Sim/Não) para REMARCAR o agendamento encontrado",
	"multiple_choice":     "que o usuário escolha UM dos agendamentos da lista APENAS PELO NÚMERO para cancelar/remarcar",
}

// schedulingContext renders the already-decided scheduling facts into one
// system block. Returns "" when there is nothing beyond an idle state.
func schedulingContext(req Request) string {
	state := "Nenhum (Conversa Geral)"
	if req.State != models.StateNone {
		state = string(req.State)
	}
	parts := []string{"Estado Atual do Agendamento: " + state}

	if req.PatientData != nil {
		if collected, err := json.Marshal(req.PatientData); err == nil && string(collected) != "{}" {
			parts = append(parts, "Dados do Paciente já coletados: "+string(collected))
		}
	}
	if req.ExpectedData != "" {
		desc, ok := expectedDataDescriptions[req.ExpectedData]
		if !ok {
			desc = fmt.Sprintf("a informação '%s'", req.ExpectedData)
		}
		parts = append(parts, "Ação Requerida AGORA: Pedir "+desc+". Se o usuário responder outra coisa, REPITA o pedido educadamente.")
	}
	if len(req.AvailableSlots) > 0 {
		var list strings.Builder
		for i, s := range req.AvailableSlots {
			fmt.Fprintf(&list, "%d. %s\n", i+1, s)
		}
		parts = append(parts, "Horários Disponíveis Encontrados (Apresente numerados e peça para escolher UM número):\n"+list.String())
	}
	if req.ChosenSlot != "" {
		parts = append(parts, "Confirmar Horário Escolhido (Peça Sim/Não): "+req.ChosenSlot)
	}
	if req.CancelRebookContext != "" {
		parts = append(parts, "Contexto de Cancelamento/Reagendamento: "+req.CancelRebookContext)
	}

	if len(parts) == 1 && req.State == models.StateNone {
		return ""
	}
	return "--- Contexto de Agendamento ---\n" + strings.Join(parts, "\n") + "\n-----------------------------"
}

// knowledgeContext wraps a knowledge-base hit with instructions on how to
// present it.
func knowledgeContext(relevant string) string {
	return "INFORMAÇÃO DA BASE DE DADOS (Use OBRIGATORIAMENTE e COMPLETAMENTE):\n" +
		"------------------------------------------------------------------\n" +
		relevant + "\n" +
		"------------------------------------------------------------------\n\n" +
		"SUA TAREFA, MARGOT:\n" +
		"1. Responda à última mensagem do usuário usando a informação acima.\n" +
		"2. Se a informação descrever um procedimento, confirme que ele é realizado, integre a descrição completa " +
		"e apresente TODOS os diferenciais em texto corrido e conversacional, sem listas ou marcadores.\n" +
		"3. Se houver uma 'Atenção Importante', mencione-a claramente.\n" +
		"4. Para outros tópicos, apresente a informação de forma clara, completa e conversacional.\n" +
		"5. Ignore esta seção se a pergunta não tiver relação direta com a informação."
}

// cleanReply strips stray markdown bold and leftover action markers.
func cleanReply(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "[ACTION:FIND_SLOTS]", "")
	s = strings.ReplaceAll(s, "[ACTION:BOOK_APPOINTMENT]", "")
	return strings.TrimSpace(s)
}

// GetReply composes Margot's next message from the request context.
func (c *Client) GetReply(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.UserMessage) == "" {
		return "", fmt.Errorf("empty user message")
	}

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(c.persona()),
		openai.SystemMessage("Contexto Temporal: A data e hora atuais são " +
			util.FormatDateTimeLongPtBR(c.now().In(c.opts.Location)) + "."),
	}
	if sched := schedulingContext(req); sched != "" {
		messages = append(messages, openai.SystemMessage(sched))
	}

	history := req.History
	if len(history) > maxPromptHistoryPairs*2 {
		history = history[len(history)-maxPromptHistoryPairs*2:]
	}
	for _, turn := range history {
		if turn.Role == "assistant" {
			messages = append(messages, openai.AssistantMessage(turn.Content))
		} else {
			messages = append(messages, openai.UserMessage(turn.Content))
		}
	}

	if req.RelevantKnowledge != "" {
		messages = append(messages, openai.SystemMessage(knowledgeContext(req.RelevantKnowledge)))
	}
	messages = append(messages, openai.UserMessage(req.UserMessage))

	slog.Debug("Client.GetReply: sending chat completion",
		"model", c.opts.Model, "state", req.State, "expected_data", req.ExpectedData,
		"history_turns", len(history), "has_knowledge", req.RelevantKnowledge != "", "messages", len(messages))

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:            openai.ChatModel(c.opts.Model),
		Messages:         messages,
		Temperature:      openai.Float(0.4),
		MaxTokens:        openai.Int(1000),
		PresencePenalty:  openai.Float(0.1),
		FrequencyPenalty: openai.Float(0.1),
	})
	if err != nil {
		slog.Error("Client.GetReply: chat completion failed", "error", err, "model", c.opts.Model)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	reply := cleanReply(resp.Choices[0].Message.Content)
	if reply == "" {
		slog.Warn("Client.GetReply: model returned empty reply")
		return "", fmt.Errorf("chat completion returned empty reply")
	}
	slog.Info("Client.GetReply: reply composed",
		"prompt_tokens", resp.Usage.PromptTokens, "completion_tokens", resp.Usage.CompletionTokens)
	return reply, nil
}

// Ask sends a standalone analytical question with the Margot persona but no
// conversation history.
func (c *Client) Ask(ctx context.Context, question string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.opts.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(c.persona()),
			openai.UserMessage(question),
		},
		Temperature: openai.Float(0.0),
		MaxTokens:   openai.Int(50),
	})
	if err != nil {
		slog.Error("Client.Ask: chat completion failed", "error", err)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
