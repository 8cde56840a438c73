// Package flow implements the per-sender conversation state machine: it
// loads the sender's session, dispatches the inbound message to the handler
// for the current scheduling state, and produces the reply text. Every code
// path yields a user-presentable string; collaborator failures are logged
// and converted into apologies, never propagated to the transport layer.
package flow

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/clinicbot/margot/internal/caldav"
	"github.com/clinicbot/margot/internal/genai"
	"github.com/clinicbot/margot/internal/knowledge"
	"github.com/clinicbot/margot/internal/matcher"
	"github.com/clinicbot/margot/internal/memory"
	"github.com/clinicbot/margot/internal/models"
	"github.com/clinicbot/margot/internal/scheduling"
	"github.com/clinicbot/margot/internal/store"
	"github.com/clinicbot/margot/internal/util"
)

const (
	// slotsToOffer is how many free slots are presented per search.
	slotsToOffer = 5
	// modifySearchMonths is how far ahead by-name lookups go when
	// cancelling or rescheduling.
	modifySearchMonths = 6

	// DefaultClinicName is used in confirmation messages when no clinic
	// name is configured.
	DefaultClinicName = "Clínica Missel"

	fallbackReply = "Desculpe, ocorreu um erro inesperado. Por favor, tente novamente mais tarde."
)

// Calendar is the slice of the calendar gateway the conversation needs. It
// embeds the availability search, so the same value feeds the finder and the
// conflict guard.
type Calendar interface {
	Search(ctx context.Context, start, end time.Time) ([]models.CalendarEvent, error)
	CreateEvent(ctx context.Context, draft caldav.EventDraft) (string, error)
	DeleteEvent(ctx context.Context, identifier string) error
	FindByText(ctx context.Context, patientName string, start, end time.Time) ([]models.CalendarEvent, error)
}

// Notifier delivers the best-effort operator notification after a booking.
type Notifier interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Opts holds the optional collaborators of a Conversation.
type Opts struct {
	Memory       memory.Memory
	Notifier     Notifier
	OperatorAddr string
	ClinicName   string
	Now          func() time.Time
}

// Option configures a Conversation.
type Option func(*Opts)

// WithMemory enables cross-session patient memory.
func WithMemory(m memory.Memory) Option {
	return func(o *Opts) { o.Memory = m }
}

// WithOperatorNotification sends a booking summary to the given address
// after each confirmed appointment.
func WithOperatorNotification(n Notifier, addr string) Option {
	return func(o *Opts) {
		o.Notifier = n
		o.OperatorAddr = addr
	}
}

// WithClinicName overrides the clinic name used in confirmation messages.
func WithClinicName(name string) Option {
	return func(o *Opts) { o.ClinicName = name }
}

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// handlerFunc processes one inbound message for one scheduling state.
type handlerFunc func(ctx context.Context, s *models.Session, text string) outcome

// outcome is what a state handler produced: either a literal reply, or a
// request for the composer to phrase the reply from the given context.
type outcome struct {
	reply      string
	compose    bool
	expected   string // field the composer must re-ask for
	knowledge  string // formatted knowledge block, idle state only
	chosenSlot string // formatted slot awaiting a yes/no
	modifyCtx  string // cancel/rebook context for the composer
}

// Conversation is the top-level orchestrator. One instance serves all
// senders; per-sender state lives in the session store. Inbound messages for
// the same sender must be processed sequentially — the transport layer's
// one-message-at-a-time webhook behavior provides that ordering.
type Conversation struct {
	store    store.Store
	memory   memory.Memory
	calendar Calendar
	composer genai.ClientInterface
	kb       *knowledge.Base
	finder   *scheduling.Finder
	guard    *scheduling.Guard
	matcher  *matcher.Matcher
	policy   scheduling.Policy
	loc      *time.Location
	now      func() time.Time

	notifier     Notifier
	operatorAddr string
	clinicName   string

	handlers map[models.SchedulingState]handlerFunc
}

// NewConversation wires the state machine to its collaborators. The business
// hours policy comes from the knowledge base's scheduling rules.
func NewConversation(st store.Store, cal Calendar, composer genai.ClientInterface, kb *knowledge.Base, loc *time.Location, opts ...Option) *Conversation {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Memory == nil {
		cfg.Memory = memory.NewNoopMemory()
	}
	if cfg.ClinicName == "" {
		cfg.ClinicName = DefaultClinicName
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	c := &Conversation{
		store:        st,
		memory:       cfg.Memory,
		calendar:     cal,
		composer:     composer,
		kb:           kb,
		finder:       scheduling.NewFinder(cal, loc),
		guard:        scheduling.NewGuard(cal),
		matcher:      matcher.NewMatcher(composer, util.FormatDateTimePtBR, loc),
		policy:       kb.Rules().Policy(),
		loc:          loc,
		now:          cfg.Now,
		notifier:     cfg.Notifier,
		operatorAddr: cfg.OperatorAddr,
		clinicName:   cfg.ClinicName,
	}

	c.handlers = map[models.SchedulingState]handlerFunc{
		models.StateNone:                      c.handleIdle,
		models.StateAwaitingName:              c.handleAwaitingName,
		models.StateAwaitingPhone:             c.handleAwaitingPhone,
		models.StateAwaitingEmail:             c.handleAwaitingEmail,
		models.StateAwaitingProcedure:         c.handleAwaitingProcedure,
		models.StateAwaitingIndication:        c.handleAwaitingIndication,
		models.StateAwaitingChoice:            c.handleAwaitingChoice,
		models.StateAwaitingConfirm:           c.handleAwaitingConfirm,
		models.StateCancellingAwaitingName:    c.handleCancellingName,
		models.StateCancellingFinding:         c.handleCancellingFinding,
		models.StateCancellingAwaitingChoice:  c.handleCancellingChoice,
		models.StateCancellingAwaitingConfirm: c.handleCancellingConfirm,
		models.StateRebookingAwaitingName:     c.handleRebookingName,
		models.StateRebookingFinding:          c.handleRebookingFinding,
		models.StateRebookingAwaitingChoice:   c.handleRebookingChoice,
		models.StateRebookingAwaitingConfirm:  c.handleRebookingConfirm,
		models.StateRebookingAwaitingPhone:    c.handleRebookingPhone,
		models.StateRebookingAwaitingEmail:    c.handleRebookingEmail,
	}

	return c
}

// HandleMessage processes one inbound message and returns the reply text.
// An empty return means "send nothing". It never returns an error: backend
// failures become apologies, per the conversation's error policy.
func (c *Conversation) HandleMessage(ctx context.Context, sender, text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		slog.Warn("Conversation.HandleMessage: empty message ignored", "sender", sender)
		return ""
	}

	s := c.loadSession(ctx, sender)
	slog.Info("Conversation.HandleMessage: processing",
		"sender", sender, "state", string(s.SchedulingStatus), "body_length", len(text))

	var out outcome
	if s.SchedulingStatus.Known() {
		out = c.handlers[s.SchedulingStatus](ctx, s, text)
	} else {
		// A stale or corrupt tag loaded from the store lands here.
		slog.Error("Conversation.HandleMessage: unrecognized state, resetting",
			"sender", sender, "state", string(s.SchedulingStatus))
		s.ResetScheduling()
		out = outcome{reply: "Desculpe, nos perdemos. Recomeçar? Em que posso ajudar?"}
	}

	reply := out.reply
	if out.compose {
		reply = c.composeReply(ctx, s, text, out)
	}
	reply = strings.TrimSpace(reply)

	s.AppendTurn("user", text)
	if reply != "" {
		s.AppendTurn("assistant", reply)
	}
	s.UpdatedAt = c.now()
	if err := c.store.SaveSession(s); err != nil {
		slog.Error("Conversation.HandleMessage: failed to save session", "sender", sender, "error", err)
	}

	slog.Info("Conversation.HandleMessage: replied",
		"sender", sender, "state", string(s.SchedulingStatus), "reply_length", len(reply))
	return reply
}

// loadSession fetches or creates the sender's session. New sessions are
// hydrated from the patient memory so returning patients skip re-typing
// contact details.
func (c *Conversation) loadSession(ctx context.Context, sender string) *models.Session {
	s, err := c.store.GetSession(sender)
	if err != nil {
		slog.Error("Conversation.loadSession: session load failed, starting fresh", "sender", sender, "error", err)
		s = nil
	}
	if s != nil {
		return s
	}

	s = models.NewSession(sender)
	slog.Info("Conversation.loadSession: new session", "sender", sender)
	remembered, err := c.memory.LoadPatient(ctx, sender)
	if err != nil {
		slog.Error("Conversation.loadSession: patient memory load failed", "sender", sender, "error", err)
	} else if remembered != nil {
		if remembered.Name != "" {
			s.PatientData.Name = remembered.Name
		}
		if remembered.Phone != "" {
			s.PatientData.Phone = remembered.Phone
		}
		if remembered.Email != "" {
			s.PatientData.Email = remembered.Email
		}
		if remembered.Procedure != "" {
			s.PatientData.Procedure = remembered.Procedure
		}
		if remembered.Indication != "" {
			s.PatientData.Indication = remembered.Indication
		}
		slog.Info("Conversation.loadSession: patient details recalled from memory", "sender", sender)
	}
	return s
}

// composeReply asks the generative composer to phrase the reply from the
// handler's context. On failure the user still gets a presentable apology.
func (c *Conversation) composeReply(ctx context.Context, s *models.Session, text string, out outcome) string {
	req := genai.Request{
		UserMessage:         text,
		History:             s.History,
		State:               s.SchedulingStatus,
		PatientData:         &s.PatientData,
		ExpectedData:        out.expected,
		RelevantKnowledge:   out.knowledge,
		ChosenSlot:          out.chosenSlot,
		CancelRebookContext: out.modifyCtx,
	}
	if len(s.SuggestedSlots) > 0 {
		req.AvailableSlots = c.formatSlots(s.SuggestedSlots)
	}
	reply, err := c.composer.GetReply(ctx, req)
	if err != nil {
		slog.Error("Conversation.composeReply: composer failed", "sender", s.Sender, "error", err)
		return fallbackReply
	}
	return reply
}

func (c *Conversation) formatSlots(slots []time.Time) []string {
	out := make([]string, len(slots))
	for i, t := range slots {
		out[i] = util.FormatDateTimePtBR(t.In(c.loc))
	}
	return out
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
