package flow

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/clinicbot/margot/internal/caldav"
	"github.com/clinicbot/margot/internal/genai"
	"github.com/clinicbot/margot/internal/knowledge"
	"github.com/clinicbot/margot/internal/models"
	"github.com/clinicbot/margot/internal/store"
)

// fakeCalendar implements Calendar over an in-memory event list.
type fakeCalendar struct {
	events    []models.CalendarEvent
	byText    []models.CalendarEvent
	byTextErr error
	createErr error
	created   []caldav.EventDraft
	deleted   []string
	deleteErr error
}

func (f *fakeCalendar) Search(ctx context.Context, start, end time.Time) ([]models.CalendarEvent, error) {
	var out []models.CalendarEvent
	for _, ev := range f.events {
		evEnd := ev.End
		if evEnd.IsZero() {
			evEnd = ev.Start.Add(time.Hour)
		}
		if start.Before(evEnd) && end.After(ev.Start) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeCalendar) CreateEvent(ctx context.Context, draft caldav.EventDraft) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, draft)
	return "event-1.ics", nil
}

func (f *fakeCalendar) DeleteEvent(ctx context.Context, identifier string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, identifier)
	return nil
}

func (f *fakeCalendar) FindByText(ctx context.Context, patientName string, start, end time.Time) ([]models.CalendarEvent, error) {
	return f.byText, f.byTextErr
}

// fakeComposer records requests and returns a fixed reply.
type fakeComposer struct {
	calls   int
	lastReq genai.Request
	reply   string
	askResp string
}

func (f *fakeComposer) GetReply(ctx context.Context, req genai.Request) (string, error) {
	f.calls++
	f.lastReq = req
	if f.reply == "" {
		return "resposta composta", nil
	}
	return f.reply, nil
}

func (f *fakeComposer) Ask(ctx context.Context, question string) (string, error) {
	if f.askResp == "" {
		return "0", nil
	}
	return f.askResp, nil
}

// fakeMemory returns canned patient details.
type fakeMemory struct {
	patient     *models.PatientData
	saved       *models.PatientData
	lastBooking time.Time
}

func (f *fakeMemory) LoadPatient(ctx context.Context, sender string) (*models.PatientData, error) {
	return f.patient, nil
}

func (f *fakeMemory) SavePatient(ctx context.Context, sender string, data *models.PatientData, lastBooking time.Time) error {
	cp := *data
	f.saved = &cp
	f.lastBooking = lastBooking
	return nil
}

func (f *fakeMemory) Close() error { return nil }

// fakeNotifier records operator notifications.
type fakeNotifier struct {
	sent []string
	to   []string
}

func (f *fakeNotifier) SendMessage(ctx context.Context, to, body string) error {
	f.to = append(f.to, to)
	f.sent = append(f.sent, body)
	return nil
}

func testKB() *knowledge.Base {
	return &knowledge.Base{
		Scheduling: &knowledge.SchedulingRules{
			DurationMinutes: 45,
			PreferredDays:   []int{0, 1}, // Monday and Tuesday
			StartHour:       14,
			EndHour:         18,
		},
	}
}

// Tuesday morning, so the same afternoon still has bookable hours.
var testNow = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

const testSender = "whatsapp:+5554999887766"

type env struct {
	conv     *Conversation
	store    *store.InMemoryStore
	cal      *fakeCalendar
	composer *fakeComposer
	notifier *fakeNotifier
	mem      *fakeMemory
}

func newEnv(t *testing.T, opts ...Option) *env {
	t.Helper()
	e := &env{
		store:    store.NewInMemoryStore(),
		cal:      &fakeCalendar{},
		composer: &fakeComposer{},
		notifier: &fakeNotifier{},
		mem:      &fakeMemory{},
	}
	all := append([]Option{
		WithNow(func() time.Time { return testNow }),
		WithMemory(e.mem),
		WithOperatorNotification(e.notifier, "5554911112222"),
	}, opts...)
	e.conv = NewConversation(e.store, e.cal, e.composer, testKB(), time.UTC, all...)
	return e
}

func (e *env) send(t *testing.T, text string) string {
	t.Helper()
	return e.conv.HandleMessage(context.Background(), testSender, text)
}

func (e *env) session(t *testing.T) *models.Session {
	t.Helper()
	s, err := e.store.GetSession(testSender)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if s == nil {
		t.Fatal("no session saved")
	}
	return s
}

func (e *env) seed(t *testing.T, s *models.Session) {
	t.Helper()
	s.Sender = testSender
	if err := e.store.SaveSession(s); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
}

func TestDetectIntent(t *testing.T) {
	tests := []struct {
		text string
		want models.Intent
	}{
		{"quero agendar uma consulta", models.IntentSchedule},
		{"gostaria de marcar um horário", models.IntentSchedule},
		{"preciso remarcar minha consulta", models.IntentReschedule},
		{"quero mudar meu horário", models.IntentReschedule},
		{"quero cancelar a consulta", models.IntentCancel},
		{"desmarcar meu agendamento", models.IntentCancel},
		{"qual o endereço da clínica?", models.IntentNone},
		{"agendar", models.IntentNone}, // needs the object word too
	}
	for _, tt := range tests {
		if got := DetectIntent(tt.text); got != tt.want {
			t.Errorf("DetectIntent(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestValidation(t *testing.T) {
	if ValidName("ok") || !ValidName("Maria Silva") {
		t.Error("ValidName misclassified")
	}
	if _, ok := ValidatePhone("abc"); ok {
		t.Error("ValidatePhone accepted letters")
	}
	if digits, ok := ValidatePhone("(54) 99988-7766"); !ok || digits != "54999887766" {
		t.Errorf("ValidatePhone = %q, %v", digits, ok)
	}
	if ValidateEmail("foo.bar") || ValidateEmail("foo@bar") || !ValidateEmail("foo@bar.com") {
		t.Error("ValidateEmail misclassified")
	}
	if got := TitleCase("maria DA silva"); got != "Maria Da Silva" {
		t.Errorf("TitleCase = %q", got)
	}
}

func TestBookingIntentSkipsComposer(t *testing.T) {
	e := newEnv(t)
	reply := e.send(t, "quero agendar uma consulta")
	if !strings.Contains(reply, "nome completo") {
		t.Errorf("unexpected reply: %q", reply)
	}
	if e.composer.calls != 0 {
		t.Errorf("composer called %d times for an intent turn", e.composer.calls)
	}
	if got := e.session(t).SchedulingStatus; got != models.StateAwaitingName {
		t.Errorf("state = %q, want awaiting_name", got)
	}
}

func TestIdleGeneralChatUsesComposer(t *testing.T) {
	e := newEnv(t)
	reply := e.send(t, "olá, tudo bem?")
	if e.composer.calls != 1 {
		t.Fatalf("composer calls = %d, want 1", e.composer.calls)
	}
	if reply != "resposta composta" {
		t.Errorf("reply = %q", reply)
	}
	if got := e.session(t).SchedulingStatus; got != models.StateNone {
		t.Errorf("state = %q, want none", got)
	}
}

func TestInvalidPhoneStaysAndReprompts(t *testing.T) {
	e := newEnv(t)
	s := models.NewSession(testSender)
	s.SchedulingStatus = models.StateAwaitingPhone
	s.PatientData.Name = "Maria Da Silva"
	e.seed(t, s)

	e.send(t, "abc")
	if got := e.session(t).SchedulingStatus; got != models.StateAwaitingPhone {
		t.Errorf("state = %q, want awaiting_phone", got)
	}
	if e.composer.calls != 1 || e.composer.lastReq.ExpectedData != "phone" {
		t.Errorf("composer calls = %d, expected_data = %q", e.composer.calls, e.composer.lastReq.ExpectedData)
	}

	e.send(t, "(11) 91234-5678")
	got := e.session(t)
	if got.SchedulingStatus != models.StateAwaitingEmail {
		t.Errorf("state = %q, want awaiting_email", got.SchedulingStatus)
	}
	if got.PatientData.Phone != "11912345678" {
		t.Errorf("phone = %q", got.PatientData.Phone)
	}
}

func TestEndToEndBooking(t *testing.T) {
	e := newEnv(t)

	steps := []struct {
		text      string
		wantState models.SchedulingState
	}{
		{"quero agendar uma consulta", models.StateAwaitingName},
		{"Maria da Silva", models.StateAwaitingPhone},
		{"(54) 99988-7766", models.StateAwaitingEmail},
		{"maria@example.com", models.StateAwaitingProcedure},
		{"rinoplastia", models.StateAwaitingIndication},
	}
	for _, st := range steps {
		e.send(t, st.text)
		if got := e.session(t).SchedulingStatus; got != st.wantState {
			t.Fatalf("after %q: state = %q, want %q", st.text, got, st.wantState)
		}
	}

	reply := e.send(t, "indicação da minha amiga Ana")
	s := e.session(t)
	if s.SchedulingStatus != models.StateAwaitingChoice {
		t.Fatalf("state = %q, want awaiting_choice", s.SchedulingStatus)
	}
	// Tuesday yields 4 of the 5 requested, so the next Monday is scanned
	// and offered whole.
	if len(s.SuggestedSlots) != 8 {
		t.Fatalf("suggested slots = %d, want 8", len(s.SuggestedSlots))
	}
	if !strings.Contains(reply, "1.") || !strings.Contains(reply, "8.") {
		t.Errorf("slot list not numbered: %q", reply)
	}
	first := s.SuggestedSlots[0]
	want := time.Date(2026, 9, 1, 14, 0, 0, 0, time.UTC)
	if !first.Equal(want) {
		t.Errorf("first slot = %v, want %v", first, want)
	}

	reply = e.send(t, "1")
	s = e.session(t)
	if s.SchedulingStatus != models.StateAwaitingConfirm {
		t.Fatalf("state = %q, want awaiting_confirmation", s.SchedulingStatus)
	}
	if s.ChosenSlot == nil || !s.ChosenSlot.Equal(want) {
		t.Fatalf("chosen slot = %v, want %v", s.ChosenSlot, want)
	}
	if !strings.Contains(reply, "confirmar") {
		t.Errorf("confirmation prompt missing: %q", reply)
	}

	reply = e.send(t, "sim")
	s = e.session(t)
	if s.SchedulingStatus != models.StateNone {
		t.Errorf("state after booking = %q, want none", s.SchedulingStatus)
	}
	if len(e.cal.created) != 1 {
		t.Fatalf("created events = %d, want 1", len(e.cal.created))
	}
	draft := e.cal.created[0]
	if draft.PatientName != "Maria Da Silva" || !draft.Start.Equal(want) {
		t.Errorf("draft = %+v", draft)
	}
	if !draft.End.Equal(want.Add(45 * time.Minute)) {
		t.Errorf("draft end = %v", draft.End)
	}
	if !strings.Contains(reply, "Agendamento Confirmado") {
		t.Errorf("confirmation reply missing: %q", reply)
	}
	if !strings.Contains(reply, "terça-feira, 01 de setembro às 14:00") {
		t.Errorf("confirmation reply lacks slot date: %q", reply)
	}
	if len(e.notifier.sent) != 1 || !strings.Contains(e.notifier.sent[0], "Maria Da Silva") {
		t.Errorf("operator notification = %v", e.notifier.sent)
	}
	if e.mem.saved == nil || e.mem.saved.Phone != "54999887766" {
		t.Errorf("patient memory not saved: %+v", e.mem.saved)
	}
	if !e.mem.lastBooking.Equal(want) {
		t.Errorf("remembered booking instant = %v, want %v", e.mem.lastBooking, want)
	}
}

func TestConfirmationDeclinedReturnsToChoice(t *testing.T) {
	e := newEnv(t)
	slot := time.Date(2026, 9, 7, 14, 0, 0, 0, time.UTC)
	other := time.Date(2026, 9, 7, 15, 0, 0, 0, time.UTC)
	s := models.NewSession(testSender)
	s.SchedulingStatus = models.StateAwaitingConfirm
	s.SuggestedSlots = []time.Time{slot, other}
	s.ChosenSlot = &slot
	e.seed(t, s)

	reply := e.send(t, "não, outro")
	got := e.session(t)
	if got.SchedulingStatus != models.StateAwaitingChoice {
		t.Errorf("state = %q, want awaiting_choice", got.SchedulingStatus)
	}
	if got.ChosenSlot != nil {
		t.Error("chosen slot not cleared")
	}
	if !strings.Contains(reply, "escolher outro") {
		t.Errorf("reply = %q", reply)
	}
	if len(e.cal.created) != 0 {
		t.Error("event created despite decline")
	}
}

func TestConflictRemovesSlotAndReturnsToChoice(t *testing.T) {
	e := newEnv(t)
	slot := time.Date(2026, 9, 7, 14, 0, 0, 0, time.UTC)
	other := time.Date(2026, 9, 7, 15, 0, 0, 0, time.UTC)
	e.cal.events = []models.CalendarEvent{{
		Identifier: "busy.ics",
		Summary:    "Consulta - Outro Paciente",
		Start:      slot,
		End:        slot.Add(45 * time.Minute),
	}}
	s := models.NewSession(testSender)
	s.SchedulingStatus = models.StateAwaitingConfirm
	s.SuggestedSlots = []time.Time{slot, other}
	s.ChosenSlot = &slot
	e.seed(t, s)

	reply := e.send(t, "sim")
	got := e.session(t)
	if got.SchedulingStatus != models.StateAwaitingChoice {
		t.Errorf("state = %q, want awaiting_choice", got.SchedulingStatus)
	}
	if len(got.SuggestedSlots) != 1 || !got.SuggestedSlots[0].Equal(other) {
		t.Errorf("suggested slots = %v", got.SuggestedSlots)
	}
	if !strings.Contains(reply, "ocupado") {
		t.Errorf("reply = %q", reply)
	}
	if len(e.cal.created) != 0 {
		t.Error("event created despite conflict")
	}
}

func TestAmbiguousConfirmationAsksComposer(t *testing.T) {
	e := newEnv(t)
	slot := time.Date(2026, 9, 7, 14, 0, 0, 0, time.UTC)
	s := models.NewSession(testSender)
	s.SchedulingStatus = models.StateAwaitingConfirm
	s.SuggestedSlots = []time.Time{slot}
	s.ChosenSlot = &slot
	e.seed(t, s)

	e.send(t, "talvez, que dia era mesmo?")
	if e.composer.calls != 1 || e.composer.lastReq.ExpectedData != "confirmation" {
		t.Errorf("composer calls = %d, expected_data = %q", e.composer.calls, e.composer.lastReq.ExpectedData)
	}
	if e.composer.lastReq.ChosenSlot == "" {
		t.Error("chosen slot context missing from composer request")
	}
	if got := e.session(t).SchedulingStatus; got != models.StateAwaitingConfirm {
		t.Errorf("state = %q, want awaiting_confirmation", got)
	}
}

func TestCancelFlowSingleMatch(t *testing.T) {
	e := newEnv(t)
	start := time.Date(2026, 9, 8, 14, 0, 0, 0, time.UTC)
	e.cal.byText = []models.CalendarEvent{{
		Identifier: "consulta-maria.ics",
		Summary:    "Consulta - Maria Da Silva",
		Start:      start,
		End:        start.Add(45 * time.Minute),
	}}

	e.send(t, "preciso cancelar minha consulta")
	if got := e.session(t).SchedulingStatus; got != models.StateCancellingAwaitingName {
		t.Fatalf("state = %q", got)
	}

	reply := e.send(t, "Maria da Silva")
	if got := e.session(t).SchedulingStatus; got != models.StateCancellingFinding {
		t.Fatalf("state = %q", got)
	}
	if !strings.Contains(reply, "Buscando") {
		t.Errorf("reply = %q", reply)
	}

	reply = e.send(t, "ok")
	got := e.session(t)
	if got.SchedulingStatus != models.StateCancellingAwaitingConfirm {
		t.Fatalf("state = %q", got.SchedulingStatus)
	}
	if got.EventToModify == nil || got.EventToModify.Identifier != "consulta-maria.ics" {
		t.Fatalf("event to modify = %+v", got.EventToModify)
	}
	if !strings.Contains(reply, "Cancelar este?") {
		t.Errorf("reply = %q", reply)
	}

	reply = e.send(t, "sim")
	got = e.session(t)
	if got.SchedulingStatus != models.StateNone {
		t.Errorf("state = %q, want none", got.SchedulingStatus)
	}
	if len(e.cal.deleted) != 1 || e.cal.deleted[0] != "consulta-maria.ics" {
		t.Errorf("deleted = %v", e.cal.deleted)
	}
	if !strings.Contains(reply, "Cancelamento Confirmado") {
		t.Errorf("reply = %q", reply)
	}
}

func TestCancelFlowDisambiguation(t *testing.T) {
	e := newEnv(t)
	s1 := time.Date(2026, 9, 8, 14, 0, 0, 0, time.UTC)
	s2 := time.Date(2026, 9, 15, 15, 0, 0, 0, time.UTC)
	e.cal.byText = []models.CalendarEvent{
		{Identifier: "a.ics", Summary: "Consulta - Maria Da Silva", Start: s1, End: s1.Add(45 * time.Minute)},
		{Identifier: "b.ics", Summary: "Consulta - Maria Da Silva", Start: s2, End: s2.Add(45 * time.Minute)},
	}
	s := models.NewSession(testSender)
	s.SchedulingStatus = models.StateCancellingFinding
	s.PatientData.NameForCancel = "Maria Da Silva"
	e.seed(t, s)

	reply := e.send(t, "ok")
	got := e.session(t)
	if got.SchedulingStatus != models.StateCancellingAwaitingChoice {
		t.Fatalf("state = %q", got.SchedulingStatus)
	}
	if len(got.MultipleEvents) != 2 {
		t.Fatalf("multiple events = %d", len(got.MultipleEvents))
	}
	if !strings.Contains(reply, "Encontrei 2 agendamentos") {
		t.Errorf("reply = %q", reply)
	}

	// Only a bare option number is accepted here.
	e.send(t, "o da semana que vem")
	if e.composer.calls != 1 || e.composer.lastReq.ExpectedData != "multiple_choice" {
		t.Errorf("composer calls = %d, expected_data = %q", e.composer.calls, e.composer.lastReq.ExpectedData)
	}

	e.send(t, "2")
	got = e.session(t)
	if got.SchedulingStatus != models.StateCancellingAwaitingConfirm {
		t.Fatalf("state = %q", got.SchedulingStatus)
	}
	if got.EventToModify == nil || got.EventToModify.Identifier != "b.ics" {
		t.Errorf("event to modify = %+v", got.EventToModify)
	}
	if got.MultipleEvents != nil {
		t.Error("disambiguation list not cleared")
	}
}

func TestCancelNoMatchesResets(t *testing.T) {
	e := newEnv(t)
	s := models.NewSession(testSender)
	s.SchedulingStatus = models.StateCancellingFinding
	s.PatientData.NameForCancel = "Maria Da Silva"
	e.seed(t, s)

	reply := e.send(t, "ok")
	if got := e.session(t).SchedulingStatus; got != models.StateNone {
		t.Errorf("state = %q, want none", got)
	}
	if !strings.Contains(reply, "Não encontrei agendamentos futuros") {
		t.Errorf("reply = %q", reply)
	}
}

func TestRebookNoMatchesFallsThroughToBooking(t *testing.T) {
	e := newEnv(t)
	s := models.NewSession(testSender)
	s.SchedulingStatus = models.StateRebookingFinding
	s.PatientData.NameForRebook = "Maria Da Silva"
	e.seed(t, s)

	reply := e.send(t, "ok")
	got := e.session(t)
	if got.SchedulingStatus != models.StateAwaitingPhone {
		t.Errorf("state = %q, want awaiting_phone", got.SchedulingStatus)
	}
	if got.PatientData.Name != "Maria Da Silva" {
		t.Errorf("name = %q", got.PatientData.Name)
	}
	if !strings.Contains(reply, "Vamos fazer um novo") {
		t.Errorf("reply = %q", reply)
	}
}

func TestRebookConfirmDeletesAndCollectsMissingData(t *testing.T) {
	e := newEnv(t)
	start := time.Date(2026, 9, 8, 14, 0, 0, 0, time.UTC)
	ev := models.CalendarEvent{
		Identifier: "old.ics",
		Summary:    "Consulta - João Silva",
		Start:      start,
		End:        start.Add(45 * time.Minute),
	}
	s := models.NewSession(testSender)
	s.SchedulingStatus = models.StateRebookingAwaitingConfirm
	s.PatientData.NameForRebook = "João Silva"
	s.EventToModify = &ev
	e.seed(t, s)

	reply := e.send(t, "sim, quero remarcar")
	got := e.session(t)
	if len(e.cal.deleted) != 1 || e.cal.deleted[0] != "old.ics" {
		t.Fatalf("deleted = %v", e.cal.deleted)
	}
	if got.SchedulingStatus != models.StateRebookingAwaitingPhone {
		t.Errorf("state = %q, want rebooking_awaiting_phone", got.SchedulingStatus)
	}
	if got.PatientData.Name != "João Silva" {
		t.Errorf("name extracted from summary = %q", got.PatientData.Name)
	}
	if !strings.Contains(reply, "telefone") {
		t.Errorf("reply = %q", reply)
	}

	// Phone then email, then straight into the slot search.
	e.send(t, "54 99988-7766")
	if got := e.session(t).SchedulingStatus; got != models.StateRebookingAwaitingEmail {
		t.Fatalf("state = %q, want rebooking_awaiting_email", got)
	}
	e.send(t, "joao@example.com")
	got = e.session(t)
	if got.SchedulingStatus != models.StateAwaitingChoice {
		t.Errorf("state = %q, want awaiting_choice", got.SchedulingStatus)
	}
	if len(got.SuggestedSlots) == 0 {
		t.Error("no slots suggested after rebooking data collection")
	}
}

func TestRebookDeclinedKeepsAppointment(t *testing.T) {
	e := newEnv(t)
	start := time.Date(2026, 9, 8, 14, 0, 0, 0, time.UTC)
	s := models.NewSession(testSender)
	s.SchedulingStatus = models.StateRebookingAwaitingConfirm
	s.EventToModify = &models.CalendarEvent{Identifier: "old.ics", Summary: "Consulta - Ana", Start: start, End: start.Add(45 * time.Minute)}
	e.seed(t, s)

	reply := e.send(t, "não, deixa como está")
	if got := e.session(t).SchedulingStatus; got != models.StateNone {
		t.Errorf("state = %q, want none", got)
	}
	if len(e.cal.deleted) != 0 {
		t.Error("appointment deleted despite decline")
	}
	if !strings.Contains(reply, "mantido") {
		t.Errorf("reply = %q", reply)
	}
}

func TestUnknownStateResets(t *testing.T) {
	e := newEnv(t)
	s := models.NewSession(testSender)
	s.SchedulingStatus = models.SchedulingState("spooky_state")
	e.seed(t, s)

	reply := e.send(t, "oi")
	if got := e.session(t).SchedulingStatus; got != models.StateNone {
		t.Errorf("state = %q, want none", got)
	}
	if !strings.Contains(reply, "nos perdemos") {
		t.Errorf("reply = %q", reply)
	}
}

func TestNewSessionHydratesFromMemory(t *testing.T) {
	e := newEnv(t)
	e.mem.patient = &models.PatientData{
		Name:       "Maria Da Silva",
		Phone:      "54999887766",
		Email:      "maria@example.com",
		Procedure:  "Rinoplastia",
		Indication: "Instagram",
	}

	e.send(t, "olá")
	got := e.session(t)
	if got.PatientData.Name != "Maria Da Silva" || got.PatientData.Phone != "54999887766" {
		t.Errorf("patient data not hydrated: %+v", got.PatientData)
	}
	if got.PatientData.Procedure != "Rinoplastia" || got.PatientData.Indication != "Instagram" {
		t.Errorf("procedure/indication not hydrated: %+v", got.PatientData)
	}
}

func TestEmptyMessageIgnored(t *testing.T) {
	e := newEnv(t)
	if reply := e.send(t, "   "); reply != "" {
		t.Errorf("reply = %q, want empty", reply)
	}
}

func TestDispatchCoversAllStates(t *testing.T) {
	e := newEnv(t)
	for _, state := range models.AllStates() {
		if _, ok := e.conv.handlers[state]; !ok {
			t.Errorf("no handler for state %q", state)
		}
	}
}

func TestPatientNameFromSummary(t *testing.T) {
	if got := patientNameFromSummary("Consulta - maria da silva", "x"); got != "Maria Da Silva" {
		t.Errorf("got %q", got)
	}
	if got := patientNameFromSummary("sem separador", "Fallback"); got != "Fallback" {
		t.Errorf("got %q", got)
	}
}
