package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-booking-agent/internal/booking"
	"github.com/wolfman30/clinic-booking-agent/internal/patients"
	"github.com/wolfman30/clinic-booking-agent/pkg/logging"
)

type scriptedLLM struct {
	mu        sync.Mutex
	responses []LLMResponse
	errs      []error
	requests  []LLMRequest
	repeat    *LLMResponse
}

func (s *scriptedLLM) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := req
	snapshot.Messages = append([]ChatMessage(nil), req.Messages...)
	s.requests = append(s.requests, snapshot)
	i := len(s.requests) - 1
	if i < len(s.errs) && s.errs[i] != nil {
		return LLMResponse{}, s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	if s.repeat != nil {
		return *s.repeat, nil
	}
	return LLMResponse{}, errors.New("script exhausted")
}

type fakeTools struct {
	calls []string
	fn    func(turn *booking.TurnContext, name string, args json.RawMessage) (any, error)
}

func (f *fakeTools) Execute(ctx context.Context, turn *booking.TurnContext, name string, args json.RawMessage) (any, error) {
	f.calls = append(f.calls, name)
	if f.fn != nil {
		return f.fn(turn, name, args)
	}
	return map[string]any{"ok": true}, nil
}

type agentFixture struct {
	agent *Agent
	store *MemoryStore
	pats  *patients.InMemoryRepository
	llm   *scriptedLLM
	tools *fakeTools
	loc   *time.Location
}

const testAddress = "5511999990000"

func newAgentFixture(t *testing.T, llm *scriptedLLM, tools *fakeTools, maxRounds int) *agentFixture {
	t.Helper()
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, loc)
	store := NewMemoryStore()
	pats := patients.NewInMemoryRepository()
	agent := NewAgent(store, pats, llm, tools, AgentConfig{
		Clinic:    ClinicProfile{Name: "Sorriso Clinic", BotName: "Clara"},
		Model:     "test-model",
		MaxRounds: maxRounds,
		Location:  loc,
	}, logging.New("error"), WithAgentClock(func() time.Time { return now }))
	return &agentFixture{agent: agent, store: store, pats: pats, llm: llm, tools: tools, loc: loc}
}

func TestHandleTurnPlainReplyCreatesConversation(t *testing.T) {
	llm := &scriptedLLM{responses: []LLMResponse{{Text: "Olá! Como posso ajudar?"}}}
	f := newAgentFixture(t, llm, &fakeTools{}, 0)

	reply, err := f.agent.HandleTurn(context.Background(), testAddress, "oi")
	require.NoError(t, err)
	assert.Equal(t, "Olá! Como posso ajudar?", reply.Text)
	assert.False(t, reply.Synthesized)
	assert.Equal(t, StageInitial, reply.Stage)
	assert.Equal(t, 1, reply.Rounds)

	conv, err := f.store.ActiveByAddress(context.Background(), testAddress)
	require.NoError(t, err)
	assert.Equal(t, reply.ConversationID, conv.ID)

	msgs, err := f.store.RecentMessages(context.Background(), conv.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, DirectionInbound, msgs[0].Direction)
	assert.Equal(t, "oi", msgs[0].Content)
	assert.Equal(t, DirectionOutbound, msgs[1].Direction)

	require.Len(t, llm.requests, 1)
	req := llm.requests[0]
	assert.Equal(t, "test-model", req.Model)
	assert.InDelta(t, 0.7, req.Temperature, 0.001)
	assert.Equal(t, int32(1024), req.MaxTokens)
	assert.Len(t, req.Tools, len(booking.AllTools))
	assert.Contains(t, req.System[0], "Sorriso Clinic")
	assert.Contains(t, req.System[0], "missing full name and CPF")
}

func TestHandleTurnReusesActiveConversation(t *testing.T) {
	llm := &scriptedLLM{responses: []LLMResponse{{Text: "first"}, {Text: "second"}}}
	f := newAgentFixture(t, llm, &fakeTools{}, 0)

	first, err := f.agent.HandleTurn(context.Background(), testAddress, "oi")
	require.NoError(t, err)
	second, err := f.agent.HandleTurn(context.Background(), testAddress, "tudo bem?")
	require.NoError(t, err)
	assert.Equal(t, first.ConversationID, second.ConversationID)

	require.Len(t, llm.requests, 2)
	msgs := llm.requests[1].Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, ChatRoleUser, msgs[0].Role)
	assert.Equal(t, ChatRoleAssistant, msgs[1].Role)
	assert.Equal(t, "first", msgs[1].Content)
	assert.Equal(t, "tudo bem?", msgs[2].Content)
}

func TestHandleTurnExecutesToolsInOrder(t *testing.T) {
	llm := &scriptedLLM{responses: []LLMResponse{
		{ToolCalls: []ToolCall{
			{ID: "a", Name: booking.ToolListProviders, Arguments: json.RawMessage(`{}`)},
			{ID: "b", Name: booking.ToolListProcedures, Arguments: json.RawMessage(`{}`)},
		}},
		{Text: "Temos a Dra. Ana."},
	}}
	tools := &fakeTools{}
	f := newAgentFixture(t, llm, tools, 0)

	reply, err := f.agent.HandleTurn(context.Background(), testAddress, "quem atende?")
	require.NoError(t, err)
	assert.Equal(t, "Temos a Dra. Ana.", reply.Text)
	assert.Equal(t, 2, reply.Rounds)
	assert.Equal(t, []string{booking.ToolListProviders, booking.ToolListProcedures}, tools.calls)

	require.Len(t, llm.requests, 2)
	msgs := llm.requests[1].Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, ChatRoleAssistant, msgs[1].Role)
	assert.Len(t, msgs[1].ToolCalls, 2)
	assert.Equal(t, ChatRoleTool, msgs[2].Role)
	require.Len(t, msgs[2].ToolResults, 2)
	assert.Equal(t, "a", msgs[2].ToolResults[0].CallID)
	assert.JSONEq(t, `{"ok":true}`, msgs[2].ToolResults[0].Content)
}

func TestHandleTurnToolErrorBecomesStructuredResult(t *testing.T) {
	llm := &scriptedLLM{responses: []LLMResponse{
		{ToolCalls: []ToolCall{{ID: "x", Name: booking.ToolCreateAppointment, Arguments: json.RawMessage(`{}`)}}},
		{Text: "Preciso do seu nome completo e CPF."},
	}}
	tools := &fakeTools{fn: func(_ *booking.TurnContext, _ string, _ json.RawMessage) (any, error) {
		return nil, &booking.Error{Kind: booking.KindValidation, Message: "Patient is not registered.", RequiresRegistration: true}
	}}
	f := newAgentFixture(t, llm, tools, 0)

	_, err := f.agent.HandleTurn(context.Background(), testAddress, "quero marcar")
	require.NoError(t, err)

	result := llm.requests[1].Messages[2].ToolResults[0]
	assert.True(t, result.IsError)
	assert.JSONEq(t, `{"kind":"validation","error":"Patient is not registered.","requiresRegistration":true}`, result.Content)
}

func TestHandleTurnConfirmationFallbackAfterModelFailure(t *testing.T) {
	start := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
	llm := &scriptedLLM{
		responses: []LLMResponse{{ToolCalls: []ToolCall{{ID: "c", Name: booking.ToolCreateAppointment, Arguments: json.RawMessage(`{}`)}}}},
		errs:      []error{nil, errors.New("throttled")},
	}
	tools := &fakeTools{fn: func(turn *booking.TurnContext, _ string, _ json.RawMessage) (any, error) {
		turn.LastBooking = &booking.Confirmation{
			AppointmentID: uuid.New(),
			PatientName:   "Maria Souza",
			PatientTaxID:  "529.982.247-25",
			Procedure:     "Cleaning",
			Provider:      "Dr. Ana",
			StartTime:     start,
		}
		return map[string]any{"success": true}, nil
	}}
	f := newAgentFixture(t, llm, tools, 0)

	reply, err := f.agent.HandleTurn(context.Background(), testAddress, "pode confirmar")
	require.NoError(t, err)
	assert.True(t, reply.Synthesized)
	assert.Contains(t, reply.Text, "Maria Souza")
	assert.Contains(t, reply.Text, "529.982.247-25")
	assert.Contains(t, reply.Text, "Cleaning")
	assert.Contains(t, reply.Text, "Dr. Ana")
	assert.Contains(t, reply.Text, "03/03/2026 às 07:00")
}

type failingReplyStore struct {
	*MemoryStore
}

func (s failingReplyStore) AppendMessage(ctx context.Context, m *Message) error {
	if m.Direction == DirectionOutbound {
		return errors.New("db write failed")
	}
	return s.MemoryStore.AppendMessage(ctx, m)
}

func TestHandleTurnKeepsConfirmationWhenReplyPersistFails(t *testing.T) {
	llm := &scriptedLLM{
		responses: []LLMResponse{{ToolCalls: []ToolCall{{ID: "c", Name: booking.ToolCreateAppointment, Arguments: json.RawMessage(`{}`)}}}},
		errs:      []error{nil, errors.New("throttled")},
	}
	tools := &fakeTools{fn: func(turn *booking.TurnContext, _ string, _ json.RawMessage) (any, error) {
		turn.LastBooking = &booking.Confirmation{
			AppointmentID: uuid.New(),
			PatientName:   "Maria Souza",
			Procedure:     "Cleaning",
			Provider:      "Dr. Ana",
			StartTime:     time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC),
		}
		return map[string]any{"success": true}, nil
	}}
	agent := NewAgent(failingReplyStore{NewMemoryStore()}, patients.NewInMemoryRepository(), llm, tools, AgentConfig{Model: "test-model"}, logging.New("error"))

	reply, err := agent.HandleTurn(context.Background(), testAddress, "pode confirmar")
	assert.EqualError(t, err, "db write failed")
	assert.Equal(t, []string{booking.ToolCreateAppointment}, tools.calls)
	assert.True(t, reply.Synthesized)
	assert.Contains(t, reply.Text, "Agendamento confirmado")
	assert.Contains(t, reply.Text, "Maria Souza")
}

func TestNewAgentKeepsZeroTemperature(t *testing.T) {
	llm := &scriptedLLM{responses: []LLMResponse{{Text: "ok"}, {Text: "ok"}}}
	zero := float32(0)
	agent := NewAgent(NewMemoryStore(), patients.NewInMemoryRepository(), llm, &fakeTools{}, AgentConfig{Temperature: &zero}, logging.New("error"))
	_, err := agent.HandleTurn(context.Background(), testAddress, "oi")
	require.NoError(t, err)

	unset := NewAgent(NewMemoryStore(), patients.NewInMemoryRepository(), llm, &fakeTools{}, AgentConfig{}, logging.New("error"))
	_, err = unset.HandleTurn(context.Background(), testAddress, "oi")
	require.NoError(t, err)

	require.Len(t, llm.requests, 2)
	assert.Equal(t, float32(0), llm.requests[0].Temperature)
	assert.Equal(t, float32(0.7), llm.requests[1].Temperature)
}

func TestHandleTurnApologyWhenModelFails(t *testing.T) {
	llm := &scriptedLLM{errs: []error{errors.New("down")}}
	f := newAgentFixture(t, llm, &fakeTools{}, 0)

	reply, err := f.agent.HandleTurn(context.Background(), testAddress, "oi")
	require.NoError(t, err)
	assert.True(t, reply.Synthesized)
	assert.Equal(t, apologyText, reply.Text)

	msgs, err := f.store.RecentMessages(context.Background(), reply.ConversationID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, apologyText, msgs[1].Content)
}

func TestHandleTurnStopsAtRoundCap(t *testing.T) {
	loop := LLMResponse{ToolCalls: []ToolCall{{ID: "l", Name: booking.ToolListProviders, Arguments: json.RawMessage(`{}`)}}}
	llm := &scriptedLLM{repeat: &loop}
	tools := &fakeTools{}
	f := newAgentFixture(t, llm, tools, 3)

	reply, err := f.agent.HandleTurn(context.Background(), testAddress, "oi")
	require.NoError(t, err)
	assert.Equal(t, 3, reply.Rounds)
	assert.Len(t, llm.requests, 3)
	assert.Len(t, tools.calls, 3)
	assert.Equal(t, apologyText, reply.Text)
}

func TestHandleTurnNarrowsToolsByStage(t *testing.T) {
	llm := &scriptedLLM{responses: []LLMResponse{{Text: "Which time works best for you?"}, {Text: "ok"}}}
	f := newAgentFixture(t, llm, &fakeTools{}, 0)

	_, err := f.agent.HandleTurn(context.Background(), testAddress, "terça")
	require.NoError(t, err)
	reply, err := f.agent.HandleTurn(context.Background(), testAddress, "10h")
	require.NoError(t, err)
	assert.Equal(t, StageAwaitingTime, reply.Stage)

	names := make([]string, 0)
	for _, spec := range llm.requests[1].Tools {
		names = append(names, spec.Name)
	}
	assert.ElementsMatch(t, StageAwaitingTime.Tools(), names)
	assert.NotContains(t, names, booking.ToolCreateAppointment)
}

func TestHandleTurnReportsDependentPatient(t *testing.T) {
	dependent := uuid.New()
	llm := &scriptedLLM{responses: []LLMResponse{
		{ToolCalls: []ToolCall{{ID: "r", Name: booking.ToolRegisterPatient, Arguments: json.RawMessage(`{"createDependent":true}`)}}},
		{Text: "Cadastro feito."},
	}}
	tools := &fakeTools{fn: func(turn *booking.TurnContext, _ string, _ json.RawMessage) (any, error) {
		turn.PatientID = dependent
		return map[string]any{"success": true}, nil
	}}
	f := newAgentFixture(t, llm, tools, 0)

	reply, err := f.agent.HandleTurn(context.Background(), testAddress, "é para meu filho")
	require.NoError(t, err)
	assert.Equal(t, dependent, reply.PatientID)
}

func TestConfirmationTextOmitsMissingFields(t *testing.T) {
	text := ConfirmationText(&booking.Confirmation{
		Procedure: "Cleaning",
		Provider:  "Dr. Ana",
		StartTime: time.Date(2026, 3, 3, 13, 0, 0, 0, time.UTC),
	}, time.UTC)
	assert.False(t, strings.Contains(text, "Paciente:"))
	assert.False(t, strings.Contains(text, "CPF:"))
	assert.Contains(t, text, "03/03/2026 às 13:00")
	assert.Contains(t, text, "10 minutos")
}

func TestBuildSystemPromptRegisteredPatient(t *testing.T) {
	name, taxID := "Maria Souza", "52998224725"
	prompt := BuildSystemPrompt(ClinicProfile{Name: "Sorriso", BotName: "Clara", Phone: "+55 11 4000-0000"},
		&patients.Patient{Name: &name, TaxID: &taxID},
		time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC), time.UTC)
	assert.Contains(t, prompt, "Clara")
	assert.Contains(t, prompt, "Maria Souza")
	assert.Contains(t, prompt, "529.982.247-25")
	assert.Contains(t, prompt, "Registration: complete")
	assert.Contains(t, prompt, "Monday, 02 March 2026 11:00")
	assert.Contains(t, prompt, "+55 11 4000-0000")
}
