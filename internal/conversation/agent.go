package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-booking-agent/internal/booking"
	"github.com/wolfman30/clinic-booking-agent/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking-agent/internal/patients"
	"github.com/wolfman30/clinic-booking-agent/pkg/logging"
)

const (
	MaxHistory       = 20
	DefaultMaxRounds = 10

	defaultTemperature = float32(0.7)
	defaultMaxTokens   = int32(1024)
	defaultLLMTimeout  = 45 * time.Second
)

const apologyText = "Desculpe, não consegui processar sua mensagem agora. Pode tentar novamente em instantes?"

// AgentConfig carries the tunables of the agent loop.
type AgentConfig struct {
	Clinic     ClinicProfile
	Model      string
	MaxRounds  int
	LLMTimeout time.Duration
	Location   *time.Location
	// HistoryWindow, MaxTokens and Temperature fall back to 20, 1024 and
	// 0.7 when unset. A zero temperature is kept.
	HistoryWindow int
	MaxTokens     int32
	Temperature   *float32
}

// Agent turns one patient message into a reply, calling tools as the model
// asks for them.
type Agent struct {
	store    Store
	patients patients.Repository
	llm      LLMClient
	tools    ToolExecutor
	cfg      AgentConfig
	metrics  *metrics.Metrics
	logger   *logging.Logger
	now      func() time.Time
}

type AgentOption func(*Agent)

func WithAgentClock(now func() time.Time) AgentOption {
	return func(a *Agent) {
		if now != nil {
			a.now = now
		}
	}
}

func WithAgentMetrics(m *metrics.Metrics) AgentOption {
	return func(a *Agent) { a.metrics = m }
}

func NewAgent(store Store, pats patients.Repository, llm LLMClient, tools ToolExecutor, cfg AgentConfig, logger *logging.Logger, opts ...AgentOption) *Agent {
	switch {
	case store == nil:
		panic("conversation: store cannot be nil")
	case pats == nil:
		panic("conversation: patients repository cannot be nil")
	case llm == nil:
		panic("conversation: llm client cannot be nil")
	case tools == nil:
		panic("conversation: tool executor cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = DefaultMaxRounds
	}
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = defaultLLMTimeout
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = MaxHistory
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Temperature == nil || *cfg.Temperature < 0 {
		temp := defaultTemperature
		cfg.Temperature = &temp
	}
	a := &Agent{
		store:    store,
		patients: pats,
		llm:      llm,
		tools:    tools,
		cfg:      cfg,
		logger:   logger.Component("agent"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Reply is the outcome of one turn.
type Reply struct {
	ConversationID uuid.UUID
	PatientID      uuid.UUID
	Text           string
	Stage          Stage
	Rounds         int
	// Synthesized is set when the text was generated without the model:
	// a booking confirmation or an apology.
	Synthesized bool
}

// HandleTurn runs one turn for the sender at address. Errors are returned
// only when the conversation cannot be loaded or persisted; model and tool
// failures still produce a reply.
func (a *Agent) HandleTurn(ctx context.Context, address, text string) (Reply, error) {
	ctx, span := tracer.Start(ctx, "conversation.handle_turn")
	defer span.End()

	conv, err := a.resolveConversation(ctx, address)
	if err != nil {
		span.RecordError(err)
		a.metrics.ObserveTurn("error")
		return Reply{}, err
	}
	span.SetAttributes(attribute.String("conversation.id", conv.ID.String()))

	history, err := a.store.RecentMessages(ctx, conv.ID, a.cfg.HistoryWindow)
	if err != nil {
		a.metrics.ObserveTurn("error")
		return Reply{}, err
	}
	stage := DetectStage(lastOutbound(history))

	now := a.now()
	if err := a.store.AppendMessage(ctx, &Message{
		ConversationID: conv.ID,
		Direction:      DirectionInbound,
		Role:           ChatRoleUser,
		Content:        text,
		CreatedAt:      now,
	}); err != nil {
		a.metrics.ObserveTurn("error")
		return Reply{}, err
	}
	if err := a.store.Touch(ctx, conv.ID, now); err != nil {
		a.logger.Warn("failed to bump conversation activity", "conversation_id", conv.ID, "error", err)
	}

	patient, err := a.patients.Get(ctx, conv.PatientID)
	if err != nil {
		a.logger.Warn("patient lookup failed", "conversation_id", conv.ID, "error", err)
		patient = nil
	}

	turn := &booking.TurnContext{
		ConversationID: conv.ID,
		PatientID:      conv.PatientID,
		Address:        address,
	}
	messages := make([]ChatMessage, 0, len(history)+1)
	for _, m := range history {
		messages = append(messages, chatMessage(m))
	}
	messages = append(messages, ChatMessage{Role: ChatRoleUser, Content: text})

	req := LLMRequest{
		Model:       a.cfg.Model,
		System:      []string{BuildSystemPrompt(a.cfg.Clinic, patient, now, a.cfg.Location)},
		Tools:       ToolsForStage(stage),
		MaxTokens:   a.cfg.MaxTokens,
		Temperature: *a.cfg.Temperature,
	}

	final, rounds := a.runLoop(ctx, req, messages, turn)

	reply := Reply{
		ConversationID: conv.ID,
		PatientID:      turn.PatientID,
		Stage:          stage,
		Rounds:         rounds,
		Text:           final,
	}
	outcome := "reply"
	if strings.TrimSpace(reply.Text) == "" {
		reply.Synthesized = true
		if turn.LastBooking != nil {
			reply.Text = ConfirmationText(turn.LastBooking, a.cfg.Location)
			outcome = "confirmation"
		} else {
			reply.Text = apologyText
			outcome = "apology"
		}
	}

	// The reply is returned even when it cannot be stored; a booking may
	// already be committed.
	if err := a.store.AppendMessage(ctx, &Message{
		ConversationID: conv.ID,
		Direction:      DirectionOutbound,
		Role:           ChatRoleAssistant,
		Content:        reply.Text,
		CreatedAt:      a.now(),
	}); err != nil {
		a.metrics.ObserveTurn("error")
		a.logger.Error("failed to persist reply", "conversation_id", conv.ID, "outcome", outcome, "error", err)
		return reply, err
	}
	a.metrics.ObserveTurn(outcome)
	a.logger.Info("turn completed",
		"conversation_id", conv.ID,
		"stage", string(stage),
		"rounds", rounds,
		"outcome", outcome,
	)
	return reply, nil
}

// runLoop calls the model until it answers with text, fails, or the round
// cap is reached. It returns the final text, possibly empty.
func (a *Agent) runLoop(ctx context.Context, req LLMRequest, messages []ChatMessage, turn *booking.TurnContext) (string, int) {
	rounds := 0
	for rounds < a.cfg.MaxRounds {
		rounds++
		req.Messages = messages

		callCtx, cancel := context.WithTimeout(ctx, a.cfg.LLMTimeout)
		started := time.Now()
		resp, err := a.llm.Complete(callCtx, req)
		cancel()
		a.metrics.ObserveLLM(time.Since(started), err)
		if err != nil {
			a.logger.Error("llm completion failed", "conversation_id", turn.ConversationID, "round", rounds, "error", err)
			return "", rounds
		}

		if len(resp.ToolCalls) == 0 {
			return strings.TrimSpace(resp.Text), rounds
		}

		messages = append(messages, ChatMessage{
			Role:      ChatRoleAssistant,
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		})
		results := make([]ToolResult, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			results = append(results, a.runTool(ctx, turn, call))
		}
		messages = append(messages, ChatMessage{Role: ChatRoleTool, ToolResults: results})
	}
	a.logger.Warn("tool round cap reached", "conversation_id", turn.ConversationID, "rounds", rounds)
	return "", rounds
}

func (a *Agent) runTool(ctx context.Context, turn *booking.TurnContext, call ToolCall) ToolResult {
	result, err := a.tools.Execute(ctx, turn, call.Name, call.Arguments)
	a.metrics.ObserveToolCall(call.Name, err)

	out := ToolResult{CallID: call.ID, Name: call.Name}
	var payload any = result
	if err != nil {
		var toolErr *booking.Error
		if !errors.As(err, &toolErr) {
			toolErr = booking.AsError(call.Name, err)
		}
		a.logger.Info("tool returned error",
			"tool", call.Name,
			"conversation_id", turn.ConversationID,
			"kind", string(toolErr.Kind),
			"error", toolErr.Message,
		)
		payload = toolErr
		out.IsError = true
	}
	body, err := json.Marshal(payload)
	if err != nil {
		body, _ = json.Marshal(booking.AsError(call.Name, err))
		out.IsError = true
	}
	out.Content = string(body)
	return out
}

func (a *Agent) resolveConversation(ctx context.Context, address string) (*Conversation, error) {
	conv, err := a.store.ActiveByAddress(ctx, address)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	patient, err := patients.FindOrCreatePrimary(ctx, a.patients, address)
	if err != nil {
		return nil, fmt.Errorf("conversation: resolve patient: %w", err)
	}
	conv = &Conversation{
		PatientID: patient.ID,
		Address:   address,
		Status:    StatusActive,
	}
	if err := a.store.Create(ctx, conv); err != nil {
		return nil, err
	}
	a.logger.Info("conversation started", "conversation_id", conv.ID, "patient_id", patient.ID)
	return conv, nil
}

// ConfirmationText is sent when a booking succeeded but the model produced no
// reply.
func ConfirmationText(c *booking.Confirmation, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	var b strings.Builder
	b.WriteString("Agendamento confirmado! ✅\n\n")
	if c.PatientName != "" {
		fmt.Fprintf(&b, "Paciente: %s\n", c.PatientName)
	}
	if c.PatientTaxID != "" {
		fmt.Fprintf(&b, "CPF: %s\n", c.PatientTaxID)
	}
	fmt.Fprintf(&b, "Procedimento: %s\n", c.Procedure)
	fmt.Fprintf(&b, "Profissional: %s\n", c.Provider)
	fmt.Fprintf(&b, "Data: %s\n\n", c.StartTime.In(loc).Format("02/01/2006 às 15:04"))
	b.WriteString("Chegue com 10 minutos de antecedência.")
	return b.String()
}

func lastOutbound(history []Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Direction == DirectionOutbound {
			return history[i].Content
		}
	}
	return ""
}

func chatMessage(m Message) ChatMessage {
	role := ChatRoleUser
	if m.Direction == DirectionOutbound {
		role = ChatRoleAssistant
	}
	return ChatMessage{Role: role, Content: m.Content}
}
