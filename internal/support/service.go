package support

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-booking-agent/internal/notify"
	"github.com/wolfman30/clinic-booking-agent/pkg/logging"
)

// ConversationStatus flips a conversation between automated and human mode.
type ConversationStatus interface {
	MarkEscalated(ctx context.Context, conversationID uuid.UUID) error
	Reactivate(ctx context.Context, conversationID uuid.UUID) error
}

// Alerter tells staff about a new escalation.
type Alerter interface {
	NotifyEscalation(ctx context.Context, alert notify.EscalationAlert) error
}

// EscalationRequest contains details for creating an escalation.
type EscalationRequest struct {
	ConversationID uuid.UUID
	Reason         string
	PatientName    string
	PatientAddress string
}

// EscalationService suspends automation for a conversation until staff
// resolve the handoff.
type EscalationService struct {
	store         Store
	conversations ConversationStatus
	alerter       Alerter
	now           func() time.Time
	logger        *logging.Logger
}

// NewEscalationService wires the escalation gate. alerter may be nil.
func NewEscalationService(store Store, conversations ConversationStatus, alerter Alerter, logger *logging.Logger) *EscalationService {
	if store == nil {
		panic("support: store cannot be nil")
	}
	if conversations == nil {
		panic("support: conversation status cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &EscalationService{store: store, conversations: conversations, alerter: alerter, now: time.Now, logger: logger}
}

// CreateEscalation records a PENDING escalation, marks the conversation
// ESCALATED and alerts the attendant. Alert failures are logged only.
func (s *EscalationService) CreateEscalation(ctx context.Context, req EscalationRequest) (*Escalation, error) {
	ctx, span := escalationTracer.Start(ctx, "escalation.create")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", req.ConversationID.String()))

	e := &Escalation{
		ConversationID: req.ConversationID,
		Status:         StatusPending,
		CreatedAt:      s.now().UTC(),
	}
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		e.Reason = &reason
	}
	if err := s.store.Create(ctx, e); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := s.conversations.MarkEscalated(ctx, req.ConversationID); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("support: mark conversation escalated: %w", err)
	}

	if s.alerter != nil {
		alert := notify.EscalationAlert{
			EscalationID:   e.ID.String(),
			ConversationID: req.ConversationID.String(),
			PatientName:    req.PatientName,
			PatientAddress: req.PatientAddress,
			Reason:         e.ReasonOrEmpty(),
			CreatedAt:      e.CreatedAt,
		}
		if err := s.alerter.NotifyEscalation(ctx, alert); err != nil {
			s.logger.Error("failed to notify staff", "error", err, "escalation_id", e.ID)
		}
	}

	s.logger.Info("escalation created", "id", e.ID, "conversation_id", req.ConversationID)
	return e, nil
}

// ListPending returns PENDING escalations, oldest first.
func (s *EscalationService) ListPending(ctx context.Context, limit int) ([]Escalation, error) {
	return s.store.List(ctx, []Status{StatusPending}, limit)
}

// Resolve closes one escalation and hands the conversation back to the agent.
func (s *EscalationService) Resolve(ctx context.Context, id uuid.UUID) (*Escalation, error) {
	e, err := s.store.Resolve(ctx, id, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if err := s.conversations.Reactivate(ctx, e.ConversationID); err != nil {
		return nil, fmt.Errorf("support: reactivate conversation: %w", err)
	}
	s.logger.Info("escalation resolved", "id", id, "conversation_id", e.ConversationID)
	return e, nil
}

// ResumeConversation resolves every pending escalation of a conversation and
// reactivates it. It returns how many escalations were closed.
func (s *EscalationService) ResumeConversation(ctx context.Context, conversationID uuid.UUID) (int64, error) {
	n, err := s.store.ResolveForConversation(ctx, conversationID, s.now().UTC())
	if err != nil {
		return 0, err
	}
	if err := s.conversations.Reactivate(ctx, conversationID); err != nil {
		return n, fmt.Errorf("support: reactivate conversation: %w", err)
	}
	s.logger.Info("conversation resumed", "conversation_id", conversationID, "resolved", n)
	return n, nil
}
