package support

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle of a human handoff.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusResolved Status = "RESOLVED"
)

var (
	ErrNotFound        = errors.New("support: escalation not found")
	ErrAlreadyResolved = errors.New("support: escalation already resolved")
)

// Escalation records that a conversation needs a human.
type Escalation struct {
	ID             uuid.UUID  `json:"id"`
	ConversationID uuid.UUID  `json:"conversationId"`
	Reason         *string    `json:"reason,omitempty"`
	Status         Status     `json:"status"`
	CreatedAt      time.Time  `json:"createdAt"`
	ResolvedAt     *time.Time `json:"resolvedAt,omitempty"`
}

// ReasonOrEmpty dereferences Reason.
func (e *Escalation) ReasonOrEmpty() string {
	if e.Reason == nil {
		return ""
	}
	return *e.Reason
}

// Store persists escalations.
type Store interface {
	Create(ctx context.Context, e *Escalation) error
	Get(ctx context.Context, id uuid.UUID) (*Escalation, error)
	// List returns escalations in any of statuses, oldest first.
	List(ctx context.Context, statuses []Status, limit int) ([]Escalation, error)
	// Resolve moves a PENDING escalation to RESOLVED.
	Resolve(ctx context.Context, id uuid.UUID, at time.Time) (*Escalation, error)
	// ResolveForConversation resolves every PENDING escalation of a conversation.
	ResolveForConversation(ctx context.Context, conversationID uuid.UUID, at time.Time) (int64, error)
}
