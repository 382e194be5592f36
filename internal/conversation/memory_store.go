package conversation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps conversations in process memory. Used by tests and
// local runs without a database.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[uuid.UUID]*Conversation
	messages      map[uuid.UUID][]Message
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[uuid.UUID]*Conversation),
		messages:      make(map[uuid.UUID][]Message),
	}
}

func (s *MemoryStore) ActiveByAddress(_ context.Context, address string) (*Conversation, error) {
	return s.latest(address, StatusActive)
}

func (s *MemoryStore) EscalatedByAddress(_ context.Context, address string) (*Conversation, error) {
	return s.latest(address, StatusEscalated)
}

func (s *MemoryStore) latest(address string, status Status) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *Conversation
	for _, c := range s.conversations {
		if c.Address != address || c.Status != status {
			continue
		}
		if best == nil || c.LastActivity.After(best.LastActivity) {
			best = c
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (s *MemoryStore) Create(_ context.Context, c *Conversation) error {
	if c == nil {
		return errors.New("conversation: conversation cannot be nil")
	}
	now := time.Now().UTC()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = StatusActive
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.LastActivity.IsZero() {
		c.LastActivity = c.CreatedAt
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.conversations[c.ID] = &cp
	return nil
}

// Get returns a copy of the stored conversation.
func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) Touch(_ context.Context, id uuid.UUID, at time.Time) error {
	return s.mutate(id, func(c *Conversation) { c.LastActivity = at })
}

func (s *MemoryStore) ReassignPatient(_ context.Context, conversationID, patientID uuid.UUID) error {
	return s.mutate(conversationID, func(c *Conversation) { c.PatientID = patientID })
}

func (s *MemoryStore) MarkEscalated(_ context.Context, conversationID uuid.UUID) error {
	return s.mutate(conversationID, func(c *Conversation) { c.Status = StatusEscalated })
}

func (s *MemoryStore) Reactivate(_ context.Context, conversationID uuid.UUID) error {
	return s.mutate(conversationID, func(c *Conversation) {
		c.Status = StatusActive
		c.LastActivity = time.Now().UTC()
	})
}

func (s *MemoryStore) mutate(id uuid.UUID, fn func(*Conversation)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return ErrNotFound
	}
	fn(c)
	return nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, m *Message) error {
	if m == nil {
		return errors.New("conversation: message cannot be nil")
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[m.ConversationID] = append(s.messages[m.ConversationID], *m)
	return nil
}

func (s *MemoryStore) RecentMessages(_ context.Context, conversationID uuid.UUID, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = MaxHistory
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.messages[conversationID]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]Message(nil), all...), nil
}
