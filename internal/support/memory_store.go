package support

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a Store for tests and local runs.
type MemoryStore struct {
	mu    sync.Mutex
	items map[uuid.UUID]Escalation
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[uuid.UUID]Escalation)}
}

func (m *MemoryStore) Create(ctx context.Context, e *Escalation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Status == "" {
		e.Status = StatusPending
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	m.items[e.ID] = *e
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Escalation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (m *MemoryStore) List(ctx context.Context, statuses []Status, limit int) ([]Escalation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Escalation
	for _, e := range m.items {
		for _, st := range statuses {
			if e.Status == st {
				out = append(out, e)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Resolve(ctx context.Context, id uuid.UUID, at time.Time) (*Escalation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	if e.Status != StatusPending {
		return nil, ErrAlreadyResolved
	}
	e.Status = StatusResolved
	e.ResolvedAt = &at
	m.items[id] = e
	return &e, nil
}

func (m *MemoryStore) ResolveForConversation(ctx context.Context, conversationID uuid.UUID, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, e := range m.items {
		if e.ConversationID == conversationID && e.Status == StatusPending {
			e.Status = StatusResolved
			resolved := at
			e.ResolvedAt = &resolved
			m.items[id] = e
			n++
		}
	}
	return n, nil
}
