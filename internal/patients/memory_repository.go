package patients

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepository is a Repository for tests and local development.
type InMemoryRepository struct {
	mu       sync.RWMutex
	patients map[uuid.UUID]*Patient
	now      func() time.Time
}

var _ Repository = (*InMemoryRepository)(nil)

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		patients: make(map[uuid.UUID]*Patient),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *InMemoryRepository) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *InMemoryRepository) FindPrimaryByAddress(ctx context.Context, address string) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var found *Patient
	for _, p := range r.patients {
		if p.Address != address {
			continue
		}
		if found == nil || p.CreatedAt.Before(found.CreatedAt) {
			found = p
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	cp := *found
	return &cp, nil
}

func (r *InMemoryRepository) FindByTaxID(ctx context.Context, taxID string) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.patients {
		if p.TaxID != nil && *p.TaxID == taxID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *InMemoryRepository) Create(ctx context.Context, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.TaxID != nil && r.taxIDTakenLocked(*p.TaxID, uuid.Nil) {
		return ErrTaxIDTaken
	}
	// Strictly increasing creation times keep "oldest" deterministic.
	now := r.now()
	for _, existing := range r.patients {
		if !existing.CreatedAt.Before(now) {
			now = existing.CreatedAt.Add(time.Microsecond)
		}
	}
	stamp(p, now)
	cp := *p
	r.patients[p.ID] = &cp
	return nil
}

func (r *InMemoryRepository) UpdateDetails(ctx context.Context, id uuid.UUID, name, taxID *string) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	if taxID != nil && r.taxIDTakenLocked(*taxID, id) {
		return nil, ErrTaxIDTaken
	}
	if name != nil {
		v := *name
		p.Name = &v
	}
	if taxID != nil {
		v := *taxID
		p.TaxID = &v
	}
	p.UpdatedAt = r.now()
	cp := *p
	return &cp, nil
}

func (r *InMemoryRepository) Search(ctx context.Context, query string, limit int) ([]Patient, error) {
	if limit <= 0 {
		limit = 5
	}
	q := strings.ToLower(strings.TrimSpace(query))
	r.mu.RLock()
	var out []Patient
	for _, p := range r.patients {
		if strings.Contains(strings.ToLower(p.NameOrEmpty()), q) || strings.Contains(p.Address, q) {
			out = append(out, *p)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *InMemoryRepository) taxIDTakenLocked(taxID string, self uuid.UUID) bool {
	for id, p := range r.patients {
		if id != self && p.TaxID != nil && *p.TaxID == taxID {
			return true
		}
	}
	return false
}
