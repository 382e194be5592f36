package catalog

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// InMemoryRepository is a Repository seeded in code, used by tests and local runs.
type InMemoryRepository struct {
	mu         sync.RWMutex
	providers  map[uuid.UUID]Provider
	procedures map[uuid.UUID]Procedure
}

var _ Repository = (*InMemoryRepository)(nil)

// NewInMemoryRepository creates an empty catalog.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		providers:  make(map[uuid.UUID]Provider),
		procedures: make(map[uuid.UUID]Procedure),
	}
}

// PutProcedure inserts or replaces a procedure.
func (r *InMemoryRepository) PutProcedure(p Procedure) Procedure {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	r.mu.Lock()
	r.procedures[p.ID] = p
	r.mu.Unlock()
	return p
}

// PutProvider inserts or replaces a provider. Procedures are stored by id and
// re-read on lookup so later procedure edits are visible.
func (r *InMemoryRepository) PutProvider(p Provider) Provider {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	r.mu.Lock()
	for _, proc := range p.Procedures {
		if _, ok := r.procedures[proc.ID]; !ok {
			r.procedures[proc.ID] = proc
		}
	}
	r.providers[p.ID] = p
	r.mu.Unlock()
	return p
}

func (r *InMemoryRepository) ListActiveProviders(ctx context.Context) ([]Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Provider
	for _, p := range r.providers {
		if p.Active {
			out = append(out, r.hydrateLocked(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *InMemoryRepository) GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	if !ok {
		return nil, ErrProviderNotFound
	}
	hydrated := r.hydrateLocked(p)
	return &hydrated, nil
}

func (r *InMemoryRepository) ListActiveProcedures(ctx context.Context) ([]Procedure, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Procedure
	for _, p := range r.procedures {
		if p.Active {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *InMemoryRepository) ListProviderProcedures(ctx context.Context, providerID uuid.UUID) ([]Procedure, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[providerID]
	if !ok {
		return nil, nil
	}
	return r.hydrateLocked(p).Procedures, nil
}

func (r *InMemoryRepository) GetProcedure(ctx context.Context, id uuid.UUID) (*Procedure, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.procedures[id]
	if !ok {
		return nil, ErrProcedureNotFound
	}
	return &p, nil
}

func (r *InMemoryRepository) hydrateLocked(p Provider) Provider {
	procs := make([]Procedure, 0, len(p.Procedures))
	for _, linked := range p.Procedures {
		current, ok := r.procedures[linked.ID]
		if ok && current.Active {
			procs = append(procs, current)
		}
	}
	sort.Slice(procs, func(i, j int) bool { return procs[i].Name < procs[j].Name })
	p.Procedures = procs
	p.WorkingHours = append([]WorkingHours(nil), p.WorkingHours...)
	return p
}
