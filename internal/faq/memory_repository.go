package faq

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// InMemoryRepository holds entries in memory.
type InMemoryRepository struct {
	mu      sync.RWMutex
	entries []Entry
}

var _ Repository = (*InMemoryRepository)(nil)

func NewInMemoryRepository(entries ...Entry) *InMemoryRepository {
	r := &InMemoryRepository{}
	for _, e := range entries {
		r.Put(e)
	}
	return r
}

// Put appends an entry, assigning an id when missing.
func (r *InMemoryRepository) Put(e Entry) Entry {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
	return e
}

func (r *InMemoryRepository) Search(ctx context.Context, keywords []string, category string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > MaxResults {
		limit = MaxResults
	}
	category = strings.ToLower(strings.TrimSpace(category))

	r.mu.RLock()
	var out []Entry
	for _, e := range r.entries {
		if !e.Active {
			continue
		}
		if category != "" && (e.Category == nil || strings.ToLower(*e.Category) != category) {
			continue
		}
		if matchesAny(e, keywords) {
			out = append(out, e)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func matchesAny(e Entry, keywords []string) bool {
	q := strings.ToLower(e.Question)
	a := strings.ToLower(e.Answer)
	for _, k := range keywords {
		if strings.Contains(q, k) || strings.Contains(a, k) {
			return true
		}
	}
	return false
}
