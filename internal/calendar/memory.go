package calendar

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrUnavailable is what MemoryClient returns for operations set to fail.
var ErrUnavailable = errors.New("calendar: unavailable")

// MemoryClient is an in-process Client. Events it creates count as busy time.
type MemoryClient struct {
	mu     sync.Mutex
	busy   map[string][]Interval
	events map[string]map[string]Event

	FailFreeBusy bool
	FailCreate   bool
	FailPatch    bool
	FailDelete   bool

	FreeBusyCalls int
}

var _ Client = (*MemoryClient)(nil)

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		busy:   make(map[string][]Interval),
		events: make(map[string]map[string]Event),
	}
}

// AddBusy marks [start, end) busy on calendarRef.
func (m *MemoryClient) AddBusy(calendarRef string, start, end time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.busy[calendarRef] = append(m.busy[calendarRef], Interval{Start: start, End: end})
}

// Events returns a copy of the events on calendarRef keyed by reference.
func (m *MemoryClient) Events(calendarRef string) map[string]Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Event, len(m.events[calendarRef]))
	for k, v := range m.events[calendarRef] {
		out[k] = v
	}
	return out
}

func (m *MemoryClient) FreeBusy(ctx context.Context, calendarRef string, from, to time.Time) ([]Interval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FreeBusyCalls++
	if m.FailFreeBusy {
		return nil, ErrUnavailable
	}
	var out []Interval
	for _, iv := range m.busy[calendarRef] {
		if iv.Overlaps(from, to) {
			out = append(out, iv)
		}
	}
	for _, ev := range m.events[calendarRef] {
		iv := Interval{Start: ev.Start, End: ev.End}
		if iv.Overlaps(from, to) {
			out = append(out, iv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (m *MemoryClient) CreateEvent(ctx context.Context, calendarRef string, ev Event) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCreate {
		return "", ErrUnavailable
	}
	if m.events[calendarRef] == nil {
		m.events[calendarRef] = make(map[string]Event)
	}
	ref := uuid.NewString()
	m.events[calendarRef][ref] = ev
	return ref, nil
}

func (m *MemoryClient) PatchEvent(ctx context.Context, calendarRef, eventRef string, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailPatch {
		return ErrUnavailable
	}
	if _, ok := m.events[calendarRef][eventRef]; !ok {
		return ErrEventNotFound
	}
	m.events[calendarRef][eventRef] = ev
	return nil
}

func (m *MemoryClient) DeleteEvent(ctx context.Context, calendarRef, eventRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDelete {
		return ErrUnavailable
	}
	if _, ok := m.events[calendarRef][eventRef]; !ok {
		return ErrEventNotFound
	}
	delete(m.events[calendarRef], eventRef)
	return nil
}
