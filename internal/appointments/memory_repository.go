package appointments

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepository is a Repository for tests and local runs.
type InMemoryRepository struct {
	mu    sync.RWMutex
	items map[uuid.UUID]Appointment
}

var _ Repository = (*InMemoryRepository)(nil)

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{items: make(map[uuid.UUID]Appointment)}
}

func (r *InMemoryRepository) Create(ctx context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stamp(a, time.Now().UTC())
	r.items[a.ID] = *a
	return nil
}

func (r *InMemoryRepository) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (r *InMemoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *InMemoryRepository) UpdateSchedule(ctx context.Context, id uuid.UUID, start, end time.Time, eventRef *string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	a.StartTime = start
	a.EndTime = end
	a.CalendarEventRef = eventRef
	a.Status = StatusScheduled
	a.Reminder24hSent = false
	a.Reminder2hSent = false
	a.UpdatedAt = time.Now().UTC()
	r.items[id] = a
	return &a, nil
}

func (r *InMemoryRepository) ListUpcomingByPatient(ctx context.Context, patientID uuid.UUID, now time.Time) ([]Appointment, error) {
	return r.filter(func(a Appointment) bool {
		return a.PatientID == patientID && a.StartTime.After(now) && a.Status != StatusCancelled
	}), nil
}

func (r *InMemoryRepository) CompleteEnded(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, a := range r.items {
		if a.Status == StatusScheduled && !a.EndTime.After(now) {
			a.Status = StatusCompleted
			a.UpdatedAt = time.Now().UTC()
			r.items[id] = a
			n++
		}
	}
	return n, nil
}

func (r *InMemoryRepository) DueForReminder(ctx context.Context, kind ReminderKind, from, to time.Time) ([]Appointment, error) {
	within := func(t time.Time) bool { return !t.Before(from) && !t.After(to) }
	switch kind {
	case Reminder24h, Reminder2h:
		return r.filter(func(a Appointment) bool {
			return a.Status == StatusScheduled && !a.reminderSent(kind) && within(a.StartTime)
		}), nil
	case ReminderSurvey:
		return r.filter(func(a Appointment) bool {
			return a.Status == StatusCompleted && !a.SurveySent && within(a.EndTime)
		}), nil
	}
	return nil, ErrUnknownReminderKind
}

func (r *InMemoryRepository) MarkReminderSent(ctx context.Context, id uuid.UUID, kind ReminderKind) (bool, error) {
	if _, err := reminderColumn(kind); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[id]
	if !ok || a.reminderSent(kind) {
		return false, nil
	}
	a.setReminderSent(kind)
	r.items[id] = a
	return true, nil
}

func (r *InMemoryRepository) ListBetween(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	return r.filter(func(a Appointment) bool {
		return !a.StartTime.Before(from) && a.StartTime.Before(to) && a.Status != StatusCancelled
	}), nil
}

func (r *InMemoryRepository) Stats(ctx context.Context, from, to time.Time) (Stats, error) {
	var stats Stats
	for _, a := range r.filter(func(a Appointment) bool {
		return !a.StartTime.Before(from) && a.StartTime.Before(to)
	}) {
		stats.add(a.Status, 1)
	}
	return stats, nil
}

func (r *InMemoryRepository) filter(keep func(Appointment) bool) []Appointment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Appointment
	for _, a := range r.items {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}
