// Package reminders runs the periodic appointment sweep: completion of past
// appointments, the 24h and 2h reminders and the satisfaction prompt.
package reminders

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/wolfman30/clinic-booking-agent/internal/appointments"
	"github.com/wolfman30/clinic-booking-agent/internal/catalog"
	"github.com/wolfman30/clinic-booking-agent/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking-agent/internal/patients"
	"github.com/wolfman30/clinic-booking-agent/pkg/logging"
)

const DefaultInterval = 5 * time.Minute

var tracer = otel.Tracer("clinic.internal.reminders")

// ErrSweepInProgress is returned when a sweep is requested while one runs.
var ErrSweepInProgress = errors.New("reminders: sweep already running")

// Completer closes appointments whose end time has passed.
type Completer interface {
	CompleteEnded(ctx context.Context) (int64, error)
}

// DueStore lists and flags reminder candidates.
type DueStore interface {
	DueForReminder(ctx context.Context, kind appointments.ReminderKind, from, to time.Time) ([]appointments.Appointment, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID, kind appointments.ReminderKind) (bool, error)
}

type PatientLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*patients.Patient, error)
}

type TextSender interface {
	SendText(ctx context.Context, to, body string) error
}

// Result summarizes one sweep.
type Result struct {
	Completed int64                             `json:"completed"`
	Sent      map[appointments.ReminderKind]int `json:"sent"`
	Failed    map[appointments.ReminderKind]int `json:"failed"`
	Errors    []string                          `json:"errors,omitempty"`
}

// Sweeper runs the four sweep tasks. Each task is isolated: a failure or
// panic in one does not stop the others.
type Sweeper struct {
	lifecycle Completer
	due       DueStore
	patients  PatientLookup
	catalog   catalog.Repository
	sender    TextSender
	clinic    Clinic
	loc       *time.Location
	metrics   *metrics.Metrics
	logger    *logging.Logger
	now       func() time.Time
	running   atomic.Bool
}

type Option func(*Sweeper)

func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) { s.metrics = m }
}

func NewSweeper(lifecycle Completer, due DueStore, pats PatientLookup, cat catalog.Repository, sender TextSender, clinic Clinic, loc *time.Location, logger *logging.Logger, opts ...Option) *Sweeper {
	switch {
	case lifecycle == nil:
		panic("reminders: lifecycle cannot be nil")
	case due == nil:
		panic("reminders: appointment store cannot be nil")
	case pats == nil:
		panic("reminders: patients cannot be nil")
	case cat == nil:
		panic("reminders: catalog cannot be nil")
	case sender == nil:
		panic("reminders: sender cannot be nil")
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Sweeper{
		lifecycle: lifecycle,
		due:       due,
		patients:  pats,
		catalog:   cat,
		sender:    sender,
		clinic:    clinic,
		loc:       loc,
		logger:    logger.Component("reminders"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.logger.Info("reminder sweeper started", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reminder sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, ErrSweepInProgress) {
				s.logger.Error("reminder sweep failed", "error", err)
			}
		}
	}
}

// RunOnce performs one sweep. Task failures are reported in the result, not
// as an error.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	if !s.running.CompareAndSwap(false, true) {
		return Result{}, ErrSweepInProgress
	}
	defer s.running.Store(false)

	ctx, span := tracer.Start(ctx, "reminders.sweep")
	defer span.End()

	res := Result{
		Sent:   make(map[appointments.ReminderKind]int),
		Failed: make(map[appointments.ReminderKind]int),
	}
	now := s.now()

	s.isolate(&res, "complete", func() error {
		n, err := s.lifecycle.CompleteEnded(ctx)
		if err != nil {
			return err
		}
		res.Completed = n
		if n > 0 {
			s.logger.Info("appointments completed", "count", n)
		}
		return nil
	})
	s.isolate(&res, "reminder_24h", func() error {
		return s.sendDue(ctx, &res, appointments.Reminder24h, now.Add(23*time.Hour), now.Add(24*time.Hour))
	})
	s.isolate(&res, "reminder_2h", func() error {
		return s.sendDue(ctx, &res, appointments.Reminder2h, now.Add(90*time.Minute), now.Add(2*time.Hour))
	})
	s.isolate(&res, "survey", func() error {
		return s.sendDue(ctx, &res, appointments.ReminderSurvey, now.Add(-6*time.Hour), now.Add(-3*time.Hour))
	})
	return res, nil
}

func (s *Sweeper) isolate(res *Result, task string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("reminder task panicked", "task", task, "panic", r)
			res.Errors = append(res.Errors, fmt.Sprintf("%s: panic: %v", task, r))
		}
	}()
	if err := fn(); err != nil {
		s.logger.Error("reminder task failed", "task", task, "error", err)
		res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", task, err))
	}
}

func (s *Sweeper) sendDue(ctx context.Context, res *Result, kind appointments.ReminderKind, from, to time.Time) error {
	list, err := s.due.DueForReminder(ctx, kind, from, to)
	if err != nil {
		return fmt.Errorf("list due %s: %w", kind, err)
	}
	for i := range list {
		appt := &list[i]
		err := s.sendOne(ctx, kind, appt)
		s.metrics.ObserveReminder(string(kind), err)
		if err != nil {
			res.Failed[kind]++
			s.logger.Error("reminder not sent", "kind", string(kind), "appointment_id", appt.ID, "error", err)
			continue
		}
		res.Sent[kind]++
	}
	return nil
}

func (s *Sweeper) sendOne(ctx context.Context, kind appointments.ReminderKind, appt *appointments.Appointment) error {
	patient, err := s.patients.Get(ctx, appt.PatientID)
	if err != nil {
		return fmt.Errorf("load patient: %w", err)
	}
	d := Details{PatientName: patient.NameOrEmpty(), Start: appt.StartTime}
	if p, err := s.catalog.GetProvider(ctx, appt.ProviderID); err == nil {
		d.Provider = p.Name
	} else {
		return fmt.Errorf("load provider: %w", err)
	}
	if p, err := s.catalog.GetProcedure(ctx, appt.ProcedureID); err == nil {
		d.Procedure = p.Name
	} else {
		return fmt.Errorf("load procedure: %w", err)
	}

	var body string
	switch kind {
	case appointments.Reminder24h:
		body = Reminder24hText(d, s.clinic, s.loc)
	case appointments.Reminder2h:
		body = Reminder2hText(d, s.clinic, s.loc)
	case appointments.ReminderSurvey:
		body = SurveyText(d, s.clinic)
	default:
		return appointments.ErrUnknownReminderKind
	}

	if err := s.sender.SendText(ctx, patient.Address, body); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	marked, err := s.due.MarkReminderSent(ctx, appt.ID, kind)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	if !marked {
		s.logger.Warn("reminder flag already set", "kind", string(kind), "appointment_id", appt.ID)
	}
	s.logger.Info("reminder sent", "kind", string(kind), "appointment_id", appt.ID)
	return nil
}
