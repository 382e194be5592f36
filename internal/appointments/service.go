package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-booking-agent/internal/calendar"
	"github.com/wolfman30/clinic-booking-agent/internal/catalog"
	"github.com/wolfman30/clinic-booking-agent/internal/patients"
	"github.com/wolfman30/clinic-booking-agent/pkg/logging"
)

// CreateInput describes a new booking.
type CreateInput struct {
	PatientID   uuid.UUID
	ProviderID  uuid.UUID
	ProcedureID uuid.UUID
	StartTime   time.Time
	Notes       string
}

// Service owns appointment state transitions and keeps the provider's
// calendar in step. Calendar writes are best-effort: a failed write is logged
// and never blocks the booking.
type Service struct {
	repo     Repository
	catalog  catalog.Repository
	patients patients.Repository
	calendar calendar.Client
	now      func() time.Time
	logger   *logging.Logger
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the lifecycle service.
func NewService(repo Repository, cat catalog.Repository, pats patients.Repository, cal calendar.Client, logger *logging.Logger, opts ...ServiceOption) *Service {
	if repo == nil {
		panic("appointments: repository cannot be nil")
	}
	if cat == nil {
		panic("appointments: catalog cannot be nil")
	}
	if pats == nil {
		panic("appointments: patients repository cannot be nil")
	}
	if cal == nil {
		panic("appointments: calendar cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{repo: repo, catalog: cat, patients: pats, calendar: cal, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Repository exposes the underlying store for read paths.
func (s *Service) Repository() Repository {
	return s.repo
}

// Create validates the booking, writes the calendar event and persists the
// appointment as SCHEDULED.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointments.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("provider.id", in.ProviderID.String()),
		attribute.String("procedure.id", in.ProcedureID.String()),
	)

	provider, procedure, err := s.resolve(ctx, in.ProviderID, in.ProcedureID, true)
	if err != nil {
		return nil, err
	}
	if !in.StartTime.After(s.now()) {
		return nil, ErrStartInPast
	}

	appt := &Appointment{
		PatientID:   in.PatientID,
		ProviderID:  provider.ID,
		ProcedureID: procedure.ID,
		StartTime:   in.StartTime,
		EndTime:     in.StartTime.Add(procedure.Duration()),
		Status:      StatusScheduled,
	}
	if notes := strings.TrimSpace(in.Notes); notes != "" {
		appt.Notes = &notes
	}

	event := s.buildEvent(ctx, appt, provider, procedure)
	if ref, err := s.calendar.CreateEvent(ctx, provider.CalendarRef, event); err != nil {
		s.logger.Warn("appointments: calendar event create failed; booking without event",
			"provider_id", provider.ID, "error", err)
	} else {
		appt.CalendarEventRef = &ref
	}

	if err := s.repo.Create(ctx, appt); err != nil {
		span.RecordError(err)
		if appt.CalendarEventRef != nil {
			s.deleteEvent(ctx, provider.CalendarRef, *appt.CalendarEventRef)
		}
		return nil, err
	}
	s.logger.Info("appointments: created",
		"appointment_id", appt.ID,
		"patient_id", appt.PatientID,
		"provider_id", appt.ProviderID,
		"start", appt.StartTime.Format(time.RFC3339),
	)
	return appt, nil
}

// Cancel removes the appointment and its calendar event.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "appointments.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("appointment.id", id.String()))

	appt, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if appt.Status == StatusCompleted {
		return ErrNotCancellable
	}
	if ref := appt.EventRef(); ref != "" {
		if provider, err := s.catalog.GetProvider(ctx, appt.ProviderID); err != nil {
			s.logger.Warn("appointments: provider lookup failed; calendar event left in place",
				"appointment_id", id, "error", err)
		} else {
			s.deleteEvent(ctx, provider.CalendarRef, ref)
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		span.RecordError(err)
		return err
	}
	s.logger.Info("appointments: cancelled", "appointment_id", id)
	return nil
}

// Reschedule moves a SCHEDULED appointment to newStart, recomputing the end
// from the procedure duration and re-arming the pre-visit reminders.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newStart time.Time) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointments.reschedule")
	defer span.End()
	span.SetAttributes(attribute.String("appointment.id", id.String()))

	appt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Terminal() {
		return nil, ErrNotReschedulable
	}
	if !newStart.After(s.now()) {
		return nil, ErrStartInPast
	}
	provider, procedure, err := s.resolve(ctx, appt.ProviderID, appt.ProcedureID, false)
	if err != nil {
		return nil, err
	}

	appt.StartTime = newStart
	appt.EndTime = newStart.Add(procedure.Duration())
	event := s.buildEvent(ctx, appt, provider, procedure)
	ref := s.syncRescheduledEvent(ctx, span, provider.CalendarRef, appt.CalendarEventRef, event)

	updated, err := s.repo.UpdateSchedule(ctx, id, appt.StartTime, appt.EndTime, ref)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.logger.Info("appointments: rescheduled",
		"appointment_id", id,
		"start", updated.StartTime.Format(time.RFC3339),
	)
	return updated, nil
}

// CompleteEnded marks every SCHEDULED appointment whose end has passed as
// COMPLETED. Running it twice changes nothing the second time.
func (s *Service) CompleteEnded(ctx context.Context) (int64, error) {
	n, err := s.repo.CompleteEnded(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("appointments: completed ended appointments", "count", n)
	}
	return n, nil
}

// syncRescheduledEvent patches the existing event, falling back to creating a
// fresh one and dropping the old. It returns the reference to store.
func (s *Service) syncRescheduledEvent(ctx context.Context, span trace.Span, calendarRef string, current *string, event calendar.Event) *string {
	if current == nil || *current == "" {
		ref, err := s.calendar.CreateEvent(ctx, calendarRef, event)
		if err != nil {
			s.logger.Warn("appointments: calendar event create failed on reschedule", "error", err)
			return nil
		}
		return &ref
	}

	err := s.calendar.PatchEvent(ctx, calendarRef, *current, event)
	if err == nil {
		return current
	}
	span.RecordError(err)
	s.logger.Warn("appointments: calendar patch failed; recreating event", "event_ref", *current, "error", err)

	ref, err := s.calendar.CreateEvent(ctx, calendarRef, event)
	if err != nil {
		s.logger.Warn("appointments: calendar recreate failed; keeping stale event reference", "error", err)
		return current
	}
	s.deleteEvent(ctx, calendarRef, *current)
	return &ref
}

func (s *Service) deleteEvent(ctx context.Context, calendarRef, eventRef string) {
	if err := s.calendar.DeleteEvent(ctx, calendarRef, eventRef); err != nil && !errors.Is(err, calendar.ErrEventNotFound) {
		s.logger.Warn("appointments: calendar event delete failed", "event_ref", eventRef, "error", err)
	}
}

func (s *Service) resolve(ctx context.Context, providerID, procedureID uuid.UUID, requireActive bool) (*catalog.Provider, *catalog.Procedure, error) {
	provider, err := s.catalog.GetProvider(ctx, providerID)
	if err != nil {
		if errors.Is(err, catalog.ErrProviderNotFound) {
			return nil, nil, ErrProviderUnavailable
		}
		return nil, nil, fmt.Errorf("appointments: load provider: %w", err)
	}
	procedure, err := s.catalog.GetProcedure(ctx, procedureID)
	if err != nil {
		if errors.Is(err, catalog.ErrProcedureNotFound) {
			return nil, nil, ErrProcedureUnavailable
		}
		return nil, nil, fmt.Errorf("appointments: load procedure: %w", err)
	}
	if requireActive {
		if !provider.Active {
			return nil, nil, ErrProviderUnavailable
		}
		if !procedure.Active || (len(provider.Procedures) > 0 && !provider.Offers(procedure.ID)) {
			return nil, nil, ErrProcedureUnavailable
		}
	}
	return provider, procedure, nil
}

func (s *Service) buildEvent(ctx context.Context, appt *Appointment, provider *catalog.Provider, procedure *catalog.Procedure) calendar.Event {
	patientName := "Patient"
	address := ""
	if p, err := s.patients.Get(ctx, appt.PatientID); err == nil {
		patientName = p.DisplayName()
		address = p.Address
	}
	var desc strings.Builder
	fmt.Fprintf(&desc, "Patient: %s\n", patientName)
	if address != "" {
		fmt.Fprintf(&desc, "Contact: %s\n", address)
	}
	fmt.Fprintf(&desc, "Provider: %s\n", provider.Name)
	if appt.Notes != nil {
		fmt.Fprintf(&desc, "Notes: %s\n", *appt.Notes)
	}
	return calendar.Event{
		Summary:     fmt.Sprintf("%s - %s", procedure.Name, patientName),
		Description: strings.TrimSpace(desc.String()),
		Start:       appt.StartTime,
		End:         appt.EndTime,
	}
}
