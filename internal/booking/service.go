// Package booking implements the operations the scheduling assistant can
// invoke on behalf of a patient.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-booking-agent/internal/appointments"
	"github.com/wolfman30/clinic-booking-agent/internal/availability"
	"github.com/wolfman30/clinic-booking-agent/internal/catalog"
	"github.com/wolfman30/clinic-booking-agent/internal/faq"
	"github.com/wolfman30/clinic-booking-agent/internal/patients"
	"github.com/wolfman30/clinic-booking-agent/internal/support"
	"github.com/wolfman30/clinic-booking-agent/pkg/logging"
)

// Availability is the slice of the availability engine the tools need.
type Availability interface {
	SlotsForDate(ctx context.Context, providerID, procedureID uuid.UUID, date time.Time) ([]availability.Slot, error)
	DaysWithAvailability(ctx context.Context, providerID, procedureID uuid.UUID, daysAhead int) ([]availability.Day, error)
}

// Lifecycle performs appointment state transitions.
type Lifecycle interface {
	Create(ctx context.Context, in appointments.CreateInput) (*appointments.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID) error
	Reschedule(ctx context.Context, id uuid.UUID, newStart time.Time) (*appointments.Appointment, error)
}

// Escalator hands a conversation to clinic staff.
type Escalator interface {
	CreateEscalation(ctx context.Context, req support.EscalationRequest) (*support.Escalation, error)
}

// ConversationUpdater points a conversation at a different patient.
type ConversationUpdater interface {
	ReassignPatient(ctx context.Context, conversationID, patientID uuid.UUID) error
}

// Dependencies wires a Service.
type Dependencies struct {
	Catalog       catalog.Repository
	Patients      patients.Repository
	Appointments  appointments.Repository
	Lifecycle     Lifecycle
	Availability  Availability
	FAQ           faq.Repository
	Escalations   Escalator
	Conversations ConversationUpdater
	Location      *time.Location
	Now           func() time.Time
	Logger        *logging.Logger
}

// Service executes tool operations against the clinic's data.
type Service struct {
	catalog       catalog.Repository
	patients      patients.Repository
	appointments  appointments.Repository
	lifecycle     Lifecycle
	availability  Availability
	faq           faq.Repository
	escalations   Escalator
	conversations ConversationUpdater
	loc           *time.Location
	now           func() time.Time
	logger        *logging.Logger
}

// NewService validates the dependencies and builds a Service.
func NewService(deps Dependencies) *Service {
	switch {
	case deps.Catalog == nil:
		panic("booking: catalog cannot be nil")
	case deps.Patients == nil:
		panic("booking: patients repository cannot be nil")
	case deps.Appointments == nil:
		panic("booking: appointments repository cannot be nil")
	case deps.Lifecycle == nil:
		panic("booking: lifecycle cannot be nil")
	case deps.Availability == nil:
		panic("booking: availability cannot be nil")
	case deps.FAQ == nil:
		panic("booking: faq repository cannot be nil")
	case deps.Escalations == nil:
		panic("booking: escalator cannot be nil")
	case deps.Conversations == nil:
		panic("booking: conversation updater cannot be nil")
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	return &Service{
		catalog:       deps.Catalog,
		patients:      deps.Patients,
		appointments:  deps.Appointments,
		lifecycle:     deps.Lifecycle,
		availability:  deps.Availability,
		faq:           deps.FAQ,
		escalations:   deps.Escalations,
		conversations: deps.Conversations,
		loc:           deps.Location,
		now:           deps.Now,
		logger:        deps.Logger,
	}
}

// ProcedureView is a procedure as shown to the model.
type ProcedureView struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	DurationMinutes int       `json:"durationMinutes"`
	PriceCents      *int64    `json:"priceCents,omitempty"`
}

// WorkingDayView is one active working-hours row.
type WorkingDayView struct {
	Weekday int    `json:"weekday"`
	DayName string `json:"dayName"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

// ProviderView is a provider with the procedures and days they work.
type ProviderView struct {
	ID          uuid.UUID        `json:"id"`
	Name        string           `json:"name"`
	Specialty   string           `json:"specialty"`
	Bio         string           `json:"bio,omitempty"`
	Procedures  []ProcedureView  `json:"procedures"`
	WorkingDays []WorkingDayView `json:"workingDays"`
}

// ListProviders returns active providers, optionally filtered by specialty.
func (s *Service) ListProviders(ctx context.Context, specialty string) ([]ProviderView, error) {
	providers, err := s.catalog.ListActiveProviders(ctx)
	if err != nil {
		return nil, fmt.Errorf("booking: list providers: %w", err)
	}
	needle := strings.ToLower(strings.TrimSpace(specialty))
	views := make([]ProviderView, 0, len(providers))
	for _, p := range providers {
		if needle != "" && !strings.Contains(strings.ToLower(p.SpecialtyOrEmpty()), needle) {
			continue
		}
		view := ProviderView{
			ID:          p.ID,
			Name:        p.Name,
			Specialty:   p.SpecialtyOrEmpty(),
			Procedures:  []ProcedureView{},
			WorkingDays: []WorkingDayView{},
		}
		if view.Specialty == "" {
			view.Specialty = "General practice"
		}
		if p.Bio != nil {
			view.Bio = *p.Bio
		}
		for _, proc := range p.Procedures {
			if proc.Active {
				view.Procedures = append(view.Procedures, procedureView(proc))
			}
		}
		for _, wh := range p.WorkingHours {
			if !wh.Active {
				continue
			}
			view.WorkingDays = append(view.WorkingDays, WorkingDayView{
				Weekday: int(wh.Weekday),
				DayName: wh.Weekday.String(),
				Start:   wh.Start,
				End:     wh.End,
			})
		}
		views = append(views, view)
	}
	return views, nil
}

// ListProcedures returns active procedures, or the provider's linked set
// when providerID is given.
func (s *Service) ListProcedures(ctx context.Context, providerID *uuid.UUID) ([]ProcedureView, error) {
	var (
		procs []catalog.Procedure
		err   error
	)
	if providerID != nil {
		procs, err = s.catalog.ListProviderProcedures(ctx, *providerID)
	} else {
		procs, err = s.catalog.ListActiveProcedures(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("booking: list procedures: %w", err)
	}
	views := make([]ProcedureView, 0, len(procs))
	for _, p := range procs {
		if p.Active {
			views = append(views, procedureView(p))
		}
	}
	return views, nil
}

// Ref names a provider or procedure in results.
type Ref struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	DurationMinutes int       `json:"durationMinutes,omitempty"`
}

// AvailabilityQuery selects either a date list or one date's slots.
type AvailabilityQuery struct {
	ProviderID  uuid.UUID
	ProcedureID uuid.UUID
	DaysAhead   int
	TargetDate  *time.Time
}

// AvailabilityResult answers get_availability. Exactly one of AvailableDates
// and Slots is populated.
type AvailabilityResult struct {
	Provider       Ref                 `json:"provider"`
	Procedure      Ref                 `json:"procedure"`
	Date           string              `json:"date,omitempty"`
	DisplayDate    string              `json:"displayDate,omitempty"`
	Slots          []availability.Slot `json:"slots,omitempty"`
	AvailableDates []availability.Day  `json:"availableDates,omitempty"`
	Message        string              `json:"message,omitempty"`
}

// GetAvailability lists dates with open slots, or the slots of TargetDate.
func (s *Service) GetAvailability(ctx context.Context, q AvailabilityQuery) (*AvailabilityResult, error) {
	provider, err := s.catalog.GetProvider(ctx, q.ProviderID)
	if err != nil {
		return nil, err
	}
	procedure, err := s.catalog.GetProcedure(ctx, q.ProcedureID)
	if err != nil {
		return nil, err
	}
	res := &AvailabilityResult{
		Provider:  Ref{ID: provider.ID, Name: provider.Name},
		Procedure: Ref{ID: procedure.ID, Name: procedure.Name, DurationMinutes: procedure.DurationMinutes},
	}

	if q.TargetDate != nil {
		slots, err := s.availability.SlotsForDate(ctx, q.ProviderID, q.ProcedureID, *q.TargetDate)
		if err != nil {
			return nil, err
		}
		day := q.TargetDate.In(s.loc)
		res.Date = day.Format(time.DateOnly)
		res.DisplayDate = day.Format("Monday, 02 January 2006")
		res.Slots = slots
		if len(slots) == 0 {
			res.Message = "No open times on this date. Ask the patient to choose another date."
		}
		return res, nil
	}

	days, err := s.availability.DaysWithAvailability(ctx, q.ProviderID, q.ProcedureID, q.DaysAhead)
	if err != nil {
		return nil, err
	}
	res.AvailableDates = days
	if len(days) == 0 {
		res.Message = "No dates with open times in this period. Suggest another provider or a longer period."
	} else {
		res.Message = "Show these dates and ask which one the patient prefers, then call get_availability again with targetDate."
	}
	return res, nil
}

// CreateInput is a booking request from the model.
type CreateInput struct {
	ProviderID  uuid.UUID
	ProcedureID uuid.UUID
	StartTime   time.Time
	Notes       string
}

// CreateResult answers create_appointment.
type CreateResult struct {
	Success     bool          `json:"success"`
	Appointment *Confirmation `json:"appointment"`
	Summary     string        `json:"summary"`
}

// CreateAppointment books for the turn's patient and records the booking on
// the turn so a confirmation can still be sent if the model fails afterwards.
func (s *Service) CreateAppointment(ctx context.Context, turn *TurnContext, in CreateInput) (*CreateResult, error) {
	if !in.StartTime.After(s.now()) {
		return nil, invalid("Appointments cannot be booked in the past. Choose a future time.")
	}
	patient, err := s.patients.Get(ctx, turn.PatientID)
	if err != nil {
		return nil, fmt.Errorf("booking: load patient: %w", err)
	}
	if !patient.Registered() {
		return nil, &Error{
			Kind:                 KindValidation,
			Message:              fmt.Sprintf("Patient is not registered. Ask for %s before booking.", strings.Join(missingLabels(patient), " and ")),
			RequiresRegistration: true,
		}
	}

	appt, err := s.lifecycle.Create(ctx, appointments.CreateInput{
		PatientID:   patient.ID,
		ProviderID:  in.ProviderID,
		ProcedureID: in.ProcedureID,
		StartTime:   in.StartTime,
		Notes:       in.Notes,
	})
	if err != nil {
		return nil, err
	}
	providerName, procedureName := s.names(ctx, appt.ProviderID, appt.ProcedureID)
	conf := &Confirmation{
		AppointmentID: appt.ID,
		PatientName:   patient.NameOrEmpty(),
		PatientTaxID:  patients.FormatTaxID(patient.TaxIDOrEmpty()),
		Procedure:     procedureName,
		Provider:      providerName,
		StartTime:     appt.StartTime.In(s.loc),
		EndTime:       appt.EndTime.In(s.loc),
		DisplayStart:  FormatStart(appt.StartTime, s.loc),
	}
	turn.LastBooking = conf
	return &CreateResult{Success: true, Appointment: conf, Summary: s.summary(procedureName, providerName, appt.StartTime)}, nil
}

// AppointmentView is one upcoming appointment.
type AppointmentView struct {
	ID        uuid.UUID `json:"id"`
	Provider  string    `json:"provider"`
	Specialty string    `json:"specialty,omitempty"`
	Procedure string    `json:"procedure"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Summary   string    `json:"summary"`
}

// AppointmentsResult answers list_patient_appointments.
type AppointmentsResult struct {
	Appointments []AppointmentView `json:"appointments"`
	Message      string            `json:"message,omitempty"`
}

// ListPatientAppointments returns the turn patient's future, non-cancelled
// appointments in start order.
func (s *Service) ListPatientAppointments(ctx context.Context, turn *TurnContext) (*AppointmentsResult, error) {
	appts, err := s.appointments.ListUpcomingByPatient(ctx, turn.PatientID, s.now())
	if err != nil {
		return nil, fmt.Errorf("booking: list appointments: %w", err)
	}
	res := &AppointmentsResult{Appointments: make([]AppointmentView, 0, len(appts))}
	if len(appts) == 0 {
		res.Message = "No upcoming appointments."
		return res, nil
	}
	providers := make(map[uuid.UUID]*catalog.Provider)
	for _, a := range appts {
		view := AppointmentView{
			ID:        a.ID,
			StartTime: a.StartTime.In(s.loc),
			EndTime:   a.EndTime.In(s.loc),
		}
		p, ok := providers[a.ProviderID]
		if !ok {
			p, _ = s.catalog.GetProvider(ctx, a.ProviderID)
			providers[a.ProviderID] = p
		}
		if p != nil {
			view.Provider = p.Name
			view.Specialty = p.SpecialtyOrEmpty()
		}
		if proc, err := s.catalog.GetProcedure(ctx, a.ProcedureID); err == nil {
			view.Procedure = proc.Name
		}
		view.Summary = s.summary(view.Procedure, view.Provider, a.StartTime)
		res.Appointments = append(res.Appointments, view)
	}
	return res, nil
}

// ActionResult is a plain acknowledgement.
type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// CancelAppointment cancels one of the turn patient's appointments.
func (s *Service) CancelAppointment(ctx context.Context, turn *TurnContext, id uuid.UUID) (*ActionResult, error) {
	appt, err := s.owned(ctx, turn, id)
	if err != nil {
		return nil, err
	}
	if appt.Status == appointments.StatusCompleted {
		return nil, AsError(ToolCancelAppointment, appointments.ErrNotCancellable)
	}
	if err := s.lifecycle.Cancel(ctx, id); err != nil {
		return nil, err
	}
	return &ActionResult{Success: true, Message: "Appointment cancelled."}, nil
}

// RescheduleResult answers reschedule_appointment.
type RescheduleResult struct {
	Success     bool            `json:"success"`
	Appointment AppointmentView `json:"appointment"`
}

// RescheduleAppointment moves one of the turn patient's appointments.
func (s *Service) RescheduleAppointment(ctx context.Context, turn *TurnContext, id uuid.UUID, newStart time.Time) (*RescheduleResult, error) {
	appt, err := s.owned(ctx, turn, id)
	if err != nil {
		return nil, err
	}
	if appt.Terminal() {
		return nil, AsError(ToolRescheduleAppointment, appointments.ErrNotReschedulable)
	}
	if !newStart.After(s.now()) {
		return nil, AsError(ToolRescheduleAppointment, appointments.ErrStartInPast)
	}
	updated, err := s.lifecycle.Reschedule(ctx, id, newStart)
	if err != nil {
		return nil, err
	}
	providerName, procedureName := s.names(ctx, updated.ProviderID, updated.ProcedureID)
	return &RescheduleResult{
		Success: true,
		Appointment: AppointmentView{
			ID:        updated.ID,
			Provider:  providerName,
			Procedure: procedureName,
			StartTime: updated.StartTime.In(s.loc),
			EndTime:   updated.EndTime.In(s.loc),
			Summary:   s.summary(procedureName, providerName, updated.StartTime),
		},
	}, nil
}

// FAQResult answers search_faq.
type FAQResult struct {
	Found   bool        `json:"found"`
	Results []faq.Entry `json:"results,omitempty"`
	Message string      `json:"message,omitempty"`
}

// SearchFAQ matches the query's keywords against active entries.
func (s *Service) SearchFAQ(ctx context.Context, query, category string) (*FAQResult, error) {
	entries, err := s.faq.Search(ctx, faq.Keywords(query), strings.TrimSpace(category), faq.MaxResults)
	if err != nil {
		return nil, fmt.Errorf("booking: search faq: %w", err)
	}
	if len(entries) == 0 {
		return &FAQResult{Found: false, Message: "No matching FAQ entry."}, nil
	}
	return &FAQResult{Found: true, Results: entries}, nil
}

// Escalate opens a PENDING escalation and pauses automation for the conversation.
func (s *Service) Escalate(ctx context.Context, turn *TurnContext, reason string) (*ActionResult, error) {
	req := support.EscalationRequest{
		ConversationID: turn.ConversationID,
		Reason:         strings.TrimSpace(reason),
		PatientAddress: turn.Address,
	}
	if p, err := s.patients.Get(ctx, turn.PatientID); err == nil {
		req.PatientName = p.NameOrEmpty()
		if req.PatientAddress == "" {
			req.PatientAddress = p.Address
		}
	}
	if _, err := s.escalations.CreateEscalation(ctx, req); err != nil {
		return nil, fmt.Errorf("booking: escalate: %w", err)
	}
	return &ActionResult{Success: true, Message: "Handoff registered. A staff member has been notified and will reply here."}, nil
}

// RegisterInput carries registration fields; at least one must be set.
type RegisterInput struct {
	Name            string
	TaxID           string
	CreateDependent bool
}

// RegisterResult answers register_patient.
type RegisterResult struct {
	Success bool   `json:"success"`
	Name    string `json:"name,omitempty"`
	TaxID   string `json:"taxId,omitempty"`
	Message string `json:"message"`
}

// RegisterPatient updates the turn patient, or creates a dependent on the
// same address and switches the conversation and turn to them.
func (s *Service) RegisterPatient(ctx context.Context, turn *TurnContext, in RegisterInput) (*RegisterResult, error) {
	name := strings.Join(strings.Fields(in.Name), " ")
	taxID := patients.NormalizeTaxID(in.TaxID)
	if name == "" && taxID == "" {
		return nil, invalid("Provide at least the full name or the tax id.")
	}
	if strings.TrimSpace(in.TaxID) != "" && !patients.ValidTaxID(taxID) {
		return nil, AsError(ToolRegisterPatient, patients.ErrInvalidTaxID)
	}
	if taxID != "" {
		existing, err := s.patients.FindByTaxID(ctx, taxID)
		switch {
		case err == nil && (in.CreateDependent || existing.ID != turn.PatientID):
			return nil, AsError(ToolRegisterPatient, patients.ErrTaxIDTaken)
		case err != nil && !errors.Is(err, patients.ErrNotFound):
			return nil, fmt.Errorf("booking: tax id lookup: %w", err)
		}
	}

	res := &RegisterResult{Success: true, Name: name, TaxID: patients.FormatTaxID(taxID)}
	if in.CreateDependent {
		address := turn.Address
		if address == "" {
			current, err := s.patients.Get(ctx, turn.PatientID)
			if err != nil {
				return nil, fmt.Errorf("booking: load patient: %w", err)
			}
			address = current.Address
		}
		dependent := &patients.Patient{Address: address, Name: optional(name), TaxID: optional(taxID)}
		if err := s.patients.Create(ctx, dependent); err != nil {
			return nil, err
		}
		if err := s.conversations.ReassignPatient(ctx, turn.ConversationID, dependent.ID); err != nil {
			return nil, fmt.Errorf("booking: reassign conversation: %w", err)
		}
		s.logger.Info("booking: dependent registered",
			"conversation_id", turn.ConversationID,
			"previous_patient_id", turn.PatientID,
			"patient_id", dependent.ID,
		)
		turn.PatientID = dependent.ID
		res.Message = "New patient registered. Upcoming bookings in this conversation are for this person."
		return res, nil
	}

	if _, err := s.patients.UpdateDetails(ctx, turn.PatientID, optional(name), optional(taxID)); err != nil {
		return nil, err
	}
	res.Message = "Details saved."
	return res, nil
}

func (s *Service) owned(ctx context.Context, turn *TurnContext, id uuid.UUID) (*appointments.Appointment, error) {
	appt, err := s.appointments.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.PatientID != turn.PatientID {
		return nil, &Error{Kind: KindAuthorization, Message: "This appointment does not belong to the patient in this conversation."}
	}
	return appt, nil
}

func (s *Service) names(ctx context.Context, providerID, procedureID uuid.UUID) (string, string) {
	var providerName, procedureName string
	if p, err := s.catalog.GetProvider(ctx, providerID); err == nil {
		providerName = p.Name
	}
	if p, err := s.catalog.GetProcedure(ctx, procedureID); err == nil {
		procedureName = p.Name
	}
	return providerName, procedureName
}

func (s *Service) summary(procedure, provider string, start time.Time) string {
	local := start.In(s.loc)
	return fmt.Sprintf("%s with %s on %s at %s", procedure, provider, local.Format("Mon, 02 Jan"), local.Format("15:04"))
}

// FormatStart renders a start time the way confirmations show it.
func FormatStart(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("Monday, 02 January 2006 at 15:04")
}

func procedureView(p catalog.Procedure) ProcedureView {
	v := ProcedureView{ID: p.ID, Name: p.Name, DurationMinutes: p.DurationMinutes, PriceCents: p.PriceCents}
	if p.Description != nil {
		v.Description = *p.Description
	}
	return v
}

func missingLabels(p *patients.Patient) []string {
	var labels []string
	for _, f := range p.MissingFields() {
		switch f {
		case "name":
			labels = append(labels, "full name")
		case "taxId":
			labels = append(labels, "tax id (CPF)")
		}
	}
	return labels
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
