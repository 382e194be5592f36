package appointments

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusCancelled Status = "CANCELLED"
	StatusCompleted Status = "COMPLETED"
	// StatusRescheduled is accepted on read for older rows. Rescheduling
	// returns an appointment to StatusScheduled.
	StatusRescheduled Status = "RESCHEDULED"
)

// ReminderKind selects one of the per-appointment notification flags.
type ReminderKind string

const (
	Reminder24h    ReminderKind = "24h"
	Reminder2h     ReminderKind = "2h"
	ReminderSurvey ReminderKind = "survey"
)

var (
	ErrNotFound             = errors.New("appointments: not found")
	ErrProviderUnavailable  = errors.New("appointments: provider unavailable")
	ErrProcedureUnavailable = errors.New("appointments: procedure unavailable")
	ErrStartInPast          = errors.New("appointments: start time must be in the future")
	ErrNotCancellable       = errors.New("appointments: appointment cannot be cancelled")
	ErrNotReschedulable     = errors.New("appointments: appointment cannot be rescheduled")
	ErrUnknownReminderKind  = errors.New("appointments: unknown reminder kind")
)

// Appointment is a booked procedure with a provider.
type Appointment struct {
	ID               uuid.UUID `json:"id"`
	PatientID        uuid.UUID `json:"patientId"`
	ProviderID       uuid.UUID `json:"providerId"`
	ProcedureID      uuid.UUID `json:"procedureId"`
	StartTime        time.Time `json:"startTime"`
	EndTime          time.Time `json:"endTime"`
	Status           Status    `json:"status"`
	CalendarEventRef *string   `json:"-"`
	Reminder24hSent  bool      `json:"-"`
	Reminder2hSent   bool      `json:"-"`
	SurveySent       bool      `json:"-"`
	Notes            *string   `json:"notes,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Terminal reports whether no further transitions are allowed.
func (a *Appointment) Terminal() bool {
	return a.Status == StatusCancelled || a.Status == StatusCompleted
}

// EventRef dereferences CalendarEventRef.
func (a *Appointment) EventRef() string {
	if a.CalendarEventRef == nil {
		return ""
	}
	return *a.CalendarEventRef
}

func (a *Appointment) reminderSent(kind ReminderKind) bool {
	switch kind {
	case Reminder24h:
		return a.Reminder24hSent
	case Reminder2h:
		return a.Reminder2hSent
	case ReminderSurvey:
		return a.SurveySent
	}
	return true
}

func (a *Appointment) setReminderSent(kind ReminderKind) {
	switch kind {
	case Reminder24h:
		a.Reminder24hSent = true
	case Reminder2h:
		a.Reminder2hSent = true
	case ReminderSurvey:
		a.SurveySent = true
	}
}

// Stats counts appointments by status over a period.
type Stats struct {
	Scheduled int `json:"scheduled"`
	Completed int `json:"completed"`
	Cancelled int `json:"cancelled"`
}

// Total sums every bucket.
func (s Stats) Total() int {
	return s.Scheduled + s.Completed + s.Cancelled
}

func (s *Stats) add(status Status, n int) {
	switch status {
	case StatusScheduled, StatusRescheduled:
		s.Scheduled += n
	case StatusCompleted:
		s.Completed += n
	case StatusCancelled:
		s.Cancelled += n
	}
}
