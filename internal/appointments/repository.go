package appointments

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists appointments.
type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	Get(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// UpdateSchedule moves the appointment, stores the calendar reference,
	// clears the 24h and 2h reminder flags and sets SCHEDULED.
	UpdateSchedule(ctx context.Context, id uuid.UUID, start, end time.Time, eventRef *string) (*Appointment, error)
	// ListUpcomingByPatient returns non-cancelled appointments starting after
	// now, earliest first.
	ListUpcomingByPatient(ctx context.Context, patientID uuid.UUID, now time.Time) ([]Appointment, error)
	// CompleteEnded marks SCHEDULED appointments that ended by now as COMPLETED.
	CompleteEnded(ctx context.Context, now time.Time) (int64, error)
	// DueForReminder lists appointments whose flag for kind is unset inside the
	// closed window. Survey windows apply to end time of COMPLETED rows; the
	// others apply to start time of SCHEDULED rows.
	DueForReminder(ctx context.Context, kind ReminderKind, from, to time.Time) ([]Appointment, error)
	// MarkReminderSent flips the flag from false to true. It reports false when
	// another sweep got there first.
	MarkReminderSent(ctx context.Context, id uuid.UUID, kind ReminderKind) (bool, error)
	// ListBetween returns non-cancelled appointments starting in [from, to).
	ListBetween(ctx context.Context, from, to time.Time) ([]Appointment, error)
	Stats(ctx context.Context, from, to time.Time) (Stats, error)
}

func stamp(a *Appointment, now time.Time) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
}
