package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("clinic.internal.appointments")

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores appointments in the relational database.
type PostgresRepository struct {
	db DB
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository initializes a repo backed by a pgx pool.
func NewPostgresRepository(db DB) *PostgresRepository {
	if db == nil {
		panic("appointments: pgx pool required")
	}
	return &PostgresRepository{db: db}
}

const appointmentColumns = `id, patient_id, provider_id, procedure_id, start_time, end_time, status,
	calendar_event_ref, reminder_24h_sent, reminder_2h_sent, survey_sent, notes, created_at, updated_at`

func (r *PostgresRepository) Create(ctx context.Context, a *Appointment) error {
	if a == nil {
		return errors.New("appointments: appointment cannot be nil")
	}
	ctx, span := tracer.Start(ctx, "appointments.insert")
	defer span.End()

	stamp(a, time.Now().UTC())
	_, err := r.db.Exec(ctx, `
		INSERT INTO appointments (id, patient_id, provider_id, procedure_id, start_time, end_time, status, calendar_event_ref, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.PatientID, a.ProviderID, a.ProcedureID, a.StartTime, a.EndTime, string(a.Status), a.CalendarEventRef, a.Notes, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("appointments: insert failed: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("appointments: delete failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) UpdateSchedule(ctx context.Context, id uuid.UUID, start, end time.Time, eventRef *string) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointments.update_schedule")
	defer span.End()
	span.SetAttributes(attribute.String("appointment.id", id.String()))

	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET start_time = $2,
		    end_time = $3,
		    calendar_event_ref = $4,
		    status = 'SCHEDULED',
		    reminder_24h_sent = FALSE,
		    reminder_2h_sent = FALSE,
		    updated_at = $5
		WHERE id = $1
		RETURNING `+appointmentColumns,
		id, start, end, eventRef, time.Now().UTC(),
	)
	a, err := scanAppointment(row)
	if err != nil && !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
	}
	return a, err
}

func (r *PostgresRepository) ListUpcomingByPatient(ctx context.Context, patientID uuid.UUID, now time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1 AND start_time > $2 AND status <> 'CANCELLED'
		ORDER BY start_time ASC`, patientID, now)
	if err != nil {
		return nil, fmt.Errorf("appointments: list upcoming: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PostgresRepository) CompleteEnded(ctx context.Context, now time.Time) (int64, error) {
	ctx, span := tracer.Start(ctx, "appointments.complete_ended")
	defer span.End()

	tag, err := r.db.Exec(ctx, `
		UPDATE appointments
		SET status = 'COMPLETED', updated_at = $2
		WHERE status = 'SCHEDULED' AND end_time <= $1`, now, time.Now().UTC())
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("appointments: complete ended: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) DueForReminder(ctx context.Context, kind ReminderKind, from, to time.Time) ([]Appointment, error) {
	var where string
	switch kind {
	case Reminder24h:
		where = `status = 'SCHEDULED' AND reminder_24h_sent = FALSE AND start_time BETWEEN $1 AND $2`
	case Reminder2h:
		where = `status = 'SCHEDULED' AND reminder_2h_sent = FALSE AND start_time BETWEEN $1 AND $2`
	case ReminderSurvey:
		where = `status = 'COMPLETED' AND survey_sent = FALSE AND end_time BETWEEN $1 AND $2`
	default:
		return nil, ErrUnknownReminderKind
	}
	rows, err := r.db.Query(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE `+where+` ORDER BY start_time ASC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("appointments: due for %s reminder: %w", kind, err)
	}
	return collectAppointments(rows)
}

func (r *PostgresRepository) MarkReminderSent(ctx context.Context, id uuid.UUID, kind ReminderKind) (bool, error) {
	column, err := reminderColumn(kind)
	if err != nil {
		return false, err
	}
	tag, err := r.db.Exec(ctx, `UPDATE appointments SET `+column+` = TRUE WHERE id = $1 AND `+column+` = FALSE`, id)
	if err != nil {
		return false, fmt.Errorf("appointments: mark %s sent: %w", kind, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) ListBetween(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE start_time >= $1 AND start_time < $2 AND status <> 'CANCELLED'
		ORDER BY start_time ASC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("appointments: list between: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PostgresRepository) Stats(ctx context.Context, from, to time.Time) (Stats, error) {
	var stats Stats
	rows, err := r.db.Query(ctx, `
		SELECT status, COUNT(*)
		FROM appointments
		WHERE start_time >= $1 AND start_time < $2
		GROUP BY status`, from, to)
	if err != nil {
		return stats, fmt.Errorf("appointments: stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return stats, fmt.Errorf("appointments: stats scan: %w", err)
		}
		stats.add(Status(status), int(count))
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("appointments: stats rows: %w", err)
	}
	return stats, nil
}

func reminderColumn(kind ReminderKind) (string, error) {
	switch kind {
	case Reminder24h:
		return "reminder_24h_sent", nil
	case Reminder2h:
		return "reminder_2h_sent", nil
	case ReminderSurvey:
		return "survey_sent", nil
	}
	return "", ErrUnknownReminderKind
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()
	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: rows: %w", err)
	}
	return out, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string
	err := row.Scan(
		&a.ID, &a.PatientID, &a.ProviderID, &a.ProcedureID, &a.StartTime, &a.EndTime, &status,
		&a.CalendarEventRef, &a.Reminder24hSent, &a.Reminder2hSent, &a.SurveySent, &a.Notes, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointments: scan: %w", err)
	}
	a.Status = Status(status)
	return &a, nil
}
