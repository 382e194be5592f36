package appointments

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var appointmentCols = []string{
	"id", "patient_id", "provider_id", "procedure_id", "start_time", "end_time", "status",
	"calendar_event_ref", "reminder_24h_sent", "reminder_2h_sent", "survey_sent", "notes", "created_at", "updated_at",
}

func appointmentRow(rows *pgxmock.Rows, id uuid.UUID, start time.Time, status string) *pgxmock.Rows {
	ref := "evt-1"
	return rows.AddRow(id, uuid.New(), uuid.New(), uuid.New(), start, start.Add(time.Hour), status,
		&ref, false, false, false, (*string)(nil), start, start)
}

func TestPostgresGetNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	id := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM appointments WHERE id = \\$1").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err = repo.Get(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateScheduleResetsFlags(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	id := uuid.New()
	start := time.Now().Add(24 * time.Hour).UTC()
	ref := "evt-1"
	mock.ExpectQuery("UPDATE appointments").
		WithArgs(id, start, start.Add(time.Hour), &ref, pgxmock.AnyArg()).
		WillReturnRows(appointmentRow(pgxmock.NewRows(appointmentCols), id, start, "SCHEDULED"))

	a, err := repo.UpdateSchedule(context.Background(), id, start, start.Add(time.Hour), &ref)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, a.Status)
	assert.Equal(t, "evt-1", a.EventRef())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMarkReminderSentConditional(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	id := uuid.New()
	mock.ExpectExec("UPDATE appointments SET reminder_24h_sent = TRUE WHERE id = \\$1 AND reminder_24h_sent = FALSE").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE appointments SET reminder_24h_sent = TRUE").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := repo.MarkReminderSent(context.Background(), id, Reminder24h)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.MarkReminderSent(context.Background(), id, Reminder24h)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCompleteEnded(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	now := time.Now().UTC()
	mock.ExpectExec("UPDATE appointments SET status = 'COMPLETED'").
		WithArgs(now, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := repo.CompleteEnded(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDueForSurveyUsesEndTime(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	from := time.Now().Add(-6 * time.Hour).UTC()
	to := time.Now().Add(-3 * time.Hour).UTC()
	id := uuid.New()
	mock.ExpectQuery("status = 'COMPLETED' AND survey_sent = FALSE AND end_time BETWEEN \\$1 AND \\$2").
		WithArgs(from, to).
		WillReturnRows(appointmentRow(pgxmock.NewRows(appointmentCols), id, from, "COMPLETED"))

	due, err := repo.DueForReminder(context.Background(), ReminderSurvey, from, to)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, StatusCompleted, due[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStatsGroupsByStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	from := time.Now().UTC()
	to := from.Add(7 * 24 * time.Hour)
	mock.ExpectQuery("SELECT status, COUNT\\(\\*\\)").
		WithArgs(from, to).
		WillReturnRows(pgxmock.NewRows([]string{"status", "count"}).
			AddRow("SCHEDULED", int64(4)).
			AddRow("COMPLETED", int64(2)))

	stats, err := repo.Stats(context.Background(), from, to)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Scheduled)
	assert.Equal(t, 2, stats.Completed)
	require.NoError(t, mock.ExpectationsWereMet())
}
