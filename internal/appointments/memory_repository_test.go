package appointments

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDueForReminderWindows(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	in24 := &Appointment{PatientID: uuid.New(), StartTime: now.Add(23*time.Hour + 30*time.Minute), EndTime: now.Add(24 * time.Hour)}
	in2 := &Appointment{PatientID: uuid.New(), StartTime: now.Add(100 * time.Minute), EndTime: now.Add(3 * time.Hour)}
	done := &Appointment{PatientID: uuid.New(), StartTime: now.Add(-5 * time.Hour), EndTime: now.Add(-4 * time.Hour), Status: StatusCompleted}
	for _, a := range []*Appointment{in24, in2, done} {
		require.NoError(t, repo.Create(ctx, a))
	}

	due, err := repo.DueForReminder(ctx, Reminder24h, now.Add(23*time.Hour), now.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, in24.ID, due[0].ID)

	due, err = repo.DueForReminder(ctx, Reminder2h, now.Add(90*time.Minute), now.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, in2.ID, due[0].ID)

	due, err = repo.DueForReminder(ctx, ReminderSurvey, now.Add(-6*time.Hour), now.Add(-3*time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, done.ID, due[0].ID)
}

func TestMarkReminderSentOnlyOnce(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	a := &Appointment{PatientID: uuid.New(), StartTime: time.Now().Add(time.Hour), EndTime: time.Now().Add(2 * time.Hour)}
	require.NoError(t, repo.Create(ctx, a))

	ok, err := repo.MarkReminderSent(ctx, a.ID, Reminder2h)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.MarkReminderSent(ctx, a.ID, Reminder2h)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.MarkReminderSent(ctx, a.ID, ReminderKind("weekly"))
	assert.ErrorIs(t, err, ErrUnknownReminderKind)
}

func TestListUpcomingSkipsCancelledAndPast(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	patient := uuid.New()
	now := time.Now().UTC()
	later := &Appointment{PatientID: patient, StartTime: now.Add(48 * time.Hour), EndTime: now.Add(49 * time.Hour)}
	sooner := &Appointment{PatientID: patient, StartTime: now.Add(24 * time.Hour), EndTime: now.Add(25 * time.Hour)}
	cancelled := &Appointment{PatientID: patient, StartTime: now.Add(30 * time.Hour), EndTime: now.Add(31 * time.Hour), Status: StatusCancelled}
	past := &Appointment{PatientID: patient, StartTime: now.Add(-24 * time.Hour), EndTime: now.Add(-23 * time.Hour)}
	other := &Appointment{PatientID: uuid.New(), StartTime: now.Add(24 * time.Hour), EndTime: now.Add(25 * time.Hour)}
	for _, a := range []*Appointment{later, sooner, cancelled, past, other} {
		require.NoError(t, repo.Create(ctx, a))
	}

	list, err := repo.ListUpcomingByPatient(ctx, patient, now)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, sooner.ID, list[0].ID)
	assert.Equal(t, later.ID, list[1].ID)

	stats, err := repo.Stats(ctx, now.Add(-48*time.Hour), now.Add(72*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Scheduled)
	assert.Equal(t, 1, stats.Cancelled)
	assert.Equal(t, 5, stats.Total())
}
