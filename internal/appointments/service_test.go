package appointments

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-booking-agent/internal/calendar"
	"github.com/wolfman30/clinic-booking-agent/internal/catalog"
	"github.com/wolfman30/clinic-booking-agent/internal/patients"
	"github.com/wolfman30/clinic-booking-agent/pkg/logging"
)

type serviceFixture struct {
	svc       *Service
	repo      *InMemoryRepository
	cal       *calendar.MemoryClient
	provider  catalog.Provider
	procedure catalog.Procedure
	patient   *patients.Patient
	now       time.Time
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	cat := catalog.NewInMemoryRepository()
	proc := cat.PutProcedure(catalog.Procedure{Name: "Cleaning", DurationMinutes: 45, Active: true})
	provider := cat.PutProvider(catalog.Provider{Name: "Dr. Ana", CalendarRef: "dr-ana", Active: true, Procedures: []catalog.Procedure{proc}})

	pats := patients.NewInMemoryRepository()
	name := "Maria Souza"
	patient := &patients.Patient{Address: "5511999990000", Name: &name}
	require.NoError(t, pats.Create(context.Background(), patient))

	repo := NewInMemoryRepository()
	cal := calendar.NewMemoryClient()
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	svc := NewService(repo, cat, pats, cal, logging.New("error"), WithClock(func() time.Time { return now }))
	return &serviceFixture{svc: svc, repo: repo, cal: cal, provider: provider, procedure: proc, patient: patient, now: now}
}

func (f *serviceFixture) create(t *testing.T, start time.Time) *Appointment {
	t.Helper()
	appt, err := f.svc.Create(context.Background(), CreateInput{
		PatientID:   f.patient.ID,
		ProviderID:  f.provider.ID,
		ProcedureID: f.procedure.ID,
		StartTime:   start,
	})
	require.NoError(t, err)
	return appt
}

func TestCreateComputesEndAndWritesEvent(t *testing.T) {
	f := newServiceFixture(t)
	start := f.now.Add(26 * time.Hour)
	appt := f.create(t, start)

	assert.Equal(t, StatusScheduled, appt.Status)
	assert.Equal(t, start.Add(45*time.Minute), appt.EndTime)
	require.NotNil(t, appt.CalendarEventRef)
	events := f.cal.Events("dr-ana")
	require.Contains(t, events, *appt.CalendarEventRef)
	assert.Equal(t, "Cleaning - Maria Souza", events[*appt.CalendarEventRef].Summary)
}

func TestCreateProceedsWhenCalendarFails(t *testing.T) {
	f := newServiceFixture(t)
	f.cal.FailCreate = true
	appt := f.create(t, f.now.Add(time.Hour))
	assert.Nil(t, appt.CalendarEventRef)

	stored, err := f.repo.Get(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, stored.Status)
}

func TestCreateRejectsPastAndInactive(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.Create(context.Background(), CreateInput{
		PatientID: f.patient.ID, ProviderID: f.provider.ID, ProcedureID: f.procedure.ID, StartTime: f.now,
	})
	assert.ErrorIs(t, err, ErrStartInPast)

	_, err = f.svc.Create(context.Background(), CreateInput{
		PatientID: f.patient.ID, ProviderID: uuid.New(), ProcedureID: f.procedure.ID, StartTime: f.now.Add(time.Hour),
	})
	assert.ErrorIs(t, err, ErrProviderUnavailable)

	_, err = f.svc.Create(context.Background(), CreateInput{
		PatientID: f.patient.ID, ProviderID: f.provider.ID, ProcedureID: uuid.New(), StartTime: f.now.Add(time.Hour),
	})
	assert.ErrorIs(t, err, ErrProcedureUnavailable)
}

func TestCancelDeletesEventAndRecord(t *testing.T) {
	f := newServiceFixture(t)
	appt := f.create(t, f.now.Add(48*time.Hour))

	require.NoError(t, f.svc.Cancel(context.Background(), appt.ID))
	_, err := f.repo.Get(context.Background(), appt.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, f.cal.Events("dr-ana"))
}

func TestCancelSurvivesCalendarFailure(t *testing.T) {
	f := newServiceFixture(t)
	appt := f.create(t, f.now.Add(48*time.Hour))
	f.cal.FailDelete = true

	require.NoError(t, f.svc.Cancel(context.Background(), appt.ID))
	_, err := f.repo.Get(context.Background(), appt.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancelCompletedRejected(t *testing.T) {
	f := newServiceFixture(t)
	appt := &Appointment{PatientID: f.patient.ID, ProviderID: f.provider.ID, ProcedureID: f.procedure.ID,
		StartTime: f.now.Add(-2 * time.Hour), EndTime: f.now.Add(-time.Hour), Status: StatusCompleted}
	require.NoError(t, f.repo.Create(context.Background(), appt))

	assert.ErrorIs(t, f.svc.Cancel(context.Background(), appt.ID), ErrNotCancellable)
}

func TestReschedulePatchesEventAndResetsReminders(t *testing.T) {
	f := newServiceFixture(t)
	appt := f.create(t, f.now.Add(30*time.Hour))
	_, err := f.repo.MarkReminderSent(context.Background(), appt.ID, Reminder24h)
	require.NoError(t, err)

	newStart := f.now.Add(72 * time.Hour)
	updated, err := f.svc.Reschedule(context.Background(), appt.ID, newStart)
	require.NoError(t, err)
	assert.Equal(t, newStart.Add(45*time.Minute), updated.EndTime)
	assert.False(t, updated.Reminder24hSent)
	assert.Equal(t, StatusScheduled, updated.Status)
	assert.Equal(t, appt.EventRef(), updated.EventRef())
	assert.Equal(t, newStart, f.cal.Events("dr-ana")[updated.EventRef()].Start)
}

func TestReschedulePatchFailureRecreatesEvent(t *testing.T) {
	f := newServiceFixture(t)
	appt := f.create(t, f.now.Add(30*time.Hour))
	f.cal.FailPatch = true

	updated, err := f.svc.Reschedule(context.Background(), appt.ID, f.now.Add(50*time.Hour))
	require.NoError(t, err)
	require.NotEqual(t, appt.EventRef(), updated.EventRef())
	events := f.cal.Events("dr-ana")
	assert.Len(t, events, 1)
	assert.Contains(t, events, updated.EventRef())
}

func TestRescheduleWithoutEventCreatesOne(t *testing.T) {
	f := newServiceFixture(t)
	f.cal.FailCreate = true
	appt := f.create(t, f.now.Add(30*time.Hour))
	f.cal.FailCreate = false

	updated, err := f.svc.Reschedule(context.Background(), appt.ID, f.now.Add(50*time.Hour))
	require.NoError(t, err)
	assert.NotEmpty(t, updated.EventRef())
}

func TestRescheduleRejectsTerminalAndPast(t *testing.T) {
	f := newServiceFixture(t)
	appt := f.create(t, f.now.Add(30*time.Hour))
	_, err := f.svc.Reschedule(context.Background(), appt.ID, f.now.Add(-time.Minute))
	assert.ErrorIs(t, err, ErrStartInPast)

	done := &Appointment{PatientID: f.patient.ID, ProviderID: f.provider.ID, ProcedureID: f.procedure.ID,
		StartTime: f.now.Add(-2 * time.Hour), EndTime: f.now.Add(-time.Hour), Status: StatusCancelled}
	require.NoError(t, f.repo.Create(context.Background(), done))
	_, err = f.svc.Reschedule(context.Background(), done.ID, f.now.Add(time.Hour))
	assert.ErrorIs(t, err, ErrNotReschedulable)
}

func TestCompleteEndedIsIdempotent(t *testing.T) {
	f := newServiceFixture(t)
	past := &Appointment{PatientID: f.patient.ID, ProviderID: f.provider.ID, ProcedureID: f.procedure.ID,
		StartTime: f.now.Add(-2 * time.Hour), EndTime: f.now.Add(-time.Hour), Status: StatusScheduled}
	require.NoError(t, f.repo.Create(context.Background(), past))
	f.create(t, f.now.Add(time.Hour))

	n, err := f.svc.CompleteEnded(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = f.svc.CompleteEnded(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	stored, err := f.repo.Get(context.Background(), past.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, stored.Status)
}
