package availability

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-booking-agent/internal/calendar"
	"github.com/wolfman30/clinic-booking-agent/internal/catalog"
	"github.com/wolfman30/clinic-booking-agent/pkg/logging"
)

type fixture struct {
	engine    *Engine
	cal       *calendar.MemoryClient
	provider  catalog.Provider
	procedure catalog.Procedure
	now       time.Time
}

// newFixture seeds a provider working 09:00-12:00 Monday to Friday. The clock
// is Monday 2 March 2026 08:00 in the clinic zone.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	loc := mustLoc(t)
	repo := catalog.NewInMemoryRepository()
	proc := repo.PutProcedure(catalog.Procedure{Name: "Cleaning", DurationMinutes: 60, Active: true})
	var hours []catalog.WorkingHours
	for wd := time.Monday; wd <= time.Friday; wd++ {
		hours = append(hours, catalog.WorkingHours{Weekday: wd, Start: "09:00", End: "12:00", Active: true})
	}
	provider := repo.PutProvider(catalog.Provider{
		Name:         "Dr. Ana",
		CalendarRef:  "dr-ana",
		Active:       true,
		WorkingHours: hours,
		Procedures:   []catalog.Procedure{proc},
	})
	cal := calendar.NewMemoryClient()
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, loc)
	engine := NewEngine(repo, cal, loc, logging.New("error"), WithClock(func() time.Time { return now }))
	return &fixture{engine: engine, cal: cal, provider: provider, procedure: proc, now: now}
}

func TestSlotsForDateSubtractsBusy(t *testing.T) {
	f := newFixture(t)
	f.cal.AddBusy("dr-ana", f.now.Add(2*time.Hour), f.now.Add(3*time.Hour)) // 10:00-11:00

	slots, err := f.engine.SlotsForDate(context.Background(), f.provider.ID, f.procedure.ID, f.now)
	require.NoError(t, err)
	var starts []string
	for _, s := range slots {
		starts = append(starts, s.DisplayStart)
	}
	assert.Equal(t, []string{"09:00", "11:00"}, starts)
}

func TestSlotsForDateWeekend(t *testing.T) {
	f := newFixture(t)
	saturday := f.now.AddDate(0, 0, 5)
	_, err := f.engine.SlotsForDate(context.Background(), f.provider.ID, f.procedure.ID, saturday)
	assert.ErrorIs(t, err, ErrNoWorkingHours)
}

func TestSlotsForDateCalendarFailure(t *testing.T) {
	f := newFixture(t)
	f.cal.FailFreeBusy = true
	slots, err := f.engine.SlotsForDate(context.Background(), f.provider.ID, f.procedure.ID, f.now)
	assert.ErrorIs(t, err, ErrCalendarUnavailable)
	assert.Nil(t, slots)
}

func TestDaysWithAvailabilityStopsAtFive(t *testing.T) {
	f := newFixture(t)
	days, err := f.engine.DaysWithAvailability(context.Background(), f.provider.ID, f.procedure.ID, 0)
	require.NoError(t, err)
	require.Len(t, days, MaxDays)
	assert.Equal(t, "2026-03-02", days[0].Date)
	assert.Equal(t, "2026-03-06", days[4].Date)
	assert.Equal(t, 5, days[0].SlotCount)
	assert.Equal(t, "09:00", days[0].FirstSlot)
	assert.Equal(t, MaxDays, f.cal.FreeBusyCalls)
}

func TestDaysWithAvailabilitySkipsFullDays(t *testing.T) {
	f := newFixture(t)
	f.cal.AddBusy("dr-ana", f.now, f.now.Add(5*time.Hour))

	days, err := f.engine.DaysWithAvailability(context.Background(), f.provider.ID, f.procedure.ID, 2)
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, "2026-03-03", days[0].Date)
}

func TestDaysWithAvailabilityUnknownProcedure(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.DaysWithAvailability(context.Background(), f.provider.ID, uuid.New(), 7)
	assert.ErrorIs(t, err, ErrProcedureUnavailable)
}

func TestDaysWithAvailabilityCalendarFailure(t *testing.T) {
	f := newFixture(t)
	f.cal.FailFreeBusy = true
	_, err := f.engine.DaysWithAvailability(context.Background(), f.provider.ID, f.procedure.ID, 7)
	assert.ErrorIs(t, err, ErrCalendarUnavailable)
}
