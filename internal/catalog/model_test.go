package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkingHoursWindow(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)

	wh := WorkingHours{Weekday: time.Monday, Start: "08:00", End: "12:30", Active: true}
	day := time.Date(2026, 2, 23, 15, 0, 0, 0, loc)
	open, closeAt, err := wh.Window(day, loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 23, 8, 0, 0, 0, loc), open)
	assert.Equal(t, time.Date(2026, 2, 23, 12, 30, 0, 0, loc), closeAt)
}

func TestParseClockRejectsGarbage(t *testing.T) {
	_, _, err := ParseClock("25:00")
	assert.Error(t, err)
	_, _, err = ParseClock("noon")
	assert.Error(t, err)
}

func TestProviderHoursForSkipsInactive(t *testing.T) {
	p := Provider{WorkingHours: []WorkingHours{
		{Weekday: time.Saturday, Start: "08:00", End: "12:00", Active: false},
		{Weekday: time.Monday, Start: "08:00", End: "18:00", Active: true},
	}}
	_, ok := p.HoursFor(time.Saturday)
	assert.False(t, ok)
	wh, ok := p.HoursFor(time.Monday)
	assert.True(t, ok)
	assert.Equal(t, "18:00", wh.End)
}

func TestInMemoryRepositoryFiltersInactive(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	cleaning := repo.PutProcedure(Procedure{Name: "Cleaning", DurationMinutes: 30, Active: true})
	retired := repo.PutProcedure(Procedure{Name: "Retired", DurationMinutes: 60, Active: false})
	active := repo.PutProvider(Provider{Name: "Dr. Ana", Active: true, Procedures: []Procedure{cleaning, retired}})
	repo.PutProvider(Provider{Name: "Dr. Off", Active: false})

	providers, err := repo.ListActiveProviders(ctx)
	require.NoError(t, err)
	require.Len(t, providers, 1)
	assert.Equal(t, active.ID, providers[0].ID)
	require.Len(t, providers[0].Procedures, 1)
	assert.Equal(t, "Cleaning", providers[0].Procedures[0].Name)

	procs, err := repo.ListActiveProcedures(ctx)
	require.NoError(t, err)
	assert.Len(t, procs, 1)
	assert.Equal(t, 30*time.Minute, procs[0].Duration())
}
