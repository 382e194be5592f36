package calendar

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-booking-agent/internal/observability/metrics"
)

func TestInstrumentedClientCountsCalls(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	mem := NewMemoryClient()
	c := NewInstrumentedClient(mem, m)
	ctx := context.Background()
	start := time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)

	ref, err := c.CreateEvent(ctx, "cal-1", Event{Summary: "Limpeza", Start: start, End: start.Add(30 * time.Minute)})
	require.NoError(t, err)
	busy, err := c.FreeBusy(ctx, "cal-1", start.Add(-time.Hour), start.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, busy, 1)
	require.NoError(t, c.PatchEvent(ctx, "cal-1", ref, Event{Start: start, End: start.Add(time.Hour)}))
	require.NoError(t, c.DeleteEvent(ctx, "cal-1", ref))
	assert.ErrorIs(t, c.DeleteEvent(ctx, "cal-1", ref), ErrEventNotFound)

	mem.FailFreeBusy = true
	_, err = c.FreeBusy(ctx, "cal-1", start, start.Add(time.Hour))
	assert.ErrorIs(t, err, ErrUnavailable)

	assert.Equal(t, 5, testutil.CollectAndCount(reg, "clinic_calendar_calls_total"))
}
