package calendar

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-booking-agent/pkg/logging"
)

func newTestGoogleClient(t *testing.T, handler http.HandlerFunc) *GoogleClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	client, err := NewGoogleClientWithHTTP(context.Background(), srv.Client(), srv.URL+"/", GoogleConfig{Location: loc, Timeout: time.Second}, logging.New("error"))
	require.NoError(t, err)
	return client
}

func TestGoogleFreeBusyParsesIntervals(t *testing.T) {
	client := newTestGoogleClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/freeBusy"))
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "America/Sao_Paulo", req["timeZone"])
		_, _ = io.WriteString(w, `{"calendars":{"dr-ana":{"busy":[{"start":"2026-02-23T13:00:00Z","end":"2026-02-23T14:00:00Z"}]}}}`)
	})

	from := time.Date(2026, 2, 23, 0, 0, 0, 0, time.UTC)
	busy, err := client.FreeBusy(context.Background(), "dr-ana", from, from.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, busy, 1)
	assert.Equal(t, time.Date(2026, 2, 23, 13, 0, 0, 0, time.UTC), busy[0].Start.UTC())
}

func TestGoogleFreeBusyCalendarError(t *testing.T) {
	client := newTestGoogleClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"calendars":{"dr-ana":{"errors":[{"domain":"global","reason":"notFound"}]}}}`)
	})
	_, err := client.FreeBusy(context.Background(), "dr-ana", time.Now(), time.Now().Add(time.Hour))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notFound")
}

func TestGoogleCreateEventSendsLocalTime(t *testing.T) {
	client := newTestGoogleClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var ev map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ev))
		start := ev["start"].(map[string]any)
		assert.Equal(t, "2026-02-23T14:00:00", start["dateTime"])
		assert.Equal(t, "America/Sao_Paulo", start["timeZone"])
		_, _ = io.WriteString(w, `{"id":"evt-1"}`)
	})

	start := time.Date(2026, 2, 23, 17, 0, 0, 0, time.UTC)
	ref, err := client.CreateEvent(context.Background(), "dr-ana", Event{Summary: "Cleaning", Start: start, End: start.Add(30 * time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, "evt-1", ref)
}

func TestGoogleDeleteEventNotFound(t *testing.T) {
	client := newTestGoogleClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"code":404,"message":"Not Found"}}`)
	})
	err := client.DeleteEvent(context.Background(), "dr-ana", "evt-missing")
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestIntervalOverlapsIsHalfOpen(t *testing.T) {
	base := time.Date(2026, 2, 23, 10, 0, 0, 0, time.UTC)
	iv := Interval{Start: base, End: base.Add(time.Hour)}
	assert.False(t, iv.Overlaps(base.Add(time.Hour), base.Add(90*time.Minute)))
	assert.False(t, iv.Overlaps(base.Add(-30*time.Minute), base))
	assert.True(t, iv.Overlaps(base.Add(59*time.Minute), base.Add(2*time.Hour)))
}

func TestMemoryClientEventsAreBusy(t *testing.T) {
	m := NewMemoryClient()
	ctx := context.Background()
	start := time.Date(2026, 2, 23, 10, 0, 0, 0, time.UTC)
	ref, err := m.CreateEvent(ctx, "cal", Event{Start: start, End: start.Add(time.Hour)})
	require.NoError(t, err)

	busy, err := m.FreeBusy(ctx, "cal", start.Add(-time.Hour), start.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Len(t, busy, 1)

	require.NoError(t, m.DeleteEvent(ctx, "cal", ref))
	assert.ErrorIs(t, m.DeleteEvent(ctx, "cal", ref), ErrEventNotFound)
}
