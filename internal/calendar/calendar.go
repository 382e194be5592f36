package calendar

import (
	"context"
	"errors"
	"time"
)

// ErrEventNotFound is returned when an event reference is unknown to the provider.
var ErrEventNotFound = errors.New("calendar: event not found")

// Interval is a half-open busy range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether [start, end) intersects the interval.
func (i Interval) Overlaps(start, end time.Time) bool {
	return start.Before(i.End) && i.Start.Before(end)
}

// Event is the information written to a provider's external calendar.
type Event struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
}

// Client is the external calendar: the source of truth for busy time and a
// best-effort mirror of bookings.
type Client interface {
	FreeBusy(ctx context.Context, calendarRef string, from, to time.Time) ([]Interval, error)
	CreateEvent(ctx context.Context, calendarRef string, ev Event) (string, error)
	PatchEvent(ctx context.Context, calendarRef, eventRef string, ev Event) error
	DeleteEvent(ctx context.Context, calendarRef, eventRef string) error
}
