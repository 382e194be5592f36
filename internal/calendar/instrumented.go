package calendar

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-booking-agent/internal/observability/metrics"
)

var tracer = otel.Tracer("clinic.internal.calendar")

// InstrumentedClient records a span and a calendar_calls_total sample for
// every call. A missing event on delete counts as success.
type InstrumentedClient struct {
	next    Client
	metrics *metrics.Metrics
}

var _ Client = (*InstrumentedClient)(nil)

func NewInstrumentedClient(next Client, m *metrics.Metrics) *InstrumentedClient {
	if next == nil {
		panic("calendar: client cannot be nil")
	}
	return &InstrumentedClient{next: next, metrics: m}
}

func (c *InstrumentedClient) FreeBusy(ctx context.Context, calendarRef string, from, to time.Time) ([]Interval, error) {
	ctx, done := c.start(ctx, "freebusy", calendarRef)
	busy, err := c.next.FreeBusy(ctx, calendarRef, from, to)
	done(err)
	return busy, err
}

func (c *InstrumentedClient) CreateEvent(ctx context.Context, calendarRef string, ev Event) (string, error) {
	ctx, done := c.start(ctx, "create", calendarRef)
	ref, err := c.next.CreateEvent(ctx, calendarRef, ev)
	done(err)
	return ref, err
}

func (c *InstrumentedClient) PatchEvent(ctx context.Context, calendarRef, eventRef string, ev Event) error {
	ctx, done := c.start(ctx, "patch", calendarRef)
	err := c.next.PatchEvent(ctx, calendarRef, eventRef, ev)
	done(err)
	return err
}

func (c *InstrumentedClient) DeleteEvent(ctx context.Context, calendarRef, eventRef string) error {
	ctx, done := c.start(ctx, "delete", calendarRef)
	err := c.next.DeleteEvent(ctx, calendarRef, eventRef)
	if errors.Is(err, ErrEventNotFound) {
		done(nil)
	} else {
		done(err)
	}
	return err
}

func (c *InstrumentedClient) start(ctx context.Context, op, calendarRef string) (context.Context, func(error)) {
	ctx, span := tracer.Start(ctx, "calendar."+op)
	span.SetAttributes(attribute.String("calendar.ref", calendarRef))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
		}
		c.metrics.ObserveCalendar(op, err)
		span.End()
	}
}
