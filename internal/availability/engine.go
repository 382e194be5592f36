package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-booking-agent/internal/calendar"
	"github.com/wolfman30/clinic-booking-agent/internal/catalog"
	"github.com/wolfman30/clinic-booking-agent/pkg/logging"
)

const (
	// DefaultDaysAhead is the scan horizon when the caller gives none.
	DefaultDaysAhead = 14
	// MaxDaysAhead caps the scan horizon.
	MaxDaysAhead = 30
	// MaxDays is how many dates with availability a scan returns.
	MaxDays = 5
)

var (
	// ErrCalendarUnavailable wraps any failure reading busy time. Callers must
	// not report it as "no slots".
	ErrCalendarUnavailable = errors.New("availability: calendar unavailable")
	// ErrNoWorkingHours means the provider does not work on the requested weekday.
	ErrNoWorkingHours = errors.New("availability: provider does not work on that day")
	// ErrProviderUnavailable covers unknown or inactive providers.
	ErrProviderUnavailable = errors.New("availability: provider unavailable")
	// ErrProcedureUnavailable covers unknown, inactive or unlinked procedures.
	ErrProcedureUnavailable = errors.New("availability: procedure unavailable")
)

// Day summarizes one date with at least one open slot.
type Day struct {
	Date        string `json:"date"`
	DisplayDate string `json:"displayDate"`
	SlotCount   int    `json:"slotCount"`
	FirstSlot   string `json:"firstSlot"`
}

// Engine derives slots from working hours and calendar busy time.
type Engine struct {
	catalog  catalog.Repository
	calendar calendar.Client
	loc      *time.Location
	now      func() time.Time
	logger   *logging.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine wires the availability engine.
func NewEngine(cat catalog.Repository, cal calendar.Client, loc *time.Location, logger *logging.Logger, opts ...Option) *Engine {
	if cat == nil {
		panic("availability: catalog cannot be nil")
	}
	if cal == nil {
		panic("availability: calendar cannot be nil")
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	e := &Engine{catalog: cat, calendar: cal, loc: loc, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Location returns the clinic zone the engine renders slots in.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// SlotsForDate lists open slots on the given calendar date.
func (e *Engine) SlotsForDate(ctx context.Context, providerID, procedureID uuid.UUID, date time.Time) ([]Slot, error) {
	provider, procedure, err := e.resolve(ctx, providerID, procedureID)
	if err != nil {
		return nil, err
	}
	day := date.In(e.loc)
	wh, ok := provider.HoursFor(day.Weekday())
	if !ok {
		return nil, ErrNoWorkingHours
	}
	openAt, closeAt, err := wh.Window(day, e.loc)
	if err != nil {
		return nil, fmt.Errorf("availability: working hours: %w", err)
	}
	busy, err := e.calendar.FreeBusy(ctx, provider.CalendarRef, openAt, closeAt)
	if err != nil {
		e.logger.Warn("availability: free/busy failed", "provider_id", provider.ID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrCalendarUnavailable, err)
	}
	return GenerateSlots(openAt, closeAt, procedure.Duration(), busy, e.now(), e.loc), nil
}

// DaysWithAvailability scans up to daysAhead dates starting today and returns
// the first MaxDays that have at least one slot.
func (e *Engine) DaysWithAvailability(ctx context.Context, providerID, procedureID uuid.UUID, daysAhead int) ([]Day, error) {
	if daysAhead <= 0 {
		daysAhead = DefaultDaysAhead
	}
	if daysAhead > MaxDaysAhead {
		daysAhead = MaxDaysAhead
	}
	provider, procedure, err := e.resolve(ctx, providerID, procedureID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	today := now.In(e.loc)
	var days []Day
	for i := 0; i < daysAhead && len(days) < MaxDays; i++ {
		day := today.AddDate(0, 0, i)
		wh, ok := provider.HoursFor(day.Weekday())
		if !ok {
			continue
		}
		openAt, closeAt, err := wh.Window(day, e.loc)
		if err != nil {
			e.logger.Warn("availability: skipping malformed working hours", "provider_id", provider.ID, "weekday", day.Weekday(), "error", err)
			continue
		}
		if !closeAt.After(now) {
			continue
		}
		busy, err := e.calendar.FreeBusy(ctx, provider.CalendarRef, openAt, closeAt)
		if err != nil {
			e.logger.Warn("availability: free/busy failed", "provider_id", provider.ID, "error", err)
			return nil, fmt.Errorf("%w: %v", ErrCalendarUnavailable, err)
		}
		slots := GenerateSlots(openAt, closeAt, procedure.Duration(), busy, now, e.loc)
		if len(slots) == 0 {
			continue
		}
		days = append(days, Day{
			Date:        openAt.Format(time.DateOnly),
			DisplayDate: slots[0].DisplayDate,
			SlotCount:   len(slots),
			FirstSlot:   slots[0].DisplayStart,
		})
	}
	return days, nil
}

func (e *Engine) resolve(ctx context.Context, providerID, procedureID uuid.UUID) (*catalog.Provider, *catalog.Procedure, error) {
	provider, err := e.catalog.GetProvider(ctx, providerID)
	if err != nil {
		if errors.Is(err, catalog.ErrProviderNotFound) {
			return nil, nil, ErrProviderUnavailable
		}
		return nil, nil, fmt.Errorf("availability: load provider: %w", err)
	}
	if !provider.Active {
		return nil, nil, ErrProviderUnavailable
	}
	procedure, err := e.catalog.GetProcedure(ctx, procedureID)
	if err != nil {
		if errors.Is(err, catalog.ErrProcedureNotFound) {
			return nil, nil, ErrProcedureUnavailable
		}
		return nil, nil, fmt.Errorf("availability: load procedure: %w", err)
	}
	if !procedure.Active || (len(provider.Procedures) > 0 && !provider.Offers(procedure.ID)) {
		return nil, nil, ErrProcedureUnavailable
	}
	return provider, procedure, nil
}
