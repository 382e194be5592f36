package catalog

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrProviderNotFound is returned for unknown provider ids.
	ErrProviderNotFound = errors.New("catalog: provider not found")
	// ErrProcedureNotFound is returned for unknown procedure ids.
	ErrProcedureNotFound = errors.New("catalog: procedure not found")
)

// Provider is a practitioner whose schedule lives in an external calendar.
type Provider struct {
	ID           uuid.UUID      `json:"id"`
	Name         string         `json:"name"`
	Specialty    *string        `json:"specialty,omitempty"`
	Bio          *string        `json:"bio,omitempty"`
	CalendarRef  string         `json:"-"`
	Active       bool           `json:"active"`
	WorkingHours []WorkingHours `json:"workingHours,omitempty"`
	Procedures   []Procedure    `json:"procedures,omitempty"`
}

// WorkingHours is the single daily window a provider works on a weekday.
type WorkingHours struct {
	Weekday time.Weekday `json:"weekday"`
	Start   string       `json:"start"`
	End     string       `json:"end"`
	Active  bool         `json:"active"`
}

// Procedure is a bookable service with a fixed duration.
type Procedure struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Description     *string   `json:"description,omitempty"`
	DurationMinutes int       `json:"durationMinutes"`
	PriceCents      *int64    `json:"priceCents,omitempty"`
	Active          bool      `json:"active"`
}

// Duration returns the procedure length.
func (p Procedure) Duration() time.Duration {
	return time.Duration(p.DurationMinutes) * time.Minute
}

// SpecialtyOrEmpty dereferences Specialty.
func (p Provider) SpecialtyOrEmpty() string {
	if p.Specialty == nil {
		return ""
	}
	return *p.Specialty
}

// HoursFor returns the active window for weekday, if any.
func (p Provider) HoursFor(weekday time.Weekday) (WorkingHours, bool) {
	for _, wh := range p.WorkingHours {
		if wh.Weekday == weekday && wh.Active {
			return wh, true
		}
	}
	return WorkingHours{}, false
}

// Offers reports whether the provider is linked to the procedure.
func (p Provider) Offers(procedureID uuid.UUID) bool {
	for _, proc := range p.Procedures {
		if proc.ID == procedureID {
			return true
		}
	}
	return false
}

// ParseClock parses "HH:MM" into hour and minute.
func ParseClock(value string) (int, int, error) {
	var h, m int
	value = strings.TrimSpace(value)
	if _, err := fmt.Sscanf(value, "%d:%d", &h, &m); err != nil {
		return 0, 0, fmt.Errorf("catalog: invalid clock %q: %w", value, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("catalog: clock out of range %q", value)
	}
	return h, m, nil
}

// Window materializes the working hours on the given calendar day in loc.
func (wh WorkingHours) Window(day time.Time, loc *time.Location) (time.Time, time.Time, error) {
	sh, sm, err := ParseClock(wh.Start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	eh, em, err := ParseClock(wh.End)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	y, mo, d := day.In(loc).Date()
	return time.Date(y, mo, d, sh, sm, 0, 0, loc), time.Date(y, mo, d, eh, em, 0, 0, loc), nil
}
