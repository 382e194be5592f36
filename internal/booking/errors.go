package booking

import (
	"errors"
	"fmt"

	"github.com/wolfman30/clinic-booking-agent/internal/appointments"
	"github.com/wolfman30/clinic-booking-agent/internal/availability"
	"github.com/wolfman30/clinic-booking-agent/internal/catalog"
	"github.com/wolfman30/clinic-booking-agent/internal/patients"
)

// ErrorKind classifies a tool failure for the model.
type ErrorKind string

const (
	KindValidation          ErrorKind = "validation"
	KindAuthorization       ErrorKind = "authorization"
	KindNotFound            ErrorKind = "not_found"
	KindCalendarUnavailable ErrorKind = "calendar_unavailable"
	KindInternal            ErrorKind = "internal"
)

// Error is the structured failure handed back to the model as a tool result.
type Error struct {
	Kind                 ErrorKind `json:"kind"`
	Message              string    `json:"error"`
	RequiresRegistration bool      `json:"requiresRegistration,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("booking: %s: %s", e.Kind, e.Message)
}

func invalid(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func notFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// AsError maps domain errors onto tool errors. Anything unrecognized becomes
// an internal error with a generic message.
func AsError(tool string, err error) *Error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		return be
	}
	switch {
	case errors.Is(err, availability.ErrCalendarUnavailable):
		return &Error{Kind: KindCalendarUnavailable, Message: "The calendar could not be read right now. Do not say there are no times; apologise and offer to try again shortly or to hand over to a staff member."}
	case errors.Is(err, availability.ErrNoWorkingHours):
		return invalid("The provider does not work on that weekday. Ask the patient to pick another date from the list.")
	case errors.Is(err, availability.ErrProviderUnavailable),
		errors.Is(err, appointments.ErrProviderUnavailable),
		errors.Is(err, catalog.ErrProviderNotFound):
		return notFound("Provider not found or not taking bookings.")
	case errors.Is(err, availability.ErrProcedureUnavailable),
		errors.Is(err, appointments.ErrProcedureUnavailable),
		errors.Is(err, catalog.ErrProcedureNotFound):
		return notFound("Procedure not found or not offered by this provider.")
	case errors.Is(err, appointments.ErrNotFound):
		return notFound("Appointment not found.")
	case errors.Is(err, appointments.ErrStartInPast):
		return invalid("That time is in the past. Choose a future time.")
	case errors.Is(err, appointments.ErrNotCancellable):
		return invalid("This appointment has already happened and cannot be cancelled.")
	case errors.Is(err, appointments.ErrNotReschedulable):
		return invalid("This appointment is cancelled or completed and cannot be rescheduled.")
	case errors.Is(err, patients.ErrTaxIDTaken):
		return invalid("This tax id is already registered to another patient.")
	case errors.Is(err, patients.ErrInvalidTaxID):
		return invalid("The tax id is not valid. Ask the patient to check the digits.")
	}
	return &Error{Kind: KindInternal, Message: fmt.Sprintf("Could not run %s. Try again.", tool)}
}
