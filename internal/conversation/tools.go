package conversation

import (
	"context"
	"encoding/json"

	"github.com/wolfman30/clinic-booking-agent/internal/booking"
)

// ToolExecutor runs a named tool for the current turn. Failures are
// *booking.Error values.
type ToolExecutor interface {
	Execute(ctx context.Context, turn *booking.TurnContext, name string, args json.RawMessage) (any, error)
}

var toolSpecs = map[string]ToolSpec{
	booking.ToolListProviders: {
		Name:        booking.ToolListProviders,
		Description: "List the clinic's active providers with their specialty, the procedures they perform and the weekdays they work.",
		Parameters: []ToolParam{
			{Name: "specialty", Type: "string", Description: "Optional specialty filter, e.g. orthodontics."},
		},
	},
	booking.ToolListProcedures: {
		Name:        booking.ToolListProcedures,
		Description: "List bookable procedures with duration and price. Pass providerId to list only that provider's procedures.",
		Parameters: []ToolParam{
			{Name: "providerId", Type: "string", Description: "Provider id from list_providers."},
		},
	},
	booking.ToolGetAvailability: {
		Name: booking.ToolGetAvailability,
		Description: "Find open times. Without targetDate it returns up to 5 dates that have openings; " +
			"after the patient picks one, call again with targetDate to get that day's slots.",
		Parameters: []ToolParam{
			{Name: "providerId", Type: "string", Description: "Provider id.", Required: true},
			{Name: "procedureId", Type: "string", Description: "Procedure id.", Required: true},
			{Name: "daysAhead", Type: "integer", Description: "How many days ahead to search (default 14, max 30)."},
			{Name: "targetDate", Type: "string", Description: "A date field from availableDates, formatted YYYY-MM-DD."},
		},
	},
	booking.ToolCreateAppointment: {
		Name:        booking.ToolCreateAppointment,
		Description: "Book an appointment for the patient in this conversation. Only call after the patient confirmed the slot.",
		Parameters: []ToolParam{
			{Name: "providerId", Type: "string", Description: "Provider id.", Required: true},
			{Name: "procedureId", Type: "string", Description: "Procedure id.", Required: true},
			{Name: "startTime", Type: "string", Description: "The exact start field of the chosen slot.", Required: true},
			{Name: "notes", Type: "string", Description: "Optional notes for the provider."},
		},
	},
	booking.ToolListPatientAppointments: {
		Name:        booking.ToolListPatientAppointments,
		Description: "List the patient's upcoming appointments.",
	},
	booking.ToolCancelAppointment: {
		Name:        booking.ToolCancelAppointment,
		Description: "Cancel one of the patient's appointments after they confirmed.",
		Parameters: []ToolParam{
			{Name: "appointmentId", Type: "string", Description: "Id from list_patient_appointments.", Required: true},
		},
	},
	booking.ToolRescheduleAppointment: {
		Name:        booking.ToolRescheduleAppointment,
		Description: "Move one of the patient's appointments to a new start time taken from get_availability.",
		Parameters: []ToolParam{
			{Name: "appointmentId", Type: "string", Description: "Id from list_patient_appointments.", Required: true},
			{Name: "newStartTime", Type: "string", Description: "The exact start field of the new slot.", Required: true},
		},
	},
	booking.ToolSearchFAQ: {
		Name:        booking.ToolSearchFAQ,
		Description: "Search the clinic FAQ (prices, insurance, parking, policies).",
		Parameters: []ToolParam{
			{Name: "query", Type: "string", Description: "Keywords from the patient's question.", Required: true},
			{Name: "category", Type: "string", Description: "Optional FAQ category."},
		},
	},
	booking.ToolEscalate: {
		Name:        booking.ToolEscalate,
		Description: "Hand the conversation to a staff member. Use when the patient asks for a person, is upset, or you cannot help.",
		Parameters: []ToolParam{
			{Name: "reason", Type: "string", Description: "Short reason for the handoff.", Required: true},
		},
	},
	booking.ToolRegisterPatient: {
		Name: booking.ToolRegisterPatient,
		Description: "Save the patient's full name and/or tax id (CPF). Set createDependent when booking for someone else " +
			"using this phone, e.g. a child; later bookings in the conversation are then for that person.",
		Parameters: []ToolParam{
			{Name: "name", Type: "string", Description: "Full name."},
			{Name: "taxId", Type: "string", Description: "CPF, digits or formatted."},
			{Name: "createDependent", Type: "boolean", Description: "Register a new person on this phone instead of updating the current one."},
		},
	},
}

// ToolsForStage returns the specs offered at stage, in presentation order.
func ToolsForStage(stage Stage) []ToolSpec {
	names := stage.Tools()
	specs := make([]ToolSpec, 0, len(names))
	for _, name := range names {
		if spec, ok := toolSpecs[name]; ok {
			specs = append(specs, spec)
		}
	}
	return specs
}
