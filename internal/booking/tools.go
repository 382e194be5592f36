package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/wolfman30/clinic-booking-agent/internal/patients"
)

// Tool names exposed to the model.
const (
	ToolListProviders           = "list_providers"
	ToolListProcedures          = "list_procedures"
	ToolGetAvailability         = "get_availability"
	ToolCreateAppointment       = "create_appointment"
	ToolListPatientAppointments = "list_patient_appointments"
	ToolCancelAppointment       = "cancel_appointment"
	ToolRescheduleAppointment   = "reschedule_appointment"
	ToolSearchFAQ               = "search_faq"
	ToolEscalate                = "escalate"
	ToolRegisterPatient         = "register_patient"
)

// AllTools lists every tool in presentation order.
var AllTools = []string{
	ToolListProviders,
	ToolListProcedures,
	ToolGetAvailability,
	ToolCreateAppointment,
	ToolListPatientAppointments,
	ToolCancelAppointment,
	ToolRescheduleAppointment,
	ToolSearchFAQ,
	ToolEscalate,
	ToolRegisterPatient,
}

// Execute decodes and validates the model's arguments and runs the named
// tool. Every failure is returned as *Error.
func (s *Service) Execute(ctx context.Context, turn *TurnContext, name string, raw json.RawMessage) (result any, err error) {
	if turn == nil {
		return nil, &Error{Kind: KindInternal, Message: "missing turn context"}
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("booking: tool panicked", "tool", name, "panic", r)
			result, err = nil, &Error{Kind: KindInternal, Message: fmt.Sprintf("Could not run %s. Try again.", name)}
		}
	}()

	result, err = s.dispatch(ctx, turn, name, raw)
	if err != nil {
		be := AsError(name, err)
		if be.Kind == KindInternal {
			s.logger.Error("booking: tool failed", "tool", name, "conversation_id", turn.ConversationID, "error", err)
		}
		return nil, be
	}
	return result, nil
}

func (s *Service) dispatch(ctx context.Context, turn *TurnContext, name string, raw json.RawMessage) (any, error) {
	switch name {
	case ToolListProviders:
		var args struct {
			Specialty string `json:"specialty"`
		}
		if err := decode(raw, &args); err != nil {
			return nil, err
		}
		return s.ListProviders(ctx, args.Specialty)

	case ToolListProcedures:
		var args struct {
			ProviderID string `json:"providerId"`
		}
		if err := decode(raw, &args); err != nil {
			return nil, err
		}
		if err := validation.Validate(args.ProviderID, idRule); err != nil {
			return nil, invalid("providerId: %v", err)
		}
		var providerID *uuid.UUID
		if args.ProviderID != "" {
			id := uuid.MustParse(args.ProviderID)
			providerID = &id
		}
		return s.ListProcedures(ctx, providerID)

	case ToolGetAvailability:
		var args availabilityArgs
		if err := decodeValid(raw, &args); err != nil {
			return nil, err
		}
		q := AvailabilityQuery{
			ProviderID:  uuid.MustParse(args.ProviderID),
			ProcedureID: uuid.MustParse(args.ProcedureID),
			DaysAhead:   args.DaysAhead,
		}
		if args.TargetDate != "" {
			day, err := time.ParseInLocation(time.DateOnly, args.TargetDate, s.loc)
			if err != nil {
				return nil, invalid("targetDate %q is not a date; use the date field (YYYY-MM-DD) from availableDates", args.TargetDate)
			}
			q.TargetDate = &day
		}
		return s.GetAvailability(ctx, q)

	case ToolCreateAppointment:
		var args createArgs
		if err := decodeValid(raw, &args); err != nil {
			return nil, err
		}
		start, err := ParseInstant(args.StartTime, s.loc)
		if err != nil {
			return nil, invalid("startTime: use the start field of the chosen slot")
		}
		return s.CreateAppointment(ctx, turn, CreateInput{
			ProviderID:  uuid.MustParse(args.ProviderID),
			ProcedureID: uuid.MustParse(args.ProcedureID),
			StartTime:   start,
			Notes:       args.Notes,
		})

	case ToolListPatientAppointments:
		return s.ListPatientAppointments(ctx, turn)

	case ToolCancelAppointment:
		var args struct {
			AppointmentID string `json:"appointmentId"`
		}
		if err := decode(raw, &args); err != nil {
			return nil, err
		}
		if err := validation.Validate(args.AppointmentID, validation.Required, idRule); err != nil {
			return nil, invalid("appointmentId: %v", err)
		}
		return s.CancelAppointment(ctx, turn, uuid.MustParse(args.AppointmentID))

	case ToolRescheduleAppointment:
		var args rescheduleArgs
		if err := decodeValid(raw, &args); err != nil {
			return nil, err
		}
		start, err := ParseInstant(args.NewStartTime, s.loc)
		if err != nil {
			return nil, invalid("newStartTime: use the start field of the chosen slot")
		}
		return s.RescheduleAppointment(ctx, turn, uuid.MustParse(args.AppointmentID), start)

	case ToolSearchFAQ:
		var args struct {
			Query    string `json:"query"`
			Category string `json:"category"`
		}
		if err := decode(raw, &args); err != nil {
			return nil, err
		}
		if err := validation.Validate(strings.TrimSpace(args.Query), validation.Required); err != nil {
			return nil, invalid("query: %v", err)
		}
		return s.SearchFAQ(ctx, args.Query, args.Category)

	case ToolEscalate:
		var args struct {
			Reason string `json:"reason"`
		}
		if err := decode(raw, &args); err != nil {
			return nil, err
		}
		if err := validation.Validate(strings.TrimSpace(args.Reason), validation.Required); err != nil {
			return nil, invalid("reason: %v", err)
		}
		return s.Escalate(ctx, turn, args.Reason)

	case ToolRegisterPatient:
		var args registerArgs
		if err := decodeValid(raw, &args); err != nil {
			return nil, err
		}
		return s.RegisterPatient(ctx, turn, RegisterInput{
			Name:            args.Name,
			TaxID:           args.TaxID,
			CreateDependent: args.CreateDependent,
		})
	}
	return nil, notFound(fmt.Sprintf("Unknown tool %q.", name))
}

type availabilityArgs struct {
	ProviderID  string `json:"providerId"`
	ProcedureID string `json:"procedureId"`
	DaysAhead   int    `json:"daysAhead"`
	TargetDate  string `json:"targetDate"`
}

func (a availabilityArgs) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.ProviderID, validation.Required, idRule),
		validation.Field(&a.ProcedureID, validation.Required, idRule),
		validation.Field(&a.DaysAhead, validation.Min(0)),
		validation.Field(&a.TargetDate, validation.Date(time.DateOnly)),
	)
}

type createArgs struct {
	ProviderID  string `json:"providerId"`
	ProcedureID string `json:"procedureId"`
	StartTime   string `json:"startTime"`
	Notes       string `json:"notes"`
}

func (a createArgs) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.ProviderID, validation.Required, idRule),
		validation.Field(&a.ProcedureID, validation.Required, idRule),
		validation.Field(&a.StartTime, validation.Required),
		validation.Field(&a.Notes, validation.Length(0, 500)),
	)
}

type rescheduleArgs struct {
	AppointmentID string `json:"appointmentId"`
	NewStartTime  string `json:"newStartTime"`
}

func (a rescheduleArgs) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.AppointmentID, validation.Required, idRule),
		validation.Field(&a.NewStartTime, validation.Required),
	)
}

type registerArgs struct {
	Name            string `json:"name"`
	TaxID           string `json:"taxId"`
	CreateDependent bool   `json:"createDependent"`
}

func (a registerArgs) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Name, validation.Length(0, 120)),
		validation.Field(&a.TaxID, patients.TaxIDRule),
	)
}

var idRule = validation.By(func(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := uuid.Parse(s); err != nil {
		return errors.New("must be an id returned by a previous tool call")
	}
	return nil
})

func decode(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return invalid("arguments are not valid JSON for this tool: %v", err)
	}
	return nil
}

func decodeValid(raw json.RawMessage, dst validation.Validatable) error {
	if err := decode(raw, dst); err != nil {
		return err
	}
	if err := dst.Validate(); err != nil {
		var verrs validation.Errors
		if errors.As(err, &verrs) {
			return invalid("%v", verrs)
		}
		return invalid("%v", err)
	}
	return nil
}

var instantLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// ParseInstant accepts RFC3339, or a wall-clock time interpreted in loc.
func ParseInstant(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range instantLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("booking: unparseable time %q", value)
}
