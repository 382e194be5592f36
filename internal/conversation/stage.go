package conversation

import (
	"regexp"
	"strings"

	"github.com/wolfman30/clinic-booking-agent/internal/booking"
)

// Stage is where the dialogue stands, inferred from the last thing the
// assistant said. It only narrows the tool set offered to the model.
type Stage string

const (
	StageInitial         Stage = "initial"
	StageAwaitingDay     Stage = "awaiting_day"
	StageAwaitingTime    Stage = "awaiting_time"
	StagePreConfirmation Stage = "pre_confirmation"
	StageCancelFlow      Stage = "cancel_flow"
	StageRegistration    Stage = "registration"
)

// Checked in order; the first match wins.
var stagePatterns = []struct {
	stage Stage
	re    *regexp.Regexp
}{
	{StagePreConfirmation, regexp.MustCompile(`posso confirmar|confirma o agendamento|você confirma|pode confirmar|shall i confirm|can i confirm|do you confirm|should i book|confirm (the|this|your) (booking|appointment)`)},
	{StageAwaitingTime, regexp.MustCompile(`qual.*horário|que horas|escolha.*horário|prefere.*horário|horários disponíveis|which time|what time|choose a time|pick a time|prefer.*time|available times`)},
	{StageAwaitingDay, regexp.MustCompile(`para que dia|qual.*dia|que dia|informe o dia|which day|what day|which date|what date|pick a (day|date)|choose a (day|date)`)},
	{StageCancelFlow, regexp.MustCompile(`cpf.*cancelar|cpf.*reagendar|cancelar.*cpf|confirmar.*cancelamento|confirme.*cpf|confirm.*cancellation|which appointment.*(cancel|reschedule)|(cancel|reschedule).*which appointment`)},
	{StageRegistration, regexp.MustCompile(`(nome completo|cpf).*(cadastr|informe|preciso|necessário|nos informe)|(informe|preciso).*(nome|cpf)|(full name|tax id|cpf).*(register|need|provide|send)|(need|provide|send).*(full name|tax id|cpf)`)},
}

// DetectStage classifies the last outbound message. Empty or unrecognized
// text is StageInitial.
func DetectStage(lastOutbound string) Stage {
	text := strings.ToLower(strings.TrimSpace(lastOutbound))
	if text == "" {
		return StageInitial
	}
	for _, p := range stagePatterns {
		if p.re.MatchString(text) {
			return p.stage
		}
	}
	return StageInitial
}

// Tools lists the tool names offered at this stage.
func (s Stage) Tools() []string {
	switch s {
	case StagePreConfirmation:
		return []string{booking.ToolCreateAppointment, booking.ToolGetAvailability, booking.ToolRegisterPatient, booking.ToolEscalate}
	case StageAwaitingTime:
		return []string{booking.ToolGetAvailability, booking.ToolRegisterPatient, booking.ToolEscalate}
	case StageAwaitingDay:
		return []string{booking.ToolGetAvailability, booking.ToolListPatientAppointments, booking.ToolRegisterPatient, booking.ToolEscalate}
	case StageCancelFlow:
		return []string{booking.ToolListPatientAppointments, booking.ToolCancelAppointment, booking.ToolRescheduleAppointment, booking.ToolGetAvailability, booking.ToolEscalate}
	case StageRegistration:
		return []string{booking.ToolRegisterPatient, booking.ToolEscalate}
	case StageInitial:
		return append([]string(nil), booking.AllTools...)
	}
	return append([]string(nil), booking.AllTools...)
}
