package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/clinic-booking-agent/internal/patients"
)

// ClinicProfile is the static clinic information placed in the instructions.
type ClinicProfile struct {
	Name    string
	BotName string
	Phone   string
	Address string
}

const basePrompt = `You are %s, the virtual assistant of %s. You talk to patients over WhatsApp.
Reply in the patient's language (Brazilian Portuguese unless they write in another language).
Keep messages short and friendly. You may split a reply into separate messages with [PAUSE].

Booking rules:
- Use list_providers and list_procedures to learn ids. Never invent ids.
- Call get_availability without targetDate first, offer the returned dates, then call it again with the chosen targetDate.
- When offering times, show each slot's displayStart. When booking, pass the slot's start value exactly as returned.
- Before booking, summarize procedure, provider, date and time and ask the patient to confirm.
- Never tell the patient an appointment is booked unless create_appointment succeeded.
- If a tool returns requiresRegistration, ask for the missing details and call register_patient.
- If the patient books for someone else (a child, a relative), call register_patient with createDependent.
- Cancelling or rescheduling: call list_patient_appointments, confirm which one, then act.

Escalate with the escalate tool when the patient asks for a human, is upset or reports an emergency,
or when you cannot solve the request with the tools you have.`

// BuildSystemPrompt renders the instructions for one turn.
func BuildSystemPrompt(clinic ClinicProfile, patient *patients.Patient, now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	var b strings.Builder
	fmt.Fprintf(&b, basePrompt, clinic.BotName, clinic.Name)

	b.WriteString("\n\nClinic details:\n")
	if clinic.Phone != "" {
		fmt.Fprintf(&b, "- Phone: %s\n", clinic.Phone)
	}
	if clinic.Address != "" {
		fmt.Fprintf(&b, "- Address: %s\n", clinic.Address)
	}
	local := now.In(loc)
	fmt.Fprintf(&b, "- Current date and time: %s (%s)\n", local.Format("Monday, 02 January 2006 15:04"), loc.String())

	b.WriteString("\nPatient status:\n")
	b.WriteString(patientBlock(patient))
	return b.String()
}

func patientBlock(p *patients.Patient) string {
	if p == nil {
		return "- Unknown patient.\n"
	}
	var b strings.Builder
	name := p.NameOrEmpty()
	if name == "" {
		name = "(not provided)"
	}
	taxID := "(not provided)"
	if p.TaxIDOrEmpty() != "" {
		taxID = patients.FormatTaxID(p.TaxIDOrEmpty())
	}
	fmt.Fprintf(&b, "- Name: %s\n- CPF: %s\n", name, taxID)
	if p.Registered() {
		b.WriteString("- Registration: complete. You can book directly.\n")
		return b.String()
	}
	missing := make([]string, 0, 2)
	for _, field := range p.MissingFields() {
		switch field {
		case "name":
			missing = append(missing, "full name")
		case "taxId":
			missing = append(missing, "CPF")
		default:
			missing = append(missing, field)
		}
	}
	fmt.Fprintf(&b, "- Registration: incomplete, missing %s. Collect it before booking.\n", strings.Join(missing, " and "))
	return b.String()
}
