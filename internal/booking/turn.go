package booking

import (
	"time"

	"github.com/google/uuid"
)

// TurnContext carries the identity of one agent turn through tool dispatch.
// Tools read the patient from here and never from model arguments;
// register_patient may replace PatientID when it creates a dependent.
type TurnContext struct {
	ConversationID uuid.UUID
	PatientID      uuid.UUID
	Address        string
	LastBooking    *Confirmation
}

// Confirmation is what the patient needs to hear after a successful booking.
type Confirmation struct {
	AppointmentID uuid.UUID `json:"id"`
	PatientName   string    `json:"patientName"`
	PatientTaxID  string    `json:"patientTaxId"`
	Procedure     string    `json:"procedure"`
	Provider      string    `json:"provider"`
	StartTime     time.Time `json:"startTime"`
	EndTime       time.Time `json:"endTime"`
	DisplayStart  string    `json:"displayStart"`
}
