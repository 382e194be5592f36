package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/clinic-booking-agent/pkg/logging"
)

// TextSender delivers a chat message to an address.
type TextSender interface {
	SendText(ctx context.Context, to, body string) error
}

// EscalationAlert describes a conversation handed to staff.
type EscalationAlert struct {
	EscalationID   string
	ConversationID string
	PatientName    string
	PatientAddress string
	Reason         string
	CreatedAt      time.Time
}

// Service alerts clinic staff. The attendant always gets a chat message when
// an address is configured; email is optional.
type Service struct {
	text          TextSender
	email         EmailSender
	attendant     string
	attendantMail string
	clinicName    string
	loc           *time.Location
	logger        *logging.Logger
}

// Config addresses the staff recipients.
type Config struct {
	AttendantAddress string
	AttendantEmail   string
	ClinicName       string
	Location         *time.Location
}

// NewService creates a notification service. email may be nil.
func NewService(text TextSender, email EmailSender, cfg Config, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		text:          text,
		email:         email,
		attendant:     strings.TrimSpace(cfg.AttendantAddress),
		attendantMail: strings.TrimSpace(cfg.AttendantEmail),
		clinicName:    cfg.ClinicName,
		loc:           loc,
		logger:        logger,
	}
}

// NotifyEscalation sends the handoff alert on every configured channel and
// joins the channel errors.
func (s *Service) NotifyEscalation(ctx context.Context, alert EscalationAlert) error {
	var errs []error
	if s.text != nil && s.attendant != "" {
		if err := s.text.SendText(ctx, s.attendant, escalationText(alert, s.loc)); err != nil {
			s.logger.Error("notify: attendant alert failed", "error", err, "conversation_id", alert.ConversationID)
			errs = append(errs, fmt.Errorf("notify: attendant text: %w", err))
		}
	} else {
		s.logger.Warn("notify: no attendant address configured", "conversation_id", alert.ConversationID)
	}

	if s.email != nil && s.attendantMail != "" {
		msg := EmailMessage{
			To:      s.attendantMail,
			Subject: fmt.Sprintf("[%s] Patient needs attention", s.clinicName),
			Body:    escalationText(alert, s.loc),
		}
		if err := s.email.Send(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("notify: attendant email: %w", err))
		}
	}
	return errors.Join(errs...)
}

func escalationText(alert EscalationAlert, loc *time.Location) string {
	var b strings.Builder
	b.WriteString("Patient needs human attention\n")
	name := alert.PatientName
	if name == "" {
		name = "unregistered patient"
	}
	fmt.Fprintf(&b, "Patient: %s\n", name)
	fmt.Fprintf(&b, "Contact: %s\n", alert.PatientAddress)
	if alert.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", alert.Reason)
	}
	if !alert.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "Since: %s\n", alert.CreatedAt.In(loc).Format("02/01 15:04"))
	}
	fmt.Fprintf(&b, "Reply \"resume %s\" when done.", alert.PatientAddress)
	return b.String()
}
