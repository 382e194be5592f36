package bootstrap

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/wolfman30/clinic-booking-agent/internal/calendar"
	appconfig "github.com/wolfman30/clinic-booking-agent/internal/config"
	"github.com/wolfman30/clinic-booking-agent/internal/messaging/evolution"
	"github.com/wolfman30/clinic-booking-agent/internal/notify"
	"github.com/wolfman30/clinic-booking-agent/pkg/logging"
)

// BuildSender creates the Evolution gateway client.
func BuildSender(cfg *appconfig.Config, logger *logging.Logger) (*evolution.Client, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	return evolution.New(evolution.Config{
		BaseURL:    cfg.EvolutionAPIURL,
		APIKey:     cfg.EvolutionAPIKey,
		Instance:   cfg.EvolutionInstance,
		Timeout:    cfg.GatewayTimeout,
		MaxRetries: 2,
		Logger:     logger,
	})
}

// BuildEmailSender prefers SendGrid, then SES. With an attendant email but no
// provider, alerts are logged by a stub. It returns nil when no attendant
// email is set; staff alerts then go over chat only.
func BuildEmailSender(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) notify.EmailSender {
	if cfg == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(cfg.SendGridAPIKey) != "" {
		logger.Info("escalation email via sendgrid")
		return notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
	}
	if strings.TrimSpace(cfg.SESFromEmail) != "" && awsCfg != nil {
		logger.Info("escalation email via ses")
		return notify.NewSESSender(sesv2.NewFromConfig(*awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
	}
	if strings.TrimSpace(cfg.AttendantEmail) != "" {
		logger.Warn("ATTENDANT_EMAIL set without SENDGRID_API_KEY or SES_FROM_EMAIL; escalation email is logged only")
		return notify.NewStubEmailSender(logger)
	}
	return nil
}

// BuildCalendar returns the Google Calendar client, or an in-memory calendar
// with a warning when no credentials are configured.
func BuildCalendar(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (calendar.Client, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(cfg.GoogleCredentialsJSON) == "" && strings.TrimSpace(cfg.GoogleCredentialsFile) == "" {
		logger.Warn("google calendar not configured; using in-memory calendar")
		return calendar.NewMemoryClient(), nil
	}
	return calendar.NewGoogleClient(ctx, calendar.GoogleConfig{
		CredentialsJSON: cfg.GoogleCredentialsJSON,
		CredentialsFile: cfg.GoogleCredentialsFile,
		Location:        cfg.Location(),
		Timeout:         cfg.CalendarTimeout,
	}, logger)
}
