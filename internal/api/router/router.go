package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/clinic-booking-agent/internal/conversation"
	"github.com/wolfman30/clinic-booking-agent/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/clinic-booking-agent/internal/http/middleware"
	"github.com/wolfman30/clinic-booking-agent/pkg/logging"
)

// WebhookTokenHeader carries the shared secret configured on the gateway.
const WebhookTokenHeader = "X-Webhook-Token"

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	Webhook        *handlers.EvolutionWebhookHandler
	WebhookToken   string
	RateLimiter    *httpmiddleware.RateLimiter
	AdminSecret    string
	Escalations    *handlers.AdminEscalationsHandler
	Reminders      *handlers.AdminRemindersHandler
	Jobs           *conversation.JobHandler
	MetricsHandler http.Handler
}

// New creates the HTTP surface: health, metrics, the gateway webhook and the
// JWT-protected admin routes. Nil handlers leave their routes unmounted.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Get("/health", health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.Webhook != nil {
		r.Group(func(hook chi.Router) {
			if cfg.RateLimiter != nil {
				hook.Use(cfg.RateLimiter.Middleware)
			}
			hook.Use(httpmiddleware.WebhookToken(WebhookTokenHeader, cfg.WebhookToken))
			hook.Post("/webhooks/evolution", cfg.Webhook.Handle)
		})
	}

	r.Route("/admin", func(admin chi.Router) {
		admin.Use(httpmiddleware.AdminJWT(cfg.AdminSecret))
		if cfg.Escalations != nil {
			admin.Get("/escalations", cfg.Escalations.List)
			admin.Post("/escalations/{escalationID}/resolve", cfg.Escalations.Resolve)
		}
		if cfg.Reminders != nil {
			admin.Post("/reminders/sweep", cfg.Reminders.Sweep)
		}
		if cfg.Jobs != nil {
			admin.Get("/turns/{jobID}", cfg.Jobs.GetJob)
		}
	})

	return r
}

func health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
