package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/wolfman30/clinic-booking-agent/internal/intake"
	"github.com/wolfman30/clinic-booking-agent/internal/messaging/evolution"
	"github.com/wolfman30/clinic-booking-agent/pkg/logging"
)

const (
	maxWebhookBody        = 1 << 20
	defaultProcessTimeout = 30 * time.Second
)

// EventGate is the intake side the webhook feeds.
type EventGate interface {
	HandleEvent(ctx context.Context, evt evolution.WebhookEvent) (intake.Result, error)
}

// EvolutionWebhookHandler acknowledges gateway events immediately and runs
// them through the intake gate in the background.
type EvolutionWebhookHandler struct {
	gate    EventGate
	timeout time.Duration
	logger  *logging.Logger
	wg      sync.WaitGroup
}

func NewEvolutionWebhookHandler(gate EventGate, timeout time.Duration, logger *logging.Logger) *EvolutionWebhookHandler {
	if gate == nil {
		panic("handlers: intake gate cannot be nil")
	}
	if timeout <= 0 {
		timeout = defaultProcessTimeout
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &EvolutionWebhookHandler{gate: gate, timeout: timeout, logger: logger.Component("webhook")}
}

func (h *EvolutionWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}
	var evt evolution.WebhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		h.logger.Warn("malformed webhook payload", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "received"})

	ctx := context.WithoutCancel(r.Context())
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, h.timeout)
		defer cancel()
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("panic while processing webhook", "panic", rec)
			}
		}()
		res, err := h.gate.HandleEvent(ctx, evt)
		if err != nil {
			h.logger.Error("webhook processing failed", "error", err, "result", string(res), "message_id", evt.Data.Key.ID)
			return
		}
		h.logger.Debug("webhook processed", "result", string(res), "message_id", evt.Data.Key.ID)
	}()
}

// Wait blocks until in-flight events finish. Used on shutdown.
func (h *EvolutionWebhookHandler) Wait() {
	h.wg.Wait()
}
