package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/wolfman30/clinic-booking-agent/internal/reminders"
	"github.com/wolfman30/clinic-booking-agent/pkg/logging"
)

type ReminderSweeper interface {
	RunOnce(ctx context.Context) (reminders.Result, error)
}

// AdminRemindersHandler triggers a reminder sweep on demand.
type AdminRemindersHandler struct {
	sweeper ReminderSweeper
	logger  *logging.Logger
}

func NewAdminRemindersHandler(sweeper ReminderSweeper, logger *logging.Logger) *AdminRemindersHandler {
	if sweeper == nil {
		panic("handlers: reminder sweeper cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminRemindersHandler{sweeper: sweeper, logger: logger}
}

// Sweep handles POST /admin/reminders/sweep.
func (h *AdminRemindersHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	res, err := h.sweeper.RunOnce(r.Context())
	if errors.Is(err, reminders.ErrSweepInProgress) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "a sweep is already running"})
		return
	}
	if err != nil {
		h.logger.Error("manual reminder sweep failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "sweep failed"})
		return
	}
	writeJSON(w, http.StatusOK, res)
}
