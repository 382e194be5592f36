package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/clinic-booking-agent/internal/http/middleware"
	"github.com/wolfman30/clinic-booking-agent/internal/support"
	"github.com/wolfman30/clinic-booking-agent/pkg/logging"
)

type EscalationAdmin interface {
	ListPending(ctx context.Context, limit int) ([]support.Escalation, error)
	Resolve(ctx context.Context, id uuid.UUID) (*support.Escalation, error)
}

// AdminEscalationsHandler lets staff see and close human handoffs.
type AdminEscalationsHandler struct {
	svc    EscalationAdmin
	logger *logging.Logger
}

func NewAdminEscalationsHandler(svc EscalationAdmin, logger *logging.Logger) *AdminEscalationsHandler {
	if svc == nil {
		panic("handlers: escalation service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminEscalationsHandler{svc: svc, logger: logger}
}

// List handles GET /admin/escalations.
func (h *AdminEscalationsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 200 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be between 1 and 200"})
			return
		}
		limit = n
	}
	list, err := h.svc.ListPending(r.Context(), limit)
	if err != nil {
		h.logger.Error("list escalations", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list escalations"})
		return
	}
	if list == nil {
		list = []support.Escalation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"escalations": list, "count": len(list)})
}

// Resolve handles POST /admin/escalations/{escalationID}/resolve.
func (h *AdminEscalationsHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "escalationID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid escalation id"})
		return
	}
	e, err := h.svc.Resolve(r.Context(), id)
	switch {
	case errors.Is(err, support.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "escalation not found"})
		return
	case errors.Is(err, support.ErrAlreadyResolved):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "escalation already resolved"})
		return
	case err != nil:
		h.logger.Error("resolve escalation", "error", err, "escalation_id", id)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to resolve escalation"})
		return
	}
	h.logger.Info("escalation resolved by admin", "escalation_id", id, "admin", middleware.AdminSubject(r.Context()))
	writeJSON(w, http.StatusOK, e)
}
