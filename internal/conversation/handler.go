package conversation

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-booking-agent/pkg/logging"
)

// JobHandler exposes turn job status over HTTP.
type JobHandler struct {
	jobs   JobRecorder
	logger *logging.Logger
}

func NewJobHandler(jobs JobRecorder, logger *logging.Logger) *JobHandler {
	if jobs == nil {
		panic("conversation: job recorder cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &JobHandler{jobs: jobs, logger: logger}
}

// GetJob handles GET /admin/turns/{jobID}.
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(chi.URLParam(r, "jobID"))
	if jobID == "" {
		http.Error(w, "missing job id", http.StatusBadRequest)
		return
	}
	job, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load job", "error", err, "job_id", jobID)
		http.Error(w, "failed to load job", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(job); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
