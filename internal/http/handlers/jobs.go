package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/gleaner/internal/models"
	"github.com/jmylchreest/gleaner/internal/repository"
)

// JobsHandler manages the async extraction queue.
type JobsHandler struct {
	jobRepo repository.JobRepository
	logger  *slog.Logger
}

// NewJobsHandler creates the jobs handler.
func NewJobsHandler(jobRepo repository.JobRepository, logger *slog.Logger) *JobsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobsHandler{jobRepo: jobRepo, logger: logger.With("component", "jobs-handler")}
}

// jobResponse is the job envelope with the decoded result attached.
type jobResponse struct {
	*models.Job
	Result json.RawMessage `json:"result,omitempty"`
}

// Create queues an extraction job and returns it immediately.
func (h *JobsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ExtractRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	job := &models.Job{
		ID:          ulid.Make().String(),
		Instruction: req.Instruction,
		URL:         req.URL,
		Provider:    req.Provider,
		Status:      models.JobStatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.jobRepo.Create(r.Context(), job); err != nil {
		h.logger.Error("failed to create job", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	h.logger.Info("job queued", "job_id", job.ID, "url", job.URL)
	writeJSON(w, http.StatusAccepted, jobResponse{Job: job})
}

// Get returns a job by id, including its result once finished.
func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	job, err := h.jobRepo.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to load job", "job_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	resp := jobResponse{Job: job}
	if job.ResultJSON != "" {
		resp.Result = json.RawMessage(job.ResultJSON)
	}
	writeJSON(w, http.StatusOK, resp)
}
