package handlers

import (
	"database/sql"
	"net/http"

	"github.com/jmylchreest/gleaner/internal/version"
)

// HealthHandler reports service liveness and readiness.
type HealthHandler struct {
	db *sql.DB
}

// NewHealthHandler creates the health handler. db may be nil, in which case
// readiness skips the database check.
func NewHealthHandler(db *sql.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// Liveness answers as long as the process runs.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Health reports version info and database reachability.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if h.db != nil {
		if err := h.db.PingContext(r.Context()); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": version.Get(),
	})
}
