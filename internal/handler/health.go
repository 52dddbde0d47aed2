package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/guardforce/messaging-platform/internal/store"
)

// ReadinessChecker reports whether a dependency can serve requests.
type ReadinessChecker interface {
	Ready(ctx context.Context) bool
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	db      *store.DB
	signals ReadinessChecker
}

// NewHealthHandler creates a new health handler. signals is the call signal
// backend; it may be nil.
func NewHealthHandler(db *store.DB, signals ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		db:      db,
		signals: signals,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "database unavailable",
		})
		return
	}

	if h.signals != nil && !h.signals.Ready(ctx) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "call signal backend unavailable",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
