package handlers

import (
	"net/http"
	"time"

	"github.com/Traviscatt/picknroll-sub000/internal/logger"
)

// Health reports the status of each dependency
func (h *APIHandlers) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	checks := map[string]string{
		"database": "ok",
		"pubsub":   "ok",
	}
	code := http.StatusOK

	if err := h.dal.Ping(); err != nil {
		logger.Warn("Health check: database ping failed", "error", err)
		checks["database"] = err.Error()
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	if h.pubsub == nil {
		checks["pubsub"] = "not configured"
	}

	writeJSON(w, code, map[string]interface{}{
		"status":      status,
		"checks":      checks,
		"subscribers": h.subscriberCount(),
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
}

// Liveness reports that the process is serving
func (h *APIHandlers) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// Readiness reports whether the database is reachable
func (h *APIHandlers) Readiness(w http.ResponseWriter, r *http.Request) {
	if err := h.dal.Ping(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"reason": "database unavailable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *APIHandlers) subscriberCount() int {
	if h.pubsub == nil {
		return 0
	}
	return h.pubsub.SubscriberCount()
}
