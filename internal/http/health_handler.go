package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger reports whether the backing database is reachable. *sqlx.DB
// satisfies it; a nil Pinger means the API runs on the in-memory store.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler serves the unauthenticated health endpoints.
type HealthHandler struct {
	environment string
	db          Pinger
	logger      *slog.Logger
}

// NewHealthHandler creates a handler. db may be nil.
func NewHealthHandler(environment string, db Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{environment: environment, db: db, logger: logger}
}

// Health reports basic process identity.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"environment": h.environment,
	})
}

// Live reports that the process is up.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "alive"})
}

// Ready reports whether the API can serve traffic, pinging the database
// when one is configured.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		h.logger.Error("readiness ping", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":   "not_ready",
			"database": "unreachable",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ready",
		"database": "connected",
	})
}
