package handlers

import (
	"context"
	"net/http"
	"time"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	// Store reports whether the schedule store can be read.
	Store func(ctx context.Context) error
	// PCE reports whether credentials are configured. It does not call the PCE.
	PCE func() error
}

// Health always answers ok while the process is serving.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready answers 503 naming each failing dependency.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	failing := map[string]string{}
	if h.Store != nil {
		if err := h.Store(ctx); err != nil {
			failing["store"] = "unavailable"
		}
	}
	if h.PCE != nil {
		if err := h.PCE(); err != nil {
			failing["pce"] = err.Error()
		}
	}
	if len(failing) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "not ready", "checks": failing})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
