package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/crucial707/rule-scheduler/internal/config"
	"github.com/crucial707/rule-scheduler/internal/models"
	"github.com/crucial707/rule-scheduler/internal/pce"
)

// ErrMessageInternal is the generic message for 500 responses. Do not expose internal details to clients.
const ErrMessageInternal = "internal server error"

// JSONError sends a JSON error response with a single "error" field.
func JSONError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// JSONValidationError sends a JSON error response with "error" and optional "fields" for field-level details.
// status is typically http.StatusBadRequest (400).
func JSONValidationError(w http.ResponseWriter, message string, fields map[string]string, status int) {
	out := map[string]interface{}{"error": message}
	if len(fields) > 0 {
		out["fields"] = fields
	}
	writeJSON(w, status, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// upstreamError maps engine, store and PCE errors onto a response.
func upstreamError(w http.ResponseWriter, log zerolog.Logger, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		JSONValidationError(w, "validation failed", verr.Fields, http.StatusBadRequest)
	case errors.Is(err, config.ErrNotReady):
		JSONError(w, "pce connection not configured", http.StatusServiceUnavailable)
	case errors.Is(err, pce.ErrNotFound):
		JSONError(w, "not found in pce", http.StatusNotFound)
	case errors.Is(err, pce.ErrUnreachable):
		log.Warn().Err(err).Msg("pce unreachable")
		JSONError(w, "pce unreachable", http.StatusBadGateway)
	default:
		log.Error().Err(err).Msg("request failed")
		JSONError(w, ErrMessageInternal, http.StatusInternalServerError)
	}
}

// publicMessage is the client-safe text for an error recorded on a job.
func publicMessage(err error) string {
	switch {
	case errors.Is(err, config.ErrNotReady):
		return "pce connection not configured"
	case errors.Is(err, pce.ErrUnreachable):
		return "pce unreachable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "check interrupted"
	}
	return "check failed"
}
