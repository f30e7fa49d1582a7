package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/crucial707/rule-scheduler/internal/engine"
	"github.com/crucial707/rule-scheduler/internal/middleware"
	"github.com/crucial707/rule-scheduler/internal/models"
	"github.com/crucial707/rule-scheduler/internal/pce"
)

// ScheduleService is the part of the engine the schedule endpoints use.
type ScheduleService interface {
	Schedules(ctx context.Context) ([]models.Schedule, error)
	Schedule(ctx context.Context, ref string) (*models.Schedule, error)
	Submit(ctx context.Context, s models.Schedule) error
	Remove(ctx context.Context, ref string) error
	Location() *time.Location
}

// ScheduleHandler serves /schedules. Target refs are PCE hrefs taken from
// the wildcard, so /schedules/orgs/1/sec_policy/draft/rule_sets/7 addresses
// rule set 7.
type ScheduleHandler struct {
	Engine ScheduleService
	Log    zerolog.Logger
}

func targetRef(r *http.Request) string {
	ref := strings.Trim(chi.URLParam(r, "*"), "/")
	if ref == "" {
		return ""
	}
	return "/" + ref
}

func actorContext(r *http.Request) context.Context {
	if sub := middleware.Subject(r.Context()); sub != "" {
		return engine.ContextWithActor(r.Context(), sub)
	}
	return r.Context()
}

// ListSchedules returns every record in pass order.
func (h *ScheduleHandler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	list, err := h.Engine.Schedules(r.Context())
	if err != nil {
		upstreamError(w, h.Log, err)
		return
	}
	if list == nil {
		list = []models.Schedule{}
	}
	writeJSON(w, http.StatusOK, list)
}

// GetSchedule returns the record for one target.
func (h *ScheduleHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	ref := targetRef(r)
	if ref == "" {
		JSONError(w, "target ref is required", http.StatusBadRequest)
		return
	}
	s, err := h.Engine.Schedule(r.Context(), ref)
	if err != nil {
		upstreamError(w, h.Log, err)
		return
	}
	if s == nil {
		JSONError(w, "schedule not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// PutSchedule creates or replaces the schedule on a target. 201 on create,
// 200 on replace.
func (h *ScheduleHandler) PutSchedule(w http.ResponseWriter, r *http.Request) {
	ref := targetRef(r)
	if ref == "" {
		JSONError(w, "target ref is required", http.StatusBadRequest)
		return
	}
	var input models.ScheduleInput
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&input); err != nil {
		JSONError(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	s, err := input.Build(ref, pce.IsRuleSetHref(ref), h.Engine.Location())
	if err != nil {
		upstreamError(w, h.Log, err)
		return
	}

	prev, err := h.Engine.Schedule(r.Context(), ref)
	if err != nil {
		upstreamError(w, h.Log, err)
		return
	}
	if prev != nil {
		s.CreatedAt = prev.CreatedAt
	}
	if err := h.Engine.Submit(actorContext(r), s); err != nil {
		upstreamError(w, h.Log, err)
		return
	}

	saved, err := h.Engine.Schedule(r.Context(), ref)
	if err != nil || saved == nil {
		saved = &s
	}
	status := http.StatusCreated
	if prev != nil {
		status = http.StatusOK
	}
	writeJSON(w, status, saved)
}

// DeleteSchedule removes the schedule and strips the target's tag.
func (h *ScheduleHandler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	ref := targetRef(r)
	if ref == "" {
		JSONError(w, "target ref is required", http.StatusBadRequest)
		return
	}
	if err := h.Engine.Remove(actorContext(r), ref); err != nil {
		if errors.Is(err, engine.ErrNoSchedule) {
			JSONError(w, "schedule not found", http.StatusNotFound)
			return
		}
		upstreamError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
