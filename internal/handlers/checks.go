package handlers

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/crucial707/rule-scheduler/internal/engine"
	"github.com/crucial707/rule-scheduler/internal/metrics"
)

// jobRetention is how long finished check jobs stay queryable.
const jobRetention = time.Hour

const (
	JobRunning  = "running"
	JobComplete = "complete"
	JobError    = "error"
)

// Checker runs one reconciliation pass.
type Checker interface {
	Check(ctx context.Context, silent bool) ([]engine.Entry, error)
}

// CheckJob is an API-triggered pass.
type CheckJob struct {
	ID         string                 `json:"id"`
	Status     string                 `json:"status"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt *time.Time             `json:"finished_at,omitempty"`
	Entries    []engine.Entry         `json:"entries,omitempty"`
	Summary    map[engine.Outcome]int `json:"summary,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// CheckHandler runs passes on demand. Jobs live in memory only.
type CheckHandler struct {
	Engine Checker
	Log    zerolog.Logger

	mu   sync.Mutex
	jobs map[string]*CheckJob
	wg   sync.WaitGroup
	now  func() time.Time
}

func (h *CheckHandler) clock() time.Time {
	if h.now != nil {
		return h.now()
	}
	return time.Now()
}

// StartCheck starts a pass. With ?wait=true it blocks and returns the log;
// otherwise it answers 202 with the job and a Location to poll.
func (h *CheckHandler) StartCheck(w http.ResponseWriter, r *http.Request) {
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		entries, err := h.Engine.Check(r.Context(), false)
		if err != nil {
			upstreamError(w, h.Log, err)
			return
		}
		if entries == nil {
			entries = []engine.Entry{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"entries": entries,
			"summary": engine.Summary(entries),
		})
		return
	}

	job := &CheckJob{ID: uuid.NewString(), Status: JobRunning, StartedAt: h.clock().UTC()}
	h.mu.Lock()
	if h.jobs == nil {
		h.jobs = make(map[string]*CheckJob)
	}
	h.prune()
	h.jobs[job.ID] = job
	snapshot := *job
	h.mu.Unlock()

	h.wg.Add(1)
	metrics.CheckJobsRunning.Inc()
	go h.run(context.WithoutCancel(r.Context()), job.ID)

	w.Header().Set("Location", "/checks/"+job.ID)
	writeJSON(w, http.StatusAccepted, snapshot)
}

func (h *CheckHandler) run(ctx context.Context, id string) {
	defer h.wg.Done()
	defer metrics.CheckJobsRunning.Dec()

	entries, err := h.Engine.Check(ctx, false)

	h.mu.Lock()
	defer h.mu.Unlock()
	job := h.jobs[id]
	if job == nil {
		return
	}
	done := h.clock().UTC()
	job.FinishedAt = &done
	if err != nil {
		h.Log.Warn().Err(err).Str("job", id).Msg("check job failed")
		job.Status = JobError
		job.Error = publicMessage(err)
		return
	}
	job.Status = JobComplete
	job.Entries = entries
	job.Summary = engine.Summary(entries)
}

// prune drops finished jobs past retention. Caller holds mu.
func (h *CheckHandler) prune() {
	cutoff := h.clock().Add(-jobRetention)
	for id, j := range h.jobs {
		if j.FinishedAt != nil && j.FinishedAt.Before(cutoff) {
			delete(h.jobs, id)
		}
	}
}

// GetCheck returns a job's status and, once complete, its entries.
func (h *CheckHandler) GetCheck(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.mu.Lock()
	job, ok := h.jobs[id]
	var snapshot CheckJob
	if ok {
		snapshot = *job
	}
	h.mu.Unlock()

	if !ok {
		JSONError(w, "check job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// Wait blocks until running jobs finish or ctx is done.
func (h *CheckHandler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
