// Package engine reconciles stored schedules against the live policy.
//
// A pass reads every record, evaluates its window at the current instant and
// drives the target's enabled flag and annotation tag to match. Failures are
// isolated per record; a pass only fails as a whole when the configuration is
// not ready or the store cannot be read.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/crucial707/rule-scheduler/internal/config"
	"github.com/crucial707/rule-scheduler/internal/metrics"
	"github.com/crucial707/rule-scheduler/internal/models"
	"github.com/crucial707/rule-scheduler/internal/pce"
	"github.com/crucial707/rule-scheduler/internal/repo"
)

const defaultCallTimeout = 30 * time.Second

// Policy is the part of the PCE the engine drives.
type Policy interface {
	Target(ctx context.Context, ref string) (*pce.Target, error)
	// Update writes the set fields and provisions the change. An empty
	// update only provisions.
	Update(ctx context.Context, ref string, u pce.Update) error
}

type Engine struct {
	store  repo.Store
	policy Policy
	audit  repo.AuditLog
	ready  func() error
	log    zerolog.Logger
	now    func() time.Time

	callTimeout time.Duration

	mu  sync.RWMutex
	cur settings

	group singleflight.Group
}

// settings can change at runtime through Reconfigure.
type settings struct {
	loc     *time.Location
	retry   RetryPolicy
	workers int
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func WithLocation(loc *time.Location) Option { return func(e *Engine) { e.cur.loc = loc } }

func WithLogger(log zerolog.Logger) Option { return func(e *Engine) { e.log = log } }

func WithAudit(a repo.AuditLog) Option { return func(e *Engine) { e.audit = a } }

// WithReadiness sets the check run before every pass, typically pce.Client.Ready.
func WithReadiness(ready func() error) Option { return func(e *Engine) { e.ready = ready } }

func WithRetry(p RetryPolicy) Option { return func(e *Engine) { e.cur.retry = p } }

// WithWorkers bounds how many records a pass reconciles concurrently.
func WithWorkers(n int) Option { return func(e *Engine) { e.cur.workers = n } }

// WithCallTimeout bounds each PCE call attempt.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.callTimeout = d
		}
	}
}

func New(store repo.Store, policy Policy, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		policy:      policy,
		ready:       func() error { return nil },
		log:         zerolog.Nop(),
		now:         time.Now,
		callTimeout: defaultCallTimeout,
		cur:         settings{loc: time.Local, retry: DefaultRetry, workers: 1},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With().Str("component", "engine").Logger()
	if e.cur.loc == nil {
		e.cur.loc = time.Local
	}
	return e
}

// FromConfig returns the options for the monitor settings in m.
func FromConfig(m config.MonitorConfig) ([]Option, error) {
	loc, err := m.Location()
	if err != nil {
		return nil, err
	}
	retry := DefaultRetry
	if m.RetryMax > 0 {
		retry.Attempts = m.RetryMax
	}
	opts := []Option{WithLocation(loc), WithRetry(retry)}
	if m.Workers > 0 {
		opts = append(opts, WithWorkers(m.Workers))
	}
	return opts, nil
}

// Reconfigure applies reloaded monitor settings. The interval is the
// daemon's concern and is ignored here.
func (e *Engine) Reconfigure(m config.MonitorConfig) error {
	loc, err := m.Location()
	if err != nil {
		return fmt.Errorf("reconfigure: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cur.loc = loc
	if m.RetryMax > 0 {
		e.cur.retry.Attempts = m.RetryMax
	}
	if m.Workers > 0 {
		e.cur.workers = m.Workers
	}
	return nil
}

func (e *Engine) settings() settings {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cur
}

// Location is the zone windows are evaluated in.
func (e *Engine) Location() *time.Location { return e.settings().loc }

// Check runs one reconciliation pass and returns its log in record order.
// Concurrent callers share a single in-flight pass and all receive its log.
// The pass itself is detached from ctx cancellation so no record is left
// half-written; a cancelled caller stops waiting and gets ctx.Err().
// Unless silent, each entry is also written to the engine's logger.
func (e *Engine) Check(ctx context.Context, silent bool) ([]Entry, error) {
	ch := e.group.DoChan("check", func() (any, error) {
		return e.pass(context.WithoutCancel(ctx))
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	src := res.Val.([]Entry)
	entries := make([]Entry, len(src))
	copy(entries, src)
	if !silent {
		e.emit(entries)
	}
	return entries, nil
}

func (e *Engine) pass(ctx context.Context) ([]Entry, error) {
	start := time.Now()
	if err := e.ready(); err != nil {
		metrics.ObservePass("not_ready", time.Since(start).Seconds(), 0)
		return nil, fmt.Errorf("check: %w", err)
	}
	all, err := e.store.All(ctx)
	if err != nil {
		metrics.ObservePass("error", time.Since(start).Seconds(), 0)
		return nil, fmt.Errorf("check: %w", err)
	}

	s := e.settings()
	records := ordered(all)
	entries := make([]Entry, len(records))

	var g errgroup.Group
	g.SetLimit(max(s.workers, 1))
	for i, rec := range records {
		g.Go(func() error {
			entries[i] = e.reconcile(ctx, rec, s.loc)
			return nil
		})
	}
	_ = g.Wait()

	for _, en := range entries {
		metrics.IncOutcome(string(en.Outcome))
		e.record(ctx, "engine", string(en.Outcome), en.TargetRef, en.Message)
	}
	metrics.ObservePass("ok", time.Since(start).Seconds(), len(records))

	sum := Summary(entries)
	e.log.Info().
		Int("records", len(records)).
		Int("changed", sum[OutcomeChanged]).
		Int("annotated", sum[OutcomeAnnotated]).
		Int("expired", sum[OutcomeExpired]).
		Int("failed", sum[OutcomeFailed]).
		Dur("took", time.Since(start)).
		Msg("pass complete")
	return entries, nil
}

// ordered sorts records by creation time, then target ref.
func ordered(all map[string]models.Schedule) []models.Schedule {
	out := make([]models.Schedule, 0, len(all))
	for _, s := range all {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].TargetRef < out[j].TargetRef
	})
	return out
}

func (e *Engine) emit(entries []Entry) {
	for _, en := range entries {
		ev := e.log.Info()
		if en.Failed() {
			ev = e.log.Warn()
		}
		ev.Str("target", en.TargetRef).
			Str("name", en.Name).
			Str("kind", string(en.Kind)).
			Str("outcome", string(en.Outcome)).
			Str("desired", en.Desired).
			Msg(en.Message)
	}
}

// record appends to the audit trail; failures are logged only.
func (e *Engine) record(ctx context.Context, actor, action, ref, details string) {
	if e.audit == nil {
		return
	}
	err := e.audit.Append(ctx, models.AuditEntry{
		Actor:     actor,
		Action:    action,
		TargetRef: ref,
		Details:   details,
		CreatedAt: e.now().UTC(),
	})
	if err != nil {
		e.log.Warn().Err(err).Str("target", ref).Msg("audit append failed")
	}
}
