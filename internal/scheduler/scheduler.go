// Package scheduler runs reconciliation passes on a fixed interval.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/crucial707/rule-scheduler/internal/engine"
)

// Checker runs one reconciliation pass.
type Checker interface {
	Check(ctx context.Context, silent bool) ([]engine.Entry, error)
}

// Daemon triggers a pass immediately and then every interval. A pass still
// running when the next tick fires makes that tick a no-op.
type Daemon struct {
	chk Checker
	log zerolog.Logger

	mu       sync.Mutex
	cron     *cron.Cron
	entry    cron.EntryID
	interval time.Duration
	job      cron.Job
}

func New(chk Checker, interval time.Duration, log zerolog.Logger) *Daemon {
	return &Daemon{
		chk:      chk,
		log:      log.With().Str("component", "scheduler").Logger(),
		interval: interval,
	}
}

// Run is shorthand for New(chk, interval, log).Run(ctx).
func Run(ctx context.Context, chk Checker, interval time.Duration, log zerolog.Logger) error {
	return New(chk, interval, log).Run(ctx)
}

// Run blocks until ctx is cancelled, then stops scheduling and waits for the
// pass in progress, if any, to finish.
func (d *Daemon) Run(ctx context.Context) error {
	cl := cronLogger{log: d.log}
	passCtx := context.WithoutCancel(ctx)

	d.mu.Lock()
	d.cron = cron.New(cron.WithLogger(cl))
	d.job = cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).
		Then(cron.FuncJob(func() { d.pass(passCtx) }))
	d.entry = d.cron.Schedule(cron.Every(d.interval), d.job)
	d.cron.Start()
	job, interval := d.job, d.interval
	d.mu.Unlock()

	d.log.Info().Dur("interval", interval).Msg("monitor started")

	var first sync.WaitGroup
	first.Add(1)
	go func() {
		defer first.Done()
		job.Run()
	}()

	<-ctx.Done()
	d.log.Info().Msg("monitor stopping; waiting for running pass")
	d.mu.Lock()
	stopped := d.cron.Stop()
	d.mu.Unlock()
	<-stopped.Done()
	first.Wait()
	d.log.Info().Msg("monitor stopped")
	return nil
}

// SetInterval reschedules future passes. It is safe to call before Run.
func (d *Daemon) SetInterval(interval time.Duration) {
	if interval <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if interval == d.interval {
		return
	}
	d.interval = interval
	if d.cron == nil {
		return
	}
	// Drop the old entry so the new interval takes effect on the next tick.
	d.cron.Remove(d.entry)
	d.entry = d.cron.Schedule(cron.Every(interval), d.job)
	d.log.Info().Dur("interval", interval).Msg("monitor interval changed")
}

// Interval returns the current pass interval.
func (d *Daemon) Interval() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.interval
}

func (d *Daemon) pass(ctx context.Context) {
	start := time.Now()
	entries, err := d.chk.Check(ctx, false)
	if err != nil {
		d.log.Error().Err(err).Msg("pass failed")
		return
	}
	sum := engine.Summary(entries)
	d.log.Info().
		Int("records", len(entries)).
		Int("failed", sum[engine.OutcomeFailed]).
		Dur("took", time.Since(start)).
		Msg("pass finished")
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
