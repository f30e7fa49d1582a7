package engine

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/crucial707/rule-scheduler/internal/pce"
)

// RetryPolicy bounds attempts per PCE call.
type RetryPolicy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	Base     time.Duration
	Max      time.Duration
	// Jitter spreads each delay by +/- this fraction.
	Jitter float64
}

// DefaultRetry is three attempts, 500ms doubling up to 5s, 20% jitter.
var DefaultRetry = RetryPolicy{Attempts: 3, Base: 500 * time.Millisecond, Max: 5 * time.Second, Jitter: 0.2}

func (p RetryPolicy) delay(retry int) time.Duration {
	// retry starts at 1 (first retry)
	base := p.Base
	if base <= 0 {
		base = DefaultRetry.Base
	}
	maxD := p.Max
	if maxD <= 0 {
		maxD = DefaultRetry.Max
	}
	d := base
	for i := 1; i < retry; i++ {
		d *= 2
		if d > maxD {
			d = maxD
			break
		}
	}
	if p.Jitter > 0 {
		r := (rand.Float64()*2 - 1) * p.Jitter
		d = time.Duration(float64(d) * (1 + r))
	}
	if d < 0 {
		return 0
	}
	return d
}

// call runs fn with a per-attempt timeout, retrying transient PCE failures.
func (e *Engine) call(ctx context.Context, op, ref string, fn func(ctx context.Context) error) error {
	s := e.settings()
	attempts := s.retry.Attempts
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; ; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, e.callTimeout)
		err := fn(cctx)
		cancel()
		if err == nil {
			return nil
		}
		if attempt >= attempts || !pce.Retryable(err) || ctx.Err() != nil {
			return err
		}
		wait := s.retry.delay(attempt)
		e.log.Debug().Err(err).
			Str("op", op).
			Str("target", ref).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("pce call failed; retrying")
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}
}
