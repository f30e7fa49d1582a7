package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crucial707/rule-scheduler/internal/annotation"
	"github.com/crucial707/rule-scheduler/internal/models"
	"github.com/crucial707/rule-scheduler/internal/pce"
	"github.com/crucial707/rule-scheduler/internal/window"
)

// reconcile drives one target toward its schedule. It never returns an
// error; failures become OutcomeFailed entries and the record is kept.
func (e *Engine) reconcile(ctx context.Context, s models.Schedule, loc *time.Location) Entry {
	now := e.now()
	d := window.Evaluate(s, now, loc)
	want := d.TargetEnabled()
	en := Entry{
		At:        now,
		TargetRef: s.TargetRef,
		Name:      s.DisplayName,
		Kind:      s.Kind(),
		Desired:   desired(want),
	}
	if d.State == window.StateExpired {
		return e.expire(ctx, s, en, loc)
	}

	t, err := e.fetch(ctx, s.TargetRef)
	if err != nil {
		return failed(en, "fetch", err)
	}

	note := annotation.Upsert(t.Description, annotation.Tag(s.Window, loc))
	var u pce.Update
	if t.Enabled != want {
		u.Enabled = &want
	}
	if note != t.Description {
		u.Description = &note
	}
	// a draft that matches but was never provisioned is not converged
	if u.Empty() && !t.Pending {
		en.Outcome = OutcomeNoop
		en.Message = fmt.Sprintf("already %s (%s)", desired(want), s.Describe(loc))
		return en
	}

	if err := e.apply(ctx, s.TargetRef, u, want, note); err != nil {
		return failed(en, "update", err)
	}
	if t.LiveEnabled == want {
		en.Outcome = OutcomeAnnotated
		en.Message = "schedule tag written"
		if u.Description == nil {
			en.Message = "pending draft provisioned"
		}
		return en
	}
	en.Outcome = OutcomeChanged
	en.Message = fmt.Sprintf("%s -> %s (%s)", desired(t.LiveEnabled), desired(want), s.Describe(loc))
	return en
}

// expire reverts a lapsed one-time schedule: disable the target, strip the
// tag, confirm, then drop the record.
func (e *Engine) expire(ctx context.Context, s models.Schedule, en Entry, loc *time.Location) Entry {
	t, err := e.fetch(ctx, s.TargetRef)
	if err != nil {
		return failed(en, "fetch", err)
	}
	off := false
	note := annotation.Strip(t.Description)
	var u pce.Update
	if t.Enabled {
		u.Enabled = &off
	}
	if note != t.Description {
		u.Description = &note
	}
	// the record goes only once the active policy shows the revert
	if !u.Empty() || t.Pending {
		if err := e.apply(ctx, s.TargetRef, u, false, note); err != nil {
			return failed(en, "revert", err)
		}
	}
	if err := e.store.Delete(ctx, s.TargetRef); err != nil {
		return failed(en, "target reverted but record not removed", err)
	}
	en.Outcome = OutcomeExpired
	en.Message = fmt.Sprintf("expired at %s; disabled and schedule removed",
		s.Window.(models.OneTime).ExpireAt.In(loc).Format("2006-01-02 15:04"))
	return en
}

func (e *Engine) fetch(ctx context.Context, ref string) (*pce.Target, error) {
	var t *pce.Target
	err := e.call(ctx, "get", ref, func(ctx context.Context) error {
		var err error
		t, err = e.policy.Target(ctx, ref)
		return err
	})
	return t, err
}

// apply writes u (an empty u only provisions) and re-reads the target to
// confirm the draft holds the wanted state and nothing is left unprovisioned.
func (e *Engine) apply(ctx context.Context, ref string, u pce.Update, wantEnabled bool, wantNote string) error {
	if err := e.call(ctx, "update", ref, func(ctx context.Context) error {
		return e.policy.Update(ctx, ref, u)
	}); err != nil {
		return err
	}
	got, err := e.fetch(ctx, ref)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	if got.Enabled != wantEnabled {
		return fmt.Errorf("verify: target still %s", desired(got.Enabled))
	}
	if got.Description != wantNote {
		return errors.New("verify: description not updated")
	}
	if got.Pending {
		return errors.New("verify: change not provisioned")
	}
	return nil
}

func failed(en Entry, step string, err error) Entry {
	en.Outcome = OutcomeFailed
	switch {
	case errors.Is(err, pce.ErrNotFound):
		en.Message = "target no longer exists in the PCE; schedule kept for cleanup"
	case errors.Is(err, pce.ErrUnreachable):
		en.Message = fmt.Sprintf("%s: PCE unreachable: %v", step, err)
	default:
		en.Message = fmt.Sprintf("%s: %v", step, err)
	}
	return en
}
