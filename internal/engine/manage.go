package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/crucial707/rule-scheduler/internal/annotation"
	"github.com/crucial707/rule-scheduler/internal/models"
	"github.com/crucial707/rule-scheduler/internal/pce"
)

// ErrNoSchedule is returned by Remove when the target has no record.
var ErrNoSchedule = errors.New("no schedule for target")

type actorKey struct{}

// ContextWithActor names who is making a change, for the audit trail.
func ContextWithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func actorFrom(ctx context.Context) string {
	if a, ok := ctx.Value(actorKey{}).(string); ok && a != "" {
		return a
	}
	return "operator"
}

// Submit validates and stores s, replacing any schedule on the same target,
// then tags the target's note. The tag write is best effort; the next pass
// repairs it.
func (e *Engine) Submit(ctx context.Context, s models.Schedule) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = e.now().UTC()
	}
	if err := e.store.Put(ctx, s); err != nil {
		return fmt.Errorf("submit %s: %w", s.TargetRef, err)
	}
	loc := e.Location()
	e.record(ctx, actorFrom(ctx), "create", s.TargetRef, s.Describe(loc))

	if err := e.ready(); err != nil {
		e.log.Warn().Err(err).Str("target", s.TargetRef).Msg("schedule saved; tag deferred")
		return nil
	}
	tag := annotation.Tag(s.Window, loc)
	if err := e.rewriteNote(ctx, s.TargetRef, func(n string) string { return annotation.Upsert(n, tag) }); err != nil {
		e.log.Warn().Err(err).Str("target", s.TargetRef).Msg("schedule saved; tag write failed")
	}
	return nil
}

// Remove strips the tag (best effort) and deletes the record.
func (e *Engine) Remove(ctx context.Context, ref string) error {
	existing, err := e.store.Get(ctx, ref)
	if err != nil {
		return fmt.Errorf("remove %s: %w", ref, err)
	}
	if existing == nil {
		return ErrNoSchedule
	}
	if err := e.ready(); err == nil {
		if err := e.rewriteNote(ctx, ref, annotation.Strip); err != nil {
			e.log.Warn().Err(err).Str("target", ref).Msg("tag strip failed; removing schedule anyway")
		}
	}
	if err := e.store.Delete(ctx, ref); err != nil {
		return fmt.Errorf("remove %s: %w", ref, err)
	}
	e.record(ctx, actorFrom(ctx), "delete", ref, existing.Describe(e.Location()))
	return nil
}

// Schedules lists records in pass order.
func (e *Engine) Schedules(ctx context.Context) ([]models.Schedule, error) {
	all, err := e.store.All(ctx)
	if err != nil {
		return nil, err
	}
	return ordered(all), nil
}

// Schedule returns the record for ref, or nil when there is none.
func (e *Engine) Schedule(ctx context.Context, ref string) (*models.Schedule, error) {
	return e.store.Get(ctx, ref)
}

// KindOf reports which kind of schedule, if any, covers ref.
func (e *Engine) KindOf(ctx context.Context, ref string) (models.Kind, error) {
	return e.store.KindOf(ctx, ref)
}

func (e *Engine) rewriteNote(ctx context.Context, ref string, edit func(string) string) error {
	t, err := e.fetch(ctx, ref)
	if err != nil {
		return err
	}
	note := edit(t.Description)
	if note == t.Description {
		return nil
	}
	return e.call(ctx, "update", ref, func(ctx context.Context) error {
		return e.policy.Update(ctx, ref, pce.Update{Description: &note})
	})
}
