package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/crucial707/rule-scheduler/internal/pce"
)

// FakePolicy is an in-memory PCE for engine and handler tests. Updates land
// in the draft and are copied to the active version when provisioning
// succeeds.
type FakePolicy struct {
	mu      sync.Mutex
	targets map[string]pce.Target
	active  map[string]pce.Target
	// sticky provisioning failures; the draft write still lands
	provisionFail map[string]error

	// queued errors, consumed one per call
	targetErrs map[string][]error
	updateErrs map[string][]error
	// sticky errors returned on every call
	targetFail map[string]error
	updateFail map[string]error
	// refs whose updates are acknowledged but not applied
	dropUpdates map[string]bool

	targetCalls int
	updates     map[string]int

	gate    chan struct{}
	entered chan struct{}
}

func NewFakePolicy() *FakePolicy {
	return &FakePolicy{
		targets:       make(map[string]pce.Target),
		active:        make(map[string]pce.Target),
		provisionFail: make(map[string]error),
		targetErrs:  make(map[string][]error),
		updateErrs:  make(map[string][]error),
		targetFail:  make(map[string]error),
		updateFail:  make(map[string]error),
		dropUpdates: make(map[string]bool),
		updates:     make(map[string]int),
	}
}

// Set creates or replaces a provisioned target.
func (f *FakePolicy) Set(ref string, enabled bool, note string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := pce.Target{Href: ref, Enabled: enabled, Description: note, IsRuleSet: pce.IsRuleSetHref(ref)}
	f.targets[ref] = t
	f.active[ref] = t
}

// SetDraft changes the draft of ref without provisioning it.
func (f *FakePolicy) SetDraft(ref string, enabled bool, note string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets[ref] = pce.Target{Href: ref, Enabled: enabled, Description: note, IsRuleSet: pce.IsRuleSetHref(ref)}
}

// Delete removes a target so lookups return pce.ErrNotFound.
func (f *FakePolicy) Delete(ref string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.targets, ref)
	delete(f.active, ref)
}

// Get returns the draft state of ref.
func (f *FakePolicy) Get(ref string) (pce.Target, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.targets[ref]
	return t, ok
}

// Live returns the active (provisioned) state of ref.
func (f *FakePolicy) Live(ref string) (pce.Target, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.active[ref]
	return t, ok
}

// BreakProvision makes provisioning after every Update on ref fail with err
// (nil heals it). The draft is still written.
func (f *FakePolicy) BreakProvision(ref string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.provisionFail[ref] = err
}

// FailTarget queues errs for the next Target calls on ref.
func (f *FakePolicy) FailTarget(ref string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targetErrs[ref] = append(f.targetErrs[ref], errs...)
}

// FailUpdate queues errs for the next Update calls on ref.
func (f *FakePolicy) FailUpdate(ref string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateErrs[ref] = append(f.updateErrs[ref], errs...)
}

// BreakTarget makes every Target call on ref fail with err (nil heals it).
func (f *FakePolicy) BreakTarget(ref string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targetFail[ref] = err
}

// BreakUpdate makes every Update call on ref fail with err (nil heals it).
func (f *FakePolicy) BreakUpdate(ref string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateFail[ref] = err
}

// DropUpdates makes Update on ref succeed without changing anything.
func (f *FakePolicy) DropUpdates(ref string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropUpdates[ref] = true
}

// Hold makes Target calls block until the returned release func is called.
// Entered receives once per blocked call.
func (f *FakePolicy) Hold() (entered <-chan struct{}, release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	f.entered = make(chan struct{}, 64)
	gate := f.gate
	var once sync.Once
	return f.entered, func() { once.Do(func() { close(gate) }) }
}

func (f *FakePolicy) Target(ctx context.Context, ref string) (*pce.Target, error) {
	f.mu.Lock()
	gate, entered := f.gate, f.entered
	f.mu.Unlock()
	if gate != nil {
		entered <- struct{}{}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.targetCalls++
	if err := pop(f.targetErrs, ref); err != nil {
		return nil, err
	}
	if err := f.targetFail[ref]; err != nil {
		return nil, err
	}
	t, ok := f.targets[ref]
	if !ok {
		return nil, fmt.Errorf("GET %s: %w", ref, pce.ErrNotFound)
	}
	if live, ok := f.active[ref]; ok {
		t.LiveEnabled = live.Enabled
		t.Pending = live.Enabled != t.Enabled || live.Description != t.Description
	} else {
		t.Pending = true
	}
	return &t, nil
}

func (f *FakePolicy) Update(ctx context.Context, ref string, u pce.Update) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := pop(f.updateErrs, ref); err != nil {
		return err
	}
	if err := f.updateFail[ref]; err != nil {
		return err
	}
	t, ok := f.targets[ref]
	if !ok {
		return fmt.Errorf("PUT %s: %w", ref, pce.ErrNotFound)
	}
	f.updates[ref]++
	if f.dropUpdates[ref] {
		return nil
	}
	if u.Enabled != nil {
		t.Enabled = *u.Enabled
	}
	if u.Description != nil {
		t.Description = *u.Description
	}
	f.targets[ref] = t
	if err := f.provisionFail[ref]; err != nil {
		return fmt.Errorf("provision %s: %w", pce.ParentRuleSet(ref), err)
	}
	f.active[ref] = t
	return nil
}

// Writes is the number of accepted Update calls on ref.
func (f *FakePolicy) Writes(ref string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates[ref]
}

// TotalWrites sums accepted Update calls over all refs.
func (f *FakePolicy) TotalWrites() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.updates {
		n += c
	}
	return n
}

// TargetCalls is the number of Target calls that got past Hold.
func (f *FakePolicy) TargetCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.targetCalls
}

// Refs lists known targets, sorted.
func (f *FakePolicy) Refs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.targets))
	for ref := range f.targets {
		out = append(out, ref)
	}
	sort.Strings(out)
	return out
}

func pop(m map[string][]error, ref string) error {
	q := m[ref]
	if len(q) == 0 {
		return nil
	}
	m[ref] = q[1:]
	return q[0]
}
