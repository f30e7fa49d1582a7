// Package window decides what state a schedule wants its target in at a given instant.
package window

import (
	"time"

	"github.com/crucial707/rule-scheduler/internal/models"
)

// State is the schedule's own state at an instant.
type State int

const (
	// StateDisabled means outside the recurring window.
	StateDisabled State = iota
	// StateEnabled means inside the recurring window, or before a one-time expiry.
	StateEnabled
	// StateExpired is terminal for one-time schedules: revert and delete the record.
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateEnabled:
		return "enabled"
	case StateExpired:
		return "expired"
	}
	return "disabled"
}

// Decision is the evaluator's answer for one schedule.
type Decision struct {
	State  State
	Action models.Action
}

// TargetEnabled maps the decision onto the target's enabled flag. An allow
// window enables inside and disables outside; a block window is the inverse.
// Expired one-time schedules revert to the disabled baseline.
func (d Decision) TargetEnabled() bool {
	switch d.State {
	case StateExpired:
		return false
	case StateEnabled:
		return d.Action != models.ActionBlock
	}
	return d.Action == models.ActionBlock
}

// Evaluate returns the desired state of s at now, reading wall clock values in loc.
func Evaluate(s models.Schedule, now time.Time, loc *time.Location) Decision {
	if loc == nil {
		loc = time.Local
	}
	switch w := s.Window.(type) {
	case models.Recurring:
		d := Decision{State: StateDisabled, Action: w.Action}
		local := now.In(loc)
		if !w.Includes(local.Weekday()) {
			return d
		}
		clock := local.Hour()*3600 + local.Minute()*60 + local.Second()
		if w.Start.Seconds() <= clock && clock < w.End.Seconds() {
			d.State = StateEnabled
		}
		return d
	case models.OneTime:
		if now.Before(w.ExpireAt) {
			return Decision{State: StateEnabled, Action: models.ActionAllow}
		}
		return Decision{State: StateExpired, Action: models.ActionAllow}
	}
	return Decision{State: StateDisabled, Action: models.ActionAllow}
}
