package models

import (
	"fmt"
	"strings"
	"time"
)

// Kind discriminates the two schedule shapes.
type Kind string

const (
	KindNone      Kind = ""
	KindRecurring Kind = "recurring"
	KindOneTime   Kind = "one_time"
)

// Action is the target state applied inside a recurring window.
type Action string

const (
	ActionAllow Action = "allow"
	ActionBlock Action = "block"
)

// ParseAction accepts "allow" or "block" in any case.
func ParseAction(s string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionAllow:
		return ActionAllow, nil
	case ActionBlock:
		return ActionBlock, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// Window is implemented only by Recurring and OneTime.
type Window interface {
	Kind() Kind
	validate(v *ValidationError)
}

// Recurring enables (or blocks) a target on a weekly window. Start is
// inclusive, End exclusive; overnight windows are not supported.
type Recurring struct {
	Action Action
	Days   []Weekday
	Start  TimeOfDay
	End    TimeOfDay
}

func (Recurring) Kind() Kind { return KindRecurring }

// Includes reports whether d is one of the window's days.
func (r Recurring) Includes(d time.Weekday) bool {
	for _, w := range r.Days {
		if w.Std() == d {
			return true
		}
	}
	return false
}

func (r Recurring) validate(v *ValidationError) {
	if r.Action != ActionAllow && r.Action != ActionBlock {
		v.Add("action", "must be allow or block")
	}
	if len(r.Days) == 0 {
		v.Add("days", "at least one day is required")
	}
	seen := make(map[Weekday]bool, len(r.Days))
	for _, d := range r.Days {
		if !d.Valid() {
			v.Add("days", fmt.Sprintf("invalid weekday %q", string(d)))
			continue
		}
		if seen[d] {
			v.Add("days", fmt.Sprintf("duplicate weekday %q", string(d)))
		}
		seen[d] = true
	}
	if !r.Start.Valid() {
		v.Add("start", "must be HH:MM")
	}
	if !r.End.Valid() {
		v.Add("end", "must be HH:MM")
	}
	if r.Start.Valid() && r.End.Valid() && r.Start >= r.End {
		v.Add("end", "must be after start")
	}
}

// OneTime keeps a target allowed until ExpireAt.
type OneTime struct {
	ExpireAt time.Time
}

func (OneTime) Kind() Kind { return KindOneTime }

func (o OneTime) validate(v *ValidationError) {
	if o.ExpireAt.IsZero() {
		v.Add("expire_at", "required")
	}
}

// NewRecurring builds a validated recurring window from operator input.
func NewRecurring(action string, days []string, start, end string) (Recurring, error) {
	v := &ValidationError{}
	r := Recurring{}
	a, err := ParseAction(action)
	if err != nil {
		v.Add("action", "must be allow or block")
	}
	r.Action = a
	wd, err := ParseWeekdays(days)
	if err != nil {
		v.Add("days", err.Error())
	}
	r.Days = wd
	if r.Start, err = ParseTimeOfDay(start); err != nil {
		v.Add("start", err.Error())
	}
	if r.End, err = ParseTimeOfDay(end); err != nil {
		v.Add("end", err.Error())
	}
	if v.Empty() {
		r.validate(v)
	}
	if !v.Empty() {
		return Recurring{}, v
	}
	return r, nil
}

// NewOneTime builds a validated one-time window. Naive timestamps are read in loc.
func NewOneTime(expireAt string, loc *time.Location) (OneTime, error) {
	t, err := ParseExpireAt(expireAt, loc)
	if err != nil {
		v := &ValidationError{}
		v.Add("expire_at", err.Error())
		return OneTime{}, v
	}
	return OneTime{ExpireAt: t}, nil
}
