package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Scope says whether a schedule governs one rule or a whole rule set.
type Scope string

const (
	ScopeRule    Scope = "rule"
	ScopeRuleSet Scope = "rule_set"
)

// Detail is descriptive metadata captured when the schedule is created.
type Detail struct {
	RuleSet     string
	Source      string
	Destination string
	Service     string
}

// Schedule is one tracked target and its window. TargetRef is the store key.
type Schedule struct {
	TargetRef   string
	Scope       Scope
	DisplayName string
	Detail      Detail
	Window      Window
	CreatedAt   time.Time
}

// Kind returns KindNone when no window is set.
func (s Schedule) Kind() Kind {
	if s.Window == nil {
		return KindNone
	}
	return s.Window.Kind()
}

// Validate checks the whole record. Stores refuse records that fail it.
func (s Schedule) Validate() error {
	v := &ValidationError{}
	if strings.TrimSpace(s.TargetRef) == "" {
		v.Add("target_ref", "required")
	}
	if s.Scope != ScopeRule && s.Scope != ScopeRuleSet {
		v.Add("scope", "must be rule or rule_set")
	}
	if s.Window == nil {
		v.Add("type", "must be recurring or one_time")
	} else {
		s.Window.validate(v)
	}
	if !v.Empty() {
		return v
	}
	return nil
}

// Describe renders the window for humans, e.g. "ALLOW Mon,Tue 08:00-18:00".
func (s Schedule) Describe(loc *time.Location) string {
	switch w := s.Window.(type) {
	case Recurring:
		return fmt.Sprintf("%s %s %s-%s", strings.ToUpper(string(w.Action)), DaysLabel(w.Days), w.Start, w.End)
	case OneTime:
		if loc == nil {
			loc = time.Local
		}
		return "EXPIRE " + w.ExpireAt.In(loc).Format("2006-01-02 15:04")
	}
	return ""
}

// DaysLabel joins day tags, collapsing all seven to "Everyday".
func DaysLabel(days []Weekday) string {
	if len(days) == len(AllWeekdays) {
		return "Everyday"
	}
	return JoinDays(days)
}

// JoinDays joins day tags with commas.
func JoinDays(days []Weekday) string {
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = string(d)
	}
	return strings.Join(parts, ",")
}

// scheduleJSON is the flat persisted layout, compatible with rule_schedules.json.
type scheduleJSON struct {
	TargetRef string     `json:"target_ref,omitempty"`
	Name      string     `json:"name"`
	IsRuleSet bool       `json:"is_ruleset"`
	RuleSet   string     `json:"detail_rs,omitempty"`
	Source    string     `json:"detail_src,omitempty"`
	Dest      string     `json:"detail_dst,omitempty"`
	Service   string     `json:"detail_svc,omitempty"`
	Type      Kind       `json:"type"`
	Action    Action     `json:"action,omitempty"`
	Days      []string   `json:"days,omitempty"`
	Start     string     `json:"start,omitempty"`
	End       string     `json:"end,omitempty"`
	ExpireAt  string     `json:"expire_at,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

func (s Schedule) MarshalJSON() ([]byte, error) {
	out := scheduleJSON{
		TargetRef: s.TargetRef,
		Name:      s.DisplayName,
		IsRuleSet: s.Scope == ScopeRuleSet,
		RuleSet:   s.Detail.RuleSet,
		Source:    s.Detail.Source,
		Dest:      s.Detail.Destination,
		Service:   s.Detail.Service,
		Type:      s.Kind(),
	}
	if !s.CreatedAt.IsZero() {
		t := s.CreatedAt
		out.CreatedAt = &t
	}
	switch w := s.Window.(type) {
	case Recurring:
		out.Action = w.Action
		out.Days = make([]string, len(w.Days))
		for i, d := range w.Days {
			out.Days[i] = string(d)
		}
		out.Start = w.Start.String()
		out.End = w.End.String()
	case OneTime:
		out.Action = ActionAllow
		out.ExpireAt = w.ExpireAt.Format(time.RFC3339)
	default:
		return nil, fmt.Errorf("schedule %q has no window", s.TargetRef)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes and validates the window payload. Naive expire_at
// values written by older versions are read in the local zone.
func (s *Schedule) UnmarshalJSON(b []byte) error {
	var in scheduleJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	out := Schedule{
		TargetRef:   in.TargetRef,
		Scope:       ScopeRule,
		DisplayName: in.Name,
		Detail: Detail{
			RuleSet:     in.RuleSet,
			Source:      in.Source,
			Destination: in.Dest,
			Service:     in.Service,
		},
	}
	if in.IsRuleSet {
		out.Scope = ScopeRuleSet
	}
	if in.CreatedAt != nil {
		out.CreatedAt = *in.CreatedAt
	}
	switch in.Type {
	case KindRecurring:
		action := string(in.Action)
		if action == "" {
			action = string(ActionAllow)
		}
		w, err := NewRecurring(action, in.Days, in.Start, in.End)
		if err != nil {
			return err
		}
		out.Window = w
	case KindOneTime:
		w, err := NewOneTime(in.ExpireAt, time.Local)
		if err != nil {
			return err
		}
		out.Window = w
	default:
		v := &ValidationError{}
		v.Add("type", "must be recurring or one_time")
		return v
	}
	*s = out
	return nil
}

// KindOnly decodes just the type discriminator of a persisted record.
func KindOnly(b []byte) (Kind, error) {
	var probe struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(b, &probe); err != nil {
		return KindNone, err
	}
	return probe.Type, nil
}
