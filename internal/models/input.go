package models

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var inputValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report json names so field errors match the request body
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ScheduleInput is operator input for one schedule, shared by the API body
// and CLI flags. Field names follow the persisted record.
type ScheduleInput struct {
	Name        string   `json:"name" validate:"max=255"`
	IsRuleSet   *bool    `json:"is_ruleset,omitempty"`
	RuleSet     string   `json:"detail_rs,omitempty" validate:"max=1000"`
	Source      string   `json:"detail_src,omitempty" validate:"max=1000"`
	Destination string   `json:"detail_dst,omitempty" validate:"max=1000"`
	Service     string   `json:"detail_svc,omitempty" validate:"max=1000"`
	Type        Kind     `json:"type"`
	Action      string   `json:"action,omitempty" validate:"max=16"`
	Days        []string `json:"days,omitempty" validate:"max=7,dive,max=64"`
	Start       string   `json:"start,omitempty" validate:"max=16"`
	End         string   `json:"end,omitempty" validate:"max=16"`
	ExpireAt    string   `json:"expire_at,omitempty" validate:"max=64"`
}

// Build validates the input and returns the schedule for ref. defaultRuleSet
// is used when IsRuleSet is unset. Naive expire_at values are read in loc.
func (in ScheduleInput) Build(ref string, defaultRuleSet bool, loc *time.Location) (Schedule, error) {
	if err := in.checkShape(); err != nil {
		return Schedule{}, err
	}
	s := Schedule{
		TargetRef:   strings.TrimSpace(ref),
		Scope:       ScopeRule,
		DisplayName: strings.TrimSpace(in.Name),
		Detail: Detail{
			RuleSet:     in.RuleSet,
			Source:      in.Source,
			Destination: in.Destination,
			Service:     in.Service,
		},
	}
	ruleSet := defaultRuleSet
	if in.IsRuleSet != nil {
		ruleSet = *in.IsRuleSet
	}
	if ruleSet {
		s.Scope = ScopeRuleSet
	}

	switch Kind(strings.ToLower(string(in.Type))) {
	case KindRecurring:
		action := in.Action
		if action == "" {
			action = string(ActionAllow)
		}
		w, err := NewRecurring(action, expandDays(in.Days), in.Start, in.End)
		if err != nil {
			return Schedule{}, err
		}
		s.Window = w
	case KindOneTime:
		w, err := NewOneTime(in.ExpireAt, loc)
		if err != nil {
			return Schedule{}, err
		}
		s.Window = w
	default:
		v := &ValidationError{}
		v.Add("type", "must be recurring or one_time")
		return Schedule{}, v
	}
	if err := s.Validate(); err != nil {
		return Schedule{}, err
	}
	return s, nil
}

// expandDays accepts "Everyday" or a single comma separated entry.
func expandDays(in []string) []string {
	if len(in) != 1 {
		return in
	}
	switch strings.ToLower(strings.TrimSpace(in[0])) {
	case "everyday", "daily", "all":
		out := make([]string, len(AllWeekdays))
		for i, d := range AllWeekdays {
			out[i] = string(d)
		}
		return out
	}
	return SplitDays(in[0])
}

// checkShape applies the struct tag limits before any parsing.
func (in ScheduleInput) checkShape() error {
	err := inputValidator.Struct(in)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return err
	}
	v := &ValidationError{}
	for _, fe := range fields {
		name := fe.Field()
		if i := strings.IndexByte(name, '['); i > 0 {
			name = name[:i]
		}
		if fe.Kind() == reflect.Slice {
			v.Add(name, "must have at most "+fe.Param()+" entries")
			continue
		}
		v.Add(name, "must be at most "+fe.Param()+" characters")
	}
	return v
}
