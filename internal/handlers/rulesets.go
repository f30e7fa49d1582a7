package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/crucial707/rule-scheduler/internal/models"
	"github.com/crucial707/rule-scheduler/internal/pce"
)

// PolicyBrowser reads draft policy for display.
type PolicyBrowser interface {
	RuleSets(ctx context.Context, name string) ([]pce.RuleSet, error)
	RuleSet(ctx context.Context, ref string) (*pce.RuleSet, error)
	DescribeActors(ctx context.Context, actors []pce.Actor) string
}

// ScheduleLister lists stored schedules.
type ScheduleLister interface {
	Schedules(ctx context.Context) ([]models.Schedule, error)
}

// RuleSetHandler serves /rulesets with schedule markers on each row.
type RuleSetHandler struct {
	PCE       PolicyBrowser
	Schedules ScheduleLister
	Log       zerolog.Logger
}

// RuleSetSummary is one search result.
type RuleSetSummary struct {
	Href    string `json:"href"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	Rules   int    `json:"rules"`
	// Scheduled is the kind of schedule on the rule set itself, if any.
	Scheduled models.Kind `json:"scheduled,omitempty"`
	// ContainsScheduled is set when any child rule carries a schedule.
	ContainsScheduled bool `json:"contains_scheduled"`
}

// RuleView is one rule rendered for operators.
type RuleView struct {
	Href        string      `json:"href"`
	Enabled     bool        `json:"enabled"`
	Description string      `json:"description"`
	Source      string      `json:"source"`
	Destination string      `json:"destination"`
	Service     string      `json:"service"`
	Scheduled   models.Kind `json:"scheduled,omitempty"`
}

// RuleSetView is a rule set with its rules.
type RuleSetView struct {
	RuleSetSummary
	Description string     `json:"description"`
	RuleList    []RuleView `json:"rule_list"`
}

func (h *RuleSetHandler) kinds(ctx context.Context) (map[string]models.Kind, error) {
	list, err := h.Schedules.Schedules(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.Kind, len(list))
	for _, s := range list {
		out[s.TargetRef] = s.Kind()
	}
	return out, nil
}

func summarize(rs pce.RuleSet, kinds map[string]models.Kind) RuleSetSummary {
	sum := RuleSetSummary{
		Href:      rs.Href,
		Name:      rs.Name,
		Enabled:   rs.Enabled,
		Rules:     len(rs.Rules),
		Scheduled: kinds[rs.Href],
	}
	prefix := rs.Href + "/sec_rules/"
	for ref := range kinds {
		if strings.HasPrefix(ref, prefix) {
			sum.ContainsScheduled = true
			break
		}
	}
	return sum
}

// SearchRuleSets lists draft rule sets whose name matches ?search=.
func (h *RuleSetHandler) SearchRuleSets(w http.ResponseWriter, r *http.Request) {
	sets, err := h.PCE.RuleSets(r.Context(), strings.TrimSpace(r.URL.Query().Get("search")))
	if err != nil {
		upstreamError(w, h.Log, err)
		return
	}
	kinds, err := h.kinds(r.Context())
	if err != nil {
		upstreamError(w, h.Log, err)
		return
	}
	out := make([]RuleSetSummary, 0, len(sets))
	for _, rs := range sets {
		out = append(out, summarize(rs, kinds))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetRuleSet returns one rule set with its rules described. The ref is the
// wildcard href or a bare rule set id.
func (h *RuleSetHandler) GetRuleSet(w http.ResponseWriter, r *http.Request) {
	ref := targetRef(r)
	if ref == "" {
		JSONError(w, "rule set ref is required", http.StatusBadRequest)
		return
	}
	if !strings.Contains(ref[1:], "/") {
		ref = ref[1:]
	}
	rs, err := h.PCE.RuleSet(r.Context(), ref)
	if err != nil {
		upstreamError(w, h.Log, err)
		return
	}
	kinds, err := h.kinds(r.Context())
	if err != nil {
		upstreamError(w, h.Log, err)
		return
	}

	view := RuleSetView{
		RuleSetSummary: summarize(*rs, kinds),
		Description:    rs.Description,
		RuleList:       make([]RuleView, 0, len(rs.Rules)),
	}
	for _, rule := range rs.Rules {
		view.RuleList = append(view.RuleList, RuleView{
			Href:        rule.Href,
			Enabled:     rule.Enabled,
			Description: rule.Description,
			Source:      h.PCE.DescribeActors(r.Context(), rule.Sources()),
			Destination: h.PCE.DescribeActors(r.Context(), rule.Providers),
			Service:     pce.DescribeServices(rule.IngressServices),
			Scheduled:   kinds[rule.Href],
		})
	}
	writeJSON(w, http.StatusOK, view)
}
