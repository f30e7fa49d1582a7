package pce

import (
	"strings"
)

// Target is the state of a rule or rule set that reconciliation cares about.
type Target struct {
	Href        string `json:"href"`
	Name        string `json:"name,omitempty"`
	Enabled     bool   `json:"enabled"`
	Description string `json:"description"`
	IsRuleSet   bool   `json:"-"`

	// Pending is set when the draft differs from the active policy.
	Pending bool `json:"-"`
	// LiveEnabled is the enabled flag of the active version.
	LiveEnabled bool `json:"-"`
}

// Update carries the fields to write; nil fields are left alone.
type Update struct {
	Enabled     *bool
	Description *string
}

func (u Update) Empty() bool { return u.Enabled == nil && u.Description == nil }

// Ref is the embedded object reference the PCE uses for labels, workloads, etc.
type Ref struct {
	Href     string `json:"href"`
	Name     string `json:"name,omitempty"`
	Hostname string `json:"hostname,omitempty"`
	Key      string `json:"key,omitempty"`
	Value    string `json:"value,omitempty"`
}

// Actor is one consumer or provider entry of a rule.
type Actor struct {
	Actors     string `json:"actors,omitempty"`
	Label      *Ref   `json:"label,omitempty"`
	LabelGroup *Ref   `json:"label_group,omitempty"`
	IPList     *Ref   `json:"ip_list,omitempty"`
	Workload   *Ref   `json:"workload,omitempty"`
}

// Service is an ingress service: either a service object or a port/proto pair.
type Service struct {
	Href   string `json:"href,omitempty"`
	Name   string `json:"name,omitempty"`
	Port   int    `json:"port,omitempty"`
	ToPort int    `json:"to_port,omitempty"`
	Proto  int    `json:"proto,omitempty"`
}

type Rule struct {
	Href            string    `json:"href"`
	Enabled         bool      `json:"enabled"`
	Description     string    `json:"description"`
	Consumers       []Actor   `json:"consumers,omitempty"`
	Providers       []Actor   `json:"providers,omitempty"`
	Destinations    []Actor   `json:"destinations,omitempty"`
	IngressServices []Service `json:"ingress_services,omitempty"`
}

// Sources returns the consuming side, falling back to destinations on
// policy objects exported by newer PCE versions.
func (r Rule) Sources() []Actor {
	if len(r.Consumers) > 0 {
		return r.Consumers
	}
	return r.Destinations
}

type RuleSet struct {
	Href        string `json:"href"`
	Name        string `json:"name"`
	Enabled     bool   `json:"enabled"`
	Description string `json:"description"`
	Rules       []Rule `json:"rules,omitempty"`
}

type Label struct {
	Href  string `json:"href"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

// IsRuleSetHref reports whether href names a rule set rather than a rule.
func IsRuleSetHref(href string) bool {
	return strings.Contains(href, "/rule_sets/") && !strings.Contains(href, "/sec_rules/")
}

// ParentRuleSet returns the rule set href containing href (href itself for a rule set).
func ParentRuleSet(href string) string {
	if i := strings.Index(href, "/sec_rules/"); i >= 0 {
		return href[:i]
	}
	return href
}

// ActiveHref maps a draft href to its active policy version. It reports
// false for hrefs that are not draft objects.
func ActiveHref(href string) (string, bool) {
	const draft, active = "/sec_policy/draft/", "/sec_policy/active/"
	if !strings.Contains(href, draft) {
		return "", false
	}
	return strings.Replace(href, draft, active, 1), true
}

// ID returns the last path segment of href.
func ID(href string) string {
	href = strings.TrimRight(href, "/")
	if i := strings.LastIndex(href, "/"); i >= 0 {
		return href[i+1:]
	}
	return href
}
