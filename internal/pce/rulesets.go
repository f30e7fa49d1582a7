package pce

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

const labelTTL = 10 * time.Minute

// RuleSets lists draft rule sets whose name contains name (all when empty),
// sorted by name.
func (c *Client) RuleSets(ctx context.Context, name string) ([]RuleSet, error) {
	path := c.orgPath("/sec_policy/draft/rule_sets")
	if name = strings.TrimSpace(name); name != "" {
		path += "?name=" + url.QueryEscape(name)
	}
	var out []RuleSet
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out, nil
}

// RuleSet fetches one rule set with its rules. ref may be a full href or a bare id.
func (c *Client) RuleSet(ctx context.Context, ref string) (*RuleSet, error) {
	if !strings.HasPrefix(ref, "/") {
		ref = c.orgPath("/sec_policy/draft/rule_sets/" + url.PathEscape(ref))
	}
	var rs RuleSet
	if err := c.do(ctx, http.MethodGet, ref, nil, &rs); err != nil {
		return nil, err
	}
	return &rs, nil
}

// DescribeActors renders actors for display, e.g. "role:web, IPL:corp".
func (c *Client) DescribeActors(ctx context.Context, actors []Actor) string {
	if len(actors) == 0 {
		return "All"
	}
	labels := c.labelMap(ctx)
	parts := make([]string, 0, len(actors))
	for _, a := range actors {
		switch {
		case a.Actors == "ams":
			parts = append(parts, "All Workloads")
		case a.Actors != "":
			parts = append(parts, a.Actors)
		case a.Label != nil:
			if s, ok := labels[a.Label.Href]; ok {
				parts = append(parts, s)
			} else {
				parts = append(parts, "label:"+ID(a.Label.Href))
			}
		case a.LabelGroup != nil:
			parts = append(parts, "LG:"+nameOr(a.LabelGroup, ID(a.LabelGroup.Href)))
		case a.IPList != nil:
			parts = append(parts, "IPL:"+nameOr(a.IPList, ID(a.IPList.Href)))
		case a.Workload != nil:
			name := a.Workload.Hostname
			if name == "" {
				name = nameOr(a.Workload, ID(a.Workload.Href))
			}
			parts = append(parts, "WL:"+name)
		}
	}
	return strings.Join(parts, ", ")
}

// DescribeServices renders ingress services, e.g. "443/TCP, SSH".
func DescribeServices(svcs []Service) string {
	if len(svcs) == 0 {
		return "All Services"
	}
	parts := make([]string, 0, len(svcs))
	for _, s := range svcs {
		switch {
		case s.Href != "":
			parts = append(parts, nameOr(&Ref{Name: s.Name}, "Service:"+ID(s.Href)))
		case s.Port > 0 && s.ToPort > s.Port:
			parts = append(parts, fmt.Sprintf("%d-%d/%s", s.Port, s.ToPort, protoName(s.Proto)))
		case s.Port > 0:
			parts = append(parts, fmt.Sprintf("%d/%s", s.Port, protoName(s.Proto)))
		default:
			parts = append(parts, protoName(s.Proto))
		}
	}
	return strings.Join(parts, ", ")
}

func protoName(p int) string {
	switch p {
	case 6:
		return "TCP"
	case 17:
		return "UDP"
	case 1:
		return "ICMP"
	case 58:
		return "ICMPv6"
	case 0:
		return "ANY"
	}
	return fmt.Sprintf("proto%d", p)
}

func nameOr(r *Ref, fallback string) string {
	if r != nil && r.Name != "" {
		return r.Name
	}
	return fallback
}

// Labels fetches all labels of the org.
func (c *Client) Labels(ctx context.Context) ([]Label, error) {
	var out []Label
	if err := c.do(ctx, http.MethodGet, c.orgPath("/labels"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type labelCache struct {
	mu       sync.Mutex
	byHref   map[string]string
	loadedAt time.Time
}

func (lc *labelCache) reset() {
	lc.mu.Lock()
	lc.byHref = nil
	lc.loadedAt = time.Time{}
	lc.mu.Unlock()
}

// labelMap returns href -> "key:value". A failed refresh keeps the stale map.
func (c *Client) labelMap(ctx context.Context) map[string]string {
	lc := &c.labels
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if lc.byHref != nil && time.Since(lc.loadedAt) < labelTTL {
		return lc.byHref
	}
	labels, err := c.Labels(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("label refresh failed")
		if lc.byHref == nil {
			return map[string]string{}
		}
		return lc.byHref
	}
	m := make(map[string]string, len(labels))
	for _, l := range labels {
		m[l.Href] = l.Key + ":" + l.Value
	}
	lc.byHref = m
	lc.loadedAt = time.Now()
	return m
}
