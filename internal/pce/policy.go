package pce

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/crucial707/rule-scheduler/internal/annotation"
)

// Target fetches the draft of a rule or rule set and compares it with the
// active version. An object that was never provisioned is pending with
// LiveEnabled false.
func (c *Client) Target(ctx context.Context, ref string) (*Target, error) {
	t, err := c.draft(ctx, ref)
	if err != nil {
		return nil, err
	}
	active, ok := ActiveHref(ref)
	if !ok {
		t.LiveEnabled = t.Enabled
		return t, nil
	}
	var live Target
	err = c.do(ctx, http.MethodGet, active, nil, &live)
	switch {
	case errors.Is(err, ErrNotFound):
		t.Pending = true
	case err != nil:
		return nil, fmt.Errorf("active state: %w", err)
	default:
		t.LiveEnabled = live.Enabled
		t.Pending = live.Enabled != t.Enabled || live.Description != t.Description
	}
	return t, nil
}

func (c *Client) draft(ctx context.Context, ref string) (*Target, error) {
	var t Target
	if err := c.do(ctx, http.MethodGet, ref, nil, &t); err != nil {
		return nil, err
	}
	if t.Href == "" {
		t.Href = ref
	}
	t.IsRuleSet = IsRuleSetHref(ref)
	return &t, nil
}

// Update writes the set fields of u to the draft object and provisions its
// rule set so the change takes effect. An empty u only provisions, which
// commits a draft left behind by an earlier failed provision.
func (c *Client) Update(ctx context.Context, ref string, u Update) error {
	if u.Empty() {
		return c.Provision(ctx, ParentRuleSet(ref), "rulesched: provision "+ID(ref))
	}
	body := map[string]any{}
	if u.Enabled != nil {
		body["enabled"] = *u.Enabled
	}
	if u.Description != nil {
		body["description"] = *u.Description
	}
	if err := c.do(ctx, http.MethodPut, ref, body, nil); err != nil {
		return err
	}
	return c.Provision(ctx, ParentRuleSet(ref), "rulesched: update "+ID(ref))
}

type changeSubset struct {
	RuleSets []Ref `json:"rule_sets"`
}

type provisionRequest struct {
	UpdateDescription string       `json:"update_description"`
	ChangeSubset      changeSubset `json:"change_subset"`
}

// Provision commits pending draft changes of one rule set.
func (c *Client) Provision(ctx context.Context, ruleSetHref, note string) error {
	req := provisionRequest{
		UpdateDescription: note,
		ChangeSubset:      changeSubset{RuleSets: []Ref{{Href: ruleSetHref}}},
	}
	if err := c.do(ctx, http.MethodPost, c.orgPath("/sec_policy"), req, nil); err != nil {
		return fmt.Errorf("provision %s: %w", ruleSetHref, err)
	}
	return nil
}

// UpsertTag makes the target's note carry tag, writing only when it changes.
func (c *Client) UpsertTag(ctx context.Context, ref, tag string) error {
	return c.rewriteNote(ctx, ref, func(note string) string { return annotation.Upsert(note, tag) })
}

// RemoveTag strips any schedule tag from the target's note.
func (c *Client) RemoveTag(ctx context.Context, ref string) error {
	return c.rewriteNote(ctx, ref, annotation.Strip)
}

func (c *Client) rewriteNote(ctx context.Context, ref string, edit func(string) string) error {
	t, err := c.draft(ctx, ref)
	if err != nil {
		return err
	}
	note := edit(t.Description)
	if note == t.Description {
		return nil
	}
	return c.Update(ctx, ref, Update{Description: &note})
}
