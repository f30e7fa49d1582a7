package pce

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/crucial707/rule-scheduler/internal/config"
)

const (
	ruleHref   = "/orgs/1/sec_policy/draft/rule_sets/7/sec_rules/12"
	rsHref     = "/orgs/1/sec_policy/draft/rule_sets/7"
	activeRule = "/orgs/1/sec_policy/active/rule_sets/7/sec_rules/12"
)

type recorded struct {
	Method string
	Path   string
	Body   string
}

// fakePCE serves canned responses keyed by "METHOD /path" and records requests.
type fakePCE struct {
	mu        sync.Mutex
	requests  []recorded
	responses map[string]func(w http.ResponseWriter, r *http.Request)
}

func (f *fakePCE) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, pass, ok := r.BasicAuth()
	if !ok || user != "api_key" || pass != "secret" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	b, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recorded{Method: r.Method, Path: r.URL.RequestURI(), Body: string(b)})
	f.mu.Unlock()

	key := r.Method + " " + strings.TrimPrefix(r.URL.Path, "/api/v2")
	if h, ok := f.responses[key]; ok {
		h(w, r)
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

func jsonReply(code int, v any) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if v != nil {
			_ = json.NewEncoder(w).Encode(v)
		}
	}
}

func newTestClient(t *testing.T, f *fakePCE) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return New(config.PCEConfig{
		URL:            srv.URL + "/",
		OrgID:          "1",
		APIKey:         "api_key",
		APISecret:      "secret",
		TimeoutSeconds: 5,
	}, zerolog.Nop())
}

func TestClient_Target(t *testing.T) {
	rule := map[string]any{"href": ruleHref, "enabled": true, "description": "web to db"}
	f := &fakePCE{responses: map[string]func(http.ResponseWriter, *http.Request){
		"GET " + ruleHref:   jsonReply(http.StatusOK, rule),
		"GET " + activeRule: jsonReply(http.StatusOK, rule),
	}}
	c := newTestClient(t, f)

	got, err := c.Target(context.Background(), ruleHref)
	if err != nil {
		t.Fatalf("Target: %v", err)
	}
	if !got.Enabled || got.Description != "web to db" || got.IsRuleSet {
		t.Errorf("unexpected target: %+v", got)
	}
	if got.Pending || !got.LiveEnabled {
		t.Errorf("provisioned rule reported pending: %+v", got)
	}
}

func TestClient_TargetPendingDraft(t *testing.T) {
	f := &fakePCE{responses: map[string]func(http.ResponseWriter, *http.Request){
		"GET " + ruleHref:   jsonReply(http.StatusOK, map[string]any{"href": ruleHref, "enabled": true}),
		"GET " + activeRule: jsonReply(http.StatusOK, map[string]any{"href": activeRule, "enabled": false}),
	}}
	c := newTestClient(t, f)

	got, err := c.Target(context.Background(), ruleHref)
	if err != nil {
		t.Fatalf("Target: %v", err)
	}
	if !got.Enabled || got.LiveEnabled || !got.Pending {
		t.Errorf("draft enabled over disabled active should be pending: %+v", got)
	}
}

func TestClient_TargetNeverProvisioned(t *testing.T) {
	f := &fakePCE{responses: map[string]func(http.ResponseWriter, *http.Request){
		"GET " + ruleHref: jsonReply(http.StatusOK, map[string]any{"href": ruleHref, "enabled": true}),
	}}
	c := newTestClient(t, f)

	got, err := c.Target(context.Background(), ruleHref)
	if err != nil {
		t.Fatalf("Target: %v", err)
	}
	if !got.Pending || got.LiveEnabled {
		t.Errorf("missing active version should be pending: %+v", got)
	}
}

func TestClient_TargetActiveUnreachable(t *testing.T) {
	f := &fakePCE{responses: map[string]func(http.ResponseWriter, *http.Request){
		"GET " + ruleHref:   jsonReply(http.StatusOK, map[string]any{"href": ruleHref, "enabled": true}),
		"GET " + activeRule: jsonReply(http.StatusBadGateway, nil),
	}}
	c := newTestClient(t, f)

	if _, err := c.Target(context.Background(), ruleHref); !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
}

func TestClient_Target_NotFound(t *testing.T) {
	c := newTestClient(t, &fakePCE{})
	_, err := c.Target(context.Background(), ruleHref)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if Retryable(err) {
		t.Error("not found must not be retryable")
	}
}

func TestClient_StatusClassification(t *testing.T) {
	tests := []struct {
		code        int
		unreachable bool
		retryable   bool
	}{
		{http.StatusInternalServerError, true, true},
		{http.StatusServiceUnavailable, true, true},
		{http.StatusTooManyRequests, true, true},
		{http.StatusForbidden, true, false},
		{http.StatusBadRequest, false, false},
		{http.StatusNotAcceptable, false, false},
	}
	for _, tt := range tests {
		f := &fakePCE{responses: map[string]func(http.ResponseWriter, *http.Request){
			"GET " + ruleHref: jsonReply(tt.code, map[string]string{"token": "boom"}),
		}}
		c := newTestClient(t, f)
		_, err := c.Target(context.Background(), ruleHref)
		var se *StatusError
		if !errors.As(err, &se) || se.Code != tt.code {
			t.Fatalf("%d: expected StatusError, got %v", tt.code, err)
		}
		if errors.Is(err, ErrUnreachable) != tt.unreachable {
			t.Errorf("%d: unreachable = %v", tt.code, !tt.unreachable)
		}
		if Retryable(err) != tt.retryable {
			t.Errorf("%d: retryable = %v", tt.code, !tt.retryable)
		}
	}
}

func TestClient_TransportErrorIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(config.PCEConfig{URL: url, OrgID: "1", APIKey: "k", APISecret: "s", TimeoutSeconds: 1}, zerolog.Nop())
	_, err := c.Target(context.Background(), ruleHref)
	if !errors.Is(err, ErrUnreachable) || !Retryable(err) {
		t.Fatalf("expected retryable ErrUnreachable, got %v", err)
	}
}

func TestClient_NotReady(t *testing.T) {
	c := New(config.PCEConfig{URL: "https://pce.example"}, zerolog.Nop())
	if err := c.Ready(); !errors.Is(err, config.ErrNotReady) {
		t.Fatalf("Ready: %v", err)
	}
	if _, err := c.Target(context.Background(), ruleHref); !errors.Is(err, config.ErrNotReady) {
		t.Fatalf("Target: %v", err)
	}
}

func TestClient_UpdateProvisionsParentRuleSet(t *testing.T) {
	f := &fakePCE{responses: map[string]func(http.ResponseWriter, *http.Request){
		"PUT " + ruleHref:         jsonReply(http.StatusNoContent, nil),
		"POST /orgs/1/sec_policy": jsonReply(http.StatusCreated, map[string]any{"version": 42}),
	}}
	c := newTestClient(t, f)

	enabled := false
	if err := c.Update(context.Background(), ruleHref, Update{Enabled: &enabled}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(f.requests) != 2 {
		t.Fatalf("expected PUT + POST, got %+v", f.requests)
	}
	var put map[string]any
	if err := json.Unmarshal([]byte(f.requests[0].Body), &put); err != nil {
		t.Fatal(err)
	}
	if put["enabled"] != false {
		t.Errorf("PUT body: %v", put)
	}
	if _, ok := put["description"]; ok {
		t.Error("unset description must not be sent")
	}
	var prov provisionRequest
	if err := json.Unmarshal([]byte(f.requests[1].Body), &prov); err != nil {
		t.Fatal(err)
	}
	if len(prov.ChangeSubset.RuleSets) != 1 || prov.ChangeSubset.RuleSets[0].Href != rsHref {
		t.Errorf("change_subset: %+v", prov)
	}
}

func TestClient_UpdateEmptyOnlyProvisions(t *testing.T) {
	f := &fakePCE{responses: map[string]func(http.ResponseWriter, *http.Request){
		"POST /orgs/1/sec_policy": jsonReply(http.StatusCreated, nil),
	}}
	c := newTestClient(t, f)
	if err := c.Update(context.Background(), ruleHref, Update{}); err != nil {
		t.Fatal(err)
	}
	if len(f.requests) != 1 || f.requests[0].Method != http.MethodPost {
		t.Errorf("expected a single provision, got %+v", f.requests)
	}
}

func TestClient_UpdateProvisionFailureSurfaces(t *testing.T) {
	f := &fakePCE{responses: map[string]func(http.ResponseWriter, *http.Request){
		"PUT " + ruleHref:         jsonReply(http.StatusNoContent, nil),
		"POST /orgs/1/sec_policy": jsonReply(http.StatusInternalServerError, nil),
	}}
	c := newTestClient(t, f)
	off := false
	err := c.Update(context.Background(), ruleHref, Update{Enabled: &off})
	if !errors.Is(err, ErrUnreachable) || !Retryable(err) {
		t.Fatalf("expected retryable provision error, got %v", err)
	}
}

func TestClient_UpsertTag(t *testing.T) {
	note := "web to db"
	f := &fakePCE{}
	f.responses = map[string]func(http.ResponseWriter, *http.Request){
		"GET " + ruleHref: func(w http.ResponseWriter, r *http.Request) {
			jsonReply(http.StatusOK, map[string]any{"href": ruleHref, "enabled": true, "description": note})(w, r)
		},
		"PUT " + ruleHref: func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			_ = json.NewDecoder(strings.NewReader(f.requests[len(f.requests)-1].Body)).Decode(&body)
			note, _ = body["description"].(string)
			w.WriteHeader(http.StatusNoContent)
		},
		"POST /orgs/1/sec_policy": jsonReply(http.StatusCreated, nil),
	}
	c := newTestClient(t, f)
	ctx := context.Background()

	tag := "[[rulesched: allow Mon 08:00-18:00]]"
	if err := c.UpsertTag(ctx, ruleHref, tag); err != nil {
		t.Fatalf("UpsertTag: %v", err)
	}
	if note != "web to db "+tag {
		t.Errorf("note: %q", note)
	}
	n := len(f.requests)
	if err := c.UpsertTag(ctx, ruleHref, tag); err != nil {
		t.Fatal(err)
	}
	if len(f.requests) != n+1 {
		t.Errorf("unchanged note should only GET, got %+v", f.requests[n:])
	}
	if err := c.RemoveTag(ctx, ruleHref); err != nil {
		t.Fatalf("RemoveTag: %v", err)
	}
	if note != "web to db" {
		t.Errorf("note after strip: %q", note)
	}
}

func TestClient_RuleSetsAndDescribe(t *testing.T) {
	f := &fakePCE{responses: map[string]func(http.ResponseWriter, *http.Request){
		"GET /orgs/1/sec_policy/draft/rule_sets": jsonReply(http.StatusOK, []RuleSet{
			{Href: "/orgs/1/sec_policy/draft/rule_sets/9", Name: "zeta"},
			{Href: rsHref, Name: "Alpha", Enabled: true},
		}),
		"GET " + rsHref: jsonReply(http.StatusOK, RuleSet{
			Href: rsHref, Name: "Alpha", Enabled: true,
			Rules: []Rule{{
				Href:            ruleHref,
				Enabled:         true,
				Consumers:       []Actor{{Label: &Ref{Href: "/orgs/1/labels/5"}}, {IPList: &Ref{Href: "/orgs/1/sec_policy/draft/ip_lists/3", Name: "corp"}}},
				Providers:       []Actor{{Actors: "ams"}},
				IngressServices: []Service{{Port: 443, Proto: 6}, {Port: 8000, ToPort: 8100, Proto: 17}},
			}},
		}),
		"GET /orgs/1/labels": jsonReply(http.StatusOK, []Label{{Href: "/orgs/1/labels/5", Key: "role", Value: "web"}}),
	}}
	c := newTestClient(t, f)
	ctx := context.Background()

	list, err := c.RuleSets(ctx, "a b")
	if err != nil {
		t.Fatalf("RuleSets: %v", err)
	}
	if len(list) != 2 || list[0].Name != "Alpha" {
		t.Errorf("expected sorted list, got %+v", list)
	}
	if q := f.requests[0].Path; q != "/api/v2/orgs/1/sec_policy/draft/rule_sets?name=a+b" {
		t.Errorf("query: %q", q)
	}

	rs, err := c.RuleSet(ctx, "7")
	if err != nil {
		t.Fatalf("RuleSet: %v", err)
	}
	r := rs.Rules[0]
	if got := c.DescribeActors(ctx, r.Sources()); got != "role:web, IPL:corp" {
		t.Errorf("sources: %q", got)
	}
	if got := c.DescribeActors(ctx, r.Providers); got != "All Workloads" {
		t.Errorf("providers: %q", got)
	}
	if got := DescribeServices(r.IngressServices); got != "443/TCP, 8000-8100/UDP" {
		t.Errorf("services: %q", got)
	}
	c.DescribeActors(ctx, r.Sources())
	labelFetches := 0
	for _, req := range f.requests {
		if req.Path == "/api/v2/orgs/1/labels" {
			labelFetches++
		}
	}
	if labelFetches != 1 {
		t.Errorf("labels should be cached, fetched %d times", labelFetches)
	}
}

func TestHrefHelpers(t *testing.T) {
	if !IsRuleSetHref(rsHref) || IsRuleSetHref(ruleHref) {
		t.Error("IsRuleSetHref")
	}
	if ParentRuleSet(ruleHref) != rsHref || ParentRuleSet(rsHref) != rsHref {
		t.Error("ParentRuleSet")
	}
	if a, ok := ActiveHref(ruleHref); !ok || a != activeRule {
		t.Errorf("ActiveHref: %q %v", a, ok)
	}
	if _, ok := ActiveHref("/orgs/1/labels/3"); ok {
		t.Error("ActiveHref should reject non-draft hrefs")
	}
	if ID(ruleHref) != "12" {
		t.Errorf("ID: %q", ID(ruleHref))
	}
}
