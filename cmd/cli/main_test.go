package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/crucial707/rule-scheduler/cmd/cli/root"
	"github.com/crucial707/rule-scheduler/internal/config"
	"github.com/crucial707/rule-scheduler/internal/engine"
	"github.com/crucial707/rule-scheduler/internal/models"
)

const (
	rsHref   = "/orgs/1/sec_policy/draft/rule_sets/7"
	ruleHref = "/orgs/1/sec_policy/draft/rule_sets/7/sec_rules/1"
)

type object struct {
	Href        string `json:"href"`
	Name        string `json:"name,omitempty"`
	Enabled     bool   `json:"enabled"`
	Description string `json:"description"`
}

// fakePCE holds one rule set with one rule. PUTs change the draft and
// provisioning copies it to the active version.
type fakePCE struct {
	mu      sync.Mutex
	objects map[string]*object
	active  map[string]object
}

func newFakePCE() *fakePCE {
	f := &fakePCE{objects: map[string]*object{
		rsHref:   {Href: rsHref, Name: "web", Enabled: true},
		ruleHref: {Href: ruleHref, Enabled: true, Description: "web to db"},
	}}
	f.provision()
	return f
}

func (f *fakePCE) provision() {
	f.active = make(map[string]object, len(f.objects))
	for href, o := range f.objects {
		f.active[href] = *o
	}
}

func (f *fakePCE) ruleSet() map[string]any {
	rs, rule := f.objects[rsHref], f.objects[ruleHref]
	return map[string]any{
		"href": rs.Href, "name": rs.Name, "enabled": rs.Enabled, "description": rs.Description,
		"rules": []map[string]any{{
			"href": rule.Href, "enabled": rule.Enabled, "description": rule.Description,
			"consumers":        []map[string]any{{"label": map[string]string{"href": "/orgs/1/labels/1"}}},
			"providers":        []map[string]any{{"actors": "ams"}},
			"ingress_services": []map[string]any{{"port": 443, "proto": 6}},
		}},
	}
}

func (f *fakePCE) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := strings.TrimPrefix(r.URL.Path, "/api/v2")
	reply := func(code int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(v)
	}

	draftPath := strings.Replace(path, "/sec_policy/active/", "/sec_policy/draft/", 1)
	live, isLive := f.active[draftPath]

	switch {
	case r.Method == http.MethodGet && draftPath != path && isLive:
		reply(200, live)
	case r.Method == http.MethodGet && path == "/orgs/1/labels":
		reply(200, []map[string]string{{"href": "/orgs/1/labels/1", "key": "role", "value": "web"}})
	case r.Method == http.MethodGet && path == "/orgs/1/sec_policy/draft/rule_sets":
		reply(200, []any{f.ruleSet()})
	case r.Method == http.MethodGet && path == rsHref:
		reply(200, f.ruleSet())
	case r.Method == http.MethodGet && f.objects[path] != nil:
		reply(200, f.objects[path])
	case r.Method == http.MethodPut && f.objects[path] != nil:
		var body struct {
			Enabled     *bool   `json:"enabled"`
			Description *string `json:"description"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Enabled != nil {
			f.objects[path].Enabled = *body.Enabled
		}
		if body.Description != nil {
			f.objects[path].Description = *body.Description
		}
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodPost && path == "/orgs/1/sec_policy":
		f.provision()
		reply(http.StatusCreated, map[string]string{"href": "/orgs/1/sec_policy/2"})
	default:
		reply(http.StatusNotFound, map[string]string{"error": "not found"})
	}
}

func (f *fakePCE) get(href string) object {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.objects[href]
}

func setup(t *testing.T) (*fakePCE, string) {
	t.Helper()
	pce := newFakePCE()
	srv := httptest.NewServer(pce)
	t.Cleanup(srv.Close)

	store := filepath.Join(t.TempDir(), "rule_schedules.json")
	t.Setenv("RULESCHED_CONFIG", "")
	t.Setenv("STORE_DRIVER", "file")
	t.Setenv("STORE_PATH", store)
	t.Setenv("PCE_URL", srv.URL)
	t.Setenv("PCE_ORG_ID", "1")
	t.Setenv("PCE_API_KEY", "key")
	t.Setenv("PCE_API_SECRET", "secret")
	t.Setenv("SCHEDULE_TZ", "UTC")
	t.Setenv("LOG_LEVEL", "error")
	return pce, store
}

// captureOutput helps capture stdout during command execution.
func captureOutput(t *testing.T, fn func()) string {
	t.Helper()

	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w

	var buf bytes.Buffer
	done := make(chan struct{})
	go func() {
		_, _ = io.Copy(&buf, r)
		close(done)
	}()

	fn()

	_ = w.Close()
	os.Stdout = old
	<-done
	return buf.String()
}

// run executes the root command. Flags persist between runs of the shared
// command tree, so --json is always set explicitly.
func run(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	if !slices.ContainsFunc(args, func(a string) bool { return strings.HasPrefix(a, "--json") }) {
		args = append(args, "--json=false")
	}
	var err error
	out := captureOutput(t, func() {
		cmd := root.GetRoot()
		cmd.SetArgs(args)
		err = cmd.ExecuteContext(ctx)
	})
	return out, err
}

func TestSchedule_AddListShowDelete(t *testing.T) {
	pce, _ := setup(t)
	ctx := context.Background()

	out, err := run(t, ctx, "schedule", "add", ruleHref, "--type", "recurring", "--action", "allow",
		"--days", "Mon,Tue,Wed", "--start", "08:00", "--end", "18:00")
	if err != nil {
		t.Fatalf("add: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Scheduled web to db: ALLOW Mon,Tue,Wed 08:00-18:00") {
		t.Errorf("add output: %s", out)
	}
	if note := pce.get(ruleHref).Description; !strings.Contains(note, "web to db") || note == "web to db" {
		t.Errorf("note not tagged: %q", note)
	}

	out, err = run(t, ctx, "schedule", "list")
	if err != nil || !strings.Contains(out, "web to db") || !strings.Contains(out, "ALLOW Mon,Tue,Wed 08:00-18:00") {
		t.Errorf("list: %v\n%s", err, out)
	}

	out, err = run(t, ctx, "schedule", "list", "--json")
	if err != nil {
		t.Fatalf("list --json: %v", err)
	}
	var list []struct {
		TargetRef string `json:"target_ref"`
		Source    string `json:"detail_src"`
		Service   string `json:"detail_svc"`
	}
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(list) != 1 || list[0].TargetRef != ruleHref || list[0].Source != "role:web" || list[0].Service != "443/TCP" {
		t.Errorf("list json: %+v", list)
	}

	out, err = run(t, ctx, "schedule", "show", ruleHref)
	if err != nil || !strings.Contains(out, "All Workloads") {
		t.Errorf("show: %v\n%s", err, out)
	}

	out, err = run(t, ctx, "schedule", "delete", ruleHref)
	if err != nil || !strings.Contains(out, "Schedule deleted") {
		t.Fatalf("delete: %v\n%s", err, out)
	}
	if note := pce.get(ruleHref).Description; note != "web to db" {
		t.Errorf("tag not stripped: %q", note)
	}

	if _, err := run(t, ctx, "schedule", "delete", ruleHref); err == nil {
		t.Error("second delete succeeded")
	}
}

func TestSchedule_AddRejectsInvalid(t *testing.T) {
	setup(t)
	_, err := run(t, context.Background(), "schedule", "add", ruleHref, "--type", "recurring",
		"--days", "Mon", "--start", "18:00", "--end", "08:00")
	if !models.IsValidation(err) {
		t.Errorf("want validation error, got %v", err)
	}
}

func TestCheck_ExpiresOneTime(t *testing.T) {
	pce, _ := setup(t)
	ctx := context.Background()

	if out, err := run(t, ctx, "schedule", "add", ruleHref, "--type", "one_time", "--expire-at", "2000-01-01 00:00"); err != nil {
		t.Fatalf("add: %v\n%s", err, out)
	}
	out, err := run(t, ctx, "check", "--json")
	if err != nil {
		t.Fatalf("check: %v\n%s", err, out)
	}
	var entries []engine.Entry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(entries) != 1 || entries[0].Outcome != engine.OutcomeExpired {
		t.Fatalf("entries: %+v", entries)
	}
	if got := pce.get(ruleHref); got.Enabled || got.Description != "web to db" {
		t.Errorf("rule after expiry: %+v", got)
	}

	out, err = run(t, ctx, "check")
	if err != nil || !strings.Contains(out, "No schedules to check.") {
		t.Errorf("second check: %v\n%s", err, out)
	}
}

func TestCheck_NotReady(t *testing.T) {
	setup(t)
	t.Setenv("PCE_API_SECRET", "")
	t.Setenv("PCE_URL", "")
	_, err := run(t, context.Background(), "check")
	if !errors.Is(err, config.ErrNotReady) {
		t.Errorf("want not ready, got %v", err)
	}
}

func TestMonitor_RunsFirstPassAndStops(t *testing.T) {
	pce, _ := setup(t)
	if out, err := run(t, context.Background(), "schedule", "add", ruleHref, "--type", "one_time", "--expire-at", "2000-01-01 00:00"); err != nil {
		t.Fatalf("add: %v\n%s", err, out)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if out, err := run(t, ctx, "monitor", "--interval", "1h"); err != nil {
		t.Fatalf("monitor: %v\n%s", err, out)
	}
	if pce.get(ruleHref).Enabled {
		t.Error("first pass did not run")
	}
}

func TestRulesets_SearchAndShow(t *testing.T) {
	setup(t)
	ctx := context.Background()
	if out, err := run(t, ctx, "schedule", "add", ruleHref, "--type", "recurring", "--action", "allow",
		"--days", "Everyday", "--start", "08:00", "--end", "18:00"); err != nil {
		t.Fatalf("add: %v\n%s", err, out)
	}

	out, err := run(t, ctx, "rulesets", "search", "web")
	if err != nil || !strings.Contains(out, "●") || !strings.Contains(out, "web") {
		t.Errorf("search: %v\n%s", err, out)
	}

	out, err = run(t, ctx, "rulesets", "show", "7")
	if err != nil {
		t.Fatalf("show: %v\n%s", err, out)
	}
	for _, want := range []string{"★", "role:web", "All Workloads", "443/TCP"} {
		if !strings.Contains(out, want) {
			t.Errorf("show output missing %q:\n%s", want, out)
		}
	}
}
