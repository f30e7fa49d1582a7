package repo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/crucial707/rule-scheduler/internal/models"
)

func TestFileStore_PutGetAll(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rule_schedules.json")
	st, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	all, err := st.All(ctx)
	if err != nil || len(all) != 0 {
		t.Fatalf("missing file should be empty store: %v, %v", all, err)
	}

	a := recurring(t, "/orgs/1/sec_policy/draft/rule_sets/7/sec_rules/12")
	b := oneTime(t, "/orgs/1/sec_policy/draft/rule_sets/9")
	for _, s := range []models.Schedule{a, b} {
		if err := st.Put(ctx, s); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	got, err := st.Get(ctx, a.TargetRef)
	if err != nil || got == nil {
		t.Fatalf("Get: %v, %v", got, err)
	}
	if diff := cmp.Diff(a, *got); diff != "" {
		t.Errorf("Get mismatch (-want +got):\n%s", diff)
	}
	all, err = st.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 2 || all[b.TargetRef].Kind() != models.KindOneTime {
		t.Errorf("All: %+v", all)
	}

	missing, err := st.Get(ctx, "/orgs/1/nope")
	if err != nil || missing != nil {
		t.Errorf("absent Get: %v, %v", missing, err)
	}
}

func TestFileStore_UpsertKeepsOneRecordPerTarget(t *testing.T) {
	ctx := context.Background()
	st, _ := NewFileStore(filepath.Join(t.TempDir(), "s.json"))
	ref := "/orgs/1/sec_policy/draft/rule_sets/7"

	if err := st.Put(ctx, recurring(t, ref)); err != nil {
		t.Fatal(err)
	}
	if err := st.Put(ctx, oneTime(t, ref)); err != nil {
		t.Fatal(err)
	}
	all, _ := st.All(ctx)
	if len(all) != 1 {
		t.Fatalf("expected one record, got %d", len(all))
	}
	k, err := st.KindOf(ctx, ref)
	if err != nil || k != models.KindOneTime {
		t.Errorf("KindOf: %q, %v", k, err)
	}
	k, err = st.KindOf(ctx, "/orgs/1/other")
	if err != nil || k != models.KindNone {
		t.Errorf("KindOf absent: %q, %v", k, err)
	}
}

func TestFileStore_PutRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.json")
	st, _ := NewFileStore(path)
	bad := recurring(t, "/orgs/1/x")
	bad.Window = models.Recurring{Action: models.ActionAllow, Start: 600, End: 60}

	err := st.Put(context.Background(), bad)
	if !models.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("invalid record must not create the file")
	}
}

func TestFileStore_DeleteAndNoTempLeftovers(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	st, _ := NewFileStore(filepath.Join(dir, "s.json"))
	ref := "/orgs/1/x"
	if err := st.Put(ctx, recurring(t, ref)); err != nil {
		t.Fatal(err)
	}
	if err := st.Delete(ctx, ref); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := st.Delete(ctx, ref); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if got, _ := st.Get(ctx, ref); got != nil {
		t.Error("record still present")
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "s.json")
	if err := os.WriteFile(path, []byte(`{"/orgs/1/x": {"type": "recur`), 0o600); err != nil {
		t.Fatal(err)
	}
	st, _ := NewFileStore(path)

	if _, err := st.All(ctx); !errors.Is(err, ErrStoreIO) {
		t.Errorf("All: expected ErrStoreIO, got %v", err)
	}
	if err := st.Put(ctx, recurring(t, "/orgs/1/y")); !errors.Is(err, ErrStoreIO) {
		t.Errorf("Put: expected ErrStoreIO, got %v", err)
	}
	b, _ := os.ReadFile(path)
	if !strings.Contains(string(b), "recur") || strings.Contains(string(b), "/orgs/1/y") {
		t.Error("corrupt file must be left untouched")
	}
}

func TestFileStore_InvalidRecordIsStoreIO(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.json")
	body := `{"/orgs/1/x": {"name": "x", "type": "recurring", "days": ["Funday"], "start": "08:00", "end": "18:00"}}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	st, _ := NewFileStore(path)
	if _, err := st.All(context.Background()); !errors.Is(err, ErrStoreIO) {
		t.Errorf("expected ErrStoreIO, got %v", err)
	}
}

func TestFileStore_ReadsLegacyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rule_schedules.json")
	body := `{
  "/orgs/1/sec_policy/draft/rule_sets/3": {
    "name": "Ops", "is_ruleset": true, "type": "recurring",
    "action": "block", "days": ["Monday", "wed"], "start": "09:00", "end": "17:30"
  }
}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	st, _ := NewFileStore(path)
	got, err := st.Get(context.Background(), "/orgs/1/sec_policy/draft/rule_sets/3")
	if err != nil || got == nil {
		t.Fatalf("Get: %v, %v", got, err)
	}
	w, ok := got.Window.(models.Recurring)
	if !ok || w.Action != models.ActionBlock || models.JoinDays(w.Days) != "Mon,Wed" {
		t.Errorf("unexpected window: %#v", got.Window)
	}
	if got.Scope != models.ScopeRuleSet || got.TargetRef != "/orgs/1/sec_policy/draft/rule_sets/3" {
		t.Errorf("unexpected record: %+v", got)
	}
}

func TestFileAudit_AppendList(t *testing.T) {
	ctx := context.Background()
	a := NewFileAudit(filepath.Join(t.TempDir(), "s.audit.jsonl"))

	empty, err := a.List(ctx, 10, 0)
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty List: %v, %v", empty, err)
	}
	for _, action := range []string{"create", "changed", "expired"} {
		if err := a.Append(ctx, models.AuditEntry{Actor: "engine", Action: action, TargetRef: "/orgs/1/x"}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	got, err := a.List(ctx, 2, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0].Action != "expired" || got[0].ID != 3 || got[1].Action != "changed" {
		t.Errorf("unexpected page: %+v", got)
	}
	if got[0].CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
	got, _ = a.List(ctx, 10, 2)
	if len(got) != 1 || got[0].Action != "create" {
		t.Errorf("offset page: %+v", got)
	}
}

func TestAuditPath(t *testing.T) {
	if got := auditPath("data/rule_schedules.json"); got != "data/rule_schedules.audit.jsonl" {
		t.Errorf("got %q", got)
	}
}
