package repo

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/crucial707/rule-scheduler/internal/db"
	"github.com/crucial707/rule-scheduler/internal/models"
)

func TestSQLiteStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	conn, err := db.OpenSQLite(ctx, filepath.Join(t.TempDir(), "rules.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	st := NewSQLiteStore(conn)
	defer st.Close()

	ref := "/orgs/1/sec_policy/draft/rule_sets/7"
	if err := st.Put(ctx, recurring(t, ref)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := st.Put(ctx, oneTime(t, ref)); err != nil {
		t.Fatalf("Put upsert: %v", err)
	}
	all, err := st.All(ctx)
	if err != nil || len(all) != 1 || all[ref].Kind() != models.KindOneTime {
		t.Fatalf("All: %+v, %v", all, err)
	}
	if k, _ := st.KindOf(ctx, ref); k != models.KindOneTime {
		t.Errorf("KindOf: %q", k)
	}

	audit := NewSQLiteAudit(conn)
	if err := audit.Append(ctx, models.AuditEntry{Actor: "engine", Action: "noop", TargetRef: ref}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	entries, err := audit.List(ctx, 10, 0)
	if err != nil || len(entries) != 1 || entries[0].CreatedAt.IsZero() {
		t.Fatalf("List: %+v, %v", entries, err)
	}

	if err := st.Delete(ctx, ref); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, _ := st.Get(ctx, ref); got != nil {
		t.Error("record still present")
	}
}
