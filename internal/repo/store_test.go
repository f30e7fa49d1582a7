package repo

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/crucial707/rule-scheduler/internal/config"
)

func TestOpen_FileDriver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rule_schedules.json")
	st, audit, err := Open(context.Background(), config.StoreConfig{Driver: "file", Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	if _, ok := st.(*FileStore); !ok {
		t.Errorf("expected *FileStore, got %T", st)
	}
	fa, ok := audit.(*FileAudit)
	if !ok || fa.path != filepath.Join(filepath.Dir(path), "rule_schedules.audit.jsonl") {
		t.Errorf("unexpected audit log: %#v", audit)
	}
}

func TestOpen_SQLiteDriver(t *testing.T) {
	st, _, err := Open(context.Background(), config.StoreConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "r.db")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	if _, ok := st.(*ScheduleRepo); !ok {
		t.Errorf("expected *ScheduleRepo, got %T", st)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, _, err := Open(context.Background(), config.StoreConfig{Driver: "mongo"}); err == nil {
		t.Fatal("expected error")
	}
}
