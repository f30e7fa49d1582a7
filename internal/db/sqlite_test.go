package db

import (
	"context"
	"path/filepath"
	"testing"
)

func TestOpenSQLite_AppliesSchemaIdempotently(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "rules.db")
	for i := 0; i < 2; i++ {
		conn, err := OpenSQLite(ctx, path)
		if err != nil {
			t.Fatalf("OpenSQLite #%d: %v", i, err)
		}
		var n int
		err = conn.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('schedules', 'audit_log')`).Scan(&n)
		_ = conn.Close()
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if n != 2 {
			t.Fatalf("expected 2 tables, got %d", n)
		}
	}
}

func TestOpenSQLite_RequiresPath(t *testing.T) {
	if _, err := OpenSQLite(context.Background(), " "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
