package db

import (
	"net/url"
	"slices"
	"testing"
)

func TestVersions(t *testing.T) {
	got, err := Versions()
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	if !slices.Equal(got, []uint{1, 2}) {
		t.Errorf("versions: %v", got)
	}
}

func TestWithMigrationsTable(t *testing.T) {
	got, err := withMigrationsTable("postgres://u:p@db:5432/rules?sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}
	u, _ := url.Parse(got)
	if u.Query().Get("x-migrations-table") != MigrationsTable || u.Query().Get("sslmode") != "disable" {
		t.Errorf("url: %s", got)
	}

	got, _ = withMigrationsTable("postgres://u:p@db/rules?x-migrations-table=custom")
	u, _ = url.Parse(got)
	if u.Query().Get("x-migrations-table") != "custom" {
		t.Errorf("explicit table overridden: %s", got)
	}
}
