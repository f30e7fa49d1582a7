package repo

import (
	"testing"
	"time"

	"github.com/crucial707/rule-scheduler/internal/models"
)

func recurring(t *testing.T, ref string) models.Schedule {
	t.Helper()
	w, err := models.NewRecurring("allow", []string{"Mon", "Tue"}, "08:00", "18:00")
	if err != nil {
		t.Fatalf("NewRecurring: %v", err)
	}
	return models.Schedule{
		TargetRef:   ref,
		Scope:       models.ScopeRule,
		DisplayName: "web to db",
		Window:      w,
		CreatedAt:   time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
}

func oneTime(t *testing.T, ref string) models.Schedule {
	t.Helper()
	w, err := models.NewOneTime("2024-06-01T23:59:00Z", time.UTC)
	if err != nil {
		t.Fatalf("NewOneTime: %v", err)
	}
	return models.Schedule{
		TargetRef:   ref,
		Scope:       models.ScopeRuleSet,
		DisplayName: "contractors",
		Window:      w,
		CreatedAt:   time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC),
	}
}
