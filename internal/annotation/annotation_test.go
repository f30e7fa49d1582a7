package annotation

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/crucial707/rule-scheduler/internal/models"
)

func TestTag_RoundTrip(t *testing.T) {
	rec, err := models.NewRecurring("block", []string{"Sat", "Sun", "Mon"}, "07:30", "24:00")
	if err != nil {
		t.Fatalf("NewRecurring: %v", err)
	}
	loc := time.FixedZone("CST", 8*3600)
	once, err := models.NewOneTime("2024-06-01 23:59", loc)
	if err != nil {
		t.Fatalf("NewOneTime: %v", err)
	}

	for _, w := range []models.Window{rec, once} {
		tag := Tag(w, loc)
		got, err := Parse(tag)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tag, err)
		}
		if got.Kind() != w.Kind() {
			t.Errorf("kind: got %q, want %q", got.Kind(), w.Kind())
		}
		if diff := cmp.Diff(w, got); diff != "" {
			t.Errorf("round trip of %q (-want +got):\n%s", tag, diff)
		}
		if again := Tag(got, loc); again != tag {
			t.Errorf("tag not deterministic: %q vs %q", again, tag)
		}
	}
}

func TestTag_Format(t *testing.T) {
	rec, _ := models.NewRecurring("allow", []string{"Mon", "Tue"}, "08:00", "18:00")
	if got, want := Tag(rec, time.UTC), "[[rulesched: allow Mon,Tue 08:00-18:00]]"; got != want {
		t.Errorf("recurring tag: got %q, want %q", got, want)
	}
	once, _ := models.NewOneTime("2024-06-01T23:59", time.UTC)
	if got, want := Tag(once, time.UTC), "[[rulesched: until 2024-06-01T23:59Z]]"; got != want {
		t.Errorf("one-time tag: got %q, want %q", got, want)
	}
}

func TestParse_Errors(t *testing.T) {
	for _, in := range []string{
		"no tag here",
		"[[rulesched: sometimes]]",
		"[[rulesched: allow Funday 08:00-09:00]]",
		"[[rulesched: until yesterday]]",
	} {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q): expected error", in)
		}
	}
}

func TestUpsert(t *testing.T) {
	tag := "[[rulesched: allow Mon 08:00-18:00]]"
	tests := []struct {
		name, note, want string
	}{
		{"empty note", "", tag},
		{"append after text", "owned by netops", "owned by netops " + tag},
		{"append after newline", "line one\n", "line one\n" + tag},
		{"replace in place", "a [[rulesched: block Tue 01:00-02:00]] b", "a " + tag + " b"},
		{"already correct", "x " + tag, "x " + tag},
		{"drop duplicates", tag + " mid " + "[[rulesched: until 2024-01-01T00:00Z]]", tag + " mid"},
		{"replace legacy", "ticket 42 [📅 排程: allow 08:00-18:00]", "ticket 42 " + tag},
		{"replace legacy expiry", "[⏳ 有效期限至 2024-06-01T23:59 止] keep", tag + " keep"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Upsert(tt.note, tag); got != tt.want {
				t.Errorf("Upsert(%q) = %q, want %q", tt.note, got, tt.want)
			}
		})
	}
}

func TestStrip(t *testing.T) {
	tag := "[[rulesched: until 2024-06-01T23:59Z]]"
	tests := []struct {
		name, note, want string
	}{
		{"only tag", tag, ""},
		{"trailing tag", "keep me " + tag, "keep me"},
		{"leading tag", tag + " keep me", "keep me"},
		{"middle tag", "left " + tag + " right", "left right"},
		{"no tag", "plain [brackets] stay", "plain [brackets] stay"},
		{"legacy and current", "[📅 排程: allow 08:00-18:00] note " + tag, "note"},
		{"brackets nearby", "[x] " + tag + " [y]", "[x] [y]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Strip(tt.note); got != tt.want {
				t.Errorf("Strip(%q) = %q, want %q", tt.note, got, tt.want)
			}
		})
	}
}

func TestFind(t *testing.T) {
	tag := "[[rulesched: allow Mon 08:00-18:00]]"
	got, ok := Find("hello " + tag + " world")
	if !ok || got != tag {
		t.Errorf("Find: got %q, %v", got, ok)
	}
	if _, ok := Find("[[other: thing]]"); ok {
		t.Error("Find matched a foreign tag")
	}
}
