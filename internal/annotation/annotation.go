// Package annotation embeds a schedule tag in a target's free-text description.
//
// A tag looks like "[[rulesched: allow Mon,Tue 08:00-18:00]]" or
// "[[rulesched: until 2024-06-01T23:59+02:00]]". Only the tag substring is
// ever touched; surrounding operator text is preserved.
package annotation

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/crucial707/rule-scheduler/internal/models"
)

const (
	open   = "[[rulesched: "
	closer = "]]"

	untilLayout = "2006-01-02T15:04Z07:00"
)

var (
	tagPattern = regexp.MustCompile(`\[\[rulesched: ([^\[\]]*)\]\]`)

	// Tags written by the earlier Python scheduler. Recognised so they get replaced.
	legacyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\[📅 排程: [^\]]*\]`),
		regexp.MustCompile(`\[⏳ 有效期限至 [^\]]*止\]`),
	}

	recurringBody = regexp.MustCompile(`^(allow|block) ([A-Za-z,]+) (\d{1,2}:\d{2})-(\d{1,2}:\d{2})$`)

	ErrNoTag = errors.New("no schedule tag")
)

// Tag renders the tag for w. One-time expiries are rendered in loc.
func Tag(w models.Window, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	switch v := w.(type) {
	case models.Recurring:
		return fmt.Sprintf("%s%s %s %s-%s%s", open, v.Action, models.JoinDays(v.Days), v.Start, v.End, closer)
	case models.OneTime:
		return open + "until " + v.ExpireAt.In(loc).Format(untilLayout) + closer
	}
	return ""
}

// Parse reads a window back from a tag produced by Tag.
func Parse(tag string) (models.Window, error) {
	m := tagPattern.FindStringSubmatch(tag)
	if m == nil {
		return nil, ErrNoTag
	}
	body := m[1]
	if ts, ok := strings.CutPrefix(body, "until "); ok {
		t, err := time.Parse(untilLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("parse tag expiry: %w", err)
		}
		return models.OneTime{ExpireAt: t}, nil
	}
	p := recurringBody.FindStringSubmatch(body)
	if p == nil {
		return nil, fmt.Errorf("parse tag: unrecognised body %q", body)
	}
	w, err := models.NewRecurring(p[1], models.SplitDays(p[2]), p[3], p[4])
	if err != nil {
		return nil, fmt.Errorf("parse tag: %w", err)
	}
	return w, nil
}

// Find returns the first schedule tag in note.
func Find(note string) (string, bool) {
	loc := tagPattern.FindStringIndex(note)
	if loc == nil {
		return "", false
	}
	return note[loc[0]:loc[1]], true
}

// Upsert places tag in note, replacing the first existing tag in place and
// dropping any others. Without an existing tag it is appended after a space.
func Upsert(note, tag string) string {
	locs := matches(note)
	if len(locs) == 0 {
		if note == "" || strings.HasSuffix(note, " ") || strings.HasSuffix(note, "\n") {
			return note + tag
		}
		return note + " " + tag
	}
	first := locs[0]
	rest := make([][2]int, 0, len(locs)-1)
	for _, l := range locs[1:] {
		rest = append(rest, [2]int{l[0] - first[1], l[1] - first[1]})
	}
	return note[:first[0]] + tag + cut(note[first[1]:], rest)
}

// Strip removes every schedule tag and the separator that was added with it.
func Strip(note string) string {
	return cut(note, matches(note))
}

// matches returns non-overlapping tag ranges, current and legacy, in order.
func matches(note string) [][2]int {
	var out [][2]int
	for _, re := range append([]*regexp.Regexp{tagPattern}, legacyPatterns...) {
		for _, l := range re.FindAllStringIndex(note, -1) {
			out = append(out, [2]int{l[0], l[1]})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

func cut(note string, locs [][2]int) string {
	if len(locs) == 0 {
		return note
	}
	var b strings.Builder
	pos := 0
	for _, l := range locs {
		start, end := l[0], l[1]
		if start < pos {
			continue
		}
		if start > pos && isSep(note[start-1]) {
			start--
		} else if end < len(note) && isSep(note[end]) {
			end++
		}
		b.WriteString(note[pos:start])
		pos = end
	}
	b.WriteString(note[pos:])
	return b.String()
}

func isSep(c byte) bool { return c == ' ' || c == '\n' }
