package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Weekday is a short day tag: Mon, Tue, Wed, Thu, Fri, Sat, Sun.
type Weekday string

const (
	Monday    Weekday = "Mon"
	Tuesday   Weekday = "Tue"
	Wednesday Weekday = "Wed"
	Thursday  Weekday = "Thu"
	Friday    Weekday = "Fri"
	Saturday  Weekday = "Sat"
	Sunday    Weekday = "Sun"
)

// AllWeekdays is Monday first.
var AllWeekdays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

var weekdayStd = map[Weekday]time.Weekday{
	Monday:    time.Monday,
	Tuesday:   time.Tuesday,
	Wednesday: time.Wednesday,
	Thursday:  time.Thursday,
	Friday:    time.Friday,
	Saturday:  time.Saturday,
	Sunday:    time.Sunday,
}

func (d Weekday) Valid() bool {
	_, ok := weekdayStd[d]
	return ok
}

// Std converts to time.Weekday. Invalid tags map to -1.
func (d Weekday) Std() time.Weekday {
	if w, ok := weekdayStd[d]; ok {
		return w
	}
	return -1
}

// WeekdayOf returns the tag for a time.Weekday.
func WeekdayOf(d time.Weekday) Weekday {
	return AllWeekdays[(int(d)+6)%7]
}

// ParseWeekday accepts short or long English day names in any case.
func ParseWeekday(s string) (Weekday, error) {
	t := strings.ToLower(strings.TrimSpace(s))
	for _, d := range AllWeekdays {
		short := strings.ToLower(string(d))
		long := strings.ToLower(d.Std().String())
		if t == short || t == long {
			return d, nil
		}
	}
	return "", fmt.Errorf("invalid weekday %q", s)
}

// ParseWeekdays parses a day list, rejecting unknown tags and duplicates.
func ParseWeekdays(in []string) ([]Weekday, error) {
	if len(in) == 0 {
		return nil, errors.New("at least one day is required")
	}
	out := make([]Weekday, 0, len(in))
	seen := make(map[Weekday]bool, len(in))
	for _, s := range in {
		d, err := ParseWeekday(s)
		if err != nil {
			return nil, err
		}
		if seen[d] {
			return nil, fmt.Errorf("duplicate weekday %q", s)
		}
		seen[d] = true
		out = append(out, d)
	}
	return out, nil
}

// SplitDays splits a comma separated day list, dropping blanks.
func SplitDays(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// TimeOfDay is minutes since midnight. 24:00 is accepted as an end bound.
type TimeOfDay int

const endOfDay TimeOfDay = 24 * 60

func (t TimeOfDay) Valid() bool { return t >= 0 && t <= endOfDay }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// Seconds since midnight.
func (t TimeOfDay) Seconds() int { return int(t) * 60 }

// ParseTimeOfDay parses H:MM or HH:MM.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hs, ms, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(ms) != 2 || len(hs) == 0 || len(hs) > 2 {
		return 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	h, err1 := strconv.Atoi(hs)
	m, err2 := strconv.Atoi(ms)
	if err1 != nil || err2 != nil || h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	return TimeOfDay(h*60 + m), nil
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ExpireLayout is the minute precision layout used in tags and display.
const ExpireLayout = "2006-01-02T15:04"

var naiveLayouts = []string{ExpireLayout, "2006-01-02 15:04", "2006-01-02T15:04:05", "2006-01-02 15:04:05"}

// ParseExpireAt accepts RFC 3339 or a naive "YYYY-MM-DD HH:MM" read in loc.
// The result is truncated to the minute.
func ParseExpireAt(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("required")
	}
	if loc == nil {
		loc = time.Local
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Truncate(time.Minute), nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.Truncate(time.Minute), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q, want YYYY-MM-DD HH:MM", s)
}
