package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/crucial707/rule-scheduler/internal/models"
	"github.com/crucial707/rule-scheduler/internal/pce"
)

// Outcome is what one pass did for one record.
type Outcome string

const (
	OutcomeNoop      Outcome = "noop"
	OutcomeChanged   Outcome = "changed"
	OutcomeAnnotated Outcome = "annotated"
	OutcomeExpired   Outcome = "expired"
	OutcomeFailed    Outcome = "failed"
)

// Entry is one line of a pass log.
type Entry struct {
	At        time.Time   `json:"at"`
	TargetRef string      `json:"target_ref"`
	Name      string      `json:"name"`
	Kind      models.Kind `json:"kind"`
	Outcome   Outcome     `json:"outcome"`
	// Desired is the enabled state the schedule asks for ("enabled" or "disabled").
	Desired string `json:"desired"`
	Message string `json:"message"`
}

func (e Entry) String() string {
	name := e.Name
	if name == "" {
		name = "-"
	}
	return fmt.Sprintf("[%s] %-9s %s (%s): %s",
		e.At.Format("2006-01-02 15:04:05"), strings.ToUpper(string(e.Outcome)), name, pce.ID(e.TargetRef), e.Message)
}

// Failed reports whether the entry records a failure.
func (e Entry) Failed() bool { return e.Outcome == OutcomeFailed }

func desired(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

// Summary counts entries by outcome.
func Summary(entries []Entry) map[Outcome]int {
	out := make(map[Outcome]int, 5)
	for _, e := range entries {
		out[e.Outcome]++
	}
	return out
}
