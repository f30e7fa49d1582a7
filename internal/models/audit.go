package models

import "time"

// AuditEntry represents one audit trail row: an operator action or a reconciliation outcome.
type AuditEntry struct {
	ID        int       `json:"id,omitempty"`
	Actor     string    `json:"actor"`  // operator name, or "engine"
	Action    string    `json:"action"` // create, delete, noop, changed, annotated, expired, failed
	TargetRef string    `json:"target_ref"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
