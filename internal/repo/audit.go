package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/crucial707/rule-scheduler/internal/models"
)

// AuditRepo persists audit log entries in the audit_log table.
type AuditRepo struct {
	db     *sql.DB
	rebind func(string) string
}

// NewPostgresAudit returns an AuditRepo using $n placeholders.
func NewPostgresAudit(db *sql.DB) *AuditRepo {
	return &AuditRepo{db: db, rebind: dollarPlaceholders}
}

// NewSQLiteAudit returns an AuditRepo using ? placeholders.
func NewSQLiteAudit(db *sql.DB) *AuditRepo {
	return &AuditRepo{db: db, rebind: func(q string) string { return q }}
}

// Append records an entry. Actor is an operator name or "engine".
func (r *AuditRepo) Append(ctx context.Context, e models.AuditEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		r.rebind(`INSERT INTO audit_log (actor, action, target_ref, details, created_at) VALUES (?, ?, ?, ?, ?)`),
		e.Actor, e.Action, e.TargetRef, e.Details, e.CreatedAt.UTC(),
	)
	if err != nil {
		return ioErr("append audit", err)
	}
	return nil
}

// List returns recent audit entries, newest first.
func (r *AuditRepo) List(ctx context.Context, limit, offset int) ([]models.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		r.rebind(`SELECT id, actor, action, target_ref, COALESCE(details,''), created_at FROM audit_log ORDER BY id DESC LIMIT ? OFFSET ?`),
		limit, offset,
	)
	if err != nil {
		return nil, ioErr("list audit", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var at any
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.TargetRef, &e.Details, &at); err != nil {
			return nil, ioErr("scan audit", err)
		}
		e.CreatedAt = scanTime(at)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, ioErr("list audit", err)
	}
	return entries, nil
}

var sqliteTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// scanTime accepts what either driver hands back for a timestamp column.
func scanTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		return parseTimeText(t)
	case []byte:
		return parseTimeText(string(t))
	case int64:
		return time.Unix(t, 0).UTC()
	}
	return time.Time{}
}

func parseTimeText(s string) time.Time {
	for _, layout := range sqliteTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
