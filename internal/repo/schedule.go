package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/crucial707/rule-scheduler/internal/models"
)

// ScheduleRepo stores schedules in the schedules table (postgres or sqlite).
// Queries are written with ? placeholders and rebound for postgres.
type ScheduleRepo struct {
	DB     *sql.DB
	rebind func(string) string
	now    func() time.Time
}

// NewPostgresStore returns a ScheduleRepo using $n placeholders.
func NewPostgresStore(db *sql.DB) *ScheduleRepo {
	return &ScheduleRepo{DB: db, rebind: dollarPlaceholders, now: time.Now}
}

// NewSQLiteStore returns a ScheduleRepo using ? placeholders.
func NewSQLiteStore(db *sql.DB) *ScheduleRepo {
	return &ScheduleRepo{DB: db, rebind: func(q string) string { return q }, now: time.Now}
}

// All returns every schedule keyed by target ref.
func (r *ScheduleRepo) All(ctx context.Context) (map[string]models.Schedule, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT target_ref, record FROM schedules ORDER BY target_ref`)
	if err != nil {
		return nil, ioErr("list schedules", err)
	}
	defer rows.Close()

	out := make(map[string]models.Schedule)
	for rows.Next() {
		var ref, record string
		if err := rows.Scan(&ref, &record); err != nil {
			return nil, ioErr("scan schedule", err)
		}
		sch, err := decodeRecord(ref, []byte(record))
		if err != nil {
			return nil, err
		}
		out[ref] = sch
	}
	if err := rows.Err(); err != nil {
		return nil, ioErr("list schedules", err)
	}
	return out, nil
}

// Get returns one schedule, or nil, nil when absent.
func (r *ScheduleRepo) Get(ctx context.Context, ref string) (*models.Schedule, error) {
	var record string
	err := r.DB.QueryRowContext(ctx, r.rebind(`SELECT record FROM schedules WHERE target_ref = ?`), ref).Scan(&record)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, ioErr("get schedule", err)
	}
	sch, err := decodeRecord(ref, []byte(record))
	if err != nil {
		return nil, err
	}
	return &sch, nil
}

// KindOf selects only the kind column.
func (r *ScheduleRepo) KindOf(ctx context.Context, ref string) (models.Kind, error) {
	var kind string
	err := r.DB.QueryRowContext(ctx, r.rebind(`SELECT kind FROM schedules WHERE target_ref = ?`), ref).Scan(&kind)
	if err == sql.ErrNoRows {
		return models.KindNone, nil
	}
	if err != nil {
		return models.KindNone, ioErr("schedule kind", err)
	}
	return models.Kind(kind), nil
}

// Put validates and upserts s.
func (r *ScheduleRepo) Put(ctx context.Context, s models.Schedule) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = r.now().UTC()
	}
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode schedule %s: %w", s.TargetRef, err)
	}
	query := `
		INSERT INTO schedules (target_ref, kind, record)
		VALUES (?, ?, ?)
		ON CONFLICT (target_ref) DO UPDATE
		SET kind = excluded.kind, record = excluded.record, updated_at = CURRENT_TIMESTAMP
	`
	if _, err := r.DB.ExecContext(ctx, r.rebind(query), s.TargetRef, string(s.Kind()), string(b)); err != nil {
		return ioErr("put schedule", err)
	}
	return nil
}

// Delete removes the schedule for ref; deleting an absent ref is not an error.
func (r *ScheduleRepo) Delete(ctx context.Context, ref string) error {
	if _, err := r.DB.ExecContext(ctx, r.rebind(`DELETE FROM schedules WHERE target_ref = ?`), ref); err != nil {
		return ioErr("delete schedule", err)
	}
	return nil
}

// Close closes the underlying database.
func (r *ScheduleRepo) Close() error {
	return r.DB.Close()
}

// dollarPlaceholders rewrites ? to $1, $2, ... outside quoted literals.
func dollarPlaceholders(q string) string {
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	quoted := false
	for i := 0; i < len(q); i++ {
		c := q[i]
		switch {
		case c == '\'':
			quoted = !quoted
			b.WriteByte(c)
		case c == '?' && !quoted:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
