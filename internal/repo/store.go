package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/crucial707/rule-scheduler/internal/config"
	"github.com/crucial707/rule-scheduler/internal/db"
	"github.com/crucial707/rule-scheduler/internal/models"
)

// ErrStoreIO marks a schedule store that could not be read or written.
var ErrStoreIO = errors.New("schedule store i/o")

// Store persists at most one schedule per target ref.
type Store interface {
	// All returns every record keyed by target ref.
	All(ctx context.Context) (map[string]models.Schedule, error)
	// Get returns nil, nil when no record exists for ref.
	Get(ctx context.Context, ref string) (*models.Schedule, error)
	// Put validates s and upserts it by TargetRef.
	Put(ctx context.Context, s models.Schedule) error
	Delete(ctx context.Context, ref string) error
	// KindOf reports models.KindNone when ref has no record.
	KindOf(ctx context.Context, ref string) (models.Kind, error)
	Close() error
}

// AuditLog records operator actions and reconciliation outcomes.
type AuditLog interface {
	Append(ctx context.Context, e models.AuditEntry) error
	// List returns entries newest first.
	List(ctx context.Context, limit, offset int) ([]models.AuditEntry, error)
}

// Open returns the store and audit log for cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, AuditLog, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "file":
		st, err := NewFileStore(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return st, NewFileAudit(auditPath(cfg.Path)), nil
	case "postgres":
		conn, err := db.OpenPostgres(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrStoreIO, err)
		}
		return NewPostgresStore(conn), NewPostgresAudit(conn), nil
	case "sqlite":
		conn, err := db.OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrStoreIO, err)
		}
		return NewSQLiteStore(conn), NewSQLiteAudit(conn), nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// auditPath derives "<prefix>.audit.jsonl" from the store file path.
func auditPath(storePath string) string {
	return strings.TrimSuffix(storePath, ".json") + ".audit.jsonl"
}

func ioErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreIO, op, err)
}
