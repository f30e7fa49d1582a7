package testutil

import (
	"context"
	"sync"

	"github.com/crucial707/rule-scheduler/internal/models"
)

// MemStore is an in-memory schedule store with error injection.
type MemStore struct {
	mu       sync.Mutex
	records  map[string]models.Schedule
	allErr   error
	putErr   error
	delErr   error
	Audit    []models.AuditEntry
	auditErr error
}

func NewMemStore(records ...models.Schedule) *MemStore {
	m := &MemStore{records: make(map[string]models.Schedule)}
	for _, r := range records {
		m.records[r.TargetRef] = r
	}
	return m
}

func (m *MemStore) SetAllError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allErr = err
}

func (m *MemStore) SetPutError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putErr = err
}

func (m *MemStore) SetDeleteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delErr = err
}

func (m *MemStore) SetAuditError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auditErr = err
}

func (m *MemStore) All(ctx context.Context) (map[string]models.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.allErr != nil {
		return nil, m.allErr
	}
	out := make(map[string]models.Schedule, len(m.records))
	for k, v := range m.records {
		out[k] = v
	}
	return out, nil
}

func (m *MemStore) Get(ctx context.Context, ref string) (*models.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.records[ref]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MemStore) Put(ctx context.Context, s models.Schedule) error {
	if err := s.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.records[s.TargetRef] = s
	return nil
}

func (m *MemStore) Delete(ctx context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.delErr != nil {
		return m.delErr
	}
	delete(m.records, ref)
	return nil
}

func (m *MemStore) KindOf(ctx context.Context, ref string) (models.Kind, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.records[ref]
	if !ok {
		return models.KindNone, nil
	}
	return s.Kind(), nil
}

func (m *MemStore) Close() error { return nil }

// Has reports whether ref has a record.
func (m *MemStore) Has(ref string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[ref]
	return ok
}

// Append implements repo.AuditLog.
func (m *MemStore) Append(ctx context.Context, e models.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.auditErr != nil {
		return m.auditErr
	}
	e.ID = len(m.Audit) + 1
	m.Audit = append(m.Audit, e)
	return nil
}

// List implements repo.AuditLog, newest first.
func (m *MemStore) List(ctx context.Context, limit, offset int) ([]models.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AuditEntry
	for i := len(m.Audit) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.Audit[i])
	}
	return out, nil
}

// AuditEntries returns a copy of everything appended so far.
func (m *MemStore) AuditEntries() []models.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.AuditEntry(nil), m.Audit...)
}
