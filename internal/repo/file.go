package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/crucial707/rule-scheduler/internal/models"
)

const (
	lockWait  = 10 * time.Second
	lockRetry = 25 * time.Millisecond
)

// FileStore keeps all schedules in one JSON object keyed by target ref.
// The file is re-read on every call so edits by another tool are picked up.
// An advisory lock on "<path>.lock" serializes the CLI, the API server and
// the monitor when they share a file; mu does the same within a process.
type FileStore struct {
	path string
	mu   sync.Mutex
	lock *flock.Flock
	now  func() time.Time
}

// NewFileStore prepares a store at path. A missing file is an empty store.
func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("file store path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, ioErr("mkdir", err)
		}
	}
	return &FileStore{path: path, lock: flock.New(path + ".lock"), now: time.Now}, nil
}

// acquire takes mu and the file lock, shared unless exclusive is set.
func (s *FileStore) acquire(ctx context.Context, exclusive bool) (func(), error) {
	s.mu.Lock()
	lockCtx, cancel := context.WithTimeout(ctx, lockWait)
	defer cancel()
	try := s.lock.TryRLockContext
	if exclusive {
		try = s.lock.TryLockContext
	}
	ok, err := try(lockCtx, lockRetry)
	if err == nil && !ok {
		err = errors.New("lock held by another process")
	}
	if err != nil {
		s.mu.Unlock()
		return nil, ioErr("lock "+s.lock.Path(), err)
	}
	return func() {
		_ = s.lock.Unlock()
		s.mu.Unlock()
	}, nil
}

func (s *FileStore) All(ctx context.Context) (map[string]models.Schedule, error) {
	release, err := s.acquire(ctx, false)
	if err != nil {
		return nil, err
	}
	raw, err := s.load()
	release()
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.Schedule, len(raw))
	for ref, b := range raw {
		sch, err := decodeRecord(ref, b)
		if err != nil {
			return nil, err
		}
		out[ref] = sch
	}
	return out, nil
}

func (s *FileStore) Get(ctx context.Context, ref string) (*models.Schedule, error) {
	release, err := s.acquire(ctx, false)
	if err != nil {
		return nil, err
	}
	raw, err := s.load()
	release()
	if err != nil {
		return nil, err
	}
	b, ok := raw[ref]
	if !ok {
		return nil, nil
	}
	sch, err := decodeRecord(ref, b)
	if err != nil {
		return nil, err
	}
	return &sch, nil
}

func (s *FileStore) KindOf(ctx context.Context, ref string) (models.Kind, error) {
	release, err := s.acquire(ctx, false)
	if err != nil {
		return models.KindNone, err
	}
	raw, err := s.load()
	release()
	if err != nil {
		return models.KindNone, err
	}
	b, ok := raw[ref]
	if !ok {
		return models.KindNone, nil
	}
	k, err := models.KindOnly(b)
	if err != nil {
		return models.KindNone, ioErr("record "+ref, err)
	}
	return k, nil
}

func (s *FileStore) Put(ctx context.Context, sch models.Schedule) error {
	if err := sch.Validate(); err != nil {
		return err
	}
	if sch.CreatedAt.IsZero() {
		sch.CreatedAt = s.now().UTC()
	}
	b, err := json.Marshal(sch)
	if err != nil {
		return fmt.Errorf("encode schedule %s: %w", sch.TargetRef, err)
	}

	release, err := s.acquire(ctx, true)
	if err != nil {
		return err
	}
	defer release()
	raw, err := s.load()
	if err != nil {
		return err
	}
	raw[sch.TargetRef] = b
	return s.write(raw)
}

func (s *FileStore) Delete(ctx context.Context, ref string) error {
	release, err := s.acquire(ctx, true)
	if err != nil {
		return err
	}
	defer release()
	raw, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := raw[ref]; !ok {
		return nil
	}
	delete(raw, ref)
	return s.write(raw)
}

func (s *FileStore) Close() error { return nil }

// load must be called with the store acquired.
func (s *FileStore) load() (map[string]json.RawMessage, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, ioErr("read "+s.path, err)
	}
	raw := map[string]json.RawMessage{}
	if len(strings.TrimSpace(string(b))) == 0 {
		return raw, nil
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, ioErr("decode "+s.path, err)
	}
	return raw, nil
}

// write replaces the file atomically: temp file in the same directory,
// fsync, rename. Must be called with the store acquired exclusively.
func (s *FileStore) write(raw map[string]json.RawMessage) error {
	b, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return ioErr("encode", err)
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return ioErr("create temp", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(append(b, '\n')); err != nil {
		_ = tmp.Close()
		return ioErr("write temp", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return ioErr("sync temp", err)
	}
	if err := tmp.Close(); err != nil {
		return ioErr("close temp", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return ioErr("chmod temp", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return ioErr("rename", err)
	}
	return nil
}

func decodeRecord(ref string, b []byte) (models.Schedule, error) {
	var sch models.Schedule
	if err := json.Unmarshal(b, &sch); err != nil {
		return models.Schedule{}, ioErr("record "+ref, err)
	}
	sch.TargetRef = ref
	return sch, nil
}
