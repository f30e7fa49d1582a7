package repo

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/crucial707/rule-scheduler/internal/models"
)

// FileAudit appends audit entries as JSON Lines. IDs are 1-based line numbers.
type FileAudit struct {
	path string
	mu   sync.Mutex
}

func NewFileAudit(path string) *FileAudit {
	return &FileAudit{path: path}
}

func (a *FileAudit) Append(ctx context.Context, e models.AuditEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	e.ID = 0
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return ioErr("open audit", err)
	}
	if _, err := f.Write(append(b, '\n')); err != nil {
		_ = f.Close()
		return ioErr("append audit", err)
	}
	return f.Close()
}

func (a *FileAudit) List(ctx context.Context, limit, offset int) ([]models.AuditEntry, error) {
	a.mu.Lock()
	b, err := os.ReadFile(a.path)
	a.mu.Unlock()
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, ioErr("read audit", err)
	}

	var all []models.AuditEntry
	sc := bufio.NewScanner(bytes.NewReader(b))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		var e models.AuditEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			// a torn final line from a crash is skipped
			continue
		}
		e.ID = line
		all = append(all, e)
	}
	if err := sc.Err(); err != nil {
		return nil, ioErr("scan audit", err)
	}

	if offset < 0 {
		offset = 0
	}
	out := make([]models.AuditEntry, 0, limit)
	for i := len(all) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}
