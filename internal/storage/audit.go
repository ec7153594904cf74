package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// AuditEntry records one fire attempt. Keep it compact and schema-stable.
type AuditEntry struct {
	At      time.Time `json:"at"`
	RunID   string    `json:"run_id"`
	Task    string    `json:"task"`
	Outcome string    `json:"outcome"` // fired | failed | persist_failed
	Method  string    `json:"method,omitempty"`
	Status  int       `json:"status,omitempty"`
	Error   string    `json:"error,omitempty"`
	TookMS  int64     `json:"took_ms,omitempty"`
}

// Journal appends AuditEntry values as JSON Lines.
// A nil *Journal accepts and drops everything.
type Journal struct {
	mu sync.Mutex
	f  *os.File
}

// OpenJournal opens (or creates) the journal at path. Empty path disables it.
func OpenJournal(path string) (*Journal, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &Journal{f: f}, nil
}

// Append writes e as one JSON line. It does nothing once ctx is done.
func (j *Journal) Append(ctx context.Context, e AuditEntry) error {
	if j == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.f == nil {
		return errors.New("audit journal closed")
	}
	return json.NewEncoder(j.f).Encode(e)
}

func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.f == nil {
		return nil
	}
	err := j.f.Close()
	j.f = nil
	return err
}
