package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"timetrigger/internal/task"
)

// Memory is an in-process Store. Tests use FailMarkDone/FailCommit to
// exercise persistence failures.
type Memory struct {
	mu      sync.Mutex
	done    map[string]time.Time
	commits [][]string

	FailMarkDone error
	FailCommit   error
}

func NewMemory() *Memory { return &Memory{done: map[string]time.Time{}} }

func (m *Memory) IsDone(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.done[id]
	return ok, nil
}

func (m *Memory) MarkDone(ctx context.Context, e task.Entry, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailMarkDone != nil {
		return fmt.Errorf("%w: %s: %w", ErrPersist, e.ID, m.FailMarkDone)
	}
	if _, ok := m.done[e.ID]; !ok {
		m.done[e.ID] = at
	}
	return nil
}

func (m *Memory) Commit(ctx context.Context, fired []task.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCommit != nil {
		return fmt.Errorf("%w: commit: %w", ErrPersist, m.FailCommit)
	}
	ids := make([]string, 0, len(fired))
	for _, e := range fired {
		ids = append(ids, e.ID)
	}
	m.commits = append(m.commits, ids)
	return nil
}

func (m *Memory) Close() error { return nil }

// Done returns the marked task IDs and their times.
func (m *Memory) Done() map[string]time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]time.Time, len(m.done))
	for k, v := range m.done {
		out[k] = v
	}
	return out
}

// Commits returns the task IDs of every Commit call, in call order.
func (m *Memory) Commits() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.commits...)
}
