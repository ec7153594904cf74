package storage

import (
	"context"
	"errors"
	"time"

	"timetrigger/internal/task"
)

// ErrPersist wraps every MarkDone/Commit failure. A persist failure after a
// webhook already fired means the next run may fire the task again, so
// callers treat it as fatal.
var ErrPersist = errors.New("persist task state")

// Store is the persistence port used by the runner.
type Store interface {
	// IsDone reports whether id was marked done by this store outside the
	// task file (sqlite/redis). File-backed drivers always return false; the
	// descriptor's executed flag is their source of truth.
	IsDone(ctx context.Context, id string) (bool, error)
	// MarkDone durably records that e fired at at.
	MarkDone(ctx context.Context, e task.Entry, at time.Time) error
	// Commit finalizes the run. It is only called when at least one task fired.
	Commit(ctx context.Context, fired []task.Entry) error
	Close() error
}

// Config configures storage.
//
// Driver values: "git", "file", "sqlite", "redis". Tests use NewMemory directly.
type Config struct {
	Driver      string
	Path        string        // sqlite database file
	BusyTimeout time.Duration // sqlite only; 0 means default
	Indent      string        // JSON indent for rewritten task files
	TimeLayout  string        // executed_at layout

	Redis RedisConfig

	// CommitPrefix starts the git commit message.
	CommitPrefix string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}
