package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"timetrigger/internal/task"
	"timetrigger/internal/vcs"
	logx "timetrigger/pkg/logx"
)

// fileStore rewrites task files in place with executed=true.
type fileStore struct {
	log    logx.Logger
	indent string
	layout string
}

func newFileStore(cfg Config, log logx.Logger) *fileStore {
	indent := cfg.Indent
	if indent == "" {
		indent = "    "
	}
	layout := cfg.TimeLayout
	if layout == "" {
		layout = "2006-01-02 15:04:05"
	}
	return &fileStore{log: log, indent: indent, layout: layout}
}

func (s *fileStore) IsDone(ctx context.Context, id string) (bool, error) { return false, nil }

func (s *fileStore) MarkDone(ctx context.Context, e task.Entry, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPersist, e.ID, err)
	}
	loc := e.Location
	if loc == nil {
		loc = time.UTC
	}
	out, err := task.MarkExecuted(e.Raw, at.In(loc).Format(s.layout), s.indent)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPersist, e.ID, err)
	}
	if err := writeFileAtomic(e.Path, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPersist, e.ID, err)
	}
	s.log.Debug("task file rewritten", logx.String("task", e.ID), logx.String("path", e.Path))
	return nil
}

func (s *fileStore) Commit(ctx context.Context, fired []task.Entry) error { return nil }

func (s *fileStore) Close() error { return nil }

// writeFileAtomic replaces path via a temp file in the same directory,
// keeping the original file mode.
func writeFileAtomic(path string, data []byte) error {
	mode := os.FileMode(0o644)
	if st, err := os.Stat(path); err == nil {
		mode = st.Mode().Perm()
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}

// gitStore rewrites like fileStore and commits the rewritten files.
type gitStore struct {
	*fileStore
	repo   *vcs.Repo
	prefix string
}

func newGitStore(cfg Config, repo *vcs.Repo, log logx.Logger) *gitStore {
	prefix := strings.TrimSpace(cfg.CommitPrefix)
	if prefix == "" {
		prefix = "chore(tasks): mark executed"
	}
	return &gitStore{fileStore: newFileStore(cfg, log), repo: repo, prefix: prefix}
}

func (s *gitStore) Commit(ctx context.Context, fired []task.Entry) error {
	if len(fired) == 0 {
		return nil
	}
	msg, paths := CommitMessage(s.prefix, fired)
	if err := s.repo.CommitFiles(ctx, msg, paths...); err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	s.log.Info("committed task state", logx.String("message", msg), logx.Int("files", len(paths)))
	return nil
}

// CommitMessage builds a deterministic message and path list, ordered by file name.
func CommitMessage(prefix string, fired []task.Entry) (string, []string) {
	sorted := append([]task.Entry(nil), fired...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	ids := make([]string, 0, len(sorted))
	paths := make([]string, 0, len(sorted))
	for _, e := range sorted {
		ids = append(ids, e.ID)
		paths = append(paths, e.Path)
	}
	return prefix + " " + strings.Join(ids, ", "), paths
}
