package vcs

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

func initRepo(t *testing.T) (*Repo, string) {
	t.Helper()
	dir := t.TempDir()
	r := &Repo{Dir: dir, AuthorName: "tt", AuthorEmail: "tt@example.com", Timeout: 10 * time.Second}
	if _, err := r.run(context.Background(), "init", "-q"); err != nil {
		t.Fatalf("git init: %v", err)
	}
	return r, dir
}

func TestCommitFilesOnlyCommitsGivenPaths(t *testing.T) {
	requireGit(t)
	r, dir := initRepo(t)
	ctx := context.Background()

	a := filepath.Join(dir, "01.json")
	b := filepath.Join(dir, "02.json")
	for _, p := range []string{a, b} {
		if err := os.WriteFile(p, []byte(`{}`), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if err := r.CommitFiles(ctx, "chore(tasks): mark executed 01", a); err != nil {
		t.Fatalf("CommitFiles: %v", err)
	}
	out, err := r.run(ctx, "log", "--format=%s", "--name-only", "-1")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "chore(tasks): mark executed 01") || !strings.Contains(out, "01.json") {
		t.Fatalf("unexpected log: %q", out)
	}
	if strings.Contains(out, "02.json") {
		t.Fatalf("02.json should not be committed: %q", out)
	}
	if head, err := r.Head(ctx); err != nil || len(head) < 7 {
		t.Fatalf("Head = %q, %v", head, err)
	}
}

func TestCommitFilesNoPathsIsNoop(t *testing.T) {
	r := &Repo{Dir: t.TempDir(), Binary: "definitely-not-git"}
	if err := r.CommitFiles(context.Background(), "msg"); err != nil {
		t.Fatalf("CommitFiles with no paths: %v", err)
	}
}

func TestMissingBinary(t *testing.T) {
	r := &Repo{Dir: t.TempDir(), Binary: "definitely-not-git"}
	err := r.CommitFiles(context.Background(), "msg", "x")
	if !errors.Is(err, ErrGitNotFound) {
		t.Fatalf("err = %v, want ErrGitNotFound", err)
	}
}

func TestCommitOutsideRepoFails(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	p := filepath.Join(dir, "x.json")
	if err := os.WriteFile(p, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GIT_CEILING_DIRECTORIES", filepath.Dir(dir))
	r := &Repo{Dir: dir}
	if err := r.CommitFiles(context.Background(), "msg", p); err == nil {
		t.Fatal("expected error outside a repository")
	}
}
