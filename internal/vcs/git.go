// Package vcs commits rewritten task files with the git CLI.
package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

var ErrGitNotFound = errors.New("git executable not found")

// Repo runs git commands inside Dir.
type Repo struct {
	Dir         string
	Remote      string
	Branch      string
	Push        bool
	AuthorName  string
	AuthorEmail string
	Timeout     time.Duration

	// Binary defaults to "git" on PATH.
	Binary string
}

// CommitFiles stages paths, commits them with message and pushes when enabled.
// Only the given paths are included in the commit.
func (r *Repo) CommitFiles(ctx context.Context, message string, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	if _, err := r.run(ctx, append([]string{"add", "--"}, paths...)...); err != nil {
		return err
	}
	args := append([]string{"commit", "--no-verify", "-m", message, "--"}, paths...)
	if _, err := r.run(ctx, args...); err != nil {
		return err
	}
	if !r.Push {
		return nil
	}
	return r.PushHead(ctx)
}

// PushHead pushes HEAD to the configured remote/branch.
func (r *Repo) PushHead(ctx context.Context) error {
	remote := r.Remote
	if remote == "" {
		remote = "origin"
	}
	ref := "HEAD"
	if r.Branch != "" {
		ref = "HEAD:" + r.Branch
	}
	_, err := r.run(ctx, "push", remote, ref)
	return err
}

// Head returns the current commit hash.
func (r *Repo) Head(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "rev-parse", "HEAD")
	return strings.TrimSpace(out), err
}

func (r *Repo) run(ctx context.Context, args ...string) (string, error) {
	bin := r.Binary
	if bin == "" {
		bin = "git"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return "", fmt.Errorf("%w: %v", ErrGitNotFound, err)
	}
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	full := make([]string, 0, len(args)+4)
	if r.AuthorName != "" {
		full = append(full, "-c", "user.name="+r.AuthorName)
	}
	if r.AuthorEmail != "" {
		full = append(full, "-c", "user.email="+r.AuthorEmail)
	}
	full = append(full, args...)

	cmd := exec.CommandContext(ctx, bin, full...)
	cmd.Dir = r.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		return stdout.String(), fmt.Errorf("git %s: %w: %s", args[0], err, msg)
	}
	return stdout.String(), nil
}
