// Package storage persists the "executed" state of tasks.
//
// The runner talks to a Store: IsDone before evaluating, MarkDone after a
// successful webhook, Commit once per run with everything that fired.
// Drivers:
//   - "git":    rewrite the task file, then commit it (default)
//   - "file":   rewrite the task file only; the caller commits
//   - "sqlite": done-markers in a SQLite table; task files untouched
//   - "redis":  done-markers as Redis keys; task files untouched
//
// Memory is an in-process Store for tests; it is not selectable by name
// because its markers die with the process.
package storage
