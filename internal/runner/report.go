package runner

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"timetrigger/internal/window"
)

var (
	// ErrFatal marks a run whose outcome could not be durably recorded.
	ErrFatal = errors.New("run failed")
	// ErrIncomplete is returned in strict mode when any task was invalid or failed.
	ErrIncomplete = errors.New("run completed with task errors")
)

type Outcome string

const (
	OutcomeFired         Outcome = "fired"
	OutcomeFailed        Outcome = "failed"
	OutcomeInvalid       Outcome = "invalid"
	OutcomePending       Outcome = "pending"
	OutcomeSkipped       Outcome = "skipped"
	OutcomeWouldFire     Outcome = "would_fire"
	OutcomePersistFailed Outcome = "persist_failed"
	OutcomeNotRun        Outcome = "not_run"
)

// TaskResult is the outcome for one task file.
type TaskResult struct {
	ID       string
	Path     string
	Outcome  Outcome
	Trigger  time.Time
	Lateness time.Duration
	Status   int
	Err      error
}

// Report summarizes one run.
type Report struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Now      time.Time
	Results  []TaskResult
	// Fatal is set when the run could not complete safely.
	Fatal error
}

func (r *Report) add(res TaskResult) { r.Results = append(r.Results, res) }

// IDs returns task IDs with the given outcome, in processing order.
func (r *Report) IDs(o Outcome) []string {
	var out []string
	for _, res := range r.Results {
		if res.Outcome == o {
			out = append(out, res.ID)
		}
	}
	return out
}

// Count returns the number of tasks with the given outcome.
func (r *Report) Count(o Outcome) int { return len(r.IDs(o)) }

// Eventful reports whether anything happened that an operator should see.
func (r *Report) Eventful() bool {
	return r.Fatal != nil || r.Count(OutcomeFired) > 0 || r.Count(OutcomeFailed) > 0 ||
		r.Count(OutcomePersistFailed) > 0 || r.Count(OutcomeInvalid) > 0
}

// Err maps the report to the process result. Configuration and invocation
// errors only fail the run in strict mode.
func (r *Report) Err(strict bool) error {
	if r.Fatal != nil {
		return fmt.Errorf("%w: %w", ErrFatal, r.Fatal)
	}
	if strict && (r.Count(OutcomeFailed) > 0 || r.Count(OutcomeInvalid) > 0) {
		return fmt.Errorf("%w: %d failed, %d invalid", ErrIncomplete, r.Count(OutcomeFailed), r.Count(OutcomeInvalid))
	}
	return nil
}

// Summary renders a short human-readable report.
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "timetrigger run %s at %s: fired %d, failed %d, invalid %d, pending %d, skipped %d",
		shortID(r.RunID), r.Now.Format("2006-01-02 15:04:05 -07:00"),
		r.Count(OutcomeFired), r.Count(OutcomeFailed)+r.Count(OutcomePersistFailed),
		r.Count(OutcomeInvalid), r.Count(OutcomePending), r.Count(OutcomeSkipped))
	if n := r.Count(OutcomeWouldFire); n > 0 {
		fmt.Fprintf(&b, ", would fire %d (dry run)", n)
	}
	for _, res := range r.Results {
		switch res.Outcome {
		case OutcomeFired:
			fmt.Fprintf(&b, "\n  fired   %s (HTTP %d, %s late)", res.ID, res.Status, lateness(res.Lateness))
		case OutcomeWouldFire:
			fmt.Fprintf(&b, "\n  due     %s (%s late)", res.ID, lateness(res.Lateness))
		case OutcomeFailed, OutcomePersistFailed, OutcomeInvalid:
			fmt.Fprintf(&b, "\n  %-7s %s: %v", res.Outcome, res.ID, res.Err)
		}
	}
	if r.Fatal != nil {
		fmt.Fprintf(&b, "\n  FATAL: %v", r.Fatal)
	}
	return b.String()
}

func lateness(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return d.Truncate(time.Second).String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func stateOutcome(s window.State) Outcome {
	switch s {
	case window.Executed:
		return OutcomeSkipped
	case window.NotYet:
		return OutcomePending
	default:
		return OutcomeFired
	}
}
