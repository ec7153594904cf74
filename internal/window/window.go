// Package window decides whether a task is due.
//
// A task is due once the current time is at or after its trigger time and it
// has not executed yet. There is no upper bound: a run that was missed (CI
// outage, skipped cron tick) still fires the task on the next pass, however
// late that is.
package window

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// State is the outcome of evaluating one descriptor.
type State int

const (
	NotYet State = iota
	Due
	Executed
)

func (s State) String() string {
	switch s {
	case NotYet:
		return "pending"
	case Due:
		return "due"
	case Executed:
		return "executed"
	default:
		return "unknown"
	}
}

// Decision carries the evaluated state plus timing detail for logs.
type Decision struct {
	State   State
	Trigger time.Time
	Now     time.Time
	// Lateness is Now - Trigger. Negative while the task is pending.
	Lateness time.Duration
}

// Evaluator compares trigger times against a clock in a fixed location.
type Evaluator struct {
	Location *time.Location
	Now      func() time.Time
}

// New returns an Evaluator for loc using the wall clock.
func New(loc *time.Location) *Evaluator {
	if loc == nil {
		loc = time.UTC
	}
	return &Evaluator{Location: loc, Now: time.Now}
}

// Clock returns the current time in the evaluator's location.
func (e *Evaluator) Clock() time.Time {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	return now().In(e.loc())
}

func (e *Evaluator) loc() *time.Location {
	if e.Location == nil {
		return time.UTC
	}
	return e.Location
}

// Evaluate decides the state of a task with the given trigger time.
func (e *Evaluator) Evaluate(trigger time.Time, executed bool) Decision {
	now := e.Clock()
	d := Decision{Trigger: trigger, Now: now, Lateness: now.Sub(trigger)}
	switch {
	case executed:
		d.State = Executed
	case !now.Before(trigger):
		d.State = Due
	default:
		d.State = NotYet
	}
	return d
}

// ParseTrigger parses a wall-clock trigger time in loc using layout.
func ParseTrigger(layout, raw string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(layout, strings.TrimSpace(raw), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("trigger_time %q: %w", raw, err)
	}
	return t, nil
}

var reOffset = regexp.MustCompile(`^(?i:utc|gmt)?\s*([+-])(\d{1,2})(?::?(\d{2}))?$`)

// LoadZone resolves an IANA zone name ("Asia/Shanghai") or a fixed offset
// ("+08:00", "-0530", "UTC+8"). Empty and "UTC" both mean UTC.
func LoadZone(name string) (*time.Location, error) {
	s := strings.TrimSpace(name)
	if s == "" || strings.EqualFold(s, "utc") || strings.EqualFold(s, "z") {
		return time.UTC, nil
	}
	if m := reOffset.FindStringSubmatch(s); m != nil {
		hh, _ := strconv.Atoi(m[2])
		mm := 0
		if m[3] != "" {
			mm, _ = strconv.Atoi(m[3])
		}
		if hh > 14 || mm > 59 {
			return nil, fmt.Errorf("timezone %q: offset out of range", name)
		}
		secs := hh*3600 + mm*60
		if m[1] == "-" {
			secs = -secs
		}
		return time.FixedZone(offsetName(m[1], hh, mm), secs), nil
	}
	loc, err := time.LoadLocation(s)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", name, err)
	}
	return loc, nil
}

func offsetName(sign string, hh, mm int) string {
	return fmt.Sprintf("UTC%s%02d:%02d", sign, hh, mm)
}
