package window

import (
	"testing"
	"time"
)

const layout = "2006-01-02 15:04:05"

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestEvaluateBoundaries(t *testing.T) {
	loc := time.FixedZone("UTC+08:00", 8*3600)
	trigger := time.Date(2024, 1, 1, 0, 0, 0, 0, loc)

	tests := []struct {
		name     string
		now      time.Time
		executed bool
		want     State
	}{
		{name: "one second early", now: trigger.Add(-time.Second), want: NotYet},
		{name: "exactly on time", now: trigger, want: Due},
		{name: "slightly late", now: trigger.Add(19 * time.Minute), want: Due},
		{name: "months late still due", now: trigger.AddDate(0, 5, 0), want: Due},
		{name: "executed stays executed", now: trigger.Add(time.Hour), executed: true, want: Executed},
		{name: "executed before trigger", now: trigger.Add(-time.Hour), executed: true, want: Executed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Evaluator{Location: loc, Now: fixedClock(tt.now)}
			got := e.Evaluate(trigger, tt.executed)
			if got.State != tt.want {
				t.Fatalf("State = %v, want %v", got.State, tt.want)
			}
			if got.Lateness != tt.now.Sub(trigger) {
				t.Fatalf("Lateness = %v", got.Lateness)
			}
		})
	}
}

func TestEvaluateIndependentOfHostZone(t *testing.T) {
	loc, err := LoadZone("+08:00")
	if err != nil {
		t.Fatal(err)
	}
	trigger, err := ParseTrigger(layout, "2024-01-01 08:00:00", loc)
	if err != nil {
		t.Fatal(err)
	}
	// 00:00 UTC is 08:00 at +08:00.
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	e := &Evaluator{Location: loc, Now: fixedClock(now)}
	if got := e.Evaluate(trigger, false).State; got != Due {
		t.Fatalf("State = %v, want due", got)
	}
	e.Now = fixedClock(now.Add(-time.Second))
	if got := e.Evaluate(trigger, false).State; got != NotYet {
		t.Fatalf("State = %v, want pending", got)
	}
}

func TestParseTriggerInvalid(t *testing.T) {
	for _, raw := range []string{"", "2024-13-01 00:00:00", "2024-01-01T00:00:00", "tomorrow"} {
		if _, err := ParseTrigger(layout, raw, time.UTC); err == nil {
			t.Fatalf("ParseTrigger(%q) expected error", raw)
		}
	}
}

func TestLoadZone(t *testing.T) {
	tests := []struct {
		in     string
		offset int
	}{
		{in: "", offset: 0},
		{in: "UTC", offset: 0},
		{in: "+08:00", offset: 8 * 3600},
		{in: "UTC+8", offset: 8 * 3600},
		{in: "-0530", offset: -(5*3600 + 30*60)},
		{in: "gmt-3", offset: -3 * 3600},
	}
	ref := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for _, tt := range tests {
		loc, err := LoadZone(tt.in)
		if err != nil {
			t.Fatalf("LoadZone(%q): %v", tt.in, err)
		}
		if _, off := ref.In(loc).Zone(); off != tt.offset {
			t.Fatalf("LoadZone(%q) offset = %d, want %d", tt.in, off, tt.offset)
		}
	}

	if _, err := LoadZone("+25:00"); err == nil {
		t.Fatal("expected out of range error")
	}
	if _, err := LoadZone("Mars/Olympus"); err == nil {
		t.Fatal("expected unknown zone error")
	}
}
