package daemon

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	logx "timetrigger/pkg/logx"
)

func TestParseSchedule(t *testing.T) {
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		in   string
		next time.Time
	}{
		{"*/20 * * * *", base.Add(20 * time.Minute)},
		{"30 0 * * * *", base.Add(30 * time.Second)},
		{"@hourly", base.Add(time.Hour)},
		{"@every 15m", base.Add(15 * time.Minute)},
		{"15m", base.Add(15 * time.Minute)},
		{"00:20", base.Add(20 * time.Minute)},
		{"every:1h30m", base.Add(90 * time.Minute)},
		{"cron:0 10 * * *", base.Add(time.Hour)},
	}
	for _, tc := range cases {
		s, err := ParseSchedule(tc.in)
		if err != nil {
			t.Fatalf("%q: %v", tc.in, err)
		}
		if got := s.Next(base); !got.Equal(tc.next) {
			t.Fatalf("%q: next = %v, want %v", tc.in, got, tc.next)
		}
	}

	for _, bad := range []string{"", "soon", "00:75", "100ms", "cron:", "* * *"} {
		if _, err := ParseSchedule(bad); err == nil {
			t.Fatalf("%q: expected error", bad)
		}
	}
}

type notifyRecorder struct {
	mu     sync.Mutex
	states []string
}

func (n *notifyRecorder) notify(state string) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.states = append(n.states, state)
	return false, nil
}

func (n *notifyRecorder) Has(state string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, s := range n.states {
		if s == state {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRunPassesAtStartupAndStops(t *testing.T) {
	var calls atomic.Int32
	d, err := New(Config{Schedule: "@every 1h"}, func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	rec := &notifyRecorder{}
	d.Notify = rec.notify

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- d.Run(ctx) }()

	waitFor(t, "startup pass", func() bool { return calls.Load() == 1 })
	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	if !rec.Has("READY=1") || !rec.Has("STOPPING=1") {
		t.Fatalf("states = %v", rec.states)
	}
}

func TestWatchTriggersPass(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	d, err := New(Config{Schedule: "@every 1h", Watch: true, Dir: dir, Debounce: 20 * time.Millisecond},
		func(ctx context.Context) error {
			calls.Add(1)
			return nil
		}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	d.Notify = nil

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- d.Run(ctx) }()

	waitFor(t, "startup pass", func() bool { return calls.Load() == 1 })
	waitFor(t, "quiet window", func() bool { return !d.selfWritten(time.Now()) })

	// Ignored: not a task file.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "01.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "watch pass", func() bool { return calls.Load() == 2 })

	cancel()
	if err := <-errc; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestWatchIgnoresOwnWrites(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	d, err := New(Config{Schedule: "@every 1h", Watch: true, Dir: dir, Debounce: 200 * time.Millisecond},
		func(ctx context.Context) error {
			calls.Add(1)
			// A pass marks its task executed by rewriting the file.
			return os.WriteFile(filepath.Join(dir, "01.json"), []byte(`{"executed":true}`), 0o644)
		}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	d.Notify = nil

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- d.Run(ctx) }()

	waitFor(t, "startup pass", func() bool { return calls.Load() == 1 })
	time.Sleep(600 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Fatalf("calls = %d after own write, want 1", n)
	}

	if err := os.WriteFile(filepath.Join(dir, "02.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "watch pass", func() bool { return calls.Load() == 2 })
	time.Sleep(600 * time.Millisecond)
	if n := calls.Load(); n != 2 {
		t.Fatalf("calls = %d after second own write, want 2", n)
	}

	cancel()
	if err := <-errc; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestSelfWrittenWindow(t *testing.T) {
	d, err := New(Config{Schedule: "@every 1h", Debounce: time.Second}, func(ctx context.Context) error { return nil }, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	if d.selfWritten(now) {
		t.Fatal("fresh daemon should accept events")
	}
	d.pass(context.Background(), "test")
	if !d.selfWritten(time.Now()) {
		t.Fatal("event right after a pass should be dropped")
	}
	if d.selfWritten(time.Now().Add(2 * time.Second)) {
		t.Fatal("event after the quiet window should be accepted")
	}
}

func TestPassDoesNotOverlap(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int32
	d, err := New(Config{Schedule: "@every 1h"}, func(ctx context.Context) error {
		calls.Add(1)
		close(started)
		<-release
		return nil
	}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		d.pass(ctx, "first")
		close(done)
	}()
	<-started
	d.pass(ctx, "second")
	close(release)
	<-done

	if n := calls.Load(); n != 1 {
		t.Fatalf("calls = %d, want 1", n)
	}
}
