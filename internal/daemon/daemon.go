// Package daemon repeats runner passes on a cron schedule and, optionally,
// whenever the task directory changes. Passes never overlap.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	sddaemon "github.com/coreos/go-systemd/v22/daemon"
	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"timetrigger/internal/task"
	logx "timetrigger/pkg/logx"
)

// RunFunc performs one pass. Errors are logged; the daemon keeps going.
type RunFunc func(ctx context.Context) error

type Config struct {
	Schedule string
	Location *time.Location
	// Watch triggers a pass when a *.json file in Dir is created or written.
	// Events seen during a pass, or within Debounce after it, are dropped:
	// passes rewrite task files themselves.
	Watch    bool
	Dir      string
	Debounce time.Duration
	// StopTimeout bounds how long Run waits for an in-flight pass on shutdown.
	StopTimeout time.Duration
}

type Daemon struct {
	cfg   Config
	sched cron.Schedule
	run   RunFunc
	log   logx.Logger

	// Notify reports state to the service manager. Defaults to sd_notify.
	Notify func(state string) (bool, error)

	running sync.Mutex
	busy    atomic.Bool
	// quietUntil is the UnixNano before which watch events are ignored.
	quietUntil atomic.Int64
}

func New(cfg Config, run RunFunc, log logx.Logger) (*Daemon, error) {
	if run == nil {
		return nil, errors.New("daemon: nil run func")
	}
	sched, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 2 * time.Minute
	}
	return &Daemon{
		cfg:    cfg,
		sched:  sched,
		run:    run,
		log:    log,
		Notify: func(state string) (bool, error) { return sddaemon.SdNotify(false, state) },
	}, nil
}

// Run performs a pass immediately, then on every schedule tick until ctx is
// cancelled. It returns once in-flight work has finished or StopTimeout
// elapsed.
func (d *Daemon) Run(ctx context.Context) error {
	c := cron.New(
		cron.WithParser(specParser),
		cron.WithLocation(d.cfg.Location),
		cron.WithChain(cron.Recover(cronLogger{d.log}), cron.SkipIfStillRunning(cronLogger{d.log})),
	)
	c.Schedule(d.sched, cron.FuncJob(func() { d.pass(ctx, "schedule") }))

	var wg sync.WaitGroup
	if d.cfg.Watch {
		w, err := d.newWatcher()
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.watch(ctx, w)
		}()
	}

	c.Start()
	next := d.sched.Next(time.Now().In(d.cfg.Location))
	d.log.Info("daemon started",
		logx.String("schedule", d.cfg.Schedule),
		logx.String("tz", d.cfg.Location.String()),
		logx.Bool("watch", d.cfg.Watch),
		logx.Time("next", next),
	)
	d.notify(sddaemon.SdNotifyReady)

	if iv, err := sddaemon.SdWatchdogEnabled(false); err == nil && iv > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.watchdog(ctx, iv/2)
		}()
	}

	d.pass(ctx, "startup")

	<-ctx.Done()
	d.notify(sddaemon.SdNotifyStopping)
	d.log.Info("daemon stopping")

	stopped := c.Stop()
	done := make(chan struct{})
	go func() {
		<-stopped.Done()
		wg.Wait()
		// Wait for a watch-triggered pass, which cron does not track.
		d.running.Lock()
		d.running.Unlock()
		close(done)
	}()
	select {
	case <-done:
		d.log.Info("daemon stopped")
		return nil
	case <-time.After(d.cfg.StopTimeout):
		return fmt.Errorf("daemon: pass still running after %s", d.cfg.StopTimeout)
	}
}

// pass runs one pass unless another is in flight.
func (d *Daemon) pass(ctx context.Context, reason string) {
	if ctx.Err() != nil {
		return
	}
	if !d.running.TryLock() {
		d.log.Debug("pass skipped; previous pass still running", logx.String("reason", reason))
		return
	}
	defer d.running.Unlock()
	d.busy.Store(true)
	defer func() {
		d.quietUntil.Store(time.Now().Add(d.cfg.Debounce).UnixNano())
		d.busy.Store(false)
	}()

	start := time.Now()
	d.log.Debug("pass started", logx.String("reason", reason))
	if err := d.run(ctx); err != nil {
		d.log.Error("pass failed", logx.String("reason", reason), logx.Duration("took", time.Since(start)), logx.Err(err))
		return
	}
	d.log.Debug("pass finished", logx.String("reason", reason), logx.Duration("took", time.Since(start)))
}

func (d *Daemon) newWatcher() (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(d.cfg.Dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %s: %w", d.cfg.Dir, err)
	}
	return w, nil
}

// watch debounces bursts of file events (editors, git checkouts) into a
// single pass.
func (d *Daemon) watch(ctx context.Context, w *fsnotify.Watcher) {
	defer w.Close()

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(d.cfg.Debounce, func() { d.pass(ctx, "watch") })
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if !task.IsTaskFile(ev.Name) {
				continue
			}
			if d.selfWritten(time.Now()) {
				d.log.Debug("watch event dropped", logx.String("file", ev.Name))
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounce()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			d.log.Warn("watcher error", logx.Err(err))
		}
	}
}

// selfWritten reports whether a file event at now is most likely the
// result of a pass rewriting its own task files.
func (d *Daemon) selfWritten(now time.Time) bool {
	return d.busy.Load() || now.UnixNano() < d.quietUntil.Load()
}

func (d *Daemon) watchdog(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			d.notify(sddaemon.SdNotifyWatchdog)
		}
	}
}

func (d *Daemon) notify(state string) {
	if d.Notify == nil {
		return
	}
	sent, err := d.Notify(state)
	if err != nil {
		d.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		d.log.Debug("sd_notify sent", logx.String("state", state))
	}
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			k = fmt.Sprint(kv[i])
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
