// Package runner performs one scan-and-fire pass over the task directory.
//
// A pass loads every task file, fires the webhook of each due task in file
// order, marks fired tasks done, and commits the result once. Per-task
// problems (bad files, failed webhooks) never stop the pass; a failure to
// persist does, because the webhook already fired and a lost flag means a
// duplicate call on the next run.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"timetrigger/internal/secrets"
	"timetrigger/internal/storage"
	"timetrigger/internal/task"
	"timetrigger/internal/webhook"
	"timetrigger/internal/window"
	logx "timetrigger/pkg/logx"
)

// Firer performs a webhook call. *webhook.Invoker implements it.
type Firer interface {
	Fire(ctx context.Context, r webhook.Request) (webhook.Result, error)
}

// Notifier receives the run summary. *notify.Telegram implements it.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

type Options struct {
	// DryRun evaluates tasks but fires and persists nothing.
	DryRun bool
	// SecretsField is the body key device keys are merged into.
	SecretsField string
	// PersistTimeout bounds MarkDone+Commit once a webhook has fired.
	PersistTimeout time.Duration
}

type Deps struct {
	Loader    *task.Loader
	Evaluator *window.Evaluator
	Firer     Firer
	Store     storage.Store
	Journal   *storage.Journal
	Keys      secrets.Keys
	Notifier  Notifier
	Log       logx.Logger
}

type Runner struct {
	Deps
	opt Options
}

func New(d Deps, opt Options) *Runner {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if opt.PersistTimeout <= 0 {
		opt.PersistTimeout = 2 * time.Minute
	}
	return &Runner{Deps: d, opt: opt}
}

// Run executes one pass. The returned report is never nil.
func (r *Runner) Run(ctx context.Context) *Report {
	rep := &Report{RunID: uuid.NewString(), Started: time.Now(), Now: r.Evaluator.Clock()}
	log := r.Log.With(logx.String("run", shortID(rep.RunID)))
	log.Info("run started",
		logx.String("dir", r.Loader.Dir),
		logx.Time("now", rep.Now),
		logx.Bool("dry_run", r.opt.DryRun),
		logx.String("keys", r.Keys.Mode()),
	)

	entries, bad, err := r.Loader.Load()
	if err != nil {
		rep.Fatal = err
		r.finish(ctx, log, rep)
		return rep
	}
	for _, le := range bad {
		log.Warn("task file skipped", logx.String("task", le.ID), logx.String("path", le.Path), logx.Err(le.Err))
		rep.add(TaskResult{ID: le.ID, Path: le.Path, Outcome: OutcomeInvalid, Err: le.Err})
	}

	var fired []task.Entry
	for i, e := range entries {
		if ctx.Err() != nil {
			for _, rest := range entries[i:] {
				rep.add(TaskResult{ID: rest.ID, Path: rest.Path, Outcome: OutcomeNotRun, Trigger: rest.Trigger})
			}
			log.Warn("run interrupted", logx.Int("remaining", len(entries)-i), logx.Err(ctx.Err()))
			break
		}

		res, ok := r.process(ctx, log, rep.RunID, e)
		rep.add(res)
		if res.Outcome == OutcomePersistFailed {
			rep.Fatal = res.Err
			// Stop firing: every further call would risk another duplicate.
			for _, rest := range entries[i+1:] {
				rep.add(TaskResult{ID: rest.ID, Path: rest.Path, Outcome: OutcomeNotRun, Trigger: rest.Trigger})
			}
			break
		}
		if ok {
			fired = append(fired, e)
		}
	}

	if len(fired) > 0 {
		pctx, cancel := r.persistContext(ctx)
		err := r.Store.Commit(pctx, fired)
		cancel()
		if err != nil {
			log.Error("commit failed; fired tasks may fire again next run",
				logx.Strings("tasks", ids(fired)), logx.Err(err))
			rep.Fatal = errors.Join(rep.Fatal, err)
		}
	}

	r.finish(ctx, log, rep)
	return rep
}

// process handles one loaded task. ok is true when the task fired and was
// marked done.
func (r *Runner) process(ctx context.Context, log logx.Logger, runID string, e task.Entry) (TaskResult, bool) {
	res := TaskResult{ID: e.ID, Path: e.Path, Trigger: e.Trigger}
	tlog := log.With(logx.String("task", e.ID))

	// Executed descriptors may carry a trigger_time that no longer parses.
	if e.Descriptor.Executed {
		res.Outcome = OutcomeSkipped
		tlog.Debug("already executed")
		return res, false
	}
	done, err := r.Store.IsDone(ctx, e.ID)
	if err != nil {
		res.Outcome = OutcomePersistFailed
		res.Err = fmt.Errorf("%w: lookup %s: %w", storage.ErrPersist, e.ID, err)
		tlog.Error("state lookup failed", logx.Err(err))
		return res, false
	}

	d := r.Evaluator.Evaluate(e.Trigger, done)
	res.Lateness = d.Lateness
	res.Outcome = stateOutcome(d.State)
	switch d.State {
	case window.Executed:
		tlog.Debug("already executed")
		return res, false
	case window.NotYet:
		tlog.Debug("not due yet", logx.Time("trigger", e.Trigger), logx.Duration("in", -d.Lateness))
		return res, false
	}

	if r.opt.DryRun {
		res.Outcome = OutcomeWouldFire
		tlog.Info("due (dry run)", logx.Time("trigger", e.Trigger), logx.Duration("late", d.Lateness))
		return res, false
	}

	req := webhook.Request{
		TaskID:  e.ID,
		Method:  e.Method,
		URL:     e.Descriptor.WebhookURL,
		Body:    r.Keys.Inject(e.Descriptor.Body, r.opt.SecretsField),
		Headers: e.Descriptor.Headers,
	}
	tlog.Info("firing webhook", logx.String("method", e.Method), logx.Duration("late", d.Lateness))
	out, err := r.Firer.Fire(ctx, req)
	res.Status = out.StatusCode
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Err = err
		tlog.Warn("webhook failed; will retry next run", logx.Int("status", out.StatusCode), logx.Err(err))
		r.audit(ctx, log, runID, e, res, out)
		return res, false
	}

	pctx, cancel := r.persistContext(ctx)
	defer cancel()
	if err := r.Store.MarkDone(pctx, e, d.Now); err != nil {
		res.Outcome = OutcomePersistFailed
		res.Err = err
		tlog.Error("webhook fired but state not saved", logx.Err(err))
		r.audit(ctx, log, runID, e, res, out)
		return res, false
	}
	res.Outcome = OutcomeFired
	tlog.Info("webhook fired", logx.Int("status", out.StatusCode), logx.Duration("took", out.Took))
	r.audit(ctx, log, runID, e, res, out)
	return res, true
}

// persistContext survives cancellation of ctx: once a webhook fired, its
// flag should still be written when the process is asked to stop.
func (r *Runner) persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), r.opt.PersistTimeout)
}

func (r *Runner) audit(ctx context.Context, log logx.Logger, runID string, e task.Entry, res TaskResult, out webhook.Result) {
	entry := storage.AuditEntry{
		RunID:   runID,
		Task:    e.ID,
		Outcome: string(res.Outcome),
		Method:  e.Method,
		Status:  out.StatusCode,
		TookMS:  out.Took.Milliseconds(),
	}
	if res.Err != nil {
		entry.Error = res.Err.Error()
	}
	if err := r.Journal.Append(context.WithoutCancel(ctx), entry); err != nil {
		log.Warn("audit append failed", logx.Err(err))
	}
}

func (r *Runner) finish(ctx context.Context, log logx.Logger, rep *Report) {
	rep.Finished = time.Now()

	fields := []logx.Field{
		logx.Strings("fired", rep.IDs(OutcomeFired)),
		logx.Strings("failed", append(rep.IDs(OutcomeFailed), rep.IDs(OutcomePersistFailed)...)),
		logx.Strings("invalid", rep.IDs(OutcomeInvalid)),
		logx.Int("pending", rep.Count(OutcomePending)),
		logx.Int("skipped", rep.Count(OutcomeSkipped)),
		logx.Duration("took", rep.Finished.Sub(rep.Started)),
	}
	if n := rep.Count(OutcomeWouldFire); n > 0 {
		fields = append(fields, logx.Strings("due", rep.IDs(OutcomeWouldFire)))
	}
	if rep.Fatal != nil {
		log.Error("run failed", append(fields, logx.Err(rep.Fatal))...)
	} else {
		log.Info("run finished", fields...)
	}

	if r.Notifier == nil || !rep.Eventful() || r.opt.DryRun {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := r.Notifier.Send(nctx, rep.Summary()); err != nil {
		log.Warn("summary notification failed", logx.Err(err))
	}
}

func ids(es []task.Entry) []string {
	out := make([]string, 0, len(es))
	for _, e := range es {
		out = append(out, e.ID)
	}
	return out
}
