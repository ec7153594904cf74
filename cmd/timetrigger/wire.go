package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"timetrigger/internal/config"
	"timetrigger/internal/notify"
	"timetrigger/internal/runner"
	"timetrigger/internal/secrets"
	"timetrigger/internal/storage"
	"timetrigger/internal/task"
	"timetrigger/internal/vcs"
	"timetrigger/internal/webhook"
	"timetrigger/internal/window"
	logx "timetrigger/pkg/logx"
)

var defaultConfigFiles = []string{"timetrigger.json", "timetrigger.yaml", "timetrigger.yml"}

// app holds everything built from the config that commands share.
type app struct {
	cfg    *config.Config
	log    logx.Logger
	loc    *time.Location
	loader *task.Loader

	closers []func() error
}

func loadApp(g *globalFlags) (*app, error) {
	path, required := g.configPath, true
	if path == "" {
		path, required = findConfig(), false
	}
	cfg, err := config.Load(path, required)
	if err != nil {
		if errors.Is(err, config.ErrInvalid) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}
	if g.tasksDir != "" {
		cfg.TasksDir = g.tasksDir
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}

	loc, err := window.LoadZone(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone: %w", config.ErrInvalid, err)
	}

	svc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console == nil || *cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	})
	a := &app{
		cfg:    cfg,
		log:    log,
		loc:    loc,
		loader: &task.Loader{
			Dir:           cfg.TasksDir,
			Layout:        cfg.TimeFormat,
			Location:      loc,
			DefaultMethod: cfg.DefaultMethod,
		},
	}
	a.closers = append(a.closers, svc.Close)
	if path != "" {
		log.Debug("config loaded", logx.String("path", path), logx.String("driver", cfg.Storage.Driver))
	}
	return a, nil
}

func findConfig() string {
	for _, name := range defaultConfigFiles {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return defaultConfigFiles[0]
}

func (a *app) evaluator(now string) (*window.Evaluator, error) {
	ev := window.New(a.loc)
	if strings.TrimSpace(now) == "" {
		return ev, nil
	}
	t, err := window.ParseTrigger(a.cfg.TimeFormat, now, a.loc)
	if err != nil {
		t, err = time.Parse(time.RFC3339, strings.TrimSpace(now))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: --now %q: use %q or RFC 3339", errUsage, now, a.cfg.TimeFormat)
	}
	ev.Now = func() time.Time { return t }
	return ev, nil
}

// runner builds the full pipeline. A dry run still opens the store so that
// done-markers are honoured, but never writes to it.
func (a *app) runner(ev *window.Evaluator, dryRun bool) (*runner.Runner, error) {
	cfg := a.cfg

	keys, err := secrets.Parse(os.Getenv(cfg.Secrets.Env))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", config.ErrInvalid, cfg.Secrets.Env, err)
	}

	repo := &vcs.Repo{
		Remote:      cfg.Git.Remote,
		Branch:      cfg.Git.Branch,
		Push:        cfg.Git.Push,
		AuthorName:  cfg.Git.AuthorName,
		AuthorEmail: cfg.Git.AuthorEmail,
		Timeout:     cfg.GitTimeout(),
	}
	store, err := storage.Open(storage.Config{
		Driver:       cfg.Storage.Driver,
		Path:         cfg.Storage.Path,
		BusyTimeout:  cfg.BusyTimeout(),
		Indent:       cfg.Storage.Indent,
		TimeLayout:   cfg.TimeFormat,
		CommitPrefix: cfg.Git.MessagePrefix,
		Redis: storage.RedisConfig{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
			Prefix:   cfg.Storage.Redis.Prefix,
		},
	}, repo, a.log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.closers = append(a.closers, store.Close)

	var journal *storage.Journal
	if !dryRun {
		journal, err = storage.OpenJournal(cfg.Storage.AuditPath)
		if err != nil {
			return nil, fmt.Errorf("open audit journal: %w", err)
		}
		a.closers = append(a.closers, journal.Close)
	}

	var notifier runner.Notifier
	if cfg.Telegram.Enabled {
		tg, err := notify.NewTelegram(notify.TelegramConfig{
			Token:    cfg.Telegram.Token,
			ChatID:   cfg.Telegram.ChatID,
			ThreadID: cfg.Telegram.ThreadID,
			Timeout:  cfg.TelegramTimeout(),
		}, a.log.With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, fmt.Errorf("%w: telegram: %w", config.ErrInvalid, err)
		}
		notifier = tg
	}

	a.log.Debug("pipeline ready",
		logx.String("driver", cfg.Storage.Driver),
		logx.String("tz", a.loc.String()),
		logx.Int("device_keys", keys.Count()),
		logx.Bool("telegram", notifier != nil),
	)

	return runner.New(runner.Deps{
		Loader:    a.loader,
		Evaluator: ev,
		Firer: webhook.New(webhook.Options{
			Timeout:    cfg.WebhookTimeout(),
			RatePerSec: cfg.Webhook.RatePerSec,
			UserAgent:  cfg.Webhook.UserAgent,
		}, a.log.With(logx.String("comp", "webhook"))),
		Store:    store,
		Journal:  journal,
		Keys:     keys,
		Notifier: notifier,
		Log:      a.log.With(logx.String("comp", "runner")),
	}, runner.Options{
		DryRun:       dryRun,
		SecretsField: cfg.Secrets.Field,
	}), nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close failed", logx.Err(err))
		}
	}
}
