package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"
)

const (
	DefaultTasksDir       = "configs"
	DefaultTimezone       = "Asia/Shanghai"
	DefaultMethod         = "POST"
	DefaultTimeFormat     = "2006-01-02 15:04:05"
	DefaultWebhookTimeout = 20 * time.Second
	DefaultUserAgent      = "timetrigger/1"
	DefaultSecretsEnv     = "DEVICE_KEYS"
	DefaultSecretsField   = "device_keys"
	DefaultDriver         = "git"
	DefaultIndent         = "    "
	DefaultGitTimeout     = time.Minute
	DefaultSchedule       = "*/20 * * * *"
	DefaultDebounce       = 500 * time.Millisecond
	DefaultRedisPrefix    = "timetrigger:done:"

	EnvTelegramToken = "TIMETRIGGER_TELEGRAM_TOKEN"
	EnvRedisPassword = "TIMETRIGGER_REDIS_PASSWORD"
)

// ErrInvalid wraps every validation failure so callers can map it to a usage exit code.
var ErrInvalid = errors.New("invalid config")

// Load reads, decodes, normalizes and validates the config file at path.
//
// A missing file is only an error when required is true; otherwise the
// defaults are used. This lets CI run with no config file at all.
func Load(path string, required bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			cfg := &Config{}
			cfg.Normalize()
			cfg.ApplyEnv(os.Getenv)
			return cfg, cfg.Validate()
		}
		return nil, err
	}
	cfg, err := Parse(path, b)
	if err != nil {
		return nil, err
	}
	cfg.Normalize()
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes raw config bytes. The extension of path selects JSON or YAML.
func Parse(path string, b []byte) (*Config, error) {
	jb := b
	if isYAML(path) {
		var err error
		if jb, err = yamlToJSON(b); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
		}
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("%w: %s: trailing data", ErrInvalid, path)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
	}
	return &cfg, nil
}

// Normalize fills in defaults for omitted fields.
func (c *Config) Normalize() {
	c.TasksDir = orDefault(c.TasksDir, DefaultTasksDir)
	c.Timezone = orDefault(c.Timezone, DefaultTimezone)
	c.DefaultMethod = strings.ToUpper(orDefault(c.DefaultMethod, DefaultMethod))
	c.TimeFormat = orDefault(c.TimeFormat, DefaultTimeFormat)

	c.Webhook.UserAgent = orDefault(c.Webhook.UserAgent, DefaultUserAgent)
	c.Secrets.Env = orDefault(c.Secrets.Env, DefaultSecretsEnv)
	c.Secrets.Field = orDefault(c.Secrets.Field, DefaultSecretsField)

	c.Storage.Driver = strings.ToLower(orDefault(c.Storage.Driver, DefaultDriver))
	if c.Storage.Indent == "" {
		c.Storage.Indent = DefaultIndent
	}
	c.Storage.Redis.Prefix = orDefault(c.Storage.Redis.Prefix, DefaultRedisPrefix)

	c.Git.Remote = orDefault(c.Git.Remote, "origin")
	c.Git.MessagePrefix = orDefault(c.Git.MessagePrefix, "chore(tasks): mark executed")

	c.Logging.Level = orDefault(c.Logging.Level, "info")
	if c.Logging.Console == nil {
		on := true
		c.Logging.Console = &on
	}

	c.Daemon.Schedule = orDefault(c.Daemon.Schedule, DefaultSchedule)

	c.normalizeDurations()
}

// ApplyEnv lets secrets come from the environment instead of the config file.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv(EnvTelegramToken)); v != "" {
		c.Telegram.Token = v
	}
	if v := getenv(EnvRedisPassword); v != "" {
		c.Storage.Redis.Password = v
	}
}

// Validate checks values that Normalize cannot fix.
func (c *Config) Validate() error {
	var errs []error
	switch c.DefaultMethod {
	case "GET", "POST":
	default:
		errs = append(errs, fmt.Errorf("default_method: must be GET or POST, got %q", c.DefaultMethod))
	}
	switch c.Storage.Driver {
	case "git", "file":
	case "sqlite":
		if strings.TrimSpace(c.Storage.Path) == "" {
			errs = append(errs, errors.New("storage.path is required for sqlite driver"))
		}
	case "redis":
		if strings.TrimSpace(c.Storage.Redis.Addr) == "" {
			errs = append(errs, errors.New("storage.redis.addr is required for redis driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	if strings.TrimSpace(c.Storage.Indent) != "" {
		errs = append(errs, errors.New("storage.indent: must contain only whitespace"))
	}
	if c.Webhook.RatePerSec < 0 {
		errs = append(errs, errors.New("webhook.rate_per_sec: must be >= 0"))
	}
	errs = append(errs, c.durationErrs...)
	if c.Telegram.Enabled {
		if strings.TrimSpace(c.Telegram.Token) == "" {
			errs = append(errs, fmt.Errorf("telegram.token is required when telegram.enabled (or set %s)", EnvTelegramToken))
		}
		if c.Telegram.ChatID == 0 {
			errs = append(errs, errors.New("telegram.chat_id is required when telegram.enabled"))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

func orDefault(v, def string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	return v
}
