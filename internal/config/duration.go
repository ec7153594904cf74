package config

import (
	"fmt"
	"strings"
	"time"
)

// Durations are the parsed forms of the config's duration strings.
// Normalize fills them; an omitted or "0" value takes the default.
type Durations struct {
	WebhookTimeout  time.Duration
	GitTimeout      time.Duration
	BusyTimeout     time.Duration // 0 keeps the sqlite driver default
	TelegramTimeout time.Duration
	DaemonDebounce  time.Duration
}

const DefaultTelegramTimeout = 10 * time.Second

// normalizeDurations parses every duration string once. Parse failures fall
// back to the default and are kept for Validate to report.
func (c *Config) normalizeDurations() {
	c.durationErrs = nil
	fields := []struct {
		path string
		raw  string
		dst  *time.Duration
		def  time.Duration
	}{
		{"webhook.timeout", c.Webhook.Timeout, &c.durations.WebhookTimeout, DefaultWebhookTimeout},
		{"git.timeout", c.Git.Timeout, &c.durations.GitTimeout, DefaultGitTimeout},
		{"storage.busy_timeout", c.Storage.BusyTimeout, &c.durations.BusyTimeout, 0},
		{"telegram.timeout", c.Telegram.Timeout, &c.durations.TelegramTimeout, DefaultTelegramTimeout},
		{"daemon.debounce", c.Daemon.Debounce, &c.durations.DaemonDebounce, DefaultDebounce},
	}
	for _, f := range fields {
		d, err := parseDuration(f.path, f.raw)
		if err != nil {
			c.durationErrs = append(c.durationErrs, err)
		}
		if d == 0 {
			d = f.def
		}
		*f.dst = d
	}
}

func parseDuration(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q (use Go syntax like \"20s\" or \"1m\")", path, raw)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: must not be negative, got %s", path, s)
	}
	return d, nil
}

// Durations returns the values resolved by Normalize.
func (c *Config) Durations() Durations { return c.durations }

func (c *Config) WebhookTimeout() time.Duration  { return c.durations.WebhookTimeout }
func (c *Config) GitTimeout() time.Duration      { return c.durations.GitTimeout }
func (c *Config) BusyTimeout() time.Duration     { return c.durations.BusyTimeout }
func (c *Config) TelegramTimeout() time.Duration { return c.durations.TelegramTimeout }
func (c *Config) DaemonDebounce() time.Duration  { return c.durations.DaemonDebounce }
