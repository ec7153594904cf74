package config

// Config is the on-disk configuration of the runner.
//
// All durations are Go duration strings (e.g. "500ms", "20s", "1m").
// Every section is optional; Normalize fills in defaults.
type Config struct {
	// TasksDir holds the *.json task descriptors. Relative paths resolve
	// against the process working directory (the repository root in CI).
	TasksDir string `json:"tasks_dir,omitempty"`

	// Timezone is the project-wide zone for trigger_time comparisons.
	// IANA name ("Asia/Shanghai") or fixed offset ("+08:00", "UTC+8").
	Timezone string `json:"timezone,omitempty"`

	// DefaultMethod is used when a descriptor omits "method".
	DefaultMethod string `json:"default_method,omitempty"`

	// TimeFormat is the Go layout for trigger_time and executed_at.
	TimeFormat string `json:"time_format,omitempty"`

	Webhook  WebhookConfig  `json:"webhook"`
	Secrets  SecretsConfig  `json:"secrets"`
	Storage  StorageConfig  `json:"storage"`
	Git      GitConfig      `json:"git"`
	Logging  LoggingConfig  `json:"logging"`
	Telegram TelegramConfig `json:"telegram"`
	Daemon   DaemonConfig   `json:"daemon"`

	durations    Durations
	durationErrs []error
}

// WebhookConfig controls outgoing HTTP calls.
//
// Defaults (when fields are omitted/zero):
//   - timeout: "20s"
//   - rate_per_sec: 0 (unlimited)
//   - user_agent: "timetrigger/1"
type WebhookConfig struct {
	Timeout    string  `json:"timeout,omitempty"`
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	UserAgent  string  `json:"user_agent,omitempty"`
}

// SecretsConfig names the environment variable holding device keys and the
// body field they are merged into. Keys are injected into the request only;
// they never reach the descriptor file.
type SecretsConfig struct {
	Env   string `json:"env,omitempty"`   // default: DEVICE_KEYS
	Field string `json:"field,omitempty"` // default: device_keys
}

// StorageConfig selects how "executed" state is persisted.
//
// Example:
//
//	"storage": { "driver": "git", "audit_path": "./logs/audit.jsonl" }
type StorageConfig struct {
	Driver      string      `json:"driver,omitempty"` // git | file | sqlite | redis
	Path        string      `json:"path,omitempty"`   // sqlite database file
	BusyTimeout string      `json:"busy_timeout,omitempty"`
	AuditPath   string      `json:"audit_path,omitempty"`
	Indent      string      `json:"indent,omitempty"` // JSON indent for rewritten files, default 4 spaces
	Redis       RedisConfig `json:"redis"`
}

type RedisConfig struct {
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"` // prefer TIMETRIGGER_REDIS_PASSWORD
	DB       int    `json:"db,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
}

// GitConfig controls the commit made by the git storage driver.
type GitConfig struct {
	Push          bool   `json:"push,omitempty"`
	Remote        string `json:"remote,omitempty"`
	Branch        string `json:"branch,omitempty"`
	AuthorName    string `json:"author_name,omitempty"`
	AuthorEmail   string `json:"author_email,omitempty"`
	MessagePrefix string `json:"message_prefix,omitempty"`
	Timeout       string `json:"timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level,omitempty"`
	Console *bool       `json:"console,omitempty"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// TelegramConfig enables a run-summary message after each run that did
// something (fired, failed, or hit a fatal error).
type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	Token    string `json:"token,omitempty"` // prefer TIMETRIGGER_TELEGRAM_TOKEN (do not log)
	ChatID   int64  `json:"chat_id,omitempty"`
	ThreadID int    `json:"thread_id,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

// DaemonConfig is only read by "timetrigger daemon".
type DaemonConfig struct {
	Schedule string `json:"schedule,omitempty"` // cron spec, default "*/20 * * * *"
	Watch    bool   `json:"watch,omitempty"`    // rescan when tasks_dir changes
	Debounce string `json:"debounce,omitempty"` // default "500ms"
}
