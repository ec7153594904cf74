package task

import (
	"errors"
	"time"
)

var (
	ErrMalformed    = errors.New("malformed task file")
	ErrSchema       = errors.New("task does not match schema")
	ErrMissingField = errors.New("missing required field")
	ErrTriggerTime  = errors.New("invalid trigger_time")
	ErrTimezone     = errors.New("invalid timezone")
	ErrWebhookURL   = errors.New("invalid webhook_url")
	ErrMethod       = errors.New("unsupported method")
)

// Descriptor mirrors the on-disk JSON of one task.
//
// Keys not listed here are tolerated and survive a rewrite untouched.
type Descriptor struct {
	TriggerTime string            `json:"trigger_time"`
	WebhookURL  string            `json:"webhook_url"`
	Method      string            `json:"method,omitempty"`
	Body        map[string]any    `json:"body,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Timezone    string            `json:"timezone,omitempty"`
	Executed    bool              `json:"executed,omitempty"`
	ExecutedAt  string            `json:"executed_at,omitempty"`
}

// Entry is a loaded, validated task.
type Entry struct {
	ID         string
	Path       string
	Descriptor Descriptor

	// Method is Descriptor.Method upper-cased, or the default when omitted.
	Method string
	// Trigger is trigger_time resolved in Location.
	Trigger  time.Time
	Location *time.Location

	// Raw is the file content as read; rewrites start from it so key order
	// and formatting of untouched fields are preserved.
	Raw []byte
}

// LoadError reports a task file that could not be loaded. It never aborts a scan.
type LoadError struct {
	ID   string
	Path string
	Err  error
}

func (e *LoadError) Error() string { return e.Path + ": " + e.Err.Error() }
func (e *LoadError) Unwrap() error { return e.Err }
