package task

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"timetrigger/internal/window"
)

// Loader reads task files from Dir.
type Loader struct {
	Dir string
	// Layout is the Go time layout of trigger_time.
	Layout string
	// Location is used unless a descriptor sets its own timezone.
	Location *time.Location
	// DefaultMethod applies when a descriptor omits method.
	DefaultMethod string
}

// Load returns every loadable task in filename order, plus one LoadError per
// file that could not be loaded. The error return is reserved for an
// unreadable directory.
func (l *Loader) Load() ([]Entry, []*LoadError, error) {
	paths, err := l.List()
	if err != nil {
		return nil, nil, err
	}

	entries := make([]Entry, 0, len(paths))
	var bad []*LoadError
	for _, p := range paths {
		e, err := l.LoadFile(p)
		if err != nil {
			bad = append(bad, &LoadError{ID: IDFromPath(p), Path: p, Err: err})
			continue
		}
		entries = append(entries, e)
	}
	return entries, bad, nil
}

// List returns the task files of Dir sorted by name.
func (l *Loader) List() ([]string, error) {
	des, err := os.ReadDir(l.Dir)
	if err != nil {
		return nil, fmt.Errorf("read tasks dir: %w", err)
	}
	out := make([]string, 0, len(des))
	for _, de := range des {
		if de.IsDir() || !IsTaskFile(de.Name()) {
			continue
		}
		out = append(out, filepath.Join(l.Dir, de.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// LoadFile reads and validates a single task file.
func (l *Loader) LoadFile(path string) (Entry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, err
	}
	return l.Parse(IDFromPath(path), path, raw)
}

// Parse validates raw descriptor JSON.
//
// A descriptor with "executed": true is returned as-is without further
// validation: it will never fire again, so a stale trigger_time or URL in it
// is not an error.
func (l *Loader) Parse(id, path string, raw []byte) (Entry, error) {
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	if !json.Valid(raw) {
		return Entry{}, fmt.Errorf("%w: not valid JSON", ErrMalformed)
	}
	if isExecuted(raw) {
		return l.executedEntry(id, path, raw), nil
	}
	if err := validateSchema(raw); err != nil {
		return Entry{}, err
	}

	var d Descriptor
	dec := json.NewDecoder(bytes.NewReader(raw))
	// Keep big integers in body intact when re-encoded into requests.
	dec.UseNumber()
	if err := dec.Decode(&d); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if strings.TrimSpace(d.WebhookURL) == "" {
		return Entry{}, fmt.Errorf("%w: webhook_url", ErrMissingField)
	}
	if err := checkURL(d.WebhookURL); err != nil {
		return Entry{}, err
	}

	method := strings.ToUpper(strings.TrimSpace(d.Method))
	if method == "" {
		method = strings.ToUpper(strings.TrimSpace(l.DefaultMethod))
	}
	if method == "" {
		method = "POST"
	}
	if method != "GET" && method != "POST" {
		return Entry{}, fmt.Errorf("%w: %q", ErrMethod, method)
	}

	loc := l.Location
	if tz := strings.TrimSpace(d.Timezone); tz != "" {
		z, err := window.LoadZone(tz)
		if err != nil {
			return Entry{}, fmt.Errorf("%w: %v", ErrTimezone, err)
		}
		loc = z
	}
	trigger, err := window.ParseTrigger(l.layout(), d.TriggerTime, loc)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrTriggerTime, err)
	}

	return Entry{
		ID:         id,
		Path:       path,
		Descriptor: d,
		Method:     method,
		Trigger:    trigger,
		Location:   trigger.Location(),
		Raw:        raw,
	}, nil
}

func isExecuted(raw []byte) bool {
	var head struct {
		Executed any `json:"executed"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return false
	}
	done, _ := head.Executed.(bool)
	return done
}

// executedEntry decodes what it can of an executed descriptor for display.
// Trigger stays zero when trigger_time no longer parses.
func (l *Loader) executedEntry(id, path string, raw []byte) Entry {
	var d Descriptor
	_ = json.Unmarshal(raw, &d)
	d.Executed = true

	e := Entry{ID: id, Path: path, Descriptor: d, Method: strings.ToUpper(d.Method), Location: l.Location, Raw: raw}
	loc := l.Location
	if tz := strings.TrimSpace(d.Timezone); tz != "" {
		if z, err := window.LoadZone(tz); err == nil {
			loc = z
		}
	}
	if t, err := window.ParseTrigger(l.layout(), d.TriggerTime, loc); err == nil {
		e.Trigger, e.Location = t, loc
	}
	return e
}

func (l *Loader) layout() string {
	if l.Layout == "" {
		return "2006-01-02 15:04:05"
	}
	return l.Layout
}

func checkURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWebhookURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q must be an absolute http(s) URL", ErrWebhookURL, raw)
	}
	return nil
}

// IsTaskFile reports whether a directory entry name is a task file:
// "*.json", not hidden. Editor drafts and temp files start with a dot.
func IsTaskFile(name string) bool {
	base := filepath.Base(name)
	return !strings.HasPrefix(base, ".") && filepath.Ext(base) == ".json"
}

// IDFromPath returns the file name without its extension.
func IDFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
