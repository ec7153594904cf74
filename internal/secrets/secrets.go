// Package secrets merges device keys from the environment into webhook payloads.
//
// The environment value is JSON, either a list or an object:
//
//	["key_1", "key_2"]                  keys are appended to the field (deduplicated)
//	{"iphone": "key_1", "ipad": "key_2"} aliases in the field are replaced by keys;
//	                                     an empty field receives every key
//
// Injection always works on a deep copy of the body so secrets are never
// written back into task files.
package secrets

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrFormat = errors.New("device keys must be a JSON list or object of strings")

// Keys holds parsed device keys. The zero value injects nothing.
type Keys struct {
	list  []string
	alias map[string]string
}

// Parse decodes the raw environment value. Empty input yields empty Keys.
func Parse(raw string) (Keys, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Keys{}, nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return Keys{}, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	switch x := v.(type) {
	case []any:
		out := make([]string, 0, len(x))
		for _, it := range x {
			s, ok := it.(string)
			if !ok {
				return Keys{}, fmt.Errorf("%w: list item %v is not a string", ErrFormat, it)
			}
			out = append(out, s)
		}
		return Keys{list: out}, nil
	case map[string]any:
		out := make(map[string]string, len(x))
		for k, it := range x {
			s, ok := it.(string)
			if !ok {
				return Keys{}, fmt.Errorf("%w: alias %q is not a string", ErrFormat, k)
			}
			out[k] = s
		}
		return Keys{alias: out}, nil
	default:
		return Keys{}, ErrFormat
	}
}

// Empty reports whether there is nothing to inject.
func (k Keys) Empty() bool { return len(k.list) == 0 && len(k.alias) == 0 }

// Mode is "list", "alias" or "none"; used in logs instead of key values.
func (k Keys) Mode() string {
	switch {
	case len(k.list) > 0:
		return "list"
	case len(k.alias) > 0:
		return "alias"
	default:
		return "none"
	}
}

// Count returns how many keys are configured.
func (k Keys) Count() int { return len(k.list) + len(k.alias) }

// Inject returns a deep copy of body with keys merged into field.
// body is never modified. With empty Keys the copy is returned as-is.
func (k Keys) Inject(body map[string]any, field string) map[string]any {
	out := Clone(body)
	if out == nil {
		out = map[string]any{}
	}
	if k.Empty() || field == "" {
		return out
	}

	current := stringList(out[field])
	switch {
	case len(k.list) > 0:
		out[field] = dedupe(append(current, k.list...))
	case len(current) == 0:
		vals := make([]string, 0, len(k.alias))
		for _, name := range sortedKeys(k.alias) {
			vals = append(vals, k.alias[name])
		}
		out[field] = toAny(vals)
	default:
		resolved := make([]string, 0, len(current))
		for _, item := range current {
			if key, ok := k.alias[item]; ok {
				resolved = append(resolved, key)
				continue
			}
			resolved = append(resolved, item)
		}
		out[field] = toAny(resolved)
	}
	return out
}

// Clone deep-copies a decoded JSON object.
func Clone(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return Clone(x)
	case []any:
		cp := make([]any, len(x))
		for i := range x {
			cp[i] = cloneValue(x[i])
		}
		return cp
	default:
		return v
	}
}

func stringList(v any) []string {
	switch x := v.(type) {
	case []any:
		out := make([]string, 0, len(x))
		for _, it := range x {
			out = append(out, fmt.Sprint(it))
		}
		return out
	case string:
		if x == "" {
			return nil
		}
		return []string{x}
	default:
		return nil
	}
}

func dedupe(in []string) []any {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return toAny(out)
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
