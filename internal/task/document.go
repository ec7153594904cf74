package task

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

type member struct {
	key string
	val json.RawMessage
}

// MarkExecuted returns raw with executed=true and executed_at set.
//
// Other keys keep their order and values. Existing executed/executed_at keys
// are updated in place; missing ones are appended. Output is indented with
// indent, and keeps a trailing newline if raw had one.
func MarkExecuted(raw []byte, executedAt string, indent string) ([]byte, error) {
	members, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}

	at, err := json.Marshal(executedAt)
	if err != nil {
		return nil, err
	}
	members = setMember(members, "executed", json.RawMessage("true"))
	members = setMember(members, "executed_at", at)

	var compact bytes.Buffer
	compact.WriteByte('{')
	for i, m := range members {
		if i > 0 {
			compact.WriteByte(',')
		}
		k, err := marshalNoEscape(m.key)
		if err != nil {
			return nil, err
		}
		compact.Write(k)
		compact.WriteByte(':')
		if err := json.Compact(&compact, m.val); err != nil {
			return nil, fmt.Errorf("%w: key %q: %v", ErrMalformed, m.key, err)
		}
	}
	compact.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, compact.Bytes(), "", indent); err != nil {
		return nil, err
	}
	if bytes.HasSuffix(raw, []byte("\n")) {
		out.WriteByte('\n')
	}
	return out.Bytes(), nil
}

func decodeObject(raw []byte) ([]member, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("%w: top level is not an object", ErrMalformed)
	}

	var members []member
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: expected object key", ErrMalformed)
		}
		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return nil, fmt.Errorf("%w: key %q: %v", ErrMalformed, key, err)
		}
		members = append(members, member{key: key, val: val})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data", ErrMalformed)
	}
	return members, nil
}

// setMember replaces the first key match and drops later duplicates.
func setMember(members []member, key string, val json.RawMessage) []member {
	out := members[:0]
	found := false
	for _, m := range members {
		if m.key != key {
			out = append(out, m)
			continue
		}
		if !found {
			out = append(out, member{key: key, val: val})
			found = true
		}
	}
	if !found {
		out = append(out, member{key: key, val: val})
	}
	return out
}

func marshalNoEscape(s string) ([]byte, error) {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimRight(b.Bytes(), "\n"), nil
}
