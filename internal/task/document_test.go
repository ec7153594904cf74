package task

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestMarkExecutedPreservesOrder(t *testing.T) {
	raw := "{\n    \"trigger_time\": \"2024-01-01 00:00:00\",\n    \"webhook_url\": \"https://example.com/push\",\n    \"body\": {\n        \"title\": \"早上好\",\n        \"url\": \"https://a.example/?x=1&y=<2>\"\n    },\n    \"executed\": false\n}\n"

	out, err := MarkExecuted([]byte(raw), "2024-06-01 09:00:00", "    ")
	if err != nil {
		t.Fatalf("MarkExecuted: %v", err)
	}
	want := "{\n    \"trigger_time\": \"2024-01-01 00:00:00\",\n    \"webhook_url\": \"https://example.com/push\",\n    \"body\": {\n        \"title\": \"早上好\",\n        \"url\": \"https://a.example/?x=1&y=<2>\"\n    },\n    \"executed\": true,\n    \"executed_at\": \"2024-06-01 09:00:00\"\n}\n"
	if string(out) != want {
		t.Fatalf("output mismatch\n got: %s\nwant: %s", out, want)
	}
}

func TestMarkExecutedAppendsAndDedupes(t *testing.T) {
	raw := `{"executed_at":"old","webhook_url":"http://x","executed":false,"executed":false}`
	out, err := MarkExecuted([]byte(raw), "now", "  ")
	if err != nil {
		t.Fatalf("MarkExecuted: %v", err)
	}
	s := string(out)
	if strings.Count(s, `"executed"`) != 1 {
		t.Fatalf("duplicate executed keys remain: %s", s)
	}
	if strings.Index(s, `"executed_at"`) > strings.Index(s, `"webhook_url"`) {
		t.Fatalf("executed_at should stay in first position: %s", s)
	}
	if strings.HasSuffix(s, "\n") {
		t.Fatalf("no trailing newline expected: %q", s)
	}

	var d Descriptor
	if err := json.Unmarshal(out, &d); err != nil {
		t.Fatalf("output not valid JSON: %v", err)
	}
	if !d.Executed || d.ExecutedAt != "now" {
		t.Fatalf("descriptor = %+v", d)
	}
}

func TestMarkExecutedRejectsNonObject(t *testing.T) {
	for _, raw := range []string{`[]`, `"x"`, `{"a":1} {}`, `{"a":`} {
		if _, err := MarkExecuted([]byte(raw), "now", "  "); !errors.Is(err, ErrMalformed) {
			t.Fatalf("MarkExecuted(%q) err = %v, want ErrMalformed", raw, err)
		}
	}
}
