package secrets

import (
	"errors"
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	k, err := Parse(`["a","b"]`)
	if err != nil || k.Mode() != "list" || k.Count() != 2 {
		t.Fatalf("list parse: %v %v %d", err, k.Mode(), k.Count())
	}
	k, err = Parse(`{"iphone":"k1"}`)
	if err != nil || k.Mode() != "alias" {
		t.Fatalf("alias parse: %v %v", err, k.Mode())
	}
	k, err = Parse("  ")
	if err != nil || !k.Empty() || k.Mode() != "none" {
		t.Fatalf("empty parse: %v %v", err, k.Mode())
	}
	for _, bad := range []string{`{`, `42`, `[1]`, `{"a":1}`} {
		if _, err := Parse(bad); !errors.Is(err, ErrFormat) {
			t.Fatalf("Parse(%q) err = %v, want ErrFormat", bad, err)
		}
	}
}

func TestInjectList(t *testing.T) {
	k, _ := Parse(`["k2","k3"]`)
	body := map[string]any{"title": "hi", "device_keys": []any{"k1", "k2"}}
	got := k.Inject(body, "device_keys")

	want := []any{"k1", "k2", "k3"}
	if !reflect.DeepEqual(got["device_keys"], want) {
		t.Fatalf("device_keys = %v, want %v", got["device_keys"], want)
	}
	if !reflect.DeepEqual(body["device_keys"], []any{"k1", "k2"}) {
		t.Fatalf("original body mutated: %v", body)
	}
}

func TestInjectAlias(t *testing.T) {
	k, _ := Parse(`{"iphone":"secret-1","ipad":"secret-2"}`)

	got := k.Inject(map[string]any{"device_keys": []any{"iphone", "raw-key"}}, "device_keys")
	if want := []any{"secret-1", "raw-key"}; !reflect.DeepEqual(got["device_keys"], want) {
		t.Fatalf("replace = %v, want %v", got["device_keys"], want)
	}

	got = k.Inject(map[string]any{}, "device_keys")
	if want := []any{"secret-2", "secret-1"}; !reflect.DeepEqual(got["device_keys"], want) {
		t.Fatalf("fill = %v, want %v (sorted by alias)", got["device_keys"], want)
	}
}

func TestInjectEmptyKeysLeavesBody(t *testing.T) {
	var k Keys
	body := map[string]any{"a": map[string]any{"b": []any{1}}}
	got := k.Inject(body, "device_keys")
	if _, ok := got["device_keys"]; ok {
		t.Fatal("field should not be added without keys")
	}
	got["a"].(map[string]any)["b"].([]any)[0] = 2
	if body["a"].(map[string]any)["b"].([]any)[0] != 1 {
		t.Fatal("Inject must deep copy")
	}
	if k.Inject(nil, "x") == nil {
		t.Fatal("nil body should become empty map")
	}
}
