package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	logx "timetrigger/pkg/logx"
)

func TestFirePostJSON(t *testing.T) {
	var (
		gotMethod string
		gotCT     string
		gotUA     string
		gotAuth   string
		gotBody   map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotCT = r.Header.Get("Content-Type")
		gotUA = r.Header.Get("User-Agent")
		gotAuth = r.Header.Get("X-Token")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	inv := New(Options{Timeout: time.Second, UserAgent: "tt-test"}, logx.Nop())
	res, err := inv.Fire(context.Background(), Request{
		TaskID:  "01",
		Method:  "post",
		URL:     srv.URL + "/hook",
		Body:    map[string]any{"title": "hello", "n": json.Number("3")},
		Headers: map[string]string{"X-Token": "abc"},
	})
	if err != nil {
		t.Fatalf("Fire: %v", err)
	}
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("StatusCode = %d", res.StatusCode)
	}
	if gotMethod != http.MethodPost || gotCT != "application/json; charset=utf-8" {
		t.Fatalf("method=%s content-type=%s", gotMethod, gotCT)
	}
	if gotUA != "tt-test" || gotAuth != "abc" {
		t.Fatalf("headers ua=%q token=%q", gotUA, gotAuth)
	}
	if gotBody["title"] != "hello" || gotBody["n"] != float64(3) {
		t.Fatalf("body = %v", gotBody)
	}
}

func TestFireGetQuery(t *testing.T) {
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s", r.Method)
		}
		got = r.URL.Query()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	inv := New(Options{Timeout: time.Second}, logx.Nop())
	_, err := inv.Fire(context.Background(), Request{
		Method: "GET",
		URL:    srv.URL + "/push?sound=bell",
		Body: map[string]any{
			"title":       "hi there",
			"device_keys": []any{"a", "b"},
			"meta":        map[string]any{"x": true},
			"skip":        nil,
		},
	})
	if err != nil {
		t.Fatalf("Fire: %v", err)
	}
	if got.Get("sound") != "bell" || got.Get("title") != "hi there" {
		t.Fatalf("query = %v", got)
	}
	if keys := got["device_keys"]; len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Fatalf("device_keys = %v", keys)
	}
	if got.Get("meta") != `{"x":true}` {
		t.Fatalf("meta = %q", got.Get("meta"))
	}
	if _, ok := got["skip"]; ok {
		t.Fatal("nil values should be skipped")
	}
}

func TestFireNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	inv := New(Options{Timeout: time.Second}, logx.Nop())
	res, err := inv.Fire(context.Background(), Request{Method: "POST", URL: srv.URL})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if se.Code != http.StatusBadGateway || se.Body != "nope" || res.StatusCode != http.StatusBadGateway {
		t.Fatalf("status error = %+v res=%+v", se, res)
	}
}

func TestFireRedirectFinal2xxIsSuccess(t *testing.T) {
	final := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer final.Close()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, final.URL, http.StatusFound)
	}))
	defer srv.Close()

	res, err := New(Options{Timeout: time.Second}, logx.Nop()).Fire(context.Background(), Request{Method: "GET", URL: srv.URL})
	if err != nil || res.StatusCode != http.StatusAccepted {
		t.Fatalf("res=%+v err=%v", res, err)
	}
}

func TestFireTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	inv := New(Options{Timeout: 50 * time.Millisecond}, logx.Nop())
	_, err := inv.Fire(context.Background(), Request{Method: "POST", URL: srv.URL + "/?key=secret"})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if strings.Contains(err.Error(), "secret") {
		t.Fatalf("error leaks query string: %v", err)
	}
}

func TestFireNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	_, err := New(Options{Timeout: time.Second}, logx.Nop()).Fire(context.Background(), Request{Method: "POST", URL: addr})
	if err == nil {
		t.Fatal("expected connection error")
	}
}

func TestFireUnsupportedMethod(t *testing.T) {
	_, err := New(Options{}, logx.Nop()).Fire(context.Background(), Request{Method: "DELETE", URL: "http://127.0.0.1"})
	if !errors.Is(err, ErrMethod) {
		t.Fatalf("err = %v, want ErrMethod", err)
	}
}

func TestRateLimiterHonoursContext(t *testing.T) {
	inv := New(Options{RatePerSec: 0.001}, logx.Nop())
	// First token is available immediately; the second would wait ~1000s.
	inv.limiter.Allow()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := inv.Fire(ctx, Request{Method: "GET", URL: "http://127.0.0.1"}); err == nil {
		t.Fatal("expected limiter wait to fail")
	}
}
