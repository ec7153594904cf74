package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	logx "timetrigger/pkg/logx"
)

func TestSplitText(t *testing.T) {
	if got := splitText("short", 10); len(got) != 1 || got[0] != "short" {
		t.Fatalf("splitText short = %v", got)
	}
	s := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	got := splitText(s, 8)
	if len(got) != 2 || got[0] != "aaaaaa\n" || got[1] != "bbbbbb" {
		t.Fatalf("splitText newline = %q", got)
	}
	got = splitText(strings.Repeat("x", 25), 10)
	if len(got) != 3 || len([]rune(got[2])) != 5 {
		t.Fatalf("splitText hard = %q", got)
	}
	if strings.Join(splitText("日本語テキスト", 3), "") != "日本語テキスト" {
		t.Fatal("rune split lost data")
	}
}

func TestNewTelegramValidation(t *testing.T) {
	if _, err := NewTelegram(TelegramConfig{ChatID: 1}, logx.Nop()); err == nil {
		t.Fatal("expected empty token error")
	}
	if _, err := NewTelegram(TelegramConfig{Token: "x"}, logx.Nop()); err == nil {
		t.Fatal("expected empty chat error")
	}
}

func TestTelegramSend(t *testing.T) {
	var (
		mu    sync.Mutex
		texts []string
		path  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		path = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		var m map[string]any
		if json.Unmarshal(b, &m) == nil {
			if s, ok := m["text"].(string); ok {
				texts = append(texts, s)
			}
		} else if v, err := url.ParseQuery(string(b)); err == nil {
			texts = append(texts, v.Get("text"))
		}
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"},"text":"ok"}}`)
	}))
	defer srv.Close()

	tg, err := NewTelegram(TelegramConfig{Token: "123:abc", ChatID: 42, APIURL: srv.URL, Timeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("NewTelegram: %v", err)
	}
	if err := tg.Send(context.Background(), "timetrigger: fired 01"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if !strings.HasSuffix(path, "/sendMessage") || !strings.Contains(path, "123:abc") {
		t.Fatalf("unexpected API path %q", path)
	}
	if len(texts) != 1 || texts[0] != "timetrigger: fired 01" {
		t.Fatalf("texts = %q", texts)
	}
}
