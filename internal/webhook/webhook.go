// Package webhook fires the HTTP request of a due task.
//
// Exactly one attempt is made per call. A 2xx response within the timeout
// is success; anything else is returned as an error and the caller leaves the
// task unexecuted so the next scheduled run tries again.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	logx "timetrigger/pkg/logx"
)

const maxErrorBody = 512

var ErrMethod = errors.New("unsupported method")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("webhook returned %d", e.Code)
	}
	return fmt.Sprintf("webhook returned %d: %s", e.Code, e.Body)
}

// Request describes one webhook call.
type Request struct {
	TaskID  string
	Method  string
	URL     string
	Body    map[string]any
	Headers map[string]string
}

// Result describes a completed HTTP exchange.
type Result struct {
	StatusCode int
	Took       time.Duration
}

type Options struct {
	Timeout    time.Duration
	RatePerSec float64
	UserAgent  string
	// Client overrides the default client. Timeout still applies per call.
	Client *http.Client
}

type Invoker struct {
	client    *http.Client
	timeout   time.Duration
	limiter   *rate.Limiter
	userAgent string
	log       logx.Logger
}

func New(opt Options, log logx.Logger) *Invoker {
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := opt.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	client := opt.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	inv := &Invoker{client: client, timeout: timeout, userAgent: opt.UserAgent, log: log}
	if opt.RatePerSec > 0 {
		inv.limiter = rate.NewLimiter(rate.Limit(opt.RatePerSec), 1)
	}
	return inv
}

// Fire performs the request once.
func (i *Invoker) Fire(ctx context.Context, r Request) (Result, error) {
	if i.limiter != nil {
		if err := i.limiter.Wait(ctx); err != nil {
			return Result{}, err
		}
	}

	req, err := i.build(ctx, r)
	if err != nil {
		return Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()
	req = req.WithContext(ctx)

	start := time.Now()
	resp, err := i.client.Do(req)
	took := time.Since(start)
	if err != nil {
		// *url.Error repeats the full URL, query included.
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return Result{Took: took}, fmt.Errorf("%s %s: %w", req.Method, redact(req.URL), err)
	}
	defer resp.Body.Close()

	res := Result{StatusCode: resp.StatusCode, Took: took}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return res, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	i.log.Debug("webhook response",
		logx.String("task", r.TaskID),
		logx.Int("status", resp.StatusCode),
		logx.Duration("took", took),
	)
	return res, nil
}

func (i *Invoker) build(ctx context.Context, r Request) (*http.Request, error) {
	method := strings.ToUpper(strings.TrimSpace(r.Method))
	var (
		req *http.Request
		err error
	)
	switch method {
	case http.MethodGet:
		u, perr := WithQuery(r.URL, r.Body)
		if perr != nil {
			return nil, perr
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	case http.MethodPost:
		body := r.Body
		if body == nil {
			body = map[string]any{}
		}
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(body); err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, r.URL, &buf)
		if err == nil {
			req.Header.Set("Content-Type", "application/json; charset=utf-8")
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrMethod, r.Method)
	}
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	if i.userAgent != "" {
		req.Header.Set("User-Agent", i.userAgent)
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// WithQuery appends body entries to rawURL as query parameters. Existing
// query parameters are kept. Lists repeat the key, objects are sent as JSON,
// nulls are skipped.
func WithQuery(rawURL string, body map[string]any) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if len(body) == 0 {
		return u.String(), nil
	}
	q := u.Query()
	keys := make([]string, 0, len(body))
	for k := range body {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch v := body[k].(type) {
		case nil:
		case []any:
			for _, it := range v {
				if it == nil {
					continue
				}
				s, err := scalar(it)
				if err != nil {
					return "", err
				}
				q.Add(k, s)
			}
		default:
			s, err := scalar(v)
			if err != nil {
				return "", err
			}
			q.Add(k, s)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func scalar(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case bool:
		if x {
			return "true", nil
		}
		return "false", nil
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return "", fmt.Errorf("encode query value: %w", err)
		}
		return string(b), nil
	default:
		return fmt.Sprint(x), nil
	}
}

// redact drops the query string; it may carry keys.
func redact(u *url.URL) string {
	if u == nil {
		return ""
	}
	cp := *u
	cp.RawQuery = ""
	cp.User = nil
	return cp.String()
}
