package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/molaison/research-agent/internal/agent"
)

func TestFetchSuccess(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != "test-agent" {
			t.Errorf("unexpected user agent %q", ua)
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><head><title>hi</title></head></html>"))
	}))
	defer ts.Close()

	f := New(Config{UserAgent: "test-agent", Timeout: 5 * time.Second})
	resp, err := f.Fetch(context.Background(), agent.FetchRequest{URL: ts.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d; want 200", resp.StatusCode)
	}
	if resp.FinalURL == "" {
		t.Error("expected final URL to be recorded")
	}
	if len(resp.Body) == 0 {
		t.Error("expected body bytes")
	}
	if resp.UsedHeadless {
		t.Error("plain fetch must not be marked headless")
	}
}

func TestFetchNon2xxStatus(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer ts.Close()

	f := New(Config{Timeout: 5 * time.Second})
	_, err := f.Fetch(context.Background(), agent.FetchRequest{URL: ts.URL})
	if err == nil {
		t.Fatal("expected error for 404")
	}
	var fetchErr *agent.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected *agent.FetchError, got %T", err)
	}
	if fetchErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d; want 404", fetchErr.StatusCode)
	}
	if agent.CodeFor(err) != agent.CodeFetchStatus {
		t.Errorf("code = %s; want %s", agent.CodeFor(err), agent.CodeFetchStatus)
	}
}

func TestFetchConnectionRefused(t *testing.T) {
	t.Parallel()

	f := New(Config{Timeout: 2 * time.Second})
	_, err := f.Fetch(context.Background(), agent.FetchRequest{URL: "http://127.0.0.1:1/"})
	if err == nil {
		t.Fatal("expected error for unreachable host")
	}
	var fetchErr *agent.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected *agent.FetchError, got %T", err)
	}
	if fetchErr.StatusCode != 0 {
		t.Errorf("StatusCode = %d; want 0 for transport failure", fetchErr.StatusCode)
	}
}

func TestFetchContextCancel(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()
	defer close(release)

	f := New(Config{Timeout: 30 * time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := f.Fetch(ctx, agent.FetchRequest{URL: ts.URL})
	if err == nil {
		t.Fatal("expected error for deadline exceeded")
	}
	var fetchErr *agent.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected *agent.FetchError, got %T", err)
	}
	if !fetchErr.Timeout {
		t.Error("expected Timeout to be set")
	}
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	req := agent.FetchRequest{
		URL:     "https://example.com",
		Headers: http.Header{"X-Trace": {"yes"}},
	}
	start := time.Unix(0, 0)
	var result agent.FetchResponse
	var errStatus int
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, req, start, &result, &errStatus, &fetchErr)
	if hooks.onRequest == nil || hooks.onResponse == nil || hooks.onError == nil {
		t.Fatal("expected hooks to be registered")
	}

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	if collyReq.Headers.Get("X-Trace") != "yes" {
		t.Fatalf("expected header propagation, got %+v", collyReq.Headers)
	}

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request: &colly.Request{
			URL: mustParseURL(t, "https://example.com/final"),
		},
	})
	if result.StatusCode != http.StatusOK || string(result.Body) != "body" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.FinalURL != "https://example.com/final" {
		t.Fatalf("expected final URL recorded, got %q", result.FinalURL)
	}
	if result.Headers.Get("X-Resp") != "ok" {
		t.Fatalf("expected headers copied, got %+v", result.Headers)
	}

	hooks.onError(&colly.Response{StatusCode: http.StatusBadGateway}, errors.New("boom"))
	if fetchErr == nil || fetchErr.Error() != "boom" {
		t.Fatalf("expected fetchErr set, got %v", fetchErr)
	}
	if errStatus != http.StatusBadGateway {
		t.Fatalf("expected error status captured, got %d", errStatus)
	}
}

func TestCopyHeadersHandlesNil(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	collyReq := &colly.Request{Headers: &http.Header{}}
	f.copyHeaders(agent.FetchRequest{}, collyReq)
	if len(*collyReq.Headers) != 0 {
		t.Fatalf("expected no headers to be copied, got %+v", *collyReq.Headers)
	}
}

func TestClassifyError(t *testing.T) {
	t.Parallel()

	if e := classifyError("http://x", 503, errors.New("status")); e.StatusCode != 503 {
		t.Errorf("StatusCode = %d; want 503", e.StatusCode)
	}
	if e := classifyError("http://x", 0, context.DeadlineExceeded); !e.Timeout {
		t.Error("expected timeout classification for deadline error")
	}
	if e := classifyError("http://x", 0, errors.New("refused")); e.Timeout || e.StatusCode != 0 {
		t.Errorf("unexpected classification: %+v", e)
	}
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse url %q: %v", raw, err)
	}
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
