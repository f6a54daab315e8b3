package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/molaison/research-agent/internal/agent"
	"github.com/molaison/research-agent/internal/config"
	"github.com/molaison/research-agent/internal/metrics"
	"github.com/molaison/research-agent/internal/parse"
)

const samplePage = `<!DOCTYPE html>
<html><head><title>Patient H.M.</title></head>
<body><article><h1>Patient H.M.</h1>
<p>Henry Molaison lost the ability to form new memories after surgery, and his
case reshaped the study of human memory for the next half century.</p>
<p>Researchers worked with him for decades, mapping what the hippocampus does
and does not do for recall, recognition and skill learning.</p>
<a href="/research">Research</a>
<a href="https://elsewhere.example.org/paper">Paper</a>
</article></body></html>`

type fakeFetcher struct {
	mu        sync.Mutex
	responses []agent.FetchResponse
	errs      []error
	requests  []agent.FetchRequest
}

func (f *fakeFetcher) Fetch(_ context.Context, request agent.FetchRequest) (agent.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.requests)
	f.requests = append(f.requests, request)
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return f.responses[i], err
}

func (f *fakeFetcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeGate struct {
	waitErr  error
	allowErr error
	reported []error
}

func (g *fakeGate) Wait(_ context.Context, _ string) error { return g.waitErr }
func (g *fakeGate) Allow(_ string) error                   { return g.allowErr }
func (g *fakeGate) Report(_ string, err error)             { g.reported = append(g.reported, err) }

type fakeCache struct {
	store map[string]*agent.AnalysisResult
	sets  int
}

func newFakeCache() *fakeCache {
	return &fakeCache{store: map[string]*agent.AnalysisResult{}}
}

func (c *fakeCache) Get(_ context.Context, key string, maxAge time.Duration) (*agent.AnalysisResult, bool) {
	if maxAge <= 0 {
		return nil, false
	}
	r, ok := c.store[key]
	return r, ok
}

func (c *fakeCache) Set(_ context.Context, key string, result *agent.AnalysisResult) {
	c.sets++
	c.store[key] = result
}

type fakeDetector struct{ promote bool }

func (d fakeDetector) ShouldPromote(_ agent.FetchResponse) bool { return d.promote }

type fakeRetry struct{ maxAttempts int }

func (r fakeRetry) ShouldRetry(err error, attempt int) bool {
	return err != nil && attempt < r.maxAttempts-1
}
func (r fakeRetry) Backoff(_ int) time.Duration { return 0 }

type fakeHistory struct {
	records []agent.HistoryRecord
	err     error
}

func (h *fakeHistory) Record(_ context.Context, rec agent.HistoryRecord) error {
	h.records = append(h.records, rec)
	return h.err
}

func (h *fakeHistory) Recent(_ context.Context, limit int) ([]agent.HistoryRecord, error) {
	if limit > len(h.records) {
		limit = len(h.records)
	}
	return h.records[:limit], h.err
}

func (h *fakeHistory) Close() {}

type fakePublisher struct {
	events []any
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, payload any) (string, error) {
	p.events = append(p.events, payload)
	return "msg-1", p.err
}

type staticIDs struct{ id string }

func (s staticIDs) NewID() (string, error) { return s.id, nil }

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func okResponse(body string) agent.FetchResponse {
	return agent.FetchResponse{
		URL:        "http://example.com/page",
		FinalURL:   "http://example.com/page",
		StatusCode: 200,
		Body:       []byte(body),
		Duration:   120 * time.Millisecond,
	}
}

func newTestAgent(t *testing.T, opts AgentOptions) *Agent {
	t.Helper()
	metrics.Init()
	if opts.Parser == nil {
		opts.Parser = parse.New(parse.Config{MinContentLength: 10})
	}
	if opts.Clock == nil {
		opts.Clock = fixedClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	}
	if opts.IDs == nil {
		opts.IDs = staticIDs{id: "analysis-1"}
	}
	return NewAgent(opts)
}

func TestAnalyzeSuccess(t *testing.T) {
	fetcher := &fakeFetcher{responses: []agent.FetchResponse{okResponse(samplePage)}}
	gate := &fakeGate{}
	resultCache := newFakeCache()
	history := &fakeHistory{}
	publisher := &fakePublisher{}

	a := newTestAgent(t, AgentOptions{
		Fetcher: fetcher,
		Gate:    gate,
		Cache:   resultCache,
		History: history,
		Events:  publisher,
	})

	result, err := a.Analyze(context.Background(), agent.AnalyzeRequest{URL: "http://example.com/page"})
	require.NoError(t, err)

	require.Equal(t, "analysis-1", result.ID)
	require.Equal(t, "miss", result.CacheStatus)
	require.Equal(t, "Patient H.M.", result.Extraction.Title)
	require.Contains(t, result.Extraction.Text, "Henry Molaison")
	require.Len(t, result.Extraction.Links, 2)
	require.True(t, result.Extraction.Links[0].Internal)
	require.False(t, result.Extraction.Links[1].Internal)

	require.Equal(t, 200, result.Page.StatusCode)
	require.Equal(t, int64(120), result.Page.DurationMs)
	require.NotEmpty(t, result.Page.ContentHash)
	require.Equal(t, len(samplePage), result.Page.Bytes)
	require.Zero(t, result.Page.Retries)
	require.False(t, result.Page.UsedHeadless)

	require.Equal(t, 1, resultCache.sets)
	require.Len(t, history.records, 1)
	require.Equal(t, "Patient H.M.", history.records[0].Title)
	require.Len(t, publisher.events, 1)
	require.Equal(t, []error{nil}, gate.reported)
}

func TestAnalyzeCacheHit(t *testing.T) {
	fetcher := &fakeFetcher{responses: []agent.FetchResponse{okResponse(samplePage)}}
	resultCache := newFakeCache()

	a := newTestAgent(t, AgentOptions{Fetcher: fetcher, Cache: resultCache})

	first, err := a.Analyze(context.Background(), agent.AnalyzeRequest{URL: "http://example.com/page"})
	require.NoError(t, err)
	require.Equal(t, "miss", first.CacheStatus)

	second, err := a.Analyze(context.Background(), agent.AnalyzeRequest{URL: "http://example.com/page"})
	require.NoError(t, err)
	require.Equal(t, "hit", second.CacheStatus)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, 1, fetcher.calls())
}

func TestAnalyzeCacheBypass(t *testing.T) {
	fetcher := &fakeFetcher{responses: []agent.FetchResponse{okResponse(samplePage)}}
	resultCache := newFakeCache()

	a := newTestAgent(t, AgentOptions{Fetcher: fetcher, Cache: resultCache})

	_, err := a.Analyze(context.Background(), agent.AnalyzeRequest{URL: "http://example.com/page"})
	require.NoError(t, err)

	// A negative max age disables the lookup but still refreshes the cache.
	result, err := a.Analyze(context.Background(), agent.AnalyzeRequest{
		URL:         "http://example.com/page",
		CacheMaxAge: -1,
	})
	require.NoError(t, err)
	require.Equal(t, "miss", result.CacheStatus)
	require.Equal(t, 2, fetcher.calls())
	require.Equal(t, 2, resultCache.sets)
}

func TestAnalyzeValidation(t *testing.T) {
	a := newTestAgent(t, AgentOptions{
		Fetcher:  &fakeFetcher{responses: []agent.FetchResponse{okResponse(samplePage)}},
		Profiles: map[string]config.ProfileConfig{"shop": {}},
	})

	cases := []struct {
		name    string
		request agent.AnalyzeRequest
	}{
		{"empty url", agent.AnalyzeRequest{}},
		{"bad scheme", agent.AnalyzeRequest{URL: "ftp://example.com"}},
		{"no host", agent.AnalyzeRequest{URL: "http://"}},
		{"bad render mode", agent.AnalyzeRequest{URL: "http://example.com", Render: "turbo"}},
		{"headless disabled", agent.AnalyzeRequest{URL: "http://example.com", Render: agent.RenderHeadless}},
		{"bad format", agent.AnalyzeRequest{URL: "http://example.com", Format: "pdf"}},
		{"unknown profile", agent.AnalyzeRequest{URL: "http://example.com", Profile: "news"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := a.Analyze(context.Background(), tc.request)
			require.Error(t, err)
			require.Equal(t, agent.CodeInvalidInput, agent.CodeFor(err))
		})
	}
}

func TestAnalyzeRetriesTransientFailures(t *testing.T) {
	timeout := &agent.FetchError{URL: "http://example.com/page", Timeout: true, Err: errors.New("deadline")}
	fetcher := &fakeFetcher{
		responses: []agent.FetchResponse{{}, {}, okResponse(samplePage)},
		errs:      []error{timeout, timeout, nil},
	}

	a := newTestAgent(t, AgentOptions{Fetcher: fetcher, Retry: fakeRetry{maxAttempts: 3}})

	result, err := a.Analyze(context.Background(), agent.AnalyzeRequest{URL: "http://example.com/page"})
	require.NoError(t, err)
	require.Equal(t, 2, result.Page.Retries)
	require.Equal(t, 3, fetcher.calls())
}

func TestAnalyzeFetchErrorPropagates(t *testing.T) {
	fetchErr := &agent.FetchError{URL: "http://example.com/page", StatusCode: 404}
	fetcher := &fakeFetcher{responses: []agent.FetchResponse{{StatusCode: 404}}, errs: []error{fetchErr}}
	gate := &fakeGate{}

	a := newTestAgent(t, AgentOptions{Fetcher: fetcher, Gate: gate})

	_, err := a.Analyze(context.Background(), agent.AnalyzeRequest{URL: "http://example.com/page"})
	require.Error(t, err)
	require.Equal(t, agent.CodeFetchStatus, agent.CodeFor(err))

	// The failure is reported to the breaker.
	require.Len(t, gate.reported, 1)
	require.Error(t, gate.reported[0])
}

func TestAnalyzeGateDenied(t *testing.T) {
	fetcher := &fakeFetcher{responses: []agent.FetchResponse{okResponse(samplePage)}}
	gate := &fakeGate{allowErr: agent.NewError(agent.CodeCircuitOpen, "example.com is failing", nil)}

	a := newTestAgent(t, AgentOptions{Fetcher: fetcher, Gate: gate})

	_, err := a.Analyze(context.Background(), agent.AnalyzeRequest{URL: "http://example.com/page"})
	require.Error(t, err)
	require.Equal(t, agent.CodeCircuitOpen, agent.CodeFor(err))
	require.Zero(t, fetcher.calls())
}

func TestAnalyzeHeadlessPromotion(t *testing.T) {
	thin := agent.FetchResponse{
		URL:        "http://example.com/page",
		FinalURL:   "http://example.com/page",
		StatusCode: 200,
		Body:       []byte(`<html><body><div id="root"></div><script src="/app.js"></script></body></html>`),
	}
	rendered := okResponse(samplePage)
	rendered.UsedHeadless = true

	probe := &fakeFetcher{responses: []agent.FetchResponse{thin}}
	browser := &fakeFetcher{responses: []agent.FetchResponse{rendered}}

	a := newTestAgent(t, AgentOptions{
		Fetcher:  probe,
		Headless: browser,
		Detector: fakeDetector{promote: true},
	})

	result, err := a.Analyze(context.Background(), agent.AnalyzeRequest{URL: "http://example.com/page"})
	require.NoError(t, err)
	require.True(t, result.Page.UsedHeadless)
	require.Equal(t, "Patient H.M.", result.Extraction.Title)
	require.Equal(t, 1, probe.calls())
	require.Equal(t, 1, browser.calls())
	require.True(t, browser.requests[0].UseHeadless)
}

func TestAnalyzeHeadlessFailureKeepsProbe(t *testing.T) {
	probe := &fakeFetcher{responses: []agent.FetchResponse{okResponse(samplePage)}}
	browser := &fakeFetcher{
		responses: []agent.FetchResponse{{}},
		errs:      []error{&agent.FetchError{URL: "http://example.com/page", Timeout: true}},
	}

	a := newTestAgent(t, AgentOptions{
		Fetcher:  probe,
		Headless: browser,
		Detector: fakeDetector{promote: true},
	})

	result, err := a.Analyze(context.Background(), agent.AnalyzeRequest{URL: "http://example.com/page"})
	require.NoError(t, err)
	require.False(t, result.Page.UsedHeadless)
	require.Equal(t, "Patient H.M.", result.Extraction.Title)
}

func TestAnalyzeRenderHTTPNeverPromotes(t *testing.T) {
	probe := &fakeFetcher{responses: []agent.FetchResponse{okResponse(samplePage)}}
	browser := &fakeFetcher{responses: []agent.FetchResponse{{}}}

	a := newTestAgent(t, AgentOptions{
		Fetcher:  probe,
		Headless: browser,
		Detector: fakeDetector{promote: true},
	})

	_, err := a.Analyze(context.Background(), agent.AnalyzeRequest{
		URL:    "http://example.com/page",
		Render: agent.RenderHTTP,
	})
	require.NoError(t, err)
	require.Zero(t, browser.calls())
}

func TestAnalyzeSideChannelFailuresAreSwallowed(t *testing.T) {
	fetcher := &fakeFetcher{responses: []agent.FetchResponse{okResponse(samplePage)}}
	history := &fakeHistory{err: errors.New("pool exhausted")}
	publisher := &fakePublisher{err: errors.New("topic gone")}

	a := newTestAgent(t, AgentOptions{Fetcher: fetcher, History: history, Events: publisher})

	result, err := a.Analyze(context.Background(), agent.AnalyzeRequest{URL: "http://example.com/page"})
	require.NoError(t, err)
	require.Equal(t, "miss", result.CacheStatus)
}

func TestAnalyzeSkipFlags(t *testing.T) {
	fetcher := &fakeFetcher{responses: []agent.FetchResponse{okResponse(samplePage)}}
	history := &fakeHistory{}
	publisher := &fakePublisher{}

	a := newTestAgent(t, AgentOptions{Fetcher: fetcher, History: history, Events: publisher})

	_, err := a.Analyze(context.Background(), agent.AnalyzeRequest{
		URL:         "http://example.com/page",
		SkipHistory: true,
		SkipEvents:  true,
	})
	require.NoError(t, err)
	require.Empty(t, history.records)
	require.Empty(t, publisher.events)
}

func TestAnalyzeProfileHeadersAndFields(t *testing.T) {
	page := `<html><head><title>Store</title></head><body>
<span class="price">19.99</span><h2 class="product">Widget</h2>
<p>Plenty of descriptive text so readability has something to work with here.</p>
</body></html>`
	fetcher := &fakeFetcher{responses: []agent.FetchResponse{okResponse(page)}}

	a := newTestAgent(t, AgentOptions{
		Fetcher: fetcher,
		Profiles: map[string]config.ProfileConfig{
			"shop": {
				Selectors: map[string]string{"price": ".price", "name": ".product", "sku": ".sku"},
				Headers:   map[string]string{"Accept-Language": "en-US"},
			},
		},
	})

	result, err := a.Analyze(context.Background(), agent.AnalyzeRequest{
		URL:     "http://example.com/item",
		Profile: "shop",
		Headers: map[string]string{"X-Request-Source": "test"},
	})
	require.NoError(t, err)
	require.Equal(t, "19.99", result.Extraction.Fields["price"])
	require.Equal(t, "Widget", result.Extraction.Fields["name"])
	require.Empty(t, result.Extraction.Fields["sku"])
	require.InDelta(t, 2.0/3.0, result.Extraction.FieldCoverage, 0.001)

	sent := fetcher.requests[0].Headers
	require.Equal(t, "en-US", sent.Get("Accept-Language"))
	require.Equal(t, "test", sent.Get("X-Request-Source"))
}

func TestStatus(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := &stepClock{t: start}

	a := newTestAgent(t, AgentOptions{
		Fetcher:   &fakeFetcher{responses: []agent.FetchResponse{okResponse(samplePage)}},
		Clock:     clk,
		AgentName: "molaison-research-agent",
		Version:   "1.2.3",
		Port:      8503,
	})

	clk.advance(90 * time.Second)
	status := a.Status()
	require.Equal(t, "active", status.Status)
	require.Equal(t, "molaison-research-agent", status.Agent)
	require.Equal(t, "1.2.3", status.Version)
	require.Equal(t, 8503, status.Port)
	require.Equal(t, int64(90), status.UptimeSeconds)
	require.Contains(t, status.Capabilities, "fetch")
	require.NotContains(t, status.Capabilities, "headless")
	require.Contains(t, status.Endpoints, "GET /status")
}

func TestStatusHeadlessCapability(t *testing.T) {
	a := newTestAgent(t, AgentOptions{
		Fetcher:  &fakeFetcher{responses: []agent.FetchResponse{okResponse(samplePage)}},
		Headless: &fakeFetcher{responses: []agent.FetchResponse{{}}},
	})
	require.Contains(t, a.Status().Capabilities, "headless")
}

// stepClock is a clock that only moves when told to.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *stepClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
