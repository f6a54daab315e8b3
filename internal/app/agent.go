// Package app wires the long-lived services together and hosts the analysis
// orchestrator that the HTTP layer calls into.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/molaison/research-agent/internal/agent"
	"github.com/molaison/research-agent/internal/cache"
	"github.com/molaison/research-agent/internal/clock/system"
	"github.com/molaison/research-agent/internal/config"
	"github.com/molaison/research-agent/internal/hash/sha256"
	"github.com/molaison/research-agent/internal/history/noop"
	"github.com/molaison/research-agent/internal/id/uuid"
	"github.com/molaison/research-agent/internal/metrics"
	"github.com/molaison/research-agent/internal/parse"

	eventsnoop "github.com/molaison/research-agent/internal/events/noop"
)

// defaultCacheMaxAge bounds cache hits when the request does not ask for a
// specific freshness window.
const defaultCacheMaxAge = 5 * time.Minute

// AgentOptions collects the dependencies of the orchestrator. Zero-value
// ambient fields (clock, hasher, IDs, history, events, logger) get working
// defaults so tests only fill in what they exercise.
type AgentOptions struct {
	Fetcher  agent.Fetcher
	Headless agent.Fetcher
	Detector agent.HeadlessDetector
	Retry    agent.RetryPolicy
	Gate     agent.HostGate
	Cache    agent.Cache
	Parser   *parse.Parser
	History  agent.HistoryStore
	Events   agent.Publisher
	Hasher   agent.Hasher
	Clock    agent.Clock
	IDs      agent.IDGenerator

	Profiles map[string]config.ProfileConfig

	AgentName string
	Version   string
	Port      int

	Logger *zap.Logger
}

// Agent runs the analyze pipeline: admission control, fetch with retries and
// optional headless promotion, extraction, then the side channels (cache,
// history, events). Side-channel failures are logged, never returned.
type Agent struct {
	fetcher  agent.Fetcher
	headless agent.Fetcher
	detector agent.HeadlessDetector
	retry    agent.RetryPolicy
	gate     agent.HostGate
	cache    agent.Cache
	parser   *parse.Parser
	history  agent.HistoryStore
	events   agent.Publisher
	hasher   agent.Hasher
	clock    agent.Clock
	ids      agent.IDGenerator

	profiles map[string]config.ProfileConfig

	name    string
	version string
	port    int
	started time.Time

	logger *zap.Logger
}

// NewAgent builds an Agent, filling in ambient defaults.
func NewAgent(opts AgentOptions) *Agent {
	if opts.Clock == nil {
		opts.Clock = system.New()
	}
	if opts.Hasher == nil {
		opts.Hasher = sha256.New()
	}
	if opts.IDs == nil {
		opts.IDs = uuid.New()
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewOff()
	}
	if opts.History == nil {
		opts.History = noop.New()
	}
	if opts.Events == nil {
		opts.Events = eventsnoop.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.AgentName == "" {
		opts.AgentName = "molaison-research-agent"
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	return &Agent{
		fetcher:  opts.Fetcher,
		headless: opts.Headless,
		detector: opts.Detector,
		retry:    opts.Retry,
		gate:     opts.Gate,
		cache:    opts.Cache,
		parser:   opts.Parser,
		history:  opts.History,
		events:   opts.Events,
		hasher:   opts.Hasher,
		clock:    opts.Clock,
		ids:      opts.IDs,
		profiles: opts.Profiles,
		name:     opts.AgentName,
		version:  opts.Version,
		port:     opts.Port,
		started:  opts.Clock.Now(),
		logger:   opts.Logger,
	}
}

// Analyze fetches and extracts one URL per the request. Fetch and parse
// failures are returned to the caller; cache, history and event failures
// are logged and swallowed so they can never fail an analysis.
func (a *Agent) Analyze(ctx context.Context, request agent.AnalyzeRequest) (*agent.AnalysisResult, error) {
	request, profile, err := a.normalize(request)
	if err != nil {
		return nil, err
	}

	if request.BudgetSecond > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(request.BudgetSecond)*time.Second)
		defer cancel()
	}

	key := cache.Key(request.URL, string(request.Render), string(request.Format), request.Profile)
	if cached, ok := a.cache.Get(ctx, key, a.cacheMaxAge(request)); ok {
		metrics.ObserveCacheLookup(true)
		hit := *cached
		hit.CacheStatus = "hit"
		return &hit, nil
	}
	metrics.ObserveCacheLookup(false)

	site := metrics.SanitizeSite(request.URL)

	response, retries, err := a.fetch(ctx, request, profile)
	if err != nil {
		metrics.ObserveFetch(site, "error", 0)
		metrics.ObserveAnalysis("error")
		return nil, err
	}
	metrics.ObserveFetch(site, "success", len(response.Body))

	extraction, err := a.parser.Parse(response.Body, response.FinalURL, request.Format)
	if err != nil {
		metrics.ObserveAnalysis("error")
		return nil, err
	}
	if profile != nil && len(profile.Selectors) > 0 {
		extraction.Fields = a.parser.ApplyProfile(response.Body, profile.Selectors)
		extraction.FieldCoverage = fieldCoverage(extraction.Fields)
	}

	contentHash, err := a.hasher.Hash(response.Body)
	if err != nil {
		return nil, agent.NewError(agent.CodeInternal, "hash content", err)
	}
	id, err := a.ids.NewID()
	if err != nil {
		return nil, agent.NewError(agent.CodeInternal, "generate analysis id", err)
	}

	now := a.clock.Now().UTC()
	result := &agent.AnalysisResult{
		ID:         id,
		Extraction: extraction,
		Page: agent.PageInfo{
			URL:          request.URL,
			FinalURL:     response.FinalURL,
			StatusCode:   response.StatusCode,
			UsedHeadless: response.UsedHeadless,
			FetchedAt:    now,
			DurationMs:   response.Duration.Milliseconds(),
			ContentHash:  contentHash,
			Bytes:        len(response.Body),
			Retries:      retries,
		},
		CacheStatus: "miss",
	}
	metrics.ObserveAnalysis("success")

	a.cache.Set(ctx, key, result)
	a.record(ctx, request, result, now)
	a.publish(ctx, request, result, now)

	return result, nil
}

// normalize validates the request and fills in defaults. The returned
// profile is nil when none was requested.
func (a *Agent) normalize(request agent.AnalyzeRequest) (agent.AnalyzeRequest, *config.ProfileConfig, error) {
	request.URL = strings.TrimSpace(request.URL)
	if request.URL == "" {
		return request, nil, agent.NewError(agent.CodeInvalidInput, "url is required", nil)
	}
	parsed, err := url.Parse(request.URL)
	if err != nil {
		return request, nil, agent.NewError(agent.CodeInvalidInput, fmt.Sprintf("invalid url %q", request.URL), err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return request, nil, agent.NewError(agent.CodeInvalidInput, fmt.Sprintf("unsupported scheme %q", parsed.Scheme), nil)
	}
	if parsed.Host == "" {
		return request, nil, agent.NewError(agent.CodeInvalidInput, fmt.Sprintf("url %q has no host", request.URL), nil)
	}

	switch request.Render {
	case "":
		request.Render = agent.RenderAuto
	case agent.RenderAuto, agent.RenderHTTP, agent.RenderHeadless:
	default:
		return request, nil, agent.NewError(agent.CodeInvalidInput, fmt.Sprintf("unknown render mode %q", request.Render), nil)
	}
	if request.Render == agent.RenderHeadless && a.headless == nil {
		return request, nil, agent.NewError(agent.CodeInvalidInput, "headless rendering is not enabled", nil)
	}

	switch request.Format {
	case "":
		request.Format = agent.FormatText
	case agent.FormatText, agent.FormatMarkdown, agent.FormatHTML:
	default:
		return request, nil, agent.NewError(agent.CodeInvalidInput, fmt.Sprintf("unknown output format %q", request.Format), nil)
	}

	var profile *config.ProfileConfig
	if request.Profile != "" {
		p, ok := a.profiles[request.Profile]
		if !ok {
			return request, nil, agent.NewError(agent.CodeInvalidInput, fmt.Sprintf("unknown profile %q", request.Profile), nil)
		}
		profile = &p
	}
	return request, profile, nil
}

func (a *Agent) cacheMaxAge(request agent.AnalyzeRequest) time.Duration {
	switch {
	case request.CacheMaxAge < 0:
		return 0
	case request.CacheMaxAge == 0:
		return defaultCacheMaxAge
	default:
		return time.Duration(request.CacheMaxAge) * time.Second
	}
}

// fetch runs admission control and the retry loop, promoting to headless
// rendering when the probe looks like a client-rendered shell.
func (a *Agent) fetch(ctx context.Context, request agent.AnalyzeRequest, profile *config.ProfileConfig) (agent.FetchResponse, int, error) {
	if a.gate != nil {
		if err := a.gate.Wait(ctx, request.URL); err != nil {
			return agent.FetchResponse{}, 0, err
		}
		if err := a.gate.Allow(request.URL); err != nil {
			return agent.FetchResponse{}, 0, err
		}
	}

	fetchReq := agent.FetchRequest{
		URL:         request.URL,
		Headers:     mergeHeaders(request.Headers, profile),
		UseHeadless: request.Render == agent.RenderHeadless,
	}
	fetcher := a.fetcher
	if fetchReq.UseHeadless {
		fetcher = a.headless
	}

	var (
		response agent.FetchResponse
		err      error
		retries  int
	)
	for attempt := 0; ; attempt++ {
		response, err = fetcher.Fetch(ctx, fetchReq)
		if err == nil || a.retry == nil || !a.retry.ShouldRetry(err, attempt) {
			break
		}
		retries++

		select {
		case <-ctx.Done():
			err = &agent.FetchError{URL: request.URL, Timeout: errors.Is(ctx.Err(), context.DeadlineExceeded), Err: ctx.Err()}
		case <-time.After(a.retry.Backoff(attempt)):
			continue
		}
		break
	}
	if a.gate != nil {
		a.gate.Report(request.URL, err)
	}
	if err != nil {
		return response, retries, err
	}

	if request.Render == agent.RenderAuto && a.headless != nil && a.detector != nil && a.detector.ShouldPromote(response) {
		metrics.ObserveHeadlessPromotion()
		fetchReq.UseHeadless = true
		rendered, headlessErr := a.headless.Fetch(ctx, fetchReq)
		if headlessErr != nil {
			// Keep the probe result; rendering failures must not lose a
			// perfectly good HTTP response.
			a.logger.Warn("headless promotion failed",
				zap.String("url", request.URL),
				zap.Error(headlessErr))
		} else {
			response = rendered
		}
	}

	return response, retries, nil
}

func (a *Agent) record(ctx context.Context, request agent.AnalyzeRequest, result *agent.AnalysisResult, now time.Time) {
	if request.SkipHistory {
		return
	}
	record := agent.HistoryRecord{
		ID:          result.ID,
		URL:         result.Page.URL,
		FinalURL:    result.Page.FinalURL,
		StatusCode:  result.Page.StatusCode,
		Title:       result.Extraction.Title,
		ContentHash: result.Page.ContentHash,
		Language:    result.Extraction.Language,
		Headless:    result.Page.UsedHeadless,
		DurationMs:  result.Page.DurationMs,
		AnalyzedAt:  now,
	}
	if err := a.history.Record(ctx, record); err != nil {
		a.logger.Warn("record history", zap.String("url", result.Page.URL), zap.Error(err))
	}
}

func (a *Agent) publish(ctx context.Context, request agent.AnalyzeRequest, result *agent.AnalysisResult, now time.Time) {
	if request.SkipEvents {
		return
	}
	event := agent.Event{
		ID:          result.ID,
		URL:         result.Page.URL,
		StatusCode:  result.Page.StatusCode,
		ContentHash: result.Page.ContentHash,
		Headless:    result.Page.UsedHeadless,
		Timestamp:   now,
	}
	if _, err := a.events.Publish(ctx, event); err != nil {
		a.logger.Warn("publish event", zap.String("url", result.Page.URL), zap.Error(err))
	}
}

// RecentHistory lists the latest analysis records, newest first. With the
// default noop store this is always empty.
func (a *Agent) RecentHistory(ctx context.Context, limit int) ([]agent.HistoryRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	return a.history.Recent(ctx, limit)
}

// Status reports liveness plus the currently enabled capabilities. Computed
// per call; nothing here is persisted.
func (a *Agent) Status() agent.StatusInfo {
	capabilities := []string{"fetch", "parse", "cache", "export", "research"}
	if a.headless != nil {
		capabilities = append(capabilities, "headless")
	}

	return agent.StatusInfo{
		Status:        "active",
		Agent:         a.name,
		Version:       a.version,
		Port:          a.port,
		UptimeSeconds: int64(a.clock.Now().Sub(a.started).Seconds()),
		Capabilities:  capabilities,
		Endpoints: []string{
			"GET /",
			"GET /status",
			"GET|POST /test",
			"POST /v1/analyze",
			"POST /v1/export",
			"GET /v1/history",
			"GET /v1/research",
			"POST /v1/citations/parse",
			"POST /v1/intel/company",
			"GET /v1/intel/trends",
		},
	}
}

// fieldCoverage reports the share of profile fields that matched non-empty
// content.
func fieldCoverage(fields map[string]string) float64 {
	if len(fields) == 0 {
		return 0
	}
	filled := 0
	for _, v := range fields {
		if v != "" {
			filled++
		}
	}
	return float64(filled) / float64(len(fields))
}

// mergeHeaders folds profile headers under request headers; the request
// wins on conflict.
func mergeHeaders(requestHeaders map[string]string, profile *config.ProfileConfig) http.Header {
	if len(requestHeaders) == 0 && (profile == nil || len(profile.Headers) == 0) {
		return nil
	}
	headers := http.Header{}
	if profile != nil {
		for k, v := range profile.Headers {
			headers.Set(k, v)
		}
	}
	for k, v := range requestHeaders {
		headers.Set(k, v)
	}
	return headers
}
