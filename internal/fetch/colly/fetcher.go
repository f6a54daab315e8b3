// Package collyfetcher implements agent.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/molaison/research-agent/internal/agent"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// MaxBodyBytes caps the response body read per request; zero keeps the
	// collector default.
	MaxBodyBytes int64
}

// Fetcher implements agent.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())
	if cfg.MaxBodyBytes > 0 {
		c.MaxBodySize = int(cfg.MaxBodyBytes)
	}

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET using Colly. Failures, including non-2xx
// statuses, come back as *agent.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, request agent.FetchRequest) (agent.FetchResponse, error) {
	var (
		result    agent.FetchResponse
		errStatus int
		fetchErr  error
	)
	start := time.Now()
	collector := f.buildCollector(request, start, &result, &errStatus, &fetchErr)

	if err := f.runCollector(ctx, collector, request.URL, &errStatus, &fetchErr); err != nil {
		return agent.FetchResponse{}, err
	}
	if result.StatusCode == 0 {
		return agent.FetchResponse{}, &agent.FetchError{URL: request.URL, Err: errors.New("no response received")}
	}
	return result, nil
}

func (f *Fetcher) buildCollector(
	request agent.FetchRequest,
	start time.Time,
	result *agent.FetchResponse,
	errStatus *int,
	fetchErr *error,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	f.configureCollectorHooks(collector, request, start, result, errStatus, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	request agent.FetchRequest,
	start time.Time,
	result *agent.FetchResponse,
	errStatus *int,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		f.copyHeaders(request, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = agent.FetchResponse{
			URL:          request.URL,
			FinalURL:     r.Request.URL.String(),
			StatusCode:   r.StatusCode,
			Headers:      r.Headers.Clone(),
			Body:         append([]byte(nil), r.Body...),
			Duration:     time.Since(start),
			UsedHeadless: false,
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			*errStatus = r.StatusCode
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(
	ctx context.Context,
	collector *colly.Collector,
	url string,
	errStatus *int,
	fetchErr *error,
) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return &agent.FetchError{
			URL:     url,
			Timeout: errors.Is(ctx.Err(), context.DeadlineExceeded),
			Err:     ctx.Err(),
		}
	case err := <-done:
		if err == nil {
			err = *fetchErr
		}
		if err != nil {
			return classifyError(url, *errStatus, err)
		}
		return nil
	}
}

func (f *Fetcher) copyHeaders(request agent.FetchRequest, r *colly.Request) {
	if request.Headers == nil {
		return
	}
	for key, values := range request.Headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

// classifyError maps a Colly failure to a FetchError. Non-2xx statuses
// arrive through OnError with the response status attached.
func classifyError(url string, status int, err error) *agent.FetchError {
	if status >= 300 {
		return &agent.FetchError{URL: url, StatusCode: status, Err: err}
	}
	var netErr net.Error
	timeout := errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout())
	return &agent.FetchError{URL: url, Timeout: timeout, Err: err}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
