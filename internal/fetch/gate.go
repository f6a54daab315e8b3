package fetch

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/molaison/research-agent/internal/agent"
	"github.com/molaison/research-agent/internal/metrics"
)

// GateConfig holds per-host admission settings.
type GateConfig struct {
	HostRPS          float64
	Burst            int
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// Gate implements agent.HostGate: a token bucket rate limiter plus a
// circuit breaker, both keyed by hostname.
type Gate struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	breakers map[string]*breaker
	cfg      GateConfig
	rateLim  rate.Limit
	burst    int
	now      func() time.Time
}

// NewGate creates a Gate. A non-positive HostRPS disables rate limiting.
func NewGate(cfg GateConfig) *Gate {
	r := rate.Limit(cfg.HostRPS)
	if cfg.HostRPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Gate{
		limiters: make(map[string]*rate.Limiter),
		breakers: make(map[string]*breaker),
		cfg:      cfg,
		rateLim:  r,
		burst:    burst,
		now:      time.Now,
	}
}

// Wait blocks until a token is available for the URL's host, respecting the
// context.
func (g *Gate) Wait(ctx context.Context, rawURL string) error {
	host := hostOf(rawURL)

	g.mu.Lock()
	limiter, ok := g.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(g.rateLim, g.burst)
		g.limiters[host] = limiter
	}
	g.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return agent.NewError(agent.CodeRateLimited, "rate limit wait", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, waited)
	}
	return nil
}

// Allow consults the host's circuit breaker.
func (g *Gate) Allow(rawURL string) error {
	host := hostOf(rawURL)
	if g.breakerFor(host).allow() {
		return nil
	}
	return agent.NewError(agent.CodeCircuitOpen,
		fmt.Sprintf("circuit open for host %s", host), nil)
}

// Report feeds a fetch outcome back into the breaker. A nil error closes
// the circuit; repeated failures open it.
func (g *Gate) Report(rawURL string, err error) {
	host := hostOf(rawURL)
	if opened := g.breakerFor(host).record(err != nil); opened {
		metrics.ObserveBreakerOpen(host)
	}
}

func (g *Gate) breakerFor(host string) *breaker {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.breakers[host]
	if !ok {
		b = newBreaker(g.cfg.BreakerThreshold, g.cfg.BreakerCooldown, g.now)
		g.breakers[host] = b
	}
	return b
}

// hostOf keys admission by the registrable domain, so sibling subdomains
// share one budget. IPs and unlisted suffixes fall back to the hostname.
func hostOf(rawURL string) string {
	if !strings.Contains(rawURL, "://") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	host := strings.ToLower(u.Hostname())
	if net.ParseIP(host) != nil {
		return host
	}
	if domain, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return domain
	}
	return host
}
