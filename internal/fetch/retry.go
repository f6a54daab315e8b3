// Package fetch contains the fetch-side policies of the agent: retry with
// jittered backoff and per-host admission control (rate limiting plus a
// circuit breaker).
package fetch

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"net"
	"net/http"
	"time"

	"github.com/molaison/research-agent/internal/agent"
)

// ExponentialRetryPolicy implements agent.RetryPolicy with jittered backoff.
type ExponentialRetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewExponentialRetryPolicy builds a policy with the given attempt cap.
// Non-positive arguments fall back to defaults.
func NewExponentialRetryPolicy(maxAttempts int, baseDelay, maxDelay time.Duration) *ExponentialRetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = 250 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}
	return &ExponentialRetryPolicy{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
	}
}

// ShouldRetry decides whether the error is retryable.
func (p *ExponentialRetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.maxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var fetchErr *agent.FetchError
	if errors.As(err, &fetchErr) {
		if fetchErr.Timeout {
			return true
		}
		if fetchErr.StatusCode != 0 {
			return retryableStatus(fetchErr.StatusCode)
		}
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return true
}

// Backoff returns the wait duration before the next attempt.
func (p *ExponentialRetryPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	jitter := p.randomJitter(time.Duration(delay) / 2)
	return time.Duration(delay/2) + jitter
}

func (p *ExponentialRetryPolicy) randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

// retryableStatus reports whether a second attempt can change the outcome.
// Rate limiting and server-side errors are transient; the remaining 4xx
// statuses are not.
func retryableStatus(status int) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	return status >= 500 && status != http.StatusNotImplemented
}
