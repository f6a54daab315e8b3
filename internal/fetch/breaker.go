package fetch

import (
	"sync"
	"time"
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// breaker is a per-host circuit breaker. After threshold consecutive
// failures it opens for cooldown; the first request after cooldown probes
// in half-open, and its outcome decides whether the circuit closes again.
type breaker struct {
	mu        sync.Mutex
	state     breakerState
	failures  int
	threshold int
	cooldown  time.Duration
	openedAt  time.Time
	now       func() time.Time
}

func newBreaker(threshold int, cooldown time.Duration, now func() time.Time) *breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &breaker{threshold: threshold, cooldown: cooldown, now: now}
}

// allow reports whether a request may proceed. It transitions open circuits
// to half-open once the cooldown has elapsed.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case breakerClosed:
		return true
	case breakerOpen:
		if b.now().Sub(b.openedAt) >= b.cooldown {
			b.state = breakerHalfOpen
			return true
		}
		return false
	case breakerHalfOpen:
		return true
	}
	return true
}

// record feeds an outcome back. It returns true when the circuit just
// transitioned to open so the caller can count the event.
func (b *breaker) record(failed bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !failed {
		b.state = breakerClosed
		b.failures = 0
		return false
	}
	if b.state == breakerHalfOpen {
		b.state = breakerOpen
		b.openedAt = b.now()
		return true
	}
	b.failures++
	if b.failures >= b.threshold && b.state == breakerClosed {
		b.state = breakerOpen
		b.openedAt = b.now()
		return true
	}
	return false
}
