package cache

import (
	"context"
	"sync"
	"time"

	"github.com/molaison/research-agent/internal/agent"
)

type memoryEntry struct {
	result    *agent.AnalysisResult
	createdAt time.Time
}

// Memory is an in-memory cache, safe for concurrent use. When full it
// evicts an arbitrary entry (map iteration order is random).
type Memory struct {
	mu         sync.RWMutex
	store      map[string]*memoryEntry
	maxEntries int
	stop       chan struct{}
	now        func() time.Time
}

// NewMemory creates a Memory cache with the given capacity. A background
// goroutine evicts entries older than an hour every five minutes.
func NewMemory(maxEntries int) *Memory {
	if maxEntries <= 0 {
		maxEntries = 512
	}
	c := &Memory{
		store:      make(map[string]*memoryEntry),
		maxEntries: maxEntries,
		stop:       make(chan struct{}),
		now:        time.Now,
	}
	go c.cleanupLoop()
	return c
}

// Get retrieves a cached result younger than maxAge. A non-positive maxAge
// skips the lookup entirely.
func (c *Memory) Get(_ context.Context, key string, maxAge time.Duration) (*agent.AnalysisResult, bool) {
	if maxAge <= 0 {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if c.now().Sub(e.createdAt) > maxAge {
		return nil, false
	}
	return e.result, true
}

// Set stores a result, evicting an arbitrary entry when at capacity.
func (c *Memory) Set(_ context.Context, key string, result *agent.AnalysisResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.store) >= c.maxEntries {
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}
	c.store[key] = &memoryEntry{result: result, createdAt: c.now()}
}

// Close stops the cleanup goroutine.
func (c *Memory) Close() {
	close(c.stop)
}

func (c *Memory) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.evictExpired(time.Hour)
		case <-c.stop:
			return
		}
	}
}

func (c *Memory) evictExpired(maxAge time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := c.now().Add(-maxAge)
	for k, e := range c.store {
		if e.createdAt.Before(cutoff) {
			delete(c.store, k)
		}
	}
}
