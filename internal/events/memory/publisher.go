// Package memory contains an in-memory publisher for tests.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Publisher stores published payloads for inspection.
type Publisher struct {
	mu       sync.RWMutex
	messages []any
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the payload and returns a pseudo ID.
func (p *Publisher) Publish(_ context.Context, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, payload)
	return fmt.Sprintf("memory-%d", len(p.messages)), nil
}

// Messages returns the recorded publishes.
func (p *Publisher) Messages() []any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]any, len(p.messages))
	copy(out, p.messages)
	return out
}
