// Package memory keeps analysis history in memory for development builds.
package memory

import (
	"context"
	"sync"

	"github.com/molaison/research-agent/internal/agent"
)

// Store holds history records in memory, newest last. It is safe for
// concurrent use.
type Store struct {
	mu      sync.RWMutex
	records []agent.HistoryRecord
	max     int
}

// New creates a memory store bounded at max records; older rows are dropped.
func New(max int) *Store {
	if max <= 0 {
		max = 1000
	}
	return &Store{max: max}
}

// Record appends a history row.
func (s *Store) Record(_ context.Context, rec agent.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	if len(s.records) > s.max {
		s.records = s.records[len(s.records)-s.max:]
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(_ context.Context, limit int) ([]agent.HistoryRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.records)
	if limit > n {
		limit = n
	}
	out := make([]agent.HistoryRecord, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}

// Close is a no-op.
func (s *Store) Close() {}
