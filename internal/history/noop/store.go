// Package noop discards analysis history. It is the default: nothing is
// persisted between requests unless history is explicitly configured.
package noop

import (
	"context"

	"github.com/molaison/research-agent/internal/agent"
)

// Store drops every record.
type Store struct{}

// New creates a discarding history store.
func New() Store {
	return Store{}
}

// Record drops the row.
func (Store) Record(_ context.Context, _ agent.HistoryRecord) error {
	return nil
}

// Recent always returns an empty slice.
func (Store) Recent(_ context.Context, _ int) ([]agent.HistoryRecord, error) {
	return nil, nil
}

// Close is a no-op.
func (Store) Close() {}
