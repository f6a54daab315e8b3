package cache

import (
	"context"
	"time"

	"github.com/molaison/research-agent/internal/agent"
)

// Off is a disabled cache: every lookup misses.
type Off struct{}

// NewOff creates a disabled cache.
func NewOff() Off {
	return Off{}
}

// Get always misses.
func (Off) Get(_ context.Context, _ string, _ time.Duration) (*agent.AnalysisResult, bool) {
	return nil, false
}

// Set drops the result.
func (Off) Set(_ context.Context, _ string, _ *agent.AnalysisResult) {}
