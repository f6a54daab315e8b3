package agent

import (
	"context"
	"io"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// HeadlessDetector decides whether a headless fetch is warranted after a
// plain HTTP probe.
type HeadlessDetector interface {
	ShouldPromote(probe FetchResponse) bool
}

// RetryPolicy governs re-fetching after transient failures.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// HostGate performs per-host admission control before a fetch. Wait blocks
// for rate limiting; Allow consults the circuit breaker. Report feeds the
// outcome back.
type HostGate interface {
	Wait(ctx context.Context, url string) error
	Allow(url string) error
	Report(url string, err error)
}

// Cache stores analysis results keyed by request shape.
type Cache interface {
	Get(ctx context.Context, key string, maxAge time.Duration) (*AnalysisResult, bool)
	Set(ctx context.Context, key string, result *AnalysisResult)
}

// BlobStore writes exported artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// HistoryStore persists analysis records across requests when configured.
type HistoryStore interface {
	Record(ctx context.Context, rec HistoryRecord) error
	Recent(ctx context.Context, limit int) ([]HistoryRecord, error)
	Close()
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, payload any) (string, error)
}

// Hasher computes digests for deduplication/integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces analysis IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
