package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/molaison/research-agent/internal/agent"
)

// Redis caches analysis results in Redis as JSON with a server-side TTL.
// Get still enforces the caller's maxAge against the stored timestamp, so a
// request with a tight freshness bound never sees stale entries.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

type redisEntry struct {
	Result    *agent.AnalysisResult `json:"result"`
	CreatedAt time.Time             `json:"created_at"`
}

// NewRedis creates a Redis cache.
func NewRedis(addr, prefix string, ttl time.Duration, logger *zap.Logger) *Redis {
	if prefix == "" {
		prefix = "agent:cache:"
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Redis{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: prefix,
		ttl:    ttl,
		logger: logger,
	}
}

// Get retrieves a cached result younger than maxAge. Redis failures are
// logged and treated as misses.
func (c *Redis) Get(ctx context.Context, key string, maxAge time.Duration) (*agent.AnalysisResult, bool) {
	if maxAge <= 0 {
		return nil, false
	}

	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("redis cache get failed", zap.Error(err))
		}
		return nil, false
	}

	var entry redisEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.logger.Warn("redis cache entry corrupt", zap.Error(err))
		return nil, false
	}
	if time.Since(entry.CreatedAt) > maxAge {
		return nil, false
	}
	return entry.Result, true
}

// Set stores a result with the configured TTL. Failures are logged; caching
// is best effort.
func (c *Redis) Set(ctx context.Context, key string, result *agent.AnalysisResult) {
	raw, err := json.Marshal(redisEntry{Result: result, CreatedAt: time.Now()})
	if err != nil {
		c.logger.Warn("redis cache marshal failed", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("redis cache set failed", zap.Error(err))
	}
}

// Close closes the Redis client.
func (c *Redis) Close() error {
	return c.client.Close()
}
