// Package cache provides analysis result caches: an in-memory TTL cache, a
// Redis-backed cache, and a disabled variant. Lookups are keyed by the
// request shape so different render or format options never collide.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// Key generates a cache key from the request parts that change the result.
func Key(url, render, format, profile string) string {
	h := sha256.New()
	h.Write([]byte(url))
	h.Write([]byte("|"))
	h.Write([]byte(render))
	h.Write([]byte("|"))
	h.Write([]byte(format))
	h.Write([]byte("|"))
	h.Write([]byte(profile))
	return hex.EncodeToString(h.Sum(nil))
}
