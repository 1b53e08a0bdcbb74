// Package cache provides the key-value collaborator contract the engine's
// callers use to persist computed results. The engine core itself performs
// no I/O; caching happens in the outer shell.
package cache

import (
	"context"
	"time"
)

// Cache is the store contract: get, set with TTL, invalidate by pattern.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the value stored under key, or false when absent or expired.
	Get(ctx context.Context, key string) (interface{}, bool)
	// Set stores value under key for ttl. A non-positive ttl stores forever.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration)
	// InvalidatePattern removes all keys matching the glob-style pattern
	// ("normalize:*") and returns how many were removed.
	InvalidatePattern(ctx context.Context, pattern string) int
}
