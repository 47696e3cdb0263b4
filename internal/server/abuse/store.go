// Package abuse throttles clients: fixed-window rate limits per endpoint and
// a login lockout with capped exponential backoff. Counters live in a Store,
// either Redis (shared between instances) or an in-process LRU.
package abuse

import (
	"context"
	"time"
)

// Store holds expiring counters and locks.
type Store interface {
	// Incr increments key, starting a window of the given length on the
	// first hit. It returns the new count and the time left in the window.
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)

	// SetLock marks key as locked for ttl.
	SetLock(ctx context.Context, key string, ttl time.Duration) error

	// LockTTL returns the remaining lock time of key, zero when unlocked.
	LockTTL(ctx context.Context, key string) (time.Duration, error)

	// Del removes keys. Missing keys are ignored.
	Del(ctx context.Context, keys ...string) error
}
