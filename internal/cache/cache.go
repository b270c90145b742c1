// Package cache defines the expiring key-value store the hub relies on for
// rate-limit counters and presence records, with Redis and in-memory
// implementations.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or has expired.
var ErrNotFound = errors.New("cache: key not found")

// Cache is the collaborator boundary for TTL-scoped state. Increment must be
// atomic so that counters shared between hub instances stay consistent. The
// TTL passed to Increment applies only when the call creates the key; later
// increments leave the original expiry in place, giving fixed-window
// semantics.
type Cache interface {
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}
