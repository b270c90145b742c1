// Package hub enforces the per-source-address rate limit shared across hub
// instances through the cache collaborator.
package hub

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/Tyrowin/pulsehub/internal/cache"
)

// addressLimiter counts events per source address in a fixed rolling window.
// The counter lives in the cache, so every hub instance sees the same budget
// for an address. Rejected events are counted too; retrying into a full
// window only pushes recovery further out.
type addressLimiter struct {
	cache  cache.Cache
	window time.Duration
	max    int64
	log    *zap.Logger
}

func newAddressLimiter(c cache.Cache, window time.Duration, max int64, log *zap.Logger) *addressLimiter {
	return &addressLimiter{cache: c, window: window, max: max, log: log}
}

// allow records one event for addr and fails with ErrRateLimitExceeded once
// the address is over budget. A cache outage admits the event: losing rate
// limiting for a while beats dropping all traffic.
func (l *addressLimiter) allow(ctx context.Context, addr string) error {
	key := "ratelimit:" + hostOnly(addr)

	count, err := l.cache.Increment(ctx, key, l.window)
	if err != nil {
		l.log.Warn("rate limit cache unavailable, admitting event",
			zap.String("addr", addr), zap.Error(err))
		return nil
	}

	if count > l.max {
		return fmt.Errorf("%w: %s sent %d events in the current window (limit %d)",
			ErrRateLimitExceeded, addr, count, l.max)
	}
	return nil
}

// hostOnly strips the port so every connection from one host shares a budget.
func hostOnly(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
