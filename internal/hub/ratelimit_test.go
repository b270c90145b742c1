package hub

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Tyrowin/pulsehub/internal/cache"
)

// brokenCache fails every operation, standing in for an unreachable backend.
type brokenCache struct{}

func (brokenCache) Increment(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("cache offline")
}

func (brokenCache) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("cache offline")
}

func (brokenCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("cache offline")
}

func (brokenCache) Close() error { return nil }

// TestLimiterExactBudget verifies that exactly max events pass, the next one
// is rejected, and a fresh window admits traffic again. The rejected attempt
// still consumes budget, so hammering a full window never helps.
func TestLimiterExactBudget(t *testing.T) {
	now := time.Unix(1700000000, 0)
	mem := cache.NewMemory()
	mem.SetClock(func() time.Time { return now })

	lim := newAddressLimiter(mem, time.Minute, 3, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, lim.allow(ctx, "10.0.0.1:5000"), "event %d should be admitted", i)
	}

	err := lim.allow(ctx, "10.0.0.1:5000")
	assert.ErrorIs(t, err, ErrRateLimitExceeded)

	// The rejection counted too: the window now holds 4 events, so even the
	// next attempt right before expiry stays rejected.
	now = now.Add(59 * time.Second)
	assert.ErrorIs(t, lim.allow(ctx, "10.0.0.1:5000"), ErrRateLimitExceeded)

	now = now.Add(2 * time.Second)
	assert.NoError(t, lim.allow(ctx, "10.0.0.1:5000"),
		"a fresh window should admit traffic again")
}

// TestLimiterSharesBudgetPerHost verifies that the port is stripped, so every
// connection from one source address draws on the same counter, while other
// hosts keep their own.
func TestLimiterSharesBudgetPerHost(t *testing.T) {
	lim := newAddressLimiter(cache.NewMemory(), time.Minute, 2, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, lim.allow(ctx, "10.0.0.1:5000"))
	require.NoError(t, lim.allow(ctx, "10.0.0.1:5001"))
	assert.ErrorIs(t, lim.allow(ctx, "10.0.0.1:5002"), ErrRateLimitExceeded)

	assert.NoError(t, lim.allow(ctx, "10.0.0.2:5000"),
		"another host has an independent budget")
}

// TestLimiterAdmitsOnCacheFailure verifies the availability choice: when the
// cache is unreachable the limiter admits the event instead of refusing all
// traffic.
func TestLimiterAdmitsOnCacheFailure(t *testing.T) {
	lim := newAddressLimiter(brokenCache{}, time.Minute, 1, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		assert.NoError(t, lim.allow(ctx, "10.0.0.1:5000"))
	}
}

// TestHostOnly verifies the address normalization feeding the counter key.
func TestHostOnly(t *testing.T) {
	assert.Equal(t, "10.0.0.1", hostOnly("10.0.0.1:5000"))
	assert.Equal(t, "::1", hostOnly("[::1]:8080"))
	assert.Equal(t, "plainhost", hostOnly("plainhost"))
}
