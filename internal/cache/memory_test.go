package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manualClock is a controllable time source for expiry tests.
type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time {
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestMemory() (*Memory, *manualClock) {
	clock := &manualClock{now: time.Unix(1700000000, 0)}
	m := NewMemory()
	m.SetClock(clock.Now)
	return m, clock
}

// TestMemoryIncrementFixedWindow verifies that a counter accumulates within
// its window and resets only after the window created by the first increment
// expires.
func TestMemoryIncrementFixedWindow(t *testing.T) {
	m, clock := newTestMemory()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		count, err := m.Increment(ctx, "counter", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, count)
	}

	// Later increments must not push the expiry out.
	clock.Advance(59 * time.Second)
	count, err := m.Increment(ctx, "counter", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)

	clock.Advance(2 * time.Second)
	count, err = m.Increment(ctx, "counter", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "window should have expired and restarted")
}

// TestMemoryGetSet verifies value storage, overwrite, and expiry behavior.
func TestMemoryGetSet(t *testing.T) {
	m, clock := newTestMemory()
	ctx := context.Background()

	_, err := m.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Set(ctx, "key", []byte("first"), time.Minute))
	value, err := m.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), value)

	// Last write wins and refreshes the TTL.
	clock.Advance(30 * time.Second)
	require.NoError(t, m.Set(ctx, "key", []byte("second"), time.Minute))
	clock.Advance(45 * time.Second)
	value, err = m.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), value)

	clock.Advance(16 * time.Second)
	_, err = m.Get(ctx, "key")
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestMemoryZeroTTL verifies that entries written without a TTL never expire.
func TestMemoryZeroTTL(t *testing.T) {
	m, clock := newTestMemory()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "pinned", []byte("v"), 0))
	clock.Advance(24 * time.Hour)

	value, err := m.Get(ctx, "pinned")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), value)
}

// TestMemoryGetReturnsCopy verifies that mutating a returned value does not
// corrupt the stored entry.
func TestMemoryGetReturnsCopy(t *testing.T) {
	m, _ := newTestMemory()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "key", []byte("abc"), 0))
	value, err := m.Get(ctx, "key")
	require.NoError(t, err)
	value[0] = 'x'

	again, err := m.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}

// TestMemorySetResetsCounter verifies that Set replaces any counter state at
// the key, mirroring the behavior of a Redis SET over an INCR key.
func TestMemorySetResetsCounter(t *testing.T) {
	m, _ := newTestMemory()
	ctx := context.Background()

	_, err := m.Increment(ctx, "key", time.Minute)
	require.NoError(t, err)
	require.NoError(t, m.Set(ctx, "key", []byte("v"), time.Minute))

	count, err := m.Increment(ctx, "key", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
