// Package cache provides the in-process Cache used for single-instance
// deployments and tests.
package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	count     int64
	expiresAt time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Memory implements Cache with a mutex-guarded map. Expired entries are
// dropped lazily on access. The time source is replaceable so tests can
// advance expiry without sleeping.
type Memory struct {
	mu   sync.Mutex
	data map[string]*memoryEntry
	now  func() time.Time
}

// NewMemory returns an empty in-process cache using the wall clock.
func NewMemory() *Memory {
	return &Memory{
		data: make(map[string]*memoryEntry),
		now:  time.Now,
	}
}

// SetClock replaces the time source used for expiry checks.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// live returns the entry at key if it exists and has not expired, dropping it
// otherwise. Callers must hold m.mu.
func (m *Memory) live(key string) *memoryEntry {
	entry, ok := m.data[key]
	if !ok {
		return nil
	}
	if entry.expired(m.now()) {
		delete(m.data, key)
		return nil
	}
	return entry
}

// Increment adds one to the counter at key, creating it with the given
// expiry on first use. The expiry of an existing counter is left untouched.
func (m *Memory) Increment(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := m.live(key)
	if entry == nil {
		entry = &memoryEntry{}
		if ttl > 0 {
			entry.expiresAt = m.now().Add(ttl)
		}
		m.data[key] = entry
	}

	entry.count++
	return entry.count, nil
}

// Get returns the value at key, or ErrNotFound once it has expired.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := m.live(key)
	if entry == nil {
		return nil, ErrNotFound
	}

	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, nil
}

// Set stores value at key with the given expiry, replacing any previous
// value, counter, and TTL.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := &memoryEntry{value: make([]byte, len(value))}
	copy(entry.value, value)
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.data[key] = entry
	return nil
}

// Close discards all entries.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]*memoryEntry)
	return nil
}
