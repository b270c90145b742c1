// Package broker provides the in-process Broker used for single-instance
// deployments and tests.
package broker

import (
	"context"
	"sync"
)

// Memory implements Broker inside a single process. Published payloads are
// delivered synchronously to every subscriber, which keeps test assertions
// deterministic.
type Memory struct {
	mu       sync.RWMutex
	handlers []Handler
	closed   bool
}

// NewMemory returns an in-process broker with no subscribers.
func NewMemory() *Memory {
	return &Memory{}
}

// Publish delivers payload to every subscribed handler.
func (m *Memory) Publish(_ context.Context, topic string, payload []byte) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	handlers := make([]Handler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.RUnlock()

	for _, h := range handlers {
		h(topic, payload)
	}
	return nil
}

// Subscribe registers h for all future publishes.
func (m *Memory) Subscribe(_ context.Context, h Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.handlers = append(m.handlers, h)
	return nil
}

// Close drops all subscribers and rejects further publishes.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.handlers = nil
	return nil
}
