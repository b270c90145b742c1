// Package hub aggregates throughput, latency, and error counters into
// periodic snapshots.
package hub

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot is one stats interval's aggregated view. TotalConnections and
// ActiveRooms are read live at snapshot time; the rates are computed from
// counters that reset every interval.
type Snapshot struct {
	TotalConnections  int       `json:"totalConnections"`
	ActiveRooms       int       `json:"activeRooms"`
	MessagesPerSecond float64   `json:"messagesPerSecond"`
	AverageLatencyMs  float64   `json:"averageLatencyMs"`
	ErrorRate         float64   `json:"errorRate"`
	TakenAt           time.Time `json:"takenAt"`
}

// statsCollector accumulates counters between snapshots. Counting methods
// are safe to call from any goroutine.
type statsCollector struct {
	messages  atomic.Int64
	errors    atomic.Int64
	latencyNS atomic.Int64
	latencyN  atomic.Int64

	mu      sync.Mutex
	started time.Time
	last    Snapshot
}

func newStatsCollector() *statsCollector {
	return &statsCollector{started: time.Now()}
}

func (s *statsCollector) countMessage() {
	s.messages.Add(1)
}

func (s *statsCollector) countError() {
	s.errors.Add(1)
}

func (s *statsCollector) observeLatency(d time.Duration) {
	s.latencyNS.Add(int64(d))
	s.latencyN.Add(1)
}

// snapshot closes the current interval: it computes the rates, resets the
// counters, and records the result. An interval without latency samples
// keeps the previous average instead of reporting zero.
func (s *statsCollector) snapshot(connections, rooms int) Snapshot {
	messages := s.messages.Swap(0)
	errors := s.errors.Swap(0)
	latencySum := s.latencyNS.Swap(0)
	latencyCount := s.latencyN.Swap(0)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	elapsedMs := now.Sub(s.started).Milliseconds()
	if elapsedMs <= 0 {
		elapsedMs = 1
	}
	s.started = now

	snap := Snapshot{
		TotalConnections:  connections,
		ActiveRooms:       rooms,
		MessagesPerSecond: float64(messages) / float64(elapsedMs) * 1000,
		ErrorRate:         float64(errors) / float64(elapsedMs) * 1000,
		AverageLatencyMs:  s.last.AverageLatencyMs,
		TakenAt:           now,
	}
	if latencyCount > 0 {
		snap.AverageLatencyMs = float64(latencySum) / float64(latencyCount) / float64(time.Millisecond)
	}

	s.last = snap
	return snap
}

// current returns the most recent snapshot without closing the interval.
func (s *statsCollector) current() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
