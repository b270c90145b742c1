// Package hub throttles high-frequency ephemeral signals such as typing
// indicators so a noisy client cannot flood its rooms.
package hub

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// eventThrottle limits an event stream to one fire per interval. The first
// event in a window runs immediately; later events in the same window are
// coalesced into a single trailing run at window end, so the most recent
// event is never silently lost.
type eventThrottle struct {
	mu      sync.Mutex
	lim     *rate.Limiter
	pending func()
	timer   *time.Timer
}

func newEventThrottle(interval time.Duration) *eventThrottle {
	if interval <= 0 {
		interval = time.Second
	}
	return &eventThrottle{lim: rate.NewLimiter(rate.Every(interval), 1)}
}

// fire runs fn now if the window is open, otherwise schedules it for the end
// of the window, replacing any previously scheduled fn.
func (t *eventThrottle) fire(fn func()) {
	t.mu.Lock()
	if t.lim.Allow() {
		t.mu.Unlock()
		fn()
		return
	}

	t.pending = fn
	if t.timer == nil {
		// Reserve consumes the next token, so the trailing run keeps the
		// one-per-interval cadence for whatever follows it.
		delay := t.lim.Reserve().Delay()
		t.timer = time.AfterFunc(delay, t.runPending)
	}
	t.mu.Unlock()
}

func (t *eventThrottle) runPending() {
	t.mu.Lock()
	fn := t.pending
	t.pending = nil
	t.timer = nil
	t.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// stop cancels any scheduled trailing run.
func (t *eventThrottle) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.pending = nil
}
