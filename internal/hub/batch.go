// Package hub implements the batching engine that amortizes fan-out cost: a
// single consumer goroutine owns the pending queue and flushes it per room on
// a size-or-time trigger.
package hub

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// batcher accumulates validated messages and flushes when the queue reaches
// size or interval has passed since the first unflushed enqueue, whichever
// comes first. Because one goroutine owns both the queue and the timer, the
// size path and the timer path can never race a double flush.
type batcher struct {
	in       chan *Message
	quit     chan struct{}
	done     chan struct{}
	size     int
	interval time.Duration
	deliver  func(room string, msgs []*Message)
	log      *zap.Logger
	draining atomic.Bool
}

func newBatcher(size int, interval time.Duration, deliver func(string, []*Message), log *zap.Logger) *batcher {
	return &batcher{
		in:       make(chan *Message, size),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		size:     size,
		interval: interval,
		deliver:  deliver,
		log:      log,
	}
}

// enqueue hands m to the consumer. The send blocks when the intake buffer is
// full, which is the backpressure that keeps producers honest. It reports
// false once the batcher is draining.
func (b *batcher) enqueue(m *Message) bool {
	if b.draining.Load() {
		return false
	}
	b.in <- m
	return true
}

// run is the consumer loop. The flush timer is armed only while the queue is
// non-empty and stopped on every flush, so it fires exactly once per batch
// lifetime.
func (b *batcher) run() {
	defer close(b.done)

	timer := time.NewTimer(b.interval)
	stopTimer(timer)

	var pending []*Message
	for {
		select {
		case m := <-b.in:
			if len(pending) == 0 {
				timer.Reset(b.interval)
			}
			pending = append(pending, m)
			if len(pending) >= b.size {
				stopTimer(timer)
				b.flush(pending)
				pending = nil
			}

		case <-timer.C:
			if len(pending) > 0 {
				b.flush(pending)
				pending = nil
			}

		case <-b.quit:
			stopTimer(timer)
			// Drain whatever producers managed to queue, then flush once.
			for {
				select {
				case m := <-b.in:
					pending = append(pending, m)
					continue
				default:
				}
				break
			}
			if len(pending) > 0 {
				b.flush(pending)
			}
			return
		}
	}
}

// close stops intake, flushes any pending messages, and waits for the
// consumer to exit.
func (b *batcher) close() {
	if b.draining.CompareAndSwap(false, true) {
		close(b.quit)
	}
	<-b.done
}

// flush partitions the batch by room, preserving first-seen room order, and
// delivers each partition in isolation: one room's failure never blocks the
// others.
func (b *batcher) flush(pending []*Message) {
	byRoom := make(map[string][]*Message)
	var order []string
	for _, m := range pending {
		if _, ok := byRoom[m.Room]; !ok {
			order = append(order, m.Room)
		}
		byRoom[m.Room] = append(byRoom[m.Room], m)
	}

	for _, name := range order {
		b.deliverRoom(name, byRoom[name])
	}
}

func (b *batcher) deliverRoom(room string, msgs []*Message) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("recovered from panic delivering room batch",
				zap.String("room", room), zap.Any("panic", r))
		}
	}()

	b.deliver(room, msgs)
}

// stopTimer stops t and drains a fire that already landed in the channel.
func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
