// Package hub keeps a bounded ring of recently delivered messages per room so
// late joiners can be brought up to speed.
package hub

import "sync"

// replayBuffer is a fixed-capacity FIFO ring of delivered messages. When
// full, each add evicts the oldest entry. Order is delivery order.
type replayBuffer struct {
	mu   sync.Mutex
	buf  []*Message
	head int
	size int
}

func newReplayBuffer(capacity int) *replayBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &replayBuffer{buf: make([]*Message, capacity)}
}

func (r *replayBuffer) add(m *Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size < len(r.buf) {
		r.buf[(r.head+r.size)%len(r.buf)] = m
		r.size++
		return
	}

	r.buf[r.head] = m
	r.head = (r.head + 1) % len(r.buf)
}

// last returns up to n of the most recent messages, oldest first.
func (r *replayBuffer) last(n int) []*Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n > r.size {
		n = r.size
	}
	if n <= 0 {
		return nil
	}

	out := make([]*Message, 0, n)
	for i := r.size - n; i < r.size; i++ {
		out = append(out, r.buf[(r.head+i)%len(r.buf)])
	}
	return out
}

func (r *replayBuffer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}
