package hub

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// flushRecorder collects every flushed sub-batch so tests can assert on what
// the batcher delivered and when.
type flushRecorder struct {
	mu      sync.Mutex
	flushes []flushedBatch
	notify  chan struct{}
}

type flushedBatch struct {
	room string
	msgs []*Message
}

func newFlushRecorder() *flushRecorder {
	return &flushRecorder{notify: make(chan struct{}, 64)}
}

func (r *flushRecorder) deliver(room string, msgs []*Message) {
	r.mu.Lock()
	r.flushes = append(r.flushes, flushedBatch{room: room, msgs: msgs})
	r.mu.Unlock()
	r.notify <- struct{}{}
}

func (r *flushRecorder) snapshot() []flushedBatch {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]flushedBatch, len(r.flushes))
	copy(out, r.flushes)
	return out
}

func (r *flushRecorder) waitForFlush(t *testing.T, timeout time.Duration) {
	t.Helper()
	select {
	case <-r.notify:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for a flush")
	}
}

func batchMessage(room string, i int) *Message {
	return newMessage(EventMessage, json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)), "sender", room)
}

// TestBatcherFlushesOnSize verifies that the queue flushes as soon as it
// reaches the configured size, without waiting for the interval.
func TestBatcherFlushesOnSize(t *testing.T) {
	rec := newFlushRecorder()
	b := newBatcher(3, time.Hour, rec.deliver, zap.NewNop())
	go b.run()
	defer b.close()

	for i := 0; i < 3; i++ {
		require.True(t, b.enqueue(batchMessage("lobby", i)))
	}

	rec.waitForFlush(t, time.Second)
	flushes := rec.snapshot()
	require.Len(t, flushes, 1)
	assert.Equal(t, "lobby", flushes[0].room)
	assert.Len(t, flushes[0].msgs, 3)
}

// TestBatcherFlushesOnInterval verifies that a batch below the size threshold
// flushes once the interval since the first enqueue elapses. With batchSize=2
// and a one second interval, two quick messages flush immediately on the size
// path instead.
func TestBatcherFlushesOnInterval(t *testing.T) {
	rec := newFlushRecorder()
	b := newBatcher(100, 30*time.Millisecond, rec.deliver, zap.NewNop())
	go b.run()
	defer b.close()

	require.True(t, b.enqueue(batchMessage("lobby", 0)))

	rec.waitForFlush(t, time.Second)
	flushes := rec.snapshot()
	require.Len(t, flushes, 1)
	assert.Len(t, flushes[0].msgs, 1)

	// Size path still wins when the queue fills before the timer.
	quick := newFlushRecorder()
	qb := newBatcher(2, time.Second, quick.deliver, zap.NewNop())
	go qb.run()
	defer qb.close()

	start := time.Now()
	require.True(t, qb.enqueue(batchMessage("lobby", 1)))
	require.True(t, qb.enqueue(batchMessage("lobby", 2)))
	quick.waitForFlush(t, time.Second)
	assert.Less(t, time.Since(start), 500*time.Millisecond,
		"a full queue should flush without waiting out the interval")
}

// TestBatcherPartitionsByRoom verifies that one flush delivers each room's
// messages separately, in enqueue order within the room.
func TestBatcherPartitionsByRoom(t *testing.T) {
	rec := newFlushRecorder()
	b := newBatcher(4, time.Hour, rec.deliver, zap.NewNop())
	go b.run()
	defer b.close()

	require.True(t, b.enqueue(batchMessage("alpha", 0)))
	require.True(t, b.enqueue(batchMessage("beta", 1)))
	require.True(t, b.enqueue(batchMessage("alpha", 2)))
	require.True(t, b.enqueue(batchMessage("beta", 3)))

	rec.waitForFlush(t, time.Second)
	rec.waitForFlush(t, time.Second)

	flushes := rec.snapshot()
	require.Len(t, flushes, 2)
	byRoom := map[string][]*Message{}
	for _, f := range flushes {
		byRoom[f.room] = f.msgs
	}
	require.Len(t, byRoom["alpha"], 2)
	require.Len(t, byRoom["beta"], 2)
	assert.JSONEq(t, `{"n":0}`, string(byRoom["alpha"][0].Payload))
	assert.JSONEq(t, `{"n":2}`, string(byRoom["alpha"][1].Payload))
}

// TestBatcherIsolatesDeliveryPanic verifies that a panic while delivering one
// room's partition does not take down the consumer or the other rooms.
func TestBatcherIsolatesDeliveryPanic(t *testing.T) {
	rec := newFlushRecorder()
	deliver := func(room string, msgs []*Message) {
		if room == "poison" {
			panic("delivery blew up")
		}
		rec.deliver(room, msgs)
	}

	b := newBatcher(2, time.Hour, deliver, zap.NewNop())
	go b.run()
	defer b.close()

	require.True(t, b.enqueue(batchMessage("poison", 0)))
	require.True(t, b.enqueue(batchMessage("healthy", 1)))

	rec.waitForFlush(t, time.Second)
	flushes := rec.snapshot()
	require.Len(t, flushes, 1)
	assert.Equal(t, "healthy", flushes[0].room)

	// The consumer must still be alive for the next batch.
	require.True(t, b.enqueue(batchMessage("healthy", 2)))
	require.True(t, b.enqueue(batchMessage("healthy", 3)))
	rec.waitForFlush(t, time.Second)
}

// TestBatcherDrainsOnClose verifies that close flushes whatever is pending
// and that enqueue reports false afterwards.
func TestBatcherDrainsOnClose(t *testing.T) {
	rec := newFlushRecorder()
	b := newBatcher(100, time.Hour, rec.deliver, zap.NewNop())
	go b.run()

	require.True(t, b.enqueue(batchMessage("lobby", 0)))
	require.True(t, b.enqueue(batchMessage("lobby", 1)))

	b.close()

	flushes := rec.snapshot()
	require.Len(t, flushes, 1)
	assert.Len(t, flushes[0].msgs, 2)

	assert.False(t, b.enqueue(batchMessage("lobby", 2)),
		"enqueue after close should report the drain")
}
