package hub

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func replayMessage(i int) *Message {
	return newMessage(EventMessage, json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)), "sender", "room")
}

// TestReplayBufferFIFOEviction verifies that a full ring evicts the oldest
// entry on every add and never exceeds its capacity.
func TestReplayBufferFIFOEviction(t *testing.T) {
	buf := newReplayBuffer(3)

	msgs := make([]*Message, 5)
	for i := range msgs {
		msgs[i] = replayMessage(i)
		buf.add(msgs[i])
	}

	assert.Equal(t, 3, buf.count())

	got := buf.last(3)
	require.Len(t, got, 3)
	assert.Same(t, msgs[2], got[0])
	assert.Same(t, msgs[3], got[1])
	assert.Same(t, msgs[4], got[2])
}

// TestReplayBufferLast verifies that last returns the most recent n messages
// oldest first, truncating n to what is stored.
func TestReplayBufferLast(t *testing.T) {
	buf := newReplayBuffer(10)

	assert.Nil(t, buf.last(5), "empty buffer should return nothing")

	msgs := make([]*Message, 4)
	for i := range msgs {
		msgs[i] = replayMessage(i)
		buf.add(msgs[i])
	}

	got := buf.last(2)
	require.Len(t, got, 2)
	assert.Same(t, msgs[2], got[0])
	assert.Same(t, msgs[3], got[1])

	got = buf.last(100)
	assert.Len(t, got, 4, "requests beyond the stored count return everything")

	assert.Nil(t, buf.last(0))
}

// TestReplayBufferTinyCapacity verifies the degenerate capacities still hold
// the most recent message.
func TestReplayBufferTinyCapacity(t *testing.T) {
	buf := newReplayBuffer(0)

	first := replayMessage(1)
	second := replayMessage(2)
	buf.add(first)
	buf.add(second)

	got := buf.last(10)
	require.Len(t, got, 1)
	assert.Same(t, second, got[0])
}
