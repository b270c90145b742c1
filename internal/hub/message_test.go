package hub

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewMessageStamping verifies that construction assigns an id and server
// timestamp and that ids order by creation time.
func TestNewMessageStamping(t *testing.T) {
	first := newMessage(EventMessage, json.RawMessage(`{"text":"a"}`), "alice", "lobby")
	time.Sleep(2 * time.Millisecond)
	second := newMessage(EventMessage, json.RawMessage(`{"text":"b"}`), "alice", "lobby")

	require.NotEmpty(t, first.ID)
	assert.False(t, first.Timestamp.IsZero())
	assert.Equal(t, "alice", first.SenderID)
	assert.Equal(t, "lobby", first.Room)

	assert.Less(t, first.ID, second.ID, "ids must sort by creation time")
}

// TestMessageValidate verifies the gate in front of the batch queue.
func TestMessageValidate(t *testing.T) {
	valid := newMessage(EventMessage, json.RawMessage(`{"text":"a"}`), "alice", "lobby")
	assert.NoError(t, valid.validate())

	noType := newMessage("", json.RawMessage(`{}`), "alice", "lobby")
	assert.ErrorIs(t, noType.validate(), ErrInvalidMessage)

	noPayload := newMessage(EventMessage, nil, "alice", "lobby")
	assert.ErrorIs(t, noPayload.validate(), ErrInvalidMessage)

	noStamp := &Message{Type: EventMessage, Payload: json.RawMessage(`{}`)}
	assert.ErrorIs(t, noStamp.validate(), ErrInvalidMessage)
}
