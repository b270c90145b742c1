// Package hub defines the Message unit that flows through batching, replay,
// and cross-instance mirroring.
package hub

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// Message is one unit of room traffic. It is immutable once constructed; the
// id is a ULID, so sorting by id matches delivery order.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
	SenderID  string          `json:"senderId,omitempty"`
	Room      string          `json:"room"`

	// enqueuedAt feeds the delivery latency samples and stays off the wire.
	enqueuedAt time.Time
}

// newMessage stamps a fresh message with id and server time.
func newMessage(msgType string, payload json.RawMessage, senderID, room string) *Message {
	return &Message{
		ID:        ulid.Make().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		SenderID:  senderID,
		Room:      room,
	}
}

// validate reports whether the message may enter a batch.
func (m *Message) validate() error {
	if m.Type == "" {
		return fmt.Errorf("%w: missing type", ErrInvalidMessage)
	}
	if len(m.Payload) == 0 {
		return fmt.Errorf("%w: empty payload", ErrInvalidMessage)
	}
	if m.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidMessage)
	}
	return nil
}
