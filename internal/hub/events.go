// Package hub defines the wire protocol: one JSON envelope per WebSocket text
// frame, with typed payload variants for every client-to-server event.
package hub

import (
	"encoding/json"
	"fmt"
)

// Client-to-server event names.
const (
	EventMessage        = "message"
	EventJoinRoom       = "join_room"
	EventLeaveRoom      = "leave_room"
	EventTyping         = "typing"
	EventPresenceUpdate = "presence_update"
	EventPing           = "ping"
)

// Server-to-client event names. EventMessage, EventTyping, and
// EventPresenceUpdate are reused in both directions.
const (
	EventConnected        = "connected"
	EventRoomJoined       = "room_joined"
	EventRecentMessages   = "recent_messages"
	EventBatchMessages    = "batch_messages"
	EventUserJoined       = "user_joined"
	EventUserLeft         = "user_left"
	EventUserDisconnected = "user_disconnected"
	EventPong             = "pong"
	EventError            = "error"
)

// Envelope is the wire frame shared by both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ClientEvent is implemented by every decoded client-to-server payload so
// dispatch can switch on a closed set of variants.
type ClientEvent interface {
	clientEvent()
}

// PublishPayload asks the hub to fan a payload out to a room. An empty room
// routes to the sender's private room; an empty type defaults to "message",
// letting clients tag application-specific message kinds.
type PublishPayload struct {
	Room    string          `json:"room,omitempty"`
	Type    string          `json:"type,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// JoinRoomPayload subscribes the connection to a room.
type JoinRoomPayload struct {
	Room string `json:"room"`
}

// LeaveRoomPayload unsubscribes the connection from a room.
type LeaveRoomPayload struct {
	Room string `json:"room"`
}

// TypingPayload toggles the sender's typing indicator in a room.
type TypingPayload struct {
	Room     string `json:"room"`
	IsTyping bool   `json:"isTyping"`
}

// PresencePayload publishes the sender's status to its rooms.
type PresencePayload struct {
	Status string `json:"status"`
}

// PingPayload requests a pong echo carrying the client timestamp back.
type PingPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// RawPayload carries an event kind the decoder does not recognize. The hub
// rejects it, but keeping the bytes lets the rejection name the event.
type RawPayload struct {
	Event string
	Data  json.RawMessage
}

func (PublishPayload) clientEvent()   {}
func (JoinRoomPayload) clientEvent()  {}
func (LeaveRoomPayload) clientEvent() {}
func (TypingPayload) clientEvent()    {}
func (PresencePayload) clientEvent()  {}
func (PingPayload) clientEvent()      {}
func (RawPayload) clientEvent()       {}

// DecodeClientEvent parses one inbound frame into its typed variant. Frames
// that are not valid envelopes, or whose payload does not match the event's
// shape, fail with ErrInvalidMessage.
func DecodeClientEvent(frame []byte) (ClientEvent, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("%w: missing event", ErrInvalidMessage)
	}

	switch env.Event {
	case EventMessage:
		var p PublishPayload
		if err := decodeData(env.Data, &p); err != nil {
			return nil, err
		}
		if len(p.Payload) == 0 {
			return nil, fmt.Errorf("%w: empty payload", ErrInvalidMessage)
		}
		return p, nil
	case EventJoinRoom:
		var p JoinRoomPayload
		if err := decodeData(env.Data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventLeaveRoom:
		var p LeaveRoomPayload
		if err := decodeData(env.Data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventTyping:
		var p TypingPayload
		if err := decodeData(env.Data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventPresenceUpdate:
		var p PresencePayload
		if err := decodeData(env.Data, &p); err != nil {
			return nil, err
		}
		if p.Status == "" {
			return nil, fmt.Errorf("%w: empty status", ErrInvalidMessage)
		}
		return p, nil
	case EventPing:
		var p PingPayload
		if err := decodeData(env.Data, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return RawPayload{Event: env.Event, Data: env.Data}, nil
	}
}

func decodeData(data json.RawMessage, dst any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", ErrInvalidMessage)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return nil
}

// encodeEvent wraps data in an envelope and serializes the whole frame.
func encodeEvent(event string, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s data: %w", event, err)
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: payload})
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", event, err)
	}
	return frame, nil
}

// Capabilities reports what the server can do for a connection, sent in the
// connected acknowledgement.
type Capabilities struct {
	Compression bool `json:"compression"`
	Batching    bool `json:"batching"`
}

// ConnectedPayload acknowledges a successful handshake.
type ConnectedPayload struct {
	ConnectionID string       `json:"connectionId"`
	UserID       string       `json:"userId"`
	Capabilities Capabilities `json:"capabilities"`
}

// RoomJoinedPayload confirms a join to the acting connection.
type RoomJoinedPayload struct {
	Room        string `json:"room"`
	MemberCount int    `json:"memberCount"`
}

// RecentMessagesPayload carries the replay backlog served on join.
type RecentMessagesPayload struct {
	Room     string     `json:"room"`
	Messages []*Message `json:"messages"`
}

// BatchMessagesPayload carries one flushed sub-batch as a single frame.
type BatchMessagesPayload struct {
	Room     string     `json:"room"`
	Messages []*Message `json:"messages"`
}

// RoomEventPayload announces membership changes to remaining members.
type RoomEventPayload struct {
	Room   string `json:"room"`
	UserID string `json:"userId"`
}

// TypingEventPayload relays a typing indicator to room peers.
type TypingEventPayload struct {
	Room     string `json:"room"`
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// PresenceEventPayload relays a presence change to room peers.
type PresenceEventPayload struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

// PongPayload echoes a ping with the server clock attached.
type PongPayload struct {
	Timestamp  int64 `json:"timestamp"`
	ServerTime int64 `json:"serverTime"`
}

// ErrorPayload tells the offending connection what went wrong.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
