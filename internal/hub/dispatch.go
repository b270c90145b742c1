// Package hub dispatches decoded client events to their handlers: message
// ingress, room membership, typing, presence, and ping.
package hub

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// handleFrame decodes one inbound frame and routes it. Invalid frames are
// rejected to the sender; they never reach the batch queue.
func (h *Hub) handleFrame(c *Client, frame []byte) {
	ev, err := DecodeClientEvent(frame)
	if err != nil {
		h.sendError(c, err)
		return
	}

	switch p := ev.(type) {
	case PublishPayload:
		h.handlePublish(c, p)
	case JoinRoomPayload:
		h.handleJoin(c, p)
	case LeaveRoomPayload:
		h.handleLeave(c, p)
	case TypingPayload:
		h.handleTyping(c, p)
	case PresencePayload:
		h.handlePresence(c, p)
	case PingPayload:
		h.sendEvent(c, EventPong, PongPayload{
			Timestamp:  p.Timestamp,
			ServerTime: time.Now().UnixMilli(),
		})
	case RawPayload:
		h.sendError(c, fmt.Errorf("%w: unknown event %q", ErrInvalidMessage, p.Event))
	}
}

// handlePublish validates and enqueues one message. The enqueue blocks when
// the batch intake is full, which backpressures exactly this sender's read
// pump and nobody else.
func (h *Hub) handlePublish(c *Client, p PublishPayload) {
	if err := h.limiter.allow(h.ctx, c.addr); err != nil {
		h.sendError(c, err)
		return
	}

	name := p.Room
	if name == "" {
		name = privateRoom(c.userID)
	}
	if err := validateRoomName(name); err != nil {
		h.sendError(c, err)
		return
	}

	msgType := p.Type
	if msgType == "" {
		msgType = EventMessage
	}

	msg := newMessage(msgType, p.Payload, c.userID, name)
	msg.enqueuedAt = time.Now()
	if err := msg.validate(); err != nil {
		h.sendError(c, err)
		return
	}

	if !h.batch.enqueue(msg) {
		h.log.Debug("dropping message, batcher draining",
			zap.String("connection", c.id))
		return
	}
	h.stats.countMessage()
	h.metrics.messagesIn.Inc()
}

// handleJoin subscribes the connection to a room, acknowledges it, serves
// the replay backlog for persisted rooms, and announces the join to peers.
func (h *Hub) handleJoin(c *Client, p JoinRoomPayload) {
	count, added, history, err := h.rooms.join(c, p.Room, h.cfg.ReplayOnJoin)
	if err != nil {
		h.sendError(c, err)
		return
	}
	c.rooms.add(p.Room)

	h.sendEvent(c, EventRoomJoined, RoomJoinedPayload{Room: p.Room, MemberCount: count})
	if len(history) > 0 {
		h.sendEvent(c, EventRecentMessages, RecentMessagesPayload{Room: p.Room, Messages: history})
	}
	if added {
		h.emitRoomEvent(p.Room, EventUserJoined,
			RoomEventPayload{Room: p.Room, UserID: c.userID}, c)
	}
}

// handleLeave removes the connection from a room. Leaving a room the client
// is not in is a no-op, not an error.
func (h *Hub) handleLeave(c *Client, p LeaveRoomPayload) {
	removed, _ := h.rooms.leave(c, p.Room)
	c.rooms.remove(p.Room)
	if removed {
		h.emitRoomEvent(p.Room, EventUserLeft,
			RoomEventPayload{Room: p.Room, UserID: c.userID}, c)
	}
}

// handleTyping relays a typing indicator to room peers behind the per-
// connection throttle: the first event in a window fires immediately, a
// burst coalesces into one trailing fire carrying the latest state.
func (h *Hub) handleTyping(c *Client, p TypingPayload) {
	if err := validateRoomName(p.Room); err != nil {
		h.sendError(c, err)
		return
	}

	c.typing.fire(func() {
		h.emitRoomEvent(p.Room, EventTyping, TypingEventPayload{
			Room:     p.Room,
			UserID:   c.userID,
			IsTyping: p.IsTyping,
		}, c)
	})
}

// handlePresence stores the user's status and announces it to every room the
// connection belongs to, except its own private room.
func (h *Hub) handlePresence(c *Client, p PresencePayload) {
	if err := h.presence.update(h.ctx, c.userID, p.Status, c.id); err != nil {
		h.log.Warn("failed to store presence record",
			zap.String("user", c.userID), zap.Error(err))
	}

	self := privateRoom(c.userID)
	for _, name := range c.rooms.snapshot() {
		if name == self {
			continue
		}
		h.emitRoomEvent(name, EventPresenceUpdate, PresenceEventPayload{
			UserID: c.userID,
			Status: p.Status,
		}, c)
	}
}

// sendEvent encodes and queues one event frame for the client.
func (h *Hub) sendEvent(c *Client, event string, data any) {
	frame, err := encodeEvent(event, data)
	if err != nil {
		h.log.Error("failed to encode event",
			zap.String("event", event), zap.Error(err))
		return
	}
	h.deliverOrDrop(c, frame)
}

// sendError surfaces a failure to the offending connection as an error event
// and counts it.
func (h *Hub) sendError(c *Client, err error) {
	code := errorCode(err)
	h.stats.countError()
	h.metrics.errorsTotal.WithLabelValues(code).Inc()
	h.log.Debug("rejecting client event",
		zap.String("connection", c.id),
		zap.String("code", code),
		zap.Error(err))

	h.sendEvent(c, EventError, ErrorPayload{Code: code, Message: err.Error()})
}
