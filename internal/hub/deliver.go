// Package hub implements local delivery: flushed batches to room members,
// membership and status events to room peers.
package hub

import (
	"time"

	"go.uber.org/zap"
)

// compressionThreshold is the sub-batch size above which a compression-enabled
// room delivers one batch_messages frame instead of individual messages.
const compressionThreshold = 10

// capBatching is the handshake capability a client declares to receive
// batch_messages frames. Clients without it always get individual messages,
// whatever the room config says.
const capBatching = "batching"

// deliverBatch is the batcher's flush callback for one room's sub-batch: it
// delivers to local members, appends to the room's replay ring, and mirrors
// the batch through the fan-out adapter.
func (h *Hub) deliverBatch(name string, msgs []*Message) {
	rm := h.rooms.getOrCreate(name)

	h.deliverToRoom(rm, msgs)
	for _, m := range msgs {
		rm.replay.add(m)
	}
	h.mirrorMessages(name, msgs)

	h.metrics.batchSize.Observe(float64(len(msgs)))
}

// deliverToRoom fans one room's messages out to its current members. Rooms
// configured for compression collapse sub-batches above the threshold into a
// single batch_messages frame for members that declared the batching
// capability; everyone else receives the messages individually, in order.
func (h *Hub) deliverToRoom(rm *room, msgs []*Message) {
	members := rm.memberSnapshot()
	if len(members) == 0 {
		return
	}
	cfg := rm.configSnapshot()

	batched := cfg.CompressionEnabled && len(msgs) > compressionThreshold
	var batchFrame []byte
	if batched {
		frame, err := encodeEvent(EventBatchMessages, BatchMessagesPayload{
			Room:     rm.name,
			Messages: msgs,
		})
		if err != nil {
			h.log.Error("failed to encode batch frame",
				zap.String("room", rm.name), zap.Error(err))
			batched = false
		} else {
			batchFrame = frame
		}
	}

	frames := make([][]byte, 0, len(msgs))
	if !batched || h.anyWithoutBatching(members) {
		for _, m := range msgs {
			frame, err := encodeEvent(EventMessage, m)
			if err != nil {
				h.log.Error("failed to encode message frame",
					zap.String("room", rm.name), zap.Error(err))
				h.stats.countError()
				continue
			}
			frames = append(frames, frame)
		}
	}

	delivered := 0
	for _, member := range members {
		if batched && member.hasCapability(capBatching) {
			if h.deliverOrDrop(member, batchFrame) {
				delivered += len(msgs)
			} else {
				h.stats.countError()
			}
			continue
		}
		for _, frame := range frames {
			if !h.deliverOrDrop(member, frame) {
				h.stats.countError()
				break
			}
			delivered++
		}
	}
	h.metrics.messagesOut.Add(float64(delivered))

	now := time.Now()
	for _, m := range msgs {
		if m.enqueuedAt.IsZero() {
			continue
		}
		latency := now.Sub(m.enqueuedAt)
		h.stats.observeLatency(latency)
		h.metrics.deliveryLatency.Observe(latency.Seconds())
	}
}

// anyWithoutBatching reports whether at least one member needs individual
// frames even when the sub-batch qualifies for a batch frame.
func (h *Hub) anyWithoutBatching(members []*Client) bool {
	for _, member := range members {
		if !member.hasCapability(capBatching) {
			return true
		}
	}
	return false
}

// emitRoomEvent sends an event frame to the room's local members, excluding
// except when non-nil, and mirrors it to other instances. Rooms unknown to
// this instance have no local members but are still mirrored.
func (h *Hub) emitRoomEvent(name, event string, data any, except *Client) {
	if rm, ok := h.rooms.get(name); ok {
		frame, err := encodeEvent(event, data)
		if err != nil {
			h.log.Error("failed to encode room event",
				zap.String("event", event), zap.Error(err))
			return
		}
		for _, member := range rm.memberSnapshot() {
			if member == except {
				continue
			}
			h.deliverOrDrop(member, frame)
		}
	}

	h.mirrorRoomEvent(name, event, data)
}
