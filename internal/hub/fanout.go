// Package hub mirrors room traffic between instances through the broker
// collaborator: local deliveries are published as envelopes, and envelopes
// from other nodes are delivered to local members.
package hub

import (
	"encoding/json"
	"sync/atomic"

	"go.uber.org/zap"
)

// Fan-out envelope kinds.
const (
	fanoutKindMessages  = "messages"
	fanoutKindRoomEvent = "event"
	fanoutKindBroadcast = "broadcast"

	// broadcastTopic carries all-connection broadcasts; room traffic is
	// published under the room name itself.
	broadcastTopic = "broadcast"
)

// fanoutEnvelope frames one mirrored delivery. NodeID identifies the origin
// instance so subscribers can drop their own echoes.
type fanoutEnvelope struct {
	NodeID   string          `json:"nodeId"`
	Kind     string          `json:"kind"`
	Room     string          `json:"room,omitempty"`
	Event    string          `json:"event,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Messages []*Message      `json:"messages,omitempty"`
}

// publisher serializes broker publishes on one goroutine so collaborator I/O
// never blocks delivery or the registry loop. The intake is buffered; if the
// broker falls far enough behind to fill it, envelopes are dropped and
// counted rather than stalling local traffic.
type publisher struct {
	in       chan fanoutEnvelope
	quit     chan struct{}
	done     chan struct{}
	draining atomic.Bool
}

const publisherBuffer = 1024

func newPublisher() *publisher {
	return &publisher{
		in:   make(chan fanoutEnvelope, publisherBuffer),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// enqueue hands env to the publish goroutine, reporting false when the
// buffer is full or the publisher is draining.
func (p *publisher) enqueue(env fanoutEnvelope) bool {
	if p.draining.Load() {
		return false
	}
	select {
	case p.in <- env:
		return true
	default:
		return false
	}
}

// close stops intake, lets the goroutine drain what was already queued, and
// waits for it to exit.
func (p *publisher) close() {
	if p.draining.CompareAndSwap(false, true) {
		close(p.quit)
	}
	<-p.done
}

// runPublisher drains the publish queue into the broker.
func (h *Hub) runPublisher() {
	defer close(h.pub.done)

	for {
		select {
		case env := <-h.pub.in:
			h.publish(env)
		case <-h.pub.quit:
			for {
				select {
				case env := <-h.pub.in:
					h.publish(env)
					continue
				default:
				}
				return
			}
		}
	}
}

// publish sends one envelope through the broker. Failures degrade to
// local-only delivery: the outage is logged once when it starts and recovery
// once when publishes succeed again.
func (h *Hub) publish(env fanoutEnvelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		h.log.Error("failed to encode fan-out envelope", zap.Error(err))
		return
	}

	topic := env.Room
	if env.Kind == fanoutKindBroadcast {
		topic = broadcastTopic
	}

	if err := h.broker.Publish(h.ctx, topic, payload); err != nil {
		if h.brokerDown.CompareAndSwap(false, true) {
			h.log.Warn("fan-out adapter unavailable, delivering locally only",
				zap.String("code", errorCode(ErrAdapterUnavailable)),
				zap.Error(err))
			h.metrics.errorsTotal.WithLabelValues(errorCode(ErrAdapterUnavailable)).Inc()
		}
		return
	}

	if h.brokerDown.CompareAndSwap(true, false) {
		h.log.Info("fan-out adapter recovered")
	}
}

// mirrorMessages queues a flushed sub-batch for cross-instance delivery.
func (h *Hub) mirrorMessages(room string, msgs []*Message) {
	h.enqueueFanout(fanoutEnvelope{
		NodeID:   h.nodeID,
		Kind:     fanoutKindMessages,
		Room:     room,
		Messages: msgs,
	})
}

// mirrorRoomEvent queues a room-scoped event for cross-instance delivery.
func (h *Hub) mirrorRoomEvent(room, event string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		h.log.Error("failed to encode mirrored event",
			zap.String("event", event), zap.Error(err))
		return
	}
	h.enqueueFanout(fanoutEnvelope{
		NodeID: h.nodeID,
		Kind:   fanoutKindRoomEvent,
		Room:   room,
		Event:  event,
		Data:   raw,
	})
}

// mirrorBroadcast queues an all-connections event for cross-instance
// delivery.
func (h *Hub) mirrorBroadcast(event string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		h.log.Error("failed to encode mirrored broadcast",
			zap.String("event", event), zap.Error(err))
		return
	}
	h.enqueueFanout(fanoutEnvelope{
		NodeID: h.nodeID,
		Kind:   fanoutKindBroadcast,
		Event:  event,
		Data:   raw,
	})
}

func (h *Hub) enqueueFanout(env fanoutEnvelope) {
	if !h.pub.enqueue(env) {
		h.log.Debug("publish queue full, dropping mirrored delivery",
			zap.String("kind", env.Kind), zap.String("room", env.Room))
	}
}

// handleBrokerFrame delivers an envelope published by another instance to
// local room members. It runs on the broker's receive goroutine, so all
// sends are the non-blocking kind.
func (h *Hub) handleBrokerFrame(topic string, payload []byte) {
	var env fanoutEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		h.log.Warn("dropping malformed fan-out envelope",
			zap.String("topic", topic), zap.Error(err))
		return
	}
	if env.NodeID == h.nodeID {
		return
	}

	switch env.Kind {
	case fanoutKindMessages:
		h.deliverMirroredMessages(env.Room, env.Messages)
	case fanoutKindRoomEvent:
		h.deliverMirroredEvent(env.Room, env.Event, env.Data)
	case fanoutKindBroadcast:
		h.deliverMirroredBroadcast(env.Event, env.Data)
	default:
		h.log.Warn("dropping fan-out envelope of unknown kind",
			zap.String("kind", env.Kind))
	}
}

// deliverMirroredMessages replays another instance's flush locally: the
// messages go to local members under the local room config and into the
// local replay ring, keeping history consistent across instances.
func (h *Hub) deliverMirroredMessages(room string, msgs []*Message) {
	if len(msgs) == 0 {
		return
	}

	rm := h.rooms.getOrCreate(room)
	h.deliverToRoom(rm, msgs)
	for _, m := range msgs {
		rm.replay.add(m)
	}
}

// deliverMirroredEvent forwards a room-scoped event frame to local members.
// Rooms this instance has never seen are skipped; there is nobody local to
// tell.
func (h *Hub) deliverMirroredEvent(room, event string, data json.RawMessage) {
	rm, ok := h.rooms.get(room)
	if !ok {
		return
	}

	frame, err := encodeEvent(event, data)
	if err != nil {
		h.log.Error("failed to encode mirrored event frame",
			zap.String("event", event), zap.Error(err))
		return
	}
	for _, member := range rm.memberSnapshot() {
		h.deliverOrDrop(member, frame)
	}
}

// deliverMirroredBroadcast forwards an all-connections event frame to every
// local client.
func (h *Hub) deliverMirroredBroadcast(event string, data json.RawMessage) {
	frame, err := encodeEvent(event, data)
	if err != nil {
		h.log.Error("failed to encode mirrored broadcast frame",
			zap.String("event", event), zap.Error(err))
		return
	}
	for _, client := range h.clientSnapshot() {
		h.deliverOrDrop(client, frame)
	}
}
