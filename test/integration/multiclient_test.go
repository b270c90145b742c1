// Package integration contains integration tests for multi-client scenarios.
//
// These tests verify the system behavior when multiple clients connect
// simultaneously, join rooms, exchange messages, and observe each other
// through membership, presence, and typing events.
package integration

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/pulsehub/internal/hub"
	"github.com/Tyrowin/pulsehub/test/testhelpers"
)

// joinRoom joins a room and consumes the acknowledgement frame.
func joinRoom(t *testing.T, conn *websocket.Conn, room string) {
	t.Helper()
	testhelpers.SendEvent(t, conn, hub.EventJoinRoom, hub.JoinRoomPayload{Room: room})
	testhelpers.ExpectEvent(t, conn, hub.EventRoomJoined, 2*time.Second)
}

// TestRoomIsolation verifies that traffic published to one room never leaks
// into another.
func TestRoomIsolation(t *testing.T) {
	_, srv := testhelpers.StartHub(t, testhelpers.NewConfig())

	alice := testhelpers.DialAndAck(t, srv, testhelpers.AliceToken)
	bob := testhelpers.DialAndAck(t, srv, testhelpers.BobToken)

	joinRoom(t, alice, "alpha")
	joinRoom(t, bob, "beta")

	testhelpers.SendEvent(t, alice, hub.EventMessage, hub.PublishPayload{
		Room:    "alpha",
		Payload: json.RawMessage(`{"text":"alpha only"}`),
	})

	data := testhelpers.ExpectEvent(t, alice, hub.EventMessage, 2*time.Second)
	var m hub.Message
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "alpha", m.Room)
	assert.Equal(t, "alice", m.SenderID)

	testhelpers.ExpectNoEvent(t, bob, 200*time.Millisecond)
}

// TestMembershipEvents verifies the full membership announcement cycle:
// user_joined on join, user_left on an explicit leave, and
// user_disconnected when a member's connection dies.
func TestMembershipEvents(t *testing.T) {
	_, srv := testhelpers.StartHub(t, testhelpers.NewConfig())

	alice := testhelpers.DialAndAck(t, srv, testhelpers.AliceToken)
	bob := testhelpers.DialAndAck(t, srv, testhelpers.BobToken)
	carol := testhelpers.DialAndAck(t, srv, testhelpers.CarolToken)

	joinRoom(t, alice, "lobby")
	joinRoom(t, bob, "lobby")
	joinRoom(t, carol, "lobby")

	// Earlier members hear about each later join.
	var ev hub.RoomEventPayload
	data := testhelpers.ExpectEvent(t, alice, hub.EventUserJoined, 2*time.Second)
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, "bob", ev.UserID)
	data = testhelpers.ExpectEvent(t, alice, hub.EventUserJoined, 2*time.Second)
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, "carol", ev.UserID)
	data = testhelpers.ExpectEvent(t, bob, hub.EventUserJoined, 2*time.Second)
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, "carol", ev.UserID)

	testhelpers.SendEvent(t, bob, hub.EventLeaveRoom, hub.LeaveRoomPayload{Room: "lobby"})
	for _, conn := range []*websocket.Conn{alice, carol} {
		data := testhelpers.ExpectEvent(t, conn, hub.EventUserLeft, 2*time.Second)
		require.NoError(t, json.Unmarshal(data, &ev))
		assert.Equal(t, "bob", ev.UserID)
		assert.Equal(t, "lobby", ev.Room)
	}

	// An abrupt close announces a disconnect to the remaining member.
	require.NoError(t, carol.Close())
	data = testhelpers.ExpectEvent(t, alice, hub.EventUserDisconnected, 2*time.Second)
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, "carol", ev.UserID)

	// Bob left the room, so none of this reached him.
	testhelpers.ExpectNoEvent(t, bob, 200*time.Millisecond)
}

// TestReplayBacklogOnJoin verifies that a room configured to persist
// messages serves its recent history to late joiners, oldest first.
func TestReplayBacklogOnJoin(t *testing.T) {
	h, srv := testhelpers.StartHub(t, testhelpers.NewConfig())
	require.NoError(t, h.ConfigureRoom("archive", hub.RoomConfig{PersistMessages: true}))

	alice := testhelpers.DialAndAck(t, srv, testhelpers.AliceToken)
	joinRoom(t, alice, "archive")

	for i := 1; i <= 3; i++ {
		testhelpers.SendEvent(t, alice, hub.EventMessage, hub.PublishPayload{
			Room:    "archive",
			Payload: json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)),
		})
		testhelpers.ExpectEvent(t, alice, hub.EventMessage, 2*time.Second)
	}
	// Let the flushed batch settle into the replay ring.
	time.Sleep(50 * time.Millisecond)

	bob := testhelpers.DialAndAck(t, srv, testhelpers.BobToken)
	joinRoom(t, bob, "archive")

	data := testhelpers.ExpectEvent(t, bob, hub.EventRecentMessages, 2*time.Second)
	var recent hub.RecentMessagesPayload
	require.NoError(t, json.Unmarshal(data, &recent))
	assert.Equal(t, "archive", recent.Room)
	require.Len(t, recent.Messages, 3)
	for i, m := range recent.Messages {
		assert.JSONEq(t, fmt.Sprintf(`{"n":%d}`, i+1), string(m.Payload))
	}
	assert.Less(t, recent.Messages[0].ID, recent.Messages[2].ID,
		"history must be served oldest first")
}

// TestPrivateRoomDelivery verifies the per-user private room: every
// connection of a user receives direct sends and roomless messages, while
// other users receive nothing.
func TestPrivateRoomDelivery(t *testing.T) {
	h, srv := testhelpers.StartHub(t, testhelpers.NewConfig())

	aliceDesk := testhelpers.DialAndAck(t, srv, testhelpers.AliceToken)
	alicePhone := testhelpers.DialAndAck(t, srv, testhelpers.AliceToken)
	bob := testhelpers.DialAndAck(t, srv, testhelpers.BobToken)

	require.NoError(t, h.SendToUser("alice", "nudge", map[string]string{"text": "wake up"}))
	testhelpers.ExpectEvent(t, aliceDesk, "nudge", 2*time.Second)
	testhelpers.ExpectEvent(t, alicePhone, "nudge", 2*time.Second)

	// A message without a room routes to the sender's private room.
	testhelpers.SendEvent(t, aliceDesk, hub.EventMessage, hub.PublishPayload{
		Payload: json.RawMessage(`{"note":"to my other devices"}`),
	})
	var m hub.Message
	for _, conn := range []*websocket.Conn{aliceDesk, alicePhone} {
		data := testhelpers.ExpectEvent(t, conn, hub.EventMessage, 2*time.Second)
		require.NoError(t, json.Unmarshal(data, &m))
		assert.Equal(t, "user:alice", m.Room)
		assert.JSONEq(t, `{"note":"to my other devices"}`, string(m.Payload))
	}

	testhelpers.ExpectNoEvent(t, bob, 200*time.Millisecond)
}

// TestPresenceBroadcast verifies that a presence update reaches room peers
// but never echoes back to its sender.
func TestPresenceBroadcast(t *testing.T) {
	_, srv := testhelpers.StartHub(t, testhelpers.NewConfig())

	alice := testhelpers.DialAndAck(t, srv, testhelpers.AliceToken)
	bob := testhelpers.DialAndAck(t, srv, testhelpers.BobToken)

	joinRoom(t, alice, "lobby")
	joinRoom(t, bob, "lobby")
	testhelpers.ExpectEvent(t, alice, hub.EventUserJoined, 2*time.Second)

	testhelpers.SendEvent(t, alice, hub.EventPresenceUpdate, hub.PresencePayload{Status: "busy"})

	data := testhelpers.ExpectEvent(t, bob, hub.EventPresenceUpdate, 2*time.Second)
	var update hub.PresenceEventPayload
	require.NoError(t, json.Unmarshal(data, &update))
	assert.Equal(t, "alice", update.UserID)
	assert.Equal(t, "busy", update.Status)

	testhelpers.ExpectNoEvent(t, alice, 200*time.Millisecond)
}

// TestTypingIndicatorThrottled verifies that a burst of typing events
// reaches peers as one immediate relay plus a single trailing relay.
func TestTypingIndicatorThrottled(t *testing.T) {
	cfg := testhelpers.NewConfig()
	cfg.TypingInterval = 100 * time.Millisecond
	_, srv := testhelpers.StartHub(t, cfg)

	alice := testhelpers.DialAndAck(t, srv, testhelpers.AliceToken)
	bob := testhelpers.DialAndAck(t, srv, testhelpers.BobToken)

	joinRoom(t, alice, "lobby")
	joinRoom(t, bob, "lobby")
	testhelpers.ExpectEvent(t, alice, hub.EventUserJoined, 2*time.Second)

	for i := 0; i < 3; i++ {
		testhelpers.SendEvent(t, alice, hub.EventTyping, hub.TypingPayload{Room: "lobby", IsTyping: true})
	}

	data := testhelpers.ExpectEvent(t, bob, hub.EventTyping, 2*time.Second)
	var typing hub.TypingEventPayload
	require.NoError(t, json.Unmarshal(data, &typing))
	assert.Equal(t, "alice", typing.UserID)
	assert.Equal(t, "lobby", typing.Room)
	assert.True(t, typing.IsTyping)

	// The rest of the burst collapses into a single trailing relay.
	testhelpers.ExpectEvent(t, bob, hub.EventTyping, 2*time.Second)
	testhelpers.ExpectNoEvent(t, bob, 250*time.Millisecond)
}

// TestBatchedDeliveryForCapableClients verifies the capability split on a
// compression-enabled room: clients that declared batching receive one
// batch_messages frame while everyone else receives individual messages.
func TestBatchedDeliveryForCapableClients(t *testing.T) {
	cfg := testhelpers.NewConfig()
	cfg.BatchInterval = 200 * time.Millisecond
	h, srv := testhelpers.StartHub(t, cfg)
	require.NoError(t, h.ConfigureRoom("firehose", hub.RoomConfig{CompressionEnabled: true}))

	plain := testhelpers.DialAndAck(t, srv, testhelpers.AliceToken)
	capable := testhelpers.DialAndAck(t, srv, testhelpers.BobToken, "batching")

	joinRoom(t, plain, "firehose")
	joinRoom(t, capable, "firehose")
	testhelpers.ExpectEvent(t, plain, hub.EventUserJoined, 2*time.Second)

	const count = 12
	for i := 1; i <= count; i++ {
		testhelpers.SendEvent(t, plain, hub.EventMessage, hub.PublishPayload{
			Room:    "firehose",
			Payload: json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)),
		})
	}

	data := testhelpers.ExpectEvent(t, capable, hub.EventBatchMessages, 2*time.Second)
	var batch hub.BatchMessagesPayload
	require.NoError(t, json.Unmarshal(data, &batch))
	assert.Equal(t, "firehose", batch.Room)
	require.Len(t, batch.Messages, count)
	for i, m := range batch.Messages {
		assert.JSONEq(t, fmt.Sprintf(`{"n":%d}`, i+1), string(m.Payload))
	}
	testhelpers.ExpectNoEvent(t, capable, 250*time.Millisecond)

	for i := 1; i <= count; i++ {
		data := testhelpers.ExpectEvent(t, plain, hub.EventMessage, 2*time.Second)
		var m hub.Message
		require.NoError(t, json.Unmarshal(data, &m))
		assert.JSONEq(t, fmt.Sprintf(`{"n":%d}`, i), string(m.Payload))
	}
	testhelpers.ExpectNoEvent(t, plain, 250*time.Millisecond)
}
