// Package hub manages the room registry: per-topic configuration, membership
// sets, and replay history.
package hub

import (
	"fmt"
	"regexp"
	"sync"
)

// roomNameRE is the allow-list for room names. The colon admits the
// "user:<id>" private namespace.
var roomNameRE = regexp.MustCompile(`^[a-zA-Z0-9:_-]{1,100}$`)

// validateRoomName rejects names outside the allow-listed character set.
func validateRoomName(name string) error {
	if !roomNameRE.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidRoomName, name)
	}
	return nil
}

// privateRoom is the per-identity room every connection auto-joins.
func privateRoom(userID string) string {
	return "user:" + userID
}

// RoomConfig controls a room's capacity and delivery behavior. The zero
// value means unlimited membership, no compression, and no replay served on
// join.
type RoomConfig struct {
	MaxConnections     int  `json:"maxConnections"`
	CompressionEnabled bool `json:"compressionEnabled"`
	PersistMessages    bool `json:"persistMessages"`
}

// room pairs a membership set with its config and replay history. Rooms are
// created lazily and never deleted; an empty room is inert but keeps its
// config and history.
type room struct {
	name    string
	mu      sync.RWMutex
	config  RoomConfig
	members map[*Client]struct{}
	replay  *replayBuffer
}

func (rm *room) memberSnapshot() []*Client {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	members := make([]*Client, 0, len(rm.members))
	for member := range rm.members {
		members = append(members, member)
	}
	return members
}

func (rm *room) memberCount() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.members)
}

func (rm *room) configSnapshot() RoomConfig {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.config
}

// roomRegistry owns every room in the process.
type roomRegistry struct {
	mu             sync.RWMutex
	rooms          map[string]*room
	replayCapacity int
}

func newRoomRegistry(replayCapacity int) *roomRegistry {
	return &roomRegistry{
		rooms:          make(map[string]*room),
		replayCapacity: replayCapacity,
	}
}

func (r *roomRegistry) get(name string) (*room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[name]
	return rm, ok
}

func (r *roomRegistry) getOrCreate(name string) *room {
	r.mu.RLock()
	rm, ok := r.rooms[name]
	r.mu.RUnlock()
	if ok {
		return rm
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if rm, ok := r.rooms[name]; ok {
		return rm
	}

	rm = &room{
		name:    name,
		members: make(map[*Client]struct{}),
		replay:  newReplayBuffer(r.replayCapacity),
	}
	r.rooms[name] = rm
	return rm
}

// count returns the number of registered rooms, counting configured-but-empty
// rooms as active.
func (r *roomRegistry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// join adds c to the named room. It returns the post-join member count,
// whether the membership is new, and, for rooms that persist messages, up to
// backlog replay entries owed to the joiner. Joining a room twice is a
// harmless no-op.
func (r *roomRegistry) join(c *Client, name string, backlog int) (int, bool, []*Message, error) {
	if err := validateRoomName(name); err != nil {
		return 0, false, nil, err
	}

	rm := r.getOrCreate(name)

	rm.mu.Lock()
	if _, ok := rm.members[c]; ok {
		count := len(rm.members)
		rm.mu.Unlock()
		return count, false, nil, nil
	}
	if rm.config.MaxConnections > 0 && len(rm.members) >= rm.config.MaxConnections {
		limit := rm.config.MaxConnections
		rm.mu.Unlock()
		return 0, false, nil, fmt.Errorf("%w: %s is at its limit of %d connections", ErrRoomFull, name, limit)
	}
	rm.members[c] = struct{}{}
	count := len(rm.members)
	persist := rm.config.PersistMessages
	rm.mu.Unlock()

	var history []*Message
	if persist && backlog > 0 {
		history = rm.replay.last(backlog)
	}
	return count, true, history, nil
}

// leave removes c from the named room. Leaving a room the client is not in,
// or one that does not exist, is a no-op. It reports whether a membership was
// actually removed and how many members remain.
func (r *roomRegistry) leave(c *Client, name string) (bool, int) {
	rm, ok := r.get(name)
	if !ok {
		return false, 0
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if _, ok := rm.members[c]; !ok {
		return false, len(rm.members)
	}
	delete(rm.members, c)
	return true, len(rm.members)
}

// configure swaps the named room's config, creating the room if needed so
// operators can configure ahead of the first join.
func (r *roomRegistry) configure(name string, cfg RoomConfig) error {
	if err := validateRoomName(name); err != nil {
		return err
	}

	rm := r.getOrCreate(name)
	rm.mu.Lock()
	rm.config = cfg
	rm.mu.Unlock()
	return nil
}
