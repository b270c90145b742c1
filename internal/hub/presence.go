// Package hub tracks ephemeral per-user presence records in the cache
// collaborator.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Tyrowin/pulsehub/internal/cache"
)

// StatusOffline is written automatically when a user's connection goes away.
const StatusOffline = "offline"

// PresenceRecord is one user's last known status. Concurrent writes from
// multiple connections of the same user resolve last-writer-wins through the
// cache's set semantics.
type PresenceRecord struct {
	UserID       string    `json:"userId"`
	Status       string    `json:"status"`
	LastSeen     time.Time `json:"lastSeen"`
	ConnectionID string    `json:"connectionId"`
}

// presenceTracker stores records keyed by user id. Online records carry the
// short TTL; offline records carry a longer one so last-seen queries keep
// working after disconnect instead of the record vanishing.
type presenceTracker struct {
	cache      cache.Cache
	onlineTTL  time.Duration
	offlineTTL time.Duration
}

func newPresenceTracker(c cache.Cache, onlineTTL, offlineTTL time.Duration) *presenceTracker {
	return &presenceTracker{cache: c, onlineTTL: onlineTTL, offlineTTL: offlineTTL}
}

func presenceKey(userID string) string {
	return "presence:" + userID
}

func (p *presenceTracker) write(ctx context.Context, rec PresenceRecord, ttl time.Duration) error {
	rec.LastSeen = time.Now().UTC()

	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode presence record: %w", err)
	}
	if err := p.cache.Set(ctx, presenceKey(rec.UserID), value, ttl); err != nil {
		return fmt.Errorf("store presence record: %w", err)
	}
	return nil
}

// update stores a fresh status under the online TTL.
func (p *presenceTracker) update(ctx context.Context, userID, status, connectionID string) error {
	return p.write(ctx, PresenceRecord{
		UserID:       userID,
		Status:       status,
		ConnectionID: connectionID,
	}, p.onlineTTL)
}

// markOffline overwrites the record rather than deleting it, keeping the
// last-seen timestamp available under the housekeeping TTL.
func (p *presenceTracker) markOffline(ctx context.Context, userID, connectionID string) error {
	return p.write(ctx, PresenceRecord{
		UserID:       userID,
		Status:       StatusOffline,
		ConnectionID: connectionID,
	}, p.offlineTTL)
}

// get returns the stored record for userID, or cache.ErrNotFound after it
// expires.
func (p *presenceTracker) get(ctx context.Context, userID string) (*PresenceRecord, error) {
	value, err := p.cache.Get(ctx, presenceKey(userID))
	if err != nil {
		return nil, err
	}

	var rec PresenceRecord
	if err := json.Unmarshal(value, &rec); err != nil {
		return nil, fmt.Errorf("decode presence record: %w", err)
	}
	return &rec, nil
}
