// Package hub exposes the administrative API consumed by the surrounding
// application: room configuration, targeted sends, broadcasts, and stats.
package hub

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// ConfigureRoom applies a room's operational config, creating the room if it
// does not exist yet so operators can configure ahead of the first join.
func (h *Hub) ConfigureRoom(name string, cfg RoomConfig) error {
	if err := h.rooms.configure(name, cfg); err != nil {
		return err
	}
	h.log.Info("room configured",
		zap.String("room", name),
		zap.Int("maxConnections", cfg.MaxConnections),
		zap.Bool("compression", cfg.CompressionEnabled),
		zap.Bool("persist", cfg.PersistMessages))
	return nil
}

// Broadcast sends an event to every connection on every hub instance.
func (h *Hub) Broadcast(event string, data any) error {
	frame, err := encodeEvent(event, data)
	if err != nil {
		return err
	}
	for _, client := range h.clientSnapshot() {
		h.deliverOrDrop(client, frame)
	}
	h.mirrorBroadcast(event, data)
	return nil
}

// SendToRoom sends an event to every member of a room, on this instance and
// every other one.
func (h *Hub) SendToRoom(name, event string, data any) error {
	if err := validateRoomName(name); err != nil {
		return err
	}
	h.emitRoomEvent(name, event, data, nil)
	return nil
}

// SendToUser sends an event to every connection of one user, wherever it is
// attached, via the user's private room.
func (h *Hub) SendToUser(userID, event string, data any) error {
	return h.SendToRoom(privateRoom(userID), event, data)
}

// adminSendRequest is the body of the broadcast and targeted-send endpoints.
type adminSendRequest struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// requireAdmin guards an administrative handler with the configured bearer
// token. An empty configured token disables the whole surface.
func (h *Hub) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.cfg.AdminToken == "" {
			http.Error(w, "administrative API disabled", http.StatusForbidden)
			return
		}
		if bearerToken(r) != h.cfg.AdminToken {
			h.log.Info("rejected administrative request",
				zap.String("addr", r.RemoteAddr), zap.String("path", r.URL.Path))
			http.Error(w, "authentication failed", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// decodeAdminSend parses and validates a send body, writing the HTTP error
// itself when the body is unusable.
func decodeAdminSend(w http.ResponseWriter, r *http.Request) (adminSendRequest, bool) {
	var req adminSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return req, false
	}
	if req.Event == "" {
		http.Error(w, "event is required", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

// writeAdminError maps an admin API failure onto an HTTP status.
func (h *Hub) writeAdminError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidRoomName):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.log.Error("administrative request failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// handleRoomConfig applies the posted config to the named room.
func (h *Hub) handleRoomConfig(w http.ResponseWriter, r *http.Request) {
	var cfg RoomConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.ConfigureRoom(r.PathValue("room"), cfg); err != nil {
		h.writeAdminError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleBroadcast sends the posted event to every connection.
func (h *Hub) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAdminSend(w, r)
	if !ok {
		return
	}
	if err := h.Broadcast(req.Event, req.Data); err != nil {
		h.writeAdminError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleSendToUser sends the posted event to one user's connections.
func (h *Hub) handleSendToUser(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAdminSend(w, r)
	if !ok {
		return
	}
	if err := h.SendToUser(r.PathValue("id"), req.Event, req.Data); err != nil {
		h.writeAdminError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleSendToRoom sends the posted event to one room's members.
func (h *Hub) handleSendToRoom(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAdminSend(w, r)
	if !ok {
		return
	}
	if err := h.SendToRoom(r.PathValue("room"), req.Event, req.Data); err != nil {
		h.writeAdminError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleStats returns the most recent stats snapshot with live gauges.
func (h *Hub) handleStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.Stats()); err != nil {
		h.log.Warn("failed to write stats response", zap.Error(err))
	}
}

// handleUserCount returns the number of distinct connected users.
func (h *Hub) handleUserCount(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	payload := map[string]int{"count": h.ConnectedUserCount()}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Warn("failed to write user count response", zap.Error(err))
	}
}
