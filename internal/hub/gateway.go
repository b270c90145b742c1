// Package hub exposes the connection gateway: the HTTP endpoint that
// authenticates, rate-limits, and upgrades incoming WebSocket requests.
package hub

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Tyrowin/pulsehub/internal/auth"
)

// newUpgrader builds the WebSocket upgrader for this hub. Compression is
// offered so negotiating clients receive deflated frames; the origin policy
// comes from the configured allow-list.
func (h *Hub) newUpgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		EnableCompression: true,
		CheckOrigin:       h.origin.check,
	}
}

// handleWS runs the connection handshake: token verification first, then the
// address rate limit, then the upgrade. Only a fully verified request is
// registered; a failed handshake never creates a connection.
func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.",
			http.StatusMethodNotAllowed)
		return
	}

	token := bearerToken(r)
	userID, err := h.verifier.Verify(r.Context(), token)
	if err != nil {
		h.stats.countError()
		h.metrics.errorsTotal.WithLabelValues(errorCode(ErrAuthentication)).Inc()
		if errors.Is(err, auth.ErrInvalidToken) {
			h.log.Info("handshake rejected, invalid token", zap.String("addr", r.RemoteAddr))
		} else {
			h.log.Warn("handshake rejected, verifier failed",
				zap.String("addr", r.RemoteAddr), zap.Error(err))
		}
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	if err := h.limiter.allow(r.Context(), r.RemoteAddr); err != nil {
		h.stats.countError()
		h.metrics.errorsTotal.WithLabelValues(errorCode(ErrRateLimitExceeded)).Inc()
		h.log.Info("handshake rejected, rate limited",
			zap.String("addr", r.RemoteAddr), zap.Error(err))
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		h.log.Warn("websocket upgrade failed",
			zap.String("addr", r.RemoteAddr), zap.Error(err))
		return
	}

	client := newClient(conn, h, userID, r.RemoteAddr, declaredCapabilities(r))

	// Every connection joins its identity's private room so direct sends
	// reach it without an explicit join.
	private := privateRoom(userID)
	if _, _, _, err := h.rooms.join(client, private, 0); err != nil {
		h.log.Warn("failed to join private room",
			zap.String("user", userID), zap.Error(err))
	} else {
		client.rooms.add(private)
	}

	// Queued before registration, while this goroutine still owns the send
	// buffer, so the acknowledgement is always the first frame out.
	if frame, err := encodeEvent(EventConnected, ConnectedPayload{
		ConnectionID: client.id,
		UserID:       userID,
		Capabilities: Capabilities{Compression: true, Batching: true},
	}); err != nil {
		h.log.Error("failed to encode connected acknowledgement", zap.Error(err))
	} else {
		client.send <- frame
	}

	h.register <- client
}

// bearerToken extracts the handshake credential from the Authorization
// header, falling back to the token query parameter for browser WebSocket
// clients that cannot set headers.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if prefix := "Bearer "; strings.HasPrefix(header, prefix) {
		return strings.TrimPrefix(header, prefix)
	}
	return r.URL.Query().Get("token")
}

// declaredCapabilities parses the optional comma-separated capabilities
// query parameter.
func declaredCapabilities(r *http.Request) []string {
	raw := r.URL.Query().Get("capabilities")
	if raw == "" {
		return nil
	}

	var caps []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			caps = append(caps, trimmed)
		}
	}
	return caps
}
