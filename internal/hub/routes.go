// Package hub wires HTTP handlers into a ServeMux for the PulseHub
// application via routing helpers.
package hub

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes returns the full HTTP surface: the WebSocket gateway, operational
// endpoints, and the bearer-guarded administrative API.
func (h *Hub) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", h.handleWS)
	mux.HandleFunc("/healthz", h.handleHealthz)
	mux.Handle("/metrics", promhttp.HandlerFor(h.promReg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/test", h.handleTestPage)

	mux.HandleFunc("POST /admin/rooms/{room}/config", h.requireAdmin(h.handleRoomConfig))
	mux.HandleFunc("POST /admin/rooms/{room}/send", h.requireAdmin(h.handleSendToRoom))
	mux.HandleFunc("POST /admin/users/{id}/send", h.requireAdmin(h.handleSendToUser))
	mux.HandleFunc("POST /admin/broadcast", h.requireAdmin(h.handleBroadcast))
	mux.HandleFunc("GET /admin/stats", h.requireAdmin(h.handleStats))
	mux.HandleFunc("GET /admin/users/count", h.requireAdmin(h.handleUserCount))

	return mux
}
