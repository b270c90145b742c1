// Package hub serves the operational health endpoint.
package hub

import (
	"encoding/json"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

// healthPayload is the /healthz response body.
type healthPayload struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
	Goroutines    int     `json:"goroutines"`
	Connections   int     `json:"connections"`
	Rooms         int     `json:"rooms"`
	RSSBytes      uint64  `json:"rssBytes,omitempty"`
}

// handleHealthz reports liveness plus the runtime numbers worth a glance
// when something is off: goroutines, connections, rooms, and process RSS.
func (h *Hub) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	payload := healthPayload{
		Status:        "ok",
		UptimeSeconds: time.Since(h.started).Seconds(),
		Goroutines:    runtime.NumGoroutine(),
		Connections:   h.connectedCount(),
		Rooms:         h.rooms.count(),
		RSSBytes:      processRSS(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Warn("failed to write health response", zap.Error(err))
	}
}

// processRSS returns the resident set size of this process, or zero when the
// platform will not say.
func processRSS() uint64 {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0
	}
	info, err := proc.MemoryInfo()
	if err != nil || info == nil {
		return 0
	}
	return info.RSS
}
