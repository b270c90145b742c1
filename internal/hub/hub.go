// Package hub coordinates client registration, room fan-out, batching, and
// connection cleanup for the PulseHub real-time messaging system.
package hub

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Tyrowin/pulsehub/internal/auth"
	"github.com/Tyrowin/pulsehub/internal/broker"
	"github.com/Tyrowin/pulsehub/internal/cache"
)

// Hub manages all WebSocket client connections: it authenticates handshakes,
// batches and fans out room traffic, mirrors it through the broker, and keeps
// presence and stats current. All collaborators are constructor-injected so
// the hub runs against in-process doubles in tests.
type Hub struct {
	cfg      Config
	log      *zap.Logger
	verifier auth.Verifier
	cache    cache.Cache
	broker   broker.Broker

	// nodeID distinguishes this instance's broker envelopes from everyone
	// else's, so mirrored traffic is never delivered twice locally.
	nodeID string

	mu      sync.RWMutex
	clients map[*Client]struct{}
	byUser  map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client

	rooms    *roomRegistry
	batch    *batcher
	pub      *publisher
	presence *presenceTracker
	limiter  *addressLimiter
	stats    *statsCollector
	metrics  *metrics
	promReg  *prometheus.Registry
	origin   *originPolicy

	upgrader *websocket.Upgrader

	// brokerDown latches the degraded-mode warning so adapter outages are
	// logged once per episode, not once per message.
	brokerDown atomic.Bool

	started time.Time
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	wg      sync.WaitGroup
}

// New assembles a hub from its collaborators. The config is sanitized, so
// zero values fall back to defaults.
func New(cfg Config, verifier auth.Verifier, c cache.Cache, b broker.Broker, log *zap.Logger) *Hub {
	cfg = sanitizeConfig(cfg)
	ctx, cancel := context.WithCancel(context.Background())

	promReg := prometheus.NewRegistry()
	h := &Hub{
		cfg:        cfg,
		log:        log,
		verifier:   verifier,
		cache:      c,
		broker:     b,
		nodeID:     uuid.NewString(),
		clients:    make(map[*Client]struct{}),
		byUser:     make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		rooms:      newRoomRegistry(cfg.ReplayCapacity),
		pub:        newPublisher(),
		presence:   newPresenceTracker(c, cfg.PresenceTTL, cfg.OfflineTTL),
		limiter:    newAddressLimiter(c, cfg.RateLimitWindow, cfg.RateLimitMax, log),
		stats:      newStatsCollector(),
		metrics:    newMetrics(promReg),
		promReg:    promReg,
		origin:     newOriginPolicy(cfg.AllowedOrigins, log),
		started:    time.Now(),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	h.batch = newBatcher(cfg.BatchSize, cfg.BatchInterval, h.deliverBatch, log)
	h.upgrader = h.newUpgrader()
	return h
}

// Run starts the hub's event loop: client registration and unregistration,
// the periodic stats snapshot, and the batch consumer. It blocks until
// Shutdown cancels it, so call it in its own goroutine.
func (h *Hub) Run() {
	defer close(h.done)

	if err := h.broker.Subscribe(h.ctx, h.handleBrokerFrame); err != nil {
		h.log.Warn("fan-out adapter subscription failed, running local-only",
			zap.Error(err))
	}

	go h.batch.run()
	go h.runPublisher()

	statsTicker := time.NewTicker(h.cfg.StatsInterval)
	defer statsTicker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn("received nil client registration, skipping")
				continue
			}
			h.addClient(client)

		case client := <-h.unregister:
			h.dropClient(client)

		case <-statsTicker.C:
			h.takeSnapshot()
		}
	}
}

// addClient registers the client and starts its pumps.
func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	client.closed = false
	h.clients[client] = struct{}{}
	conns := h.byUser[client.userID]
	if conns == nil {
		conns = make(map[*Client]struct{})
		h.byUser[client.userID] = conns
	}
	conns[client] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	h.metrics.connections.Inc()
	h.log.Info("client registered",
		zap.String("connection", client.id),
		zap.String("user", client.userID),
		zap.String("addr", client.addr),
		zap.Int("total", total))

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

// dropClient removes the client from the registry, sweeps its room
// memberships, notifies affected rooms, and records the user as offline. It
// is safe to call from any goroutine and a second call for the same client is
// a no-op.
func (h *Hub) dropClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	client.closed = true
	if conns := h.byUser[client.userID]; conns != nil {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.byUser, client.userID)
		}
	}
	total := len(h.clients)
	h.mu.Unlock()

	close(client.send)
	client.typing.stop()

	for _, name := range client.rooms.snapshot() {
		if removed, _ := h.rooms.leave(client, name); removed {
			h.emitRoomEvent(name, EventUserDisconnected,
				RoomEventPayload{Room: name, UserID: client.userID}, nil)
		}
	}

	// Cache I/O stays off the registry path.
	go func() {
		ctx, cancelWrite := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelWrite()
		if err := h.presence.markOffline(ctx, client.userID, client.id); err != nil {
			h.log.Warn("failed to mark user offline",
				zap.String("user", client.userID), zap.Error(err))
		}
	}()

	h.metrics.connections.Dec()
	h.log.Info("client unregistered",
		zap.String("connection", client.id),
		zap.String("user", client.userID),
		zap.Int("total", total))
}

// safeSend queues a frame on the client without ever blocking the caller. It
// reports false when the client is gone or its buffer is full.
func (h *Hub) safeSend(client *Client, frame []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.clients[client]; !ok || client.closed {
		return false
	}

	select {
	case client.send <- frame:
		return true
	default:
		return false
	}
}

// deliverOrDrop sends a frame to the client and disconnects it when the send
// fails: a client that cannot keep up blocks only itself.
func (h *Hub) deliverOrDrop(client *Client, frame []byte) bool {
	if h.safeSend(client, frame) {
		return true
	}

	h.mu.RLock()
	_, registered := h.clients[client]
	h.mu.RUnlock()
	if registered {
		h.log.Warn("dropping client with full send buffer",
			zap.String("connection", client.id),
			zap.String("addr", client.addr))
		h.dropClient(client)
	}
	return false
}

// clientSnapshot returns all currently registered clients.
func (h *Hub) clientSnapshot() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// connectedCount returns the number of open connections.
func (h *Hub) connectedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ConnectedUserCount returns the number of distinct authenticated users with
// at least one open connection on this instance.
func (h *Hub) ConnectedUserCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser)
}

// takeSnapshot closes the current stats interval and mirrors the live gauges
// into Prometheus.
func (h *Hub) takeSnapshot() {
	snap := h.stats.snapshot(h.connectedCount(), h.rooms.count())
	h.metrics.rooms.Set(float64(snap.ActiveRooms))
	h.log.Debug("stats snapshot",
		zap.Int("connections", snap.TotalConnections),
		zap.Int("rooms", snap.ActiveRooms),
		zap.Float64("messagesPerSecond", snap.MessagesPerSecond),
		zap.Float64("averageLatencyMs", snap.AverageLatencyMs),
		zap.Float64("errorRate", snap.ErrorRate))
}

// Stats returns the most recent interval's rates with the connection and
// room gauges read live, so callers never see a stale count.
func (h *Hub) Stats() Snapshot {
	snap := h.stats.current()
	snap.TotalConnections = h.connectedCount()
	snap.ActiveRooms = h.rooms.count()
	return snap
}

// shutdownClients closes every client connection. The pumps observe the
// closed connections and unregister themselves.
func (h *Hub) shutdownClients() {
	clients := h.clientSnapshot()
	h.log.Info("closing client connections", zap.Int("count", len(clients)))

	for _, client := range clients {
		if client.conn == nil {
			continue
		}
		if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
			h.log.Warn("failed to close client connection",
				zap.String("addr", client.addr), zap.Error(err))
		}
	}
}

// Shutdown drains the hub: it flushes any pending batch, closes all client
// connections, waits for the pumps to finish, and closes the fan-out adapter.
// It returns context.DeadlineExceeded when the pumps outlive the timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("initiating hub shutdown")

	// Flush while clients can still receive, drain the publish queue, then
	// stop the loop.
	h.batch.close()
	h.pub.close()
	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		h.log.Info("hub shutdown completed")
	case <-time.After(timeout):
		h.log.Warn("hub shutdown timeout reached, some goroutines may still be running")
		err = context.DeadlineExceeded
	}

	if cerr := h.broker.Close(); cerr != nil {
		h.log.Warn("failed to close fan-out adapter", zap.Error(cerr))
	}
	return err
}

// isExpectedCloseError reports whether the error is routine connection
// teardown noise rather than something worth a warning.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "websocket: close sent") ||
		strings.Contains(msg, "broken pipe")
}
