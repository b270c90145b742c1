// Package hub manages individual WebSocket clients, handling read/write
// pumps, event dispatch, and lifecycle control for each connection.
package hub

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// sendBufferSize bounds the outbound queue per connection. A client that
	// falls this far behind is dropped rather than allowed to stall delivery.
	sendBufferSize = 256

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Client is one live WebSocket connection with its authenticated identity and
// room memberships. The hub owns the client; it is destroyed on disconnect.
type Client struct {
	id        string
	userID    string
	conn      *websocket.Conn
	hub       *Hub
	send      chan []byte
	addr      string
	createdAt time.Time

	// closed is guarded by the hub registry mutex, like the membership maps.
	closed bool

	// rooms mirrors the registry's membership for this connection so that
	// disconnect can sweep without scanning every room.
	rooms *clientRooms

	// caps holds the capability names the client declared at handshake.
	caps map[string]struct{}

	typing *eventThrottle
}

// newClient wraps an upgraded connection. The connection may be nil in tests
// that only exercise registry bookkeeping.
func newClient(conn *websocket.Conn, hub *Hub, userID, addr string, caps []string) *Client {
	if conn != nil {
		conn.SetReadLimit(hub.cfg.MaxMessageSize)
	}

	capSet := make(map[string]struct{}, len(caps))
	for _, name := range caps {
		capSet[name] = struct{}{}
	}

	return &Client{
		id:        uuid.NewString(),
		userID:    userID,
		conn:      conn,
		hub:       hub,
		send:      make(chan []byte, sendBufferSize),
		addr:      addr,
		createdAt: time.Now(),
		rooms:     newClientRooms(),
		caps:      capSet,
		typing:    newEventThrottle(hub.cfg.TypingInterval),
	}
}

// hasCapability reports whether the client declared the named capability at
// handshake. Batch frames are only sent to clients that declared "batching".
func (c *Client) hasCapability(name string) bool {
	_, ok := c.caps[name]
	return ok
}

// setupReadConnection configures the read deadline and pong handler.
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.hub.log.Warn("failed to set initial read deadline",
			zap.String("addr", c.addr), zap.Error(err))
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.hub.log.Warn("failed to extend read deadline on pong",
				zap.String("addr", c.addr), zap.Error(err))
		}
		return nil
	})
}

// logReadError logs the read failure at a level matching how expected it is.
func (c *Client) logReadError(err error) {
	log := c.hub.log.With(zap.String("addr", c.addr), zap.String("connection", c.id))

	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		log.Warn("message exceeded maximum size",
			zap.Int64("limit", c.hub.cfg.MaxMessageSize))
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		log.Debug("client disconnected", zap.Error(err))
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		log.Debug("connection closed", zap.Error(err))
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		log.Warn("unexpected close", zap.Error(err))
	default:
		log.Warn("read failed", zap.Error(err))
	}
}

// readPump reads frames off the connection and hands them to the hub until
// the connection dies. A panic anywhere in a handler is recovered here so it
// tears down only this connection.
func (c *Client) readPump() {
	defer func() {
		if r := recover(); r != nil {
			c.hub.log.Error("recovered from panic in connection handler",
				zap.String("connection", c.id),
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
		// During shutdown the registry loop is gone; the context branch keeps
		// this send from blocking forever.
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.hub.log.Warn("closing connection after read pump",
				zap.String("addr", c.addr), zap.Error(err))
		}
	}()

	c.setupReadConnection()

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		c.hub.handleFrame(c, frame)
	}
}

// writePump serializes all writes to the connection: queued frames and the
// keepalive pings. One envelope per frame; a slow or dead peer surfaces as a
// write error, which ends the pump and with it the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.hub.log.Warn("closing connection after write pump",
				zap.String("addr", c.addr), zap.Error(err))
		}
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !c.writeFrame(frame, ok) {
				return
			}
		case <-ticker.C:
			if !c.writePing() {
				return
			}
		}
	}
}

// writeFrame writes one outbound frame, or the close handshake when the send
// channel has been closed by the hub.
func (c *Client) writeFrame(frame []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.hub.log.Warn("failed to set write deadline",
			zap.String("addr", c.addr), zap.Error(err))
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
			c.hub.log.Warn("failed to write close message",
				zap.String("addr", c.addr), zap.Error(err))
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		if !isExpectedCloseError(err) {
			c.hub.log.Warn("failed to write frame",
				zap.String("addr", c.addr), zap.Error(err))
		}
		return false
	}
	return true
}

// writePing keeps the connection alive between frames.
func (c *Client) writePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			c.hub.log.Warn("failed to write ping",
				zap.String("addr", c.addr), zap.Error(err))
		}
		return false
	}
	return true
}

// clientRooms tracks which rooms a connection has joined.
type clientRooms struct {
	mu    sync.Mutex
	names map[string]struct{}
}

func newClientRooms() *clientRooms {
	return &clientRooms{names: make(map[string]struct{})}
}

func (cr *clientRooms) add(name string) {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	cr.names[name] = struct{}{}
}

func (cr *clientRooms) remove(name string) {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	delete(cr.names, name)
}

func (cr *clientRooms) snapshot() []string {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	names := make([]string, 0, len(cr.names))
	for name := range cr.names {
		names = append(names, name)
	}
	return names
}
