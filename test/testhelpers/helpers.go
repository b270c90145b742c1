// Package testhelpers provides common utilities and helper functions for
// testing the PulseHub service.
//
// This package contains reusable test utilities that are shared across the
// integration tests. It provides functions for starting fully wired hubs,
// dialing authenticated WebSocket connections, exchanging protocol envelopes,
// and asserting response properties to reduce code duplication in test files.
package testhelpers

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Tyrowin/pulsehub/internal/auth"
	"github.com/Tyrowin/pulsehub/internal/broker"
	"github.com/Tyrowin/pulsehub/internal/cache"
	"github.com/Tyrowin/pulsehub/internal/hub"
)

// Origin is the origin header value accepted by the default allow-list.
const Origin = "http://localhost:8080"

// Static credentials shared by the integration tests.
const (
	AliceToken = "alice-token"
	BobToken   = "bob-token"
	CarolToken = "carol-token"
	AdminToken = "admin-secret"
)

// Tokens returns the static token set the test hubs verify against.
func Tokens() auth.Static {
	return auth.Static{
		AliceToken: "alice",
		BobToken:   "bob",
		CarolToken: "carol",
	}
}

// NewConfig returns hub defaults with the administrative API enabled for
// tests.
func NewConfig() *hub.Config {
	cfg := hub.NewConfig()
	cfg.AdminToken = AdminToken
	return cfg
}

// StartHub builds a hub on in-process collaborators, runs its event loop, and
// serves its routes. Everything is torn down on test cleanup, hub before
// listener so no hijacked connection outlives the server.
func StartHub(t *testing.T, cfg *hub.Config) (*hub.Hub, *httptest.Server) {
	t.Helper()
	return StartHubWithBroker(t, cfg, broker.NewMemory())
}

// StartHubWithBroker is StartHub with a caller-supplied fan-out adapter, so
// multiple hubs can share one broker in cluster tests.
func StartHubWithBroker(t *testing.T, cfg *hub.Config, b broker.Broker) (*hub.Hub, *httptest.Server) {
	t.Helper()

	h := hub.New(*cfg, Tokens(), cache.NewMemory(), b, zap.NewNop())
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)

	go h.Run()
	t.Cleanup(func() { _ = h.Shutdown(2 * time.Second) })

	return h, srv
}

// WebSocketURL converts a test server URL into its WebSocket endpoint with
// the token and capabilities query parameters attached.
func WebSocketURL(srv *httptest.Server, token string, capabilities ...string) string {
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	sep := "?"
	if token != "" {
		u += sep + "token=" + token
		sep = "&"
	}
	if len(capabilities) > 0 {
		u += sep + "capabilities=" + strings.Join(capabilities, ",")
	}
	return u
}

// Dial connects to the hub's WebSocket endpoint with the default allowed
// origin and fails the test when the handshake does.
func Dial(t *testing.T, srv *httptest.Server, token string, capabilities ...string) *websocket.Conn {
	t.Helper()

	conn, resp, err := DialRaw(srv, token, capabilities...)
	require.NoError(t, err, "websocket handshake failed")
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// DialRaw performs the handshake and returns the raw results, so callers can
// assert on rejected handshakes.
func DialRaw(srv *httptest.Server, token string, capabilities ...string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	headers := http.Header{}
	headers.Set("Origin", Origin)

	return dialer.Dial(WebSocketURL(srv, token, capabilities...), headers)
}

// DialAndAck dials and consumes the connected acknowledgement, returning the
// connection ready for room traffic.
func DialAndAck(t *testing.T, srv *httptest.Server, token string, capabilities ...string) *websocket.Conn {
	t.Helper()

	conn := Dial(t, srv, token, capabilities...)
	ExpectEvent(t, conn, hub.EventConnected, 2*time.Second)
	return conn
}

// SendEvent writes one protocol envelope to the connection.
func SendEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	require.NoError(t, err, "marshal %s data", event)
	require.NoError(t, conn.WriteJSON(hub.Envelope{Event: event, Data: payload}),
		"send %s envelope", event)
}

// ReadEnvelope reads the next envelope off the connection within timeout.
func ReadEnvelope(t *testing.T, conn *websocket.Conn, timeout time.Duration) hub.Envelope {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err, "read envelope")

	var env hub.Envelope
	require.NoError(t, json.Unmarshal(frame, &env), "decode envelope: %s", frame)
	return env
}

// ExpectEvent asserts the next envelope carries the given event and returns
// its payload.
func ExpectEvent(t *testing.T, conn *websocket.Conn, event string, timeout time.Duration) json.RawMessage {
	t.Helper()

	env := ReadEnvelope(t, conn, timeout)
	require.Equal(t, event, env.Event, "unexpected event, data: %s", env.Data)
	return env.Data
}

// WaitForEvent reads envelopes until one matches the given event, discarding
// everything else. Use it where unrelated frames may interleave.
func WaitForEvent(t *testing.T, conn *websocket.Conn, event string, timeout time.Duration) json.RawMessage {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		env := ReadEnvelope(t, conn, time.Until(deadline))
		if env.Event == event {
			return env.Data
		}
	}
	t.Fatalf("timed out waiting for %s event", event)
	return nil
}

// ExpectNoEvent asserts that nothing arrives on the connection within
// timeout. A read timeout or a normal close both count as silence.
func ExpectNoEvent(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	_, frame, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("expected no event, received %s", frame)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return
	}
	t.Fatalf("unexpected error while waiting for absence of events: %v", err)
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}

// MakeRequest creates and executes an HTTP request with an optional bearer
// token and JSON body. It includes a 5-second timeout and fails the test if
// the request cannot be executed.
func MakeRequest(t *testing.T, method, url, token, body string) *http.Response {
	t.Helper()

	client := &http.Client{Timeout: 5 * time.Second}

	var rd io.Reader = http.NoBody
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err, "create request")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	require.NoError(t, err, "execute request")
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}
