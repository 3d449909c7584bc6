package server

import (
	"bytes"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/nexchat/internal/chat"
	"github.com/Tyrowin/nexchat/internal/protocol"
)

func dialWS(t *testing.T, baseURL, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	conn, resp, err := dialer.Dial("ws"+strings.TrimPrefix(baseURL, "http")+"/ws", header)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if conn != nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, resp, err
}

// readEnvelopes reads one websocket frame and splits batched envelopes.
func readEnvelopes(t *testing.T, conn *websocket.Conn) []protocol.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var out []protocol.Envelope
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		env, err := protocol.Decode(line)
		require.NoError(t, err)
		out = append(out, env)
	}
	return out
}

func writeEvent(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()
	frame, err := protocol.Marshal(event, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func setupWS(t *testing.T, baseURL string, user chat.UserID) *websocket.Conn {
	t.Helper()
	conn, _, err := dialWS(t, baseURL, "http://localhost:8080")
	require.NoError(t, err)
	writeEvent(t, conn, protocol.EventSetup, protocol.SetupPayload{UserID: user})
	got := readEnvelopes(t, conn)
	require.Equal(t, protocol.EventConnected, got[0].Event)
	return conn
}

func TestWebSocketRejectsDisallowedOrigin(t *testing.T) {
	_, ts := newTestServer(t)

	_, resp, err := dialWS(t, ts.URL, "http://evil.example")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestWebSocketRejectsPost(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/ws", "text/plain", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

// TestWebSocketEndToEnd drives two real sockets through setup, join, a
// message and a typing signal.
func TestWebSocketEndToEnd(t *testing.T) {
	srv, ts := newTestServer(t)
	alice := setupWS(t, ts.URL, "alice")
	bob := setupWS(t, ts.URL, "bob")

	writeEvent(t, alice, protocol.EventJoinRoom, protocol.RoomPayload{RoomID: "R1"})
	writeEvent(t, bob, protocol.EventJoinRoom, protocol.RoomPayload{RoomID: "R1"})
	require.Eventually(t, func() bool { return srv.hub.RoomSize("R1") == 2 }, time.Second, 5*time.Millisecond)

	writeEvent(t, alice, protocol.EventSendMessage, roomMessage("m1", "R1", "alice", "alice", "bob"))
	got := readEnvelopes(t, bob)
	require.Equal(t, protocol.EventMessageReceived, got[0].Event)
	var msg chat.Message
	require.NoError(t, got[0].Bind(&msg))
	assert.Equal(t, "m1", msg.ID)

	writeEvent(t, alice, protocol.EventTyping, protocol.RoomPayload{RoomID: "R1"})
	got = readEnvelopes(t, bob)
	assert.Equal(t, protocol.EventTyping, got[0].Event)
}

func TestWebSocketMalformedFrameGetsError(t *testing.T) {
	_, ts := newTestServer(t)
	conn := setupWS(t, ts.URL, "alice")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	got := readEnvelopes(t, conn)
	require.Equal(t, protocol.EventError, got[0].Event)

	var p protocol.ErrorPayload
	require.NoError(t, got[0].Bind(&p))
	assert.Equal(t, protocol.CodeInvalidMessage, p.Code)
}

func TestWebSocketDisconnectUnregisters(t *testing.T) {
	srv, ts := newTestServer(t)
	conn := setupWS(t, ts.URL, "alice")
	writeEvent(t, conn, protocol.EventJoinRoom, protocol.RoomPayload{RoomID: "R1"})
	require.Eventually(t, func() bool { return srv.hub.RoomSize("R1") == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	_ = conn.Close()

	assert.Eventually(t, func() bool {
		return srv.hub.RoomSize("R1") == 0 && !srv.hub.Online("alice") && srv.hub.Stats().Connections == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketOversizedFrameCloses(t *testing.T) {
	srv, ts := newTestServer(t)
	conn := setupWS(t, ts.URL, "alice")

	big := bytes.Repeat([]byte("x"), int(srv.cfg.MaxMessageSize)+1)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, big))

	assert.Eventually(t, func() bool { return srv.hub.Stats().Connections == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketGETWithoutUpgrade(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// TestWebSocketRateLimiting verifies frames beyond the burst are discarded
// without closing the connection.
func TestWebSocketRateLimiting(t *testing.T) {
	_, ts := newTestServer(t, func(cfg *Config) {
		cfg.RateLimit = RateLimitConfig{Burst: 3, RefillInterval: time.Hour}
	})
	conn := setupWS(t, ts.URL, "alice")

	for i := 0; i < 6; i++ {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	}

	var errorsSeen int
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		errorsSeen += len(bytes.Split(data, []byte{'\n'}))
	}
	assert.Equal(t, 2, errorsSeen, "setup used one token of the burst")
}

func TestWebSocketClosedOnHubShutdown(t *testing.T) {
	srv, ts := newTestServer(t)
	conn := setupWS(t, ts.URL, "alice")

	require.NoError(t, srv.hub.Shutdown(2*time.Second))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		assert.False(t, netErr.Timeout(), "connection should be closed, not idle")
	}
}

func TestCreateServer(t *testing.T) {
	srv := CreateServer(":9999", http.NewServeMux())

	assert.Equal(t, ":9999", srv.Addr)
	assert.Equal(t, 15*time.Second, srv.ReadTimeout)
	assert.Equal(t, 15*time.Second, srv.WriteTimeout)
	assert.Equal(t, 60*time.Second, srv.IdleTimeout)
}
