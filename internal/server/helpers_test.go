package server

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/nexchat/internal/chat"
	"github.com/Tyrowin/nexchat/internal/protocol"
)

func testConfig() *Config {
	cfg := NewConfig()
	cfg.TypingTimeout = 50 * time.Millisecond
	cfg.SendBuffer = 16
	return cfg
}

// startHub runs a hub for the duration of the test.
func startHub(t *testing.T, cfg *Config) *Hub {
	t.Helper()
	h := NewHub(cfg, zerolog.Nop())
	go h.Run()
	t.Cleanup(func() { _ = h.Shutdown(time.Second) })
	return h
}

// socketless returns a connection without a websocket; frames queued for it
// stay on its send channel.
func socketless(h *Hub) *Connection {
	return NewConnection(nil, h, "test")
}

// connectAs registers a socketless connection and completes setup.
func connectAs(t *testing.T, h *Hub, user chat.UserID) *Connection {
	t.Helper()
	c := socketless(h)
	require.True(t, h.Register(c))
	emit(t, h, c, protocol.EventSetup, protocol.SetupPayload{UserID: user})
	env := recvEvent(t, c)
	require.Equal(t, protocol.EventConnected, env.Event)
	return c
}

func emit(t *testing.T, h *Hub, c *Connection, event string, payload any) {
	t.Helper()
	env, err := protocol.New(event, payload)
	require.NoError(t, err)
	require.True(t, h.dispatch(inbound{conn: c, env: env}))
}

func recvEvent(t *testing.T, c *Connection) protocol.Envelope {
	t.Helper()
	select {
	case frame, ok := <-c.GetSendChan():
		require.True(t, ok, "send channel closed")
		env, err := protocol.Decode(frame)
		require.NoError(t, err)
		return env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return protocol.Envelope{}
}

func expectSilence(t *testing.T, c *Connection) {
	t.Helper()
	select {
	case frame, ok := <-c.GetSendChan():
		if ok {
			t.Fatalf("unexpected frame: %s", frame)
		}
		t.Fatal("send channel closed")
	case <-time.After(50 * time.Millisecond):
	}
}

func roomMessage(id string, room chat.RoomID, sender chat.UserID, members ...chat.UserID) chat.Message {
	return chat.Message{
		ID:        id,
		RoomID:    room,
		SenderID:  sender,
		Content:   "hello",
		CreatedAt: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		Room:      &chat.Room{ID: room, Name: string(room), Members: members},
	}
}
