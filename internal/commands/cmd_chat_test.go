package commands

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/nexchat/internal/chat"
	"github.com/Tyrowin/nexchat/internal/client"
)

func TestWebsocketURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "http://localhost:8080", want: "ws://localhost:8080/ws"},
		{in: "https://chat.example/", want: "wss://chat.example/ws"},
		{in: "http://host/prefix", want: "ws://host/prefix/ws"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := websocketURL(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderPrintsChanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan client.Snapshot)
	var out bytes.Buffer

	done := make(chan error, 1)
	go func() { done <- render(ctx, &out, updates) }()

	at := time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)
	m1 := chat.Message{ID: "m1", RoomID: "R1", SenderID: "bob", Content: "hi", CreatedAt: at}
	m2 := chat.Message{ID: "m2", RoomID: "R2", SenderID: "carol", Content: "psst", CreatedAt: at}

	updates <- client.Snapshot{Room: "R1", Open: true, Messages: []chat.Message{m1}}
	updates <- client.Snapshot{Room: "R1", Open: true, Messages: []chat.Message{m1}, Typing: true}
	updates <- client.Snapshot{Room: "R1", Open: true, Messages: []chat.Message{m1}, Notifications: []chat.Message{m2}}
	updates <- client.Snapshot{Room: "R1", Open: true, Messages: []chat.Message{m1}, Notifications: []chat.Message{m2}}

	cancel()
	require.NoError(t, <-done)

	want := "== R1 ==\n" +
		"[09:30:00] bob: hi\n" +
		"... someone is typing\n" +
		"* new message in R2 from carol (m2)\n"
	assert.Equal(t, want, out.String())
}

func TestFlagsUserID(t *testing.T) {
	f := &Flags{}
	_, err := f.UserID()
	assert.ErrorIs(t, err, chat.ErrUserIDEmpty)

	f.User = "alice"
	user, err := f.UserID()
	require.NoError(t, err)
	assert.Equal(t, chat.UserID("alice"), user)
}
