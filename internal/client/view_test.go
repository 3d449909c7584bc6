package client

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Tyrowin/nexchat/internal/chat"
)

func msg(id string, room chat.RoomID, sender chat.UserID) chat.Message {
	return chat.Message{ID: id, RoomID: room, SenderID: sender, Content: "content " + id}
}

func ids(msgs []chat.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestViewOpenReplacesList(t *testing.T) {
	v := NewView("alice")
	v.Open("r1", []chat.Message{msg("m1", "r1", "bob"), msg("m2", "r1", "alice"), msg("m1", "r1", "bob")})
	assert.Equal(t, []string{"m1", "m2"}, ids(v.Messages()))

	v.Open("r2", []chat.Message{msg("m9", "r2", "bob")})
	assert.Equal(t, []string{"m9"}, ids(v.Messages()))
	room, open := v.OpenRoom()
	assert.True(t, open)
	assert.Equal(t, chat.RoomID("r2"), room)

	v.Close()
	_, open = v.OpenRoom()
	assert.False(t, open)
	assert.Empty(t, v.Messages())
}

// TestViewOptimisticAppendThenEcho covers the sender's view: the local copy
// stays single when the same message comes back over the live channel.
func TestViewOptimisticAppendThenEcho(t *testing.T) {
	v := NewView("alice")
	v.Open("R1", nil)

	m1 := msg("m1", "R1", "alice")
	assert.True(t, v.AppendLocal(m1))
	assert.False(t, v.AppendLocal(m1))
	assert.Equal(t, OutcomeOwnEcho, v.Receive(m1))

	assert.Equal(t, []string{"m1"}, ids(v.Messages()))
	assert.Empty(t, v.Notifications())
}

func TestViewReceiveInOpenRoom(t *testing.T) {
	v := NewView("bob")
	v.Open("R1", []chat.Message{msg("m0", "R1", "alice")})

	assert.Equal(t, OutcomeAppended, v.Receive(msg("m1", "R1", "alice")))
	assert.Equal(t, OutcomeDuplicate, v.Receive(msg("m1", "R1", "alice")))
	assert.Equal(t, OutcomeDuplicate, v.Receive(msg("m0", "R1", "alice")))
	assert.Equal(t, OutcomeAppended, v.Receive(msg("m2", "R1", "carol")))

	assert.Equal(t, []string{"m0", "m1", "m2"}, ids(v.Messages()))
}

// TestViewNotificationForOtherRoom covers a message for a room that is not
// open: it is notified once and never appended.
func TestViewNotificationForOtherRoom(t *testing.T) {
	v := NewView("bob")
	v.Open("R2", nil)

	m2 := msg("m2", "R1", "alice")
	assert.Equal(t, OutcomeNotified, v.Receive(m2))
	assert.Equal(t, OutcomeDuplicate, v.Receive(m2))

	assert.Empty(t, v.Messages())
	assert.Equal(t, []string{"m2"}, ids(v.Notifications()))
}

func TestViewNotificationsWhileClosed(t *testing.T) {
	v := NewView("bob")

	assert.Equal(t, OutcomeNotified, v.Receive(msg("m1", "R1", "alice")))
	assert.Equal(t, OutcomeNotified, v.Receive(msg("m2", "R2", "alice")))
	assert.Equal(t, OutcomeNotified, v.Receive(msg("m3", "R1", "bob")), "own messages from another device still notify")

	assert.Equal(t, []string{"m3", "m2", "m1"}, ids(v.Notifications()), "newest first")
	assert.False(t, v.AppendLocal(msg("m4", "R1", "bob")), "nothing open")
}

func TestViewOpenClearsRoomNotifications(t *testing.T) {
	v := NewView("bob")
	v.Receive(msg("m1", "R1", "alice"))
	v.Receive(msg("m2", "R2", "alice"))
	v.Receive(msg("m3", "R1", "carol"))

	cleared := v.Open("R1", []chat.Message{msg("m1", "R1", "alice"), msg("m3", "R1", "carol")})

	assert.ElementsMatch(t, []string{"m1", "m3"}, cleared)
	assert.Equal(t, []string{"m2"}, ids(v.Notifications()))

	v.Close()
	assert.Equal(t, OutcomeNotified, v.Receive(msg("m1", "R1", "alice")), "cleared ids can notify again")
}

func TestViewAcknowledge(t *testing.T) {
	v := NewView("bob")
	v.Receive(msg("m1", "R1", "alice"))
	v.Receive(msg("m2", "R1", "alice"))

	assert.True(t, v.Acknowledge("m1"))
	assert.False(t, v.Acknowledge("m1"))
	assert.False(t, v.Acknowledge("unknown"))
	assert.Equal(t, []string{"m2"}, ids(v.Notifications()))
}

func TestViewTyping(t *testing.T) {
	v := NewView("bob")
	v.SetTyping("R1", "alice", true)
	assert.False(t, v.Typing(), "no room open")

	v.Open("R1", nil)
	v.SetTyping("R1", "alice", true)
	v.SetTyping("R2", "carol", true)
	v.SetTyping("R1", "bob", true)
	assert.True(t, v.Typing())
	assert.Equal(t, []chat.UserID{"alice"}, v.TypingUsers())

	v.SetTyping("R1", "alice", false)
	assert.False(t, v.Typing())

	v.SetTyping("R1", "alice", true)
	v.Open("R2", nil)
	assert.False(t, v.Typing(), "switching rooms resets typing")
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "appended", OutcomeAppended.String())
	assert.Equal(t, "own-echo", OutcomeOwnEcho.String())
	assert.Equal(t, "unknown", Outcome(42).String())
}
