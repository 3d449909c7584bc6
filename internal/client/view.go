// Package client is the chat client core: the reconciliation view that merges
// history, local sends and live events, the session loop that owns it, and
// the HTTP and websocket adapters it talks through.
package client

import "github.com/Tyrowin/nexchat/internal/chat"

// Outcome describes what Receive did with a live message.
type Outcome int

const (
	// OutcomeAppended means the message joined the open room's list.
	OutcomeAppended Outcome = iota
	// OutcomeNotified means a new notification was raised for another room.
	OutcomeNotified
	// OutcomeDuplicate means the message id was already listed or notified.
	OutcomeDuplicate
	// OutcomeOwnEcho means the local user sent the message; the local copy
	// is already in the list.
	OutcomeOwnEcho
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAppended:
		return "appended"
	case OutcomeNotified:
		return "notified"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeOwnEcho:
		return "own-echo"
	default:
		return "unknown"
	}
}

// View is the client state for one user: at most one open room with its
// visible message list, the unread notifications and who is typing in the
// open room. It is not safe for concurrent use; Session confines it to one
// goroutine.
type View struct {
	self chat.UserID

	room     chat.RoomID
	open     bool
	messages []chat.Message
	listed   map[string]struct{}

	// notifications are newest first.
	notifications []chat.Message
	notified      map[string]struct{}

	typing map[chat.UserID]struct{}
}

// NewView returns a view with no room open.
func NewView(self chat.UserID) *View {
	return &View{
		self:     self,
		listed:   make(map[string]struct{}),
		notified: make(map[string]struct{}),
		typing:   make(map[chat.UserID]struct{}),
	}
}

// Open makes room the open room with history as its list, replacing whatever
// was shown before. Notifications for room are cleared and their message ids
// returned so the caller can acknowledge them.
func (v *View) Open(room chat.RoomID, history []chat.Message) []string {
	v.Close()
	v.room = room
	v.open = true
	for _, m := range history {
		v.append(m)
	}

	var cleared []string
	kept := v.notifications[:0]
	for _, n := range v.notifications {
		if n.RoomID == room {
			cleared = append(cleared, n.ID)
			delete(v.notified, n.ID)
			continue
		}
		kept = append(kept, n)
	}
	v.notifications = kept
	return cleared
}

// Close discards the open room's list.
func (v *View) Close() {
	v.room = ""
	v.open = false
	v.messages = nil
	v.listed = make(map[string]struct{})
	v.typing = make(map[chat.UserID]struct{})
}

// OpenRoom returns the open room, if any.
func (v *View) OpenRoom() (chat.RoomID, bool) {
	return v.room, v.open
}

// AppendLocal adds a message the local user just persisted. It reports
// whether the message was added.
func (v *View) AppendLocal(msg chat.Message) bool {
	if !v.open || msg.RoomID != v.room {
		return false
	}
	return v.append(msg)
}

// Receive reconciles a live message against the view.
func (v *View) Receive(msg chat.Message) Outcome {
	if !v.open || msg.RoomID != v.room {
		if _, ok := v.notified[msg.ID]; ok {
			return OutcomeDuplicate
		}
		v.notified[msg.ID] = struct{}{}
		v.notifications = append([]chat.Message{msg}, v.notifications...)
		return OutcomeNotified
	}

	if msg.SenderID == v.self {
		return OutcomeOwnEcho
	}
	if !v.append(msg) {
		return OutcomeDuplicate
	}
	return OutcomeAppended
}

func (v *View) append(msg chat.Message) bool {
	if _, ok := v.listed[msg.ID]; ok {
		return false
	}
	v.listed[msg.ID] = struct{}{}
	v.messages = append(v.messages, msg)
	return true
}

// Acknowledge removes the notification for id and reports whether one existed.
func (v *View) Acknowledge(id string) bool {
	if _, ok := v.notified[id]; !ok {
		return false
	}
	delete(v.notified, id)
	for i, n := range v.notifications {
		if n.ID == id {
			v.notifications = append(v.notifications[:i], v.notifications[i+1:]...)
			break
		}
	}
	return true
}

// SetTyping records a typing broadcast. Broadcasts for other rooms are ignored.
func (v *View) SetTyping(room chat.RoomID, user chat.UserID, typing bool) {
	if !v.open || room != v.room || user == v.self {
		return
	}
	if typing {
		v.typing[user] = struct{}{}
	} else {
		delete(v.typing, user)
	}
}

// Typing reports whether anyone else is typing in the open room.
func (v *View) Typing() bool {
	return len(v.typing) > 0
}

// TypingUsers returns who is typing in the open room.
func (v *View) TypingUsers() []chat.UserID {
	users := make([]chat.UserID, 0, len(v.typing))
	for u := range v.typing {
		users = append(users, u)
	}
	return users
}

// Messages returns a copy of the open room's list in arrival order.
func (v *View) Messages() []chat.Message {
	return append([]chat.Message(nil), v.messages...)
}

// Notifications returns a copy of the unread notifications, newest first.
func (v *View) Notifications() []chat.Message {
	return append([]chat.Message(nil), v.notifications...)
}
