// Package chat defines the domain types shared by the routing server, the
// persistence layer and the client: identities, rooms, messages and
// notifications.
package chat

import "time"

// UserID is the stable identity a connection is set up with.
type UserID string

// RoomID identifies one conversation.
type RoomID string

// Room is a conversation together with its persisted participant list.
// Live room membership is tracked separately per connection by the server.
type Room struct {
	ID        RoomID    `json:"id"`
	Name      string    `json:"name"`
	Members   []UserID  `json:"members"`
	CreatedAt time.Time `json:"created_at"`
}

// HasMember reports whether user is one of the room's participants.
func (r Room) HasMember(user UserID) bool {
	for _, m := range r.Members {
		if m == user {
			return true
		}
	}
	return false
}

// Message is a persisted chat message. It is never mutated after the
// persistence layer creates it.
type Message struct {
	ID        string    `json:"id"`
	RoomID    RoomID    `json:"room_id"`
	SenderID  UserID    `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`

	// Room carries the resolved participant list so the router can fan the
	// message out without calling back into persistence.
	Room *Room `json:"room,omitempty"`
}

// Notification marks a message that arrived for a room the user did not have
// open.
type Notification struct {
	UserID    UserID    `json:"user_id"`
	MessageID string    `json:"message_id"`
	RoomID    RoomID    `json:"room_id"`
	CreatedAt time.Time `json:"created_at"`
}
