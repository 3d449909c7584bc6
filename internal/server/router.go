package server

import (
	"fmt"

	"github.com/Tyrowin/nexchat/internal/chat"
	"github.com/Tyrowin/nexchat/internal/protocol"
)

// Delivery summarizes one fanout.
type Delivery struct {
	Delivered int
	// Failed lists connections whose send buffer was full. The hub tears
	// them down.
	Failed []*Connection
}

// Router computes fanout targets from the registry and the room table and
// queues envelopes on the target connections. It is only used from the hub
// run loop.
type Router struct {
	registry *ConnectionRegistry
	rooms    *RoomTable
}

// NewRouter creates a Router over registry and rooms.
func NewRouter(registry *ConnectionRegistry, rooms *RoomTable) *Router {
	return &Router{registry: registry, rooms: rooms}
}

// RouteMessage delivers msg to every live connection of every member of the
// attached room except the sender. Membership comes from the message itself,
// so members that never joined the room on the live channel still receive it.
func (r *Router) RouteMessage(msg chat.Message) (Delivery, error) {
	if err := validateRoutable(msg); err != nil {
		return Delivery{}, err
	}

	payload, err := protocol.Marshal(protocol.EventMessageReceived, msg)
	if err != nil {
		return Delivery{}, fmt.Errorf("%w: %v", chat.ErrInvalidMessage, err)
	}

	var (
		d         Delivery
		seenUsers = make(map[chat.UserID]struct{}, len(msg.Room.Members))
		seenConns = make(map[*Connection]struct{})
	)
	for _, member := range msg.Room.Members {
		if member == msg.SenderID {
			continue
		}
		if _, dup := seenUsers[member]; dup {
			continue
		}
		seenUsers[member] = struct{}{}

		for _, c := range r.registry.ConnectionsFor(member) {
			if _, dup := seenConns[c]; dup || c.userID == msg.SenderID {
				continue
			}
			seenConns[c] = struct{}{}
			r.deliver(&d, c, payload)
		}
	}
	return d, nil
}

// RouteTyping announces a typing transition of user to the room's current
// members, skipping every connection of user.
func (r *Router) RouteTyping(room chat.RoomID, user chat.UserID, typing bool) Delivery {
	event := protocol.EventStopTyping
	if typing {
		event = protocol.EventTyping
	}
	payload, err := protocol.Marshal(event, protocol.TypingPayload{RoomID: room, UserID: user, Typing: typing})
	if err != nil {
		return Delivery{}
	}

	var d Delivery
	for _, c := range r.rooms.MembersOf(room) {
		if c.userID == user {
			continue
		}
		r.deliver(&d, c, payload)
	}
	return d
}

func (r *Router) deliver(d *Delivery, c *Connection, payload []byte) {
	if c.deliver(payload) {
		d.Delivered++
		return
	}
	d.Failed = append(d.Failed, c)
}

func validateRoutable(msg chat.Message) error {
	switch {
	case msg.ID == "":
		return fmt.Errorf("%w: missing id", chat.ErrInvalidMessage)
	case msg.RoomID == "":
		return fmt.Errorf("%w: missing room id", chat.ErrInvalidMessage)
	case msg.SenderID == "":
		return fmt.Errorf("%w: missing sender", chat.ErrInvalidMessage)
	case msg.Room == nil:
		return fmt.Errorf("%w: missing room membership", chat.ErrInvalidMessage)
	case msg.Room.ID != msg.RoomID:
		return fmt.Errorf("%w: room %q does not match message room %q", chat.ErrInvalidMessage, msg.Room.ID, msg.RoomID)
	case len(msg.Room.Members) == 0:
		return fmt.Errorf("%w: room has no members", chat.ErrInvalidMessage)
	}
	for _, m := range msg.Room.Members {
		if m == "" {
			return fmt.Errorf("%w: blank member id", chat.ErrInvalidMessage)
		}
	}
	return nil
}
