package server

import "github.com/Tyrowin/nexchat/internal/chat"

// RoomTable indexes live connections by the rooms they joined. The room set
// kept on each Connection mirrors the index; both change only through the
// table. Like ConnectionRegistry it relies on the hub for locking.
type RoomTable struct {
	rooms map[chat.RoomID]map[*Connection]struct{}
}

// NewRoomTable returns an empty table.
func NewRoomTable() *RoomTable {
	return &RoomTable{rooms: make(map[chat.RoomID]map[*Connection]struct{})}
}

// Join adds conn to room. Joining twice is a no-op.
func (t *RoomTable) Join(room chat.RoomID, conn *Connection) {
	members, ok := t.rooms[room]
	if !ok {
		members = make(map[*Connection]struct{})
		t.rooms[room] = members
	}
	members[conn] = struct{}{}
	conn.rooms[room] = struct{}{}
}

// Leave removes conn from room. Leaving a room never joined is a no-op.
func (t *RoomTable) Leave(room chat.RoomID, conn *Connection) {
	delete(conn.rooms, room)

	members, ok := t.rooms[room]
	if !ok {
		return
	}
	delete(members, conn)
	if len(members) == 0 {
		delete(t.rooms, room)
	}
}

// MembersOf returns the connections currently in room.
func (t *RoomTable) MembersOf(room chat.RoomID) []*Connection {
	members := t.rooms[room]
	if len(members) == 0 {
		return nil
	}
	conns := make([]*Connection, 0, len(members))
	for c := range members {
		conns = append(conns, c)
	}
	return conns
}

// RemoveConnection drops conn from every room it joined.
func (t *RoomTable) RemoveConnection(conn *Connection) {
	for room := range conn.rooms {
		t.Leave(room, conn)
	}
}

// RoomsOf returns the rooms conn has joined.
func (t *RoomTable) RoomsOf(conn *Connection) []chat.RoomID {
	rooms := make([]chat.RoomID, 0, len(conn.rooms))
	for room := range conn.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// Len returns the number of non-empty rooms.
func (t *RoomTable) Len() int {
	return len(t.rooms)
}
