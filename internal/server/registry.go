package server

import (
	"errors"

	"github.com/Tyrowin/nexchat/internal/chat"
)

// ErrIdentityConflict is returned when a connection that already announced
// one identity tries to register as another.
var ErrIdentityConflict = errors.New("connection already bound to another identity")

// ConnectionRegistry maps user identities to their live connections. It has
// no lock of its own: the hub mutates it from the run loop under the hub
// mutex.
type ConnectionRegistry struct {
	byUser map[chat.UserID]map[*Connection]struct{}
	byConn map[*Connection]chat.UserID
}

// NewConnectionRegistry returns an empty registry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		byUser: make(map[chat.UserID]map[*Connection]struct{}),
		byConn: make(map[*Connection]chat.UserID),
	}
}

// Register adds conn to user's live set. Registering the same pair again is
// a no-op.
func (r *ConnectionRegistry) Register(user chat.UserID, conn *Connection) error {
	if existing, ok := r.byConn[conn]; ok {
		if existing != user {
			return ErrIdentityConflict
		}
		return nil
	}

	set, ok := r.byUser[user]
	if !ok {
		set = make(map[*Connection]struct{})
		r.byUser[user] = set
	}
	set[conn] = struct{}{}
	r.byConn[conn] = user
	conn.userID = user
	return nil
}

// Unregister removes conn. Unknown connections are ignored.
func (r *ConnectionRegistry) Unregister(conn *Connection) {
	user, ok := r.byConn[conn]
	if !ok {
		return
	}
	delete(r.byConn, conn)

	set := r.byUser[user]
	delete(set, conn)
	if len(set) == 0 {
		delete(r.byUser, user)
	}
}

// ConnectionsFor returns the live connections of user in no particular order.
func (r *ConnectionRegistry) ConnectionsFor(user chat.UserID) []*Connection {
	set := r.byUser[user]
	if len(set) == 0 {
		return nil
	}
	conns := make([]*Connection, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	return conns
}

// IdentityOf returns the identity conn registered under.
func (r *ConnectionRegistry) IdentityOf(conn *Connection) (chat.UserID, bool) {
	user, ok := r.byConn[conn]
	return user, ok
}

// Online reports whether user has at least one live connection.
func (r *ConnectionRegistry) Online(user chat.UserID) bool {
	return len(r.byUser[user]) > 0
}

// Users returns every identity with a live connection.
func (r *ConnectionRegistry) Users() []chat.UserID {
	users := make([]chat.UserID, 0, len(r.byUser))
	for u := range r.byUser {
		users = append(users, u)
	}
	return users
}

// Len returns the number of registered connections.
func (r *ConnectionRegistry) Len() int {
	return len(r.byConn)
}
