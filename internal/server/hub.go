// Package server coordinates connection registration, room membership, typing
// state and message fanout for the NexChat live channel via the Hub type.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/nexchat/internal/chat"
	"github.com/Tyrowin/nexchat/internal/protocol"
)

// inbound is one decoded frame from a connection. err is set when the frame
// could not be decoded.
type inbound struct {
	conn *Connection
	env  protocol.Envelope
	err  error
}

// HubStats is a point-in-time view of the hub.
type HubStats struct {
	Connections int `json:"connections"`
	Users       int `json:"users"`
	Rooms       int `json:"rooms"`
	Typing      int `json:"typing"`
}

// Hub owns every live connection. All registry and room table mutations
// happen on the Run goroutine while holding mutex, so readers never see a
// half-applied teardown.
type Hub struct {
	cfg    *Config
	logger zerolog.Logger

	connections map[*Connection]struct{}
	registry    *ConnectionRegistry
	rooms       *RoomTable
	typing      *TypingTracker
	router      *Router

	register   chan *Connection
	unregister chan *Connection
	inbound    chan inbound
	expired    chan typingKey

	mutex  sync.RWMutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a Hub ready to Run.
func NewHub(cfg *Config, logger zerolog.Logger) *Hub {
	if cfg == nil {
		cfg = NewConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())

	registry := NewConnectionRegistry()
	rooms := NewRoomTable()
	h := &Hub{
		cfg:         cfg,
		logger:      logger.With().Str("component", "hub").Logger(),
		connections: make(map[*Connection]struct{}),
		registry:    registry,
		rooms:       rooms,
		router:      NewRouter(registry, rooms),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		inbound:     make(chan inbound),
		expired:     make(chan typingKey),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	h.typing = NewTypingTracker(cfg.TypingTimeout, h.typingExpired)
	return h
}

// Register hands a new connection to the hub. It returns false once the hub
// is shutting down.
func (h *Hub) Register(c *Connection) bool {
	select {
	case h.register <- c:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Unregister tears c down. It is safe to call more than once.
func (h *Hub) Unregister(c *Connection) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
	}
}

func (h *Hub) dispatch(in inbound) bool {
	select {
	case h.inbound <- in:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// typingExpired runs on a timer goroutine.
func (h *Hub) typingExpired(room chat.RoomID, user chat.UserID) {
	select {
	case h.expired <- typingKey{room: room, user: user}:
	case <-h.ctx.Done():
	}
}

// Run processes hub events until Shutdown is called. It should be started in
// its own goroutine.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownConnections()
			return

		case c := <-h.register:
			h.handleRegister(c)

		case c := <-h.unregister:
			h.teardown(c, "disconnected")

		case in := <-h.inbound:
			h.handleInbound(in)

		case key := <-h.expired:
			h.logger.Debug().Str("room", string(key.room)).Str("user", string(key.user)).Msg("typing expired")
			h.applyDelivery(h.router.RouteTyping(key.room, key.user, false))
		}
	}
}

func (h *Hub) handleRegister(c *Connection) {
	if c == nil {
		h.logger.Warn().Msg("received nil connection registration; skipping")
		return
	}

	h.mutex.Lock()
	c.closed = false
	h.connections[c] = struct{}{}
	count := len(h.connections)
	h.mutex.Unlock()
	h.logger.Info().Str("conn", c.id).Str("addr", c.addr).Int("connections", count).Msg("connection registered")

	if c.conn == nil {
		return
	}
	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		c.writePump()
	}()
	go func() {
		defer h.wg.Done()
		c.readPump()
	}()
}

func (h *Hub) handleInbound(in inbound) {
	c := in.conn
	if c == nil || c.closed {
		return
	}

	if in.err != nil {
		code := protocol.CodeInvalidMessage
		if errors.Is(in.err, protocol.ErrUnknownEvent) {
			code = protocol.CodeUnknownEvent
		}
		c.logger.Warn().Err(in.err).Msg("rejected frame")
		h.replyError(c, code, in.err)
		return
	}

	if in.env.Event == protocol.EventSetup {
		h.handleSetup(c, in.env)
		return
	}
	if c.userID == "" {
		h.replyError(c, protocol.CodeSetupRequired, fmt.Errorf("%s before setup", in.env.Event))
		return
	}

	switch in.env.Event {
	case protocol.EventJoinRoom:
		h.handleMembership(c, in.env, true)
	case protocol.EventLeaveRoom:
		h.handleMembership(c, in.env, false)
	case protocol.EventSendMessage:
		h.handleSendMessage(c, in.env)
	case protocol.EventTyping, protocol.EventStopTyping:
		h.handleTyping(c, in.env)
	default:
		h.replyError(c, protocol.CodeUnknownEvent, fmt.Errorf("%w: %q is server to client only", protocol.ErrUnknownEvent, in.env.Event))
	}
}

func (h *Hub) handleSetup(c *Connection, env protocol.Envelope) {
	var p protocol.SetupPayload
	if err := env.Bind(&p); err != nil {
		h.replyError(c, protocol.CodeInvalidMessage, err)
		return
	}
	if err := chat.ValidateUserID(p.UserID); err != nil {
		h.replyError(c, protocol.CodeInvalidMessage, err)
		return
	}

	h.mutex.Lock()
	err := h.registry.Register(p.UserID, c)
	h.mutex.Unlock()
	if err != nil {
		c.logger.Warn().Str("user", string(p.UserID)).Str("bound", string(c.userID)).Msg("identity conflict on setup")
		h.replyError(c, protocol.CodeIdentityConflict, err)
		return
	}

	c.logger.Info().Str("user", string(p.UserID)).Msg("connection set up")
	h.reply(c, protocol.EventConnected, protocol.ConnectedPayload{UserID: p.UserID, ConnectionID: c.id})
}

func (h *Hub) handleMembership(c *Connection, env protocol.Envelope, join bool) {
	var p protocol.RoomPayload
	if err := env.Bind(&p); err != nil {
		h.replyError(c, protocol.CodeInvalidMessage, err)
		return
	}
	if p.RoomID == "" {
		h.replyError(c, protocol.CodeInvalidMessage, fmt.Errorf("%s: missing room id", env.Event))
		return
	}

	h.mutex.Lock()
	if join {
		h.rooms.Join(p.RoomID, c)
	} else {
		h.rooms.Leave(p.RoomID, c)
	}
	h.mutex.Unlock()

	c.logger.Debug().Str("room", string(p.RoomID)).Bool("join", join).Msg("room membership changed")
}

func (h *Hub) handleSendMessage(c *Connection, env protocol.Envelope) {
	var msg chat.Message
	if err := env.Bind(&msg); err != nil {
		h.replyError(c, protocol.CodeInvalidMessage, fmt.Errorf("%w: %v", chat.ErrInvalidMessage, err))
		return
	}
	if msg.SenderID != c.userID {
		h.replyError(c, protocol.CodeInvalidMessage, fmt.Errorf("%w: sender %q does not match connection identity", chat.ErrInvalidMessage, msg.SenderID))
		return
	}

	d, err := h.router.RouteMessage(msg)
	if err != nil {
		c.logger.Warn().Err(err).Str("message", msg.ID).Msg("dropping unroutable message")
		h.replyError(c, protocol.CodeInvalidMessage, err)
		return
	}
	c.logger.Debug().Str("message", msg.ID).Str("room", string(msg.RoomID)).Int("delivered", d.Delivered).Msg("message routed")
	h.applyDelivery(d)
}

func (h *Hub) handleTyping(c *Connection, env protocol.Envelope) {
	var p protocol.RoomPayload
	if err := env.Bind(&p); err != nil {
		h.replyError(c, protocol.CodeInvalidMessage, err)
		return
	}
	if p.RoomID == "" {
		h.replyError(c, protocol.CodeInvalidMessage, fmt.Errorf("%s: missing room id", env.Event))
		return
	}

	typing := env.Event == protocol.EventTyping
	var changed bool
	if typing {
		changed = h.typing.Signal(p.RoomID, c.userID)
	} else {
		changed = h.typing.Stop(p.RoomID, c.userID)
	}
	if changed {
		h.applyDelivery(h.router.RouteTyping(p.RoomID, c.userID, typing))
	}
}

func (h *Hub) reply(c *Connection, event string, payload any) {
	frame, err := protocol.Marshal(event, payload)
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Msg("failed to encode reply")
		return
	}
	if !c.deliver(frame) {
		h.teardown(c, "send buffer full")
	}
}

func (h *Hub) replyError(c *Connection, code string, err error) {
	h.reply(c, protocol.EventError, protocol.ErrorPayload{Code: code, Message: err.Error()})
}

func (h *Hub) applyDelivery(d Delivery) {
	for _, c := range d.Failed {
		h.teardown(c, "send buffer full")
	}
}

// teardown removes c from every room and from the registry in one locked
// step, then closes its send channel.
func (h *Hub) teardown(c *Connection, reason string) {
	h.mutex.Lock()
	if _, ok := h.connections[c]; !ok || c.closed {
		h.mutex.Unlock()
		return
	}
	h.rooms.RemoveConnection(c)
	h.registry.Unregister(c)
	delete(h.connections, c)
	c.closed = true
	count := len(h.connections)
	h.mutex.Unlock()

	close(c.send)
	h.logger.Info().Str("conn", c.id).Str("user", string(c.userID)).Str("reason", reason).Int("connections", count).Msg("connection unregistered")
}

// shutdownConnections closes every live connection and stops typing timers.
func (h *Hub) shutdownConnections() {
	h.logger.Info().Msg("shutting down all connections")
	h.typing.Close()

	h.mutex.RLock()
	conns := make([]*Connection, 0, len(h.connections))
	for c := range h.connections {
		conns = append(conns, c)
	}
	h.mutex.RUnlock()

	for _, c := range conns {
		h.teardown(c, "shutdown")
		if c.conn != nil {
			if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
				h.logger.Debug().Err(err).Str("conn", c.id).Msg("error closing connection")
			}
		}
	}

	h.logger.Info().Int("closed", len(conns)).Msg("closed connections")
}

// Stats returns current counts.
func (h *Hub) Stats() HubStats {
	h.mutex.RLock()
	s := HubStats{
		Connections: len(h.connections),
		Users:       len(h.registry.byUser),
		Rooms:       h.rooms.Len(),
	}
	h.mutex.RUnlock()
	s.Typing = h.typing.Len()
	return s
}

// RoomSize returns the number of connections joined to room.
func (h *Hub) RoomSize(room chat.RoomID) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.rooms.rooms[room])
}

// Online reports whether user has a live connection.
func (h *Hub) Online(user chat.UserID) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.registry.Online(user)
}

// Shutdown stops the run loop and waits for connection goroutines to finish
// or for timeout to elapse.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.logger.Info().Msg("initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info().Msg("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.logger.Warn().Msg("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
