// Package server manages individual WebSocket connections, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Tyrowin/nexchat/internal/chat"
	"github.com/Tyrowin/nexchat/internal/protocol"
)

const writeWait = 10 * time.Second

// Connection is one live websocket channel. The hub owns it for routing: the
// identity, room set and closed flag are written only by the hub run loop
// while holding the hub mutex.
type Connection struct {
	id             string
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	addr           string
	maxMessageSize int64
	idleTimeout    time.Duration
	pingPeriod     time.Duration
	rateLimiter    *rate.Limiter
	rateLimit      RateLimitConfig
	logger         zerolog.Logger

	userID chat.UserID
	rooms  map[chat.RoomID]struct{}
	closed bool
}

// NewConnection creates a Connection for an upgraded websocket. conn may be
// nil for connections driven directly through the hub, as tests do.
func NewConnection(conn *websocket.Conn, hub *Hub, addr string) *Connection {
	cfg := hub.cfg
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	id := uuid.New().String()
	return &Connection{
		id:             id,
		conn:           conn,
		send:           make(chan []byte, cfg.SendBuffer),
		hub:            hub,
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		idleTimeout:    cfg.IdleTimeout,
		pingPeriod:     cfg.PingPeriod(),
		rateLimiter:    newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:      cfg.RateLimit,
		logger:         hub.logger.With().Str("conn", id).Str("addr", addr).Logger(),
		rooms:          make(map[chat.RoomID]struct{}),
	}
}

// ID returns the connection's unique id.
func (c *Connection) ID() string {
	return c.id
}

// GetSendChan returns the client's send channel for reading outgoing messages.
// This channel is read-only from the caller's perspective.
func (c *Connection) GetSendChan() <-chan []byte {
	return c.send
}

// deliver queues payload without blocking. It must only be called from the
// hub run loop, which is also the only place the send channel is closed.
func (c *Connection) deliver(payload []byte) bool {
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// setupReadConnection configures the idle deadline and pong handler.
func (c *Connection) setupReadConnection() {
	c.extendReadDeadline()
	c.conn.SetPongHandler(func(string) error {
		c.extendReadDeadline()
		return nil
	})
}

func (c *Connection) extendReadDeadline() {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout)); err != nil {
		c.logger.Debug().Err(err).Msg("error setting read deadline")
	}
}

// handleReadError logs appropriate error messages based on the error type
// and returns true if the read loop should break
func (c *Connection) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		c.logger.Warn().Int64("limit", c.maxMessageSize).Msg("message exceeded maximum size")
		return true
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		c.logger.Info().Err(err).Msg("client disconnected")
		return true
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		c.logger.Info().Err(err).Msg("connection closed")
		return true
	}

	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig) {
		c.logger.Warn().Err(err).Msg("unexpected websocket close")
		return true
	}

	// Deadline expiry lands here: the connection was idle for too long.
	c.logger.Info().Err(err).Msg("websocket read error")
	return true
}

// checkRateLimit reports whether the next inbound frame may be processed.
func (c *Connection) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.Allow() {
		c.logger.Warn().
			Int("burst", c.rateLimit.Burst).
			Dur("interval", c.rateLimit.RefillInterval).
			Msg("rate limit exceeded; discarding message")
		return false
	}
	return true
}

// processMessage decodes one frame and hands it to the hub. Malformed frames
// are still forwarded so the hub can answer with an error event.
func (c *Connection) processMessage(raw []byte) bool {
	env, err := protocol.Decode(raw)
	return c.hub.dispatch(inbound{conn: c, env: env, err: err})
}

func (c *Connection) readPump() {
	defer func() {
		c.hub.Unregister(c)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.logger.Debug().Err(err).Msg("error closing connection in readPump")
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if c.handleReadError(err) {
			return
		}
		c.extendReadDeadline()

		if !c.checkRateLimit() {
			continue
		}

		if !c.processMessage(raw) {
			return
		}
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Connection) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Connection) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.logger.Debug().Err(err).Msg("error closing connection in writePump")
	}
}

// handleMessage processes outgoing messages and returns false if the connection should be closed
func (c *Connection) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Debug().Err(err).Msg("error setting write deadline")
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	return c.writeTextMessage(message)
}

// writeCloseMessage sends a close message to the client
func (c *Connection) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
		c.logger.Debug().Err(err).Msg("error writing close message")
	}
	return false
}

// writeTextMessage writes a frame and batches any queued frames into it,
// newline separated.
func (c *Connection) writeTextMessage(message []byte) bool {
	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		c.logger.Debug().Err(err).Msg("error creating writer")
		return false
	}

	if _, err := w.Write(message); err != nil {
		c.logger.Debug().Err(err).Msg("error writing message")
		return false
	}

	n := len(c.send)
	for i := 0; i < n; i++ {
		queued, ok := <-c.send
		if !ok {
			break
		}
		if _, err := w.Write([]byte{'\n'}); err != nil {
			c.logger.Debug().Err(err).Msg("error writing newline")
			return false
		}
		if _, err := w.Write(queued); err != nil {
			c.logger.Debug().Err(err).Msg("error writing queued message")
			return false
		}
	}

	if err := w.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("error closing writer")
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (c *Connection) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Debug().Err(err).Msg("error setting write deadline for ping")
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Debug().Err(err).Msg("error writing ping message")
		return false
	}
	return true
}
