package client

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/nexchat/internal/chat"
	"github.com/Tyrowin/nexchat/internal/protocol"
)

const writeWait = 10 * time.Second

// Socket is the client end of the live channel.
type Socket struct {
	conn   *websocket.Conn
	writeM sync.Mutex
	events chan protocol.Envelope
	done   chan struct{}
	once   sync.Once
	logger zerolog.Logger
}

// Dial connects to the websocket endpoint at wsURL. origin must be on the
// server's allow list.
func Dial(ctx context.Context, wsURL, origin string, logger zerolog.Logger) (*Socket, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := http.Header{}
	header.Set("Origin", origin)

	conn, resp, err := dialer.DialContext(ctx, wsURL, header)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", chat.ErrTransport, wsURL, err)
	}

	s := &Socket{
		conn:   conn,
		events: make(chan protocol.Envelope, 64),
		done:   make(chan struct{}),
		logger: logger.With().Str("component", "socket").Logger(),
	}
	go s.readLoop()
	return s, nil
}

// Send writes one event.
func (s *Socket) Send(event string, payload any) error {
	frame, err := protocol.Marshal(event, payload)
	if err != nil {
		return err
	}

	s.writeM.Lock()
	defer s.writeM.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("%w: %v", chat.ErrTransport, err)
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("%w: %v", chat.ErrTransport, err)
	}
	return nil
}

// Events delivers decoded server events. It is closed when the connection
// drops.
func (s *Socket) Events() <-chan protocol.Envelope {
	return s.events
}

// Close sends a close frame and releases the connection.
func (s *Socket) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.writeM.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		s.writeM.Unlock()
		err = s.conn.Close()
	})
	return err
}

// readLoop splits newline batched frames into envelopes.
func (s *Socket) readLoop() {
	defer close(s.events)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				s.logger.Warn().Err(err).Msg("live channel closed")
			}
			return
		}

		for _, line := range bytes.Split(data, []byte{'\n'}) {
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			env, err := protocol.Decode(line)
			if err != nil {
				s.logger.Warn().Err(err).Msg("dropping undecodable frame")
				continue
			}
			select {
			case s.events <- env:
			case <-s.done:
				return
			}
		}
	}
}
