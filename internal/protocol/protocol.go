// Package protocol defines the named events exchanged over the live channel
// and the JSON envelope that carries them.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Tyrowin/nexchat/internal/chat"
)

// Event names.
const (
	EventSetup           = "setup"
	EventConnected       = "connected"
	EventJoinRoom        = "join-room"
	EventLeaveRoom       = "leave-room"
	EventSendMessage     = "send-message"
	EventMessageReceived = "message-received"
	EventTyping          = "typing"
	EventStopTyping      = "stop-typing"
	EventError           = "error"
)

// Error codes carried by EventError.
const (
	CodeInvalidMessage   = "invalid_message"
	CodeSetupRequired    = "setup_required"
	CodeIdentityConflict = "identity_conflict"
	CodeUnknownEvent     = "unknown_event"
)

var knownEvents = map[string]struct{}{
	EventSetup:           {},
	EventConnected:       {},
	EventJoinRoom:        {},
	EventLeaveRoom:       {},
	EventSendMessage:     {},
	EventMessageReceived: {},
	EventTyping:          {},
	EventStopTyping:      {},
	EventError:           {},
}

// ErrUnknownEvent is returned by Decode for an event name outside the protocol.
var ErrUnknownEvent = errors.New("unknown event")

// Envelope is one frame on the live channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// SetupPayload identifies the user behind a connection.
type SetupPayload struct {
	UserID chat.UserID `json:"user_id"`
}

// ConnectedPayload acknowledges a setup.
type ConnectedPayload struct {
	UserID       chat.UserID `json:"user_id"`
	ConnectionID string      `json:"connection_id"`
}

// RoomPayload names a room for join-room, leave-room and client-sent typing
// events.
type RoomPayload struct {
	RoomID chat.RoomID `json:"room_id"`
}

// TypingPayload is the server-side typing broadcast.
type TypingPayload struct {
	RoomID chat.RoomID `json:"room_id"`
	UserID chat.UserID `json:"user_id"`
	Typing bool        `json:"typing"`
}

// ErrorPayload reports a rejected client event.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// New builds an envelope around payload. A nil payload leaves Data empty.
func New(event string, payload any) (Envelope, error) {
	env := Envelope{Event: event}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", event, err)
	}
	env.Data = data
	return env, nil
}

// Marshal encodes an envelope for event and payload into a single frame.
func Marshal(event string, payload any) ([]byte, error) {
	env, err := New(event, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// Decode parses a frame and rejects unknown event names.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if _, ok := knownEvents[env.Event]; !ok {
		return env, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	return env, nil
}

// Bind decodes the envelope data into v.
func (e Envelope) Bind(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s: missing data", e.Event)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%s: decode data: %w", e.Event, err)
	}
	return nil
}
