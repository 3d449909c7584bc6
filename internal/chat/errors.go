package chat

import (
	"errors"
	"unicode/utf8"
)

// Failure classes shared by server and client. Callers wrap them with
// fmt.Errorf("%w: ...") and match with errors.Is.
var (
	// ErrTransport marks a dropped or unusable live connection.
	ErrTransport = errors.New("transport error")
	// ErrInvalidMessage marks fanout input that cannot be routed.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrFetch marks a failed history load.
	ErrFetch = errors.New("fetch failed")
	// ErrPersistence marks a failed create call against the store.
	ErrPersistence = errors.New("persistence failed")
)

// Validation limits
const (
	MaxMessageLength  = 5000
	MaxRoomNameLength = 100
	MaxUserIDLength   = 64
)

// Validation errors
var (
	ErrMessageEmpty    = errors.New("message content cannot be empty")
	ErrMessageTooLong  = errors.New("message exceeds maximum length")
	ErrMessageInvalid  = errors.New("message contains invalid characters")
	ErrRoomNameEmpty   = errors.New("room name cannot be empty")
	ErrRoomNameTooLong = errors.New("room name exceeds maximum length")
	ErrUserIDEmpty     = errors.New("user id cannot be empty")
	ErrUserIDTooLong   = errors.New("user id exceeds maximum length")
)

// ValidateContent checks message content before it is persisted.
func ValidateContent(content string) error {
	if content == "" {
		return ErrMessageEmpty
	}
	if len(content) > MaxMessageLength {
		return ErrMessageTooLong
	}
	if !utf8.ValidString(content) {
		return ErrMessageInvalid
	}
	return nil
}

// ValidateRoomName checks a room name.
func ValidateRoomName(name string) error {
	if name == "" {
		return ErrRoomNameEmpty
	}
	if len(name) > MaxRoomNameLength {
		return ErrRoomNameTooLong
	}
	return nil
}

// ValidateUserID checks a user identity.
func ValidateUserID(id UserID) error {
	if id == "" {
		return ErrUserIDEmpty
	}
	if len(id) > MaxUserIDLength {
		return ErrUserIDTooLong
	}
	return nil
}
