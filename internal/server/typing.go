package server

import (
	"sync"
	"time"

	"github.com/Tyrowin/nexchat/internal/chat"
)

type typingKey struct {
	room chat.RoomID
	user chat.UserID
}

type typingState struct {
	timer *time.Timer
	gen   uint64
}

// TypingTracker holds the typing state of every (room, user) pair. A pair
// with no entry is idle. Each refresh replaces the expiry timer and bumps the
// entry generation, so only the timer of the latest refresh can expire it.
type TypingTracker struct {
	mu       sync.Mutex
	timeout  time.Duration
	entries  map[typingKey]*typingState
	onExpire func(room chat.RoomID, user chat.UserID)
	closed   bool
}

// NewTypingTracker creates a tracker. onExpire runs on the timer goroutine
// after an entry times out and must not block.
func NewTypingTracker(timeout time.Duration, onExpire func(room chat.RoomID, user chat.UserID)) *TypingTracker {
	if timeout <= 0 {
		timeout = defaultTypingTimeout
	}
	return &TypingTracker{
		timeout:  timeout,
		entries:  make(map[typingKey]*typingState),
		onExpire: onExpire,
	}
}

// Signal records a keystroke signal. It returns true when the pair moved from
// idle to typing; a refresh of an active entry returns false.
func (t *TypingTracker) Signal(room chat.RoomID, user chat.UserID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false
	}

	key := typingKey{room: room, user: user}
	state, active := t.entries[key]
	if active {
		state.timer.Stop()
		state.gen++
	} else {
		state = &typingState{}
		t.entries[key] = state
	}

	gen := state.gen
	state.timer = time.AfterFunc(t.timeout, func() { t.expire(key, gen) })
	return !active
}

// Stop clears the pair and reports whether it was typing.
func (t *TypingTracker) Stop(room chat.RoomID, user chat.UserID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := typingKey{room: room, user: user}
	state, ok := t.entries[key]
	if !ok {
		return false
	}
	state.timer.Stop()
	delete(t.entries, key)
	return true
}

// IsTyping reports whether the pair is currently typing.
func (t *TypingTracker) IsTyping(room chat.RoomID, user chat.UserID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.entries[typingKey{room: room, user: user}]
	return ok
}

// Len returns the number of active typing entries.
func (t *TypingTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Close stops every pending timer. Signals after Close are ignored.
func (t *TypingTracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	for key, state := range t.entries {
		state.timer.Stop()
		delete(t.entries, key)
	}
}

func (t *TypingTracker) expire(key typingKey, gen uint64) {
	t.mu.Lock()
	state, ok := t.entries[key]
	if !ok || state.gen != gen {
		t.mu.Unlock()
		return
	}
	delete(t.entries, key)
	t.mu.Unlock()

	if t.onExpire != nil {
		t.onExpire(key.room, key.user)
	}
}
