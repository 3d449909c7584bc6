package server

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/nexchat/internal/chat"
)

type expiryRecorder struct {
	mu    sync.Mutex
	fired []typingKey
}

func (r *expiryRecorder) record(room chat.RoomID, user chat.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fired = append(r.fired, typingKey{room: room, user: user})
}

func (r *expiryRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fired)
}

func TestTypingTrackerTransitions(t *testing.T) {
	tracker := NewTypingTracker(time.Hour, nil)
	defer tracker.Close()

	assert.True(t, tracker.Signal("r1", "alice"), "idle to typing")
	assert.False(t, tracker.Signal("r1", "alice"), "refresh is coalesced")
	assert.True(t, tracker.Signal("r1", "bob"), "pairs are independent")
	assert.True(t, tracker.Signal("r2", "alice"))

	assert.True(t, tracker.IsTyping("r1", "alice"))
	assert.True(t, tracker.Stop("r1", "alice"))
	assert.False(t, tracker.IsTyping("r1", "alice"))
	assert.False(t, tracker.Stop("r1", "alice"), "already idle")

	assert.True(t, tracker.IsTyping("r1", "bob"))
	assert.True(t, tracker.IsTyping("r2", "alice"))
}

func TestTypingTrackerExpires(t *testing.T) {
	rec := &expiryRecorder{}
	tracker := NewTypingTracker(30*time.Millisecond, rec.record)
	defer tracker.Close()

	require.True(t, tracker.Signal("r1", "alice"))

	assert.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, tracker.IsTyping("r1", "alice"))
	assert.Equal(t, typingKey{room: "r1", user: "alice"}, rec.fired[0])
}

func TestTypingTrackerRefreshReplacesTimer(t *testing.T) {
	rec := &expiryRecorder{}
	tracker := NewTypingTracker(100*time.Millisecond, rec.record)
	defer tracker.Close()

	tracker.Signal("r1", "alice")
	for i := 0; i < 4; i++ {
		time.Sleep(20 * time.Millisecond)
		tracker.Signal("r1", "alice")
	}
	assert.Zero(t, rec.count(), "refreshes keep the entry alive")

	assert.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, rec.count(), "only the latest timer fires")
}

func TestTypingTrackerStopCancelsExpiry(t *testing.T) {
	rec := &expiryRecorder{}
	tracker := NewTypingTracker(20*time.Millisecond, rec.record)
	defer tracker.Close()

	tracker.Signal("r1", "alice")
	require.True(t, tracker.Stop("r1", "alice"))

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, rec.count())
}

func TestTypingTrackerClose(t *testing.T) {
	rec := &expiryRecorder{}
	tracker := NewTypingTracker(20*time.Millisecond, rec.record)

	tracker.Signal("r1", "alice")
	tracker.Close()

	assert.False(t, tracker.Signal("r1", "bob"))
	assert.Zero(t, tracker.Len())
	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, rec.count())
}

func TestTypingTrackerConcurrentSignals(t *testing.T) {
	tracker := NewTypingTracker(time.Hour, nil)
	defer tracker.Close()

	users := []chat.UserID{"a", "b", "c", "d"}
	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		transitions = make(map[chat.UserID]int)
	)
	for _, u := range users {
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(u chat.UserID) {
				defer wg.Done()
				if tracker.Signal("r1", u) {
					mu.Lock()
					transitions[u]++
					mu.Unlock()
				}
			}(u)
		}
	}
	wg.Wait()

	for _, u := range users {
		assert.Equal(t, 1, transitions[u], "user %s", u)
	}
	assert.Equal(t, len(users), tracker.Len())
}
