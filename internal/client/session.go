package client

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

// ErrNoRoom is returned for room actions while no room is open.
var ErrNoRoom = errors.New("no room open")

// ErrSessionClosed is returned once the session loop has exited.
var ErrSessionClosed = errors.New("session closed")

// Backend is the persistence collaborator as seen by one user.
type Backend interface {
	CreateMessage(ctx context.Context, room chat.RoomID, content string) (chat.Message, error)
	FetchMessages(ctx context.Context, room chat.RoomID) ([]chat.Message, error)
	SaveNotification(ctx context.Context, messageID string) error
	AckNotification(ctx context.Context, messageID string) error
}

// Channel is the live channel. *Socket implements it.
type Channel interface {
	Send(event string, payload any) error
	Events() <-chan protocol.Envelope
}

// Snapshot is a copy of the session state for presentation.
type Snapshot struct {
	Room          chat.RoomID
	Open          bool
	Messages      []chat.Message
	Notifications []chat.Message
	Typing        bool
	TypingUsers   []chat.UserID
	LocalTyping   bool
	LastError     string
}

// SessionConfig tunes a Session.
type SessionConfig struct {
	TypingTimeout time.Duration
	// CheckInterval is how often the loop looks for an expired local typing
	// signal. Defaults to a quarter of TypingTimeout.
	CheckInterval time.Duration
	Logger        zerolog.Logger
	Now           func() time.Time
}

// Session runs the client loop for one user. Live events, user commands and
// the typing check are all handled on the Run goroutine, which is the only
// one touching the View.
type Session struct {
	user    chat.UserID
	backend Backend
	channel Channel
	view    *View

	typingTimeout time.Duration
	checkInterval time.Duration
	now           func() time.Time
	logger        zerolog.Logger

	cmds    chan func()
	updates chan Snapshot
	stopped chan struct{}
	bg      sync.WaitGroup

	localTyping   bool
	lastKeystroke time.Time
	lastError     string
}

// NewSession creates a session for user. Call Run to start it.
func NewSession(user chat.UserID, backend Backend, channel Channel, cfg SessionConfig) *Session {
	if cfg.TypingTimeout <= 0 {
		cfg.TypingTimeout = 3 * time.Second
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = cfg.TypingTimeout / 4
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Session{
		user:          user,
		backend:       backend,
		channel:       channel,
		view:          NewView(user),
		typingTimeout: cfg.TypingTimeout,
		checkInterval: cfg.CheckInterval,
		now:           cfg.Now,
		logger:        cfg.Logger.With().Str("component", "session").Str("user", string(user)).Logger(),
		cmds:          make(chan func()),
		updates:       make(chan Snapshot, 1),
		stopped:       make(chan struct{}),
	}
}

// Updates publishes the latest state after every change. Stale snapshots are
// replaced, not queued.
func (s *Session) Updates() <-chan Snapshot {
	return s.updates
}

// Run announces the user on the live channel and processes events until ctx
// is done or the channel closes.
func (s *Session) Run(ctx context.Context) error {
	defer func() {
		close(s.stopped)
		s.bg.Wait()
	}()

	if err := s.channel.Send(protocol.EventSetup, protocol.SetupPayload{UserID: s.user}); err != nil {
		return err
	}

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	events := s.channel.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-s.cmds:
			// Events that already arrived are applied before the command.
			closed := s.drain(events)
			cmd()
			if closed {
				return fmt.Errorf("%w: live channel closed", chat.ErrTransport)
			}
		case env, ok := <-events:
			if !ok {
				return fmt.Errorf("%w: live channel closed", chat.ErrTransport)
			}
			s.handleEvent(env)
		case <-ticker.C:
			s.checkTyping()
		}
	}
}

// drain handles every buffered event and reports whether events is closed.
func (s *Session) drain(events <-chan protocol.Envelope) bool {
	for {
		select {
		case env, ok := <-events:
			if !ok {
				return true
			}
			s.handleEvent(env)
		default:
			return false
		}
	}
}

// do runs fn on the loop goroutine and waits for its result.
func (s *Session) do(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	cmd := func() { result <- fn() }

	select {
	case s.cmds <- cmd:
	case <-s.stopped:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-result
}

// Open switches to room: the previous room is left and discarded, history is
// fetched, and the live room is joined. If the fetch fails no room is open.
func (s *Session) Open(ctx context.Context, room chat.RoomID) error {
	return s.do(ctx, func() error {
		s.leaveOpenRoom()

		history, err := s.backend.FetchMessages(ctx, room)
		if err != nil {
			err = fmt.Errorf("%w: room %s: %w", chat.ErrFetch, room, err)
			s.fail(err)
			return err
		}

		cleared := s.view.Open(room, history)
		for _, id := range cleared {
			s.background(func(ctx context.Context) error { return s.backend.AckNotification(ctx, id) }, "acknowledge notification")
		}
		s.push(protocol.EventJoinRoom, protocol.RoomPayload{RoomID: room})
		s.lastError = ""
		s.publish()
		return nil
	})
}

// CloseRoom leaves and discards the open room.
func (s *Session) CloseRoom(ctx context.Context) error {
	return s.do(ctx, func() error {
		s.leaveOpenRoom()
		s.publish()
		return nil
	})
}

func (s *Session) leaveOpenRoom() {
	room, open := s.view.OpenRoom()
	if !open {
		return
	}
	s.stopLocalTyping(room)
	s.push(protocol.EventLeaveRoom, protocol.RoomPayload{RoomID: room})
	s.view.Close()
}

// Send persists content in the open room, appends the stored message and
// pushes it to the other members. Nothing is appended or pushed when the
// create call fails.
func (s *Session) Send(ctx context.Context, content string) (chat.Message, error) {
	var msg chat.Message
	err := s.do(ctx, func() error {
		room, open := s.view.OpenRoom()
		if !open {
			return ErrNoRoom
		}
		s.stopLocalTyping(room)

		created, err := s.backend.CreateMessage(ctx, room, content)
		if err != nil {
			err = fmt.Errorf("%w: %w", chat.ErrPersistence, err)
			s.fail(err)
			return err
		}

		msg = created
		s.view.AppendLocal(created)
		s.push(protocol.EventSendMessage, created)
		s.lastError = ""
		s.publish()
		return nil
	})
	return msg, err
}

// Keystroke signals typing in the open room. Only the first keystroke after
// idle is sent; later ones just push the stop deadline back.
func (s *Session) Keystroke(ctx context.Context) error {
	return s.do(ctx, func() error {
		room, open := s.view.OpenRoom()
		if !open {
			return ErrNoRoom
		}
		s.lastKeystroke = s.now()
		if !s.localTyping {
			s.localTyping = true
			s.push(protocol.EventTyping, protocol.RoomPayload{RoomID: room})
			s.publish()
		}
		return nil
	})
}

// Acknowledge dismisses one notification.
func (s *Session) Acknowledge(ctx context.Context, messageID string) error {
	return s.do(ctx, func() error {
		if !s.view.Acknowledge(messageID) {
			return nil
		}
		s.background(func(ctx context.Context) error { return s.backend.AckNotification(ctx, messageID) }, "acknowledge notification")
		s.publish()
		return nil
	})
}

// Snapshot returns the current state.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.do(ctx, func() error {
		snap = s.snapshot()
		return nil
	})
	return snap, err
}

func (s *Session) handleEvent(env protocol.Envelope) {
	switch env.Event {
	case protocol.EventConnected:
		var p protocol.ConnectedPayload
		if err := env.Bind(&p); err == nil {
			s.logger.Info().Str("conn", p.ConnectionID).Msg("live channel ready")
		}

	case protocol.EventMessageReceived:
		var msg chat.Message
		if err := env.Bind(&msg); err != nil {
			s.logger.Warn().Err(err).Msg("dropping malformed message")
			return
		}
		outcome := s.view.Receive(msg)
		s.logger.Debug().Str("message", msg.ID).Stringer("outcome", outcome).Msg("message received")
		switch outcome {
		case OutcomeNotified:
			id := msg.ID
			s.background(func(ctx context.Context) error { return s.backend.SaveNotification(ctx, id) }, "save notification")
			s.publish()
		case OutcomeAppended:
			s.publish()
		}

	case protocol.EventTyping, protocol.EventStopTyping:
		var p protocol.TypingPayload
		if err := env.Bind(&p); err != nil {
			s.logger.Warn().Err(err).Msg("dropping malformed typing event")
			return
		}
		s.view.SetTyping(p.RoomID, p.UserID, env.Event == protocol.EventTyping)
		s.publish()

	case protocol.EventError:
		var p protocol.ErrorPayload
		if err := env.Bind(&p); err == nil {
			s.logger.Warn().Str("code", p.Code).Str("error", p.Message).Msg("server rejected event")
		}

	default:
		s.logger.Debug().Str("event", env.Event).Msg("ignoring event")
	}
}

func (s *Session) checkTyping() {
	if !s.localTyping {
		return
	}
	if s.now().Sub(s.lastKeystroke) < s.typingTimeout {
		return
	}
	if room, open := s.view.OpenRoom(); open {
		s.stopLocalTyping(room)
		s.publish()
	}
}

func (s *Session) stopLocalTyping(room chat.RoomID) {
	if !s.localTyping {
		return
	}
	s.localTyping = false
	s.push(protocol.EventStopTyping, protocol.RoomPayload{RoomID: room})
}

// push writes to the live channel. Transport failures only cost presence;
// Run notices the drop when the event stream closes.
func (s *Session) push(event string, payload any) {
	if err := s.channel.Send(event, payload); err != nil {
		s.logger.Warn().Err(err).Str("event", event).Msg("live channel write failed")
	}
}

// background runs a collaborator call off the loop. Each call stands alone;
// a failure is logged and not retried.
func (s *Session) background(fn func(ctx context.Context) error, what string) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.logger.Warn().Err(err).Msg(what + " failed")
		}
	}()
}

func (s *Session) fail(err error) {
	s.lastError = err.Error()
	s.logger.Warn().Err(err).Msg("command failed")
	s.publish()
}

func (s *Session) snapshot() Snapshot {
	room, open := s.view.OpenRoom()
	return Snapshot{
		Room:          room,
		Open:          open,
		Messages:      s.view.Messages(),
		Notifications: s.view.Notifications(),
		Typing:        s.view.Typing(),
		TypingUsers:   s.view.TypingUsers(),
		LocalTyping:   s.localTyping,
		LastError:     s.lastError,
	}
}

func (s *Session) publish() {
	snap := s.snapshot()
	select {
	case s.updates <- snap:
		return
	default:
	}
	select {
	case <-s.updates:
	default:
	}
	s.updates <- snap
}
