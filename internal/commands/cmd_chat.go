package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/nexchat/internal/chat"
	"github.com/Tyrowin/nexchat/internal/client"
)

type ChatCmd struct {
	flags *Flags
}

// NewChatCmd creates a new chat command
func NewChatCmd(flags *Flags) *ChatCmd {
	return &ChatCmd{flags: flags}
}

// Register adds the chat command to the application
func (cmd *ChatCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "chat",
		Usage:     "Interactive line based chat client",
		UsageText: "nexchat --user alice chat [--room <room-id>]",
		Description: `Connects to the live channel and reads commands from stdin:

  /open <room-id>   open a room (leaves the current one)
  /close            close the current room
  /ack <message-id> dismiss a notification
  /typing           signal typing in the open room
  /quit             exit
  anything else     is sent as a message to the open room`,
		Action: cmd.run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "room",
				Usage: "room to open on start",
			},
			&cli.StringFlag{
				Name:  "origin",
				Usage: "Origin header for the websocket handshake",
				Value: "http://localhost:8080",
			},
			&cli.DurationFlag{
				Name:  "typing-timeout",
				Usage: "how long after the last keystroke a stop-typing is sent",
				Value: 3 * time.Second,
			},
		},
	})

	return app
}

var errQuit = errors.New("quit")

func (cmd *ChatCmd) run(ctx context.Context, c *cli.Command) error {
	user, err := cmd.flags.UserID()
	if err != nil {
		return fmt.Errorf("--user: %w", err)
	}

	wsURL, err := websocketURL(cmd.flags.ServerURL)
	if err != nil {
		return err
	}

	sock, err := client.Dial(ctx, wsURL, c.String("origin"), log.Logger)
	if err != nil {
		return err
	}
	defer sock.Close()

	api := client.NewAPIClient(cmd.flags.ServerURL, user)
	session := client.NewSession(user, api, sock, client.SessionConfig{
		TypingTimeout: c.Duration("typing-timeout"),
		Logger:        log.Logger,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return session.Run(ctx) })
	g.Go(func() error { return render(ctx, os.Stdout, session.Updates()) })
	g.Go(func() error {
		if room := c.String("room"); room != "" {
			if err := session.Open(ctx, chat.RoomID(room)); err != nil {
				fmt.Fprintf(os.Stdout, "! %v\n", err)
			}
		}
		return readCommands(ctx, session, readLines(os.Stdin))
	})

	err = g.Wait()
	if errors.Is(err, errQuit) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func websocketURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server url %q: %w", serverURL, err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

// readLines feeds stdin lines into a channel. The goroutine outlives the
// command when stdin stays open, which is fine for a process about to exit.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

func readCommands(ctx context.Context, session *client.Session, lines <-chan string) error {
	for {
		var line string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				return errQuit
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}

		if err := runCommand(ctx, session, line); err != nil {
			if errors.Is(err, errQuit) {
				return err
			}
			fmt.Fprintf(os.Stdout, "! %v\n", err)
		}
	}
}

func runCommand(ctx context.Context, session *client.Session, line string) error {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit":
		return errQuit
	case "/open":
		if len(fields) != 2 {
			return fmt.Errorf("usage: /open <room-id>")
		}
		return session.Open(ctx, chat.RoomID(fields[1]))
	case "/close":
		return session.CloseRoom(ctx)
	case "/ack":
		if len(fields) != 2 {
			return fmt.Errorf("usage: /ack <message-id>")
		}
		return session.Acknowledge(ctx, fields[1])
	}

	if fields[0] == "/typing" {
		return session.Keystroke(ctx)
	}

	_, err := session.Send(ctx, line)
	return err
}

// render prints what changed between consecutive snapshots.
func render(ctx context.Context, w io.Writer, updates <-chan client.Snapshot) error {
	var (
		room     chat.RoomID
		printed  = make(map[string]struct{})
		notified = make(map[string]struct{})
		typing   bool
	)
	for {
		var snap client.Snapshot
		select {
		case <-ctx.Done():
			return nil
		case snap = <-updates:
		}

		if snap.Room != room {
			room = snap.Room
			printed = make(map[string]struct{})
			if snap.Open {
				fmt.Fprintf(w, "== %s ==\n", room)
			}
		}
		for _, m := range snap.Messages {
			if _, ok := printed[m.ID]; ok {
				continue
			}
			printed[m.ID] = struct{}{}
			fmt.Fprintf(w, "[%s] %s: %s\n", m.CreatedAt.Format("15:04:05"), m.SenderID, m.Content)
		}

		current := make(map[string]struct{}, len(snap.Notifications))
		for _, n := range snap.Notifications {
			current[n.ID] = struct{}{}
			if _, ok := notified[n.ID]; !ok {
				fmt.Fprintf(w, "* new message in %s from %s (%s)\n", n.RoomID, n.SenderID, n.ID)
			}
		}
		notified = current

		if snap.Typing != typing {
			typing = snap.Typing
			if typing {
				fmt.Fprintln(w, "... someone is typing")
			}
		}
	}
}
