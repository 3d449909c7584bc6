package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/Tyrowin/nexchat/internal/chat"
	"github.com/Tyrowin/nexchat/internal/client"
)

type RoomCmd struct {
	flags *Flags
}

// NewRoomCmd creates a new room command
func NewRoomCmd(flags *Flags) *RoomCmd {
	return &RoomCmd{flags: flags}
}

// Register adds the room command and its subcommands to the application
func (cmd *RoomCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "room",
		Usage: "Manage rooms through the REST API",
		Commands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "Create a room with the current user as a participant",
				UsageText: "nexchat --user alice room create --name general --member bob --member carol",
				Action:    cmd.create,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "name",
						Usage:    "room name",
						Required: true,
					},
					&cli.StringSliceFlag{
						Name:    "member",
						Aliases: []string{"m"},
						Usage:   "additional participant (repeatable)",
					},
				},
			},
			{
				Name:      "show",
				Usage:     "Show a room and its participants",
				UsageText: "nexchat room show <room-id>",
				Action:    cmd.show,
			},
			{
				Name:      "history",
				Usage:     "Print a room's messages in order",
				UsageText: "nexchat room history <room-id>",
				Action:    cmd.history,
			},
			{
				Name:   "notifications",
				Usage:  "List the current user's unread notifications",
				Action: cmd.notifications,
			},
		},
	})

	return app
}

func (cmd *RoomCmd) api() (*client.APIClient, error) {
	user, err := cmd.flags.UserID()
	if err != nil {
		return nil, fmt.Errorf("--user: %w", err)
	}
	return client.NewAPIClient(cmd.flags.ServerURL, user), nil
}

func roomArg(c *cli.Command) (chat.RoomID, error) {
	id := strings.TrimSpace(c.Args().First())
	if id == "" {
		return "", fmt.Errorf("room id is required")
	}
	return chat.RoomID(id), nil
}

func (cmd *RoomCmd) create(ctx context.Context, c *cli.Command) error {
	api, err := cmd.api()
	if err != nil {
		return err
	}

	var members []chat.UserID
	for _, m := range c.StringSlice("member") {
		members = append(members, chat.UserID(m))
	}

	room, err := api.CreateRoom(ctx, c.String("name"), members)
	if err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	printRoom(room)
	return nil
}

func (cmd *RoomCmd) show(ctx context.Context, c *cli.Command) error {
	api, err := cmd.api()
	if err != nil {
		return err
	}
	id, err := roomArg(c)
	if err != nil {
		return err
	}

	room, err := api.GetRoom(ctx, id)
	if err != nil {
		return fmt.Errorf("get room: %w", err)
	}
	printRoom(room)
	return nil
}

func (cmd *RoomCmd) history(ctx context.Context, c *cli.Command) error {
	api, err := cmd.api()
	if err != nil {
		return err
	}
	id, err := roomArg(c)
	if err != nil {
		return err
	}

	msgs, err := api.FetchMessages(ctx, id)
	if err != nil {
		return fmt.Errorf("fetch messages: %w", err)
	}
	for _, m := range msgs {
		printMessage(m)
	}
	return nil
}

func (cmd *RoomCmd) notifications(ctx context.Context, _ *cli.Command) error {
	api, err := cmd.api()
	if err != nil {
		return err
	}

	list, err := api.ListNotifications(ctx)
	if err != nil {
		return fmt.Errorf("list notifications: %w", err)
	}
	if len(list) == 0 {
		fmt.Fprintln(os.Stdout, "No unread notifications")
		return nil
	}
	for _, n := range list {
		fmt.Fprintf(os.Stdout, "%s  room=%s  message=%s\n", n.CreatedAt.Format("2006-01-02 15:04:05"), n.RoomID, n.MessageID)
	}
	return nil
}

func printRoom(room chat.Room) {
	members := make([]string, len(room.Members))
	for i, m := range room.Members {
		members[i] = string(m)
	}
	fmt.Fprintf(os.Stdout, "%s  %s  members: %s\n", room.ID, room.Name, strings.Join(members, ", "))
}

func printMessage(m chat.Message) {
	fmt.Fprintf(os.Stdout, "[%s] %s: %s\n", m.CreatedAt.Format("15:04:05"), m.SenderID, m.Content)
}
