package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/Tyrowin/nexchat/internal/commands"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	version = "dev"
	commit  = "HEAD"
	date    = "now"
)

func build() string {
	short := commit
	if len(commit) > 7 {
		short = commit[:7]
	}

	return fmt.Sprintf("%s (%s) %s", version, short, date)
}

func main() {
	if err := commands.SetupLogger("info", ""); err != nil {
		panic(err)
	}

	// Environment from .env is visible to flag sources and server config.
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, using environment variables")
	}

	flags := &commands.Flags{}

	app := &cli.Command{
		Name:      "nexchat",
		Usage:     "Real-time chat server and client",
		UsageText: "nexchat [global options] command [command options]",
		Description: `NexChat routes chat messages and typing signals between live
websocket connections, and keeps rooms, messages and notifications in SQLite.

Run 'nexchat serve' to start a server, then 'nexchat --user alice chat'
to talk to it.`,
		Version: build(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error, fatal, panic)",
				Sources:     cli.EnvVars("NEXCHAT_LOG_LEVEL"),
				Value:       "info",
				Destination: &flags.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "path to log file (optional)",
				Sources:     cli.EnvVars("NEXCHAT_LOG_FILE"),
				Destination: &flags.LogFile,
			},
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to YAML config file (optional)",
				Sources:     cli.EnvVars("NEXCHAT_CONFIG"),
				Destination: &flags.ConfigPath,
			},
			&cli.StringFlag{
				Name:        "env-file",
				Usage:       "extra dotenv file loaded before the server config is read",
				Destination: &flags.EnvFile,
			},
			&cli.StringFlag{
				Name:        "server",
				Usage:       "server base URL for client commands",
				Sources:     cli.EnvVars("NEXCHAT_SERVER"),
				Value:       "http://localhost:8080",
				Destination: &flags.ServerURL,
			},
			&cli.StringFlag{
				Name:        "user",
				Aliases:     []string{"u"},
				Usage:       "acting user id for client commands",
				Sources:     cli.EnvVars("NEXCHAT_USER"),
				Destination: &flags.User,
			},
		},
		Before: func(ctx context.Context, _ *cli.Command) (context.Context, error) {
			if flags.EnvFile != "" {
				if err := godotenv.Load(flags.EnvFile); err != nil {
					return ctx, fmt.Errorf("load env file: %w", err)
				}
			}

			if err := commands.SetupLogger(flags.LogLevel, flags.LogFile); err != nil {
				return ctx, err
			}
			return ctx, nil
		},
	}

	app = commands.NewServeCmd(flags).Register(app)
	app = commands.NewRoomCmd(flags).Register(app)
	app = commands.NewChatCmd(flags).Register(app)

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Error().Err(err).Msg("nexchat failed")
		os.Exit(1)
	}
}
