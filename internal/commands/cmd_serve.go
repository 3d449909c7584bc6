package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/Tyrowin/nexchat/internal/server"
	"github.com/Tyrowin/nexchat/internal/store"
)

const shutdownTimeout = 10 * time.Second

type ServeCmd struct {
	flags *Flags
}

// NewServeCmd creates a new serve command
func NewServeCmd(flags *Flags) *ServeCmd {
	return &ServeCmd{flags: flags}
}

// Register adds the serve command to the application
func (cmd *ServeCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "serve",
		Usage:     "Run the chat server",
		UsageText: "nexchat serve [--port :8080] [--db nexchat.db]",
		Description: `Starts the live channel endpoint (/ws), the REST API used as the
persistence collaborator (/api/...), and the /health and /stats endpoints.

Settings come from defaults, the optional config file, environment
variables and finally the flags below.`,
		Action: cmd.run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "port",
				Usage: "listen address, e.g. :8080",
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "SQLite database path (:memory: for a throwaway store)",
			},
			&cli.StringSliceFlag{
				Name:  "origin",
				Usage: "allowed websocket origin (repeatable, * allows all)",
			},
		},
	})

	return app
}

func (cmd *ServeCmd) run(ctx context.Context, c *cli.Command) error {
	cfg, err := server.LoadConfig(cmd.flags.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if c.IsSet("port") {
		cfg.Port = c.String("port")
	}
	if c.IsSet("db") {
		cfg.DatabasePath = c.String("db")
	}
	if c.IsSet("origin") {
		cfg.AllowedOrigins = c.StringSlice("origin")
	}
	cfg.Sanitize()

	logger := log.With().Str("component", "nexchat").Logger()

	st, err := store.Open(cfg.DatabasePath, log.Logger.GetLevel() <= zerolog.DebugLevel)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	hub := server.NewHub(cfg, log.Logger)
	go hub.Run()

	srv := server.New(cfg, hub, st, log.Logger)
	httpServer := server.CreateServer(cfg.Port, srv.Routes())

	logger.Info().
		Str("port", cfg.Port).
		Str("db", cfg.DatabasePath).
		Strs("origins", cfg.AllowedOrigins).
		Dur("idle_timeout", cfg.IdleTimeout).
		Dur("typing_timeout", cfg.TypingTimeout).
		Msg("starting NexChat server")

	errc := make(chan error, 1)
	go func() { errc <- server.StartServer(httpServer, logger) }()

	stop := func(ctx context.Context) error {
		return errors.Join(
			server.ShutdownServer(ctx, httpServer, logger),
			hub.Shutdown(shutdownTimeout),
			st.Close(),
		)
	}

	wait := gfshutdown.GracefulShutdown(ctx, shutdownTimeout, map[string]gfshutdown.Operation{
		"nexchat": stop,
	})

	select {
	case err := <-errc:
		if err != nil {
			return errors.Join(fmt.Errorf("server stopped: %w", err), stop(context.Background()))
		}
		// ListenAndServe returns cleanly once the shutdown operation runs.
		return exitError(<-wait)
	case code := <-wait:
		return exitError(code)
	}
}

func exitError(code int) error {
	log.Info().Int("exit_code", code).Msg("server exited")
	if code != 0 {
		return fmt.Errorf("shutdown finished with exit code %d", code)
	}
	return nil
}
