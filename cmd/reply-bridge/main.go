package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/heurist-network/reply-bridge/internal/conf"
	"github.com/heurist-network/reply-bridge/internal/data"
	"github.com/heurist-network/reply-bridge/internal/logger"
	"github.com/heurist-network/reply-bridge/internal/server"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "reply-bridge",
		Usage:   "Answer mentions of the bot account on Twitter or Farcaster",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Load environment variables from this file first",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:    "platform",
				Aliases: []string{"p"},
				Usage:   "Platform to serve: twitter or farcaster (overrides PLATFORM)",
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "Number of reply workers (overrides WORKERS)",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Generate replies without posting them (overrides DRYRUN)",
			},
			&cli.StringFlag{
				Name:  "store",
				Usage: "Queue store backend: json or sqlite (overrides STORE_BACKEND)",
			},
			&cli.StringFlag{
				Name:  "store-path",
				Usage: "Queue store file (overrides STORE_PATH)",
			},
			&cli.StringFlag{
				Name:  "api-addr",
				Usage: "Status API listen address, empty to disable (overrides API_ADDR)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn or error (overrides LOG_LEVEL)",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if err := godotenv.Load(c.String("env-file")); err != nil && c.IsSet("env-file") {
		return fmt.Errorf("failed to load env file: %w", err)
	}

	cfg := conf.LoadFromEnvFor(c.String("platform"))
	if c.IsSet("workers") {
		cfg.Workers = c.Int("workers")
	}
	if c.IsSet("dry-run") {
		cfg.DryRun = c.Bool("dry-run")
	}
	if c.IsSet("store") {
		cfg.Store.Backend = strings.ToLower(c.String("store"))
		if os.Getenv("STORE_PATH") == "" {
			cfg.Store.Path = conf.DefaultStorePath(cfg.Platform, cfg.Store.Backend)
		}
	}
	if c.IsSet("store-path") {
		cfg.Store.Path = c.String("store-path")
	}
	if c.IsSet("api-addr") {
		cfg.API.Addr = c.String("api-addr")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Pretty: cfg.Log.Pretty,
	})

	repos, err := data.NewRepositories(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create repositories: %w", err)
	}
	defer func() {
		if err := repos.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close store")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.NewReplyServer(cfg, repos, log).Run(ctx)
}
