package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/heurist-network/reply-bridge/internal/biz/usecase"
	"github.com/heurist-network/reply-bridge/internal/conf"
	"github.com/heurist-network/reply-bridge/internal/data"
	"github.com/heurist-network/reply-bridge/internal/logger"
	"github.com/heurist-network/reply-bridge/internal/mcp"
)

var version = "dev"

// reply-mcp serves read-only queue tools over stdio, so all logging goes to stderr.
func main() {
	app := &cli.App{
		Name:    "reply-mcp",
		Usage:   "Inspect the reply queue and thread cache over MCP stdio",
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
				Usage:   "Platform whose store to open (overrides PLATFORM)",
			},
			&cli.StringFlag{
				Name:  "store-path",
				Usage: "Queue store file (overrides STORE_PATH)",
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
	if c.IsSet("store-path") {
		cfg.Store.Path = c.String("store-path")
	}
	cfg.Store.ReadOnly = true

	log := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Output: os.Stderr,
	})

	queue, err := data.NewQueueRepo(cfg.Store, logger.Component(log, "store"))
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer queue.Close()

	queueUC := usecase.NewQueueUsecase(queue, usecase.QueueConfig{
		LeaseTTL:    cfg.Pipeline.LeaseTTL,
		MaxAttempts: cfg.Pipeline.MaxAttempts,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("store", cfg.Store.Path).Msg("serving queue tools on stdio")
	return mcp.NewQueueServer(queueUC, version).Run(ctx)
}
