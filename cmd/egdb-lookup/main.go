package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/urfave/cli/v2"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, syscall.SIGTERM, syscall.SIGINT)

		select {
		case <-interrupt:
			fmt.Println()
			slog.Info("received interrupt signal")
			cancel()
		case <-ctx.Done():
		}

		signal.Stop(interrupt)
	}()

	app := &cli.App{
		Name:        "egdb-lookup",
		Description: "Look up and verify a precomputed draughts endgame database.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "db",
				Usage:    "Path to the database directory containing .idx/.cpr files",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "options",
				Usage: "Open-options string, e.g. \"maxpieces=8;maxkings_1side_8pcs=2\"",
			},
		},
		Commands: []*cli.Command{
			newCmdLookup(),
			newCmdVerify(),
		},
	}

	sort.Sort(cli.CommandsByName(app.Commands))

	if err := app.RunContext(ctx, os.Args); err != nil {
		slog.Error("egdb-lookup failed", "error", err)
		os.Exit(1)
	}
}
