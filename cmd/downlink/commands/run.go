// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/downlink/cmd/downlink/cli"
	"github.com/bureau-foundation/downlink/lib/landing"
)

func runCommand() *cli.Command {
	var params configParams

	return &cli.Command{
		Name:    "run",
		Summary: "Watch landing directories and process arriving segments",
		Description: `Run the landing daemon.

Every configured target is watched for files that finish arriving.
Files already present at startup are processed first. Each target has
one worker, so a slot's segments are unpacked in arrival order.
Retention purges run on each target's interval or cron schedule.

Stops cleanly on SIGINT or SIGTERM.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("run", &params)
		},
		Examples: []cli.Example{
			{Description: "Run with an explicit configuration", Command: "downlink run --config /etc/downlink/downlink.yaml"},
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if err := requireArgs(args, 0, "downlink run [--config FILE]"); err != nil {
				return err
			}
			cfg, err := params.load()
			if err != nil {
				return err
			}
			if err := cfg.EnsurePaths(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			service, err := landing.NewService(cfg, landing.Options{Logger: logger})
			if err != nil {
				return err
			}
			defer service.Close()

			err = service.Run(ctx)
			logger.Info("landing service stopped")
			return err
		},
	}
}
