// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/downlink/cmd/downlink/cli"
	"github.com/bureau-foundation/downlink/lib/dirlock"
	"github.com/bureau-foundation/downlink/lib/retention"
)

type purgeParams struct {
	Base  string `flag:"base,b" desc:"directory holding dated subdirectories"`
	Limit int    `flag:"limit,n" desc:"number of subdirectories to keep" default:"-1"`
}

func purgeCommand(stdout io.Writer) *cli.Command {
	var params purgeParams

	return &cli.Command{
		Name:    "purge",
		Summary: "Remove the oldest subdirectories beyond a limit",
		Description: `Keep the newest --limit subdirectories of --base and remove the rest.

Subdirectories are ordered by name, so dated names (20230101) are
removed oldest first. Files directly under --base are ignored. When
some removals fail the rest still happen; the count removed is printed
and the exit code is 1.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("purge", &params)
		},
		Examples: []cli.Example{
			{Description: "Keep a week of daily directories", Command: "downlink purge --base /data/hrit --limit 7"},
		},
		Run: func(_ context.Context, args []string, logger *slog.Logger) error {
			if err := requireArgs(args, 0, "downlink purge --base DIR --limit N"); err != nil {
				return err
			}
			if params.Base == "" {
				return errors.New("--base is required")
			}
			if params.Limit < 0 {
				return errors.New("--limit is required and must not be negative")
			}

			removed, err := retention.NewPurger(&dirlock.Tree{}, logger).Purge(params.Base, params.Limit)
			if _, writeErr := fmt.Fprintf(stdout, "removed %d\n", removed); writeErr != nil {
				return writeErr
			}
			if err != nil {
				logger.Error("purge incomplete", "base", params.Base, "error", err)
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}
