// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the downlink CLI command tree.
//
// "downlink run" is the daemon. The other commands run one pipeline
// step by hand, for reprocessing archives, testing a template, or
// repairing reference files after an outage.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/bureau-foundation/downlink/cmd/downlink/cli"
	"github.com/bureau-foundation/downlink/lib/config"
	"github.com/bureau-foundation/downlink/lib/version"
)

// Root builds the command tree. Command results are written to
// stdout; logs and help go to stderr.
func Root(stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name: "downlink",
		Description: `downlink: satellite segment landing pipeline.

Watches landing directories, decompresses arriving segments into
time-slot directories, maintains reference files for completed slots,
and keeps archives bounded.`,
		Subcommands: []*cli.Command{
			runCommand(),
			unpackCommand(stdout),
			alignCommand(stdout),
			refCommand(stdout),
			purgeCommand(stdout),
			slotsCommand(stdout),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(_ context.Context, _ []string, _ *slog.Logger) error {
					_, err := fmt.Fprintf(stdout, "downlink %s\n", version.Full())
					return err
				},
			},
		},
	}
}

// configParams is embedded by commands that read the configuration
// file.
type configParams struct {
	Config string `flag:"config,c" desc:"configuration file (default $DOWNLINK_CONFIG)"`
}

// load reads and validates the configuration named by --config, or by
// DOWNLINK_CONFIG when the flag is not given.
func (p *configParams) load() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if p.Config != "" {
		cfg, err = config.LoadFile(p.Config)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

func requireArgs(args []string, count int, usage string) error {
	if len(args) != count {
		return fmt.Errorf("expected %d argument(s): %s", count, usage)
	}
	return nil
}
