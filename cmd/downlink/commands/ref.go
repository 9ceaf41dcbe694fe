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
	"github.com/bureau-foundation/downlink/lib/reffile"
)

type refParams struct {
	Destination string `flag:"dest,d" desc:"destination directory the reference points at"`
	Reference   string `flag:"ref,r" desc:"reference file path"`
}

func (p *refParams) validate() error {
	if p.Destination == "" || p.Reference == "" {
		return errors.New("--dest and --ref are required")
	}
	return nil
}

func refCommand(stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "ref",
		Summary: "Generate, retrigger, or reconcile reference files",
		Description: `Manage the reference file of a destination directory by hand.

A reference file tells downstream processing that a time slot is
complete. The landing daemon maintains them automatically; these
commands repair them after reprocessing or an outage.`,
		Subcommands: []*cli.Command{
			refGenerateCommand(stdout),
			refTouchCommand(stdout),
			refReconcileCommand(stdout),
		},
	}
}

func refGenerateCommand(stdout io.Writer) *cli.Command {
	var params struct {
		refParams
		File   string `flag:"file,f" desc:"completion file name recorded in the reference"`
		Filter string `flag:"filter" desc:"filter line (default .*)"`
	}

	return &cli.Command{
		Name:    "generate",
		Summary: "Write a fresh reference file",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("generate", &params)
		},
		Examples: []cli.Example{
			{Command: "downlink ref generate -d /data/hrit/202301011000 -r /data/ref/202301011000.ref -f H-000-MSG4__-...-EPI-___-202301011000-__"},
		},
		Run: func(_ context.Context, args []string, logger *slog.Logger) error {
			if err := params.validate(); err != nil {
				return err
			}
			if params.File == "" {
				return errors.New("--file is required")
			}
			manager := reffile.NewManager(&dirlock.Tree{}, logger)
			path, err := manager.Generate(params.Destination, params.File, params.Reference, params.Filter)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(stdout, path)
			return err
		},
	}
}

func refTouchCommand(stdout io.Writer) *cli.Command {
	var params refParams

	return &cli.Command{
		Name:    "touch",
		Summary: "Re-emit an existing reference file unchanged",
		Description: `Rewrite the reference file with its current content so watchers see a
fresh file. An absent reference is left absent.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("touch", &params)
		},
		Run: func(_ context.Context, args []string, logger *slog.Logger) error {
			if err := params.validate(); err != nil {
				return err
			}
			manager := reffile.NewManager(&dirlock.Tree{}, logger)
			touched, err := manager.Touch(params.Destination, params.Reference)
			if err != nil {
				return err
			}
			state := reffile.Absent
			if touched {
				state = reffile.Present
			}
			_, err = fmt.Fprintln(stdout, state)
			return err
		},
	}
}

func refReconcileCommand(stdout io.Writer) *cli.Command {
	var params struct {
		refParams
		Marker string `flag:"marker" desc:"completion marker token" default:"-EPI"`
		Filter string `flag:"filter" desc:"filter line for a generated reference (default .*)"`
	}

	return &cli.Command{
		Name:    "reconcile",
		Summary: "Bring a reference file up to date with its directory",
		Description: `Touch the reference if it exists. Otherwise generate it from the first
completion marker file in the destination directory, if there is one.
Prints the resulting state (present or absent).`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("reconcile", &params)
		},
		Run: func(_ context.Context, args []string, logger *slog.Logger) error {
			if err := params.validate(); err != nil {
				return err
			}
			manager := reffile.NewManager(&dirlock.Tree{}, logger)
			state, err := manager.Reconcile(params.Destination, params.Reference, params.Marker, params.Filter)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(stdout, state)
			return err
		},
	}
}
