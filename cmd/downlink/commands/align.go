// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/downlink/cmd/downlink/cli"
	"github.com/bureau-foundation/downlink/lib/fnpattern"
	"github.com/bureau-foundation/downlink/lib/timeslot"
)

type alignParams struct {
	Template string `flag:"template,t" desc:"alignment template, e.g. {time:%Y%m%d%H%M|align(15)}"`
	Time     string `flag:"time" desc:"timestamp to align (RFC 3339)"`
	File     string `flag:"file" desc:"file name to take the timestamp from (needs --origin)"`
	Origin   string `flag:"origin" desc:"filename pattern for --file"`
}

func alignCommand(stdout io.Writer) *cli.Command {
	var params alignParams

	return &cli.Command{
		Name:    "align",
		Summary: "Compute the time slot a timestamp belongs to",
		Description: `Evaluate an alignment template and print the aligned time (RFC 3339).

The timestamp comes from --time, or from a file name parsed with the
--origin pattern. Prints nothing and exits non-zero when the template
does not apply to the metadata.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("align", &params)
		},
		Examples: []cli.Example{
			{
				Description: "Quarter-hour slot of a timestamp",
				Command:     "downlink align -t '{time|align(15)}' --time 2023-01-01T10:07:00Z",
			},
			{
				Description: "Slot of a landed segment",
				Command:     "downlink align -t '{time:%Y%m%d%H%M|align(15)}' --origin 'seg-{time:%Y%m%d%H%M}-{n:3s}' --file seg-202301011007-001",
			},
		},
		Run: func(_ context.Context, args []string, _ *slog.Logger) error {
			if err := requireArgs(args, 0, "downlink align --template T (--time T | --file F --origin P)"); err != nil {
				return err
			}
			aligned, err := alignParamsTime(params)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(stdout, aligned.Format(time.RFC3339Nano))
			return err
		},
	}
}

func alignParamsTime(params alignParams) (time.Time, error) {
	pattern, ok := timeslot.ParsePattern(params.Template)
	if !ok {
		return time.Time{}, fmt.Errorf("--template %q is not a {key...} template", params.Template)
	}

	var metadata map[string]any
	switch {
	case params.Time != "" && params.File != "":
		return time.Time{}, errors.New("--time and --file are mutually exclusive")
	case params.Time != "":
		timestamp, err := time.Parse(time.RFC3339Nano, params.Time)
		if err != nil {
			return time.Time{}, fmt.Errorf("--time: %w", err)
		}
		metadata = map[string]any{pattern.Key: timestamp.UTC()}
	case params.File != "":
		if params.Origin == "" {
			return time.Time{}, errors.New("--file needs --origin")
		}
		origin, err := fnpattern.Compile(params.Origin)
		if err != nil {
			return time.Time{}, err
		}
		if metadata, err = origin.Parse(params.File); err != nil {
			return time.Time{}, err
		}
	default:
		return time.Time{}, errors.New("one of --time or --file is required")
	}

	result, ok, err := timeslot.ComputeAlignedTime(params.Template, metadata)
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		return time.Time{}, fmt.Errorf("template key %q has no timestamp in the metadata", pattern.Key)
	}
	return result[pattern.Key], nil
}
