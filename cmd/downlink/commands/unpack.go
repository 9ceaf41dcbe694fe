// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/downlink/cmd/downlink/cli"
	"github.com/bureau-foundation/downlink/lib/unpack"
)

type unpackParams struct {
	Compression string `flag:"compression,k" desc:"none, bzip2, xrit, gzip, zstd or lz4" default:"none"`
	Workdir     string `flag:"workdir,w" desc:"directory (or file:// URL) receiving the output (default system temp)"`
	Program     string `flag:"program" desc:"xrit decompression tool (default ./xRITDecompress)"`
	Delete      string `flag:"delete" desc:"remove the original after unpacking when 1, yes, true or on"`
}

func unpackCommand(stdout io.Writer) *cli.Command {
	var params unpackParams

	return &cli.Command{
		Name:    "unpack",
		Summary: "Decompress one landed file",
		Description: `Decompress FILE with the named strategy and print the output path.

For compression none the file is left in place and its own path is
printed. On failure the original is never removed.`,
		Usage: "downlink unpack --compression K [--workdir D] [--program P] [--delete V] FILE",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("unpack", &params)
		},
		Examples: []cli.Example{
			{
				Description: "Decompress an HRIT segment into today's directory",
				Command:     "downlink unpack -k xrit -w /data/hrit/20230101 --program /opt/xrit/xRITDecompress H-000-MSG4__-...-CE",
			},
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if err := requireArgs(args, 1, "downlink unpack [flags] FILE"); err != nil {
				return err
			}
			compression, err := unpack.ParseCompression(params.Compression)
			if err != nil {
				return err
			}
			output, err := unpack.New(logger, nil).Unpack(ctx, unpack.Request{
				Path:             args[0],
				Compression:      compression,
				WorkingDirectory: params.Workdir,
				Program:          params.Program,
				Delete:           unpack.Truthy(params.Delete),
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(stdout, output)
			return err
		},
	}
}
