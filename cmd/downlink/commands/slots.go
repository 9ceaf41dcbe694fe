// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/downlink/cmd/downlink/cli"
	"github.com/bureau-foundation/downlink/lib/ledger"
)

type slotsParams struct {
	configParams
	cli.JSONOutput
	Target string `flag:"target,t" desc:"target name"`
	Limit  int    `flag:"limit,n" desc:"number of slots to show, newest first" default:"24"`
}

// slotRow is the JSON shape of one slot.
type slotRow struct {
	Slot     time.Time `json:"slot"`
	Segments int       `json:"segments"`
	Complete bool      `json:"complete"`
	First    time.Time `json:"first_landed"`
	Last     time.Time `json:"last_landed"`
}

func slotsCommand(stdout io.Writer) *cli.Command {
	var params slotsParams

	return &cli.Command{
		Name:    "slots",
		Summary: "Show recent time slots of a target from the ledger",
		Description: `List the newest time slots the ledger has recorded for a target, with
the number of segments landed in each and whether the completion
marker has arrived.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("slots", &params)
		},
		Examples: []cli.Example{
			{Command: "downlink slots --config /etc/downlink/downlink.yaml --target hrit --limit 8"},
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if err := requireArgs(args, 0, "downlink slots --target NAME"); err != nil {
				return err
			}
			if params.Target == "" {
				return errors.New("--target is required")
			}
			cfg, err := params.load()
			if err != nil {
				return err
			}
			if _, err := cfg.Target(params.Target); err != nil {
				return err
			}
			if cfg.Ledger == "" {
				return errors.New("the configuration has no ledger")
			}

			landingLedger, err := ledger.Open(ledger.Config{Path: cfg.Ledger, Logger: logger})
			if err != nil {
				return err
			}
			defer landingLedger.Close()

			slots, err := landingLedger.Slots(ctx, params.Target, params.Limit)
			if err != nil {
				return err
			}

			rows := make([]slotRow, 0, len(slots))
			for _, slot := range slots {
				rows = append(rows, slotRow(slot))
			}
			if done, err := params.EmitJSON(stdout, rows); done {
				return err
			}
			_, err = io.WriteString(stdout, renderSlots(rows, time.Now()))
			return err
		},
	}
}

var (
	headerStyle   = lipgloss.NewStyle().Bold(true)
	completeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	partialStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
)

// renderSlots formats rows as an aligned table. Column widths are
// measured on the unstyled text so colors do not skew alignment.
func renderSlots(rows []slotRow, now time.Time) string {
	if len(rows) == 0 {
		return "no slots recorded\n"
	}

	table := [][]string{{"SLOT", "SEGMENTS", "STATUS", "LAST LANDED"}}
	for _, row := range rows {
		status := "partial"
		if row.Complete {
			status = "complete"
		}
		table = append(table, []string{
			row.Slot.UTC().Format("2006-01-02 15:04"),
			strconv.Itoa(row.Segments),
			status,
			humanize.RelTime(row.Last, now, "ago", "from now"),
		})
	}

	widths := make([]int, len(table[0]))
	for _, line := range table {
		for column, cell := range line {
			widths[column] = max(widths[column], len(cell))
		}
	}

	var builder strings.Builder
	for index, line := range table {
		for column, cell := range line {
			style := lipgloss.NewStyle()
			switch {
			case index == 0:
				style = headerStyle
			case column == 2 && cell == "complete":
				style = completeStyle
			case column == 2:
				style = partialStyle
			}
			if column > 0 {
				builder.WriteString("  ")
			}
			builder.WriteString(style.Render(cell))
			if column < len(line)-1 {
				builder.WriteString(strings.Repeat(" ", widths[column]-len(cell)))
			}
		}
		builder.WriteString("\n")
	}
	return builder.String()
}

