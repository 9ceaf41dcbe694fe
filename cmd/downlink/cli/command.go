// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"
)

// Command is one node of the command tree.
type Command struct {
	// Name is what the user types ("ref", "generate").
	Name string

	// Summary is the one-liner in the parent's command list.
	Summary string

	// Description is the longer text at the top of the command's own
	// help.
	Description string

	// Usage replaces the synthesized usage line when set.
	Usage string

	Examples []Example

	// Flags builds the command's flag set. It is called once per
	// parse and again for help, so it must bind fresh flags each time.
	// Nil means the command takes no flags.
	Flags func() *pflag.FlagSet

	Subcommands []*Command

	// Run receives the positional arguments left after flag parsing
	// and a logger scoped to the command. A command with Subcommands
	// may also set Run as the fallback when no subcommand is named.
	Run func(ctx context.Context, args []string, logger *slog.Logger) error

	// Output receives help text. Nil inherits from the parent, and
	// os.Stderr at the root.
	Output io.Writer

	parent *Command
}

// Example is one entry of the help's Examples section.
type Example struct {
	Description string
	Command     string
}

// Execute dispatches args through the tree: a leading non-flag
// argument naming a subcommand descends into it, anything else is
// parsed as this command's flags and handed to Run.
func (c *Command) Execute(ctx context.Context, args []string) error {
	if len(args) > 0 && isHelpFlag(args[0]) {
		c.PrintHelp(c.output())
		return nil
	}

	if len(c.Subcommands) > 0 && len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		if sub := c.lookup(args[0]); sub != nil {
			sub.parent = c
			return sub.Execute(ctx, args[1:])
		}
		if suggestion := suggestCommand(args[0], c.Subcommands); suggestion != "" {
			return c.usageError("unknown command %q (did you mean %q?)", args[0], suggestion)
		}
		return c.usageError("unknown command %q", args[0])
	}

	if c.Run == nil {
		c.PrintHelp(c.output())
		if len(c.Subcommands) == 0 {
			return fmt.Errorf("no action defined for %q", c.fullName())
		}
		if len(args) == 0 {
			return errors.New("subcommand required")
		}
		return fmt.Errorf("subcommand required (got flag %q)", args[0])
	}

	positional, help, err := c.parseFlags(args)
	if err != nil {
		return err
	}
	if help {
		c.PrintHelp(c.output())
		return nil
	}
	return c.Run(ctx, positional, NewCommandLogger().With("command", c.fullName()))
}

// parseFlags parses args against the command's flags and returns the
// positional remainder. help is true when --help appeared after other
// arguments.
func (c *Command) parseFlags(args []string) (positional []string, help bool, err error) {
	if c.Flags == nil {
		return args, false, nil
	}

	flagSet := c.Flags()
	flagSet.SetOutput(io.Discard)
	err = flagSet.Parse(args)
	switch {
	case err == nil:
		return flagSet.Args(), false, nil
	case errors.Is(err, pflag.ErrHelp):
		return nil, true, nil
	}

	if strings.Contains(err.Error(), "unknown flag") {
		// A fresh flag set: the failed parse may have left state behind.
		if suggestion := suggestFlag(args, c.Flags()); suggestion != "" {
			return nil, false, c.usageError("%v (did you mean %s?)", err, suggestion)
		}
	}
	return nil, false, c.usageError("%v", err)
}

func (c *Command) lookup(name string) *Command {
	for _, sub := range c.Subcommands {
		if sub.Name == name {
			return sub
		}
	}
	return nil
}

// usageError formats a user error followed by a pointer to --help.
func (c *Command) usageError(format string, args ...any) error {
	return fmt.Errorf("%s\n\nRun '%s --help' for usage.", fmt.Sprintf(format, args...), c.fullName())
}

// PrintHelp writes the command's help to w.
func (c *Command) PrintHelp(w io.Writer) {
	name := c.fullName()

	switch {
	case c.Description != "":
		fmt.Fprintf(w, "%s\n\n", c.Description)
	case c.Summary != "":
		fmt.Fprintf(w, "%s\n\n", c.Summary)
	}

	usage := c.Usage
	if usage == "" {
		usage = name + " [flags]"
		if len(c.Subcommands) > 0 {
			usage = name + " <command> [flags]"
		}
	}
	fmt.Fprintf(w, "Usage:\n  %s\n", usage)

	if len(c.Subcommands) > 0 {
		fmt.Fprintf(w, "\nCommands:\n")
		table := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
		for _, sub := range c.Subcommands {
			fmt.Fprintf(table, "  %s\t%s\n", sub.Name, sub.Summary)
		}
		table.Flush()
	}

	if c.Flags != nil {
		if flagUsage := c.Flags().FlagUsages(); flagUsage != "" {
			fmt.Fprintf(w, "\nFlags:\n%s", flagUsage)
		}
	}

	if len(c.Examples) > 0 {
		fmt.Fprintf(w, "\nExamples:\n")
		for _, example := range c.Examples {
			if example.Description == "" {
				fmt.Fprintf(w, "  %s\n", example.Command)
				continue
			}
			fmt.Fprintf(w, "  # %s\n  %s\n\n", example.Description, example.Command)
		}
	}

	if len(c.Subcommands) > 0 {
		fmt.Fprintf(w, "\nRun '%s <command> --help' for more information on a command.\n", name)
	}
}

func (c *Command) output() io.Writer {
	for command := c; command != nil; command = command.parent {
		if command.Output != nil {
			return command.Output
		}
	}
	return os.Stderr
}

// fullName is the command path from the root, e.g. "downlink ref generate".
func (c *Command) fullName() string {
	if c.parent == nil {
		return c.Name
	}
	return c.parent.fullName() + " " + c.Name
}

func isHelpFlag(arg string) bool {
	return arg == "-h" || arg == "--help" || arg == "help"
}
