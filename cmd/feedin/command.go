// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"
)

// maxSuggestDistance bounds the edit distance of "did you mean"
// suggestions.
const maxSuggestDistance = 3

// Command is one node of the feedin command tree. A node either
// dispatches to Subcommands or parses Flags and calls Run.
type Command struct {
	Name        string
	Summary     string // one line, listed by the parent
	Description string // shown in the command's own help
	Usage       string // replaces the generated usage line

	// Flags builds a fresh flag set; it may be called more than once.
	Flags func() *pflag.FlagSet

	Subcommands []*Command

	// Run receives the positional arguments left after flag parsing.
	Run func(args []string) error

	parent *Command
}

// Execute runs the command named by args. Help text goes to help.
func (c *Command) Execute(args []string, help io.Writer) error {
	if len(args) > 0 && isHelpFlag(args[0]) {
		c.PrintHelp(help)
		return nil
	}
	if len(c.Subcommands) > 0 && len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		sub, err := c.lookup(args[0])
		if err != nil {
			return err
		}
		return sub.Execute(args[1:], help)
	}
	if c.Run == nil {
		c.PrintHelp(help)
		if len(c.Subcommands) > 0 {
			return errors.New("subcommand required")
		}
		return fmt.Errorf("%s: nothing to run", c.path())
	}

	positional, err := c.parse(args)
	if err != nil {
		return err
	}
	return c.Run(positional)
}

func (c *Command) lookup(name string) (*Command, error) {
	names := make([]string, 0, len(c.Subcommands))
	for _, sub := range c.Subcommands {
		if sub.Name == name {
			sub.parent = c
			return sub, nil
		}
		names = append(names, sub.Name)
	}
	message := fmt.Sprintf("unknown command %q", name)
	if closest := closest(name, names); closest != "" {
		message += fmt.Sprintf(" (did you mean %q?)", closest)
	}
	return nil, c.usageError(message)
}

func (c *Command) parse(args []string) ([]string, error) {
	if c.Flags == nil {
		return args, nil
	}
	flagSet := c.Flags()
	flagSet.SetOutput(io.Discard)
	if err := flagSet.Parse(args); err != nil {
		message := err.Error()
		if name := unknownFlag(args, flagSet); name != "" {
			var defined []string
			flagSet.VisitAll(func(f *pflag.Flag) { defined = append(defined, f.Name) })
			if closest := closest(name, defined); closest != "" {
				message += " (did you mean --" + closest + "?)"
			}
		}
		return nil, c.usageError(message)
	}
	return flagSet.Args(), nil
}

func (c *Command) usageError(message string) error {
	return fmt.Errorf("%s\n\nRun '%s --help' for usage.", message, c.path())
}

// PrintHelp writes the command's help to w.
func (c *Command) PrintHelp(w io.Writer) {
	text := c.Description
	if text == "" {
		text = c.Summary
	}
	if text != "" {
		fmt.Fprintf(w, "%s\n\n", text)
	}

	usage := c.Usage
	if usage == "" {
		usage = c.path() + " [flags]"
		if len(c.Subcommands) > 0 {
			usage = c.path() + " <command> [flags]"
		}
	}
	fmt.Fprintf(w, "Usage:\n  %s\n", usage)

	if len(c.Subcommands) > 0 {
		fmt.Fprintln(w, "\nCommands:")
		table := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
		for _, sub := range c.Subcommands {
			fmt.Fprintf(table, "  %s\t%s\n", sub.Name, sub.Summary)
		}
		table.Flush()
	}
	if c.Flags != nil {
		if flags := c.Flags().FlagUsages(); flags != "" {
			fmt.Fprintf(w, "\nFlags:\n%s", flags)
		}
	}
	if len(c.Subcommands) > 0 {
		fmt.Fprintf(w, "\nRun '%s <command> --help' for details on a command.\n", c.path())
	}
}

// path is the command's name prefixed by its ancestors.
func (c *Command) path() string {
	if c.parent == nil {
		return c.Name
	}
	return c.parent.path() + " " + c.Name
}

func isHelpFlag(arg string) bool {
	switch arg {
	case "-h", "--help", "help":
		return true
	}
	return false
}

// unknownFlag returns the name of the first flag in args that flagSet
// does not define, or "".
func unknownFlag(args []string, flagSet *pflag.FlagSet) string {
	for _, arg := range args {
		if arg == "--" {
			return ""
		}
		if !strings.HasPrefix(arg, "-") {
			continue
		}
		name, _, _ := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if flagSet.Lookup(name) == nil {
			return name
		}
	}
	return ""
}

// closest returns the candidate nearest to name, or "" if none is
// within maxSuggestDistance edits.
func closest(name string, candidates []string) string {
	best, bestDistance := "", maxSuggestDistance+1
	for _, candidate := range candidates {
		if distance := levenshtein(name, candidate); distance < bestDistance {
			best, bestDistance = candidate, distance
		}
	}
	return best
}

// levenshtein returns the edit distance between a and b.
func levenshtein(a, b string) int {
	row := make([]int, len(b)+1)
	for j := range row {
		row[j] = j
	}
	for i := 1; i <= len(a); i++ {
		diagonal := row[0]
		row[0] = i
		for j := 1; j <= len(b); j++ {
			substitution := diagonal
			if a[i-1] != b[j-1] {
				substitution++
			}
			diagonal = row[j]
			row[j] = min(row[j]+1, row[j-1]+1, substitution)
		}
	}
	return row[len(b)]
}
