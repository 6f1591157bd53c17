// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

// Feedin is the operator CLI for feed-in capping simulations.
//
//	feedin run SCENARIO.jsonc    run a scenario against a gateway
//	feedin version               print version information
package main

import (
	"io"
	"os"

	"github.com/feedin-foundation/feedin/lib/process"
	"github.com/feedin-foundation/feedin/lib/version"
)

func main() {
	if err := root(os.Stdout).Execute(os.Args[1:], os.Stderr); err != nil {
		process.Fatal(err)
	}
}

// root builds the command tree writing results to stdout.
func root(stdout io.Writer) *Command {
	return &Command{
		Name:    "feedin",
		Summary: "Fleet feed-in capping for co-simulated wind units",
		Subcommands: []*Command{
			runCommand(stdout),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func([]string) error {
					_, err := io.WriteString(stdout, "feedin "+version.Full()+"\n")
					return err
				},
			},
		},
	}
}
