// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Warden is the operator CLI for the egress control daemon: lease
// management, decision queries, live event tailing, and policy
// control over the daemon's control API.
package main

import (
	"fmt"
	"os"

	"github.com/warden-foundation/warden/cmd/warden/cli"
	"github.com/warden-foundation/warden/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	root := &cli.Command{
		Name:    "warden",
		Summary: "Operate the Warden egress control daemon.",
		Subcommands: []*cli.Command{
			leaseCommand(),
			recentCommand(),
			tailCommand(),
			policyCommand(),
			versionCommand(),
		},
	}
	return root.Execute(os.Args[1:])
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information.",
		Run: func(args []string) error {
			fmt.Printf("warden %s\n", version.Full())
			return nil
		},
	}
}
