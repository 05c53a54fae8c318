// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/warden-foundation/warden/cmd/warden/cli"
)

// policyView mirrors the control API's policy status shape.
type policyView struct {
	Posture         string `json:"posture"`
	Origin          string `json:"origin"`
	Default         string `json:"default"`
	BlockIPLiterals bool   `json:"block_ip_literals"`
	Rules           int    `json:"rules"`
	LastError       string `json:"last_error"`
}

func printPolicy(view policyView) {
	fmt.Printf("posture:            %s\n", view.Posture)
	fmt.Printf("origin:             %s\n", view.Origin)
	fmt.Printf("default:            %s\n", view.Default)
	fmt.Printf("block IP literals:  %v\n", view.BlockIPLiterals)
	fmt.Printf("rules:              %d\n", view.Rules)
	if view.LastError != "" {
		fmt.Printf("last error:         %s\n", view.LastError)
	}
}

func policyCommand() *cli.Command {
	return &cli.Command{
		Name:    "policy",
		Summary: "Inspect and reload the active egress policy.",
		Subcommands: []*cli.Command{
			policyShowCommand(),
			policyReloadCommand(),
		},
	}
}

func policyShowCommand() *cli.Command {
	var server string

	return &cli.Command{
		Name:    "show",
		Summary: "Show the active rule set.",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("show", pflag.ContinueOnError)
			fs.StringVar(&server, "server", defaultServer(), "control API address")
			return fs
		},
		Run: func(args []string) error {
			var view policyView
			if err := newControlClient(server).get("/v1/policy", &view); err != nil {
				return err
			}
			printPolicy(view)
			return nil
		},
	}
}

func policyReloadCommand() *cli.Command {
	var server string

	return &cli.Command{
		Name:    "reload",
		Summary: "Re-read the override rule document.",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("reload", pflag.ContinueOnError)
			fs.StringVar(&server, "server", defaultServer(), "control API address")
			return fs
		},
		Run: func(args []string) error {
			var view policyView
			if err := newControlClient(server).post("/v1/policy/reload", nil, &view); err != nil {
				return err
			}
			fmt.Println("policy reloaded")
			printPolicy(view)
			return nil
		},
	}
}
