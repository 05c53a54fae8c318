// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/warden-foundation/warden/cmd/warden/cli"
	"github.com/warden-foundation/warden/lease"
)

func leaseCommand() *cli.Command {
	return &cli.Command{
		Name:    "lease",
		Summary: "Issue, revoke, and list capability leases.",
		Subcommands: []*cli.Command{
			leaseIssueCommand(),
			leaseRevokeCommand(),
			leaseListCommand(),
		},
	}
}

func leaseIssueCommand() *cli.Command {
	var server, project string
	var ttl time.Duration

	return &cli.Command{
		Name:    "issue",
		Summary: "Issue a lease for a capability prefix.",
		Usage:   "warden lease issue <prefix> [flags]",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("issue", pflag.ContinueOnError)
			fs.StringVar(&server, "server", defaultServer(), "control API address")
			fs.StringVar(&project, "project", "", "scope the lease to one project")
			fs.DurationVar(&ttl, "ttl", time.Hour, "lease lifetime")
			return fs
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("exactly one capability prefix is required")
			}

			var granted lease.Lease
			err := newControlClient(server).post("/v1/leases", map[string]any{
				"capability": args[0],
				"project":    project,
				"ttl_secs":   int64(ttl / time.Second),
			}, &granted)
			if err != nil {
				return err
			}

			fmt.Printf("lease %s issued: prefix %s", granted.ID, granted.Prefix)
			if granted.Project != "" {
				fmt.Printf(", project %s", granted.Project)
			}
			fmt.Printf(", expires %s\n", formatExpiry(granted.ExpiresAt))
			return nil
		},
	}
}

func leaseRevokeCommand() *cli.Command {
	var server string

	return &cli.Command{
		Name:    "revoke",
		Summary: "Revoke a lease by id.",
		Usage:   "warden lease revoke <id> [flags]",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("revoke", pflag.ContinueOnError)
			fs.StringVar(&server, "server", defaultServer(), "control API address")
			return fs
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("exactly one lease id is required")
			}
			if err := newControlClient(server).delete("/v1/leases/" + args[0]); err != nil {
				return err
			}
			fmt.Printf("lease %s revoked\n", args[0])
			return nil
		},
	}
}

func leaseListCommand() *cli.Command {
	var server string

	return &cli.Command{
		Name:    "list",
		Summary: "List all leases.",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("list", pflag.ContinueOnError)
			fs.StringVar(&server, "server", defaultServer(), "control API address")
			return fs
		},
		Run: func(args []string) error {
			var body struct {
				Leases []lease.Lease `json:"leases"`
			}
			if err := newControlClient(server).get("/v1/leases", &body); err != nil {
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tPREFIX\tPROJECT\tEXPIRES\tSTATE")
			for _, l := range body.Leases {
				state := "active"
				if l.Revoked {
					state = "revoked"
				} else if !l.ExpiresAt.IsZero() && time.Now().After(l.ExpiresAt) {
					state = "expired"
				}
				project := l.Project
				if project == "" {
					project = "(global)"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					l.ID, l.Prefix, project, formatExpiry(l.ExpiresAt), state)
			}
			return tw.Flush()
		},
	}
}

func formatExpiry(expires time.Time) string {
	if expires.IsZero() {
		return "never"
	}
	return expires.Local().Format(time.RFC3339)
}
