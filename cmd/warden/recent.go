// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/warden-foundation/warden/cmd/warden/cli"
	"github.com/warden-foundation/warden/ledger"
)

func recentCommand() *cli.Command {
	var server, project, decision, host string
	var limit int
	var asJSON bool

	return &cli.Command{
		Name:    "recent",
		Summary: "Show recent egress decisions, newest first.",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("recent", pflag.ContinueOnError)
			fs.StringVar(&server, "server", defaultServer(), "control API address")
			fs.StringVar(&project, "project", "", "filter by project")
			fs.StringVar(&decision, "decision", "", "filter by decision: allow or deny")
			fs.StringVar(&host, "host", "", "filter by destination host")
			fs.IntVar(&limit, "limit", 50, "maximum records")
			fs.BoolVar(&asJSON, "json", false, "print raw JSON records")
			return fs
		},
		Run: func(args []string) error {
			query := url.Values{}
			query.Set("limit", strconv.Itoa(limit))
			if project != "" {
				query.Set("project", project)
			}
			if decision != "" {
				query.Set("decision", decision)
			}
			if host != "" {
				query.Set("host", host)
			}

			var body struct {
				Records []ledger.Record `json:"records"`
			}
			err := newControlClient(server).get("/v1/egress/recent?"+query.Encode(), &body)
			if err != nil {
				return err
			}

			if asJSON {
				encoder := json.NewEncoder(os.Stdout)
				for _, rec := range body.Records {
					if err := encoder.Encode(rec); err != nil {
						return err
					}
				}
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTIME\tDECISION\tREASON\tDEST\tSTATUS\tIN\tOUT")
			for _, rec := range body.Records {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s:%d\t%s\t%d\t%d\n",
					rec.ID,
					rec.CreatedAt.Local().Format("15:04:05"),
					rec.Decision,
					rec.Reason,
					rec.DestHost, rec.DestPort,
					rec.Status,
					rec.BytesIn, rec.BytesOut,
				)
			}
			return tw.Flush()
		},
	}
}
