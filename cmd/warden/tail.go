// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coder/websocket"
	"github.com/spf13/pflag"

	"github.com/warden-foundation/warden/cmd/warden/cli"
	"github.com/warden-foundation/warden/ledger"
	"github.com/warden-foundation/warden/lib/codec"
)

func tailCommand() *cli.Command {
	var server, format string

	return &cli.Command{
		Name:    "tail",
		Summary: "Stream egress decisions live, one JSON line per event.",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("tail", pflag.ContinueOnError)
			fs.StringVar(&server, "server", defaultServer(), "control API address")
			fs.StringVar(&format, "format", "json", "wire format: json or cbor")
			return fs
		},
		Run: func(args []string) error {
			if format != "json" && format != "cbor" {
				return fmt.Errorf("unknown format %q (want json or cbor)", format)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			path := "/v1/egress/events"
			if format == "cbor" {
				path += "?format=cbor"
			}
			streamURL := newControlClient(server).websocketURL(path)

			conn, _, err := websocket.Dial(ctx, streamURL, nil)
			if err != nil {
				return fmt.Errorf("connecting to %s: %w", streamURL, err)
			}
			defer conn.CloseNow()

			encoder := json.NewEncoder(os.Stdout)
			for {
				_, payload, err := conn.Read(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return fmt.Errorf("event stream: %w", err)
				}

				if format == "cbor" {
					var rec ledger.Record
					if err := codec.Unmarshal(payload, &rec); err != nil {
						return fmt.Errorf("decoding CBOR event: %w", err)
					}
					if err := encoder.Encode(rec); err != nil {
						return err
					}
					continue
				}
				fmt.Println(string(payload))
			}
		},
	}
}
