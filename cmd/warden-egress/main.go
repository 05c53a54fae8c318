// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Warden-egress is the egress control daemon: a policy-enforcing
// forward proxy with a decision ledger and a control API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/warden-foundation/warden/egress"
	"github.com/warden-foundation/warden/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var logLevel string
	var showVersion bool

	pflag.StringVar(&configPath, "config", "", "path to config file (required)")
	pflag.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	pflag.BoolVar(&showVersion, "version", false, "print version information and exit")
	pflag.Parse()

	if showVersion {
		fmt.Printf("warden-egress %s\n", version.Full())
		return nil
	}

	if configPath == "" {
		configPath = os.Getenv("WARDEN_CONFIG")
	}
	if configPath == "" {
		return fmt.Errorf("--config is required")
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	config, err := egress.LoadConfig(configPath)
	if err != nil {
		return err
	}

	logger.Info("starting warden-egress",
		"version", version.Info(),
		"posture", config.Posture,
		"override_rules", config.OverrideRules,
		"ledger_path", config.Ledger.Path,
	)

	server, err := egress.NewServer(config, logger, nil)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	// SIGHUP reloads the policy override document; a malformed
	// document installs the deny-all fallback until corrected.
	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	go func() {
		for range reload {
			if err := server.ReloadPolicy(); err != nil {
				logger.Error("policy reload failed", "error", err)
			}
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	logger.Info("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}
