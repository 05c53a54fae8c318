// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package egress

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/warden-foundation/warden/event"
	"github.com/warden-foundation/warden/ledger"
	"github.com/warden-foundation/warden/lease"
	"github.com/warden-foundation/warden/lib/clock"
	"github.com/warden-foundation/warden/policy"
)

// Server owns the daemon's two listeners and the components behind
// them: the policy handle, lease store, ledger, and event publisher.
type Server struct {
	config Config
	logger *slog.Logger

	policy  *policy.Handle
	leases  *lease.Store
	ledger  *ledger.Ledger
	events  *event.Publisher
	metrics *Metrics

	proxyServer     *http.Server
	controlServer   *http.Server
	proxyListener   net.Listener
	controlListener net.Listener
}

// NewServer wires the daemon from a validated config. The clock is
// injected for tests; nil means the real clock.
func NewServer(cfg Config, logger *slog.Logger, clk clock.Clock) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if clk == nil {
		clk = clock.Real()
	}

	posture, err := policy.ParsePosture(cfg.Posture)
	if err != nil {
		return nil, err
	}
	handle := policy.NewHandle(posture, cfg.OverrideRules, logger)

	var journal *ledger.Journal
	if cfg.Ledger.Path != "" {
		journal, err = ledger.OpenJournal(cfg.Ledger.Path)
		if err != nil {
			return nil, err
		}
	}
	led, err := ledger.New(ledger.Options{
		MaxRecords: cfg.Ledger.MaxRecords,
		MaxAge:     cfg.Ledger.MaxAge.Std(),
		Journal:    journal,
		Clock:      clk,
		Logger:     logger,
	})
	if err != nil {
		if journal != nil {
			journal.Close()
		}
		return nil, err
	}

	metrics := NewMetrics()
	events := event.NewPublisher(cfg.Events.QueueSize)
	events.OnDrop = func() { metrics.SubscriberDrops.Inc() }

	leases := lease.NewStore(clk)
	interceptor := NewInterceptor(handle, leases, led, events, metrics, logger)

	api := &controlAPI{
		policy:  handle,
		leases:  leases,
		ledger:  led,
		events:  events,
		metrics: metrics,
		logger:  logger,
	}

	return &Server{
		config:  cfg,
		logger:  logger,
		policy:  handle,
		leases:  leases,
		ledger:  led,
		events:  events,
		metrics: metrics,
		proxyServer: &http.Server{
			Handler:           newProxyHandler(interceptor, cfg.Timeouts, logger),
			ReadHeaderTimeout: 30 * time.Second,
			// No write timeout: tunnels and streamed responses are
			// long-lived by design; the idle timeout bounds them.
		},
		controlServer: &http.Server{
			Handler:           api.routes(),
			ReadHeaderTimeout: 30 * time.Second,
		},
	}, nil
}

// Start begins listening on both addresses. Non-blocking; serve errors
// after startup are logged.
func (s *Server) Start() error {
	proxyListener, err := net.Listen("tcp", s.config.ProxyListen)
	if err != nil {
		return fmt.Errorf("proxy listener: %w", err)
	}
	controlListener, err := net.Listen("tcp", s.config.ControlListen)
	if err != nil {
		proxyListener.Close()
		return fmt.Errorf("control listener: %w", err)
	}
	s.proxyListener = proxyListener
	s.controlListener = controlListener

	s.logger.Info("egress proxy listening",
		"address", proxyListener.Addr().String(),
		"posture", s.config.Posture,
	)
	s.logger.Info("control API listening",
		"address", controlListener.Addr().String(),
	)

	go func() {
		if err := s.proxyServer.Serve(proxyListener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("proxy server error", "error", err)
		}
	}()
	go func() {
		if err := s.controlServer.Serve(controlListener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("control server error", "error", err)
		}
	}()
	return nil
}

// ProxyAddr returns the proxy listener's bound address.
func (s *Server) ProxyAddr() string {
	if s.proxyListener == nil {
		return ""
	}
	return s.proxyListener.Addr().String()
}

// ControlAddr returns the control listener's bound address.
func (s *Server) ControlAddr() string {
	if s.controlListener == nil {
		return ""
	}
	return s.controlListener.Addr().String()
}

// Leases exposes the lease store for embedding callers.
func (s *Server) Leases() *lease.Store { return s.leases }

// ReloadPolicy re-reads the override rule document, if configured.
func (s *Server) ReloadPolicy() error { return s.policy.Reload() }

// Shutdown stops both listeners, ends every event subscription, and
// closes the ledger journal.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")

	err := s.proxyServer.Shutdown(ctx)
	// Ending the publisher unblocks websocket handlers, which hold
	// hijacked connections the HTTP shutdown does not wait for.
	s.events.Close()
	if controlErr := s.controlServer.Shutdown(ctx); controlErr != nil && err == nil {
		err = controlErr
	}
	if closeErr := s.ledger.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
