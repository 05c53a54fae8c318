// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Handle owns the active rule set. Evaluators call Current() once at
// the start of an evaluation and use that snapshot for its full
// duration; Reload swaps the pointer atomically so no evaluation ever
// observes a half-applied rule set.
type Handle struct {
	logger       *slog.Logger
	posture      Posture
	overridePath string

	current atomic.Pointer[RuleSet]

	// reloadMu serializes Reload calls. Readers never take it.
	reloadMu  sync.Mutex
	lastError atomic.Pointer[string]
}

// NewHandle builds a handle for the given posture and optional
// override document path, then performs the initial load. A malformed
// override document does not fail construction: the deny-all fallback
// is installed and the error is reported through the logger and
// LastError, matching reload behavior.
func NewHandle(posture Posture, overridePath string, logger *slog.Logger) *Handle {
	if logger == nil {
		logger = slog.Default()
	}
	handle := &Handle{
		logger:       logger,
		posture:      posture,
		overridePath: overridePath,
	}
	if err := handle.Reload(); err != nil {
		logger.Error("initial policy load failed, deny-all fallback active",
			"posture", posture.String(),
			"override", overridePath,
			"error", err,
		)
	}
	return handle
}

// Current returns the active rule set snapshot. Never nil after
// NewHandle returns.
func (h *Handle) Current() *RuleSet {
	return h.current.Load()
}

// Posture returns the configured posture.
func (h *Handle) Posture() Posture { return h.posture }

// LastError returns the error message from the most recent failed
// load, or "" when the active rule set loaded cleanly. Exposed on the
// control API so operators can see why the fallback is active.
func (h *Handle) LastError() string {
	if message := h.lastError.Load(); message != nil {
		return *message
	}
	return ""
}

// Reload re-derives the active rule set: the posture preset, or the
// override document when one is configured. The swap is atomic. On a
// malformed override document the deny-all fallback is installed (fail
// closed) and the error is returned; the process keeps running.
func (h *Handle) Reload() error {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()

	if h.overridePath == "" {
		h.current.Store(Preset(h.posture))
		h.clearError()
		h.logger.Info("policy rule set active",
			"posture", h.posture.String(),
			"origin", "preset",
		)
		return nil
	}

	rules, err := LoadOverride(h.overridePath, h.posture)
	if err != nil {
		h.current.Store(DenyAll(h.posture))
		message := err.Error()
		h.lastError.Store(&message)
		h.logger.Error("policy override load failed, deny-all fallback active",
			"posture", h.posture.String(),
			"override", h.overridePath,
			"error", err,
		)
		return err
	}

	h.current.Store(rules)
	h.clearError()
	h.logger.Info("policy rule set active",
		"posture", h.posture.String(),
		"origin", "override",
		"rules", rules.Len(),
	)
	return nil
}

func (h *Handle) clearError() {
	h.lastError.Store(nil)
}
