// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package policy implements the egress policy engine: the pure,
// synchronous evaluator that decides whether a single outbound attempt
// is allowed.
//
// The package is organized around the evaluation data flow:
//
//   - posture.go: the closed set of security postures (relaxed,
//     standard, strict)
//   - ruleset.go: compiled prefix→requirement tables with
//     longest-match-wins semantics, and the per-posture presets
//   - override.go: JSONC override documents that fully replace a
//     preset's rules
//   - engine.go: Evaluate, the one evaluation contract
//   - handle.go: the atomically swapped active rule set
//
// Evaluate never faults: internal panics map to a deny verdict with
// reason "engine_error", and a failing lease lookup is treated as "no
// lease". Both paths fail closed.
package policy
