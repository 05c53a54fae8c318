// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"fmt"
	"strings"
)

// Posture is a named security preset controlling how aggressively
// outbound traffic is gated by default.
type Posture int

const (
	// Relaxed allows every request unconditionally. No lease lookup
	// is performed.
	Relaxed Posture = iota

	// Standard gates sensitive capability prefixes behind leases and
	// allows unlisted namespaces by default.
	Standard

	// Strict gates like Standard but denies unlisted namespaces by
	// default and hard-denies IP-literal destinations regardless of
	// lease coverage.
	Strict
)

// String returns the posture's configuration name.
func (p Posture) String() string {
	switch p {
	case Relaxed:
		return "relaxed"
	case Standard:
		return "standard"
	case Strict:
		return "strict"
	default:
		return fmt.Sprintf("posture(%d)", int(p))
	}
}

// ParsePosture converts a configuration string to a Posture. The
// comparison is case-insensitive.
func ParsePosture(raw string) (Posture, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "relaxed":
		return Relaxed, nil
	case "standard":
		return Standard, nil
	case "strict":
		return Strict, nil
	default:
		return Standard, fmt.Errorf("unknown posture %q (want relaxed, standard, or strict)", raw)
	}
}
