// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package lease

import (
	"strings"
	"time"
)

// Lease is one capability grant. Immutable once issued except for the
// Revoked flag, which is a one-way transition.
type Lease struct {
	// ID is the lease's unique identifier (UUID).
	ID string `json:"id"`

	// Prefix is the capability namespace pattern the lease covers,
	// e.g. "net.http" or "net.http.*". A trailing ".*" is equivalent
	// to the bare prefix.
	Prefix string `json:"prefix"`

	// Project scopes the lease to one project. Empty means global:
	// the lease covers every project.
	Project string `json:"project,omitempty"`

	// IssuedAt is when the lease was granted.
	IssuedAt time.Time `json:"issued_at"`

	// ExpiresAt is when the lease stops covering requests. Zero means
	// no expiry.
	ExpiresAt time.Time `json:"expires_at,omitzero"`

	// Revoked marks the lease terminally invalid.
	Revoked bool `json:"revoked,omitempty"`
}

// effectivePrefix strips an optional trailing ".*" so "net.http.*" and
// "net.http" cover the same namespaces and rank equally specific.
func effectivePrefix(prefix string) string {
	return strings.TrimSuffix(prefix, ".*")
}

// Covers reports whether the lease's prefix covers a capability
// namespace on a dot boundary.
func (l Lease) Covers(namespace string) bool {
	prefix := effectivePrefix(l.Prefix)
	if prefix == namespace {
		return true
	}
	return strings.HasPrefix(namespace, prefix+".")
}

// ActiveAt reports whether the lease is unrevoked and unexpired at the
// given instant.
func (l Lease) ActiveAt(now time.Time) bool {
	if l.Revoked {
		return false
	}
	if !l.ExpiresAt.IsZero() && !now.Before(l.ExpiresAt) {
		return false
	}
	return true
}
