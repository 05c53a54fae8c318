// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package ledger implements the egress decision ledger: an
// append-only, monotonically-ordered record of every admission
// decision, with bounded retention.
//
// Record ids are assigned atomically at append time, strictly
// increase for the life of the database, and are never reused —
// including across retention eviction and process restarts (the
// SQLite journal persists the id watermark).
//
// A record is created with its decision and metadata fixed. Allow
// records keep mutable byte counters until the transfer ends and the
// record is frozen; deny records are frozen at creation. Freeze is an
// idempotent one-time terminal transition.
//
// Readers always observe a consistent snapshot: Recent and Get return
// deep copies taken under the ledger lock, never a partially-written
// record.
package ledger
