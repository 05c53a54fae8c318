// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package event fans decision records out to live subscribers.
//
// Delivery is best-effort and forward-only: a subscriber sees events
// published after it subscribed, in publish order, and nothing else.
// There is no replay — a subscriber that reconnects missed whatever
// was published while it was away, and must use the ledger's query
// surface to catch up.
//
// Each subscriber owns a bounded FIFO queue. A slow subscriber loses
// its own oldest undelivered events when the queue overflows; it never
// blocks the publisher or its peers.
package event
