// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package egress is the enforcement surface: a forward proxy that
// admits or rejects every outbound connection an agent attempts, plus
// the control API operators use to manage leases and observe
// decisions.
//
// The proxy listener accepts CONNECT tunnels and absolute-form HTTP
// requests. Every attempt is evaluated synchronously against the
// active policy snapshot before any byte leaves the process; the
// decision is appended to the ledger and published to subscribers
// exactly once, at admission. Allowed transfers stream through 16 KiB
// copy loops that feed the record's byte counters until the transfer
// ends and the record freezes.
//
// The control listener (a separate address, not reachable through the
// proxy) carries lease management, recent-decision queries, the
// websocket event stream, policy inspection and reload, health, and
// metrics.
package egress
