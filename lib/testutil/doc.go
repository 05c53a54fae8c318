// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides channel helpers for concurrency tests.
// The helpers wrap the select-with-timeout pattern so individual tests
// never hang forever on a channel that should have (or should not
// have) delivered.
package testutil
