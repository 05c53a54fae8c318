// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the small command-tree framework behind the
// warden CLI: named subcommands, pflag flag sets, and structured help
// output.
package cli
