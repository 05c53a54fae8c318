// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package lease implements the capability lease store. A lease is a
// time-bounded grant that admits otherwise-gated capability namespaces
// for one project or globally.
//
// The store is mutated only through Issue and Revoke; an expired or
// revoked lease is terminal. Evaluations read through an immutable
// Snapshot taken at evaluation start, so a mutation committed mid-
// evaluation is first visible to the next evaluation.
package lease
