// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR wire codec for event subscription
// streams. Encoding uses Core Deterministic Encoding so the same
// logical event always produces identical bytes; decoding ignores
// unknown fields for forward compatibility.
package codec
