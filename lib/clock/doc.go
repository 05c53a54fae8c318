// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source. Real() wraps the
// standard time package; Fake() gives tests deterministic control over
// lease expiry and ledger retention without sleeping.
package clock
