// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock abstracts time reads for testability. Production code injects
// Real(); tests inject Fake() and advance time explicitly.
//
// Components that check lease expiry, record ages, or retention windows
// take a Clock field instead of calling the time package directly.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once
	// duration d has elapsed. Equivalent to time.After. If d <= 0,
	// the channel receives immediately.
	After(d time.Duration) <-chan time.Time
}
