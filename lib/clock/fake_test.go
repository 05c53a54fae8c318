// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

func TestFakeNowAdvance(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := Fake(start)

	if got := c.Now(); !got.Equal(start) {
		t.Errorf("Now() = %v, want %v", got, start)
	}

	c.Advance(90 * time.Second)
	if got := c.Now(); !got.Equal(start.Add(90 * time.Second)) {
		t.Errorf("Now() after Advance = %v, want %v", got, start.Add(90*time.Second))
	}
}

func TestFakeAfterFiresOnAdvance(t *testing.T) {
	c := Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	ch := c.After(time.Minute)
	select {
	case <-ch:
		t.Fatal("After fired before Advance")
	default:
	}

	c.Advance(30 * time.Second)
	select {
	case <-ch:
		t.Fatal("After fired before deadline")
	default:
	}

	c.Advance(30 * time.Second)
	select {
	case <-ch:
	default:
		t.Fatal("After did not fire at deadline")
	}
}

func TestFakeAfterNonPositive(t *testing.T) {
	c := Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	select {
	case <-c.After(0):
	default:
		t.Fatal("After(0) did not fire immediately")
	}
}
