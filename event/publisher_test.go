// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"context"
	"testing"
	"time"

	"github.com/warden-foundation/warden/ledger"
	"github.com/warden-foundation/warden/lib/testutil"
)

func record(id uint64) ledger.Record {
	return ledger.Record{
		ID:       id,
		Decision: "allow",
		DestHost: "api.example.com",
		DestPort: 443,
		Protocol: "https",
		Posture:  "standard",
		Status:   ledger.StatusEvaluating,
	}
}

func TestPublishDeliversInOrder(t *testing.T) {
	publisher := NewPublisher(8)
	defer publisher.Close()
	sub := publisher.Subscribe(0)
	defer sub.Cancel()

	for id := uint64(1); id <= 3; id++ {
		publisher.Publish(record(id))
	}

	for id := uint64(1); id <= 3; id++ {
		got := testutil.RequireReceive(t, sub.Ch(), time.Second, "event %d", id)
		if got.ID != id {
			t.Fatalf("event id = %d, want %d", got.ID, id)
		}
	}
}

func TestOverflowDropsOldest(t *testing.T) {
	publisher := NewPublisher(2)
	defer publisher.Close()
	sub := publisher.Subscribe(0)
	defer sub.Cancel()

	for id := uint64(1); id <= 5; id++ {
		publisher.Publish(record(id))
	}

	// Queue bound 2: events 1-3 were pushed out, 4 and 5 survive.
	if got := testutil.RequireReceive(t, sub.Ch(), time.Second); got.ID != 4 {
		t.Errorf("first surviving event = %d, want 4", got.ID)
	}
	if got := testutil.RequireReceive(t, sub.Ch(), time.Second); got.ID != 5 {
		t.Errorf("second surviving event = %d, want 5", got.ID)
	}
	if dropped := sub.Dropped(); dropped != 3 {
		t.Errorf("dropped = %d, want 3", dropped)
	}
}

func TestSlowSubscriberDoesNotBlockPeers(t *testing.T) {
	publisher := NewPublisher(1)
	defer publisher.Close()

	slow := publisher.Subscribe(0)
	defer slow.Cancel()
	fast := publisher.Subscribe(0)
	defer fast.Cancel()

	// The slow subscriber never reads. The fast one must still see
	// the latest event, and Publish must never stall.
	for id := uint64(1); id <= 10; id++ {
		publisher.Publish(record(id))
		if got := testutil.RequireReceive(t, fast.Ch(), time.Second); got.ID != id {
			t.Fatalf("fast subscriber saw %d, want %d", got.ID, id)
		}
	}

	if got := testutil.RequireReceive(t, slow.Ch(), time.Second); got.ID != 10 {
		t.Errorf("slow subscriber's surviving event = %d, want 10", got.ID)
	}
	if dropped := slow.Dropped(); dropped != 9 {
		t.Errorf("slow subscriber dropped = %d, want 9", dropped)
	}
}

func TestLateSubscriberGetsNoReplay(t *testing.T) {
	publisher := NewPublisher(8)
	defer publisher.Close()

	publisher.Publish(record(1))
	publisher.Publish(record(2))

	sub := publisher.Subscribe(0)
	defer sub.Cancel()
	testutil.RequireNoReceive(t, sub.Ch(), 50*time.Millisecond,
		"late subscriber received a replayed event")

	publisher.Publish(record(3))
	if got := testutil.RequireReceive(t, sub.Ch(), time.Second); got.ID != 3 {
		t.Errorf("first live event = %d, want 3", got.ID)
	}
}

func TestReconnectMissesInterveningEvents(t *testing.T) {
	publisher := NewPublisher(8)
	defer publisher.Close()

	first := publisher.Subscribe(0)
	publisher.Publish(record(1))
	if got := testutil.RequireReceive(t, first.Ch(), time.Second); got.ID != 1 {
		t.Fatalf("event id = %d, want 1", got.ID)
	}
	first.Cancel()

	// Published during the disconnection window: gone for good.
	publisher.Publish(record(2))

	second := publisher.Subscribe(0)
	defer second.Cancel()
	publisher.Publish(record(3))
	if got := testutil.RequireReceive(t, second.Ch(), time.Second); got.ID != 3 {
		t.Errorf("post-reconnect event = %d, want 3 (no backfill)", got.ID)
	}
}

func TestNextHonorsContext(t *testing.T) {
	publisher := NewPublisher(8)
	defer publisher.Close()
	sub := publisher.Subscribe(0)
	defer sub.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, ok := sub.Next(ctx); ok {
		t.Error("Next returned an event on an idle subscription")
	}

	publisher.Publish(record(1))
	got, ok := sub.Next(context.Background())
	if !ok || got.ID != 1 {
		t.Errorf("Next = %v, %v, want record 1", got.ID, ok)
	}
}

func TestCloseEndsSubscriptions(t *testing.T) {
	publisher := NewPublisher(8)
	sub := publisher.Subscribe(0)

	publisher.Close()
	testutil.RequireClosed(t, sub.Ch(), time.Second, "subscription channel after Close")

	if publisher.Subscribe(0) != nil {
		t.Error("Subscribe succeeded on a closed publisher")
	}
	if publisher.SubscriberCount() != 0 {
		t.Error("subscribers survived Close")
	}

	// Idempotent: closing again and cancelling a dead subscription
	// are no-ops.
	publisher.Close()
	sub.Cancel()
}

func TestOnDropCallback(t *testing.T) {
	publisher := NewPublisher(1)
	defer publisher.Close()

	drops := 0
	publisher.OnDrop = func() { drops++ }

	sub := publisher.Subscribe(0)
	defer sub.Cancel()
	publisher.Publish(record(1))
	publisher.Publish(record(2))

	if drops != 1 {
		t.Errorf("OnDrop fired %d times, want 1", drops)
	}
}
