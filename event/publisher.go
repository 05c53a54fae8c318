// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/warden-foundation/warden/ledger"
)

// DefaultQueueSize is the per-subscriber queue bound used when the
// publisher is configured with a non-positive size.
const DefaultQueueSize = 256

// Publisher distributes ledger records to subscribers. Safe for
// concurrent use; Publish calls are serialized so every subscriber
// observes the same order.
type Publisher struct {
	queueSize int

	// OnDrop, if set, is called once per event dropped from a
	// subscriber queue. Used to feed the drop counter.
	OnDrop func()

	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

// NewPublisher creates a publisher with the given per-subscriber
// queue bound.
func NewPublisher(queueSize int) *Publisher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Publisher{
		queueSize: queueSize,
		subs:      make(map[*Subscription]struct{}),
	}
}

// Subscribe registers a new subscriber with the given queue bound (a
// non-positive size uses the publisher's default). The subscription
// receives events published from this point on; nothing already
// published is replayed. Returns nil if the publisher is closed.
func (p *Publisher) Subscribe(queueSize int) *Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}

	if queueSize <= 0 {
		queueSize = p.queueSize
	}
	sub := &Subscription{
		publisher: p,
		ch:        make(chan ledger.Record, queueSize),
	}
	p.subs[sub] = struct{}{}
	return sub
}

// Publish delivers a record to every current subscriber. A subscriber
// whose queue is full loses its oldest undelivered event to make room;
// Publish itself never blocks on subscribers.
func (p *Publisher) Publish(rec ledger.Record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	for sub := range p.subs {
		select {
		case sub.ch <- rec:
			continue
		default:
		}

		// Queue full: drop the oldest, then retry once. The inner
		// send can still lose the race against a concurrent reader
		// draining the queue, in which case there is room and the
		// retry succeeds anyway.
		select {
		case <-sub.ch:
			sub.dropped.Add(1)
			if p.OnDrop != nil {
				p.OnDrop()
			}
		default:
		}
		select {
		case sub.ch <- rec:
		default:
		}
	}
}

// SubscriberCount returns the number of live subscriptions.
func (p *Publisher) SubscriberCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

// Close cancels every subscription and rejects future subscribers.
// Idempotent.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for sub := range p.subs {
		close(sub.ch)
		delete(p.subs, sub)
	}
}

func (p *Publisher) unsubscribe(sub *Subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.subs[sub]; !ok {
		return
	}
	delete(p.subs, sub)
	close(sub.ch)
}

// Subscription is one subscriber's bounded event queue.
type Subscription struct {
	publisher *Publisher
	ch        chan ledger.Record
	dropped   atomic.Int64
	cancelled atomic.Bool
}

// Ch returns the receive channel. It is closed when the subscription
// is cancelled or the publisher shuts down.
func (s *Subscription) Ch() <-chan ledger.Record {
	return s.ch
}

// Next blocks for the next event. Returns false when the subscription
// is cancelled, the publisher is closed, or ctx expires.
func (s *Subscription) Next(ctx context.Context) (ledger.Record, bool) {
	select {
	case rec, ok := <-s.ch:
		return rec, ok
	case <-ctx.Done():
		return ledger.Record{}, false
	}
}

// Dropped returns the number of events this subscriber has lost to
// queue overflow.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Cancel detaches the subscription from the publisher and closes its
// channel. Idempotent.
func (s *Subscription) Cancel() {
	if s.cancelled.Swap(true) {
		return
	}
	s.publisher.unsubscribe(s)
}
