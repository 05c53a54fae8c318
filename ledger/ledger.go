// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/warden-foundation/warden/lib/clock"
)

var (
	// ErrNotFound is returned for an id the ledger does not hold.
	// Evicted records report ErrNotFound too: retention does not
	// resurrect them.
	ErrNotFound = errors.New("ledger record not found")

	// ErrFrozen is returned by AddBytes on a terminal record.
	ErrFrozen = errors.New("ledger record is frozen")
)

// Options configures a Ledger.
type Options struct {
	// MaxRecords bounds the number of retained records. Zero or
	// negative means unbounded by count.
	MaxRecords int

	// MaxAge bounds record age. Records older than MaxAge are evicted
	// on the next append. Zero means unbounded by age.
	MaxAge time.Duration

	// Journal persists records and the id watermark across restarts.
	// Nil means volatile-only.
	Journal *Journal

	// Clock provides timestamps. Defaults to the real clock.
	Clock clock.Clock

	// Logger receives operational messages. Defaults to a no-op
	// logger.
	Logger *slog.Logger
}

// Ledger is the in-memory decision ledger, optionally backed by a
// SQLite journal. All methods are safe for concurrent use.
type Ledger struct {
	clock      clock.Clock
	logger     *slog.Logger
	journal    *Journal
	maxRecords int
	maxAge     time.Duration

	mu      sync.Mutex
	records []*Record // oldest first
	index   map[uint64]*Record
	nextID  uint64
	closed  bool
}

// New creates a ledger. If a journal is configured, surviving records
// and the id watermark are restored from it; restored records that
// were still evaluating when the previous process died are frozen as
// incomplete, since their transfers can never finish.
func New(opts Options) (*Ledger, error) {
	c := opts.Clock
	if c == nil {
		c = clock.Real()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	l := &Ledger{
		clock:      c,
		logger:     logger,
		journal:    opts.Journal,
		maxRecords: opts.MaxRecords,
		maxAge:     opts.MaxAge,
		index:      make(map[uint64]*Record),
		nextID:     1,
	}

	if l.journal != nil {
		records, nextID, err := l.journal.load()
		if err != nil {
			return nil, fmt.Errorf("ledger: restoring journal: %w", err)
		}
		orphans := 0
		for i := range records {
			rec := records[i]
			if rec.Status == StatusEvaluating {
				rec.Status = StatusIncomplete
				if err := l.journal.finalize(&rec); err != nil {
					return nil, fmt.Errorf("ledger: finalizing orphan %d: %w", rec.ID, err)
				}
				orphans++
			}
			stored := rec
			l.records = append(l.records, &stored)
			l.index[stored.ID] = &stored
		}
		if nextID > l.nextID {
			l.nextID = nextID
		}
		if orphans > 0 {
			logger.Warn("froze orphaned in-flight records from previous run",
				"count", orphans,
			)
		}
		logger.Info("ledger restored",
			"records", len(l.records),
			"next_id", l.nextID,
		)
	}

	return l, nil
}

// Append admits a new record: assigns the next id, stamps the creation
// time, and stores it. Deny records are frozen at creation; allow
// records enter the evaluating state unless the caller supplied a
// terminal status. Returns a copy of the stored record, which is also
// the event payload — the caller publishes it after Append returns so
// subscribers see the assigned id.
//
// Ids are strictly increasing and never reused, across eviction and
// across restarts.
func (l *Ledger) Append(rec Record) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec.ID = l.nextID
	l.nextID++
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = l.clock.Now()
	}
	if rec.Status == "" {
		if rec.Decision == "deny" {
			rec.Status = StatusDenied
		} else {
			rec.Status = StatusEvaluating
		}
	}

	if l.journal != nil {
		if err := l.journal.insert(&rec, l.nextID); err != nil {
			l.nextID-- // id was never observed
			return Record{}, fmt.Errorf("ledger: append: %w", err)
		}
	}

	stored := rec
	if rec.MatchedRule != nil {
		matched := *rec.MatchedRule
		stored.MatchedRule = &matched
	}
	l.records = append(l.records, &stored)
	l.index[stored.ID] = &stored

	l.evictLocked()
	return snapshotRecord(&stored), nil
}

// AddBytes accumulates transfer byte counts on an unfrozen record.
// Byte counters live only in memory until the record freezes; the
// journal is updated with the final totals at that point.
func (l *Ledger) AddBytes(id uint64, in, out int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	stored, ok := l.index[id]
	if !ok {
		return ErrNotFound
	}
	if stored.Status.terminal() {
		return ErrFrozen
	}
	stored.BytesIn += in
	stored.BytesOut += out
	return nil
}

// Freeze moves a record to a terminal status. Freezing an
// already-frozen record is a no-op: the first terminal transition
// wins. Only terminal statuses are accepted.
func (l *Ledger) Freeze(id uint64, status Status) error {
	if !status.terminal() {
		return fmt.Errorf("ledger: %q is not a terminal status", status)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	stored, ok := l.index[id]
	if !ok {
		return ErrNotFound
	}
	if stored.Status.terminal() {
		return nil
	}
	stored.Status = status

	if l.journal != nil {
		if err := l.journal.finalize(stored); err != nil {
			return fmt.Errorf("ledger: freeze %d: %w", id, err)
		}
	}
	return nil
}

// Get returns a copy of the record with the given id.
func (l *Ledger) Get(id uint64) (Record, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stored, ok := l.index[id]
	if !ok {
		return Record{}, false
	}
	return snapshotRecord(stored), true
}

// Recent returns up to limit records matching the filter, newest
// first. A non-positive limit means no limit. The returned records are
// deep copies: later byte-count or status mutations are not visible
// through them.
func (l *Ledger) Recent(limit int, filter Filter) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Record, 0, min(len(l.records), max(limit, 0)))
	for i := len(l.records) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		if !filter.matches(l.records[i]) {
			continue
		}
		out = append(out, snapshotRecord(l.records[i]))
	}
	return out
}

// Len returns the number of retained records.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Close closes the journal, if any. Idempotent.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.journal == nil {
		l.closed = true
		return nil
	}
	l.closed = true
	return l.journal.Close()
}

// evictLocked enforces the retention bounds, dropping the oldest
// records first. Surviving records keep their ids; the id watermark is
// untouched. Caller holds l.mu.
func (l *Ledger) evictLocked() {
	cutoff := time.Time{}
	if l.maxAge > 0 {
		cutoff = l.clock.Now().Add(-l.maxAge)
	}

	drop := 0
	for drop < len(l.records) {
		overCount := l.maxRecords > 0 && len(l.records)-drop > l.maxRecords
		overAge := !cutoff.IsZero() && l.records[drop].CreatedAt.Before(cutoff)
		if !overCount && !overAge {
			break
		}
		drop++
	}
	if drop == 0 {
		return
	}

	evicted := make([]uint64, drop)
	for i := 0; i < drop; i++ {
		evicted[i] = l.records[i].ID
		delete(l.index, l.records[i].ID)
	}
	l.records = append(l.records[:0], l.records[drop:]...)

	if l.journal != nil {
		if err := l.journal.remove(evicted); err != nil {
			l.logger.Error("journal eviction failed",
				"count", len(evicted),
				"error", err,
			)
		}
	}
}

// snapshotRecord deep-copies a record, detaching the MatchedRule
// pointer from the stored copy.
func snapshotRecord(stored *Record) Record {
	rec := *stored
	if stored.MatchedRule != nil {
		matched := *stored.MatchedRule
		rec.MatchedRule = &matched
	}
	return rec
}
