// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/warden-foundation/warden/lib/clock"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestLedger(t *testing.T, opts Options) *Ledger {
	t.Helper()
	if opts.Clock == nil {
		opts.Clock = clock.Fake(testEpoch)
	}
	l, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func allowRecord(host string) Record {
	return Record{
		Decision: "allow",
		Reason:   "lease",
		DestHost: host,
		DestPort: 443,
		Protocol: "https",
		Posture:  "standard",
	}
}

func TestAppendAssignsMonotonicIDs(t *testing.T) {
	l := newTestLedger(t, Options{})

	first, err := l.Append(allowRecord("api.example.com"))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	second, _ := l.Append(allowRecord("api.example.com"))

	if first.ID != 1 || second.ID != 2 {
		t.Errorf("ids = %d, %d, want 1, 2", first.ID, second.ID)
	}
	if first.Status != StatusEvaluating {
		t.Errorf("allow record status = %q, want evaluating", first.Status)
	}
	if !first.CreatedAt.Equal(testEpoch) {
		t.Errorf("created_at = %v, want %v", first.CreatedAt, testEpoch)
	}
}

func TestDenyRecordsFreezeAtCreation(t *testing.T) {
	l := newTestLedger(t, Options{})

	rec, err := l.Append(Record{
		Decision: "deny",
		Reason:   "default_deny",
		DestHost: "blocked.example.com",
		DestPort: 443,
		Protocol: "https",
		Posture:  "strict",
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if rec.Status != StatusDenied {
		t.Fatalf("deny record status = %q, want denied", rec.Status)
	}

	if err := l.AddBytes(rec.ID, 10, 10); !errors.Is(err, ErrFrozen) {
		t.Errorf("AddBytes on deny record: got %v, want ErrFrozen", err)
	}
}

func TestAddBytesAndFreeze(t *testing.T) {
	l := newTestLedger(t, Options{})
	rec, _ := l.Append(allowRecord("api.example.com"))

	if err := l.AddBytes(rec.ID, 100, 40); err != nil {
		t.Fatalf("AddBytes: %v", err)
	}
	if err := l.AddBytes(rec.ID, 28, 2); err != nil {
		t.Fatalf("AddBytes: %v", err)
	}
	if err := l.Freeze(rec.ID, StatusCompleted); err != nil {
		t.Fatalf("Freeze: %v", err)
	}

	got, ok := l.Get(rec.ID)
	if !ok {
		t.Fatal("record disappeared")
	}
	if got.BytesIn != 128 || got.BytesOut != 42 {
		t.Errorf("bytes = %d/%d, want 128/42", got.BytesIn, got.BytesOut)
	}
	if got.Status != StatusCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}

	// First terminal transition wins.
	if err := l.Freeze(rec.ID, StatusIncomplete); err != nil {
		t.Fatalf("second Freeze: %v", err)
	}
	got, _ = l.Get(rec.ID)
	if got.Status != StatusCompleted {
		t.Errorf("status after second freeze = %q, want completed", got.Status)
	}

	if err := l.AddBytes(rec.ID, 1, 1); !errors.Is(err, ErrFrozen) {
		t.Errorf("AddBytes after freeze: got %v, want ErrFrozen", err)
	}
	if err := l.Freeze(rec.ID, StatusEvaluating); err == nil {
		t.Error("Freeze accepted a non-terminal status")
	}
	if err := l.AddBytes(999, 1, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("AddBytes unknown id: got %v, want ErrNotFound", err)
	}
}

func TestRecentNewestFirstWithFilters(t *testing.T) {
	l := newTestLedger(t, Options{})

	a := allowRecord("api.example.com")
	a.Project = "proj-a"
	b := Record{Decision: "deny", DestHost: "evil.example.com", DestPort: 443, Protocol: "https", Posture: "standard", Project: "proj-b"}
	c := allowRecord("api.example.com")
	c.Project = "proj-b"

	l.Append(a)
	l.Append(b)
	l.Append(c)

	recent := l.Recent(0, Filter{})
	if len(recent) != 3 {
		t.Fatalf("Recent returned %d records, want 3", len(recent))
	}
	if recent[0].ID != 3 || recent[2].ID != 1 {
		t.Errorf("order = %d..%d, want newest first", recent[0].ID, recent[2].ID)
	}

	if got := l.Recent(2, Filter{}); len(got) != 2 || got[0].ID != 3 {
		t.Errorf("limit 2: got %d records starting at %d", len(got), got[0].ID)
	}
	if got := l.Recent(0, Filter{Project: "proj-b"}); len(got) != 2 {
		t.Errorf("project filter: got %d records, want 2", len(got))
	}
	if got := l.Recent(0, Filter{Decision: "deny"}); len(got) != 1 || got[0].DestHost != "evil.example.com" {
		t.Errorf("decision filter: got %+v", got)
	}
	if got := l.Recent(0, Filter{Host: "api.example.com"}); len(got) != 2 {
		t.Errorf("host filter: got %d records, want 2", len(got))
	}
}

func TestRecentReturnsDeepCopies(t *testing.T) {
	l := newTestLedger(t, Options{})
	rec, _ := l.Append(allowRecord("api.example.com"))

	before := l.Recent(1, Filter{})[0]
	l.AddBytes(rec.ID, 512, 0)

	if before.BytesIn != 0 {
		t.Errorf("earlier snapshot mutated: bytes_in = %d", before.BytesIn)
	}
}

func TestRetentionByCountKeepsIDs(t *testing.T) {
	l := newTestLedger(t, Options{MaxRecords: 2})

	for i := 0; i < 5; i++ {
		if _, err := l.Append(allowRecord("api.example.com")); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	if l.Len() != 2 {
		t.Fatalf("retained %d records, want 2", l.Len())
	}
	recent := l.Recent(0, Filter{})
	if recent[0].ID != 5 || recent[1].ID != 4 {
		t.Errorf("retained ids %d, %d, want 5, 4", recent[0].ID, recent[1].ID)
	}

	// Eviction never frees ids for reuse.
	next, _ := l.Append(allowRecord("api.example.com"))
	if next.ID != 6 {
		t.Errorf("id after eviction = %d, want 6", next.ID)
	}

	// Evicted records are gone, not resurrectable.
	if err := l.AddBytes(1, 1, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("AddBytes on evicted record: got %v, want ErrNotFound", err)
	}
}

func TestRetentionByAge(t *testing.T) {
	fake := clock.Fake(testEpoch)
	l := newTestLedger(t, Options{MaxAge: time.Hour, Clock: fake})

	l.Append(allowRecord("old.example.com"))
	fake.Advance(2 * time.Hour)
	rec, _ := l.Append(allowRecord("new.example.com"))

	if l.Len() != 1 {
		t.Fatalf("retained %d records, want 1", l.Len())
	}
	if got := l.Recent(0, Filter{}); got[0].ID != rec.ID {
		t.Errorf("survivor id = %d, want %d", got[0].ID, rec.ID)
	}
}
