// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package lease

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warden-foundation/warden/lib/clock"
)

// ErrNotFound is returned by Revoke for an unknown lease id.
var ErrNotFound = errors.New("lease not found")

// Store holds issued leases. Safe for concurrent use: mutations take
// the write lock, lookups and snapshots the read lock. A mutation is
// visible to every evaluation that starts after it commits.
type Store struct {
	clock clock.Clock

	mu     sync.RWMutex
	leases map[string]*Lease
}

// NewStore creates an empty lease store.
func NewStore(c clock.Clock) *Store {
	if c == nil {
		c = clock.Real()
	}
	return &Store{
		clock:  c,
		leases: make(map[string]*Lease),
	}
}

// Issue grants a new lease for a capability prefix. An empty project
// issues a global lease. A zero ttl issues a lease without expiry.
// Returns a copy of the stored lease.
func (s *Store) Issue(prefix, project string, ttl time.Duration) (Lease, error) {
	trimmed := effectivePrefix(prefix)
	if trimmed == "" {
		return Lease{}, fmt.Errorf("lease prefix is required")
	}

	now := s.clock.Now()
	granted := Lease{
		ID:       uuid.NewString(),
		Prefix:   prefix,
		Project:  project,
		IssuedAt: now,
	}
	if ttl > 0 {
		granted.ExpiresAt = now.Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stored := granted
	s.leases[granted.ID] = &stored
	return granted, nil
}

// Revoke terminally invalidates a lease. Revoking an already-revoked
// lease is a no-op; revoking an unknown id returns ErrNotFound.
func (s *Store) Revoke(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.leases[id]
	if !ok {
		return ErrNotFound
	}
	stored.Revoked = true
	return nil
}

// Get returns a copy of the lease with the given id.
func (s *Store) Get(id string) (Lease, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.leases[id]
	if !ok {
		return Lease{}, false
	}
	return *stored, true
}

// List returns copies of all leases, active or not, ordered by issue
// time then id for stable output.
func (s *Store) List() []Lease {
	s.mu.RLock()
	defer s.mu.RUnlock()

	leases := make([]Lease, 0, len(s.leases))
	for _, stored := range s.leases {
		leases = append(leases, *stored)
	}
	sort.Slice(leases, func(i, j int) bool {
		if !leases[i].IssuedAt.Equal(leases[j].IssuedAt) {
			return leases[i].IssuedAt.Before(leases[j].IssuedAt)
		}
		return leases[i].ID < leases[j].ID
	})
	return leases
}

// FindBest returns the most specific active lease covering a
// namespace for a project: longest effective prefix wins, and at equal
// specificity a project-scoped lease beats a global one.
func (s *Store) FindBest(namespace, project string) (Lease, bool) {
	return s.Snapshot().findBest(namespace, project)
}

// Sweep removes terminally dead leases (revoked, or expired by more
// than the grace period) from the store. Returns the number removed.
// Dead leases never cover requests either way; sweeping only bounds
// memory on long-running daemons.
func (s *Store) Sweep(grace time.Duration) int {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, stored := range s.leases {
		expired := !stored.ExpiresAt.IsZero() && now.Sub(stored.ExpiresAt) > grace
		if stored.Revoked || expired {
			delete(s.leases, id)
			removed++
		}
	}
	return removed
}

// Snapshot captures the active leases at this instant. The snapshot is
// immutable: an evaluation holds one for its full duration, and
// mutations committed afterwards are not visible through it.
func (s *Store) Snapshot() *Snapshot {
	now := s.clock.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	active := make([]Lease, 0, len(s.leases))
	for _, stored := range s.leases {
		if stored.ActiveAt(now) {
			active = append(active, *stored)
		}
	}
	return &Snapshot{leases: active}
}

// Snapshot is an immutable view of the store's active leases. It
// implements policy.LeaseFinder.
type Snapshot struct {
	leases []Lease
}

// FindBest implements policy.LeaseFinder. The error result is always
// nil for an in-memory snapshot; it exists so remote lease stores can
// report unavailability, which the engine treats as "no lease".
func (v *Snapshot) FindBest(namespace, project string) (string, bool, error) {
	best, ok := v.findBest(namespace, project)
	if !ok {
		return "", false, nil
	}
	return best.ID, true, nil
}

func (v *Snapshot) findBest(namespace, project string) (Lease, bool) {
	var best Lease
	bestLen := -1
	found := false

	for _, candidate := range v.leases {
		if candidate.Project != "" && candidate.Project != project {
			continue
		}
		if !candidate.Covers(namespace) {
			continue
		}
		length := len(effectivePrefix(candidate.Prefix))
		switch {
		case length > bestLen:
		case length == bestLen && candidate.Project != "" && best.Project == "":
			// Project scope beats global at equal specificity.
		default:
			continue
		}
		best = candidate
		bestLen = length
		found = true
	}
	return best, found
}

// Len returns the number of active leases in the snapshot.
func (v *Snapshot) Len() int { return len(v.leases) }
