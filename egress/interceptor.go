// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package egress

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/warden-foundation/warden/event"
	"github.com/warden-foundation/warden/ledger"
	"github.com/warden-foundation/warden/lease"
	"github.com/warden-foundation/warden/policy"
)

// Interceptor is the admission pipeline shared by every proxied call.
// It holds no per-call state and takes no lock across a network round
// trip; any number of calls may be in flight at once.
type Interceptor struct {
	policy  *policy.Handle
	leases  *lease.Store
	ledger  *ledger.Ledger
	events  *event.Publisher
	metrics *Metrics
	logger  *slog.Logger
}

// NewInterceptor wires the admission pipeline.
func NewInterceptor(
	handle *policy.Handle,
	leases *lease.Store,
	led *ledger.Ledger,
	events *event.Publisher,
	metrics *Metrics,
	logger *slog.Logger,
) *Interceptor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Interceptor{
		policy:  handle,
		leases:  leases,
		ledger:  led,
		events:  events,
		metrics: metrics,
		logger:  logger,
	}
}

// Admit decides one outbound attempt. It snapshots the active rule set
// and lease store, evaluates synchronously, appends exactly one ledger
// record, and publishes that record snapshot exactly once. The caller
// must not move any byte before Admit returns.
//
// A non-nil error means the attempt could not be recorded; the caller
// must treat it as a denial.
func (i *Interceptor) Admit(d policy.Descriptor) (ledger.Record, policy.Verdict, error) {
	rules := i.policy.Current()
	verdict := policy.Evaluate(rules, i.leases.Snapshot(), d)

	rec := ledger.Record{
		Decision: verdict.Decision.String(),
		Reason:   verdict.Reason,
		DestHost: d.Host,
		DestPort: d.Port,
		Protocol: d.Protocol,
		CorrID:   d.CorrID,
		Project:  d.Project,
		Posture:  rules.Posture.String(),
	}
	if verdict.MatchedPrefix != "" || verdict.LeaseID != "" {
		rec.MatchedRule = &ledger.MatchedRule{
			Prefix:  verdict.MatchedPrefix,
			LeaseID: verdict.LeaseID,
		}
	}

	stored, err := i.ledger.Append(rec)
	if err != nil {
		i.logger.Error("ledger append failed",
			"namespace", d.Namespace,
			"host", d.Host,
			"error", err,
		)
		return ledger.Record{}, verdict, fmt.Errorf("recording decision: %w", err)
	}

	i.events.Publish(stored)
	i.metrics.Decisions.WithLabelValues(stored.Posture, stored.Decision).Inc()
	i.logger.Info("egress decision",
		"id", stored.ID,
		"decision", stored.Decision,
		"reason", stored.Reason,
		"namespace", d.Namespace,
		"host", d.Host,
		"port", d.Port,
		"corr_id", d.CorrID,
		"project", d.Project,
	)
	return stored, verdict, nil
}

// CountBytes feeds a transfer's byte deltas into the record and the
// byte counters. Tolerates records that froze or aged out mid-transfer.
func (i *Interceptor) CountBytes(id uint64, in, out int64) {
	if in == 0 && out == 0 {
		return
	}
	err := i.ledger.AddBytes(id, in, out)
	if err != nil && !errors.Is(err, ledger.ErrNotFound) && !errors.Is(err, ledger.ErrFrozen) {
		i.logger.Error("byte accounting failed", "id", id, "error", err)
	}
	if in > 0 {
		i.metrics.Bytes.WithLabelValues("in").Add(float64(in))
	}
	if out > 0 {
		i.metrics.Bytes.WithLabelValues("out").Add(float64(out))
	}
}

// Finish freezes an allow record once its transfer ends. The first
// terminal status wins; a record that aged out of retention is a
// no-op.
func (i *Interceptor) Finish(id uint64, status ledger.Status) {
	err := i.ledger.Freeze(id, status)
	if err != nil && !errors.Is(err, ledger.ErrNotFound) {
		i.logger.Error("freezing record failed", "id", id, "status", status, "error", err)
	}
}
