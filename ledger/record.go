// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import "time"

// Status is a record's lifecycle state.
type Status string

const (
	// StatusEvaluating is the only non-terminal status: an allow
	// record whose transfer is still in flight. Byte counters are
	// mutable only in this state.
	StatusEvaluating Status = "evaluating"

	// StatusCompleted means the allowed transfer finished normally.
	StatusCompleted Status = "completed"

	// StatusDenied means the attempt was rejected; the record was
	// frozen at creation.
	StatusDenied Status = "denied"

	// StatusIncomplete means the allowed transfer was cut short by
	// cancellation, timeout, or a transport failure. The decision
	// itself remains "allow".
	StatusIncomplete Status = "incomplete"
)

// terminal reports whether a status freezes the record.
func (s Status) terminal() bool {
	return s == StatusCompleted || s == StatusDenied || s == StatusIncomplete
}

// MatchedRule identifies the policy rule (and lease, if any) that
// decided a request.
type MatchedRule struct {
	Prefix  string `json:"prefix,omitempty"`
	LeaseID string `json:"lease_id,omitempty"`
}

// Record is one egress decision. This is also the outbound event
// schema: the publisher fans out a snapshot of the record as it stood
// at append time.
type Record struct {
	// ID is the monotonically increasing ledger id. Never reused.
	ID uint64 `json:"id"`

	// CreatedAt is the admission timestamp.
	CreatedAt time.Time `json:"created_at"`

	// Decision is "allow" or "deny".
	Decision string `json:"decision"`

	// Reason is the verdict reason (see the policy package).
	Reason string `json:"reason,omitempty"`

	DestHost string `json:"dest_host"`
	DestPort int    `json:"dest_port"`
	Protocol string `json:"protocol"`

	// BytesIn and BytesOut count transferred bytes from the caller's
	// perspective: in = upstream to caller, out = caller to upstream.
	BytesIn  int64 `json:"bytes_in"`
	BytesOut int64 `json:"bytes_out"`

	// CorrID links the decision to the originating action. Optional.
	CorrID string `json:"corr_id,omitempty"`

	// Project is the project the attempt was scoped to. Optional.
	Project string `json:"proj,omitempty"`

	// Posture names the security posture active at admission.
	Posture string `json:"posture"`

	// MatchedRule identifies the deciding rule and lease, if any.
	MatchedRule *MatchedRule `json:"matched_rule,omitempty"`

	// Status is the record's lifecycle state.
	Status Status `json:"status"`
}

// Filter selects records for Recent. Zero-value fields match
// everything.
type Filter struct {
	// Project matches records with this exact project id.
	Project string

	// Decision matches "allow" or "deny".
	Decision string

	// Host matches records with this exact destination host.
	Host string
}

// matches reports whether a record passes the filter.
func (f Filter) matches(rec *Record) bool {
	if f.Project != "" && rec.Project != f.Project {
		return false
	}
	if f.Decision != "" && rec.Decision != f.Decision {
		return false
	}
	if f.Host != "" && rec.DestHost != f.Host {
		return false
	}
	return true
}
