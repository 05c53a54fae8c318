// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import "net"

// Decision is the outcome of one policy evaluation.
type Decision int

const (
	// Deny means the outbound attempt must be rejected.
	Deny Decision = iota

	// Allow means the outbound attempt may proceed.
	Allow
)

// String returns "allow" or "deny".
func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// Verdict reasons. These appear in ledger records and published
// events; deny responses to callers never include them.
const (
	ReasonRelaxed      = "relaxed"
	ReasonRuleAllow    = "rule_allow"
	ReasonLease        = "lease"
	ReasonDefaultAllow = "default_allow"
	ReasonDefaultDeny  = "default_deny"
	ReasonRuleDeny     = "rule_deny"
	ReasonLeaseMissing = "lease_required"
	ReasonIPLiteral    = "ip_literal"
	ReasonEngineError  = "engine_error"
)

// Descriptor describes one outbound attempt. It is built per call and
// never outlives the evaluation plus record creation.
type Descriptor struct {
	// Namespace is the dotted capability namespace, e.g. "net.http.get".
	Namespace string

	// Host is the destination host as supplied by the caller.
	Host string

	// Port is the destination port.
	Port int

	// Protocol names the wire protocol: "http", "https", or "tcp".
	Protocol string

	// CorrID links the attempt to the originating action. Optional.
	CorrID string

	// Project scopes the lease lookup. Optional; empty means only
	// global leases can cover the attempt.
	Project string
}

// Verdict is the result of evaluating one descriptor.
type Verdict struct {
	// Decision is Allow or Deny.
	Decision Decision

	// Reason is one of the Reason* constants.
	Reason string

	// MatchedPrefix is the rule prefix that decided the verdict, if
	// any. Empty when the default applied.
	MatchedPrefix string

	// LeaseID is the lease that admitted the request, if any.
	LeaseID string
}

// LeaseFinder looks up the most specific active lease covering a
// namespace. Implementations return ok=false when no lease covers the
// request; a non-nil error means the store was unavailable and is
// treated identically (fail closed).
type LeaseFinder interface {
	FindBest(namespace, project string) (leaseID string, ok bool, err error)
}

// Evaluate decides one outbound attempt against a rule set snapshot
// and a lease snapshot. It is pure and synchronous: no I/O, no
// suspension, microsecond latency.
//
// Order of checks:
//
//  1. Relaxed posture: allow, without consulting leases.
//  2. IP-literal block (strict): deny before prefix matching; a lease
//     cannot override.
//  3. Longest matching prefix rule: allow / deny / lease-required.
//  4. No match: the rule set default.
//
// Evaluate never faults. A nil rule set and any internal panic both
// produce Deny with reason "engine_error".
func Evaluate(rules *RuleSet, leases LeaseFinder, d Descriptor) (verdict Verdict) {
	defer func() {
		if recover() != nil {
			verdict = Verdict{Decision: Deny, Reason: ReasonEngineError}
		}
	}()

	if rules == nil {
		return Verdict{Decision: Deny, Reason: ReasonEngineError}
	}

	if rules.Posture == Relaxed && rules.Origin == "preset" {
		return Verdict{Decision: Allow, Reason: ReasonRelaxed}
	}

	if rules.BlockIPLiterals && isIPLiteral(d.Host) {
		return Verdict{Decision: Deny, Reason: ReasonIPLiteral}
	}

	rule, matched := rules.Match(d.Namespace)
	if !matched {
		if rules.Default {
			return Verdict{Decision: Allow, Reason: ReasonDefaultAllow}
		}
		return Verdict{Decision: Deny, Reason: ReasonDefaultDeny}
	}

	switch rule.Require {
	case RequireAllow:
		return Verdict{Decision: Allow, Reason: ReasonRuleAllow, MatchedPrefix: rule.Prefix}
	case RequireDeny:
		return Verdict{Decision: Deny, Reason: ReasonRuleDeny, MatchedPrefix: rule.Prefix}
	default:
		if leases == nil {
			return Verdict{Decision: Deny, Reason: ReasonLeaseMissing, MatchedPrefix: rule.Prefix}
		}
		leaseID, ok, err := leases.FindBest(d.Namespace, d.Project)
		if err != nil || !ok {
			return Verdict{Decision: Deny, Reason: ReasonLeaseMissing, MatchedPrefix: rule.Prefix}
		}
		return Verdict{
			Decision:      Allow,
			Reason:        ReasonLease,
			MatchedPrefix: rule.Prefix,
			LeaseID:       leaseID,
		}
	}
}

// isIPLiteral reports whether host is an IPv4 or IPv6 literal,
// including bracketed IPv6 forms.
func isIPLiteral(host string) bool {
	trimmed := host
	if len(trimmed) >= 2 && trimmed[0] == '[' && trimmed[len(trimmed)-1] == ']' {
		trimmed = trimmed[1 : len(trimmed)-1]
	}
	return net.ParseIP(trimmed) != nil
}
