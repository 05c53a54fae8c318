// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"fmt"
	"sort"
	"strings"
)

// Requirement is what a matched rule demands of a request.
type Requirement int

const (
	// RequireAllow admits the request unconditionally.
	RequireAllow Requirement = iota

	// RequireLease admits the request only when a covering unexpired,
	// unrevoked lease exists for the request's project (or globally).
	RequireLease

	// RequireDeny rejects the request unconditionally.
	RequireDeny
)

// String returns the requirement's document name.
func (r Requirement) String() string {
	switch r {
	case RequireAllow:
		return "allow"
	case RequireLease:
		return "lease"
	case RequireDeny:
		return "deny"
	default:
		return fmt.Sprintf("requirement(%d)", int(r))
	}
}

// ParseRequirement converts a rule document string to a Requirement.
// Both "lease" and "lease-required" are accepted for the gated form.
func ParseRequirement(raw string) (Requirement, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "allow":
		return RequireAllow, nil
	case "lease", "lease-required":
		return RequireLease, nil
	case "deny":
		return RequireDeny, nil
	default:
		return RequireDeny, fmt.Errorf("unknown requirement %q (want allow, lease, or deny)", raw)
	}
}

// Rule maps a capability-namespace prefix to a requirement. The prefix
// matches on dot boundaries: "net.http" covers "net.http" and
// "net.http.get" but not "net.httpx".
type Rule struct {
	Prefix  string
	Require Requirement
}

// RuleSet is one compiled, immutable policy. Exactly one rule set is
// active at any instant; reload swaps the active pointer atomically
// (see Handle). Evaluations hold a *RuleSet for their full duration
// and never observe a partial update.
type RuleSet struct {
	// Posture names the preset this rule set was derived from. Kept
	// for ledger records and events even when an override document
	// replaced the preset's rules.
	Posture Posture

	// Default is applied when no prefix matches: true means allow.
	Default bool

	// BlockIPLiterals hard-denies IP-literal destinations before any
	// prefix matching. A lease cannot override this check.
	BlockIPLiterals bool

	// Origin records where the rules came from: "preset", "override",
	// or "fallback" (the deny-all set installed after a malformed
	// override document).
	Origin string

	// rules is sorted by descending prefix length so a linear scan
	// returns the longest match first.
	rules []Rule
}

// NewRuleSet compiles a rule set. Rules with duplicate prefixes keep
// the first occurrence. The rule order given by the caller is not
// significant; matching is always longest-prefix-wins.
func NewRuleSet(posture Posture, rules []Rule, defaultAllow, blockIPLiterals bool, origin string) *RuleSet {
	compiled := make([]Rule, 0, len(rules))
	seen := make(map[string]bool, len(rules))
	for _, rule := range rules {
		if seen[rule.Prefix] {
			continue
		}
		seen[rule.Prefix] = true
		compiled = append(compiled, rule)
	}
	sort.SliceStable(compiled, func(i, j int) bool {
		return len(compiled[i].Prefix) > len(compiled[j].Prefix)
	})
	return &RuleSet{
		Posture:         posture,
		Default:         defaultAllow,
		BlockIPLiterals: blockIPLiterals,
		Origin:          origin,
		rules:           compiled,
	}
}

// Match returns the longest-prefix rule covering namespace, if any.
func (rs *RuleSet) Match(namespace string) (Rule, bool) {
	for _, rule := range rs.rules {
		if PrefixCovers(rule.Prefix, namespace) {
			return rule, true
		}
	}
	return Rule{}, false
}

// Len returns the number of compiled rules.
func (rs *RuleSet) Len() int { return len(rs.rules) }

// PrefixCovers reports whether a dotted capability prefix covers a
// namespace. A prefix covers itself and any namespace nested below it
// on a dot boundary.
func PrefixCovers(prefix, namespace string) bool {
	if prefix == namespace {
		return true
	}
	return strings.HasPrefix(namespace, prefix+".")
}

// gatedPrefixes are the capability families the standard and strict
// presets place behind leases.
var gatedPrefixes = []string{"net", "shell", "fs"}

// Preset returns the compiled rule set for a posture.
//
//   - relaxed: no rules, default allow. Evaluate short-circuits before
//     any lease lookup.
//   - standard: net/shell/fs require a lease; unlisted namespaces are
//     allowed by default.
//   - strict: net requires a lease (a lease can still admit gated
//     traffic); every unlisted namespace is denied by default, and
//     IP-literal destinations are denied outright.
func Preset(posture Posture) *RuleSet {
	switch posture {
	case Relaxed:
		return NewRuleSet(Relaxed, nil, true, false, "preset")
	case Strict:
		rules := []Rule{{Prefix: "net", Require: RequireLease}}
		return NewRuleSet(Strict, rules, false, true, "preset")
	default:
		rules := make([]Rule, 0, len(gatedPrefixes))
		for _, prefix := range gatedPrefixes {
			rules = append(rules, Rule{Prefix: prefix, Require: RequireLease})
		}
		return NewRuleSet(Standard, rules, true, false, "preset")
	}
}

// DenyAll returns the rule set installed when an override document is
// malformed: no rules, default deny, IP literals blocked. It stays
// active until a corrected reload.
func DenyAll(posture Posture) *RuleSet {
	return NewRuleSet(posture, nil, false, true, "fallback")
}
