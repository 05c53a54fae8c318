// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/jsonc"
)

// overrideDocument is the on-disk shape of an override rule document.
// The format is JSONC (JSON with comments and trailing commas) so
// operators can annotate individual rules:
//
//	{
//	    "rules": [
//	        // package registries stay open
//	        {"prefix": "net.http", "require": "lease"},
//	        {"prefix": "shell", "require": "deny"},
//	    ],
//	    "default": "deny",
//	}
type overrideDocument struct {
	Rules   []overrideRule `json:"rules"`
	Default string         `json:"default"`
}

type overrideRule struct {
	Prefix  string `json:"prefix"`
	Require string `json:"require"`
}

// LoadOverride reads an override rule document and compiles it into a
// rule set that fully replaces the posture's preset. Nothing from the
// preset is merged in; only the posture name (for records and events)
// and the strict posture's IP-literal block survive.
//
// When the document omits "default", unlisted namespaces are denied.
//
// A parse or validation error leaves no partial state behind; callers
// install DenyAll until a corrected reload (see Handle.Reload).
func LoadOverride(path string, posture Posture) (*RuleSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading override rules: %w", err)
	}

	var document overrideDocument
	if err := json.Unmarshal(jsonc.ToJSON(raw), &document); err != nil {
		return nil, fmt.Errorf("parsing override rules %s: %w", path, err)
	}
	if len(document.Rules) == 0 {
		return nil, fmt.Errorf("override rules %s: no rules defined", path)
	}

	rules := make([]Rule, 0, len(document.Rules))
	for i, entry := range document.Rules {
		prefix := strings.TrimSpace(entry.Prefix)
		if err := validatePrefix(prefix); err != nil {
			return nil, fmt.Errorf("override rules %s: rule %d: %w", path, i, err)
		}
		requirement, err := ParseRequirement(entry.Require)
		if err != nil {
			return nil, fmt.Errorf("override rules %s: rule %d (%s): %w", path, i, prefix, err)
		}
		rules = append(rules, Rule{Prefix: prefix, Require: requirement})
	}

	defaultAllow := false
	switch strings.ToLower(strings.TrimSpace(document.Default)) {
	case "", "deny":
	case "allow":
		defaultAllow = true
	default:
		return nil, fmt.Errorf("override rules %s: unknown default %q (want allow or deny)", path, document.Default)
	}

	return NewRuleSet(posture, rules, defaultAllow, posture == Strict, "override"), nil
}

// validatePrefix checks that a capability prefix is a dotted lowercase
// identifier path: "net", "net.http", "tools.search".
func validatePrefix(prefix string) error {
	if prefix == "" {
		return fmt.Errorf("empty prefix")
	}
	for _, segment := range strings.Split(prefix, ".") {
		if segment == "" {
			return fmt.Errorf("prefix %q has an empty segment", prefix)
		}
		for _, r := range segment {
			if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' && r != '-' {
				return fmt.Errorf("prefix %q has invalid character %q", prefix, r)
			}
		}
	}
	return nil
}
