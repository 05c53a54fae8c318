// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func writeRules(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.jsonc")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing rules: %v", err)
	}
	return path
}

func TestLoadOverrideReplacesPreset(t *testing.T) {
	path := writeRules(t, `{
		// registries stay gated, shell is shut off entirely
		"rules": [
			{"prefix": "net.http", "require": "lease"},
			{"prefix": "shell", "require": "deny"},
			{"prefix": "tools", "require": "allow"},
		],
		"default": "deny",
	}`)

	rules, err := LoadOverride(path, Standard)
	if err != nil {
		t.Fatalf("LoadOverride: %v", err)
	}
	if rules.Origin != "override" {
		t.Errorf("origin = %q, want override", rules.Origin)
	}

	// The preset's "fs" gate must be gone: override fully replaces.
	verdict := Evaluate(rules, &fakeFinder{leaseID: "lease-1"}, descriptor("fs.write", "example.com"))
	if verdict.Decision != Deny || verdict.Reason != ReasonDefaultDeny {
		t.Errorf("fs.write: got %v (%s), want deny (default_deny)", verdict.Decision, verdict.Reason)
	}

	verdict = Evaluate(rules, &fakeFinder{}, descriptor("tools.search", "example.com"))
	if verdict.Decision != Allow || verdict.Reason != ReasonRuleAllow {
		t.Errorf("tools.search: got %v (%s), want allow (rule_allow)", verdict.Decision, verdict.Reason)
	}

	verdict = Evaluate(rules, &fakeFinder{}, descriptor("shell.exec", "example.com"))
	if verdict.Decision != Deny || verdict.Reason != ReasonRuleDeny {
		t.Errorf("shell.exec: got %v (%s), want deny (rule_deny)", verdict.Decision, verdict.Reason)
	}
}

func TestLoadOverrideDefaultOmittedIsDeny(t *testing.T) {
	path := writeRules(t, `{"rules": [{"prefix": "net", "require": "allow"}]}`)
	rules, err := LoadOverride(path, Standard)
	if err != nil {
		t.Fatalf("LoadOverride: %v", err)
	}
	verdict := Evaluate(rules, &fakeFinder{}, descriptor("tools.search", "example.com"))
	if verdict.Decision != Deny {
		t.Errorf("unlisted namespace: got %v, want deny", verdict.Decision)
	}
}

func TestLoadOverrideRejectsMalformed(t *testing.T) {
	tests := []struct {
		name, content string
	}{
		{"syntax", `{"rules": [{{`},
		{"empty", `{"rules": []}`},
		{"bad requirement", `{"rules": [{"prefix": "net", "require": "maybe"}]}`},
		{"bad prefix", `{"rules": [{"prefix": "net..http", "require": "allow"}]}`},
		{"bad default", `{"rules": [{"prefix": "net", "require": "allow"}], "default": "sometimes"}`},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			path := writeRules(t, test.content)
			if _, err := LoadOverride(path, Standard); err == nil {
				t.Error("LoadOverride accepted a malformed document")
			}
		})
	}
}

func TestHandleMalformedOverrideInstallsDenyAll(t *testing.T) {
	path := writeRules(t, `{"rules": [{{`)
	handle := NewHandle(Standard, path, slog.New(slog.DiscardHandler))

	rules := handle.Current()
	if rules == nil {
		t.Fatal("Current() is nil")
	}
	if rules.Origin != "fallback" {
		t.Errorf("origin = %q, want fallback", rules.Origin)
	}
	if handle.LastError() == "" {
		t.Error("LastError() is empty after a failed load")
	}

	// Everything is denied until a corrected reload.
	verdict := Evaluate(rules, &fakeFinder{leaseID: "lease-1"}, descriptor("net.http.get", "api.github.com"))
	if verdict.Decision != Deny {
		t.Errorf("got %v, want deny under fallback", verdict.Decision)
	}

	// Correct the document and reload: the swap is atomic and clears
	// the error.
	if err := os.WriteFile(path, []byte(`{"rules": [{"prefix": "net", "require": "allow"}], "default": "deny"}`), 0o644); err != nil {
		t.Fatalf("rewriting rules: %v", err)
	}
	if err := handle.Reload(); err != nil {
		t.Fatalf("Reload after fix: %v", err)
	}
	if handle.LastError() != "" {
		t.Errorf("LastError() = %q after clean reload, want empty", handle.LastError())
	}
	verdict = Evaluate(handle.Current(), &fakeFinder{}, descriptor("net.http.get", "api.github.com"))
	if verdict.Decision != Allow {
		t.Errorf("got %v after corrected reload, want allow", verdict.Decision)
	}
}

func TestHandleInFlightSnapshotSurvivesReload(t *testing.T) {
	handle := NewHandle(Standard, "", slog.New(slog.DiscardHandler))

	snapshot := handle.Current()
	if err := handle.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	// The old snapshot still evaluates with its original semantics.
	verdict := Evaluate(snapshot, &fakeFinder{}, descriptor("tools.search", "example.com"))
	if verdict.Decision != Allow {
		t.Errorf("stale snapshot: got %v, want allow", verdict.Decision)
	}
}

func TestParsePosture(t *testing.T) {
	for raw, want := range map[string]Posture{
		"relaxed":  Relaxed,
		"Standard": Standard,
		" strict ": Strict,
	} {
		got, err := ParsePosture(raw)
		if err != nil {
			t.Errorf("ParsePosture(%q): %v", raw, err)
		}
		if got != want {
			t.Errorf("ParsePosture(%q) = %v, want %v", raw, got, want)
		}
	}
	if _, err := ParsePosture("paranoid"); err == nil {
		t.Error("ParsePosture accepted an unknown posture")
	}
}
