// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package egress

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "warden.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "posture: strict\n"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Posture != "strict" {
		t.Errorf("posture = %q, want strict", cfg.Posture)
	}
	if cfg.ProxyListen != "127.0.0.1:8642" || cfg.ControlListen != "127.0.0.1:8643" {
		t.Errorf("listen defaults = %q / %q", cfg.ProxyListen, cfg.ControlListen)
	}
	if cfg.Ledger.MaxRecords != 10000 {
		t.Errorf("ledger.max_records default = %d", cfg.Ledger.MaxRecords)
	}
	if cfg.Timeouts.Dial.Std() != 10*time.Second {
		t.Errorf("timeouts.dial default = %v", cfg.Timeouts.Dial.Std())
	}
}

func TestLoadConfigFull(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
proxy_listen: "127.0.0.1:9000"
control_listen: "127.0.0.1:9001"
posture: standard
override_rules: /etc/warden/rules.jsonc
ledger:
  path: /var/lib/warden/ledger.db
  max_records: 500
  max_age: 12h
events:
  queue_size: 64
timeouts:
  dial: 5s
  idle: 90s
`))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.OverrideRules != "/etc/warden/rules.jsonc" {
		t.Errorf("override_rules = %q", cfg.OverrideRules)
	}
	if cfg.Ledger.MaxAge.Std() != 12*time.Hour {
		t.Errorf("ledger.max_age = %v", cfg.Ledger.MaxAge.Std())
	}
	if cfg.Events.QueueSize != 64 {
		t.Errorf("events.queue_size = %d", cfg.Events.QueueSize)
	}
	if cfg.Timeouts.Idle.Std() != 90*time.Second {
		t.Errorf("timeouts.idle = %v", cfg.Timeouts.Idle.Std())
	}
}

func TestLoadConfigRejectsBadInput(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"unknown field", "postur: strict\n", "not found"},
		{"bad posture", "posture: paranoid\n", "posture"},
		{"bad duration", "timeouts:\n  dial: fast\n", "duration"},
		{"same address", "proxy_listen: \"127.0.0.1:9\"\ncontrol_listen: \"127.0.0.1:9\"\n", "differ"},
		{"negative retention", "ledger:\n  max_records: -1\n", "max_records"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, test.content))
			if err == nil {
				t.Fatal("LoadConfig accepted bad input")
			}
			if !strings.Contains(err.Error(), test.wantErr) {
				t.Errorf("error %q does not mention %q", err, test.wantErr)
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("LoadConfig succeeded on a missing file")
	}
}
