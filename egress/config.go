// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package egress

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/warden-foundation/warden/policy"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "24h".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the daemon configuration, loaded from one YAML file.
type Config struct {
	// ProxyListen is the TCP address of the egress proxy listener.
	ProxyListen string `yaml:"proxy_listen"`

	// ControlListen is the TCP address of the control API listener.
	// Keep it off any interface the proxied workload can reach.
	ControlListen string `yaml:"control_listen"`

	// Posture selects the policy preset: relaxed, standard, or strict.
	Posture string `yaml:"posture"`

	// OverrideRules is an optional path to a JSONC rule document that
	// fully replaces the posture's preset rules.
	OverrideRules string `yaml:"override_rules"`

	Ledger   LedgerConfig   `yaml:"ledger"`
	Events   EventsConfig   `yaml:"events"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
}

// LedgerConfig configures decision-ledger persistence and retention.
type LedgerConfig struct {
	// Path is the SQLite journal path. Empty means volatile-only: the
	// ledger does not survive restarts.
	Path string `yaml:"path"`

	// MaxRecords bounds retained records. Zero means unbounded.
	MaxRecords int `yaml:"max_records"`

	// MaxAge bounds retained record age. Zero means unbounded.
	MaxAge Duration `yaml:"max_age"`
}

// EventsConfig configures the event publisher.
type EventsConfig struct {
	// QueueSize is the per-subscriber queue bound.
	QueueSize int `yaml:"queue_size"`
}

// TimeoutsConfig holds the data-plane timeouts.
type TimeoutsConfig struct {
	// Dial bounds upstream connection establishment.
	Dial Duration `yaml:"dial"`

	// Idle bounds tunnel inactivity: a CONNECT tunnel with no traffic
	// in either direction for this long is torn down and its record
	// frozen incomplete. Zero disables the idle check.
	Idle Duration `yaml:"idle"`
}

// DefaultConfig returns the configuration used when a field is absent
// from the file.
func DefaultConfig() Config {
	return Config{
		ProxyListen:   "127.0.0.1:8642",
		ControlListen: "127.0.0.1:8643",
		Posture:       "standard",
		Ledger: LedgerConfig{
			MaxRecords: 10000,
			MaxAge:     Duration(24 * time.Hour),
		},
		Events: EventsConfig{
			QueueSize: 256,
		},
		Timeouts: TimeoutsConfig{
			Dial: Duration(10 * time.Second),
			Idle: Duration(2 * time.Minute),
		},
	}
}

// LoadConfig reads and validates a YAML config file. Unknown fields
// are rejected so typos fail loudly at startup.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}

	cfg := DefaultConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for startup-blocking problems.
func (c Config) Validate() error {
	if c.ProxyListen == "" {
		return fmt.Errorf("proxy_listen is required")
	}
	if c.ControlListen == "" {
		return fmt.Errorf("control_listen is required")
	}
	// Port 0 means "pick any port", so identical addresses are fine.
	if c.ProxyListen == c.ControlListen && !strings.HasSuffix(c.ProxyListen, ":0") {
		return fmt.Errorf("proxy_listen and control_listen must differ")
	}
	if _, err := policy.ParsePosture(c.Posture); err != nil {
		return err
	}
	if c.Ledger.MaxRecords < 0 {
		return fmt.Errorf("ledger.max_records must not be negative")
	}
	if c.Ledger.MaxAge < 0 {
		return fmt.Errorf("ledger.max_age must not be negative")
	}
	if c.Events.QueueSize < 0 {
		return fmt.Errorf("events.queue_size must not be negative")
	}
	if c.Timeouts.Dial < 0 || c.Timeouts.Idle < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}
