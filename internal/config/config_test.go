package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "simulation.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestLoadConfig_Valid(t *testing.T) {
	path := writeConfig(t, `
round_limit: 6
seed: 7
stay_probability: 0.5
stall_timeout: 2s
topology:
  path: input/net.txt
  strict_counts: true
output:
  node_log: true
`)
	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.RoundLimit != 6 || cfg.Seed != 7 || cfg.StayProbability != 0.5 {
		t.Errorf("unexpected scalar fields: %+v", cfg)
	}
	if cfg.StallTimeout != 2*time.Second {
		t.Errorf("stall_timeout = %s, want 2s", cfg.StallTimeout)
	}
	if cfg.Topology.Path != "input/net.txt" || !cfg.Topology.StrictCounts {
		t.Errorf("unexpected topology: %+v", cfg.Topology)
	}
	if !cfg.Output.NodeLog || cfg.Output.Dir != DefaultOutputDir {
		t.Errorf("unexpected output: %+v", cfg.Output)
	}
	if cfg.ConvergenceMode() {
		t.Errorf("round_limit set, expected fixed-round mode")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, "topology:\n  path: x.txt\n")
	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.StayProbability != DefaultStayProbability {
		t.Errorf("stay_probability = %v, want %v", cfg.StayProbability, DefaultStayProbability)
	}
	if cfg.RecoveryThreshold != 5 || cfg.SanitationThreshold != 5 {
		t.Errorf("unexpected thresholds: %d/%d", cfg.RecoveryThreshold, cfg.SanitationThreshold)
	}
	if cfg.Topology.RandomInfected != 5 || cfg.Topology.RandomEnvironment != 50 {
		t.Errorf("unexpected random counts: %+v", cfg.Topology)
	}
	if !cfg.ConvergenceMode() {
		t.Errorf("expected convergence mode by default")
	}
}

func TestLoadConfig_SchemaRejects(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"stay out of range", "stay_probability: 1.5\n"},
		{"negative limit", "round_limit: -1\n"},
		{"unknown field", "rounds: 3\n"},
		{"bad duration", "stall_timeout: soon\n"},
		{"bad level", "log_level: loud\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.body)
			if _, err := Load(path, ""); err == nil {
				t.Fatalf("expected validation error for %q", tc.body)
			}
		})
	}
}

func TestLoadConfig_SchemaOverride(t *testing.T) {
	dir := t.TempDir()
	schema := filepath.Join(dir, "strict.cue")
	if err := os.WriteFile(schema, []byte("#Simulation: {round_limit: int & >0}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	path := writeConfig(t, "round_limit: 0\n")
	_, err := Load(path, schema)
	if err == nil || !strings.Contains(err.Error(), "schema validation failed") {
		t.Fatalf("expected override schema to reject config, got %v", err)
	}
}

func TestParseValidate(t *testing.T) {
	if _, err := Parse([]byte("stall_timeout: -1s\n")); err == nil {
		t.Fatalf("expected negative stall timeout to fail")
	}
	cfg, err := Parse([]byte(""))
	if err != nil {
		t.Fatalf("empty config: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("log level default = %q", cfg.LogLevel)
	}
}

func TestLoadConfig_StallTimeoutFormats(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"30s", 30 * time.Second},
		{"1m30s", 90 * time.Second},
		{"1h2m3.5s", time.Hour + 2*time.Minute + 3500*time.Millisecond},
		{"250ms", 250 * time.Millisecond},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			path := writeConfig(t, "stall_timeout: "+tc.in+"\n")
			cfg, err := Load(path, "")
			if err != nil {
				t.Fatalf("Load(%q) returned error: %v", tc.in, err)
			}
			if cfg.StallTimeout != tc.want {
				t.Fatalf("stall_timeout = %s, want %s", cfg.StallTimeout, tc.want)
			}
		})
	}
}
