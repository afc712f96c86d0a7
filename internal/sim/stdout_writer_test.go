package sim

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"netsir-sim/internal/config"
	"netsir-sim/internal/telemetry"
)

func TestStdoutWriterJSONFallback(t *testing.T) {
	buf := &bytes.Buffer{}
	w := &StdoutWriter{out: buf, colorize: false}
	if err := w.WriteRound(telemetry.RoundRow{Round: 2, Infected: 3}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	var got telemetry.RoundRow
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if got.Round != 2 || got.Infected != 3 {
		t.Fatalf("unexpected row %+v", got)
	}
}

func TestStdoutWriterColorized(t *testing.T) {
	cfg := config.Default()
	cfg.RoundLimit = 10
	buf := &bytes.Buffer{}
	w := &StdoutWriter{cfg: cfg, colorize: true, out: buf}
	row := telemetry.RoundRow{Round: 1, Susceptible: 4, Infected: 1, TotalAgents: 2}
	if err := w.WriteRound(row); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	output := buf.String()
	if !strings.Contains(output, "Simulation Configuration:") || !strings.Contains(output, "fixed (10 rounds)") {
		t.Fatalf("overview not printed: %q", output)
	}
	if !strings.Contains(output, "Round 1 has ended.") || !strings.Contains(output, "\x1b[") {
		t.Fatalf("expected colorized summary: %q", output)
	}

	buf.Reset()
	if err := w.WriteRound(row); err != nil {
		t.Fatalf("second write failed: %v", err)
	}
	if strings.Contains(buf.String(), "Simulation Configuration:") {
		t.Fatalf("overview printed more than once")
	}
}
