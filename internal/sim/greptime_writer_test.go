package sim

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"

	"netsir-sim/internal/logging"
	"netsir-sim/internal/telemetry"
)

type mockGreptimeClient struct {
	mu     sync.Mutex
	table  *table.Table
	tables []*table.Table
	err    error
}

func (m *mockGreptimeClient) Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(tables) > 0 {
		m.table = tables[0]
	}
	m.tables = append(m.tables, tables...)
	return &gpb.GreptimeResponse{}, m.err
}

func newTestGreptimeWriter(m *mockGreptimeClient) *GreptimeDBWriter {
	return &GreptimeDBWriter{
		client:     m,
		roundTable: "rounds",
		nodeTable:  "nodes",
		timeout:    time.Second,
		log:        logging.Discard(),
	}
}

func TestGreptimeWriterRound(t *testing.T) {
	m := &mockGreptimeClient{}
	w := newTestGreptimeWriter(m)
	row := telemetry.RoundRow{
		Round:                4,
		Infected:             2,
		AgentsInfected:       3,
		AvgAgentsPerInfected: 1.5,
		RunID:                "run-1",
		Timestamp:            time.Unix(0, 0).UTC(),
	}
	if err := w.WriteRound(row); err != nil {
		t.Fatalf("WriteRound: %v", err)
	}
	if m.table == nil {
		t.Fatalf("expected table to be captured")
	}
	rows := m.table.GetRows()
	if len(rows.Schema) != 17 {
		t.Fatalf("unexpected schema length: %d", len(rows.Schema))
	}
	for i, name := range []string{"run_id", "round"} {
		if rows.Schema[i].ColumnName != name || rows.Schema[i].SemanticType != gpb.SemanticType_TAG {
			t.Fatalf("column %d should be tag %s, got %s %v", i, name, rows.Schema[i].ColumnName, rows.Schema[i].SemanticType)
		}
	}
	vals := rows.Rows[0].Values
	if got := vals[0].GetStringValue(); got != "run-1" {
		t.Fatalf("run_id = %s, want run-1", got)
	}
	if got := vals[1].GetI64Value(); got != 4 {
		t.Fatalf("round = %d, want 4", got)
	}
	if got := vals[8].GetF64Value(); got != 1.5 {
		t.Fatalf("avg_agents_per_infected = %v, want 1.5", got)
	}
}

func TestGreptimeWriterNodes(t *testing.T) {
	m := &mockGreptimeClient{}
	w := newTestGreptimeWriter(m)
	rows := []telemetry.NodeRow{
		{RunID: "r", Round: 1, NodeID: 7, State: "environment", Agents: 3, Timestamp: time.Unix(1, 0)},
		{RunID: "r", Round: 1, NodeID: 8, State: "infected", Sent: 2, Timestamp: time.Unix(1, 0)},
	}
	if err := w.WriteNodes(rows); err != nil {
		t.Fatalf("WriteNodes: %v", err)
	}
	got := m.table.GetRows()
	if len(got.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got.Rows))
	}
	if id := got.Rows[0].Values[1].GetI64Value(); id != 7 {
		t.Fatalf("node_id = %d, want 7", id)
	}
	if got.Schema[2].ColumnName != "round" || got.Schema[2].SemanticType != gpb.SemanticType_TAG {
		t.Fatalf("round should be a tag column, got %s %v", got.Schema[2].ColumnName, got.Schema[2].SemanticType)
	}
	if st := got.Rows[1].Values[3].GetStringValue(); st != "infected" {
		t.Fatalf("state = %s, want infected", st)
	}

	m.table = nil
	if err := w.WriteNodes(nil); err != nil || m.table != nil {
		t.Fatalf("empty batch should not write")
	}
}

func TestGreptimeWriterDistinctRoundKeys(t *testing.T) {
	m := &mockGreptimeClient{}
	w := newTestGreptimeWriter(m)
	s := NewSimulator([]*Node{NewNode(1, Infected, DefaultParams(), nil)}, w, Options{RoundLimit: 50, RunID: "live"})
	if err := s.Run(testContext(t)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	type key struct {
		table  string
		runID  string
		round  int64
		nodeID int64
		ts     int64
	}
	seen := make(map[key]bool)
	rounds := 0
	for _, tbl := range m.tables {
		name, err := tbl.GetName()
		if err != nil {
			t.Fatalf("table name: %v", err)
		}
		rows := tbl.GetRows()
		tsCol := len(rows.Schema) - 1
		for _, r := range rows.Rows {
			k := key{table: name, runID: r.Values[0].GetStringValue(), ts: r.Values[tsCol].GetTimestampMillisecondValue()}
			if name == "rounds" {
				k.round = r.Values[1].GetI64Value()
				rounds++
			} else {
				k.nodeID = r.Values[1].GetI64Value()
				k.round = r.Values[2].GetI64Value()
			}
			if seen[k] {
				t.Fatalf("duplicate row key %+v", k)
			}
			seen[k] = true
		}
	}
	if rounds != 51 {
		t.Fatalf("expected 51 round rows, got %d", rounds)
	}

	stamps := make(map[int64]bool)
	for _, row := range s.History() {
		ms := row.Timestamp.UnixMilli()
		if stamps[ms] {
			t.Fatalf("round %d shares timestamp %d with an earlier round", row.Round, ms)
		}
		stamps[ms] = true
	}
}

func TestGreptimeWriterError(t *testing.T) {
	boom := errors.New("unavailable")
	w := newTestGreptimeWriter(&mockGreptimeClient{err: boom})
	if err := w.WriteRound(telemetry.RoundRow{Timestamp: time.Now()}); !errors.Is(err, boom) {
		t.Fatalf("expected client error, got %v", err)
	}
}

func TestSplitEndpoint(t *testing.T) {
	cases := []struct {
		in   string
		host string
		port int
		err  bool
	}{
		{"localhost:4001", "localhost", 4001, false},
		{"greptime", "greptime", 4001, false},
		{"db:abc", "", 0, true},
	}
	for _, tc := range cases {
		host, port, err := splitEndpoint(tc.in)
		if (err != nil) != tc.err {
			t.Fatalf("%s: err = %v", tc.in, err)
		}
		if !tc.err && (host != tc.host || port != tc.port) {
			t.Fatalf("%s: got %s:%d", tc.in, host, port)
		}
	}
}
