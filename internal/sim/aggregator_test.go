package sim

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"netsir-sim/internal/telemetry"
)

// MockWriter collects round and node rows for validation
type MockWriter struct {
	mu      sync.Mutex
	Rounds  []telemetry.RoundRow
	Nodes   []telemetry.NodeRow
	Headers int
	Closed  int
	Err     error
}

func (w *MockWriter) WriteRound(row telemetry.RoundRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Rounds = append(w.Rounds, row)
	return w.Err
}

func (w *MockWriter) WriteNodes(rows []telemetry.NodeRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Nodes = append(w.Nodes, rows...)
	return w.Err
}

func (w *MockWriter) WriteHeader() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Headers++
	return nil
}

func (w *MockWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Closed++
	return nil
}

func TestAggregatorRequiresNodeCount(t *testing.T) {
	agg := NewAggregator(nil)
	node := NewNode(1, Infected, DefaultParams(), nil)
	nodeErr := make(chan error, 1)
	go func() { nodeErr <- node.Run(context.Background(), agg, agg) }()

	if err := agg.Run(context.Background()); !errors.Is(err, ErrNodeCountUnset) {
		t.Fatalf("expected ErrNodeCountUnset, got %v", err)
	}
	select {
	case err := <-nodeErr:
		if !errors.Is(err, ErrNodeCountUnset) {
			t.Fatalf("node should stop with ErrNodeCountUnset, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("node still waiting after the aggregator refused to run")
	}
	if agg.Continue() {
		t.Fatal("aggregator should report no further rounds")
	}
}

func TestAggregatorRoundLimit(t *testing.T) {
	w := &MockWriter{}
	agg := NewAggregator(w)
	agg.SetNodeCount(2)
	agg.SetRoundLimit(3)
	agg.SetRunID("run-1")
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	agg.SetClock(func() time.Time { return fixed })

	done := make(chan error, 1)
	go func() { done <- agg.Run(context.Background()) }()

	for round := 0; ; round++ {
		agg.Submit(StatisticRecord{Round: round, NodeID: 2, State: Susceptible})
		agg.Submit(StatisticRecord{Round: round, NodeID: 1, State: Infected, Agents: 1})
		more, err := agg.WaitRound(context.Background(), round+1)
		if err != nil {
			t.Fatalf("WaitRound: %v", err)
		}
		if !more {
			break
		}
	}
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(w.Rounds) != 4 {
		t.Fatalf("expected rounds 0..3, got %d rows", len(w.Rounds))
	}
	if w.Headers != 1 || w.Closed != 1 {
		t.Fatalf("header written %d times, closed %d times", w.Headers, w.Closed)
	}
	if len(w.Nodes) != 8 || w.Nodes[0].NodeID != 1 || w.Nodes[0].RunID != "run-1" || !w.Nodes[0].Timestamp.Equal(fixed) {
		t.Fatalf("unexpected node rows: %+v", w.Nodes)
	}
	if agg.Continue() || agg.Round() != 4 {
		t.Fatalf("Continue = %v, Round = %d", agg.Continue(), agg.Round())
	}
	if got := agg.LastRecords(); len(got) != 2 || got[0].Round != 3 {
		t.Fatalf("unexpected last records: %+v", got)
	}
}

func TestAggregatorConvergence(t *testing.T) {
	cases := []struct {
		name   string
		rounds [][]StatisticRecord
	}{
		{
			name: "no agents anywhere",
			rounds: [][]StatisticRecord{
				{{NodeID: 1, State: Recovered}},
			},
		},
		{
			name: "burned out after round 0",
			rounds: [][]StatisticRecord{
				{{NodeID: 1, State: Infected, Agents: 1}, {NodeID: 2, State: Environment, Agents: 3}},
				{{NodeID: 1, State: Recovered, Discarded: 1}, {NodeID: 2, State: Environment, Agents: 3}},
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := &MockWriter{}
			agg := NewAggregator(w)
			agg.SetNodeCount(len(tc.rounds[0]))
			done := make(chan error, 1)
			go func() { done <- agg.Run(context.Background()) }()
			for i, recs := range tc.rounds {
				for _, r := range recs {
					agg.Submit(r)
				}
				more, err := agg.WaitRound(context.Background(), i+1)
				if err != nil {
					t.Fatalf("WaitRound: %v", err)
				}
				if want := i < len(tc.rounds)-1; more != want {
					t.Fatalf("round %d: continue = %v, want %v", i, more, want)
				}
			}
			if err := <-done; err != nil {
				t.Fatalf("Run: %v", err)
			}
			if len(w.Rounds) != len(tc.rounds) {
				t.Fatalf("wrote %d rounds, want %d", len(w.Rounds), len(tc.rounds))
			}
		})
	}
}

func TestAggregatorWriteErrorsAreNotFatal(t *testing.T) {
	w := &MockWriter{Err: errors.New("disk full")}
	agg := NewAggregator(w)
	agg.SetNodeCount(1)
	done := make(chan error, 1)
	go func() { done <- agg.Run(context.Background()) }()
	agg.Submit(StatisticRecord{NodeID: 1, State: Recovered})
	if err := <-done; err != nil {
		t.Fatalf("write failure should not abort the run: %v", err)
	}
	if len(agg.History()) != 1 {
		t.Fatalf("round not recorded in memory")
	}
}

func TestAggregatorStall(t *testing.T) {
	agg := NewAggregator(&MockWriter{})
	agg.SetNodeCount(2)
	agg.SetStallTimeout(30 * time.Millisecond)
	agg.Submit(StatisticRecord{NodeID: 1, State: Infected, Agents: 1})
	err := agg.Run(context.Background())
	if !errors.Is(err, ErrStalled) {
		t.Fatalf("expected ErrStalled, got %v", err)
	}
	if _, werr := agg.WaitRound(context.Background(), 1); !errors.Is(werr, ErrStalled) {
		t.Fatalf("waiting nodes should see the stall, got %v", werr)
	}
}

func TestAggregatorCancel(t *testing.T) {
	agg := NewAggregator(nil)
	agg.SetNodeCount(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := agg.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
