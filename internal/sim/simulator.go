// Simulator wiring nodes, links and the aggregator for one run
package sim

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"netsir-sim/internal/config"
	"netsir-sim/internal/logging"
	"netsir-sim/internal/telemetry"
	"netsir-sim/internal/topology"

	"github.com/google/uuid"
)

// Options configure a Simulator independently of how its nodes were built.
type Options struct {
	// RoundLimit selects fixed-round mode when positive.
	RoundLimit   int
	StallTimeout time.Duration
	RunID        string
}

// OptionsFromConfig maps configuration fields to run options.
func OptionsFromConfig(cfg *config.SimulationConfig) Options {
	return Options{
		RoundLimit:   cfg.RoundLimit,
		StallTimeout: cfg.StallTimeout,
	}
}

// registry resolves link destinations. Index i holds the node named i+1.
type registry []*Node

func (r registry) Deliver(dest int, a Agent) {
	r[dest].Receive(a)
}

// BuildNodes creates one node per topology entry and weights its links.
// Each node gets its own random source derived from rng.
func BuildNodes(top *topology.Topology, params Params, rng *rand.Rand) ([]*Node, error) {
	nodes := make([]*Node, top.N)
	for i := range nodes {
		name := i + 1
		state, err := ParseState(top.State(name))
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", name, err)
		}
		nodes[i] = NewNode(name, state, params, rand.New(rand.NewSource(rng.Int63())))
	}
	for i, n := range nodes {
		dests := top.Adjacency[i+1]
		idx := make([]int, len(dests))
		for j, d := range dests {
			if d < 1 || d > top.N {
				return nil, fmt.Errorf("node %d: destination %d outside 1..%d", i+1, d, top.N)
			}
			idx[j] = d - 1
		}
		n.SetLinks(WeightEdges(idx, params.StayProbability, rng))
	}
	return nodes, nil
}

// Status is a point-in-time summary for the admin surface.
type Status struct {
	RunID     string              `json:"run_id"`
	Running   bool                `json:"running"`
	Mode      string              `json:"mode"`
	Nodes     int                 `json:"nodes"`
	Round     int                 `json:"rounds_completed"`
	StartedAt time.Time           `json:"started_at,omitempty"`
	Last      *telemetry.RoundRow `json:"last,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// Simulator runs a set of nodes against one aggregator.
type Simulator struct {
	nodes []*Node
	agg   *Aggregator
	opts  Options

	mu      sync.Mutex
	running bool
	started time.Time
	err     error
}

// NewSimulator wires nodes to each other and to a fresh aggregator.
// Link destinations are indexes into nodes.
func NewSimulator(nodes []*Node, writer RoundWriter, opts Options) *Simulator {
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	reg := registry(nodes)
	for _, n := range nodes {
		n.SetPeers(reg)
	}
	agg := NewAggregator(writer)
	agg.SetNodeCount(len(nodes))
	if opts.RoundLimit > 0 {
		agg.SetRoundLimit(opts.RoundLimit)
	}
	agg.SetStallTimeout(opts.StallTimeout)
	agg.SetRunID(opts.RunID)
	return &Simulator{nodes: nodes, agg: agg, opts: opts}
}

// Aggregator exposes the underlying aggregator.
func (s *Simulator) Aggregator() *Aggregator { return s.agg }

// Nodes returns the node registry.
func (s *Simulator) Nodes() []*Node { return s.nodes }

// RunID identifies this run in persisted rows.
func (s *Simulator) RunID() string { return s.opts.RunID }

// Run starts the aggregator and one goroutine per node and blocks until the
// aggregator stops. Node failures are logged; they end only that node.
func (s *Simulator) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("simulator already running")
	}
	s.running = true
	s.started = time.Now()
	s.mu.Unlock()

	log := logging.FromContext(ctx).With("run_id", s.opts.RunID)
	ctx = logging.NewContext(ctx, log)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log.Info("simulation starting", "nodes", len(s.nodes), "mode", s.mode())

	aggErr := make(chan error, 1)
	go func() { aggErr <- s.agg.Run(ctx) }()

	var wg sync.WaitGroup
	for _, n := range s.nodes {
		wg.Add(1)
		go func(n *Node) {
			defer wg.Done()
			if err := n.Run(ctx, s.agg, s.agg); err != nil && ctx.Err() == nil {
				log.Error("node stopped with error", "node", n.ID(), "error", err)
			}
		}(n)
	}

	err := <-aggErr
	cancel()
	wg.Wait()

	s.mu.Lock()
	s.running = false
	s.err = err
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("simulation: %w", err)
	}
	return nil
}

func (s *Simulator) mode() string {
	if s.opts.RoundLimit > 0 {
		return fmt.Sprintf("fixed(%d)", s.opts.RoundLimit)
	}
	return "convergence"
}

// Status reports progress for the admin server.
func (s *Simulator) Status() Status {
	s.mu.Lock()
	st := Status{
		RunID:     s.opts.RunID,
		Running:   s.running,
		Mode:      s.mode(),
		Nodes:     len(s.nodes),
		StartedAt: s.started,
	}
	if s.err != nil {
		st.Error = s.err.Error()
	}
	s.mu.Unlock()
	st.Round = s.agg.Round()
	if hist := s.agg.History(); len(hist) > 0 {
		last := hist[len(hist)-1]
		st.Last = &last
	}
	return st
}

// History returns every reduced round so far.
func (s *Simulator) History() []telemetry.RoundRow { return s.agg.History() }

// NodeRows returns the latest per-node records.
func (s *Simulator) NodeRows() []telemetry.NodeRow {
	recs := s.agg.LastRecords()
	rows := make([]telemetry.NodeRow, len(recs))
	for i, r := range recs {
		rows[i] = r.Row(s.opts.RunID, time.Time{})
	}
	return rows
}
