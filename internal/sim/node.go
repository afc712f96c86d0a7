package sim

import (
	"context"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sort"

	"netsir-sim/internal/config"
	"netsir-sim/internal/logging"
)

// Params are the per-node knobs shared by every node of a run.
type Params struct {
	RecoveryThreshold   int
	SanitationThreshold int
	StayProbability     float64
}

func DefaultParams() Params {
	return Params{
		RecoveryThreshold:   config.DefaultRecoveryThreshold,
		SanitationThreshold: config.DefaultSanitationThreshold,
		StayProbability:     config.DefaultStayProbability,
	}
}

// ParamsFromConfig extracts node parameters from a loaded configuration.
func ParamsFromConfig(cfg *config.SimulationConfig) Params {
	return Params{
		RecoveryThreshold:   cfg.RecoveryThreshold,
		SanitationThreshold: cfg.SanitationThreshold,
		StayProbability:     cfg.StayProbability,
	}
}

// Deliverer hands an agent to the node at a registry index.
type Deliverer interface {
	Deliver(dest int, a Agent)
}

// Reporter receives one record per node per round.
type Reporter interface {
	Submit(rec StatisticRecord)
}

// RoundWaiter blocks until the given number of rounds are complete and reports
// whether another round should run.
type RoundWaiter interface {
	WaitRound(ctx context.Context, round int) (bool, error)
}

// Totals are lifetime agent counts for a node. At every round boundary
// Created + Absorbed equals resident + Discarded + Sent.
type Totals struct {
	Created   int
	Absorbed  int
	Discarded int
	Sent      int
}

// Node is a graph vertex run as its own goroutine. State and the resident
// agents are only touched by Step; peers only push into the inbox.
type Node struct {
	id     int
	state  NodeState
	params Params
	rng    *rand.Rand

	agents []Agent
	inbox  *Inbox[Agent]
	links  []Link
	peers  Deliverer

	sickness   int
	sanitation int
	discarded  int
	sent       int
	round      int
	totals     Totals
}

// NewNode creates a node. An Infected node starts with one agent of its own.
func NewNode(id int, state NodeState, params Params, rng *rand.Rand) *Node {
	if rng == nil {
		rng = rand.New(rand.NewSource(int64(id)))
	}
	n := &Node{
		id:     id,
		state:  state,
		params: params,
		rng:    rng,
		inbox:  NewInbox[Agent](),
	}
	if state == Environment {
		n.sickness = -1
	}
	if state == Infected {
		n.create()
	}
	return n
}

func (n *Node) ID() int          { return n.id }
func (n *Node) State() NodeState { return n.state }
func (n *Node) Sickness() int    { return n.sickness }
func (n *Node) Resident() int    { return len(n.agents) }
func (n *Node) Pending() int     { return n.inbox.Len() }
func (n *Node) Totals() Totals   { return n.totals }
func (n *Node) Links() []Link    { return n.links }

// SetLinks installs the outbound links, sorted by lower bound.
func (n *Node) SetLinks(links []Link) {
	n.links = sortLinks(links)
}

// SetPeers sets the registry used to dispatch agents.
func (n *Node) SetPeers(d Deliverer) {
	n.peers = d
}

// Receive queues an agent sent by a peer. Safe for concurrent use.
func (n *Node) Receive(a Agent) {
	n.inbox.Push(a)
}

func (n *Node) create() {
	n.agents = append(n.agents, NewAgent(n.id))
	n.totals.Created++
}

// Step runs one round: absorb, transition, route. It returns the report for
// the round and advances the node's own round count.
func (n *Node) Step() StatisticRecord {
	n.discarded = 0
	n.sent = 0

	n.absorb()
	if n.transition() {
		n.route()
	}

	rec := StatisticRecord{
		Round:     n.round,
		NodeID:    n.id,
		State:     n.state,
		Sickness:  n.sickness,
		Agents:    len(n.agents),
		Discarded: n.discarded,
		Sent:      n.sent,
	}
	n.round++
	return rec
}

// absorb takes agents dispatched in earlier rounds. Agents sent during the
// current round stay queued until the next one.
func (n *Node) absorb() {
	round := n.round
	in := n.inbox.DrainFunc(func(a Agent) bool { return a.sentRound < round })
	n.agents = append(n.agents, in...)
	n.totals.Absorbed += len(in)
}

func (n *Node) discardAll() {
	n.discarded += len(n.agents)
	n.totals.Discarded += len(n.agents)
	n.agents = n.agents[:0]
}

// transition applies the state machine and reports whether the node may route.
func (n *Node) transition() bool {
	if n.state == Susceptible {
		if len(n.agents) == 0 {
			return false
		}
		n.state = Infected
	}
	if n.state == Infected {
		n.sickness++
		if n.sickness > n.params.RecoveryThreshold {
			n.state = Recovered
		} else if len(n.agents) == 0 {
			n.create()
		}
	}
	switch n.state {
	case Recovered:
		n.discardAll()
		return false
	case Environment:
		n.sanitation++
		if n.sanitation > n.params.SanitationThreshold {
			n.discardAll()
			n.sanitation = 0
		}
	}
	return len(n.links) > 0
}

// route samples a key per agent and sweeps keys against link upper bounds.
// Keys above every bound leave the agent resident.
func (n *Node) route() {
	if len(n.agents) == 0 || n.peers == nil {
		return
	}
	for i := range n.agents {
		n.agents[i].key = n.rng.Float64()
	}
	sort.Slice(n.agents, func(i, j int) bool { return n.agents[i].key < n.agents[j].key })

	li := 0
	ai := 0
	for ; ai < len(n.agents); ai++ {
		a := n.agents[ai]
		for li < len(n.links) && a.key > n.links[li].High {
			li++
		}
		if li == len(n.links) {
			break
		}
		a.sentRound = n.round
		n.peers.Deliver(n.links[li].Dest, a)
		n.sent++
	}
	n.totals.Sent += ai
	n.agents = append(n.agents[:0], n.agents[ai:]...)
}

// Run steps the node until the round waiter reports the simulation is over.
// A panic ends only this node and is returned as an error.
func (n *Node) Run(ctx context.Context, rep Reporter, rounds RoundWaiter) (err error) {
	log := logging.FromContext(ctx).With("node", n.id)
	defer func() {
		if r := recover(); r != nil {
			log.Error("node fault", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("node %d: panic: %v", n.id, r)
		}
	}()
	for {
		rec := n.Step()
		log.Log(ctx, logging.LevelTrace, "round done",
			"round", rec.Round, "state", rec.State.String(), "agents", rec.Agents, "sent", rec.Sent)
		rep.Submit(rec)
		more, err := rounds.WaitRound(ctx, n.round)
		if err != nil {
			return err
		}
		if !more {
			log.Debug("node stopped", "rounds", n.round, "state", n.state.String())
			return nil
		}
	}
}
