package sim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"netsir-sim/internal/logging"
	"netsir-sim/internal/telemetry"
)

// ErrNodeCountUnset is returned by Run when SetNodeCount was never called.
var ErrNodeCountUnset = errors.New("aggregator: expected node count not set")

// Aggregator collects one record per node per round, reduces them, persists
// the result and publishes the round counter that releases the nodes.
type Aggregator struct {
	records *Inbox[StatisticRecord]
	signal  *RoundSignal
	writer  RoundWriter
	now     func() time.Time

	nodes        int
	roundLimit   int
	stallTimeout time.Duration
	runID        string
	lastStamp    time.Time

	mu       sync.Mutex
	history  []telemetry.RoundRow
	lastRecs []StatisticRecord
}

// NewAggregator returns an aggregator in convergence mode with the node count unset.
// writer may be nil.
func NewAggregator(writer RoundWriter) *Aggregator {
	return &Aggregator{
		records:    NewInbox[StatisticRecord](),
		signal:     NewRoundSignal(),
		writer:     writer,
		now:        time.Now,
		nodes:      -1,
		roundLimit: -1,
	}
}

// SetNodeCount sets how many records complete a round.
func (a *Aggregator) SetNodeCount(n int) { a.nodes = n }

// SetRoundLimit switches to fixed-round mode. A negative limit restores convergence mode.
func (a *Aggregator) SetRoundLimit(limit int) { a.roundLimit = limit }

// SetStallTimeout bounds how long a round may take. Zero waits forever.
func (a *Aggregator) SetStallTimeout(d time.Duration) { a.stallTimeout = d }

// SetRunID stamps persisted rows with the given run identifier.
func (a *Aggregator) SetRunID(id string) { a.runID = id }

// SetClock overrides the timestamp source. Used by tests.
func (a *Aggregator) SetClock(now func() time.Time) { a.now = now }

// Submit queues a node record. Safe for concurrent use.
func (a *Aggregator) Submit(rec StatisticRecord) {
	a.records.Push(rec)
}

// Continue reports whether more rounds will run.
func (a *Aggregator) Continue() bool { return a.signal.Continue() }

// Round returns the number of completed rounds.
func (a *Aggregator) Round() int { return a.signal.Round() }

// WaitRound blocks until round rounds are complete.
func (a *Aggregator) WaitRound(ctx context.Context, round int) (bool, error) {
	return a.signal.WaitUntil(ctx, round, a.stallTimeout)
}

// History returns a copy of every reduced round so far.
func (a *Aggregator) History() []telemetry.RoundRow {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]telemetry.RoundRow, len(a.history))
	copy(out, a.history)
	return out
}

// LastRecords returns the node records of the latest reduced round, ordered by node id.
func (a *Aggregator) LastRecords() []StatisticRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]StatisticRecord, len(a.lastRecs))
	copy(out, a.lastRecs)
	return out
}

// Run drives rounds until the continuation rule stops the simulation, the
// context is cancelled, or a round stalls.
func (a *Aggregator) Run(ctx context.Context) (err error) {
	if a.nodes < 0 {
		a.signal.Abort(ErrNodeCountUnset)
		return ErrNodeCountUnset
	}
	log := logging.FromContext(ctx).With("component", "aggregator")
	defer func() {
		if r := recover(); r != nil {
			log.Error("aggregator fault", "panic", r)
			err = fmt.Errorf("aggregator: panic: %v", r)
		}
		if err != nil {
			a.signal.Abort(err)
		}
		a.closeWriter(log)
	}()

	if hw, ok := a.writer.(headerWriter); ok {
		if err := hw.WriteHeader(); err != nil {
			log.Error("failed to write header", "error", err)
		}
	}

	for {
		round := a.signal.Round()
		recs, err := a.collect(ctx, round)
		if err != nil {
			return err
		}
		row := Reduce(round, recs)
		row.RunID = a.runID
		row.Timestamp = nextStamp(a.lastStamp, a.now())
		a.lastStamp = row.Timestamp
		a.persist(log, row, recs)

		more := a.keepRunning(row)
		a.mu.Lock()
		a.history = append(a.history, row)
		a.lastRecs = recs
		a.mu.Unlock()

		log.Info("round complete",
			"round", row.Round,
			"susceptible", row.Susceptible,
			"infected", row.Infected,
			"recovered", row.Recovered,
			"environment", row.Environment,
			"agents", row.TotalAgents)

		a.signal.Advance(!more)
		if !more {
			log.Info("simulation finished", "rounds", round+1)
			return nil
		}
	}
}

// collect waits for a full round of records.
func (a *Aggregator) collect(ctx context.Context, round int) ([]StatisticRecord, error) {
	var stall <-chan time.Time
	var timer *time.Timer
	if a.stallTimeout > 0 {
		timer = time.NewTimer(a.stallTimeout)
		defer timer.Stop()
		stall = timer.C
	}
	for a.records.Len() < a.nodes {
		select {
		case <-a.records.Notify():
			if timer != nil {
				timer.Reset(a.stallTimeout)
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-stall:
			return nil, fmt.Errorf("%w: round %d has %d of %d records", ErrStalled, round, a.records.Len(), a.nodes)
		}
	}
	recs := a.records.Drain()
	sort.Slice(recs, func(i, j int) bool { return recs[i].NodeID < recs[j].NodeID })
	return recs, nil
}

func (a *Aggregator) persist(log *slog.Logger, row telemetry.RoundRow, recs []StatisticRecord) {
	if a.writer == nil {
		return
	}
	if err := a.writer.WriteRound(row); err != nil {
		log.Error("failed to write round", "round", row.Round, "error", err)
	}
	nw, ok := a.writer.(NodeWriter)
	if !ok {
		return
	}
	rows := make([]telemetry.NodeRow, len(recs))
	for i, r := range recs {
		rows[i] = r.Row(a.runID, row.Timestamp)
	}
	if err := nw.WriteNodes(rows); err != nil {
		log.Error("failed to write node records", "round", row.Round, "error", err)
	}
}

// keepRunning decides whether the round after row.Round should run.
func (a *Aggregator) keepRunning(row telemetry.RoundRow) bool {
	if a.roundLimit >= 0 {
		return row.Round < a.roundLimit
	}
	if row.Round > 0 && row.Susceptible == 0 && row.Infected == 0 {
		return false
	}
	return row.TotalAgents > 0
}

func (a *Aggregator) closeWriter(log *slog.Logger) {
	c, ok := a.writer.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		log.Error("failed to close writer", "error", err)
	}
}
