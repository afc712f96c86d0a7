package sim

import (
	"time"

	"netsir-sim/internal/telemetry"
)

// StatisticRecord is one node's report for one round.
type StatisticRecord struct {
	Round     int
	NodeID    int
	State     NodeState
	Sickness  int
	Agents    int
	Discarded int
	Sent      int
}

// Row converts the record for persistence.
func (r StatisticRecord) Row(runID string, ts time.Time) telemetry.NodeRow {
	return telemetry.NodeRow{
		RunID:     runID,
		Round:     r.Round,
		NodeID:    r.NodeID,
		State:     r.State.String(),
		Sickness:  r.Sickness,
		Agents:    r.Agents,
		Discarded: r.Discarded,
		Sent:      r.Sent,
		Timestamp: ts,
	}
}
