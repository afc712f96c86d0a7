package sim

import (
	"time"

	"netsir-sim/internal/telemetry"
)

// RoundWriter persists the reduced summary of each round.
type RoundWriter interface {
	WriteRound(telemetry.RoundRow) error
}

// NodeWriter is implemented by writers that also keep the per-node records.
type NodeWriter interface {
	WriteNodes([]telemetry.NodeRow) error
}

// Optional: writers that emit a fixed preamble once, before round 0.
type headerWriter interface {
	WriteHeader() error
}

// RoundWriterFunc adapts a function to RoundWriter.
type RoundWriterFunc func(telemetry.RoundRow) error

func (f RoundWriterFunc) WriteRound(row telemetry.RoundRow) error { return f(row) }

// nextStamp returns now, pushed forward so it lands at least one millisecond
// after prev. Zero prev accepts now as is.
func nextStamp(prev, now time.Time) time.Time {
	if prev.IsZero() {
		return now
	}
	if floor := prev.Truncate(time.Millisecond).Add(time.Millisecond); now.Before(floor) {
		return floor
	}
	return now
}
