// Writer implementation printing round summaries to STDOUT
package sim

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"text/tabwriter"

	"golang.org/x/term"

	"netsir-sim/internal/config"
	"netsir-sim/internal/telemetry"
)

const (
	colorReset   = "\x1b[0m"
	colorRed     = "\x1b[31m"
	colorGreen   = "\x1b[32m"
	colorYellow  = "\x1b[33m"
	colorBlue    = "\x1b[34m"
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorGray    = "\x1b[90m"
)

// StdoutWriter prints each round as a colorized summary when attached to a
// terminal and as one JSON object per line otherwise.
type StdoutWriter struct {
	cfg      *config.SimulationConfig
	out      io.Writer
	colorize bool
	once     sync.Once
	mu       sync.Mutex
}

// NewStdoutWriter creates a StdoutWriter writing to os.Stdout.
func NewStdoutWriter(cfg *config.SimulationConfig) *StdoutWriter {
	return &StdoutWriter{
		cfg:      cfg,
		out:      os.Stdout,
		colorize: term.IsTerminal(int(os.Stdout.Fd())),
	}
}

func (w *StdoutWriter) printOverview() {
	if w.cfg == nil {
		return
	}
	fmt.Fprintln(w.out, "Simulation Configuration:")
	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	mode := "convergence"
	if !w.cfg.ConvergenceMode() {
		mode = fmt.Sprintf("fixed (%d rounds)", w.cfg.RoundLimit)
	}
	fmt.Fprintf(tw, "Mode:\t%s\n", mode)
	fmt.Fprintf(tw, "Stay Probability:\t%.2f\n", w.cfg.StayProbability)
	fmt.Fprintf(tw, "Recovery Threshold:\t%d\n", w.cfg.RecoveryThreshold)
	fmt.Fprintf(tw, "Sanitation Threshold:\t%d\n", w.cfg.SanitationThreshold)
	fmt.Fprintf(tw, "Topology:\t%s\n", w.cfg.Topology.Path)
	tw.Flush()
	fmt.Fprintln(w.out)
}

// WriteRound prints the statistics for one round.
func (w *StdoutWriter) WriteRound(row telemetry.RoundRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.colorize {
		data, err := json.Marshal(row)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w.out, string(data))
		return err
	}
	w.once.Do(w.printOverview)

	fmt.Fprintf(w.out, "%sRound %d has ended.%s ", colorGray, row.Round, colorReset)
	fmt.Fprintf(w.out, "%sS=%d%s ", colorGreen, row.Susceptible, colorReset)
	fmt.Fprintf(w.out, "%sI=%d%s ", colorRed, row.Infected, colorReset)
	fmt.Fprintf(w.out, "%sR=%d%s ", colorBlue, row.Recovered, colorReset)
	fmt.Fprintf(w.out, "%sE=%d%s ", colorMagenta, row.Environment, colorReset)
	fmt.Fprintf(w.out, "%sagents=%d%s ", colorCyan, row.TotalAgents, colorReset)
	fmt.Fprintf(w.out, "%stransit=%d%s ", colorYellow, row.AgentsInTransit, colorReset)
	fmt.Fprintf(w.out, "avg/I=%.2f avg/E=%.2f ", row.AvgAgentsPerInfected, row.AvgAgentsPerEnvironment)
	_, err := fmt.Fprintf(w.out, "removed R=%d E=%d\n", row.RemovedRecovered, row.RemovedEnvironment)
	return err
}
