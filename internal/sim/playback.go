package sim

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"netsir-sim/internal/telemetry"
)

var headerLines = func() map[string]bool {
	m := make(map[string]bool)
	for _, l := range strings.Split(telemetry.ResultHeader, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			m[l] = true
		}
	}
	return m
}()

// ReplayLog feeds the records of a result log to writer, in file order.
// Result logs carry neither run id nor time, so every row is stamped with
// runID (a fresh one when empty) and its own increasing timestamp.
// interval is the pause between rounds; zero replays as fast as possible.
func ReplayLog(ctx context.Context, r io.Reader, writer RoundWriter, runID string, interval time.Duration) error {
	if runID == "" {
		runID = uuid.NewString()
	}
	var stamp time.Time
	sc := bufio.NewScanner(r)
	lineNum := 0
	first := true
	for sc.Scan() {
		lineNum++
		line := strings.TrimSpace(sc.Text())
		if line == "" || headerLines[line] {
			continue
		}
		row, err := telemetry.ParseResult(line)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNum, err)
		}
		if !first && interval > 0 {
			select {
			case <-time.After(interval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		first = false
		stamp = nextStamp(stamp, time.Now())
		row.RunID = runID
		row.Timestamp = stamp
		if err := writer.WriteRound(row); err != nil {
			return err
		}
	}
	return sc.Err()
}

// ReplayLogFile opens a result log and replays it.
func ReplayLogFile(ctx context.Context, path string, writer RoundWriter, runID string, interval time.Duration) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return ReplayLog(ctx, f, writer, runID, interval)
}
