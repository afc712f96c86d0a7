package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"netsir-sim/internal/logging"
	"netsir-sim/internal/sim"
)

var (
	replayInput     string
	replayInterval  time.Duration
	replayPrintOnly bool
	replaySQLite    string
	replayRunID     string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a result log",
	Long: "replay feeds the rounds of a result log, or of a run stored in SQLite, back into GreptimeDB or STDOUT.\n" +
		"With --sqlite and no --run it lists the stored runs.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayInput == "" && replaySQLite == "" {
			return fmt.Errorf("either --input or --sqlite is required")
		}
		log := logging.New(os.Getenv("LOG_LEVEL"), os.Stderr)
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if replayInput == "" && replayRunID == "" {
			return listRuns(ctx, cmd, replaySQLite)
		}

		writer, err := replayWriter(replayPrintOnly, log)
		if err != nil {
			return err
		}
		if replayInput != "" {
			return sim.ReplayLogFile(ctx, replayInput, writer, replayRunID, replayInterval)
		}
		return replayStored(ctx, replaySQLite, replayRunID, writer, replayInterval)
	},
}

func listRuns(ctx context.Context, cmd *cobra.Command, path string) error {
	db, err := sim.NewSQLiteWriter(ctx, path)
	if err != nil {
		return err
	}
	defer db.Close()
	runs, err := db.Runs(ctx)
	if err != nil {
		return err
	}
	for _, id := range runs {
		fmt.Fprintln(cmd.OutOrStdout(), id)
	}
	return nil
}

func replayStored(ctx context.Context, path, runID string, writer sim.RoundWriter, interval time.Duration) error {
	db, err := sim.NewSQLiteWriter(ctx, path)
	if err != nil {
		return err
	}
	defer db.Close()
	rows, err := db.Rounds(ctx, runID)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("run %s not found in %s", runID, path)
	}
	for i, row := range rows {
		if i > 0 && interval > 0 {
			select {
			case <-time.After(interval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := writer.WriteRound(row); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to a result log (CSV)")
	replayCmd.Flags().DurationVar(&replayInterval, "interval", 0, "Pause between rounds (e.g. 500ms)")
	replayCmd.Flags().BoolVar(&replayPrintOnly, "print-only", false, "Print rounds to STDOUT instead of writing to GreptimeDB")
	replayCmd.Flags().StringVar(&replaySQLite, "sqlite", "", "Replay from this SQLite database instead of a log file")
	replayCmd.Flags().StringVar(&replayRunID, "run", "", "Run id to replay from SQLite, or to stamp on rows from --input (generated when empty)")
}
