package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"netsir-sim/internal/config"
	"netsir-sim/internal/sim"
)

type writerOptions struct {
	PrintOnly  bool
	TUI        bool
	SQLitePath string
}

// writerSet holds every writer a run feeds, combined in multi.
type writerSet struct {
	multi      *sim.MultiWriter
	file       *sim.FileWriter
	tui        *sim.TUIWriter
	sqlite     *sim.SQLiteWriter
	greptime   *sim.GreptimeDBWriter
	resultPath string
}

// Close releases every writer. Safe to call after the aggregator closed them.
func (ws *writerSet) Close() error {
	return ws.multi.Close()
}

// newWriters builds the result log and the optional display and database
// writers from flags and environment.
func newWriters(ctx context.Context, cfg *config.SimulationConfig, opts writerOptions, log *slog.Logger) (*writerSet, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	ws := &writerSet{}
	var writers []sim.RoundWriter

	// Databases first so a bad endpoint or path fails before any file or UI exists.
	if !opts.PrintOnly {
		gw, err := greptimeFromEnv(log)
		if err != nil {
			return nil, err
		}
		if gw != nil {
			ws.greptime = gw
			writers = append(writers, gw)
		}
		if opts.SQLitePath != "" {
			sw, err := sim.NewSQLiteWriter(ctx, opts.SQLitePath)
			if err != nil {
				return nil, err
			}
			ws.sqlite = sw
			writers = append(writers, sw)
		}
	}

	resultPath, err := sim.NextResultPath(cfg.Output.Dir)
	if err != nil {
		return nil, err
	}
	nodePath := ""
	if cfg.Output.NodeLog {
		nodePath = strings.TrimSuffix(resultPath, filepath.Ext(resultPath)) + ".nodes.jsonl"
	}
	fw, err := sim.NewFileWriter(resultPath, nodePath)
	if err != nil {
		if ws.sqlite != nil {
			ws.sqlite.Close()
		}
		return nil, err
	}
	ws.file = fw
	ws.resultPath = resultPath
	writers = append(writers, fw)

	if opts.TUI {
		ws.tui = sim.NewTUIWriter(cfg)
		writers = append(writers, ws.tui)
	} else {
		writers = append(writers, sim.NewStdoutWriter(cfg))
	}

	ws.multi = sim.NewMultiWriter(writers...)
	return ws, nil
}

// greptimeFromEnv returns nil when GREPTIMEDB_ENDPOINT is unset.
func greptimeFromEnv(log *slog.Logger) (*sim.GreptimeDBWriter, error) {
	endpoint := os.Getenv("GREPTIMEDB_ENDPOINT")
	if endpoint == "" {
		return nil, nil
	}
	database := os.Getenv("GREPTIMEDB_DATABASE")
	if database == "" {
		database = "public"
	}
	w, err := sim.NewGreptimeDBWriter(endpoint, database, os.Getenv("GREPTIMEDB_ROUND_TABLE"), os.Getenv("GREPTIMEDB_NODE_TABLE"), log)
	if err != nil {
		return nil, err
	}
	log.Info("writing rounds to GreptimeDB", "endpoint", endpoint, "database", database)
	return w, nil
}

// replayWriter picks the sink for replayed rounds: GreptimeDB when configured, STDOUT otherwise.
func replayWriter(printOnly bool, log *slog.Logger) (sim.RoundWriter, error) {
	if !printOnly {
		gw, err := greptimeFromEnv(log)
		if err != nil {
			return nil, err
		}
		if gw != nil {
			return gw, nil
		}
	}
	return sim.NewStdoutWriter(nil), nil
}
