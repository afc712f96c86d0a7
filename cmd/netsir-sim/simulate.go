package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"netsir-sim/internal/admin"
	"netsir-sim/internal/config"
	"netsir-sim/internal/logging"
	"netsir-sim/internal/sim"
	"netsir-sim/internal/topology"
)

var (
	simConfigPath string
	simSchemaPath string
	simPrintOnly  bool
	simTUI        bool
	simSQLitePath string
	simAdminAddr  string
	simRounds     int
	simTopology   string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run an epidemic simulation",
	Long:  "simulate loads a topology, runs rounds until the epidemic burns out or the round limit is reached, and writes the result log.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(simConfigPath, simSchemaPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("rounds") {
			cfg.RoundLimit = simRounds
			if err := cfg.Validate(); err != nil {
				return err
			}
		}
		if simTopology != "" {
			cfg.Topology.Path = simTopology
		}
		if cfg.Topology.Path == "" {
			return fmt.Errorf("topology path required (config topology.path or --topology)")
		}

		logOut, closeLog, err := logOutput(cfg, simTUI)
		if err != nil {
			return err
		}
		defer closeLog()
		log := logging.New(cfg.LogLevel, logOut)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		ctx = logging.NewContext(ctx, log)

		seed := cfg.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		rng := rand.New(rand.NewSource(seed))

		top, err := topology.Load(cfg.Topology.Path, topology.Options{
			RandomInfected:    cfg.Topology.RandomInfected,
			RandomEnvironment: cfg.Topology.RandomEnvironment,
			StrictCounts:      cfg.Topology.StrictCounts,
		}, rng)
		if err != nil {
			return err
		}
		nodes, err := sim.BuildNodes(top, sim.ParamsFromConfig(cfg), rng)
		if err != nil {
			return err
		}

		ws, err := newWriters(ctx, cfg, writerOptions{
			PrintOnly:  simPrintOnly,
			TUI:        simTUI,
			SQLitePath: simSQLitePath,
		}, log)
		if err != nil {
			return err
		}
		defer ws.Close()

		opts := sim.OptionsFromConfig(cfg)
		opts.RunID = os.Getenv("RUN_ID")
		simulator := sim.NewSimulator(nodes, ws.multi, opts)
		log.Info("topology loaded",
			"path", cfg.Topology.Path,
			"nodes", top.N,
			"infected", len(top.Infected),
			"recovered", len(top.Recovered),
			"environment", len(top.Environment),
			"seed", seed,
			"run_id", simulator.RunID(),
			"result_log", ws.resultPath)

		if simAdminAddr != "" {
			srv := admin.NewServer(simulator, log)
			go func() {
				if err := srv.Start(ctx, simAdminAddr); err != nil {
					log.Error("admin server failed", "error", err)
				}
			}()
		}

		err = simulator.Run(ctx)
		if ws.tui != nil {
			ws.tui.Close()
			ws.tui.Wait()
		}
		if errors.Is(err, context.Canceled) {
			log.Info("simulation interrupted", "rounds", simulator.Aggregator().Round())
			return nil
		}
		return err
	},
}

// logOutput keeps logs off the terminal while the TUI owns it.
func logOutput(cfg *config.SimulationConfig, tui bool) (io.Writer, func(), error) {
	if !tui {
		return os.Stderr, func() {}, nil
	}
	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(filepath.Join(cfg.Output.Dir, "netsir-sim.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return f, func() { f.Close() }, nil
}

func init() {
	simulateCmd.Flags().StringVar(&simConfigPath, "config", "config/simulation.yaml", "Path to simulation configuration YAML")
	simulateCmd.Flags().StringVar(&simSchemaPath, "schema", "", "Path to CUE schema file (defaults to the embedded schema)")
	simulateCmd.Flags().BoolVar(&simPrintOnly, "print-only", false, "Print rounds to STDOUT and skip GreptimeDB and SQLite")
	simulateCmd.Flags().BoolVar(&simTUI, "tui", false, "Show rounds in an interactive terminal UI")
	simulateCmd.Flags().StringVar(&simSQLitePath, "sqlite", "", "Also store rounds in this SQLite database")
	simulateCmd.Flags().StringVar(&simAdminAddr, "admin", ":8080", "Admin HTTP listen address (empty disables)")
	simulateCmd.Flags().IntVar(&simRounds, "rounds", 0, "Override round_limit (0 runs until convergence)")
	simulateCmd.Flags().StringVar(&simTopology, "topology", "", "Override topology.path")
}
