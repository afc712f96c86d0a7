package sim

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"netsir-sim/internal/telemetry"
)

// greptimeClient is the part of the ingester client the writer needs.
type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter writes round and node rows to GreptimeDB via the ingester client.
type GreptimeDBWriter struct {
	client     greptimeClient
	roundTable string
	nodeTable  string
	timeout    time.Duration
	log        *slog.Logger
}

// NewGreptimeDBWriter connects to endpoint ("host" or "host:port") and database.
// Empty table names fall back to telemetry.RoundTableName and telemetry.NodeTableName.
func NewGreptimeDBWriter(endpoint, database, roundTable, nodeTable string, log *slog.Logger) (*GreptimeDBWriter, error) {
	host, port, err := splitEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	cfg := greptime.NewConfig(host).WithPort(port).WithDatabase(database)
	cli, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("greptimedb client: %w", err)
	}
	if roundTable == "" {
		roundTable = telemetry.RoundTableName
	}
	if nodeTable == "" {
		nodeTable = telemetry.NodeTableName
	}
	if log == nil {
		log = slog.Default()
	}
	return &GreptimeDBWriter{
		client:     cli,
		roundTable: roundTable,
		nodeTable:  nodeTable,
		timeout:    10 * time.Second,
		log:        log.With("writer", "greptimedb"),
	}, nil
}

func splitEndpoint(endpoint string) (string, int, error) {
	host, p, err := net.SplitHostPort(endpoint)
	if err != nil {
		// No port given; use the gRPC default.
		return endpoint, 4001, nil
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return "", 0, fmt.Errorf("invalid greptimedb port %q: %w", p, err)
	}
	return host, port, nil
}

// WriteRound inserts one round row. Rounds of a run can share a millisecond,
// so the round number is part of the row key.
func (w *GreptimeDBWriter) WriteRound(row telemetry.RoundRow) error {
	tbl, err := table.New(w.roundTable)
	if err != nil {
		return err
	}
	tbl.AddTagColumn("run_id", types.STRING)
	tbl.AddTagColumn("round", types.INT64)
	tbl.AddFieldColumn("num_susceptible", types.INT64)
	tbl.AddFieldColumn("num_infected", types.INT64)
	tbl.AddFieldColumn("num_recovered", types.INT64)
	tbl.AddFieldColumn("num_environment", types.INT64)
	tbl.AddFieldColumn("total_agents", types.INT64)
	tbl.AddFieldColumn("agents_infected", types.INT64)
	tbl.AddFieldColumn("avg_agents_per_infected", types.FLOAT64)
	tbl.AddFieldColumn("agents_in_transit", types.INT64)
	tbl.AddFieldColumn("agents_environment", types.INT64)
	tbl.AddFieldColumn("avg_agents_per_environment", types.FLOAT64)
	tbl.AddFieldColumn("removed_recovered", types.INT64)
	tbl.AddFieldColumn("avg_removed_per_recovered", types.FLOAT64)
	tbl.AddFieldColumn("removed_environment", types.INT64)
	tbl.AddFieldColumn("avg_removed_per_environment", types.FLOAT64)
	tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND)

	if err := tbl.AddRow(
		row.RunID,
		int64(row.Round),
		int64(row.Susceptible),
		int64(row.Infected),
		int64(row.Recovered),
		int64(row.Environment),
		int64(row.TotalAgents),
		int64(row.AgentsInfected),
		row.AvgAgentsPerInfected,
		int64(row.AgentsInTransit),
		int64(row.AgentsEnvironment),
		row.AvgAgentsPerEnvironment,
		int64(row.RemovedRecovered),
		row.AvgRemovedPerRecovered,
		int64(row.RemovedEnvironment),
		row.AvgRemovedPerEnv,
		row.Timestamp,
	); err != nil {
		return err
	}
	return w.write(tbl, 1)
}

// WriteNodes inserts one row per node record.
func (w *GreptimeDBWriter) WriteNodes(rows []telemetry.NodeRow) error {
	if len(rows) == 0 {
		return nil
	}
	tbl, err := table.New(w.nodeTable)
	if err != nil {
		return err
	}
	tbl.AddTagColumn("run_id", types.STRING)
	tbl.AddTagColumn("node_id", types.INT64)
	tbl.AddTagColumn("round", types.INT64)
	tbl.AddFieldColumn("state", types.STRING)
	tbl.AddFieldColumn("sickness", types.INT64)
	tbl.AddFieldColumn("agents", types.INT64)
	tbl.AddFieldColumn("discarded", types.INT64)
	tbl.AddFieldColumn("sent", types.INT64)
	tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND)

	for _, r := range rows {
		if err := tbl.AddRow(
			r.RunID,
			int64(r.NodeID),
			int64(r.Round),
			r.State,
			int64(r.Sickness),
			int64(r.Agents),
			int64(r.Discarded),
			int64(r.Sent),
			r.Timestamp,
		); err != nil {
			return err
		}
	}
	return w.write(tbl, len(rows))
}

func (w *GreptimeDBWriter) write(tbl *table.Table, n int) error {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	if _, err := w.client.Write(ctx, tbl); err != nil {
		w.log.Error("write failed", "error", err)
		return err
	}
	w.log.Debug("wrote rows", "rows", n)
	return nil
}
